package autosort

import (
	"context"

	"github.com/roach88/autosort/internal/rules"
)

// MetadataService answers per-plugin metadata lookups against the current
// session. Results are never cached and queries are not ordered against
// sorts: a query that overlaps a list reload may see either state.
type MetadataService struct {
	sessions *SessionManager
}

// NewMetadataService creates a service reading sessions' current engine.
func NewMetadataService(sessions *SessionManager) *MetadataService {
	return &MetadataService{sessions: sessions}
}

// QueryMetadata returns metadata for each of names. A session without an
// engine yields an empty map, not an error. The only error is ctx expiring
// while waiting for a pending session.
func (s *MetadataService) QueryMetadata(ctx context.Context, names []string) (map[string]rules.Metadata, error) {
	sess, err := s.sessions.Current().Wait(ctx)
	if err != nil {
		return nil, err
	}

	result := make(map[string]rules.Metadata, len(names))
	if !sess.Ready() {
		return result, nil
	}
	for _, name := range names {
		result[name] = sess.Engine.Metadata(name)
	}
	return result, nil
}
