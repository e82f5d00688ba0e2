package autosort

import (
	"context"
	"log/slog"

	"github.com/roach88/autosort/internal/metrics"
	"github.com/roach88/autosort/internal/rules"
)

// Options configures a Service and its components.
type Options struct {
	// Layout resolves per-game paths. Required.
	Layout Layout

	// Supported reports whether a game can be sorted. Nil supports every
	// non-empty game id.
	Supported func(game string) bool

	// Masterlist says where masterlists are mirrored from.
	Masterlist MasterlistSource

	// Stat reads userlist modification times. Nil uses OSStat.
	Stat StatFunc

	// IDs generates sort request ids. Nil uses UUIDv7Generator.
	IDs IDGenerator

	// Metrics records counters. Nil records nothing.
	Metrics *metrics.Metrics
}

func (o Options) supportedFunc() func(string) bool {
	if o.Supported != nil {
		return o.Supported
	}
	return func(game string) bool { return game != "" }
}

// Service is the entry point for the host: it turns inbound signals into
// calls on the session manager, sort coordinator and metadata service.
type Service struct {
	state    State
	sessions *SessionManager
	sorter   *SortCoordinator
	meta     *MetadataService
}

// NewService wires the components together. If state already reports an
// active profile, its session is requested right away, since the host may
// have announced that profile before the service existed.
func NewService(host Host, state State, factory rules.Factory, opts Options) *Service {
	sessions := NewSessionManager(host, factory, opts)
	s := &Service{
		state:    state,
		sessions: sessions,
		sorter:   NewSortCoordinator(host, state, sessions, opts),
		meta:     NewMetadataService(sessions),
	}

	if game := state.ActiveProfile(); game != "" {
		slog.Debug("profile already active at startup", "game", game)
		s.ProfileActivated(context.Background(), game)
	}
	return s
}

// ProfileActivated handles the profile-activated signal.
func (s *Service) ProfileActivated(ctx context.Context, game string) *Future[*Session] {
	return s.sessions.RequestSession(ctx, game, s.state.GamePath(game))
}

// RequestSort handles the request-sort signal.
func (s *Service) RequestSort(ctx context.Context, manual bool) *Future[SortOutcome] {
	return s.sorter.RequestSort(ctx, manual)
}

// QueryMetadata handles the query-metadata signal and delivers the result
// to respond from a separate goroutine. respond is not called if ctx ends
// before the session settles.
func (s *Service) QueryMetadata(ctx context.Context, names []string, respond func(map[string]rules.Metadata)) {
	go func() {
		result, err := s.meta.QueryMetadata(ctx, names)
		if err != nil {
			slog.Debug("metadata query abandoned", "error", err)
			return
		}
		respond(result)
	}()
}

// Metadata is the synchronous form of QueryMetadata.
func (s *Service) Metadata(ctx context.Context, names []string) (map[string]rules.Metadata, error) {
	return s.meta.QueryMetadata(ctx, names)
}

// Session returns the future of the current session.
func (s *Service) Session() *Future[*Session] {
	return s.sessions.Current()
}

// Ready reports, without blocking, whether the current session has settled
// with an engine.
func (s *Service) Ready() bool {
	sess, ok := s.sessions.Current().Peek()
	return ok && sess.Ready()
}

// Wait blocks until the current session and the most recent sort have
// settled.
func (s *Service) Wait(ctx context.Context) error {
	if _, err := s.sessions.Current().Wait(ctx); err != nil {
		return err
	}
	_, err := s.sorter.Current().Wait(ctx)
	return err
}
