package store

import (
	"context"
	"fmt"
)

// LoadOrderRecord is one published load order.
type LoadOrderRecord struct {
	Seq        int64
	SortID     string
	Game       string
	Plugins    []string
	RecordedAt int64
}

// ActivityRecord is one activity marker.
type ActivityRecord struct {
	Seq      int64
	Game     string
	Group    string
	Activity string
	Started  bool
}

// NotificationRecord is one stored notification.
type NotificationRecord struct {
	Seq        int64
	Game       string
	ID         string
	Type       string
	Message    string
	Error      string
	Details    map[string]string
	Persistent bool
}

// WriteLoadOrder appends a published load order and returns its seq.
func (s *Store) WriteLoadOrder(ctx context.Context, rec LoadOrderRecord) (int64, error) {
	plugins, err := marshalNames(rec.Plugins)
	if err != nil {
		return 0, fmt.Errorf("write load order: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO load_orders (sort_id, game, plugins, recorded_at)
		VALUES (?, ?, ?, ?)
	`, rec.SortID, rec.Game, plugins, s.timestamp())
	if err != nil {
		return 0, fmt.Errorf("write load order: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("write load order: last insert id: %w", err)
	}
	return seq, nil
}

// WriteActivity appends an activity marker.
func (s *Store) WriteActivity(ctx context.Context, rec ActivityRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (game, grp, activity, started, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Game, rec.Group, rec.Activity, boolToInt(rec.Started), s.timestamp())
	if err != nil {
		return fmt.Errorf("write activity: %w", err)
	}
	return nil
}

// WriteNotification appends a notification.
func (s *Store) WriteNotification(ctx context.Context, rec NotificationRecord) error {
	details, err := marshalDetails(rec.Details)
	if err != nil {
		return fmt.Errorf("write notification: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notifications
		(game, notification_id, type, message, error, details, persistent, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Game,
		rec.ID,
		rec.Type,
		rec.Message,
		rec.Error,
		details,
		boolToInt(rec.Persistent),
		s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// AttachSortID tags the newest untagged load order of game with sortID.
// The host interface publishes orders without their sort id, so callers
// link them once the sort outcome is known. Returns false when there was
// no untagged row.
func (s *Store) AttachSortID(ctx context.Context, game, sortID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE load_orders SET sort_id = ?
		WHERE seq = (
			SELECT MAX(seq) FROM load_orders WHERE game = ? AND sort_id = ''
		)
	`, sortID, game)
	if err != nil {
		return false, fmt.Errorf("attach sort id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("attach sort id: %w", err)
	}
	return n > 0, nil
}
