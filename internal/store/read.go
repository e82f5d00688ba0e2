package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// LatestLoadOrder returns the most recent load order published for game.
// ok is false when none was recorded.
func (s *Store) LatestLoadOrder(ctx context.Context, game string) (rec LoadOrderRecord, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, sort_id, game, plugins, recorded_at
		FROM load_orders
		WHERE game = ?
		ORDER BY seq DESC
		LIMIT 1
	`, game)

	rec, err = scanLoadOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return LoadOrderRecord{}, false, nil
	}
	if err != nil {
		return LoadOrderRecord{}, false, err
	}
	return rec, true, nil
}

// History returns up to limit load orders for game, newest first.
// A limit below 1 returns everything.
//
// Returns an empty slice (not nil) if nothing was recorded.
func (s *Store) History(ctx context.Context, game string, limit int) ([]LoadOrderRecord, error) {
	if limit < 1 {
		limit = -1 // sqlite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, sort_id, game, plugins, recorded_at
		FROM load_orders
		WHERE game = ?
		ORDER BY seq DESC
		LIMIT ?
	`, game, limit)
	if err != nil {
		return nil, fmt.Errorf("query load orders: %w", err)
	}
	defer rows.Close()

	records := []LoadOrderRecord{}
	for rows.Next() {
		rec, err := scanLoadOrder(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate load orders: %w", err)
	}
	return records, nil
}

// Activities returns every activity marker for game in seq order.
func (s *Store) Activities(ctx context.Context, game string) ([]ActivityRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, game, grp, activity, started
		FROM activities
		WHERE game = ?
		ORDER BY seq ASC
	`, game)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	records := []ActivityRecord{}
	for rows.Next() {
		var (
			rec     ActivityRecord
			started int
		)
		if err := rows.Scan(&rec.Seq, &rec.Game, &rec.Group, &rec.Activity, &started); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		rec.Started = started != 0
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return records, nil
}

// Notifications returns every notification for game in seq order.
func (s *Store) Notifications(ctx context.Context, game string) ([]NotificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, game, notification_id, type, message, error, details, persistent
		FROM notifications
		WHERE game = ?
		ORDER BY seq ASC
	`, game)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	records := []NotificationRecord{}
	for rows.Next() {
		var (
			rec        NotificationRecord
			details    string
			persistent int
		)
		if err := rows.Scan(&rec.Seq, &rec.Game, &rec.ID, &rec.Type, &rec.Message, &rec.Error, &details, &persistent); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		rec.Details, err = unmarshalDetails(details)
		if err != nil {
			return nil, err
		}
		rec.Persistent = persistent != 0
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLoadOrder(row scanner) (LoadOrderRecord, error) {
	var (
		rec     LoadOrderRecord
		plugins string
	)
	if err := row.Scan(&rec.Seq, &rec.SortID, &rec.Game, &plugins, &rec.RecordedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LoadOrderRecord{}, err
		}
		return LoadOrderRecord{}, fmt.Errorf("scan load order: %w", err)
	}
	names, err := unmarshalNames(plugins)
	if err != nil {
		return LoadOrderRecord{}, err
	}
	rec.Plugins = names
	return rec, nil
}
