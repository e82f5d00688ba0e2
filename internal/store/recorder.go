package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/autosort/internal/autosort"
)

// writeTimeout bounds each history write made on behalf of the host.
const writeTimeout = 5 * time.Second

// Recorder is an autosort.Host that writes everything it receives to a
// Store. Write failures are logged, never propagated: history is best
// effort and must not break publishing.
//
// Combine it with the real host through autosort.Tee.
type Recorder struct {
	store *Store
	game  func() string
}

var _ autosort.Host = (*Recorder)(nil)

// NewRecorder creates a recorder. game returns the active profile, used to
// attribute rows.
func NewRecorder(s *Store, game func() string) *Recorder {
	return &Recorder{store: s, game: game}
}

func (r *Recorder) StartActivity(group, id string) {
	r.activity(group, id, true)
}

func (r *Recorder) StopActivity(group, id string) {
	r.activity(group, id, false)
}

func (r *Recorder) activity(group, id string, started bool) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	err := r.store.WriteActivity(ctx, ActivityRecord{
		Game:     r.game(),
		Group:    group,
		Activity: id,
		Started:  started,
	})
	if err != nil {
		slog.Warn("failed to record activity", "group", group, "id", id, "error", err)
	}
}

func (r *Recorder) SetLoadOrder(order []string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if _, err := r.store.WriteLoadOrder(ctx, LoadOrderRecord{Game: r.game(), Plugins: order}); err != nil {
		slog.Warn("failed to record load order", "error", err)
	}
}

func (r *Recorder) Notify(n autosort.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	rec := NotificationRecord{
		Game:       r.game(),
		ID:         n.ID,
		Type:       string(n.Type),
		Message:    n.Message,
		Details:    n.Details,
		Persistent: n.Persistent,
	}
	if n.Err != nil {
		rec.Error = n.Err.Error()
	}
	if err := r.store.WriteNotification(ctx, rec); err != nil {
		slog.Warn("failed to record notification", "message", n.Message, "error", err)
	}
}

// ShowDialog is not recorded; dialogs only repeat a notification's detail.
func (r *Recorder) ShowDialog(autosort.Dialog) {}

// Link attaches the id of a successful sort to the load order it
// published.
func (r *Recorder) Link(ctx context.Context, out autosort.SortOutcome) {
	if !out.Sorted() || out.ID == "" {
		return
	}
	if _, err := r.store.AttachSortID(ctx, out.Game, out.ID); err != nil {
		slog.Warn("failed to link sort id", "id", out.ID, "error", err)
	}
}
