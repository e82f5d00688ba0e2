package autosort

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/autosort/internal/metrics"
	"github.com/roach88/autosort/internal/rules"
)

// Reasons recorded on skipped outcomes.
const (
	SkipAutoSortDisabled = "auto sort disabled"
	SkipSessionMismatch  = "session does not match active profile"
	SkipUnsupported      = "active profile not supported"
	SkipNoEngine         = "session has no engine"
	SkipSuperseded       = "profile changed during sort"
)

// SortOutcome is what one sort request ended with. Exactly one of Order,
// Err or Skipped is meaningful.
type SortOutcome struct {
	ID   string
	Game string

	// Order is the published load order on success.
	Order []string

	// Err is the failure and Failure its classification.
	Err     error
	Failure *Classification

	// Skipped is true when nothing was sorted; Reason says why.
	Skipped bool
	Reason  string
}

// Sorted reports whether the outcome published a load order.
func (o SortOutcome) Sorted() bool {
	return !o.Skipped && o.Err == nil
}

// SortCoordinator single-flights sort requests.
//
// Requests form a FIFO chain: each one reserves its slot when RequestSort is
// called and starts only after the request before it has settled. At most
// one engine sort runs at any time.
type SortCoordinator struct {
	host      Host
	state     State
	sessions  *SessionManager
	supported func(game string) bool
	ids       IDGenerator
	metrics   *metrics.Metrics

	sorts *chain[SortOutcome]
}

// NewSortCoordinator creates a coordinator that sorts the sessions handed
// out by sessions.
func NewSortCoordinator(host Host, state State, sessions *SessionManager, opts Options) *SortCoordinator {
	ids := opts.IDs
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	return &SortCoordinator{
		host:      host,
		state:     state,
		sessions:  sessions,
		supported: opts.supportedFunc(),
		ids:       ids,
		metrics:   opts.Metrics,
		sorts:     newChain(SortOutcome{Skipped: true}),
	}
}

// Current returns the future of the most recently queued sort.
func (c *SortCoordinator) Current() *Future[SortOutcome] {
	return c.sorts.head()
}

// RequestSort queues a sort. Automatic requests (manual false) are dropped
// without side effects while auto sort is disabled.
//
// The returned future always settles; failures are reported through the
// host and recorded on the outcome, never returned as errors.
func (c *SortCoordinator) RequestSort(ctx context.Context, manual bool) *Future[SortOutcome] {
	if !manual && !c.state.AutoSort() {
		c.metrics.ObserveSort(metrics.OutcomeSkipped, 0)
		return settledFuture(SortOutcome{Skipped: true, Reason: SkipAutoSortDisabled})
	}

	ctx = context.WithoutCancel(ctx)
	prev, slot := c.sorts.next()

	go func() {
		// The previous outcome was already reported by its own request.
		_ = prev.value()
		slot.settle(c.run(ctx, manual))
	}()

	return slot
}

func (c *SortCoordinator) run(ctx context.Context, manual bool) SortOutcome {
	sess := c.sessions.Current().value()

	active := c.state.ActiveProfile()
	switch {
	case sess.Game != active:
		return c.skip(sess, SkipSessionMismatch)
	case !c.supported(active):
		return c.skip(sess, SkipUnsupported)
	case !sess.Ready():
		return c.skip(sess, SkipNoEngine)
	}

	out := SortOutcome{ID: c.ids.Generate(), Game: sess.Game}
	plugins := snapshot(c.state.LoadOrder(), c.state.EnabledPlugins())

	ctx, span := tracer.Start(ctx, "autosort.sort", trace.WithAttributes(
		attribute.String("sort_id", out.ID),
		attribute.String("game", sess.Game),
		attribute.Bool("manual", manual),
		attribute.Int("plugins", len(plugins)),
	))
	defer span.End()

	slog.Debug("sort started", "id", out.ID, "game", sess.Game, "manual", manual, "plugins", len(plugins))

	started := time.Now()
	c.host.StartActivity(ActivityGroup, ActivitySorting)
	sorted, err := sortSession(ctx, sess, plugins)
	c.host.StopActivity(ActivityGroup, ActivitySorting)
	elapsed := time.Since(started)

	if err != nil {
		cls := Classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, cls.Kind.String())
		slog.Info("loot failed", "id", out.ID, "game", sess.Game, "kind", cls.Kind.String(), "error", err.Error())
		Report(c.host, cls, err)
		c.metrics.ObserveSort(cls.Kind.String(), elapsed)
		out.Err = err
		out.Failure = &cls
		return out
	}

	if c.state.ActiveProfile() != sess.Game {
		slog.Info("discarding sort result, profile changed", "id", out.ID, "game", sess.Game)
		c.metrics.ObserveSort(metrics.OutcomeSkipped, elapsed)
		out.Skipped = true
		out.Reason = SkipSuperseded
		return out
	}

	c.host.SetLoadOrder(sorted)
	c.metrics.ObserveSort(metrics.OutcomeSorted, elapsed)
	slog.Debug("sort finished", "id", out.ID, "game", sess.Game, "duration", elapsed)
	out.Order = sorted
	return out
}

func (c *SortCoordinator) skip(sess *Session, reason string) SortOutcome {
	slog.Debug("sort skipped", "game", sess.Game, "active", c.state.ActiveProfile(), "reason", reason)
	c.metrics.ObserveSort(metrics.OutcomeSkipped, 0)
	return SortOutcome{Game: sess.Game, Skipped: true, Reason: reason}
}

// sortSession refreshes the lists and runs the engine. Engine panics come
// back as errors so the chain always settles.
func sortSession(ctx context.Context, sess *Session, plugins []string) (sorted []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			sorted, err = nil, fmt.Errorf("%w: %v", ErrEnginePanic, r)
		}
	}()

	if lists := sess.Lists(); lists != nil {
		if _, err := lists.EnsureLoaded(ctx, sess.Engine); err != nil {
			return nil, err
		}
	}
	return sess.Engine.Sort(ctx, plugins)
}

// snapshot keeps the load order entries that are enabled, in load order.
func snapshot(loadOrder, enabled []string) []string {
	set := make(map[string]struct{}, len(enabled))
	for _, name := range enabled {
		set[rules.Key(name)] = struct{}{}
	}

	out := make([]string, 0, len(enabled))
	for _, name := range loadOrder {
		if _, ok := set[rules.Key(name)]; ok {
			out = append(out, name)
		}
	}
	return out
}
