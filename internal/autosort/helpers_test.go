package autosort_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/autosort/internal/autosort"
	"github.com/roach88/autosort/internal/testutil"
)

// fixture wires a Service to test doubles that share one trace.
type fixture struct {
	trace   *testutil.Trace
	host    *testutil.RecordingHost
	state   *testutil.FakeState
	factory *testutil.FakeFactory
	fs      *testutil.FakeFS
	layout  testutil.DirLayout
	svc     *autosort.Service
}

type fixtureOption func(*autosort.Options)

func withRetries(n int) fixtureOption {
	return func(o *autosort.Options) { o.Masterlist.Retries = n }
}

// newFixture builds a service supporting the given games. The service is
// created with no active profile.
func newFixture(t *testing.T, supported []string, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		trace:  testutil.NewTrace(),
		state:  testutil.NewFakeState(),
		fs:     testutil.NewFakeFS(),
		layout: testutil.DirLayout{Root: t.TempDir()},
	}
	f.host = testutil.NewRecordingHost(f.trace)
	f.factory = testutil.NewFakeFactory(f.trace)

	set := make(map[string]bool, len(supported))
	for _, g := range supported {
		set[g] = true
	}
	o := autosort.Options{
		Layout:    f.layout,
		Supported: func(game string) bool { return set[game] },
		Stat:      f.fs.Stat,
	}
	for _, opt := range opts {
		opt(&o)
	}

	f.svc = autosort.NewService(f.host, f.state, f.factory.New, o)
	return f
}

// activate makes game the active profile and waits for its session.
func (f *fixture) activate(t *testing.T, game string) *autosort.Session {
	t.Helper()
	f.state.SetActive(game)
	return await(t, f.svc.ProfileActivated(context.Background(), game))
}

// await waits for a future with a test timeout.
func await[T any](t *testing.T, fut *autosort.Future[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := fut.Wait(ctx)
	require.NoError(t, err, "future did not settle")
	return v
}

// indexOf returns the position of the nth (0-based) event of kind.
func indexOf(events []testutil.Event, kind string, nth int) int {
	seen := 0
	for i, e := range events {
		if e.Kind != kind {
			continue
		}
		if seen == nth {
			return i
		}
		seen++
	}
	return -1
}
