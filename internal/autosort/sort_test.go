package autosort_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autosort/internal/autosort"
	"github.com/roach88/autosort/internal/rules"
	"github.com/roach88/autosort/internal/testutil"
)

func TestSort_EndToEndPublishesEngineOrder(t *testing.T) {
	f := newFixture(t, []string{"p1"})
	f.factory.Engine("p1").SetSortResult([]string{"c", "a"})

	sess := f.activate(t, "p1")
	require.True(t, sess.Ready())

	f.state.SetPlugins([]string{"a", "b", "c"}, []string{"a", "c"})
	out := await(t, f.svc.RequestSort(context.Background(), true))

	require.True(t, out.Sorted(), "outcome: %+v", out)
	assert.Equal(t, []string{"c", "a"}, out.Order)
	assert.Equal(t, [][]string{{"a", "c"}}, f.factory.Engine("p1").SortCalls())
	assert.Equal(t, []string{"c", "a"}, f.host.LastLoadOrder())

	sortEvents := f.trace.Filter(
		testutil.KindActivityStarted,
		testutil.KindLoadLists,
		testutil.KindSortStarted,
		testutil.KindSortFinished,
		testutil.KindActivityStopped,
		testutil.KindLoadOrder,
	)
	kinds := make([]string, len(sortEvents))
	for i, e := range sortEvents {
		kinds[i] = e.Kind
	}
	assert.Equal(t, []string{
		testutil.KindActivityStarted,
		testutil.KindLoadLists,
		testutil.KindSortStarted,
		testutil.KindSortFinished,
		testutil.KindActivityStopped,
		testutil.KindLoadOrder,
	}, kinds)
	assert.Zero(t, f.host.OpenActivities())
}

func TestSort_FailedEngineConstructionIsNoop(t *testing.T) {
	f := newFixture(t, []string{"p2"})
	f.factory.Fail("p2", errors.New("native library missing"))

	sess := f.activate(t, "p2")
	assert.False(t, sess.Ready())
	assert.Equal(t, "p2", sess.Game)

	notes := f.host.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, autosort.NotifyError, notes[0].Type)
	assert.Equal(t, "Failed to initialize LOOT", notes[0].Message)
	assert.Equal(t, "p2", notes[0].Details["game"])
	assert.True(t, errors.Is(notes[0].Err, autosort.ErrSessionInit))

	f.trace.Reset()
	f.state.SetPlugins([]string{"a"}, []string{"a"})
	out := await(t, f.svc.RequestSort(context.Background(), true))

	assert.True(t, out.Skipped)
	assert.Equal(t, autosort.SkipNoEngine, out.Reason)
	assert.Empty(t, f.trace.Events(), "no activity markers, no load order")
	assert.Empty(t, f.host.LoadOrders())
}

func TestSort_BackToBackRequestsDoNotOverlap(t *testing.T) {
	f := newFixture(t, []string{"p1"})
	eng := f.factory.Engine("p1")
	f.activate(t, "p1")
	f.state.SetPlugins([]string{"a", "b"}, []string{"a", "b"})

	eng.BlockSorts()
	first := f.svc.RequestSort(context.Background(), true)
	second := f.svc.RequestSort(context.Background(), true)

	eng.ReleaseSort()
	eng.ReleaseSort()

	out1 := await(t, first)
	out2 := await(t, second)
	assert.True(t, out1.Sorted())
	assert.True(t, out2.Sorted())

	events := f.trace.Events()
	firstStopped := indexOf(events, testutil.KindActivityStopped, 0)
	secondStarted := indexOf(events, testutil.KindActivityStarted, 1)
	require.NotEqual(t, -1, firstStopped)
	require.NotEqual(t, -1, secondStarted)
	assert.Greater(t, secondStarted, firstStopped, "second sort started before the first stopped:\n%s", f.trace.Text())
	assert.Equal(t, 1, eng.MaxConcurrentSorts())
}

func TestSort_ConcurrentRequestsAreSingleFlight(t *testing.T) {
	f := newFixture(t, []string{"p1"})
	eng := f.factory.Engine("p1")
	eng.SetSortFunc(func(plugins []string) ([]string, error) {
		time.Sleep(2 * time.Millisecond)
		return plugins, nil
	})
	f.activate(t, "p1")
	f.state.SetPlugins([]string{"a"}, []string{"a"})

	const n = 8
	futures := make([]*autosort.Future[autosort.SortOutcome], n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			futures[i] = f.svc.RequestSort(context.Background(), true)
		}(i)
	}
	wg.Wait()

	for _, fut := range futures {
		out := await(t, fut)
		assert.True(t, out.Sorted())
	}

	assert.LessOrEqual(t, len(eng.SortCalls()), n)
	assert.Equal(t, 1, eng.MaxConcurrentSorts())

	// Every start is followed by its own finish before the next start.
	var open int
	for _, e := range f.trace.Filter(testutil.KindSortStarted, testutil.KindSortFinished) {
		if e.Kind == testutil.KindSortStarted {
			open++
		} else {
			open--
		}
		require.LessOrEqual(t, open, 1)
	}
}

func TestSort_AutomaticRequestIgnoredWhenAutoSortDisabled(t *testing.T) {
	f := newFixture(t, []string{"p1"})
	f.activate(t, "p1")
	f.state.SetPlugins([]string{"a"}, []string{"a"})
	f.trace.Reset()

	fut := f.svc.RequestSort(context.Background(), false)
	_, settled := fut.Peek()
	assert.True(t, settled, "dropped request resolves immediately")

	out := await(t, fut)
	assert.True(t, out.Skipped)
	assert.Equal(t, autosort.SkipAutoSortDisabled, out.Reason)
	assert.Empty(t, f.trace.Events())
}

func TestSort_AutomaticRequestRunsWhenAutoSortEnabled(t *testing.T) {
	f := newFixture(t, []string{"p1"})
	f.state.SetAutoSort(true)
	f.activate(t, "p1")
	f.state.SetPlugins([]string{"a", "b"}, []string{"b"})

	out := await(t, f.svc.RequestSort(context.Background(), false))
	require.True(t, out.Sorted())
	assert.Equal(t, []string{"b"}, out.Order)
}

func TestSort_SessionMismatchAbortsSilently(t *testing.T) {
	f := newFixture(t, []string{"p1", "p2"})
	f.activate(t, "p1")

	// The host switched profile but the session was never requested.
	f.state.SetActive("p2")
	f.trace.Reset()

	out := await(t, f.svc.RequestSort(context.Background(), true))
	assert.True(t, out.Skipped)
	assert.Equal(t, autosort.SkipSessionMismatch, out.Reason)
	assert.Empty(t, f.trace.Events())
}

func TestSort_UnsupportedProfileAbortsSilently(t *testing.T) {
	f := newFixture(t, []string{"p1"})
	sess := f.activate(t, "other")
	assert.False(t, sess.Ready())
	assert.Empty(t, f.factory.Created())
	assert.Empty(t, f.host.Notifications())

	out := await(t, f.svc.RequestSort(context.Background(), true))
	assert.True(t, out.Skipped)
	assert.Equal(t, autosort.SkipUnsupported, out.Reason)
}

func TestSort_SnapshotMatchesNamesCaseInsensitively(t *testing.T) {
	f := newFixture(t, []string{"p1"})
	f.activate(t, "p1")
	f.state.SetPlugins([]string{"Skyrim.esm", "Mod.esp", "Other.esp"}, []string{"skyrim.ESM", "other.esp"})

	out := await(t, f.svc.RequestSort(context.Background(), true))
	require.True(t, out.Sorted())
	assert.Equal(t, [][]string{{"Skyrim.esm", "Other.esp"}}, f.factory.Engine("p1").SortCalls())
}

func TestSort_SnapshotTakenAtDispatchTime(t *testing.T) {
	f := newFixture(t, []string{"p1"})
	eng := f.factory.Engine("p1")
	f.activate(t, "p1")
	f.state.SetPlugins([]string{"a"}, []string{"a"})

	// The second request is queued while the first runs; the plugin change
	// made during the first sort must be visible to the second.
	calls := 0
	eng.SetSortFunc(func(p []string) ([]string, error) {
		calls++
		if calls == 1 {
			f.state.SetPlugins([]string{"a", "b"}, []string{"a", "b"})
		}
		return p, nil
	})

	eng.BlockSorts()
	first := f.svc.RequestSort(context.Background(), true)
	second := f.svc.RequestSort(context.Background(), true)
	eng.ReleaseSort()
	eng.ReleaseSort()

	await(t, first)
	await(t, second)
	assert.Equal(t, [][]string{{"a"}, {"a", "b"}}, eng.SortCalls())
}

func TestSort_ResultDiscardedWhenProfileChangesMidSort(t *testing.T) {
	f := newFixture(t, []string{"p1", "p2"})
	eng := f.factory.Engine("p1")
	f.activate(t, "p1")
	f.state.SetPlugins([]string{"a"}, []string{"a"})

	eng.SetSortFunc(func(p []string) ([]string, error) {
		f.state.SetActive("p2")
		return p, nil
	})

	out := await(t, f.svc.RequestSort(context.Background(), true))
	assert.True(t, out.Skipped)
	assert.Equal(t, autosort.SkipSuperseded, out.Reason)
	assert.Empty(t, f.host.LoadOrders())
	assert.Zero(t, f.host.OpenActivities())
}

func TestSort_CyclicFailureIsReportedNotPublished(t *testing.T) {
	f := newFixture(t, []string{"p1"})
	f.factory.Engine("p1").SetSortError(rules.NewCycleError([]string{"A.esp", "B.esp", "A.esp"}))
	f.activate(t, "p1")
	f.state.SetPlugins([]string{"A.esp", "B.esp"}, []string{"A.esp", "B.esp"})

	out := await(t, f.svc.RequestSort(context.Background(), true))
	require.Error(t, out.Err)
	require.NotNil(t, out.Failure)
	assert.Equal(t, autosort.FailureCyclic, out.Failure.Kind)
	assert.Empty(t, f.host.LoadOrders())
	assert.Zero(t, f.host.OpenActivities(), "activity stopped even on failure")

	notes := f.host.Notifications()
	require.Len(t, notes, 1)
	assert.True(t, notes[0].Persistent)
	require.Len(t, notes[0].Actions, 1)
	assert.Empty(t, f.host.Dialogs(), "detail is shown on demand only")

	notes[0].Actions[0].Run(func() {})
	dialogs := f.host.Dialogs()
	require.Len(t, dialogs, 1)
	assert.Equal(t, "Cyclic interaction", dialogs[0].Title)
	assert.Contains(t, dialogs[0].Body, "[quote]Cyclic interaction between A.esp and B.esp")
}

func TestSort_InvalidPluginFailureIsWarning(t *testing.T) {
	f := newFixture(t, []string{"p1"})
	f.factory.Engine("p1").SetSortError(errors.New("C.esp is not a valid plugin"))
	f.activate(t, "p1")
	f.state.SetPlugins([]string{"C.esp"}, []string{"C.esp"})

	out := await(t, f.svc.RequestSort(context.Background(), true))
	require.NotNil(t, out.Failure)
	assert.Equal(t, autosort.FailureInvalidEntry, out.Failure.Kind)
	assert.Equal(t, "C.esp", out.Failure.Plugin)

	notes := f.host.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, autosort.NotifyWarning, notes[0].Type)
	assert.Equal(t, autosort.NotificationSortFailed, notes[0].ID)
	assert.Equal(t, "Not sorted because: C.esp is not a valid plugin", notes[0].Message)
	assert.False(t, notes[0].Persistent)
}

func TestSort_GenericFailureIsError(t *testing.T) {
	f := newFixture(t, []string{"p1"})
	f.factory.Engine("p1").SetSortError(errors.New("disk full"))
	f.activate(t, "p1")
	f.state.SetPlugins([]string{"a"}, []string{"a"})

	out := await(t, f.svc.RequestSort(context.Background(), true))
	require.NotNil(t, out.Failure)
	assert.Equal(t, autosort.FailureGeneric, out.Failure.Kind)

	notes := f.host.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, autosort.NotifyError, notes[0].Type)
	assert.Equal(t, "LOOT operation failed", notes[0].Message)
	assert.EqualError(t, notes[0].Err, "disk full")
}

func TestSort_ListLoadFailureAbortsOnlyThisSort(t *testing.T) {
	f := newFixture(t, []string{"p1"})
	eng := f.factory.Engine("p1")
	eng.SetLoadError(errors.New("masterlist is corrupt"))
	f.activate(t, "p1")
	f.state.SetPlugins([]string{"a"}, []string{"a"})

	out := await(t, f.svc.RequestSort(context.Background(), true))
	require.Error(t, out.Err)
	assert.True(t, errors.Is(out.Err, autosort.ErrListLoad))
	assert.Empty(t, eng.SortCalls(), "engine sort not reached")
	assert.Zero(t, f.host.OpenActivities())

	eng.SetLoadError(nil)
	out = await(t, f.svc.RequestSort(context.Background(), true))
	assert.True(t, out.Sorted(), "next sort retries the load")
	assert.Len(t, eng.LoadCalls(), 2)
}

func TestSort_EnginePanicBecomesGenericFailure(t *testing.T) {
	f := newFixture(t, []string{"p1"})
	eng := f.factory.Engine("p1")
	eng.SetSortFunc(func([]string) ([]string, error) { panic("segfault in native code") })
	f.activate(t, "p1")
	f.state.SetPlugins([]string{"a"}, []string{"a"})

	out := await(t, f.svc.RequestSort(context.Background(), true))
	require.Error(t, out.Err)
	assert.True(t, errors.Is(out.Err, autosort.ErrEnginePanic))
	assert.Equal(t, autosort.FailureGeneric, out.Failure.Kind)

	eng.SetSortResult([]string{"a"})
	out = await(t, f.svc.RequestSort(context.Background(), true))
	assert.True(t, out.Sorted(), "chain keeps working after a panic")
}

func TestSort_FailureDoesNotBlockQueuedRequest(t *testing.T) {
	f := newFixture(t, []string{"p1"})
	eng := f.factory.Engine("p1")
	f.activate(t, "p1")
	f.state.SetPlugins([]string{"a"}, []string{"a"})

	calls := 0
	eng.SetSortFunc(func(p []string) ([]string, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("disk full")
		}
		return p, nil
	})

	first := f.svc.RequestSort(context.Background(), true)
	second := f.svc.RequestSort(context.Background(), true)

	assert.Error(t, await(t, first).Err)
	assert.True(t, await(t, second).Sorted())
}

func TestSort_UsesSortIDs(t *testing.T) {
	trace := testutil.NewTrace()
	host := testutil.NewRecordingHost(trace)
	state := testutil.NewFakeState()
	factory := testutil.NewFakeFactory(trace)

	svc := autosort.NewService(host, state, factory.New, autosort.Options{
		Layout: testutil.DirLayout{Root: t.TempDir()},
		Stat:   testutil.NewFakeFS().Stat,
		IDs:    autosort.NewFixedGenerator("sort-1", "sort-2"),
	})

	state.SetActive("p1")
	await(t, svc.ProfileActivated(context.Background(), "p1"))
	state.SetPlugins([]string{"a"}, []string{"a"})

	assert.Equal(t, "sort-1", await(t, svc.RequestSort(context.Background(), true)).ID)
	assert.Equal(t, "sort-2", await(t, svc.RequestSort(context.Background(), true)).ID)
}
