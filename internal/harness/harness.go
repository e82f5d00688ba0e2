package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roach88/autosort/internal/autosort"
	"github.com/roach88/autosort/internal/rules"
	"github.com/roach88/autosort/internal/testutil"
)

// stepTimeout bounds how long one step may take to settle.
const stepTimeout = 10 * time.Second

// mtimeEpoch is the zero point of TouchStep mtimes.
var mtimeEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness is the test execution engine.
// It runs scenarios against scripted engines with sequential sort ids, so
// traces are identical across runs.
type Harness struct {
	trace   *testutil.Trace
	host    *testutil.RecordingHost
	state   *testutil.FakeState
	factory *testutil.FakeFactory
	fs      *testutil.FakeFS
	layout  testutil.DirLayout
	svc     *autosort.Service
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh temporary directory for isolation.
//
// Execution flow:
// 1. Script the engines and build the service
// 2. Execute steps, waiting for each one to settle
// 3. Evaluate assertions against the trace and outcomes
func Run(scenario *Scenario) (*Result, error) {
	root, err := os.MkdirTemp("", "autosort-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(root)

	h := newHarness(scenario, root)
	result := NewResult()

	ctx := context.Background()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	result.Trace = h.trace.Events()
	result.LoadOrders = h.host.LoadOrders()
	result.Notifications = h.host.Notifications()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	slog.Debug("scenario finished", "name", scenario.Name, "events", len(result.Trace), "pass", result.Pass)
	return result, nil
}

func newHarness(s *Scenario, root string) *Harness {
	h := &Harness{
		trace:  testutil.NewTrace(),
		state:  testutil.NewFakeState(),
		fs:     testutil.NewFakeFS(),
		layout: testutil.DirLayout{Root: root},
	}
	h.host = testutil.NewRecordingHost(h.trace)
	h.factory = testutil.NewFakeFactory(h.trace)
	h.state.SetAutoSort(s.AutoSort)

	// Sorted for a stable setup order; scripting does not touch the trace.
	games := make([]string, 0, len(s.Engines))
	for game := range s.Engines {
		games = append(games, game)
	}
	sort.Strings(games)
	for _, game := range games {
		h.script(game, s.Engines[game])
	}

	supported := s.Games
	if len(supported) == 0 {
		supported = games
	}
	set := make(map[string]bool, len(supported))
	for _, g := range supported {
		set[g] = true
	}

	h.svc = autosort.NewService(h.host, h.state, h.factory.New, autosort.Options{
		Layout:     h.layout,
		Supported:  func(game string) bool { return set[game] },
		Masterlist: autosort.MasterlistSource{Retries: s.Retries},
		Stat:       h.fs.Stat,
		IDs:        &sequentialIDs{},
	})
	return h
}

func (h *Harness) script(game string, es EngineScript) {
	if es.InitError != "" {
		h.factory.Fail(game, errors.New(es.InitError))
		return
	}

	eng := h.factory.Engine(game)
	if es.UpdateError != "" {
		times := es.UpdateFailures
		if times <= 0 {
			times = -1
		}
		eng.SetUpdateError(errors.New(es.UpdateError), times)
	}
	if es.LoadError != "" {
		eng.SetLoadError(errors.New(es.LoadError))
	}
	switch {
	case es.SortError != "":
		eng.SetSortError(errors.New(es.SortError))
	case len(es.SortResult) > 0:
		eng.SetSortResult(es.SortResult)
	}
	for name, msgs := range es.Metadata {
		md := rules.Metadata{}
		for _, m := range msgs {
			md.Messages = append(md.Messages, rules.Message{Type: "say", Content: m})
		}
		eng.SetMetadata(name, md)
	}
}

func (h *Harness) execute(ctx context.Context, step Step, result *Result) error {
	ctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	switch {
	case step.Activate != "":
		h.trace.Add(testutil.KindStep, "activate "+step.Activate)
		h.state.SetActive(step.Activate)
		if _, err := h.svc.ProfileActivated(ctx, step.Activate).Wait(ctx); err != nil {
			return fmt.Errorf("activate %s: %w", step.Activate, err)
		}

	case step.Plugins != nil:
		h.trace.Add(testutil.KindStep, fmt.Sprintf("plugins %s enabled=%s",
			testutil.JoinNames(step.Plugins.LoadOrder), testutil.JoinNames(step.Plugins.Enabled)))
		h.state.SetPlugins(step.Plugins.LoadOrder, step.Plugins.Enabled)

	case step.Sort != nil:
		h.trace.Add(testutil.KindStep, fmt.Sprintf("sort manual=%t", step.Sort.Manual))
		out, err := h.svc.RequestSort(ctx, step.Sort.Manual).Wait(ctx)
		if err != nil {
			return fmt.Errorf("sort: %w", err)
		}
		result.Outcomes = append(result.Outcomes, out)

	case step.AutoSort != nil:
		h.trace.Add(testutil.KindStep, fmt.Sprintf("auto_sort %t", *step.AutoSort))
		h.state.SetAutoSort(*step.AutoSort)

	case step.TouchUserlist != nil:
		t := step.TouchUserlist
		h.trace.Add(testutil.KindStep, fmt.Sprintf("touch_userlist %s mtime=%d", t.Game, t.Mtime))
		h.fs.Touch(h.layout.UserlistPath(t.Game), mtimeEpoch.Add(time.Duration(t.Mtime)*time.Second))

	case step.RemoveUserlist != "":
		h.trace.Add(testutil.KindStep, "remove_userlist "+step.RemoveUserlist)
		h.fs.Remove(h.layout.UserlistPath(step.RemoveUserlist))

	case step.Metadata != nil:
		h.trace.Add(testutil.KindStep, "metadata "+testutil.JoinNames(step.Metadata))
		md, err := h.svc.Metadata(ctx, step.Metadata)
		if err != nil {
			return fmt.Errorf("metadata: %w", err)
		}
		result.Metadata = append(result.Metadata, md)

	default:
		return fmt.Errorf("no signal set")
	}
	return nil
}

// sequentialIDs hands out sort-1, sort-2, ...
type sequentialIDs struct {
	mu sync.Mutex
	n  int
}

func (g *sequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("sort-%d", g.n)
}

// outcomeResult names how a sort ended, for outcome assertions.
func outcomeResult(o autosort.SortOutcome) string {
	switch {
	case o.Err != nil:
		return ResultFailed
	case o.Skipped:
		return ResultSkipped
	default:
		return ResultSorted
	}
}

// describeOutcome renders o for assertion messages and golden files.
func describeOutcome(o autosort.SortOutcome) string {
	var b strings.Builder
	b.WriteString(outcomeResult(o))
	switch {
	case o.Err != nil:
		fmt.Fprintf(&b, " kind=%s", o.Failure.Kind)
	case o.Skipped:
		fmt.Fprintf(&b, " reason=%q", o.Reason)
	default:
		b.WriteString(" " + testutil.JoinNames(o.Order))
	}
	return b.String()
}
