package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/autosort/internal/rules"
)

// LoadCall records one LoadLists call.
type LoadCall struct {
	Masterlist string
	Userlist   string
}

// UpdateCall records one UpdateMasterlist call.
type UpdateCall struct {
	Path   string
	URL    string
	Branch string
}

// FakeEngine is a scripted rules.Engine. By default Sort returns its input
// unchanged and every other call succeeds.
type FakeEngine struct {
	game  string
	trace *Trace

	mu             sync.Mutex
	sortFunc       func(plugins []string) ([]string, error)
	loadErr        error
	updateErr      error
	updateFailures int // remaining failing attempts; negative fails forever
	updated        bool
	metadata       map[string]rules.Metadata
	sortGate       chan struct{}
	updateGate     chan struct{}
	sortCalls      [][]string
	loadCalls      []LoadCall
	updateCalls    []UpdateCall
	inflight       int
	maxInflight    int
}

var _ rules.Engine = (*FakeEngine)(nil)

// NewFakeEngine creates an engine for game writing into trace.
func NewFakeEngine(game string, trace *Trace) *FakeEngine {
	return &FakeEngine{
		game:     game,
		trace:    trace,
		metadata: make(map[string]rules.Metadata),
	}
}

// SetSortResult makes every Sort return order.
func (e *FakeEngine) SetSortResult(order []string) {
	e.SetSortFunc(func([]string) ([]string, error) {
		return append([]string(nil), order...), nil
	})
}

// SetSortError makes every Sort fail with err.
func (e *FakeEngine) SetSortError(err error) {
	e.SetSortFunc(func([]string) ([]string, error) { return nil, err })
}

// SetSortFunc replaces the sort behaviour.
func (e *FakeEngine) SetSortFunc(fn func(plugins []string) ([]string, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sortFunc = fn
}

// SetLoadError makes LoadLists fail with err (nil to succeed again).
func (e *FakeEngine) SetLoadError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loadErr = err
}

// SetUpdateError makes the next times UpdateMasterlist calls fail with err.
// A negative times fails forever.
func (e *FakeEngine) SetUpdateError(err error, times int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updateErr = err
	e.updateFailures = times
}

// SetMetadata scripts the metadata returned for name.
func (e *FakeEngine) SetMetadata(name string, md rules.Metadata) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metadata[name] = md
}

// BlockSorts makes every Sort wait for ReleaseSort.
func (e *FakeEngine) BlockSorts() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sortGate = make(chan struct{})
}

// ReleaseSort lets one blocked Sort proceed. It blocks until a Sort is
// waiting, so after it returns the released Sort is known to be running.
func (e *FakeEngine) ReleaseSort() {
	e.mu.Lock()
	gate := e.sortGate
	e.mu.Unlock()
	gate <- struct{}{}
}

// BlockUpdates makes every UpdateMasterlist wait for ReleaseUpdate.
func (e *FakeEngine) BlockUpdates() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updateGate = make(chan struct{})
}

// ReleaseUpdate lets one blocked UpdateMasterlist proceed.
func (e *FakeEngine) ReleaseUpdate() {
	e.mu.Lock()
	gate := e.updateGate
	e.mu.Unlock()
	gate <- struct{}{}
}

func (e *FakeEngine) Sort(ctx context.Context, plugins []string) ([]string, error) {
	e.mu.Lock()
	e.sortCalls = append(e.sortCalls, append([]string(nil), plugins...))
	e.inflight++
	if e.inflight > e.maxInflight {
		e.maxInflight = e.inflight
	}
	gate := e.sortGate
	fn := e.sortFunc
	e.mu.Unlock()

	e.trace.Add(KindSortStarted, e.game+" "+JoinNames(plugins))

	defer func() {
		e.mu.Lock()
		e.inflight--
		e.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var (
		out []string
		err error
	)
	if fn != nil {
		out, err = fn(plugins)
	} else {
		out = append([]string(nil), plugins...)
	}

	if err != nil {
		e.trace.Add(KindSortFinished, e.game+" error")
		return nil, err
	}
	e.trace.Add(KindSortFinished, e.game+" "+JoinNames(out))
	return out, nil
}

func (e *FakeEngine) LoadLists(ctx context.Context, masterlistPath, userlistPath string) error {
	e.mu.Lock()
	e.loadCalls = append(e.loadCalls, LoadCall{Masterlist: masterlistPath, Userlist: userlistPath})
	err := e.loadErr
	e.mu.Unlock()

	detail := e.game + " userlist=none"
	if userlistPath != "" {
		detail = e.game + " userlist=present"
	}
	if err != nil {
		detail += " error"
	}
	e.trace.Add(KindLoadLists, detail)
	return err
}

func (e *FakeEngine) UpdateMasterlist(ctx context.Context, masterlistPath, remoteURL, branch string) (bool, error) {
	e.mu.Lock()
	e.updateCalls = append(e.updateCalls, UpdateCall{Path: masterlistPath, URL: remoteURL, Branch: branch})
	gate := e.updateGate
	e.mu.Unlock()

	e.trace.Add(KindUpdateStarted, e.game)

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	e.mu.Lock()
	var err error
	if e.updateErr != nil && e.updateFailures != 0 {
		err = e.updateErr
		if e.updateFailures > 0 {
			e.updateFailures--
		}
	}
	updated := err == nil && !e.updated
	if err == nil {
		e.updated = true
	}
	e.mu.Unlock()

	if err != nil {
		e.trace.Add(KindUpdateFinished, e.game+" error")
		return false, err
	}
	e.trace.Add(KindUpdateFinished, fmt.Sprintf("%s updated=%t", e.game, updated))
	return updated, nil
}

func (e *FakeEngine) Metadata(plugin string) rules.Metadata {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metadata[plugin]
}

// SortCalls returns the plugin lists passed to Sort, in call order.
func (e *FakeEngine) SortCalls() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]string(nil), e.sortCalls...)
}

// LoadCalls returns every LoadLists call.
func (e *FakeEngine) LoadCalls() []LoadCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]LoadCall(nil), e.loadCalls...)
}

// UpdateCalls returns every UpdateMasterlist call.
func (e *FakeEngine) UpdateCalls() []UpdateCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]UpdateCall(nil), e.updateCalls...)
}

// MaxConcurrentSorts is the highest number of Sort calls seen in flight at
// the same time.
func (e *FakeEngine) MaxConcurrentSorts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxInflight
}

// FakeFactory hands out FakeEngines, one per game, and can be told to fail
// construction for specific games.
type FakeFactory struct {
	trace *Trace

	mu       sync.Mutex
	engines  map[string]*FakeEngine
	failures map[string]error
	created  []string
}

// NewFakeFactory creates a factory writing into trace.
func NewFakeFactory(trace *Trace) *FakeFactory {
	return &FakeFactory{
		trace:    trace,
		engines:  make(map[string]*FakeEngine),
		failures: make(map[string]error),
	}
}

// Engine returns the engine that New will hand out for game, creating it
// if needed, so tests can script it before activation.
func (f *FakeFactory) Engine(game string) *FakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.engines[game]
	if !ok {
		e = NewFakeEngine(game, f.trace)
		f.engines[game] = e
	}
	return e
}

// Fail makes construction for game fail with err.
func (f *FakeFactory) Fail(game string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[game] = err
}

// New implements rules.Factory.
func (f *FakeFactory) New(game, gamePath, localPath string) (rules.Engine, error) {
	f.mu.Lock()
	err := f.failures[game]
	f.created = append(f.created, game)
	f.mu.Unlock()

	if err != nil {
		f.trace.Add(KindEngineFailed, game)
		return nil, err
	}
	f.trace.Add(KindEngineCreated, game)
	return f.Engine(game), nil
}

// Created lists the games New was called for, in call order.
func (f *FakeFactory) Created() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}
