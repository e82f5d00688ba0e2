// Package testutil provides test doubles for the autosort core: a
// recording host, scripted state, a fake engine and factory, and a fake
// userlist file system. All of them write into a shared Trace so tests can
// assert on the relative order of host effects and engine calls.
package testutil

import (
	"fmt"
	"strings"
	"sync"
)

// Event kinds written to a Trace.
const (
	KindActivityStarted = "activity_started"
	KindActivityStopped = "activity_stopped"
	KindLoadOrder       = "load_order"
	KindNotification    = "notification"
	KindDialog          = "dialog"
	KindEngineCreated   = "engine_created"
	KindEngineFailed    = "engine_failed"
	KindUpdateStarted   = "update_started"
	KindUpdateFinished  = "update_finished"
	KindLoadLists       = "load_lists"
	KindSortStarted     = "sort_started"
	KindSortFinished    = "sort_finished"
	KindStep            = "step"
)

// Event is one entry of a Trace. Seq starts at 1 and increases by one.
type Event struct {
	Seq    int64
	Kind   string
	Detail string
}

// String renders e as "seq kind detail".
func (e Event) String() string {
	if e.Detail == "" {
		return fmt.Sprintf("%03d %s", e.Seq, e.Kind)
	}
	return fmt.Sprintf("%03d %s %s", e.Seq, e.Kind, e.Detail)
}

// Trace is an append-only, ordered event log.
//
// Thread-safety: all methods are safe for concurrent use. Seq values are
// assigned under the same lock as the append, so Seq order is log order.
type Trace struct {
	mu     sync.Mutex
	seq    int64
	events []Event
}

// NewTrace creates an empty trace.
func NewTrace() *Trace {
	return &Trace{}
}

// Add appends an event and returns its seq. A nil Trace discards events.
func (t *Trace) Add(kind, detail string) int64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.events = append(t.events, Event{Seq: t.seq, Kind: kind, Detail: detail})
	return t.seq
}

// Events returns a copy of the log.
func (t *Trace) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Event(nil), t.events...)
}

// Kinds returns the kind of every event, in order.
func (t *Trace) Kinds() []string {
	events := t.Events()
	kinds := make([]string, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}

// Filter returns the events of the given kinds, in order.
func (t *Trace) Filter(kinds ...string) []Event {
	want := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var out []Event
	for _, e := range t.Events() {
		if want[e.Kind] {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many events have kind.
func (t *Trace) Count(kind string) int {
	return len(t.Filter(kind))
}

// Reset clears the log and restarts seq at 1.
func (t *Trace) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq = 0
	t.events = nil
}

// Text renders the log one event per line, each line newline-terminated.
func (t *Trace) Text() string {
	var b strings.Builder
	for _, e := range t.Events() {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// JoinNames renders a plugin list the way trace details show it.
func JoinNames(names []string) string {
	return "[" + strings.Join(names, " ") + "]"
}
