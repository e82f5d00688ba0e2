package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/autosort/internal/autosort"
)

// RecordingHost is an autosort.Host that keeps everything it is given.
type RecordingHost struct {
	trace *Trace

	mu            sync.Mutex
	activities    int
	loadOrders    [][]string
	notifications []autosort.Notification
	dialogs       []autosort.Dialog
}

var _ autosort.Host = (*RecordingHost)(nil)

// NewRecordingHost creates a host writing into trace (which may be nil).
func NewRecordingHost(trace *Trace) *RecordingHost {
	return &RecordingHost{trace: trace}
}

func (h *RecordingHost) StartActivity(group, id string) {
	h.mu.Lock()
	h.activities++
	h.mu.Unlock()
	h.trace.Add(KindActivityStarted, group+"/"+id)
}

func (h *RecordingHost) StopActivity(group, id string) {
	h.mu.Lock()
	h.activities--
	h.mu.Unlock()
	h.trace.Add(KindActivityStopped, group+"/"+id)
}

func (h *RecordingHost) SetLoadOrder(order []string) {
	h.mu.Lock()
	h.loadOrders = append(h.loadOrders, append([]string(nil), order...))
	h.mu.Unlock()
	h.trace.Add(KindLoadOrder, JoinNames(order))
}

func (h *RecordingHost) Notify(n autosort.Notification) {
	h.mu.Lock()
	h.notifications = append(h.notifications, n)
	h.mu.Unlock()

	detail := fmt.Sprintf("%s %q", n.Type, n.Message)
	if n.ID != "" {
		detail = n.ID + " " + detail
	}
	h.trace.Add(KindNotification, detail)
}

func (h *RecordingHost) ShowDialog(d autosort.Dialog) {
	h.mu.Lock()
	h.dialogs = append(h.dialogs, d)
	h.mu.Unlock()
	h.trace.Add(KindDialog, fmt.Sprintf("%s %q", d.Kind, d.Title))
}

// OpenActivities is the number of started but not yet stopped activities.
func (h *RecordingHost) OpenActivities() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.activities
}

// LoadOrders returns every published load order.
func (h *RecordingHost) LoadOrders() [][]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]string(nil), h.loadOrders...)
}

// LastLoadOrder returns the most recent published order, nil if none.
func (h *RecordingHost) LastLoadOrder() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.loadOrders) == 0 {
		return nil
	}
	return h.loadOrders[len(h.loadOrders)-1]
}

// Notifications returns every notification received.
func (h *RecordingHost) Notifications() []autosort.Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]autosort.Notification(nil), h.notifications...)
}

// Dialogs returns every dialog shown.
func (h *RecordingHost) Dialogs() []autosort.Dialog {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]autosort.Dialog(nil), h.dialogs...)
}
