package harness

import (
	"github.com/roach88/autosort/internal/autosort"
	"github.com/roach88/autosort/internal/rules"
	"github.com/roach88/autosort/internal/testutil"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every assertion holds.
	Pass bool `json:"pass"`

	// Trace contains every host and engine event in order.
	Trace []testutil.Event `json:"trace"`

	// Outcomes holds the outcome of each sort step, in step order.
	Outcomes []autosort.SortOutcome `json:"-"`

	// LoadOrders holds every published load order.
	LoadOrders [][]string `json:"load_orders"`

	// Notifications holds every notification.
	Notifications []autosort.Notification `json:"-"`

	// Metadata holds the answer of each metadata step.
	Metadata []map[string]rules.Metadata `json:"-"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Trace:      []testutil.Event{},
		LoadOrders: [][]string{},
		Errors:     []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
