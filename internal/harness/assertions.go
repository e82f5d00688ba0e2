package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/autosort/internal/testutil"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string           // Assertion type for categorization
	Expected string           // Human-readable expected outcome
	Actual   string           // Human-readable actual outcome
	Trace    []testutil.Event // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", event)
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertLoadOrder:
		return assertLoadOrder(result, a)
	case AssertNotification:
		return assertNotification(result, a)
	case AssertOutcome:
		return assertOutcome(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// matches reports whether e has kind and its detail contains detail.
func matches(e testutil.Event, kind, detail string) bool {
	return e.Kind == kind && strings.Contains(e.Detail, detail)
}

// assertTraceContains checks if the trace contains an event of the kind
// whose detail contains the given substring.
func assertTraceContains(trace []testutil.Event, a Assertion) error {
	for _, event := range trace {
		if matches(event, a.Kind, a.Detail) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event %s with detail %q", a.Kind, a.Detail),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that events appear in the specified order.
// Each entry is "kind" or "kind detail-substring". Entries don't need to
// be consecutive, and each one is matched after the previous match.
func assertTraceOrder(trace []testutil.Event, a Assertion) error {
	pos := 0
	for _, want := range a.Events {
		kind, detail, _ := strings.Cut(want, " ")

		found := -1
		for i := pos; i < len(trace); i++ {
			if matches(trace[i], kind, detail) {
				found = i
				break
			}
		}
		if found == -1 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual:   fmt.Sprintf("no %q after position %d", want, pos),
				Trace:    trace,
			}
		}
		pos = found + 1
	}
	return nil
}

// assertTraceCount checks if the kind appears exactly the specified number
// of times, optionally restricted by detail.
func assertTraceCount(trace []testutil.Event, a Assertion) error {
	count := 0
	for _, event := range trace {
		if matches(event, a.Kind, a.Detail) {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertLoadOrder checks the last published order.
func assertLoadOrder(result *Result, a Assertion) error {
	var last []string
	if n := len(result.LoadOrders); n > 0 {
		last = result.LoadOrders[n-1]
	}
	if len(last) == 0 && len(a.Expect) == 0 {
		return nil
	}
	if !slices.Equal(last, a.Expect) {
		actual := "nothing published"
		if last != nil {
			actual = testutil.JoinNames(last)
		}
		return &AssertionError{
			Type:     AssertLoadOrder,
			Expected: testutil.JoinNames(a.Expect),
			Actual:   actual,
		}
	}
	return nil
}

// assertNotification checks that a notification with the message (and
// level, when given) was published.
func assertNotification(result *Result, a Assertion) error {
	var seen []string
	for _, n := range result.Notifications {
		if n.Message == a.Message && (a.Level == "" || string(n.Type) == a.Level) {
			return nil
		}
		seen = append(seen, fmt.Sprintf("%s %q", n.Type, n.Message))
	}

	expected := fmt.Sprintf("%q", a.Message)
	if a.Level != "" {
		expected = a.Level + " " + expected
	}
	return &AssertionError{
		Type:     AssertNotification,
		Expected: expected,
		Actual:   fmt.Sprintf("notifications: %v", seen),
	}
}

// assertOutcome checks how the n-th sort ended.
func assertOutcome(result *Result, a Assertion) error {
	if a.Sort > len(result.Outcomes) {
		return &AssertionError{
			Type:     AssertOutcome,
			Expected: fmt.Sprintf("sort %d %s", a.Sort, a.Result),
			Actual:   fmt.Sprintf("only %d sorts ran", len(result.Outcomes)),
		}
	}

	out := result.Outcomes[a.Sort-1]
	if outcomeResult(out) != a.Result {
		return &AssertionError{
			Type:     AssertOutcome,
			Expected: fmt.Sprintf("sort %d %s", a.Sort, a.Result),
			Actual:   describeOutcome(out),
		}
	}
	return nil
}
