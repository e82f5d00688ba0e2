package autosort

import (
	"strings"

	"github.com/roach88/autosort/internal/metrics"
	"github.com/roach88/autosort/internal/rules"
)

// FailureKind is the category of a failed sort.
type FailureKind int

const (
	// FailureGeneric is the catch-all.
	FailureGeneric FailureKind = iota
	// FailureCyclic means the rules contain a load-after cycle.
	FailureCyclic
	// FailureInvalidEntry means the engine rejected one of the plugins.
	FailureInvalidEntry
)

// String returns the metrics label of k.
func (k FailureKind) String() string {
	switch k {
	case FailureCyclic:
		return metrics.OutcomeCyclic
	case FailureInvalidEntry:
		return metrics.OutcomeInvalidEntry
	default:
		return metrics.OutcomeGeneric
	}
}

// Classification is the result of Classify.
type Classification struct {
	Kind FailureKind

	// Plugin names the rejected entry for FailureInvalidEntry.
	Plugin string

	// Message is the engine message the decision was based on.
	Message string
}

// Classify maps a sort failure to its category by looking at the engine's
// message. No structured codes are assumed.
func Classify(err error) Classification {
	msg := rules.EngineMessage(err)
	switch {
	case strings.HasPrefix(msg, rules.CyclicMarker):
		return Classification{Kind: FailureCyclic, Message: msg}
	case strings.HasSuffix(msg, rules.InvalidPluginMarker):
		plugin := strings.TrimSpace(strings.TrimSuffix(msg, rules.InvalidPluginMarker))
		return Classification{Kind: FailureInvalidEntry, Plugin: plugin, Message: msg}
	default:
		return Classification{Kind: FailureGeneric, Message: msg}
	}
}

// cycleExplanation is the detail dialog body for cyclic rules, in bbcode.
const cycleExplanation = "LOOT reported a cyclic interaction between rules.<br />" +
	"In the simplest case this is something like " +
	"[i]\"A needs to load after B\"[/i] and [i]\"B needs to load after A\"[/i] " +
	"but it can be arbitrarily complicated: [i]\"A after B after C after A\"[/i].<br />" +
	"This conflict involves at least one custom rule.<br />" +
	"Please read the LOOT message and change your custom rules to resolve the cycle: "

// CycleDialog builds the on-demand detail dialog for a cyclic failure.
func CycleDialog(message string) Dialog {
	return Dialog{
		Kind:    "info",
		Title:   "Cyclic interaction",
		Body:    cycleExplanation + "[quote]" + message + "[/quote]",
		Buttons: []string{"Close"},
	}
}

// Report publishes the notification that matches c.
func Report(host Host, c Classification, err error) {
	switch c.Kind {
	case FailureCyclic:
		message := c.Message
		host.Notify(Notification{
			Type:       NotifyWarning,
			Message:    "Plugins not sorted because of cyclic rules",
			Err:        err,
			Persistent: true,
			Actions: []Action{{
				Title: "More",
				Run: func(dismiss func()) {
					host.ShowDialog(CycleDialog(message))
				},
			}},
		})

	case FailureInvalidEntry:
		details := map[string]string{}
		if c.Plugin != "" {
			details["plugin"] = c.Plugin
		}
		host.Notify(Notification{
			ID:      NotificationSortFailed,
			Type:    NotifyWarning,
			Message: "Not sorted because: " + c.Message,
			Details: details,
		})

	default:
		host.Notify(Notification{
			ID:      NotificationSortFailed,
			Type:    NotifyError,
			Message: "LOOT operation failed",
			Err:     err,
		})
	}
}
