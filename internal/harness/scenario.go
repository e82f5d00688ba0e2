package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// Scenarios drive the sort service through a sequence of host signals
// against scripted engines and assert on the resulting trace.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Games lists the supported game ids. If empty, every game named in
	// Engines is supported.
	Games []string `yaml:"games,omitempty"`

	// AutoSort is the initial auto-sort setting.
	AutoSort bool `yaml:"auto_sort,omitempty"`

	// Retries is the masterlist update retry count.
	Retries int `yaml:"retries,omitempty"`

	// Engines scripts the engine of each game.
	Engines map[string]EngineScript `yaml:"engines,omitempty"`

	// Steps are host signals, executed in order. Each step waits for the
	// work it triggers to settle before the next one runs.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and outcomes.
	// Supported types: trace_contains, trace_order, trace_count,
	// load_order, notification, outcome
	Assertions []Assertion `yaml:"assertions"`
}

// EngineScript configures the fake engine of one game.
type EngineScript struct {
	// InitError makes engine construction fail with this message.
	InitError string `yaml:"init_error,omitempty"`

	// UpdateError makes masterlist updates fail with this message.
	UpdateError string `yaml:"update_error,omitempty"`

	// UpdateFailures limits how many updates fail; 0 or negative fails
	// every attempt.
	UpdateFailures int `yaml:"update_failures,omitempty"`

	// LoadError makes list loading fail with this message.
	LoadError string `yaml:"load_error,omitempty"`

	// SortError makes every sort fail with this message.
	SortError string `yaml:"sort_error,omitempty"`

	// SortResult is returned by every sort. Empty returns the input.
	SortResult []string `yaml:"sort_result,omitempty"`

	// Metadata maps plugin names to their message texts.
	Metadata map[string][]string `yaml:"metadata,omitempty"`
}

// Step is one host signal. Exactly one field must be set.
type Step struct {
	// Activate switches the active profile to a game.
	Activate string `yaml:"activate,omitempty"`

	// Plugins replaces the load order and enabled set.
	Plugins *PluginsStep `yaml:"plugins,omitempty"`

	// Sort requests a sort.
	Sort *SortStep `yaml:"sort,omitempty"`

	// AutoSort toggles the auto-sort setting.
	AutoSort *bool `yaml:"auto_sort,omitempty"`

	// TouchUserlist sets the userlist modification time of a game.
	TouchUserlist *TouchStep `yaml:"touch_userlist,omitempty"`

	// RemoveUserlist deletes the userlist of a game.
	RemoveUserlist string `yaml:"remove_userlist,omitempty"`

	// Metadata queries metadata for plugin names.
	Metadata []string `yaml:"metadata,omitempty"`
}

// PluginsStep sets the plugin state.
type PluginsStep struct {
	LoadOrder []string `yaml:"load_order"`
	Enabled   []string `yaml:"enabled"`
}

// SortStep requests a sort.
type SortStep struct {
	// Manual requests bypass the auto-sort setting.
	Manual bool `yaml:"manual"`
}

// TouchStep sets a userlist mtime, in seconds from a fixed epoch.
type TouchStep struct {
	Game  string `yaml:"game"`
	Mtime int64  `yaml:"mtime"`
}

// Assertion validates trace or outcomes.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event of Kind (with Detail substring) exists
	// - "trace_order": Events ("kind" or "kind detail") appear in order
	// - "trace_count": Kind appears exactly Count times
	// - "load_order": the last published order equals Expect
	// - "notification": a notification with Message (and Level) exists
	// - "outcome": the Sort-th sort (1-based) ended with Result
	Type string `yaml:"type"`

	Kind   string   `yaml:"kind,omitempty"`
	Detail string   `yaml:"detail,omitempty"`
	Count  int      `yaml:"count,omitempty"`
	Events []string `yaml:"events,omitempty"`
	Expect []string `yaml:"expect,omitempty"`

	Level   string `yaml:"level,omitempty"`
	Message string `yaml:"message,omitempty"`

	Sort   int    `yaml:"sort,omitempty"`
	Result string `yaml:"result,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertLoadOrder     = "load_order"
	AssertNotification  = "notification"
	AssertOutcome       = "outcome"
)

// Outcome results used by outcome assertions.
const (
	ResultSorted  = "sorted"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Retries < 0 {
		return fmt.Errorf("retries must be non-negative")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks that exactly one signal is set.
func validateStep(index int, st *Step) error {
	set := 0
	if st.Activate != "" {
		set++
	}
	if st.Plugins != nil {
		set++
	}
	if st.Sort != nil {
		set++
	}
	if st.AutoSort != nil {
		set++
	}
	if st.TouchUserlist != nil {
		set++
		if st.TouchUserlist.Game == "" {
			return fmt.Errorf("steps[%d]: touch_userlist needs a game", index)
		}
	}
	if st.RemoveUserlist != "" {
		set++
	}
	if st.Metadata != nil {
		set++
	}

	switch set {
	case 0:
		return fmt.Errorf("steps[%d]: no signal set", index)
	case 1:
		return nil
	default:
		return fmt.Errorf("steps[%d]: exactly one signal per step, got %d", index, set)
	}
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertLoadOrder:
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for load_order", index)
		}
	case AssertNotification:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for notification", index)
		}
	case AssertOutcome:
		if a.Sort < 1 {
			return fmt.Errorf("assertions[%d]: sort must be 1 or greater for outcome", index)
		}
		switch a.Result {
		case ResultSorted, ResultSkipped, ResultFailed:
		default:
			return fmt.Errorf("assertions[%d]: unknown outcome result %q", index, a.Result)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
