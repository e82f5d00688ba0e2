package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders a result as the text stored in golden files: the
// scenario name, the full trace, then one line per sort outcome.
func Snapshot(name string, result *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	b.WriteString("trace:\n")
	for _, e := range result.Trace {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	b.WriteString("outcomes:\n")
	for i, o := range result.Outcomes {
		fmt.Fprintf(&b, "%d %s\n", i+1, describeOutcome(o))
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares the given result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Snapshot(scenarioName, result))
}
