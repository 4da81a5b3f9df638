package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/authsync/internal/model"
)

// TraceSnapshot is the golden-file form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		trace[i] = map[string]any{
			"seq":    ev.Seq,
			"kind":   ev.Kind,
			"detail": ev.Detail,
		}
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
	}
}

// Snapshot renders a result's trace as canonical JSON.
func Snapshot(name string, result *Result) ([]byte, error) {
	snap := TraceSnapshot{ScenarioName: name, Trace: result.Trace}
	return model.MarshalCanonical(snap.toCanonicalMap())
}

// RunWithGolden runs a scenario and compares its trace with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
