package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/lifeline/internal/canon"
)

// TraceSnapshot captures the trace of one drill run.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	DrillName string       `json:"drill_name"`
	State     string       `json:"state"`
	Trace     []TraceEvent `json:"trace"`
}

// toCanonicalMap converts the snapshot to plain maps, which is what
// canon.Marshal accepts.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		traceList[i] = event.fields()
	}
	return map[string]any{
		"drill_name": s.DrillName,
		"state":      s.State,
		"trace":      traceList,
	}
}

// Marshal renders the snapshot as canonical JSON.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	return canon.Marshal(s.toCanonicalMap())
}

// RunWithGolden runs a drill and compares its trace against
// testdata/golden/{drill.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check Pass. Test failure (via goldie)
// occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, drill *Drill) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), drill, Options{})
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, drill.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file
// without re-running the drill.
func AssertGolden(t *testing.T, drillName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		DrillName: drillName,
		State:     string(result.State),
		Trace:     result.Trace,
	}
	traceJSON, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, drillName, traceJSON)
	return nil
}
