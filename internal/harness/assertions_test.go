package harness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lifeline/internal/record"
	"github.com/roach88/lifeline/internal/store"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Action: ActionIssue, EmergencyID: "EMG1"},
		{Seq: 2, Action: "start_scan", From: "idle", To: "scanning"},
		{Seq: 3, Action: "reject", From: "scanning", To: "scanning", Kind: "MALFORMED_PAYLOAD"},
		{Seq: 4, Action: "receive", From: "scanning", To: "record_received", EmergencyID: "EMG1", Status: "valid"},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "receive"}))
	assert.NoError(t, assertTraceContains(trace, Assertion{
		Action: "receive",
		Fields: map[string]any{"emergency_id": "EMG1", "status": "valid", "seq": 4},
	}))

	err := assertTraceContains(trace, Assertion{Action: "receive", Fields: map[string]any{"status": "expired"}})
	require.Error(t, err)
	var assertErr *AssertionError
	require.True(t, errors.As(err, &assertErr))
	assert.Equal(t, AssertTraceContains, assertErr.Type)
	assert.Equal(t, "not found in trace", assertErr.Actual)
	assert.Contains(t, err.Error(), "[3] reject scanning -> scanning (MALFORMED_PAYLOAD)")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"issue", "receive"}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"start_scan", "reject", "receive"}}))

	err := assertTraceOrder(trace, Assertion{Actions: []string{"receive", "start_scan"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no start_scan after earlier actions")

	err = assertTraceOrder(trace, Assertion{Actions: []string{"start_scan", "start_scan"}})
	assert.Error(t, err, "a repeated action needs a second occurrence")

	err = assertTraceOrder(trace, Assertion{Actions: []string{"resolve"}})
	assert.Error(t, err)
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "reject", Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "resolve", Count: 0}))

	err := assertTraceCount(trace, Assertion{Action: "reject", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 2 occurrences of reject")
	assert.Contains(t, err.Error(), "Actual: 1 occurrences")
}

func TestStateValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		expected any
		actual   any
		want     bool
	}{
		{"both nil", nil, nil, true},
		{"nil expected", nil, "x", false},
		{"string", "active", "active", true},
		{"string from bytes", "active", []byte("active"), true},
		{"string mismatch", "active", "resolved", false},
		{"int vs int64", 3, int64(3), true},
		{"int vs string", 3, "3", false},
		{"bool vs int64", true, int64(1), true},
		{"bool false vs int64", false, int64(0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stateValuesEqual(tt.expected, tt.actual))
		})
	}
}

func TestBuildWhereClause(t *testing.T) {
	sql, args, err := buildWhereClause(map[string]any{"status": "active", "emergency_id": "EMG1"})
	require.NoError(t, err)
	assert.Equal(t, "emergency_id = ? AND status = ?", sql)
	assert.Equal(t, []any{"EMG1", "active"}, args)

	_, _, err = buildWhereClause(map[string]any{"status; DROP TABLE incidents": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid column name")
}

func TestAssertFinalState(t *testing.T) {
	st, err := store.Open(store.MemoryPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	now := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	rec := record.DemoRecord(now, time.Hour)
	_, err = st.CreateIncident(ctx, rec, "fp", "payload")
	require.NoError(t, err)

	where := map[string]any{"emergency_id": "DEMO123"}

	assert.NoError(t, assertFinalState(ctx, st, Assertion{
		Table:  "incidents",
		Where:  where,
		Expect: map[string]any{"status": "active", "expires_at": "2026-10-16T10:30:00.000Z"},
	}))

	err = assertFinalState(ctx, st, Assertion{Table: "incidents", Where: where, Expect: map[string]any{"status": "resolved"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "status" = resolved`)

	err = assertFinalState(ctx, st, Assertion{Table: "incidents", Where: where, Expect: map[string]any{"colour": "red"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "colour" not present`)

	err = assertFinalState(ctx, st, Assertion{Table: "incidents", Where: map[string]any{"emergency_id": "nope"}, Expect: map[string]any{"status": "active"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row not found")

	err = assertFinalState(ctx, st, Assertion{Table: "incidents; --", Expect: map[string]any{"status": "active"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}

func TestEvaluateAssertions_CollectsFailures(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()
	result.State = "record_received"

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertIntakeState, State: "record_received"},
		{Type: AssertIntakeState, State: "idle"},
		{Type: AssertFinalState, Table: "incidents"},
		{Type: "mystery"},
	}, nil)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "Expected: idle")
	assert.Contains(t, errs[1], "final_state requires database context")
	assert.Contains(t, errs[2], `unknown assertion type "mystery"`)
}

func TestResultAddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
