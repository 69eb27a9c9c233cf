package harness

import (
	"github.com/roach88/lifeline/internal/intake"
)

// ActionIssue marks a record issued into the store before the first step.
const ActionIssue = "issue"

// TraceEvent is one entry in a drill trace: an issued record or an intake
// machine transition.
type TraceEvent struct {
	Seq         int64  `json:"seq"`
	Action      string `json:"action"`
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
	EmergencyID string `json:"emergency_id,omitempty"`
	Status      string `json:"status,omitempty"`

	// Kind is the fault kind of a rejected delivery.
	Kind string `json:"kind,omitempty"`
}

// fromIntake converts a transcript entry. Reject details carry error text
// and are left out so traces stay comparable.
func fromIntake(ev intake.Event) TraceEvent {
	return TraceEvent{
		Seq:         ev.Seq,
		Action:      ev.Action,
		From:        string(ev.From),
		To:          string(ev.To),
		EmergencyID: ev.EmergencyID,
		Status:      string(ev.Status),
	}
}

// fields returns the non-empty fields keyed by their JSON names.
func (e TraceEvent) fields() map[string]any {
	out := map[string]any{
		"seq":    e.Seq,
		"action": e.Action,
	}
	for k, v := range map[string]string{
		"from":         e.From,
		"to":           e.To,
		"emergency_id": e.EmergencyID,
		"status":       e.Status,
		"kind":         e.Kind,
	} {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Result is the outcome of a drill.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists issued records and machine transitions in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final intake state.
	State intake.State `json:"state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
