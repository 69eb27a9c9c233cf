package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lifeline/internal/fault"
	"github.com/roach88/lifeline/internal/intake"
	"github.com/roach88/lifeline/internal/record"
)

// DefaultStart is the drill clock's start when a drill does not set one.
var DefaultStart = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

// DefaultResponder is the responder id drills log access under.
const DefaultResponder = "drill-responder"

// Drill defines one scripted intake session.
type Drill struct {
	// Name uniquely identifies this drill and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this drill validates.
	Description string `yaml:"description"`

	// Start is the RFC 3339 time the drill clock starts at.
	Start string `yaml:"start,omitempty"`

	// Responder is the id access is logged under.
	Responder string `yaml:"responder,omitempty"`

	// Records are issued before the first step.
	Records map[string]RecordSpec `yaml:"records,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// RecordSpec describes a record to build and encode.
type RecordSpec struct {
	// Demo uses the built-in demo record; ID, Profile and Location are
	// ignored.
	Demo bool `yaml:"demo,omitempty"`

	ID       string          `yaml:"id,omitempty"`
	Profile  *record.Profile `yaml:"profile,omitempty"`
	TTL      string          `yaml:"ttl,omitempty"`
	Location *LocationSpec   `yaml:"location,omitempty"`
}

// LocationSpec is a position fix given in degrees.
type LocationSpec struct {
	Lat     float64 `yaml:"lat"`
	Lng     float64 `yaml:"lng"`
	Address string  `yaml:"address,omitempty"`
}

// Step actions.
const (
	StepStartScan    = "start_scan"
	StepDeliver      = "deliver"
	StepDeliverStale = "deliver_stale"
	StepCancel       = "cancel"
	StepResolve      = "resolve"
	StepAdvance      = "advance"
)

// Step is one action in the drill.
type Step struct {
	Action string `yaml:"action"`

	// Record names the payload to deliver; Text delivers raw text instead.
	Record string `yaml:"record,omitempty"`
	Text   string `yaml:"text,omitempty"`

	// By is the duration an advance step moves the clock.
	By string `yaml:"by,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Step outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeReceived = "received"
	OutcomeRejected = "rejected"
	OutcomeStale    = "stale"
	OutcomeRefused  = "refused"
)

// Expect is the expected outcome of a step.
type Expect struct {
	Outcome string `yaml:"outcome"`
	// Status is checked for received outcomes.
	Status string `yaml:"status,omitempty"`
	// Kind is the fault kind checked for rejected outcomes.
	Kind string `yaml:"kind,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count,
	// intake_state or final_state.
	Type string `yaml:"type"`

	// Action is used by trace_contains and trace_count.
	Action string `yaml:"action,omitempty"`

	// Fields are matched against the event (trace_contains). Subset
	// match.
	Fields map[string]any `yaml:"fields,omitempty"`

	// Actions is the expected order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// State is the expected machine state (intake_state).
	State string `yaml:"state,omitempty"`

	// Table, Where and Expect select and check one store row
	// (final_state).
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertIntakeState   = "intake_state"
	AssertFinalState    = "final_state"
)

// LoadDrill reads and parses a drill YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadDrill(path string) (*Drill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read drill file: %w", err)
	}
	return ParseDrill(data)
}

// ParseDrill parses drill YAML. Unknown fields are rejected.
func ParseDrill(data []byte) (*Drill, error) {
	var d Drill
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateDrill(&d); err != nil {
		return nil, fmt.Errorf("invalid drill: %w", err)
	}
	return &d, nil
}

// StartTime returns the parsed start time, or DefaultStart.
func (d *Drill) StartTime() (time.Time, error) {
	if d.Start == "" {
		return DefaultStart, nil
	}
	t, err := time.Parse(time.RFC3339Nano, d.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("start: %w", err)
	}
	return t.UTC(), nil
}

// validateDrill checks that required fields are present and valid.
func validateDrill(d *Drill) error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if d.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(d.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if _, err := d.StartTime(); err != nil {
		return err
	}

	for name, spec := range d.Records {
		if err := validateRecord(name, spec); err != nil {
			return err
		}
	}
	for i, step := range d.Steps {
		if err := validateStep(i, step, d.Records); err != nil {
			return err
		}
	}
	for i := range d.Assertions {
		if err := validateAssertion(i, &d.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateRecord(name string, spec RecordSpec) error {
	if spec.TTL != "" {
		if _, err := time.ParseDuration(spec.TTL); err != nil {
			return fmt.Errorf("records.%s.ttl: %w", name, err)
		}
	}
	if spec.Demo {
		return nil
	}
	if spec.ID == "" {
		return fmt.Errorf("records.%s: id is required", name)
	}
	if spec.Profile == nil {
		return fmt.Errorf("records.%s: profile is required", name)
	}
	return nil
}

func validateStep(i int, step Step, records map[string]RecordSpec) error {
	switch step.Action {
	case StepStartScan, StepCancel, StepResolve:
	case StepDeliver, StepDeliverStale:
		if (step.Record == "") == (step.Text == "") {
			return fmt.Errorf("steps[%d]: exactly one of record or text is required", i)
		}
		if step.Record != "" {
			if _, ok := records[step.Record]; !ok {
				return fmt.Errorf("steps[%d]: unknown record %q", i, step.Record)
			}
		}
	case StepAdvance:
		if _, err := time.ParseDuration(step.By); err != nil {
			return fmt.Errorf("steps[%d]: by: %w", i, err)
		}
	case "":
		return fmt.Errorf("steps[%d]: action is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", i, step.Action)
	}

	if e := step.Expect; e != nil {
		switch e.Outcome {
		case OutcomeOK, OutcomeReceived, OutcomeRejected, OutcomeStale, OutcomeRefused:
		default:
			return fmt.Errorf("steps[%d].expect: unknown outcome %q", i, e.Outcome)
		}
		if e.Kind != "" && !knownKind(e.Kind) {
			return fmt.Errorf("steps[%d].expect: unknown fault kind %q", i, e.Kind)
		}
	}
	return nil
}

func knownKind(k string) bool {
	for _, kind := range fault.Kinds {
		if string(kind) == k {
			return true
		}
	}
	return false
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertIntakeState:
		switch intake.State(a.State) {
		case intake.StateIdle, intake.StateScanning, intake.StateRecordReceived, intake.StateResolved:
		default:
			return fmt.Errorf("assertions[%d]: unknown intake state %q", index, a.State)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
