package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/lifeline/internal/builder"
	"github.com/roach88/lifeline/internal/clock"
	"github.com/roach88/lifeline/internal/codec"
	"github.com/roach88/lifeline/internal/fault"
	"github.com/roach88/lifeline/internal/intake"
	"github.com/roach88/lifeline/internal/record"
	"github.com/roach88/lifeline/internal/store"
	"github.com/roach88/lifeline/internal/testutil"
)

// Options tunes a drill run.
type Options struct {
	// Logger receives machine and builder logs. nil discards them.
	Logger *zap.Logger
}

// Harness runs one drill against a fresh store and machine.
type Harness struct {
	drill   *Drill
	store   *store.Store
	clock   *testutil.ManualClock
	seq     *clock.Seq
	encoder *codec.Encoder
	machine *intake.Machine
	logger  *zap.Logger

	// payloads maps record names to encoded payloads.
	payloads map[string]string

	// Tickets from the latest and the one before it.
	current  intake.Ticket
	previous intake.Ticket

	// kinds remembers fault kinds of rejected deliveries by seq.
	kinds map[int64]string
}

// Run executes a drill and returns the result.
//
// Each drill runs in a fresh in-memory database with a manual clock and
// its own sequence, so the trace is reproducible.
//
// Execution flow:
// 1. Open a fresh in-memory store
// 2. Build, encode and issue every record
// 3. Execute steps, checking expectations
// 4. Evaluate assertions
func Run(ctx context.Context, d *Drill, opts Options) (*Result, error) {
	start, err := d.StartTime()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	st, err := store.Open(store.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	clk := testutil.NewManualClock(start)
	seq := clock.NewSeq()
	h := &Harness{
		drill:    d,
		store:    st,
		clock:    clk,
		seq:      seq,
		encoder:  codec.NewEncoder(codec.EncoderOptions{}),
		machine:  intake.NewMachine(codec.NewDecoder(codec.DecoderOptions{Clock: clk}), seq, logger),
		logger:   logger,
		payloads: make(map[string]string, len(d.Records)),
		kinds:    make(map[int64]string),
	}

	result := NewResult()
	if err := h.issueRecords(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to issue records: %w", err)
	}
	for i, step := range d.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}
	}

	for _, ev := range h.machine.Transcript() {
		te := fromIntake(ev)
		te.Kind = h.kinds[ev.Seq]
		result.Trace = append(result.Trace, te)
	}
	sort.SliceStable(result.Trace, func(i, j int) bool { return result.Trace[i].Seq < result.Trace[j].Seq })
	result.State = h.machine.State()

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, d.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// issueRecords builds and encodes every record in name order and stores
// it as an active incident.
func (h *Harness) issueRecords(ctx context.Context, result *Result) error {
	names := make([]string, 0, len(h.drill.Records))
	for name := range h.drill.Records {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rec, err := h.buildRecord(ctx, name, h.drill.Records[name])
		if err != nil {
			return err
		}
		enc, err := h.encoder.Encode(rec)
		if err != nil {
			return fmt.Errorf("records.%s: %w", name, err)
		}
		if _, err := h.store.CreateIncident(ctx, rec, enc.Fingerprint, enc.Payload); err != nil {
			return fmt.Errorf("records.%s: %w", name, err)
		}
		h.payloads[name] = enc.Payload
		result.Trace = append(result.Trace, TraceEvent{
			Seq:         h.seq.Next(),
			Action:      ActionIssue,
			EmergencyID: rec.EmergencyID,
		})
	}
	return nil
}

func (h *Harness) buildRecord(ctx context.Context, name string, spec RecordSpec) (record.EmergencyRecord, error) {
	ttl := builder.DefaultTTL
	if spec.TTL != "" {
		d, err := time.ParseDuration(spec.TTL)
		if err != nil {
			return record.EmergencyRecord{}, fmt.Errorf("records.%s: ttl: %w", name, err)
		}
		ttl = d
	}
	if spec.Demo {
		return record.DemoRecord(h.clock.Now(), ttl), nil
	}

	opts := builder.Options{
		Clock:  h.clock,
		IDs:    testutil.NewFixedIDGenerator(spec.ID),
		TTL:    ttl,
		Logger: h.logger,
	}
	if loc := spec.Location; loc != nil {
		opts.Locator = builder.FixedLocator{Loc: record.NewLocation(loc.Lat, loc.Lng, loc.Address)}
	}
	res, err := builder.New(opts).Build(ctx, *spec.Profile)
	if err != nil {
		return record.EmergencyRecord{}, fmt.Errorf("records.%s: %w", name, err)
	}
	return res.Record, nil
}

// executeStep runs one step and checks its expectation.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	var (
		outcome string
		got     Expect
		err     error
	)

	switch step.Action {
	case StepStartScan:
		var t intake.Ticket
		if t, err = h.machine.StartScan(); err == nil {
			h.previous, h.current = h.current, t
		}
		outcome = refusedOr(err)
	case StepCancel:
		err = h.machine.Cancel()
		outcome = refusedOr(err)
	case StepResolve:
		current, ok := h.machine.Current()
		err = h.machine.Resolve()
		outcome = refusedOr(err)
		if err == nil && ok {
			if _, serr := h.store.ResolveIncident(ctx, current.Record.EmergencyID, h.clock.Now()); serr != nil && !errors.Is(serr, store.ErrNotFound) {
				return serr
			}
		}
	case StepAdvance:
		by, _ := time.ParseDuration(step.By)
		h.clock.Advance(by)
		outcome = OutcomeOK
	case StepDeliver, StepDeliverStale:
		ticket := h.current
		if step.Action == StepDeliverStale {
			ticket = h.previous
		}
		text := step.Text
		if step.Record != "" {
			text = h.payloads[step.Record]
		}
		var decoded *codec.Decoded
		decoded, err = h.machine.Deliver(ticket, text)
		got, outcome, err = h.classifyDelivery(ctx, decoded, err)
		if err != nil {
			return err
		}
	}
	got.Outcome = outcome

	if step.Expect != nil {
		if msg := compareExpect(*step.Expect, got); msg != "" {
			result.AddError(fmt.Sprintf("step %d (%s): %s", i, step.Action, msg))
		}
	}
	return nil
}

// classifyDelivery turns a Deliver result into an outcome. Only unexpected
// store errors are returned.
func (h *Harness) classifyDelivery(ctx context.Context, decoded *codec.Decoded, err error) (Expect, string, error) {
	switch {
	case err == nil:
		_, aerr := h.store.RecordAccess(ctx, decoded.Record.EmergencyID, h.responder(), h.clock.Now())
		if aerr != nil && !errors.Is(aerr, store.ErrNotFound) {
			return Expect{}, "", aerr
		}
		return Expect{Status: string(decoded.Status)}, OutcomeReceived, nil
	case errors.Is(err, intake.ErrStaleResult):
		return Expect{}, OutcomeStale, nil
	default:
		kind, _ := fault.KindOf(err)
		h.kinds[h.seq.Current()] = string(kind)
		return Expect{Kind: string(kind)}, OutcomeRejected, nil
	}
}

func (h *Harness) responder() string {
	if h.drill.Responder != "" {
		return h.drill.Responder
	}
	return DefaultResponder
}

func refusedOr(err error) string {
	if intake.IsTransitionError(err) {
		return OutcomeRefused
	}
	return OutcomeOK
}

// compareExpect returns a mismatch description, or "" when got satisfies
// want. Status and Kind are only checked when set.
func compareExpect(want, got Expect) string {
	if want.Outcome != got.Outcome {
		return fmt.Sprintf("expected outcome %s, got %s", want.Outcome, got.Outcome)
	}
	if want.Status != "" && want.Status != got.Status {
		return fmt.Sprintf("expected status %s, got %s", want.Status, got.Status)
	}
	if want.Kind != "" && want.Kind != got.Kind {
		return fmt.Sprintf("expected kind %s, got %s", want.Kind, got.Kind)
	}
	return ""
}
