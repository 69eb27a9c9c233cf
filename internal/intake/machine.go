package intake

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/lifeline/internal/clock"
	"github.com/roach88/lifeline/internal/codec"
)

// State is an intake state.
type State string

const (
	StateIdle           State = "idle"
	StateScanning       State = "scanning"
	StateRecordReceived State = "record_received"
	StateResolved       State = "resolved"
)

// ErrStaleResult is returned by Deliver for a ticket from an abandoned scan.
var ErrStaleResult = errors.New("intake: result belongs to an abandoned scan")

// TransitionError reports an action that is not allowed in the current
// state.
type TransitionError struct {
	From   State
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("intake: cannot %s while %s", e.Action, e.From)
}

// IsTransitionError reports whether err is a *TransitionError.
func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

// Ticket identifies one scan attempt.
type Ticket struct {
	gen uint64
}

// Event is one transcript entry.
type Event struct {
	Seq         int64        `json:"seq"`
	Action      string       `json:"action"`
	From        State        `json:"from"`
	To          State        `json:"to"`
	EmergencyID string       `json:"emergency_id,omitempty"`
	Status      codec.Status `json:"status,omitempty"`
	Detail      string       `json:"detail,omitempty"`
}

// Machine is the responder intake state machine. Safe for concurrent use;
// Deliver may be called from the goroutine that completed a scan.
type Machine struct {
	mu         sync.Mutex
	state      State
	gen        uint64
	decoder    *codec.Decoder
	seq        *clock.Seq
	current    *codec.Decoded
	transcript []Event
	logger     *zap.Logger
}

// NewMachine creates a machine in Idle. seq may be shared with other
// transcripts; nil creates a private one. A nil logger discards logs.
func NewMachine(decoder *codec.Decoder, seq *clock.Seq, logger *zap.Logger) *Machine {
	if seq == nil {
		seq = clock.NewSeq()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		state:   StateIdle,
		decoder: decoder,
		seq:     seq,
		logger:  logger,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StartScan moves Idle to Scanning and returns the ticket results must
// carry.
func (m *Machine) StartScan() (Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return Ticket{}, &TransitionError{From: m.state, Action: "start scan"}
	}
	m.gen++
	m.move("start_scan", StateScanning, Event{})
	return Ticket{gen: m.gen}, nil
}

// Resume returns a ticket for the next delivery: it starts a scan from
// Idle, and hands back the live ticket when a rejected payload left the
// machine in Scanning.
func (m *Machine) Resume() (Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateIdle:
		m.gen++
		m.move("start_scan", StateScanning, Event{})
		return Ticket{gen: m.gen}, nil
	case StateScanning:
		return Ticket{gen: m.gen}, nil
	default:
		return Ticket{}, &TransitionError{From: m.state, Action: "start scan"}
	}
}

// Cancel moves Scanning back to Idle. Results for the cancelled ticket are
// dropped when they arrive.
func (m *Machine) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateScanning {
		return &TransitionError{From: m.state, Action: "cancel"}
	}
	m.gen++
	m.move("cancel", StateIdle, Event{})
	return nil
}

// Deliver hands scanned text to the machine. On success the machine moves
// to RecordReceived and the decoded record is returned; an expired record
// is received with Status expired. A malformed payload returns the decode
// error and leaves the machine in Scanning.
func (m *Machine) Deliver(t Ticket, text string) (*codec.Decoded, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateScanning || t.gen != m.gen {
		m.record(Event{Action: "stale_result", From: m.state, To: m.state})
		m.logger.Debug("dropping stale scan result", zap.Uint64("ticket", t.gen), zap.Uint64("current", m.gen))
		return nil, ErrStaleResult
	}

	decoded, err := m.decoder.Decode(text)
	if err != nil {
		m.record(Event{Action: "reject", From: m.state, To: m.state, Detail: err.Error()})
		m.logger.Info("scan rejected", zap.Error(err))
		return nil, err
	}

	m.current = decoded
	m.move("receive", StateRecordReceived, Event{
		EmergencyID: decoded.Record.EmergencyID,
		Status:      decoded.Status,
	})
	m.logger.Info("emergency record received",
		zap.String("emergency_id", decoded.Record.EmergencyID),
		zap.String("status", string(decoded.Status)),
	)
	return decoded, nil
}

// Resolve moves RecordReceived to the terminal Resolved state. The record
// stays readable but is never modified.
func (m *Machine) Resolve() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateRecordReceived {
		return &TransitionError{From: m.state, Action: "resolve"}
	}
	m.move("resolve", StateResolved, Event{EmergencyID: m.current.Record.EmergencyID})
	return nil
}

// Current returns the received record, if any.
func (m *Machine) Current() (*codec.Decoded, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.current != nil
}

// Transcript returns a copy of the transition log.
func (m *Machine) Transcript() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.transcript))
	copy(out, m.transcript)
	return out
}

// move must be called with mu held.
func (m *Machine) move(action string, to State, ev Event) {
	ev.Action = action
	ev.From = m.state
	ev.To = to
	m.state = to
	m.record(ev)
}

// record must be called with mu held.
func (m *Machine) record(ev Event) {
	ev.Seq = m.seq.Next()
	m.transcript = append(m.transcript, ev)
}
