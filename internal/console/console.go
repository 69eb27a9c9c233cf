package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/lifeline/internal/builder"
	"github.com/roach88/lifeline/internal/clock"
	"github.com/roach88/lifeline/internal/codec"
	"github.com/roach88/lifeline/internal/intake"
	"github.com/roach88/lifeline/internal/qrimage"
	"github.com/roach88/lifeline/internal/record"
)

// ErrWrongRole is returned when an operation belongs to the other role.
var ErrWrongRole = errors.New("console: operation not available for this role")

// Notices for outbound links.
const (
	NoticeNoLocation = "No location was shared with this record."
	NoticeNoPhone    = "No emergency contact phone number on record."
)

// Options configures a Console.
type Options struct {
	Role         Role
	Capabilities Capabilities

	Builder  *builder.Builder
	Encoder  *codec.Encoder
	Decoder  *codec.Decoder
	Launcher Launcher

	// Camera is tried first when the camera is available.
	Camera intake.Source
	// Manual reads pasted codes; nil disables manual entry.
	Manual io.Reader
	Prompt io.Writer
	// DemoFallback appends the demo record as the last intake source.
	DemoFallback bool
	DemoTTL      time.Duration

	Clock  clock.Clock
	Seq    *clock.Seq
	Logger *zap.Logger
}

// Console is one signed-in user's view.
type Console struct {
	role     Role
	caps     Capabilities
	builder  *builder.Builder
	encoder  *codec.Encoder
	launcher Launcher
	machine  *intake.Machine
	sources  []intake.Source
	logger   *zap.Logger
}

// New creates a Console. Missing collaborators get defaults; the launcher
// defaults to the OS opener.
func New(opts Options) (*Console, error) {
	if opts.Role == nil {
		return nil, errors.New("console: role is required")
	}
	c := &Console{
		role:     opts.Role,
		caps:     opts.Capabilities,
		builder:  opts.Builder,
		encoder:  opts.Encoder,
		launcher: opts.Launcher,
		logger:   opts.Logger,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.encoder == nil {
		c.encoder = codec.NewEncoder(codec.EncoderOptions{})
	}
	if c.launcher == nil {
		c.launcher = OSLauncher{}
	}
	if c.builder == nil {
		c.builder = builder.New(builder.Options{Clock: opts.Clock, Logger: c.logger})
	}

	if _, ok := opts.Role.(ResponderRole); ok {
		dec := opts.Decoder
		if dec == nil {
			dec = codec.NewDecoder(codec.DecoderOptions{Clock: opts.Clock})
		}
		seq := opts.Seq
		if seq == nil {
			seq = clock.NewSeq()
		}
		c.machine = intake.NewMachine(dec, seq, c.logger)
		if opts.Capabilities.CameraAvailable && opts.Camera != nil {
			c.sources = append(c.sources, opts.Camera)
		}
		if opts.Manual != nil {
			c.sources = append(c.sources, intake.ManualEntry{In: opts.Manual, Prompt: opts.Prompt})
		}
		if opts.DemoFallback {
			c.sources = append(c.sources, intake.DemoSource{Encoder: c.encoder, Clock: opts.Clock, TTL: opts.DemoTTL})
		}
	}
	return c, nil
}

// Role returns the console's role.
func (c *Console) Role() Role { return c.role }

// Capabilities returns the flags the console was opened with.
func (c *Console) Capabilities() Capabilities { return c.caps }

// Card is a generated emergency code ready to show.
type Card struct {
	Record  record.EmergencyRecord
	Encoded *codec.Encoded
	// Symbol is the QR code drawn with block characters.
	Symbol  string
	Notices []string
}

// Generate builds, encodes and draws a record for the patient.
func (c *Console) Generate(ctx context.Context) (*Card, error) {
	p, ok := c.role.(PatientRole)
	if !ok {
		return nil, ErrWrongRole
	}
	res, err := c.builder.Build(ctx, p.Profile)
	if err != nil {
		return nil, err
	}
	enc, err := c.encoder.Encode(res.Record)
	if err != nil {
		c.builder.Discard(res.Record)
		return nil, err
	}
	sym, err := qrimage.Terminal(enc.Payload, enc.Level)
	if err != nil {
		c.builder.Discard(res.Record)
		return nil, err
	}
	card := &Card{Record: res.Record, Encoded: enc, Symbol: sym}
	if res.Notice != "" {
		card.Notices = append(card.Notices, res.Notice)
	}
	if !c.caps.BackendReachable {
		card.Notices = append(card.Notices, "Offline: the code works without the server but responders will not see it in the incident log.")
	}
	return card, nil
}

// Scan runs one intake through the responder's sources.
func (c *Console) Scan(ctx context.Context) (*intake.Outcome, error) {
	if c.machine == nil {
		return nil, ErrWrongRole
	}
	return intake.Run(ctx, c.machine, intake.NewChain(c.logger, c.sources...))
}

// Deliver decodes text the responder obtained elsewhere. After a malformed
// payload the responder may Deliver again, or Cancel.
func (c *Console) Deliver(text string) (*codec.Decoded, error) {
	if c.machine == nil {
		return nil, ErrWrongRole
	}
	t, err := c.machine.Resume()
	if err != nil {
		return nil, err
	}
	return c.machine.Deliver(t, text)
}

// Cancel abandons a scan in progress and returns to Idle.
func (c *Console) Cancel() error {
	if c.machine == nil {
		return ErrWrongRole
	}
	return c.machine.Cancel()
}

// Resolve closes the received incident.
func (c *Console) Resolve() error {
	if c.machine == nil {
		return ErrWrongRole
	}
	return c.machine.Resolve()
}

// Intake exposes the responder's state machine; nil for patients.
func (c *Console) Intake() *intake.Machine { return c.machine }

// OpenMap launches the map for loc. Failures come back as a notice.
func (c *Console) OpenMap(ctx context.Context, loc *record.Location) string {
	link := MapsURL(loc)
	if link == "" {
		return NoticeNoLocation
	}
	return c.open(ctx, link, "map")
}

// Call launches a dial link for the emergency contact.
func (c *Console) Call(ctx context.Context, contact *record.EmergencyContact) string {
	if contact == nil {
		return NoticeNoPhone
	}
	link := TelURL(contact.Phone)
	if link == "" {
		return NoticeNoPhone
	}
	return c.open(ctx, link, "dialer")
}

func (c *Console) open(ctx context.Context, link, what string) string {
	if err := c.launcher.Open(ctx, link); err != nil {
		c.logger.Warn("launch failed", zap.String("link", link), zap.Error(err))
		return fmt.Sprintf("Could not open the %s. Use this link instead: %s", what, link)
	}
	return ""
}

// Render writes a responder-facing summary of d.
func Render(w io.Writer, d *codec.Decoded) error {
	rec := d.Record
	ms := rec.MedicalSummary
	var b strings.Builder

	fmt.Fprintf(&b, "Emergency %s\n", rec.EmergencyID)
	switch d.Status {
	case codec.StatusExpired:
		fmt.Fprintf(&b, "Status:      EXPIRED at %s\n", rec.ExpiresAt.UTC().Format(codec.TimeLayout))
	default:
		if rec.HasExpiry() {
			fmt.Fprintf(&b, "Status:      valid, %s remaining\n", d.Remaining.Truncate(time.Second))
		} else {
			fmt.Fprintf(&b, "Status:      valid\n")
		}
	}
	if rec.SubjectID != "" {
		fmt.Fprintf(&b, "Patient:     %s\n", rec.SubjectID)
	}
	if !rec.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Created:     %s\n", rec.CreatedAt.UTC().Format(codec.TimeLayout))
	}
	bt := "unknown"
	if ms.BloodType.Known() {
		bt = string(ms.BloodType)
	}
	fmt.Fprintf(&b, "Blood type:  %s\n", bt)
	fmt.Fprintf(&b, "Allergies:   %s\n", listOrNone(ms.Allergies))
	fmt.Fprintf(&b, "Conditions:  %s\n", listOrNone(ms.Conditions))
	fmt.Fprintf(&b, "Medications: %s\n", listOrNone(ms.Medications))
	if c := ms.EmergencyContact; c != nil && !c.IsZero() {
		fmt.Fprintf(&b, "Contact:     %s (%s) %s", c.Name, c.Relationship, c.Phone)
		if tel := TelURL(c.Phone); tel != "" {
			fmt.Fprintf(&b, " <%s>", tel)
		}
		b.WriteByte('\n')
	}
	if rec.Location != nil {
		fmt.Fprintf(&b, "Location:    %s\n", MapsURL(rec.Location))
		if rec.Location.Address != "" {
			fmt.Fprintf(&b, "Address:     %s\n", rec.Location.Address)
		}
	} else {
		fmt.Fprintf(&b, "Location:    unknown\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
