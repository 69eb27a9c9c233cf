package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/lifeline/internal/clock"
	"github.com/roach88/lifeline/internal/fault"
	"github.com/roach88/lifeline/internal/record"
)

// MaxInputBytes bounds scanned text; nothing larger fits in a QR symbol.
const MaxInputBytes = 8 * 1024

// Status classifies a successfully decoded record.
type Status string

const (
	StatusValid   Status = "valid"
	StatusExpired Status = "expired"
)

// Format records which input shape was recognized.
type Format string

const (
	FormatFramed Format = "framed"
	FormatBody   Format = "body"
	FormatJSON   Format = "json"
)

// DecoderOptions configures a Decoder.
type DecoderOptions struct {
	Clock  clock.Clock
	Sealer *Sealer
}

// Decoder parses scanned text into records. Safe for concurrent use.
type Decoder struct {
	clock  clock.Clock
	sealer *Sealer
}

// NewDecoder creates a Decoder. A nil Clock means the system clock.
func NewDecoder(opts DecoderOptions) *Decoder {
	c := opts.Clock
	if c == nil {
		c = clock.System{}
	}
	return &Decoder{clock: c, sealer: opts.Sealer}
}

// Decoded is the outcome of a successful decode.
type Decoded struct {
	Record    record.EmergencyRecord
	Status    Status
	Remaining time.Duration
	Format    Format
	Sealed    bool
}

// Err returns a KindExpired fault for an expired record and nil otherwise.
// Callers that treat expiry as a hard stop can use it; display flows should
// read Status instead.
func (d *Decoded) Err() error {
	if d.Status != StatusExpired {
		return nil
	}
	return fault.New(fault.KindExpired, "decode",
		fmt.Sprintf("record %s expired at %s", d.Record.EmergencyID, formatTime(d.Record.ExpiresAt)))
}

// Decode parses text. Every failure is a fault.KindMalformedPayload; expiry
// is reported through Decoded.Status, not as an error.
func (d *Decoder) Decode(text string) (*Decoded, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, malformed("empty input", nil)
	}
	if len(text) > MaxInputBytes {
		return nil, malformed(fmt.Sprintf("input is %d bytes, larger than any QR payload", len(text)), nil)
	}

	var (
		format  Format
		frameID string
		data    []byte
		sealed  bool
	)

	switch {
	case strings.HasPrefix(text, FramePrefix):
		format = FormatFramed
		rest := text[len(FramePrefix):]
		i := strings.LastIndexByte(rest, ':')
		if i <= 0 {
			return nil, malformed("frame has no emergency id", nil)
		}
		frameID = rest[:i]
		body, err := d.openBody(rest[i+1:])
		if err != nil {
			return nil, err
		}
		data, sealed = body.data, body.sealed
	case strings.HasPrefix(text, "{"):
		format = FormatJSON
		data = []byte(text)
	default:
		format = FormatBody
		body, err := d.openBody(text)
		if err != nil {
			return nil, err
		}
		data, sealed = body.data, body.sealed
	}

	rec, err := parseRecord(data)
	if err != nil {
		return nil, err
	}
	if frameID != "" && frameID != rec.EmergencyID {
		return nil, malformed(fmt.Sprintf("frame id %q does not match record id %q", frameID, rec.EmergencyID), nil)
	}

	now := d.clock.Now()
	out := &Decoded{
		Record:    rec,
		Status:    StatusValid,
		Remaining: rec.Remaining(now),
		Format:    format,
		Sealed:    sealed,
	}
	if rec.ExpiredAt(now) {
		out.Status = StatusExpired
	}
	return out, nil
}

type openedBody struct {
	data   []byte
	sealed bool
}

func (d *Decoder) openBody(b64 string) (openedBody, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(b64, "="))
	if err != nil {
		return openedBody{}, malformed("payload body is not base64url", err)
	}
	if !isSealed(raw) {
		return openedBody{data: raw}, nil
	}
	if d.sealer == nil {
		return openedBody{}, malformed("payload is sealed and no passphrase is configured", nil)
	}
	plain, err := d.sealer.Open(raw)
	if err != nil {
		return openedBody{}, malformed("sealed payload failed authentication", err)
	}
	return openedBody{data: plain, sealed: true}, nil
}

func parseRecord(data []byte) (record.EmergencyRecord, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return record.EmergencyRecord{}, malformed("payload is not a JSON object", nil)
	}

	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return record.EmergencyRecord{}, malformed("payload is not valid JSON", err)
	}
	rec, err := fromWire(&w)
	if err != nil {
		var ve *record.ValidationError
		if errors.As(err, &ve) {
			return record.EmergencyRecord{}, malformed(ve.Message, err).WithDetail("field", ve.Field)
		}
		return record.EmergencyRecord{}, malformed("invalid record", err)
	}
	return rec, nil
}

func malformed(msg string, err error) *fault.Error {
	return fault.Wrap(fault.KindMalformedPayload, "decode", msg, err)
}

// UnmarshalRecord parses canonical (or compatible) JSON into a record
// without framing or expiry checks.
func UnmarshalRecord(data []byte) (record.EmergencyRecord, error) {
	return parseRecord(data)
}
