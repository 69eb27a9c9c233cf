package codec

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/roach88/lifeline/internal/fault"
	"github.com/roach88/lifeline/internal/record"
)

// FramePrefix starts every framed payload.
const FramePrefix = "EMERGENCY:"

// EncoderOptions configures an Encoder.
type EncoderOptions struct {
	// Level selects the QR error-correction level and so the capacity.
	Level Level

	// MaxBytes, when positive and smaller than the level's capacity,
	// lowers the limit further (e.g. to keep symbols small enough to scan
	// from a phone screen).
	MaxBytes int

	// Sealer, when set, wraps the canonical JSON before framing.
	Sealer *Sealer
}

// Encoder serializes records into QR payload text.
// It holds no mutable state and is safe for concurrent use.
type Encoder struct {
	level    Level
	maxBytes int
	sealer   *Sealer
}

// NewEncoder creates an Encoder. An empty Level means DefaultLevel.
func NewEncoder(opts EncoderOptions) *Encoder {
	level := opts.Level
	if level == "" {
		level = DefaultLevel
	}
	return &Encoder{level: level, maxBytes: opts.MaxBytes, sealer: opts.Sealer}
}

// Limit returns the effective payload limit in bytes.
func (e *Encoder) Limit() int {
	limit := e.level.Capacity()
	if e.maxBytes > 0 && e.maxBytes < limit {
		limit = e.maxBytes
	}
	return limit
}

// Level returns the configured error-correction level.
func (e *Encoder) Level() Level {
	return e.level
}

// Encoded is the result of encoding one record.
type Encoded struct {
	EmergencyID string
	// Payload is the text to put in the QR symbol.
	Payload string
	// Canonical is the canonical JSON before sealing and base64.
	Canonical   []byte
	Fingerprint string
	Size        int
	Limit       int
	Level       Level
	Sealed      bool
}

// Encode serializes rec. It fails with fault.KindPayloadTooLarge when the
// framed payload exceeds Limit.
func (e *Encoder) Encode(rec record.EmergencyRecord) (*Encoded, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("encode: invalid record: %w", err)
	}

	canonical, err := MarshalRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	fp, err := Fingerprint(rec)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	body := canonical
	if e.sealer != nil {
		body = e.sealer.Seal(canonical)
	}
	payload := FramePrefix + rec.EmergencyID + ":" + base64.RawURLEncoding.EncodeToString(body)

	limit := e.Limit()
	if len(payload) > limit {
		return nil, fault.New(fault.KindPayloadTooLarge, "encode",
			fmt.Sprintf("payload is %d bytes, limit is %d at level %s", len(payload), limit, e.level)).
			WithDetail("size", strconv.Itoa(len(payload))).
			WithDetail("limit", strconv.Itoa(limit))
	}

	return &Encoded{
		EmergencyID: rec.EmergencyID,
		Payload:     payload,
		Canonical:   canonical,
		Fingerprint: fp,
		Size:        len(payload),
		Limit:       limit,
		Level:       e.level,
		Sealed:      e.sealer != nil,
	}, nil
}
