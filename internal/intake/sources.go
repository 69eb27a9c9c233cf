package intake

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/lifeline/internal/clock"
	"github.com/roach88/lifeline/internal/codec"
	"github.com/roach88/lifeline/internal/fault"
	"github.com/roach88/lifeline/internal/record"
)

// Source produces one scanned payload.
type Source interface {
	Name() string
	Scan(ctx context.Context) (string, error)
}

// CameraStatus is the result of a camera capability check.
type CameraStatus string

const (
	CameraSupported        CameraStatus = "supported"
	CameraPermissionDenied CameraStatus = "permission_denied"
	CameraNotFound         CameraStatus = "not_found"
)

// Err maps a status to its fault, nil when the camera is usable.
func (s CameraStatus) Err() error {
	switch s {
	case CameraSupported:
		return nil
	case CameraPermissionDenied:
		return fault.New(fault.KindPermissionDenied, "camera", "camera access denied")
	default:
		return fault.New(fault.KindNotFound, "camera", "no camera device")
	}
}

// CameraProbe checks whether a camera can be used.
type CameraProbe interface {
	Probe(ctx context.Context) CameraStatus
}

// DeviceProbe looks for video capture devices on the local filesystem.
type DeviceProbe struct {
	// Pattern is the device glob. Empty means /dev/video*.
	Pattern string
}

// Probe reports NotFound when no device matches, PermissionDenied when
// devices exist but none can be opened, and Supported otherwise.
func (p DeviceProbe) Probe(ctx context.Context) CameraStatus {
	pattern := p.Pattern
	if pattern == "" {
		pattern = "/dev/video*"
	}
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return CameraNotFound
	}
	denied := false
	for _, path := range matches {
		if ctx.Err() != nil {
			break
		}
		f, err := os.Open(path)
		if err == nil {
			f.Close()
			return CameraSupported
		}
		if errors.Is(err, fs.ErrPermission) {
			denied = true
		}
	}
	if denied {
		return CameraPermissionDenied
	}
	return CameraNotFound
}

// CameraSource scans through a camera once the probe allows it. Frame
// decoding is delegated to Capture; with no Capture the camera is treated
// as absent.
type CameraSource struct {
	Probe   CameraProbe
	Capture func(ctx context.Context) (string, error)
}

func (CameraSource) Name() string { return "camera" }

func (c CameraSource) Scan(ctx context.Context) (string, error) {
	if c.Probe == nil {
		return "", CameraNotFound.Err()
	}
	if err := c.Probe.Probe(ctx).Err(); err != nil {
		return "", err
	}
	if c.Capture == nil {
		return "", fault.New(fault.KindNotFound, "camera", "no frame decoder configured")
	}
	return c.Capture(ctx)
}

// ManualEntry reads a pasted payload, one line, from In.
type ManualEntry struct {
	In     io.Reader
	Prompt io.Writer
}

func (ManualEntry) Name() string { return "manual" }

// Scan returns the first non-blank line. Reading stops when ctx is done,
// though the blocked read itself is left to finish on its own.
func (m ManualEntry) Scan(ctx context.Context) (string, error) {
	if m.In == nil {
		return "", fault.New(fault.KindNotFound, "manual", "no input available")
	}
	if m.Prompt != nil {
		fmt.Fprint(m.Prompt, "Paste emergency code: ")
	}

	type line struct {
		text string
		err  error
	}
	ch := make(chan line, 1)
	go func() {
		sc := bufio.NewScanner(m.In)
		sc.Buffer(make([]byte, 0, 4096), codec.MaxInputBytes+1)
		for sc.Scan() {
			if t := strings.TrimSpace(sc.Text()); t != "" {
				ch <- line{text: t}
				return
			}
		}
		err := sc.Err()
		if err == nil {
			err = fault.New(fault.KindNotFound, "manual", "no code entered")
		}
		ch <- line{err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l := <-ch:
		return l.text, l.err
	}
}

// DemoSource encodes the built-in demo record on each scan.
type DemoSource struct {
	Encoder *codec.Encoder
	Clock   clock.Clock
	TTL     time.Duration
}

func (DemoSource) Name() string { return "demo" }

func (d DemoSource) Scan(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c := d.Clock
	if c == nil {
		c = clock.System{}
	}
	ttl := d.TTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	enc := d.Encoder
	if enc == nil {
		enc = codec.NewEncoder(codec.EncoderOptions{})
	}
	out, err := enc.Encode(record.DemoRecord(c.Now(), ttl))
	if err != nil {
		return "", err
	}
	return out.Payload, nil
}

// StaticSource returns fixed text. Drills and tests use it.
type StaticSource struct {
	Label string
	Text  string
	Err   error
}

func (s StaticSource) Name() string {
	if s.Label == "" {
		return "static"
	}
	return s.Label
}

func (s StaticSource) Scan(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.Text, s.Err
}

// ScanResult is the text a Chain produced and how it got there.
type ScanResult struct {
	Text    string
	Source  string
	Notices []string
}

// Chain tries sources in order. A recoverable failure (permission,
// missing device, network) becomes a notice and the next source is tried;
// any other failure stops the chain.
type Chain struct {
	Sources []Source
	Logger  *zap.Logger
}

// NewChain builds the standard camera, manual, demo order. Nil sources are
// skipped.
func NewChain(logger *zap.Logger, sources ...Source) Chain {
	kept := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return Chain{Sources: kept, Logger: logger}
}

// Scan returns the first source's text, with notices from the sources it
// fell past. When every source fails the last error is returned.
func (c Chain) Scan(ctx context.Context) (*ScanResult, error) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(c.Sources) == 0 {
		return nil, fault.New(fault.KindNotFound, "scan", "no scan source configured")
	}

	res := &ScanResult{}
	var last error
	for _, src := range c.Sources {
		text, err := src.Scan(ctx)
		if err == nil {
			res.Text = text
			res.Source = src.Name()
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		kind, ok := fault.KindOf(err)
		if !ok || !fault.Recoverable(kind) {
			return nil, err
		}
		logger.Info("scan source unavailable, falling back",
			zap.String("source", src.Name()),
			zap.String("kind", string(kind)),
		)
		res.Notices = append(res.Notices, fault.Notice(err))
		last = err
	}
	return nil, last
}

// Outcome is the result of one Run.
type Outcome struct {
	Decoded *codec.Decoded
	Source  string
	Notices []string
}

// Run performs a full scan on m: Resume, pull from the chain, Deliver.
// When no source produces text the scan is cancelled and m returns to Idle.
// A malformed payload leaves m in Scanning and is returned as the error; the
// next Run retries on the same scan.
func Run(ctx context.Context, m *Machine, chain Chain) (*Outcome, error) {
	ticket, err := m.Resume()
	if err != nil {
		return nil, err
	}
	res, err := chain.Scan(ctx)
	if err != nil {
		_ = m.Cancel()
		return nil, err
	}
	decoded, err := m.Deliver(ticket, res.Text)
	if err != nil {
		return &Outcome{Source: res.Source, Notices: res.Notices}, err
	}
	return &Outcome{Decoded: decoded, Source: res.Source, Notices: res.Notices}, nil
}
