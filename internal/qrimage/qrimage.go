// Package qrimage renders encoded payloads as QR symbols, either as PNG
// bytes or as text for a terminal.
package qrimage

import (
	"fmt"
	"os"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/roach88/lifeline/internal/codec"
)

// DefaultScale is the PNG size of one module in pixels.
const DefaultScale = 5

func recoveryLevel(l codec.Level) qrcode.RecoveryLevel {
	switch l {
	case codec.LevelLow:
		return qrcode.Low
	case codec.LevelQuartile:
		return qrcode.High
	case codec.LevelHigh:
		return qrcode.Highest
	default:
		return qrcode.Medium
	}
}

func symbol(payload string, level codec.Level) (*qrcode.QRCode, error) {
	q, err := qrcode.New(payload, recoveryLevel(level))
	if err != nil {
		return nil, fmt.Errorf("qrimage: %w", err)
	}
	return q, nil
}

// PNG renders payload with each module scale pixels wide. A non-positive
// scale means DefaultScale.
func PNG(payload string, level codec.Level, scale int) ([]byte, error) {
	if scale <= 0 {
		scale = DefaultScale
	}
	q, err := symbol(payload, level)
	if err != nil {
		return nil, err
	}
	// A negative size asks go-qrcode for a fixed module width.
	png, err := q.PNG(-scale)
	if err != nil {
		return nil, fmt.Errorf("qrimage: png: %w", err)
	}
	return png, nil
}

// WritePNG renders payload to a file.
func WritePNG(path, payload string, level codec.Level, scale int) error {
	png, err := PNG(payload, level, scale)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return fmt.Errorf("qrimage: write %s: %w", path, err)
	}
	return nil
}

// Terminal renders payload with half-block characters, two modules per
// line, suitable for printing to a terminal.
func Terminal(payload string, level codec.Level) (string, error) {
	q, err := symbol(payload, level)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}

// Modules returns the symbol's module grid including the quiet zone; true
// is a dark module.
func Modules(payload string, level codec.Level) ([][]bool, error) {
	q, err := symbol(payload, level)
	if err != nil {
		return nil, err
	}
	return q.Bitmap(), nil
}
