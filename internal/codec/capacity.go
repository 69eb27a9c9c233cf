package codec

import (
	"fmt"
	"strings"
)

// Level is a QR error-correction level.
type Level string

const (
	LevelLow      Level = "L"
	LevelMedium   Level = "M"
	LevelQuartile Level = "Q"
	LevelHigh     Level = "H"
)

// DefaultLevel balances capacity against damage tolerance.
const DefaultLevel = LevelMedium

// byteCapacity is the byte-mode capacity of a version 40 symbol.
var byteCapacity = map[Level]int{
	LevelLow:      2953,
	LevelMedium:   2331,
	LevelQuartile: 1663,
	LevelHigh:     1273,
}

// ParseLevel accepts L, M, Q or H in any case. Empty means DefaultLevel.
func ParseLevel(s string) (Level, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return DefaultLevel, nil
	}
	l := Level(s)
	if _, ok := byteCapacity[l]; !ok {
		return "", fmt.Errorf("unknown error-correction level %q: must be one of L, M, Q, H", s)
	}
	return l, nil
}

// Capacity returns the maximum payload size in bytes for l.
func (l Level) Capacity() int {
	return byteCapacity[l]
}
