package canon

import (
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the value kinds canonical JSON admits.
// There is deliberately no float and no null.
type Value interface {
	canonValue()
}

// String is a JSON string.
type String string

func (String) canonValue() {}

// Int is a JSON integer. Always int64.
type Int int64

func (Int) canonValue() {}

// Bool is a JSON boolean.
type Bool bool

func (Bool) canonValue() {}

// Fixed is a decimal with six fractional digits stored as an integer count
// of millionths. Fixed(40712800) renders as 40.7128.
type Fixed int64

func (Fixed) canonValue() {}

// Array is an ordered list of values.
type Array []Value

func (Array) canonValue() {}

// Object maps keys to values. Iterate with SortedKeys for determinism.
type Object map[string]Value

func (Object) canonValue() {}

// Strings converts a string slice to an Array. A nil slice yields an empty
// Array, never nil, so that empty sequences encode as [].
func Strings(ss []string) Array {
	arr := make(Array, len(ss))
	for i, s := range ss {
		arr[i] = String(s)
	}
	return arr
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// compareUTF16 orders strings by UTF-16 code units. Plain string comparison
// is by UTF-8 bytes and disagrees for characters outside the BMP.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}
