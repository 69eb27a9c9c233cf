package canon

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FixedScale is the number of Fixed units per whole unit.
const FixedScale = 1_000_000

// String renders f as the shortest decimal with at most six fractional
// digits: 40712800 -> "40.7128", 5000000 -> "5", -500000 -> "-0.5".
func (f Fixed) String() string {
	n := int64(f)
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	whole := n / FixedScale
	frac := n % FixedScale
	if frac == 0 {
		return sign + strconv.FormatInt(whole, 10)
	}
	fs := strings.TrimRight(fmt.Sprintf("%06d", frac), "0")
	return sign + strconv.FormatInt(whole, 10) + "." + fs
}

// Float returns f as a float64 for display and distance math.
func (f Fixed) Float() float64 {
	return float64(f) / FixedScale
}

// FixedFromFloat rounds x to the nearest millionth, half away from zero.
func FixedFromFloat(x float64) Fixed {
	return Fixed(math.Round(x * FixedScale))
}

// ParseFixed parses a JSON number into a Fixed. Plain decimals are parsed
// exactly, rounding half away from zero past the sixth fractional digit;
// exponent forms go through float64.
func ParseFixed(s string) (Fixed, error) {
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	if strings.ContainsAny(s, "eE") {
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q: %w", s, err)
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("invalid number %q", s)
		}
		return FixedFromFloat(x), nil
	}

	neg := false
	body := s
	if body[0] == '-' {
		neg = true
		body = body[1:]
	}
	whole, frac, _ := strings.Cut(body, ".")
	if whole == "" || !allDigits(whole) || !allDigits(frac) {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if len(whole) > 12 {
		return 0, fmt.Errorf("number %q out of range", s)
	}

	roundUp := false
	if len(frac) > 6 {
		roundUp = frac[6] >= '5'
		frac = frac[:6]
	}
	frac += strings.Repeat("0", 6-len(frac))

	w, _ := strconv.ParseInt(whole, 10, 64)
	fr, _ := strconv.ParseInt(frac, 10, 64)
	n := w*FixedScale + fr
	if roundUp {
		n++
	}
	if neg {
		n = -n
	}
	return Fixed(n), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
