package record

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/lifeline/internal/canon"
)

// BloodType is an ABO/Rh blood group. The zero value means unknown.
type BloodType string

const (
	BloodAPos  BloodType = "A+"
	BloodANeg  BloodType = "A-"
	BloodBPos  BloodType = "B+"
	BloodBNeg  BloodType = "B-"
	BloodABPos BloodType = "AB+"
	BloodABNeg BloodType = "AB-"
	BloodOPos  BloodType = "O+"
	BloodONeg  BloodType = "O-"
)

// BloodTypes lists the recognized groups.
var BloodTypes = []BloodType{
	BloodAPos, BloodANeg, BloodBPos, BloodBNeg,
	BloodABPos, BloodABNeg, BloodOPos, BloodONeg,
}

// ParseBloodType accepts any case and surrounding whitespace. An empty
// string yields the unknown blood type without error.
func ParseBloodType(s string) (BloodType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	for _, bt := range BloodTypes {
		if string(bt) == s {
			return bt, nil
		}
	}
	return "", fmt.Errorf("unknown blood type %q", s)
}

// Known reports whether bt is set.
func (bt BloodType) Known() bool {
	return bt != ""
}

// Location is a position fix. Coordinates are fixed-point microdegrees.
type Location struct {
	Lat     canon.Fixed
	Lng     canon.Fixed
	Address string
}

// NewLocation quantizes float coordinates to microdegrees.
func NewLocation(lat, lng float64, address string) Location {
	return Location{
		Lat:     canon.FixedFromFloat(lat),
		Lng:     canon.FixedFromFloat(lng),
		Address: Clean(address),
	}
}

// Validate checks coordinate ranges.
func (l Location) Validate() error {
	if l.Lat < -90*canon.FixedScale || l.Lat > 90*canon.FixedScale {
		return &ValidationError{Field: "location.lat", Message: fmt.Sprintf("latitude %s out of range", l.Lat)}
	}
	if l.Lng < -180*canon.FixedScale || l.Lng > 180*canon.FixedScale {
		return &ValidationError{Field: "location.lng", Message: fmt.Sprintf("longitude %s out of range", l.Lng)}
	}
	return nil
}

// EmergencyContact is the person to call on the patient's behalf.
type EmergencyContact struct {
	Name         string `json:"name" yaml:"name"`
	Phone        string `json:"phone" yaml:"phone"`
	Relationship string `json:"relationship" yaml:"relationship"`
}

// IsZero reports whether every field is blank.
func (c EmergencyContact) IsZero() bool {
	return strings.TrimSpace(c.Name) == "" &&
		strings.TrimSpace(c.Phone) == "" &&
		strings.TrimSpace(c.Relationship) == ""
}

// MedicalSummary is the medical part of a record.
type MedicalSummary struct {
	BloodType        BloodType
	Allergies        []string
	Conditions       []string
	Medications      []string
	EmergencyContact *EmergencyContact
}

// Normalized returns a deep copy with trimmed entries, empty entries dropped,
// nil sequences replaced by empty ones, the blood type upper-cased and a
// blank contact removed.
func (m MedicalSummary) Normalized() MedicalSummary {
	out := MedicalSummary{
		BloodType:   m.BloodType,
		Allergies:   NormalizeList(m.Allergies),
		Conditions:  NormalizeList(m.Conditions),
		Medications: NormalizeList(m.Medications),
	}
	// Unknown blood types are kept as-is for Validate to reject.
	if bt, err := ParseBloodType(string(m.BloodType)); err == nil {
		out.BloodType = bt
	}
	if m.EmergencyContact != nil {
		c := EmergencyContact{
			Name:         Clean(m.EmergencyContact.Name),
			Phone:        Clean(m.EmergencyContact.Phone),
			Relationship: Clean(m.EmergencyContact.Relationship),
		}
		if !c.IsZero() {
			out.EmergencyContact = &c
		}
	}
	return out
}

// NormalizeList cleans entries and drops blanks. The result is never nil.
func NormalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = Clean(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Clean trims whitespace and applies NFC normalization, the same form the
// canonical encoder writes, so cleaned text survives a round trip intact.
func Clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// EmergencyRecord is one incident's payload.
type EmergencyRecord struct {
	EmergencyID string
	SubjectID   string
	CreatedAt   time.Time
	// ExpiresAt is zero when the record does not expire.
	ExpiresAt time.Time
	// Location is nil when no fix was obtained.
	Location       *Location
	MedicalSummary MedicalSummary
}

// HasExpiry reports whether the record carries an expiry.
func (r *EmergencyRecord) HasExpiry() bool {
	return !r.ExpiresAt.IsZero()
}

// ExpiredAt reports whether the record has expired at now. Expiry is
// inclusive: a record is expired at exactly ExpiresAt.
func (r *EmergencyRecord) ExpiredAt(now time.Time) bool {
	return r.HasExpiry() && !now.Before(r.ExpiresAt)
}

// Remaining returns the time left before expiry, or zero when expired or
// non-expiring.
func (r *EmergencyRecord) Remaining(now time.Time) time.Duration {
	if !r.HasExpiry() || r.ExpiredAt(now) {
		return 0
	}
	return r.ExpiresAt.Sub(now)
}

// Validate checks the record invariants.
func (r *EmergencyRecord) Validate() error {
	if strings.TrimSpace(r.EmergencyID) == "" {
		return &ValidationError{Field: "emergency_id", Message: "emergency id is required"}
	}
	if r.HasExpiry() && !r.CreatedAt.IsZero() && !r.ExpiresAt.After(r.CreatedAt) {
		return &ValidationError{Field: "expires_at", Message: "expires_at must be after created_at"}
	}
	if r.Location != nil {
		if err := r.Location.Validate(); err != nil {
			return err
		}
	}
	for _, list := range [][]string{r.MedicalSummary.Allergies, r.MedicalSummary.Conditions, r.MedicalSummary.Medications} {
		if list == nil {
			return &ValidationError{Field: "medical_summary", Message: "sequence fields must not be nil"}
		}
	}
	return nil
}

// ValidationError describes one failed invariant.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
