package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/lifeline/internal/canon"
	"github.com/roach88/lifeline/internal/record"
)

// WireVersion is written as "v" in every payload.
const WireVersion = 1

// TimeLayout is the wire timestamp format: RFC 3339, UTC, milliseconds.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// zoneless layouts emitted by servers that drop the offset; read as UTC.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// MarshalRecord returns the canonical JSON form of rec.
func MarshalRecord(rec record.EmergencyRecord) ([]byte, error) {
	return canon.Marshal(toCanonical(rec))
}

// Fingerprint returns the domain-separated digest of rec's canonical form.
func Fingerprint(rec record.EmergencyRecord) (string, error) {
	return canon.Fingerprint(canon.DomainRecord, toCanonical(rec))
}

func toCanonical(rec record.EmergencyRecord) canon.Object {
	ms := rec.MedicalSummary
	summary := canon.Object{
		"allergies":   canon.Strings(ms.Allergies),
		"conditions":  canon.Strings(ms.Conditions),
		"medications": canon.Strings(ms.Medications),
	}
	if ms.BloodType.Known() {
		summary["blood_type"] = canon.String(ms.BloodType)
	}
	if c := ms.EmergencyContact; c != nil {
		summary["emergency_contact"] = canon.Object{
			"name":         canon.String(c.Name),
			"phone":        canon.String(c.Phone),
			"relationship": canon.String(c.Relationship),
		}
	}

	obj := canon.Object{
		"v":               canon.Int(WireVersion),
		"emergency_id":    canon.String(rec.EmergencyID),
		"medical_summary": summary,
	}
	if rec.SubjectID != "" {
		obj["subject_id"] = canon.String(rec.SubjectID)
	}
	if !rec.CreatedAt.IsZero() {
		obj["created_at"] = canon.String(formatTime(rec.CreatedAt))
	}
	if rec.HasExpiry() {
		obj["expires_at"] = canon.String(formatTime(rec.ExpiresAt))
	}
	if l := rec.Location; l != nil {
		loc := canon.Object{"lat": l.Lat, "lng": l.Lng}
		if l.Address != "" {
			loc["address"] = canon.String(l.Address)
		}
		obj["location"] = loc
	}
	return obj
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// wireRecord accepts the canonical snake_case keys plus the camelCase and
// legacy spellings (user_id, timestamp) seen in older payloads.
type wireRecord struct {
	Version *int `json:"v"`

	EmergencyID      string `json:"emergency_id"`
	EmergencyIDCamel string `json:"emergencyId"`

	SubjectID      flexString `json:"subject_id"`
	SubjectIDCamel flexString `json:"subjectId"`
	UserID         flexString `json:"user_id"`

	CreatedAt      string `json:"created_at"`
	CreatedAtCamel string `json:"createdAt"`
	Timestamp      string `json:"timestamp"`

	ExpiresAt      string `json:"expires_at"`
	ExpiresAtCamel string `json:"expiresAt"`

	Location *wireLocation `json:"location"`

	MedicalSummary      *wireSummary `json:"medical_summary"`
	MedicalSummaryCamel *wireSummary `json:"medicalSummary"`
}

type wireLocation struct {
	Lat     json.Number `json:"lat"`
	Lng     json.Number `json:"lng"`
	Address string      `json:"address"`
}

type wireSummary struct {
	BloodType      string `json:"blood_type"`
	BloodTypeCamel string `json:"bloodType"`

	Allergies   stringList `json:"allergies"`
	Conditions  stringList `json:"conditions"`
	Medications stringList `json:"medications"`

	EmergencyContact      *record.EmergencyContact `json:"emergency_contact"`
	EmergencyContactCamel *record.EmergencyContact `json:"emergencyContact"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

// stringList accepts an array of strings, a single comma-separated string,
// or null.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = strings.Split(s, ",")
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("expected list of strings: %w", err)
	}
	*l = arr
	return nil
}

func firstNonEmpty[T ~string](vals ...T) T {
	for _, v := range vals {
		if strings.TrimSpace(string(v)) != "" {
			return v
		}
	}
	return ""
}

// fromWire converts a parsed payload into a record, applying defaults for
// absent optional fields. The returned error is a *record.ValidationError
// or a parse error; the decoder classifies it.
func fromWire(w *wireRecord) (record.EmergencyRecord, error) {
	var rec record.EmergencyRecord

	if w.Version != nil && *w.Version != WireVersion {
		return rec, &record.ValidationError{Field: "v", Message: fmt.Sprintf("unsupported payload version %d", *w.Version)}
	}

	rec.EmergencyID = strings.TrimSpace(firstNonEmpty(w.EmergencyID, w.EmergencyIDCamel))
	if rec.EmergencyID == "" {
		return rec, &record.ValidationError{Field: "emergency_id", Message: "emergency id is required"}
	}
	rec.SubjectID = strings.TrimSpace(string(firstNonEmpty(w.SubjectID, w.SubjectIDCamel, w.UserID)))

	if s := firstNonEmpty(w.CreatedAt, w.CreatedAtCamel, w.Timestamp); s != "" {
		t, err := parseTime(s)
		if err != nil {
			return rec, &record.ValidationError{Field: "created_at", Message: err.Error()}
		}
		rec.CreatedAt = t
	}
	if s := firstNonEmpty(w.ExpiresAt, w.ExpiresAtCamel); s != "" {
		t, err := parseTime(s)
		if err != nil {
			return rec, &record.ValidationError{Field: "expires_at", Message: err.Error()}
		}
		rec.ExpiresAt = t
	}

	if w.Location != nil && w.Location.Lat != "" && w.Location.Lng != "" {
		lat, err := canon.ParseFixed(w.Location.Lat.String())
		if err != nil {
			return rec, &record.ValidationError{Field: "location.lat", Message: err.Error()}
		}
		lng, err := canon.ParseFixed(w.Location.Lng.String())
		if err != nil {
			return rec, &record.ValidationError{Field: "location.lng", Message: err.Error()}
		}
		rec.Location = &record.Location{Lat: lat, Lng: lng, Address: record.Clean(w.Location.Address)}
	}

	ws := w.MedicalSummary
	if ws == nil {
		ws = w.MedicalSummaryCamel
	}
	if ws == nil {
		return rec, &record.ValidationError{Field: "medical_summary", Message: "medical summary is required"}
	}
	bt, err := record.ParseBloodType(firstNonEmpty(ws.BloodType, ws.BloodTypeCamel))
	if err != nil {
		return rec, &record.ValidationError{Field: "medical_summary.blood_type", Message: err.Error()}
	}
	contact := ws.EmergencyContact
	if contact == nil {
		contact = ws.EmergencyContactCamel
	}
	rec.MedicalSummary = record.MedicalSummary{
		BloodType:        bt,
		Allergies:        ws.Allergies,
		Conditions:       ws.Conditions,
		Medications:      ws.Medications,
		EmergencyContact: contact,
	}.Normalized()

	return rec, rec.Validate()
}
