package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/lifeline/internal/canon"
	"github.com/roach88/lifeline/internal/codec"
	"github.com/roach88/lifeline/internal/record"
)

// formatTime renders t for storage. The zero time is stored as "".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(codec.TimeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(codec.TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t.UTC(), nil
}

// marshalProfile converts a profile to canonical JSON TEXT. A nil profile
// is stored as NULL.
func marshalProfile(p *record.Profile) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	obj := canon.Object{
		"subject_id":  canon.String(p.SubjectID),
		"allergies":   canon.Strings(p.Allergies),
		"conditions":  canon.Strings(p.Conditions),
		"medications": canon.Strings(p.Medications),
	}
	if p.Name != "" {
		obj["name"] = canon.String(p.Name)
	}
	if p.BloodType.Known() {
		obj["blood_type"] = canon.String(p.BloodType)
	}
	if c := p.EmergencyContact; c != nil {
		obj["emergency_contact"] = canon.Object{
			"name":         canon.String(c.Name),
			"phone":        canon.String(c.Phone),
			"relationship": canon.String(c.Relationship),
		}
	}
	data, err := canon.Marshal(obj)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal profile: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalProfile(ns sql.NullString) (*record.Profile, error) {
	if !ns.Valid {
		return nil, nil
	}
	var p record.Profile
	if err := json.Unmarshal([]byte(ns.String), &p); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	p.Allergies = record.NormalizeList(p.Allergies)
	p.Conditions = record.NormalizeList(p.Conditions)
	p.Medications = record.NormalizeList(p.Medications)
	return &p, nil
}
