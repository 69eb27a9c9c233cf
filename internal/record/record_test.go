package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBloodType(t *testing.T) {
	tests := []struct {
		in   string
		want BloodType
	}{
		{"O+", BloodOPos},
		{" ab- ", BloodABNeg},
		{"a+", BloodAPos},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := ParseBloodType(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseBloodType("Z+")
	assert.Error(t, err)
}

func TestMedicalSummaryNormalized(t *testing.T) {
	m := MedicalSummary{
		Allergies:        []string{" Penicillin ", "", "  "},
		Conditions:       nil,
		EmergencyContact: &EmergencyContact{},
	}

	n := m.Normalized()
	assert.Equal(t, []string{"Penicillin"}, n.Allergies)
	require.NotNil(t, n.Conditions)
	assert.Empty(t, n.Conditions)
	require.NotNil(t, n.Medications)
	assert.Nil(t, n.EmergencyContact)
}

func TestMedicalSummaryNormalizedBloodType(t *testing.T) {
	assert.Equal(t, BloodABNeg, MedicalSummary{BloodType: " ab- "}.Normalized().BloodType)
	assert.Equal(t, BloodType(""), MedicalSummary{BloodType: "  "}.Normalized().BloodType)
	// Left for Validate to reject.
	assert.Equal(t, BloodType("Q"), MedicalSummary{BloodType: "Q"}.Normalized().BloodType)
}

func TestMedicalSummaryNormalizedCopies(t *testing.T) {
	src := []string{"Asthma"}
	contact := &EmergencyContact{Name: "Sarah"}
	n := MedicalSummary{Conditions: src, EmergencyContact: contact}.Normalized()

	src[0] = "changed"
	contact.Name = "changed"
	assert.Equal(t, []string{"Asthma"}, n.Conditions)
	assert.Equal(t, "Sarah", n.EmergencyContact.Name)
}

func TestRecordExpiry(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := EmergencyRecord{EmergencyID: "EMG1", CreatedAt: created, ExpiresAt: created.Add(2 * time.Hour)}

	assert.True(t, r.HasExpiry())
	assert.False(t, r.ExpiredAt(created.Add(time.Hour)))
	assert.True(t, r.ExpiredAt(created.Add(2*time.Hour)))
	assert.Equal(t, time.Hour, r.Remaining(created.Add(time.Hour)))
	assert.Zero(t, r.Remaining(created.Add(3*time.Hour)))

	noExpiry := EmergencyRecord{EmergencyID: "EMG2", CreatedAt: created}
	assert.False(t, noExpiry.ExpiredAt(created.Add(1000*time.Hour)))
}

func TestRecordValidate(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	valid := func() EmergencyRecord {
		return EmergencyRecord{
			EmergencyID:    "EMG1",
			CreatedAt:      created,
			ExpiresAt:      created.Add(time.Hour),
			MedicalSummary: MedicalSummary{}.Normalized(),
		}
	}

	r := valid()
	require.NoError(t, r.Validate())

	r = valid()
	r.EmergencyID = " "
	assertField(t, r.Validate(), "emergency_id")

	r = valid()
	r.ExpiresAt = created
	assertField(t, r.Validate(), "expires_at")

	r = valid()
	loc := NewLocation(91, 0, "")
	r.Location = &loc
	assertField(t, r.Validate(), "location.lat")

	r = valid()
	r.MedicalSummary.Allergies = nil
	assertField(t, r.Validate(), "medical_summary")
}

func assertField(t *testing.T, err error, field string) {
	t.Helper()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, field, ve.Field)
}

func TestProfileSummaryScenario(t *testing.T) {
	p := Profile{
		SubjectID:   "p-1",
		BloodType:   BloodOPos,
		Allergies:   []string{"Penicillin"},
		Conditions:  []string{},
		Medications: []string{},
	}
	require.NoError(t, p.Validate())

	s := p.Summary()
	assert.Equal(t, []string{"Penicillin"}, s.Allergies)
	assert.Equal(t, []string{}, s.Conditions)
	assert.Equal(t, BloodOPos, s.BloodType)
}

func TestProfileValidate(t *testing.T) {
	assert.Error(t, Profile{}.Validate())
	assert.Error(t, Profile{SubjectID: "x", BloodType: "Q"}.Validate())
	assert.NoError(t, DemoProfile().Validate())
}

func TestDemoRecordIsValid(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	r := DemoRecord(now, 2*time.Hour)
	require.NoError(t, r.Validate())
	assert.Equal(t, DemoEmergencyID, r.EmergencyID)
	assert.Equal(t, 123000000, r.CreatedAt.Nanosecond())
}

func TestCleanNormalizesToNFC(t *testing.T) {
	assert.Equal(t, "Ren\u00e9", Clean("  Rene\u0301 "))
	assert.Equal(t, []string{"Ren\u00e9"}, NormalizeList([]string{"Rene\u0301"}))
}
