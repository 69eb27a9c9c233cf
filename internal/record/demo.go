package record

import "time"

// DemoSubjectID identifies the built-in demo patient.
const DemoSubjectID = "demo-patient-1"

// DemoEmergencyID is the fixed id carried by scanner demo data.
const DemoEmergencyID = "DEMO123"

// DemoProfile returns the built-in demo patient profile.
func DemoProfile() Profile {
	return Profile{
		SubjectID:   DemoSubjectID,
		Name:        "Alex Patient",
		BloodType:   BloodOPos,
		Allergies:   []string{"Penicillin", "Peanuts"},
		Conditions:  []string{"Asthma"},
		Medications: []string{"Ventolin"},
		EmergencyContact: &EmergencyContact{
			Name:         "Sarah Wilson",
			Phone:        "+1-555-0123",
			Relationship: "Spouse",
		},
	}
}

// DemoRecord returns the scanner fallback record, created at now and valid
// for ttl. Used when no camera or payload is available.
func DemoRecord(now time.Time, ttl time.Duration) EmergencyRecord {
	created := now.UTC().Truncate(time.Millisecond)
	loc := NewLocation(40.7128, -74.0060, "New York, NY, USA")
	return EmergencyRecord{
		EmergencyID: DemoEmergencyID,
		SubjectID:   "999",
		CreatedAt:   created,
		ExpiresAt:   created.Add(ttl),
		Location:    &loc,
		MedicalSummary: MedicalSummary{
			BloodType:   BloodOPos,
			Allergies:   []string{"Penicillin", "Peanuts", "Shellfish"},
			Conditions:  []string{"Asthma", "Hypertension", "Type 2 Diabetes"},
			Medications: []string{"Ventolin", "Lisinopril", "Metformin"},
			EmergencyContact: &EmergencyContact{
				Name:         "Jane Smith",
				Phone:        "+1-555-0123",
				Relationship: "Spouse",
			},
		},
	}
}
