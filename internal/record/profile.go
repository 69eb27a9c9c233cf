package record

import "strings"

// Profile is a patient's stored medical profile, the input to the builder.
type Profile struct {
	SubjectID        string            `json:"subject_id" yaml:"subject_id"`
	Name             string            `json:"name,omitempty" yaml:"name,omitempty"`
	BloodType        BloodType         `json:"blood_type,omitempty" yaml:"blood_type,omitempty"`
	Allergies        []string          `json:"allergies" yaml:"allergies"`
	Conditions       []string          `json:"conditions" yaml:"conditions"`
	Medications      []string          `json:"medications" yaml:"medications"`
	EmergencyContact *EmergencyContact `json:"emergency_contact,omitempty" yaml:"emergency_contact,omitempty"`
}

// Summary returns the normalized medical summary for this profile.
func (p Profile) Summary() MedicalSummary {
	return MedicalSummary{
		BloodType:        p.BloodType,
		Allergies:        p.Allergies,
		Conditions:       p.Conditions,
		Medications:      p.Medications,
		EmergencyContact: p.EmergencyContact,
	}.Normalized()
}

// Validate checks the fields a builder depends on.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.SubjectID) == "" {
		return &ValidationError{Field: "subject_id", Message: "subject id is required"}
	}
	if _, err := ParseBloodType(string(p.BloodType)); err != nil {
		return &ValidationError{Field: "blood_type", Message: err.Error()}
	}
	return nil
}
