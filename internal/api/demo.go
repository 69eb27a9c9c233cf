package api

import "github.com/roach88/lifeline/internal/record"

// DemoPassword is shared by the demo accounts.
const DemoPassword = "demo123"

// Demo account emails.
const (
	DemoPatientEmail   = "demo@patient.com"
	DemoResponderEmail = "demo@responder.com"
)

// DemoAccounts returns the built-in demo patient and responder.
func DemoAccounts() []User {
	p := record.DemoProfile()
	return []User{
		{
			UserID:      record.DemoSubjectID,
			Email:       DemoPatientEmail,
			UserType:    RolePatient,
			FirstName:   "Alex",
			LastName:    "Patient",
			Phone:       "+1-555-0101",
			MedicalInfo: &p,
		},
		{
			UserID:       "demo-responder-1",
			Email:        DemoResponderEmail,
			UserType:     RoleResponder,
			FirstName:    "Sarah",
			LastName:     "Responder",
			Phone:        "+1-555-0102",
			BadgeNumber:  "RES123",
			Organization: "City Emergency Services",
		},
	}
}

// DemoAccount returns the demo account for email, if there is one.
func DemoAccount(email string) (User, bool) {
	for _, u := range DemoAccounts() {
		if u.Email == email {
			return u, true
		}
	}
	return User{}, false
}
