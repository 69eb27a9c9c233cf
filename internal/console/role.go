package console

import (
	"context"
	"fmt"

	"github.com/roach88/lifeline/internal/api"
	"github.com/roach88/lifeline/internal/intake"
	"github.com/roach88/lifeline/internal/record"
)

// Role selects the console variant. It is one of PatientRole or
// ResponderRole.
type Role interface {
	Kind() api.Role
	role()
}

// PatientRole is a patient with the profile their records are built from.
type PatientRole struct {
	Profile record.Profile
}

func (PatientRole) Kind() api.Role { return api.RolePatient }
func (PatientRole) role()          {}

// ResponderRole is a responder identified for the access log.
type ResponderRole struct {
	ResponderID string
}

func (ResponderRole) Kind() api.Role { return api.RoleResponder }
func (ResponderRole) role()          {}

// RoleFor maps a signed-in user to a console role.
func RoleFor(u api.User) (Role, error) {
	switch u.UserType {
	case api.RolePatient:
		p := record.Profile{SubjectID: u.UserID}
		if u.MedicalInfo != nil {
			p = *u.MedicalInfo
			if p.SubjectID == "" {
				p.SubjectID = u.UserID
			}
		}
		return PatientRole{Profile: p}, nil
	case api.RoleResponder:
		return ResponderRole{ResponderID: u.UserID}, nil
	default:
		return nil, fmt.Errorf("console: unknown user type %q", u.UserType)
	}
}

// Capabilities describes what the host offers.
type Capabilities struct {
	CameraAvailable  bool
	BackendReachable bool
}

// DetectCapabilities probes the camera and pings the backend. Either may be
// nil, which reports the capability as absent.
func DetectCapabilities(ctx context.Context, probe intake.CameraProbe, ping func(context.Context) error) Capabilities {
	var caps Capabilities
	if probe != nil {
		caps.CameraAvailable = probe.Probe(ctx) == intake.CameraSupported
	}
	if ping != nil {
		caps.BackendReachable = ping(ctx) == nil
	}
	return caps
}
