package api

import (
	"fmt"
	"strings"

	"github.com/roach88/lifeline/internal/record"
)

// Role is the kind of account.
type Role string

const (
	RolePatient   Role = "patient"
	RoleResponder Role = "responder"
)

// ParseRole accepts "patient" or "responder" in any case.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RolePatient, RoleResponder:
		return r, nil
	default:
		return "", fmt.Errorf("unknown user type %q: must be patient or responder", s)
	}
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// HealthResponse is returned by the health routes.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	UserType  Role   `json:"user_type"`
}

// User is an account as seen by clients.
type User struct {
	UserID       string          `json:"user_id"`
	Email        string          `json:"email"`
	UserType     Role            `json:"user_type"`
	FirstName    string          `json:"first_name"`
	LastName     string          `json:"last_name"`
	Phone        string          `json:"phone,omitempty"`
	BadgeNumber  string          `json:"badge_number,omitempty"`
	Organization string          `json:"organization,omitempty"`
	MedicalInfo  *record.Profile `json:"medical_info,omitempty"`
}

// DisplayName joins first and last name.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User
}

// GenerateRequest is the body of POST /qr/generate-emergency. Coordinates
// are optional; without both the record carries no location.
type GenerateRequest struct {
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
	Address string   `json:"address,omitempty"`
}

// GenerateResponse describes a freshly encoded emergency.
type GenerateResponse struct {
	EmergencyID string `json:"emergency_id"`
	QRData      string `json:"qr_data"`
	Fingerprint string `json:"fingerprint"`
	ExpiresAt   string `json:"expires_at"`
	Size        int    `json:"size"`
	Limit       int    `json:"limit"`
	PNG         string `json:"qr_png_base64"`
	Notice      string `json:"notice,omitempty"`
}

// ScanRequest is the body of POST /qr/scan.
type ScanRequest struct {
	QRData string `json:"qr_data"`
}

// ScanResponse carries a decoded record. Record is the canonical wire
// form.
type ScanResponse struct {
	Status           string         `json:"status"`
	EmergencyID      string         `json:"emergency_id"`
	RemainingSeconds int64          `json:"remaining_seconds"`
	Record           map[string]any `json:"record"`
	MapsURL          string         `json:"maps_url,omitempty"`
	// IncidentStatus is set when the server ledger knows the emergency.
	IncidentStatus string `json:"incident_status,omitempty"`
}

// ResolveResponse confirms an incident resolution.
type ResolveResponse struct {
	EmergencyID string `json:"emergency_id"`
	Status      string `json:"status"`
	ResolvedAt  string `json:"resolved_at"`
}

// ChatMessage is one conversation entry.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles.
const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
	ChatRoleSystem    = "system"
)

// ChatRequest is the body of POST /nlp/chat.
type ChatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// ChatResponse is the reply with the recent history.
type ChatResponse struct {
	Reply   string        `json:"reply"`
	History []ChatMessage `json:"history"`
}
