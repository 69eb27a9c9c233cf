package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/lifeline/internal/codec"
	"github.com/roach88/lifeline/internal/record"
)

// IncidentStatus is the lifecycle state of an incident row.
type IncidentStatus string

const (
	IncidentActive   IncidentStatus = "active"
	IncidentResolved IncidentStatus = "resolved"
)

// Incident is one emergency as recorded by the server.
type Incident struct {
	Record      record.EmergencyRecord
	Status      IncidentStatus
	Fingerprint string
	Payload     string
	ResolvedAt  time.Time
	Seq         int64
}

// Access is one responder opening an incident.
type Access struct {
	EmergencyID string
	ResponderID string
	AccessedAt  time.Time
	Seq         int64
}

// CreateIncident records a new active incident. An emergency id already in
// the ledger is ErrDuplicate.
func (s *Store) CreateIncident(ctx context.Context, rec record.EmergencyRecord, fingerprint, payload string) (Incident, error) {
	data, err := codec.MarshalRecord(rec)
	if err != nil {
		return Incident{}, fmt.Errorf("create incident: %w", err)
	}
	inc := Incident{
		Record:      rec,
		Status:      IncidentActive,
		Fingerprint: fingerprint,
		Payload:     payload,
		Seq:         s.seq.Next(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO incidents
		(emergency_id, subject_id, status, fingerprint, payload, record, created_at, expires_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.EmergencyID, rec.SubjectID, string(inc.Status), fingerprint, payload, string(data),
		formatTime(rec.CreatedAt), formatTime(rec.ExpiresAt), inc.Seq,
	)
	if err != nil {
		if isUnique(err) {
			return Incident{}, fmt.Errorf("create incident %s: %w", rec.EmergencyID, ErrDuplicate)
		}
		return Incident{}, fmt.Errorf("create incident: %w", err)
	}
	return inc, nil
}

const incidentColumns = `status, fingerprint, payload, record, resolved_at, seq`

// Incident loads one incident.
func (s *Store) Incident(ctx context.Context, emergencyID string) (Incident, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE emergency_id = ?`, emergencyID)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Incident{}, ErrNotFound
	}
	return inc, err
}

// ResolveIncident marks an incident resolved. The row is kept; resolving
// twice keeps the first resolution time.
func (s *Store) ResolveIncident(ctx context.Context, emergencyID string, at time.Time) (Incident, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE incidents SET status = ?, resolved_at = ?
		WHERE emergency_id = ? AND status = ?
	`, string(IncidentResolved), formatTime(at), emergencyID, string(IncidentActive))
	if err != nil {
		return Incident{}, fmt.Errorf("resolve incident: %w", err)
	}
	return s.Incident(ctx, emergencyID)
}

// IncidentsBySubject lists a subject's incidents, oldest first.
func (s *Store) IncidentsBySubject(ctx context.Context, subjectID string) ([]Incident, error) {
	return s.queryIncidents(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE subject_id = ?
		ORDER BY seq ASC, emergency_id ASC COLLATE BINARY
	`, subjectID)
}

// ActiveIncidents lists unresolved incidents, oldest first.
func (s *Store) ActiveIncidents(ctx context.Context) ([]Incident, error) {
	return s.queryIncidents(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE status = ?
		ORDER BY seq ASC, emergency_id ASC COLLATE BINARY
	`, string(IncidentActive))
}

func (s *Store) queryIncidents(ctx context.Context, query string, args ...any) ([]Incident, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIncident(row scanner) (Incident, error) {
	var (
		inc      Incident
		status   string
		data     string
		resolved string
	)
	if err := row.Scan(&status, &inc.Fingerprint, &inc.Payload, &data, &resolved, &inc.Seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Incident{}, err
		}
		return Incident{}, fmt.Errorf("scan incident: %w", err)
	}
	rec, err := codec.UnmarshalRecord([]byte(data))
	if err != nil {
		return Incident{}, fmt.Errorf("stored record: %w", err)
	}
	inc.Record = rec
	inc.Status = IncidentStatus(status)
	if inc.ResolvedAt, err = parseTime(resolved); err != nil {
		return Incident{}, err
	}
	return inc, nil
}

// RecordAccess notes that a responder opened an incident. Only the first
// access per responder is kept; later calls are no-ops. Returns whether a
// row was written.
func (s *Store) RecordAccess(ctx context.Context, emergencyID, responderID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO incident_access (emergency_id, responder_id, accessed_at, seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(emergency_id, responder_id) DO NOTHING
	`, emergencyID, responderID, formatTime(at), s.seq.Next())
	if err != nil {
		if isForeignKey(err) {
			return false, fmt.Errorf("record access %s: %w", emergencyID, ErrNotFound)
		}
		return false, fmt.Errorf("record access: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AccessLog lists responders who opened an incident, in access order.
func (s *Store) AccessLog(ctx context.Context, emergencyID string) ([]Access, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT emergency_id, responder_id, accessed_at, seq FROM incident_access
		WHERE emergency_id = ?
		ORDER BY seq ASC, responder_id ASC COLLATE BINARY
	`, emergencyID)
	if err != nil {
		return nil, fmt.Errorf("query access log: %w", err)
	}
	defer rows.Close()

	var out []Access
	for rows.Next() {
		var a Access
		var at string
		if err := rows.Scan(&a.EmergencyID, &a.ResponderID, &at, &a.Seq); err != nil {
			return nil, fmt.Errorf("scan access: %w", err)
		}
		if a.AccessedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access log: %w", err)
	}
	return out, nil
}
