package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/lifeline/internal/api"
	"github.com/roach88/lifeline/internal/record"
)

var testNow = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

// createTestStore opens a file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(id string) record.EmergencyRecord {
	loc := record.NewLocation(40.7128, -74.006, "New York, NY, USA")
	return record.EmergencyRecord{
		EmergencyID: id,
		SubjectID:   "patient-1",
		CreatedAt:   testNow,
		ExpiresAt:   testNow.Add(2 * time.Hour),
		Location:    &loc,
		MedicalSummary: record.MedicalSummary{
			BloodType:   record.BloodOPos,
			Allergies:   []string{"Penicillin"},
			Conditions:  []string{},
			Medications: []string{},
		},
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	if _, err := Open("/nonexistent/dir/test.db"); err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpen_MemoryDefault(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if _, err := s.CreateIncident(ctx, testRecord("EMG1"), "fp", "payload"); err != nil {
		t.Fatalf("CreateIncident() failed: %v", err)
	}
	// Same connection, same in-memory database.
	if _, err := s.Incident(ctx, "EMG1"); err != nil {
		t.Errorf("Incident() failed: %v", err)
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)
	for name, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"foreign_keys": "1",
		"user_version": "1",
	} {
		if err := s.verifyPragma(name, want); err != nil {
			t.Error(err)
		}
	}
}

func TestSeqResumesAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	first, err := s1.CreateIncident(ctx, testRecord("EMG1"), "fp", "p")
	if err != nil {
		t.Fatalf("CreateIncident() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()
	second, err := s2.CreateIncident(ctx, testRecord("EMG2"), "fp", "p")
	if err != nil {
		t.Fatalf("CreateIncident() failed: %v", err)
	}
	if second.Seq <= first.Seq {
		t.Errorf("seq went backwards: %d then %d", first.Seq, second.Seq)
	}
}

func TestIncidentLifecycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := testRecord("EMG20261016093000ABC123")

	if _, err := s.CreateIncident(ctx, rec, "fp-1", "EMERGENCY:x:y"); err != nil {
		t.Fatalf("CreateIncident() failed: %v", err)
	}

	got, err := s.Incident(ctx, rec.EmergencyID)
	if err != nil {
		t.Fatalf("Incident() failed: %v", err)
	}
	if got.Status != IncidentActive || got.Fingerprint != "fp-1" || got.Payload != "EMERGENCY:x:y" {
		t.Errorf("unexpected incident: %+v", got)
	}
	if !got.Record.CreatedAt.Equal(rec.CreatedAt) || got.Record.Location.Lat != rec.Location.Lat {
		t.Errorf("record did not round-trip: %+v", got.Record)
	}

	resolvedAt := testNow.Add(30 * time.Minute)
	resolved, err := s.ResolveIncident(ctx, rec.EmergencyID, resolvedAt)
	if err != nil {
		t.Fatalf("ResolveIncident() failed: %v", err)
	}
	if resolved.Status != IncidentResolved || !resolved.ResolvedAt.Equal(resolvedAt) {
		t.Errorf("unexpected resolution: %+v", resolved)
	}

	// Resolving again keeps the first time.
	again, err := s.ResolveIncident(ctx, rec.EmergencyID, resolvedAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("second ResolveIncident() failed: %v", err)
	}
	if !again.ResolvedAt.Equal(resolvedAt) {
		t.Errorf("resolved_at changed: %v", again.ResolvedAt)
	}

	active, err := s.ActiveIncidents(ctx)
	if err != nil {
		t.Fatalf("ActiveIncidents() failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active incidents, got %d", len(active))
	}
}

func TestIncidentDuplicateID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateIncident(ctx, testRecord("EMG1"), "fp", "p"); err != nil {
		t.Fatalf("CreateIncident() failed: %v", err)
	}
	_, err := s.CreateIncident(ctx, testRecord("EMG1"), "fp", "p")
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestIncidentNotFound(t *testing.T) {
	s := createTestStore(t)
	if _, err := s.Incident(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.ResolveIncident(context.Background(), "missing", testNow); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIncidentsBySubjectOrdered(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"EMG3", "EMG1", "EMG2"} {
		if _, err := s.CreateIncident(ctx, testRecord(id), "fp", "p"); err != nil {
			t.Fatalf("CreateIncident(%s) failed: %v", id, err)
		}
	}
	list, err := s.IncidentsBySubject(ctx, "patient-1")
	if err != nil {
		t.Fatalf("IncidentsBySubject() failed: %v", err)
	}
	var ids []string
	for _, inc := range list {
		ids = append(ids, inc.Record.EmergencyID)
	}
	want := []string{"EMG3", "EMG1", "EMG2"}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestRecordAccessFirstOnly(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	if _, err := s.CreateIncident(ctx, testRecord("EMG1"), "fp", "p"); err != nil {
		t.Fatalf("CreateIncident() failed: %v", err)
	}

	wrote, err := s.RecordAccess(ctx, "EMG1", "responder-1", testNow)
	if err != nil || !wrote {
		t.Fatalf("first RecordAccess() = %v, %v", wrote, err)
	}
	wrote, err = s.RecordAccess(ctx, "EMG1", "responder-1", testNow.Add(time.Minute))
	if err != nil || wrote {
		t.Fatalf("repeat RecordAccess() = %v, %v", wrote, err)
	}
	if _, err := s.RecordAccess(ctx, "EMG1", "responder-2", testNow.Add(2*time.Minute)); err != nil {
		t.Fatalf("RecordAccess() failed: %v", err)
	}

	log, err := s.AccessLog(ctx, "EMG1")
	if err != nil {
		t.Fatalf("AccessLog() failed: %v", err)
	}
	if len(log) != 2 || log[0].ResponderID != "responder-1" || !log[0].AccessedAt.Equal(testNow) {
		t.Errorf("unexpected access log: %+v", log)
	}

	if _, err := s.RecordAccess(ctx, "missing", "responder-1", testNow); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown incident, got %v", err)
	}
}

func TestUsers(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	p := record.DemoProfile()

	created, err := s.CreateUser(ctx, User{
		ID:           "u1",
		Email:        "demo@patient.com",
		PasswordHash: "hash",
		Role:         api.RolePatient,
		FirstName:    "Alex",
		LastName:     "Patient",
		Profile:      &p,
		CreatedAt:    testNow,
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	if created.Seq == 0 {
		t.Error("expected a seq to be assigned")
	}

	got, err := s.UserByEmail(ctx, "demo@patient.com")
	if err != nil {
		t.Fatalf("UserByEmail() failed: %v", err)
	}
	if got.Profile == nil || got.Profile.BloodType != record.BloodOPos || len(got.Profile.Allergies) != 2 {
		t.Errorf("profile did not round-trip: %+v", got.Profile)
	}
	if got.API().DisplayName() != "Alex Patient" {
		t.Errorf("unexpected display name %q", got.API().DisplayName())
	}

	_, err = s.CreateUser(ctx, User{ID: "u2", Email: "demo@patient.com", PasswordHash: "h", Role: api.RolePatient})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	if _, err := s.UserByID(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	p.Allergies = []string{"Latex"}
	if err := s.UpdateProfile(ctx, "u1", &p); err != nil {
		t.Fatalf("UpdateProfile() failed: %v", err)
	}
	got, _ = s.UserByID(ctx, "u1")
	if len(got.Profile.Allergies) != 1 || got.Profile.Allergies[0] != "Latex" {
		t.Errorf("profile not updated: %+v", got.Profile)
	}

	n, err := s.CountUsers(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountUsers() = %d, %v", n, err)
	}
}
