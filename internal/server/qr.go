package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/roach88/lifeline/internal/api"
	"github.com/roach88/lifeline/internal/builder"
	"github.com/roach88/lifeline/internal/codec"
	"github.com/roach88/lifeline/internal/console"
	"github.com/roach88/lifeline/internal/fault"
	"github.com/roach88/lifeline/internal/profile"
	"github.com/roach88/lifeline/internal/qrimage"
	"github.com/roach88/lifeline/internal/record"
	"github.com/roach88/lifeline/internal/store"
)

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	u, err := s.authenticate(r)
	if err != nil {
		s.authError(w, err)
		return
	}
	if u.Role != api.RolePatient {
		writeError(w, http.StatusForbidden, "Only patients can generate emergency codes")
		return
	}
	var req api.GenerateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if u.Profile == nil {
		writeError(w, http.StatusBadRequest, "Medical profile is incomplete")
		return
	}
	p := *u.Profile
	if p.SubjectID == "" {
		p.SubjectID = u.ID
	}

	opts := s.build
	opts.Locator = nil
	if req.Lat != nil && req.Lng != nil {
		opts.Locator = builder.FixedLocator{Loc: record.NewLocation(*req.Lat, *req.Lng, req.Address)}
	}
	b := builder.New(opts)
	res, err := b.Build(r.Context(), p)
	if err != nil {
		var verr *record.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, "Medical profile is incomplete: "+verr.Error())
			return
		}
		s.internalError(w, "build", err)
		return
	}

	enc, err := s.encoder.Encode(res.Record)
	if err != nil {
		b.Discard(res.Record)
		if fault.IsPayloadTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, fault.Notice(err))
			return
		}
		s.internalError(w, "encode", err)
		return
	}
	png, err := qrimage.PNG(enc.Payload, enc.Level, s.qrScale)
	if err != nil {
		b.Discard(res.Record)
		s.internalError(w, "render", err)
		return
	}
	if _, err := s.store.CreateIncident(r.Context(), res.Record, enc.Fingerprint, enc.Payload); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "Emergency id already in use, please retry")
			return
		}
		s.internalError(w, "record incident", err)
		return
	}

	s.logger.Info("emergency code issued",
		zap.String("emergency_id", enc.EmergencyID),
		zap.String("subject_id", res.Record.SubjectID),
		zap.Int("size", enc.Size),
	)
	out := api.GenerateResponse{
		EmergencyID: enc.EmergencyID,
		QRData:      enc.Payload,
		Fingerprint: enc.Fingerprint,
		Size:        enc.Size,
		Limit:       enc.Limit,
		PNG:         base64.StdEncoding.EncodeToString(png),
		Notice:      res.Notice,
	}
	if res.Record.HasExpiry() {
		out.ExpiresAt = res.Record.ExpiresAt.UTC().Format(codec.TimeLayout)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	u, err := s.optionalUser(r)
	if err != nil {
		s.authError(w, err)
		return
	}
	var req api.ScanRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.QRData == "" {
		writeError(w, http.StatusBadRequest, "No QR data provided")
		return
	}
	d, err := s.decoder.Decode(req.QRData)
	if err != nil {
		s.logger.Info("scan rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid QR code: "+err.Error())
		return
	}
	rec, err := recordMap(d.Record)
	if err != nil {
		s.internalError(w, "scan", err)
		return
	}

	out := api.ScanResponse{
		Status:           string(d.Status),
		EmergencyID:      d.Record.EmergencyID,
		RemainingSeconds: int64(d.Remaining.Seconds()),
		Record:           rec,
		MapsURL:          console.MapsURL(d.Record.Location),
	}

	inc, err := s.store.Incident(r.Context(), d.Record.EmergencyID)
	switch {
	case err == nil:
		out.IncidentStatus = string(inc.Status)
		if u != nil && u.Role == api.RoleResponder {
			first, err := s.store.RecordAccess(r.Context(), d.Record.EmergencyID, u.ID, s.clock.Now())
			if err != nil {
				s.internalError(w, "record access", err)
				return
			}
			if first {
				s.logger.Info("responder opened incident",
					zap.String("emergency_id", d.Record.EmergencyID),
					zap.String("responder_id", u.ID),
				)
			}
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		s.internalError(w, "scan", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// recordMap is the canonical wire form of rec as a generic JSON object.
func recordMap(rec record.EmergencyRecord) (map[string]any, error) {
	data, err := codec.MarshalRecord(rec)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	u, err := s.authenticate(r)
	if err != nil {
		s.authError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	inc, err := s.store.Incident(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Incident not found")
		return
	}
	if err != nil {
		s.internalError(w, "resolve", err)
		return
	}
	if u.Role != api.RoleResponder && inc.Record.SubjectID != u.ID {
		writeError(w, http.StatusForbidden, "Not allowed to resolve this incident")
		return
	}
	inc, err = s.store.ResolveIncident(r.Context(), id, s.clock.Now())
	if err != nil {
		s.internalError(w, "resolve", err)
		return
	}
	s.logger.Info("incident resolved", zap.String("emergency_id", id), zap.String("by", u.ID))
	writeJSON(w, http.StatusOK, api.ResolveResponse{
		EmergencyID: id,
		Status:      string(inc.Status),
		ResolvedAt:  inc.ResolvedAt.UTC().Format(codec.TimeLayout),
	})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	u, err := s.authenticate(r)
	if err != nil {
		s.authError(w, err)
		return
	}
	if u.Role != api.RolePatient {
		writeError(w, http.StatusForbidden, "Only patients have a medical profile")
		return
	}
	var p record.Profile
	if err := readJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p.SubjectID = u.ID
	p, err = s.profiles.Validate(p)
	if err != nil {
		var verr *profile.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusUnprocessableEntity, verr.Error())
			return
		}
		s.internalError(w, "validate profile", err)
		return
	}
	if err := s.store.UpdateProfile(r.Context(), u.ID, &p); err != nil {
		s.internalError(w, "update profile", err)
		return
	}
	u.Profile = &p
	writeJSON(w, http.StatusOK, u.API())
}
