package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/lifeline/internal/api"
	"github.com/roach88/lifeline/internal/assistant"
	"github.com/roach88/lifeline/internal/authclient"
	"github.com/roach88/lifeline/internal/builder"
	"github.com/roach88/lifeline/internal/codec"
	"github.com/roach88/lifeline/internal/fault"
	"github.com/roach88/lifeline/internal/record"
	"github.com/roach88/lifeline/internal/store"
	"github.com/roach88/lifeline/internal/testutil"
)

var testNow = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

// fakeProvider echoes the message and records the history it saw.
type fakeProvider struct {
	mu      sync.Mutex
	seen    []int
	failing bool
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Reply(_ context.Context, history []api.ChatMessage, message string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, len(history))
	if p.failing {
		return "", fault.New(fault.KindNetworkUnreachable, "fake", "down")
	}
	return "echo: " + message, nil
}

type fixture struct {
	srv      *Server
	http     *httptest.Server
	store    *store.Store
	clock    *testutil.ManualClock
	provider *fakeProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(store.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clk := testutil.NewManualClock(testNow)
	p := &fakeProvider{}
	s, err := New(Options{
		Store:      st,
		Provider:   p,
		Decoder:    codec.NewDecoder(codec.DecoderOptions{Clock: clk}),
		Build:      builder.Options{TTL: 2 * time.Hour},
		BcryptCost: bcrypt.MinCost,
		Clock:      clk,
	})
	require.NoError(t, err)
	require.NoError(t, s.SeedDemo(context.Background()))

	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return &fixture{srv: s, http: ts, store: st, clock: clk, provider: p}
}

// do sends a JSON request and decodes the JSON reply into out.
func (f *fixture) do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.http.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) login(t *testing.T, email string) api.AuthResponse {
	t.Helper()
	var out api.AuthResponse
	code := f.do(t, "POST", "/auth/login", "", api.LoginRequest{Email: email, Password: api.DemoPassword}, &out)
	require.Equal(t, http.StatusOK, code)
	return out
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestHealthRoutes(t *testing.T) {
	f := newFixture(t)
	var h api.HealthResponse
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/health", "", nil, &h))
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/auth/health", "", nil, &h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/", "", nil, &h))
}

func TestUnknownRouteAndMethod(t *testing.T) {
	f := newFixture(t)
	var e api.ErrorResponse
	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/nope", "", nil, &e))
	assert.Equal(t, "Not found", e.Detail)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, "GET", "/auth/login", "", nil, &e))
}

func TestSeedDemoIsIdempotent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.srv.SeedDemo(context.Background()))
	n, err := f.store.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	out := f.login(t, api.DemoPatientEmail)
	assert.NotEmpty(t, out.AccessToken)
	assert.Equal(t, "bearer", out.TokenType)
	assert.Equal(t, record.DemoSubjectID, out.UserID)
	require.NotNil(t, out.MedicalInfo)
	assert.Equal(t, record.BloodOPos, out.MedicalInfo.BloodType)

	var e api.ErrorResponse
	code := f.do(t, "POST", "/auth/login", "", api.LoginRequest{Email: api.DemoPatientEmail, Password: "wrong"}, &e)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid credentials", e.Detail)

	code = f.do(t, "POST", "/auth/login", "", api.LoginRequest{Email: "nobody@example.com", Password: "x"}, &e)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	req := api.RegisterRequest{
		Email: "New@Example.com", Password: "pw", FirstName: "Nia", LastName: "New", UserType: api.RoleResponder,
	}
	var out api.AuthResponse
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/auth/register", "", req, &out))
	assert.Equal(t, "new@example.com", out.Email)
	assert.Equal(t, api.RoleResponder, out.UserType)
	assert.Nil(t, out.MedicalInfo)

	var e api.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/auth/register", "", req, &e))
	assert.Equal(t, "Email already registered", e.Detail)

	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/auth/register", "",
		api.RegisterRequest{Email: "bad", Password: "pw"}, &e))
	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/auth/register", "",
		api.RegisterRequest{Email: "a@b.c", Password: "pw", UserType: "admin"}, &e))
}

func TestRegisterPatientGetsEmptyProfile(t *testing.T) {
	f := newFixture(t)
	var out api.AuthResponse
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/auth/register", "",
		api.RegisterRequest{Email: "p@example.com", Password: "pw", FirstName: "Pat"}, &out))
	assert.Equal(t, api.RolePatient, out.UserType)
	require.NotNil(t, out.MedicalInfo)
	assert.Equal(t, out.UserID, out.MedicalInfo.SubjectID)

	var gen api.GenerateResponse
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/qr/generate-emergency", out.AccessToken, api.GenerateRequest{}, &gen))
	var scan api.ScanResponse
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/qr/scan", "", api.ScanRequest{QRData: gen.QRData}, &scan))
	summary, ok := scan.Record["medical_summary"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, summary, "blood_type")
	assert.Equal(t, []any{}, summary["allergies"])
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	tok := f.login(t, api.DemoResponderEmail).AccessToken

	var u api.User
	require.Equal(t, http.StatusOK, f.do(t, "GET", "/auth/me", tok, nil, &u))
	assert.Equal(t, "RES123", u.BadgeNumber)

	var e api.ErrorResponse
	assert.Equal(t, http.StatusUnauthorized, f.do(t, "GET", "/auth/me", "", nil, &e))
	assert.Equal(t, "Not authenticated", e.Detail)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, "GET", "/auth/me", "not-a-token", nil, &e))
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	tok := f.login(t, api.DemoPatientEmail).AccessToken

	p := record.Profile{
		BloodType: "ab-",
		Allergies: []string{" Latex ", ""},
		EmergencyContact: &record.EmergencyContact{
			Name: "Kim", Phone: "+1 555 0199", Relationship: "Sibling",
		},
	}
	var u api.User
	require.Equal(t, http.StatusOK, f.do(t, "PUT", "/auth/me/profile", tok, p, &u))
	require.NotNil(t, u.MedicalInfo)
	assert.Equal(t, record.BloodType("AB-"), u.MedicalInfo.BloodType)
	assert.Equal(t, []string{"Latex"}, u.MedicalInfo.Allergies)
	assert.Equal(t, record.DemoSubjectID, u.MedicalInfo.SubjectID)

	stored, err := f.store.UserByID(context.Background(), record.DemoSubjectID)
	require.NoError(t, err)
	assert.Equal(t, u.MedicalInfo, stored.Profile)

	var e api.ErrorResponse
	p.BloodType = "Z+"
	assert.Equal(t, http.StatusUnprocessableEntity, f.do(t, "PUT", "/auth/me/profile", tok, p, &e))
	assert.Contains(t, e.Detail, "blood_type")

	rtok := f.login(t, api.DemoResponderEmail).AccessToken
	assert.Equal(t, http.StatusForbidden, f.do(t, "PUT", "/auth/me/profile", rtok, p, &e))
}

func ptr(v float64) *float64 { return &v }

func TestGenerateAndScan(t *testing.T) {
	f := newFixture(t)
	ptok := f.login(t, api.DemoPatientEmail).AccessToken
	rtok := f.login(t, api.DemoResponderEmail).AccessToken

	var gen api.GenerateResponse
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/qr/generate-emergency", ptok,
		api.GenerateRequest{Lat: ptr(40.7128), Lng: ptr(-74.006), Address: "New York"}, &gen))
	assert.True(t, strings.HasPrefix(gen.QRData, codec.FramePrefix+gen.EmergencyID+":"))
	assert.Equal(t, "2026-10-16T11:30:00.000Z", gen.ExpiresAt)
	assert.Empty(t, gen.Notice)
	assert.LessOrEqual(t, gen.Size, gen.Limit)
	png, err := base64.StdEncoding.DecodeString(gen.PNG)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	inc, err := f.store.Incident(context.Background(), gen.EmergencyID)
	require.NoError(t, err)
	assert.Equal(t, store.IncidentActive, inc.Status)
	assert.Equal(t, gen.Fingerprint, inc.Fingerprint)

	var scan api.ScanResponse
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/qr/scan", rtok, api.ScanRequest{QRData: gen.QRData}, &scan))
	assert.Equal(t, "valid", scan.Status)
	assert.Equal(t, gen.EmergencyID, scan.EmergencyID)
	assert.Equal(t, int64(7200), scan.RemainingSeconds)
	assert.Equal(t, "active", scan.IncidentStatus)
	assert.Equal(t, "https://maps.google.com/?q=40.712800,-74.006000", scan.MapsURL)
	assert.Equal(t, record.DemoSubjectID, scan.Record["subject_id"])

	// a second scan by the same responder is not a second access
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/qr/scan", rtok, api.ScanRequest{QRData: gen.QRData}, &scan))
	log, err := f.store.AccessLog(context.Background(), gen.EmergencyID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "demo-responder-1", log[0].ResponderID)

	f.clock.Advance(3 * time.Hour)
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/qr/scan", "", api.ScanRequest{QRData: gen.QRData}, &scan))
	assert.Equal(t, "expired", scan.Status)
	assert.Zero(t, scan.RemainingSeconds)
}

func TestGenerateWithoutLocation(t *testing.T) {
	f := newFixture(t)
	tok := f.login(t, api.DemoPatientEmail).AccessToken

	var gen api.GenerateResponse
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/qr/generate-emergency", tok, api.GenerateRequest{Lat: ptr(10)}, &gen))
	assert.Equal(t, builder.NoticeNoLocator, gen.Notice)

	var scan api.ScanResponse
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/qr/scan", "", api.ScanRequest{QRData: gen.QRData}, &scan))
	assert.Empty(t, scan.MapsURL)
	assert.NotContains(t, scan.Record, "location")
}

func TestGenerateRequiresPatient(t *testing.T) {
	f := newFixture(t)
	var e api.ErrorResponse
	assert.Equal(t, http.StatusUnauthorized, f.do(t, "POST", "/qr/generate-emergency", "", nil, &e))

	rtok := f.login(t, api.DemoResponderEmail).AccessToken
	assert.Equal(t, http.StatusForbidden, f.do(t, "POST", "/qr/generate-emergency", rtok, nil, &e))
}

func TestScanRejectsMalformed(t *testing.T) {
	f := newFixture(t)
	var e api.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/qr/scan", "", api.ScanRequest{QRData: "EMERGENCY:x"}, &e))
	assert.Contains(t, e.Detail, "Invalid QR code")
	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/qr/scan", "", api.ScanRequest{}, &e))
	assert.Equal(t, "No QR data provided", e.Detail)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, "POST", "/qr/scan", "stale-token", api.ScanRequest{QRData: "x"}, &e))
}

func TestScanUnknownIncident(t *testing.T) {
	f := newFixture(t)
	enc, err := codec.NewEncoder(codec.EncoderOptions{}).Encode(record.DemoRecord(testNow, time.Hour))
	require.NoError(t, err)
	rtok := f.login(t, api.DemoResponderEmail).AccessToken

	var scan api.ScanResponse
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/qr/scan", rtok, api.ScanRequest{QRData: enc.Payload}, &scan))
	assert.Equal(t, record.DemoEmergencyID, scan.EmergencyID)
	assert.Empty(t, scan.IncidentStatus)
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	ptok := f.login(t, api.DemoPatientEmail).AccessToken
	rtok := f.login(t, api.DemoResponderEmail).AccessToken

	var gen api.GenerateResponse
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/qr/generate-emergency", ptok, nil, &gen))

	var e api.ErrorResponse
	assert.Equal(t, http.StatusNotFound, f.do(t, "POST", "/incidents/EMGNOPE/resolve", rtok, nil, &e))
	assert.Equal(t, http.StatusUnauthorized, f.do(t, "POST", "/incidents/"+gen.EmergencyID+"/resolve", "", nil, &e))

	f.clock.Advance(10 * time.Minute)
	var res api.ResolveResponse
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/incidents/"+gen.EmergencyID+"/resolve", rtok, nil, &res))
	assert.Equal(t, "resolved", res.Status)
	assert.Equal(t, "2026-10-16T09:40:00.000Z", res.ResolvedAt)

	f.clock.Advance(time.Minute)
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/incidents/"+gen.EmergencyID+"/resolve", ptok, nil, &res))
	assert.Equal(t, "2026-10-16T09:40:00.000Z", res.ResolvedAt)

	var scan api.ScanResponse
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/qr/scan", "", api.ScanRequest{QRData: gen.QRData}, &scan))
	assert.Equal(t, "resolved", scan.IncidentStatus)
}

func TestResolveOtherPatientForbidden(t *testing.T) {
	f := newFixture(t)
	ptok := f.login(t, api.DemoPatientEmail).AccessToken
	var gen api.GenerateResponse
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/qr/generate-emergency", ptok, nil, &gen))

	var other api.AuthResponse
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/auth/register", "",
		api.RegisterRequest{Email: "o@example.com", Password: "pw"}, &other))
	var e api.ErrorResponse
	assert.Equal(t, http.StatusForbidden,
		f.do(t, "POST", "/incidents/"+gen.EmergencyID+"/resolve", other.AccessToken, nil, &e))
}

func TestChat(t *testing.T) {
	f := newFixture(t)

	var e api.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/nlp/chat", "", api.ChatRequest{UserID: "p1", Message: "  "}, &e))
	assert.Equal(t, "No message provided", e.Detail)

	var out api.ChatResponse
	for i := 1; i <= 5; i++ {
		msg := fmt.Sprintf("m%d", i)
		require.Equal(t, http.StatusOK, f.do(t, "POST", "/nlp/chat", "", api.ChatRequest{UserID: "p1", Message: msg}, &out))
		assert.Equal(t, "echo: "+msg, out.Reply)
	}
	require.Len(t, out.History, 6)
	assert.Equal(t, api.ChatMessage{Role: api.ChatRoleUser, Content: "m3"}, out.History[0])
	assert.Equal(t, api.ChatMessage{Role: api.ChatRoleAssistant, Content: "echo: m5"}, out.History[5])

	// history grows to its bound and no further
	assert.Equal(t, []int{0, 2, 4, 6, 8}, f.provider.seen)
	for i := 6; i <= 8; i++ {
		require.Equal(t, http.StatusOK, f.do(t, "POST", "/nlp/chat", "", api.ChatRequest{UserID: "p1", Message: "more"}, &out))
	}
	assert.Equal(t, historyKept, f.provider.seen[len(f.provider.seen)-1])

	require.Equal(t, http.StatusOK, f.do(t, "POST", "/nlp/chat", "", api.ChatRequest{UserID: "p2", Message: "hi"}, &out))
	assert.Len(t, out.History, 2)
}

func TestChatProviderFailureIsVisibleReply(t *testing.T) {
	f := newFixture(t)
	f.provider.failing = true

	var out api.ChatResponse
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/nlp/chat", "", api.ChatRequest{Message: "help"}, &out))
	assert.Contains(t, out.Reply, "could not generate a response")
	assert.Len(t, out.History, 2)
}

func TestClientsAgainstServer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	auth := authclient.New(authclient.Options{BaseURL: f.http.URL})
	require.NoError(t, auth.Health(ctx))
	resp, err := auth.Login(ctx, api.DemoPatientEmail, api.DemoPassword)
	require.NoError(t, err)
	me, err := auth.Me(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, api.DemoPatientEmail, me.Email)

	_, err = auth.Login(ctx, api.DemoPatientEmail, "nope")
	assert.True(t, fault.IsAuthRejected(err))
	assert.Contains(t, err.Error(), "Invalid credentials")

	chat := assistant.NewClient(assistant.Options{BaseURL: f.http.URL})
	reply, err := chat.Chat(ctx, "p1", "burn")
	require.NoError(t, err)
	assert.Equal(t, "echo: burn", reply.Reply)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Run(ctx, RunOptions{Listener: ln, ShutdownTimeout: time.Second}) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunListenError(t *testing.T) {
	f := newFixture(t)
	err := f.srv.Run(context.Background(), RunOptions{Addr: "256.0.0.1:bad"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}
