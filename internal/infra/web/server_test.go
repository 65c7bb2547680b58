package web

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"party_notification_bot/internal/app"
	"party_notification_bot/internal/app/apptest"
	"party_notification_bot/internal/domain/mode"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStatus struct {
	snap app.StatusSnapshot
}

func (s *stubStatus) Snapshot() app.StatusSnapshot { return s.snap }

func normalSnapshot() app.StatusSnapshot {
	latency := 42.0
	return app.StatusSnapshot{
		Mode:            mode.StateNormal,
		ModeChangedAt:   apptest.Epoch,
		HTTPStatus:      http.StatusOK,
		Uptime:          "1h 2m 3s",
		UptimeSeconds:   3723,
		LatencyMs:       &latency,
		LatencyHistory:  []app.LatencySample{{ValueMs: 40, CapturedAt: apptest.Epoch}, {ValueMs: 42, CapturedAt: apptest.Epoch.Add(time.Minute)}},
		ActiveUsers:     3,
		RegisteredUsers: 4,
		GeneratedAt:     apptest.Epoch.Add(time.Hour),
	}
}

func maintenanceSnapshot() app.StatusSnapshot {
	snap := normalSnapshot()
	snap.Mode = mode.StateMaintenance
	snap.HTTPStatus = http.StatusServiceUnavailable
	return snap
}

type testServer struct {
	status   *stubStatus
	sessions *SessionStore
	clock    *apptest.FakeClock
	handler  http.Handler
}

func newTestServer(t *testing.T, withLogin bool) *testServer {
	t.Helper()
	ts := &testServer{
		status: &stubStatus{snap: normalSnapshot()},
		clock:  apptest.NewFakeClock(apptest.Epoch),
	}
	ts.sessions = NewSessionStore(time.Hour, ts.clock)

	var creds *Credentials
	if withLogin {
		var err error
		creds, err = NewCredentials("admin", "hunter2")
		require.NoError(t, err)
	}
	ts.handler = NewServer(ts.status, ts.sessions, creds, apptest.QuietLogger()).Routes()
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(t *testing.T, user, pass string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"username": {user}, "password": {pass}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ts.do(req)
}

func TestHealth_NormalReturnsJSON(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NORMAL", body["mode"])
	assert.Equal(t, "1h 2m 3s", body["uptime"])
	assert.Equal(t, 42.0, body["latency_ms"])
	assert.Equal(t, 3.0, body["active_users"])
	assert.Equal(t, 4.0, body["registered_users"])
	assert.Len(t, body["latency_history"], 2)
	assert.NotContains(t, body, "owner_away_until")
	assert.NotContains(t, body, "HTTPStatus")
}

func TestHealth_MaintenanceReturns503(t *testing.T) {
	ts := newTestServer(t, true)
	ts.status.snap = maintenanceSnapshot()

	for i := 0; i < 3; i++ {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"mode":"MAINTENANCE"`)
	}
}

func TestHealth_HeadIsServed(t *testing.T) {
	ts := newTestServer(t, false)
	ts.status.snap = maintenanceSnapshot()

	rec := ts.do(httptest.NewRequest(http.MethodHead, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRootRedirectsToDashboard(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestDashboard_OpenWithoutCredentials(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "NORMAL")
	assert.Contains(t, body, "1h 2m 3s")
	assert.Contains(t, body, "42 ms")
	assert.Contains(t, body, "3 active / 4 registered")
	assert.NotContains(t, body, "Log out")
}

func TestDashboard_MaintenancePageFor503(t *testing.T) {
	ts := newTestServer(t, true)
	ts.status.snap = maintenanceSnapshot()

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Updating...")
}

func TestDashboard_RequiresLogin(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="password"`)
}

func TestLogin_WrongPassword(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.login(t, "admin", "nope")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Wrong username or password")
	assert.Empty(t, rec.Result().Cookies())
	assert.Zero(t, ts.sessions.Len())
}

func TestLogin_SessionFlow(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.login(t, "admin", "hunter2")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	session := cookies[0]
	assert.Equal(t, sessionCookie, session.Name)
	assert.True(t, session.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(session)
	rec = ts.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Log out")

	req = httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(session)
	rec = ts.do(req)
	assert.Equal(t, http.StatusFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(session)
	rec = ts.do(req)
	assert.Equal(t, http.StatusFound, rec.Code, "session is gone after logout")
}

func TestLogin_SessionExpires(t *testing.T) {
	ts := newTestServer(t, true)
	session := ts.login(t, "admin", "hunter2").Result().Cookies()[0]

	ts.clock.Advance(2 * time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(session)
	rec := ts.do(req)
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestLogin_RateLimited(t *testing.T) {
	ts := newTestServer(t, true)

	var last int
	for i := 0; i < loginRateLimit+1; i++ {
		last = ts.login(t, "admin", "wrong").Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, false)
	ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "party_http_requests_total")
}

func TestSessionStore_Prune(t *testing.T) {
	clock := apptest.NewFakeClock(apptest.Epoch)
	store := NewSessionStore(time.Hour, clock)

	old, _ := store.Create()
	clock.Advance(30 * time.Minute)
	fresh, _ := store.Create()
	clock.Advance(45 * time.Minute)

	assert.Equal(t, 1, store.Prune())
	assert.False(t, store.Valid(old))
	assert.True(t, store.Valid(fresh))
	assert.False(t, store.Valid(""))
}

func TestCredentials_Verify(t *testing.T) {
	creds, err := NewCredentials("admin", "hunter2")
	require.NoError(t, err)

	assert.True(t, creds.Verify("admin", "hunter2"))
	assert.False(t, creds.Verify("admin", "hunter3"))
	assert.False(t, creds.Verify("root", "hunter2"))
}
