package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/companion/internal/auth"
	"example.com/companion/internal/backend"
	"example.com/companion/internal/domain"
	"example.com/companion/internal/settings"
	"example.com/companion/internal/syncjob"
	"example.com/companion/internal/synclog"
)

type fakeScheduler struct {
	mu          sync.Mutex
	syncNow     int
	paused      bool
	rescheduled []time.Duration
	importRes   syncjob.Result
	importErr   error
}

func (f *fakeScheduler) SyncNow() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncNow++
}

func (f *fakeScheduler) Import(context.Context) (syncjob.Result, error) {
	return f.importRes, f.importErr
}

func (f *fakeScheduler) Reschedule(interval time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
	f.rescheduled = append(f.rescheduled, interval)
}

func (f *fakeScheduler) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
}

func (f *fakeScheduler) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

type fakeRemote struct {
	loginErr  error
	status    backend.StatusResponse
	statusErr error
	tokens    []string
}

func (f *fakeRemote) Login(_ context.Context, email, _ string) (backend.LoginResponse, error) {
	if f.loginErr != nil {
		return backend.LoginResponse{}, f.loginErr
	}
	return backend.LoginResponse{Token: "issued-token", User: backend.UserInfo{Email: email, Name: "Ana"}}, nil
}

func (f *fakeRemote) GetStatus(_ context.Context, token string) (backend.StatusResponse, error) {
	f.tokens = append(f.tokens, token)
	return f.status, f.statusErr
}

type fixture struct {
	sched  *fakeScheduler
	prefs  *settings.Preferences
	log    *synclog.FileLog
	remote *fakeRemote
	router http.Handler
}

func newFixture(t *testing.T, authCfg auth.Config) *fixture {
	t.Helper()
	f := &fixture{
		sched:  &fakeScheduler{paused: true},
		prefs:  settings.NewPreferences(settings.NewMemoryStore(), nil),
		log:    synclog.NewFileLog(filepath.Join(t.TempDir(), "sync_logs.jsonl"), synclog.DefaultMaxEntries),
		remote: &fakeRemote{},
	}
	handler := NewHandler(f.sched, f.prefs, f.log, f.remote, WithSettleDelay(time.Millisecond))
	f.router = handler.Router(auth.NewMiddleware(authCfg))
	return f
}

func (f *fixture) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, auth.Config{Secret: "s3cret", Issuer: "companion"})

	rr := f.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestControlTokenScopes(t *testing.T) {
	cfg := auth.Config{Secret: "s3cret", Issuer: "companion"}
	f := newFixture(t, cfg)

	rr := f.do(t, http.MethodGet, "/v1/logs", "", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	readOnly, err := auth.Issue(cfg, "cli", []string{auth.ScopeSyncRead}, time.Minute, time.Now())
	require.NoError(t, err)

	rr = f.do(t, http.MethodGet, "/v1/logs", "", readOnly)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodDelete, "/v1/logs", "", readOnly)
	require.Equal(t, http.StatusForbidden, rr.Code)

	writer, err := auth.Issue(cfg, "cli", []string{auth.ScopeSyncWrite}, time.Minute, time.Now())
	require.NoError(t, err)
	rr = f.do(t, http.MethodDelete, "/v1/logs", "", writer)
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestListLogsNewestFirstWithCount(t *testing.T) {
	f := newFixture(t, auth.Config{})
	base := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.log.Append(synclog.NewEntry(base.Add(time.Duration(i)*time.Minute), synclog.TypePeriodic, synclog.StatusSuccess, "Synced")))
	}

	rr := f.do(t, http.MethodGet, "/v1/logs?count=2", "", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp LogsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 2)
	require.Equal(t, "2025-03-10T08:02:00Z", resp.Entries[0].Time)

	rr = f.do(t, http.MethodGet, "/v1/logs?count=zero", "", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSyncNowTriggersAndReturnsLogs(t *testing.T) {
	f := newFixture(t, auth.Config{})
	require.NoError(t, f.log.Append(synclog.NewEntry(time.Now(), synclog.TypePeriodic, synclog.StatusRetry, "Sync failed: timeout")))

	rr := f.do(t, http.MethodPost, "/v1/sync", "", "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, 1, f.sched.syncNow)

	var resp LogsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	require.Equal(t, "RETRY", resp.Entries[0].Status)
}

func TestImportReturnsOutcome(t *testing.T) {
	f := newFixture(t, auth.Config{})
	entry := synclog.NewEntry(time.Now(), synclog.TypeInitialImport, synclog.StatusSuccess, "Imported 31 days, 4 activities, 9 sleep sessions")
	f.sched.importRes = syncjob.Result{
		RunID:   "run-1",
		Outcome: syncjob.OutcomeSuccess,
		Entry:   &entry,
		Window:  syncjob.Window{Start: domain.Date{Year: 2025, Month: time.February, Day: 8}, End: domain.Date{Year: 2025, Month: time.March, Day: 10}},
	}

	rr := f.do(t, http.MethodPost, "/v1/import", "", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp ImportResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "success", resp.Outcome)
	require.Equal(t, "2025-02-08", resp.WindowFrom)
	require.Equal(t, entry.Message, resp.Entry.Message)
}

func TestStatusFallsBackToDefaultGoals(t *testing.T) {
	f := newFixture(t, auth.Config{})
	ctx := context.Background()
	require.NoError(t, f.prefs.SetServerURL(ctx, "https://health.example.com"))
	require.NoError(t, f.prefs.SetToken(ctx, "tok"))
	f.remote.statusErr = &backend.HTTPError{StatusCode: http.StatusServiceUnavailable, Status: "Service Unavailable"}

	rr := f.do(t, http.MethodGet, "/v1/status", "", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Configured)
	require.Equal(t, "https://health.example.com/", resp.ServerURL)
	require.Nil(t, resp.LastSync)
	require.Equal(t, settings.DefaultIntervalMinutes, resp.IntervalMinutes)
	require.Equal(t, backend.DefaultGoals, resp.Goals)
	require.False(t, resp.Remote.Reachable)
	require.Equal(t, []string{"tok"}, f.remote.tokens)
}

func TestStatusUsesRemoteGoals(t *testing.T) {
	f := newFixture(t, auth.Config{})
	ctx := context.Background()
	require.NoError(t, f.prefs.SetServerURL(ctx, "https://health.example.com/"))
	require.NoError(t, f.prefs.SetToken(ctx, "tok"))
	require.NoError(t, f.prefs.SetLastSync(ctx, time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)))
	steps := 12000
	f.remote.status = backend.StatusResponse{
		Configured: true,
		Trackables: &backend.TrackablesStatus{Steps: &backend.TrackableInfo{ID: "steps", GoalValue: &steps}},
	}

	rr := f.do(t, http.MethodGet, "/v1/status", "", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "2025-03-10T08:00:00Z", *resp.LastSync)
	require.Equal(t, 12000, resp.Goals.Steps)
	require.Equal(t, backend.DefaultGoals.ActiveCalories, resp.Goals.ActiveCalories)
	require.True(t, resp.Remote.Reachable)
}

func TestUpdateProfileValidates(t *testing.T) {
	f := newFixture(t, auth.Config{})

	rr := f.do(t, http.MethodPut, "/v1/settings/profile", `{"weightKg": 82.5, "age": 41}`, "")
	require.Equal(t, http.StatusOK, rr.Code)

	profile, err := f.prefs.Profile(context.Background())
	require.NoError(t, err)
	require.Equal(t, 82.5, profile.WeightKg)
	require.Equal(t, 41, profile.Age)
	require.Equal(t, domain.DefaultProfile().StepsPerMinute, profile.StepsPerMinute)

	rr = f.do(t, http.MethodPut, "/v1/settings/profile", `{"heightCm": 300}`, "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = f.do(t, http.MethodPut, "/v1/settings/profile", `{`, "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateIntervalReschedulesWhenActive(t *testing.T) {
	f := newFixture(t, auth.Config{})

	rr := f.do(t, http.MethodPut, "/v1/settings/interval", `{"minutes": 45}`, "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = f.do(t, http.MethodPut, "/v1/settings/interval", `{"minutes": 60}`, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, f.sched.rescheduled)

	f.sched.paused = false
	rr = f.do(t, http.MethodPut, "/v1/settings/interval", `{"minutes": 30}`, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, []time.Duration{30 * time.Minute}, f.sched.rescheduled)

	state, err := f.prefs.State(context.Background())
	require.NoError(t, err)
	require.Equal(t, 30, state.IntervalMinutes)
}

func TestSetupStoresCredentialsAndSchedules(t *testing.T) {
	f := newFixture(t, auth.Config{})

	rr := f.do(t, http.MethodPost, "/v1/setup", `{"serverUrl":"https://health.example.com/api","email":"ana@example.com","password":"pw","allowSelfSigned":true}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	creds, err := f.prefs.Credentials(context.Background())
	require.NoError(t, err)
	require.Equal(t, "https://health.example.com/api/", creds.ServerURL)
	require.Equal(t, "issued-token", creds.Token)
	require.Equal(t, "ana@example.com", creds.Email)
	require.Equal(t, "pw", creds.Password)

	allow, err := f.prefs.AllowSelfSigned(context.Background())
	require.NoError(t, err)
	require.True(t, allow)
	require.Equal(t, []time.Duration{15 * time.Minute}, f.sched.rescheduled)
}

func TestSetupRejectsBadInput(t *testing.T) {
	f := newFixture(t, auth.Config{})

	rr := f.do(t, http.MethodPost, "/v1/setup", `{"serverUrl":"","email":"a@example.com","password":"pw"}`, "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/setup", `{"serverUrl":"ftp://x","email":"a@example.com","password":"pw"}`, "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	f.remote.loginErr = &backend.HTTPError{StatusCode: http.StatusUnauthorized, Status: "Unauthorized"}
	rr = f.do(t, http.MethodPost, "/v1/setup", `{"serverUrl":"https://health.example.com","email":"a@example.com","password":"bad"}`, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	creds, err := f.prefs.Credentials(context.Background())
	require.NoError(t, err)
	require.Empty(t, creds.Token)
	require.Empty(t, f.sched.rescheduled)
}

func TestDisconnectPausesAndClears(t *testing.T) {
	f := newFixture(t, auth.Config{})
	ctx := context.Background()
	require.NoError(t, f.prefs.SetServerURL(ctx, "https://health.example.com"))
	require.NoError(t, f.prefs.SetToken(ctx, "tok"))
	f.sched.paused = false

	rr := f.do(t, http.MethodPost, "/v1/disconnect", "", "")
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.True(t, f.sched.paused)

	creds, err := f.prefs.Credentials(ctx)
	require.NoError(t, err)
	require.False(t, creds.CanAuthenticate())
}
