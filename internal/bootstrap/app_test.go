package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"example.com/companion/internal/config"
	"example.com/companion/internal/events"
	"example.com/companion/internal/healthstore/fixture"
	"example.com/companion/internal/synclog"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		ControlIssuer:      "companion",
		SettingsBackend:    config.BackendMemory,
		HealthStoreBackend: config.BackendFixture,
		SyncLogPath:        filepath.Join(t.TempDir(), "sync_logs.jsonl"),
		SyncLogMaxEntries:  synclog.DefaultMaxEntries,
		DeviceName:         "test-device",
		Location:           time.UTC,
		HTTPTimeout:        time.Second,
		SettleDelay:        time.Millisecond,
		RetryBaseDelay:     time.Second,
		SecretKey:          "local-secret",
	}
}

func TestNewWiresMemoryAndFixtureBackends(t *testing.T) {
	app, err := New(context.Background(), testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer app.Close()

	require.IsType(t, &fixture.Source{}, app.Source)
	require.IsType(t, events.NoopPublisher{}, app.Publisher)
	require.NotNil(t, app.Orchestrator)

	require.NoError(t, app.Prefs.SetToken(context.Background(), "tok"))
	creds, err := app.Prefs.Credentials(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok", creds.Token)
}

func TestResumeScheduleNeedsAWayToAuthenticate(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer app.Close()

	sched := app.NewScheduler()
	scheduled, err := app.ResumeSchedule(ctx, sched)
	require.NoError(t, err)
	require.False(t, scheduled)

	// A 401 cleared the token, but the stored login can fetch a new one.
	require.NoError(t, app.Prefs.SetServerURL(ctx, "https://health.example.com/api"))
	require.NoError(t, app.Prefs.SetLogin(ctx, "user@example.com", "secret"))
	require.NoError(t, app.Prefs.SetInterval(ctx, 30))
	require.NoError(t, app.Prefs.ClearToken(ctx))

	scheduled, err = app.ResumeSchedule(ctx, sched)
	require.NoError(t, err)
	require.True(t, scheduled)
	require.Equal(t, 30*time.Minute, sched.Interval())
}

func TestNewRejectsMissingFixtureFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.HealthStoreFixture = filepath.Join(t.TempDir(), "missing.json")

	_, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestControlHandlerServesHealthz(t *testing.T) {
	cfg := testConfig(t)
	cfg.ControlSecret = "s3cret"
	app, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer app.Close()

	handler := app.ControlHandler(app.NewScheduler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
