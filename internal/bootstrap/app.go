// Package bootstrap assembles the agent's components from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"example.com/companion/internal/api"
	"example.com/companion/internal/auth"
	"example.com/companion/internal/backend"
	"example.com/companion/internal/config"
	"example.com/companion/internal/domain"
	"example.com/companion/internal/events"
	"example.com/companion/internal/healthstore/fixture"
	hspostgres "example.com/companion/internal/healthstore/postgres"
	"example.com/companion/internal/observability"
	"example.com/companion/internal/scheduler"
	"example.com/companion/internal/settings"
	settingspostgres "example.com/companion/internal/settings/postgres"
	"example.com/companion/internal/syncjob"
	"example.com/companion/internal/synclog"
	httptransport "example.com/companion/internal/transport/http"
)

// App holds the wired components shared by the agent and the CLI.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Prefs        *settings.Preferences
	Source       domain.HealthSource
	Remote       *backend.Selector
	Log          *synclog.FileLog
	Publisher    events.Publisher
	Orchestrator *syncjob.Orchestrator

	pool *pgxpool.Pool
}

// New connects storage and builds every component.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	if cfg.SettingsBackend == config.BackendPostgres || cfg.HealthStoreBackend == config.BackendPostgres {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		app.pool = pool
	}

	store, err := app.settingsStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	sealer, err := settings.NewSealer(cfg.SecretKey)
	if err != nil {
		app.Close()
		return nil, err
	}
	if sealer == nil {
		logger.Warn("SECRET_KEY not set, token and password are stored unsealed")
	}
	app.Prefs = settings.NewPreferences(store, sealer)

	if app.Source, err = app.healthSource(ctx); err != nil {
		app.Close()
		return nil, err
	}

	app.Remote = backend.NewSelector(app.Prefs.ServerURL, app.Prefs.AllowSelfSigned, cfg.HTTPTimeout, logger.Named("backend"))
	app.Log = synclog.NewFileLog(cfg.SyncLogPath, cfg.SyncLogMaxEntries)

	app.Publisher = events.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		app.Publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.OutcomeTopic)
	}

	app.Orchestrator = syncjob.New(app.Source, app.Remote, app.Prefs, app.Log,
		syncjob.WithPublisher(app.Publisher),
		syncjob.WithFailureReporter(observability.NewReporter()),
		syncjob.WithSourcePolicy(domain.SourcePolicy{Ignored: cfg.IgnoredSources, PreferredSteps: cfg.PreferredStepSources}),
		syncjob.WithLocation(cfg.Location),
		syncjob.WithDeviceName(cfg.DeviceName),
		syncjob.WithLogger(logger.Named("sync")),
	)
	return app, nil
}

func (a *App) settingsStore(ctx context.Context) (settings.Store, error) {
	if a.Config.SettingsBackend != config.BackendPostgres {
		return settings.NewMemoryStore(), nil
	}
	store := settingspostgres.NewStore(a.pool)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (a *App) healthSource(ctx context.Context) (domain.HealthSource, error) {
	if a.Config.HealthStoreBackend == config.BackendFixture {
		if a.Config.HealthStoreFixture == "" {
			return fixture.New(), nil
		}
		return fixture.Load(a.Config.HealthStoreFixture)
	}
	source := hspostgres.NewSource(a.pool)
	if err := source.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return source, nil
}

// NewScheduler builds the worker around the orchestrator with the network
// constraint applied.
func (a *App) NewScheduler() *scheduler.Scheduler {
	return scheduler.New(a.Orchestrator,
		scheduler.WithLogger(a.Logger.Named("scheduler")),
		scheduler.WithBaseDelay(a.Config.RetryBaseDelay),
		scheduler.WithConstraints(scheduler.NewNetworkConstraint(a.Prefs.ServerURL, 0)),
	)
}

// ResumeSchedule starts periodic runs at the stored interval when a run could
// authenticate, either with the cached token or by logging in again. It
// reports whether the schedule was started.
func (a *App) ResumeSchedule(ctx context.Context, sched *scheduler.Scheduler) (bool, error) {
	creds, err := a.Prefs.Credentials(ctx)
	if err != nil {
		return false, fmt.Errorf("read credentials: %w", err)
	}
	if !creds.CanAuthenticate() {
		return false, nil
	}
	state, err := a.Prefs.State(ctx)
	if err != nil {
		return false, fmt.Errorf("read sync state: %w", err)
	}
	sched.Reschedule(time.Duration(state.IntervalMinutes) * time.Minute)
	return true, nil
}

// ControlHandler builds the authenticated control API for sched.
func (a *App) ControlHandler(sched *scheduler.Scheduler) http.Handler {
	handler := api.NewHandler(sched, a.Prefs, a.Log, a.Remote,
		api.WithSettleDelay(a.Config.SettleDelay),
		api.WithLogger(a.Logger.Named("api")),
	)
	authn := auth.NewMiddleware(auth.Config{Secret: a.Config.ControlSecret, Issuer: a.Config.ControlIssuer})
	return httptransport.RequestLogger(a.Logger.Named("http"))(handler.Router(authn))
}

// Close releases the publisher and the database pool.
func (a *App) Close() {
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Logger.Warn("close publisher", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
