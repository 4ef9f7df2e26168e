// Package syncjob runs one synchronization: precondition checks, token
// acquisition, window selection, health-store reads, payload construction,
// submission and outcome recording.
package syncjob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/companion/internal/auth"
	"example.com/companion/internal/backend"
	"example.com/companion/internal/domain"
	"example.com/companion/internal/events"
	"example.com/companion/internal/observability"
	"example.com/companion/internal/settings"
	"example.com/companion/internal/synclog"
)

const (
	// MaxAttempts bounds the retry budget of a periodic run.
	MaxAttempts = 3
	// ImportDays is the lookback of the initial import.
	ImportDays = 30

	tokenExpirySkew = time.Minute
	publishTimeout  = 5 * time.Second
)

var (
	ErrNotConfigured          = errors.New("not configured")
	ErrHealthStoreUnavailable = errors.New("health store unavailable")
	ErrAuthentication         = errors.New("authentication failed")
)

// Backend is the subset of the server API used by a run.
type Backend interface {
	Login(ctx context.Context, email, password string) (backend.LoginResponse, error)
	PostHealthSync(ctx context.Context, token string, req backend.HealthSyncRequest) (backend.HealthSyncResponse, error)
}

// CredentialStore is the persisted state a run reads and mutates.
type CredentialStore interface {
	Credentials(ctx context.Context) (settings.Credentials, error)
	SetToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
	State(ctx context.Context) (settings.SyncState, error)
	SetLastSync(ctx context.Context, at time.Time) error
	Profile(ctx context.Context) (domain.UserProfile, error)
}

// FailureReporter receives terminal failures.
type FailureReporter interface {
	Report(err error, tags map[string]string)
}

// Outcome is how the scheduler should treat a finished run.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRetry     Outcome = "retry"
	OutcomeFailure   Outcome = "failure"
	OutcomeCancelled Outcome = "cancelled"
)

// Stage names a step of a run, reported through Request.OnStage.
type Stage string

const (
	StagePreconditions Stage = "preconditions"
	StageToken         Stage = "token"
	StageRead          Stage = "read"
	StageBuild         Stage = "build"
	StageSubmit        Stage = "submit"
)

// Request describes one invocation.
type Request struct {
	Type synclog.SyncType
	// Attempt is 1 for the first try of a trigger and increases on retries.
	Attempt int
	// OnStage, when set, is called as the run enters each stage.
	OnStage func(Stage)
}

// Result is the resolved outcome of a run. Entry is nil for cancelled runs.
type Result struct {
	RunID   string
	Type    synclog.SyncType
	Attempt int
	Outcome Outcome
	Entry   *synclog.Entry
	Window  Window
	Counts  backend.SyncedCounts
	Err     error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPublisher sets the outcome event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithSourcePolicy overrides the default source reconciliation policy.
func WithSourcePolicy(p domain.SourcePolicy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithLocation sets the zone used for calendar days.
func WithLocation(loc *time.Location) Option {
	return func(o *Orchestrator) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithDeviceName sets the device name sent with each payload.
func WithDeviceName(name string) Option {
	return func(o *Orchestrator) { o.device = name }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the run logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithFailureReporter forwards terminal failures, e.g. to Sentry.
func WithFailureReporter(r FailureReporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

// Orchestrator executes sync runs. A single Orchestrator may be shared, but
// callers must not run two invocations concurrently; the scheduler enforces it.
type Orchestrator struct {
	source    domain.HealthSource
	backend   Backend
	prefs     CredentialStore
	log       synclog.Log
	publisher events.Publisher
	reporter  FailureReporter
	policy    domain.SourcePolicy
	loc       *time.Location
	device    string
	now       func() time.Time
	logger    *zap.Logger
}

// New constructs an Orchestrator.
func New(source domain.HealthSource, api Backend, prefs CredentialStore, log synclog.Log, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:    source,
		backend:   api,
		prefs:     prefs,
		log:       log,
		publisher: events.NoopPublisher{},
		policy:    domain.DefaultSourcePolicy(),
		loc:       time.Local,
		device:    "companion",
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// failure carries the log status decision for an unsuccessful run.
type failure struct {
	err       error
	message   string
	terminal  bool
	cancelled bool
}

// Run executes one invocation and resolves it into a Result. Errors never
// escape as return values; they are recorded in the log and in Result.Err.
func (o *Orchestrator) Run(ctx context.Context, req Request) Result {
	if req.Type == "" {
		req.Type = synclog.TypePeriodic
	}
	if req.Attempt < 1 {
		req.Attempt = 1
	}
	started := o.now()
	res := Result{RunID: uuid.NewString(), Type: req.Type, Attempt: req.Attempt}
	logger := o.logger.With(
		zap.String("run_id", res.RunID),
		zap.String("type", string(req.Type)),
		zap.Int("attempt", req.Attempt),
	)
	logger.Debug("sync run started")

	counts, window, fail := o.execute(ctx, req, logger)
	res.Window = window
	res.Counts = counts

	var entry synclog.Entry
	switch {
	case fail == nil:
		res.Outcome = OutcomeSuccess
		entry = synclog.NewEntry(o.now(), req.Type, synclog.StatusSuccess, successMessage(req.Type, counts))
		observability.RecordSyncSucceeded(o.now())
		submittedCounter.WithLabelValues("daily_metrics").Add(float64(counts.DailyMetrics))
		submittedCounter.WithLabelValues("activities").Add(float64(counts.Activities))
		submittedCounter.WithLabelValues("sleep_sessions").Add(float64(counts.SleepSessions))
	case fail.cancelled:
		res.Outcome = OutcomeCancelled
		res.Err = fail.err
		runsCounter.WithLabelValues(string(req.Type), string(res.Outcome)).Inc()
		logger.Info("sync run cancelled", zap.Error(fail.err))
		return res
	default:
		res.Err = fail.err
		status := synclog.StatusError
		if !fail.terminal && req.Type == synclog.TypePeriodic && req.Attempt < MaxAttempts {
			status = synclog.StatusRetry
		}
		if status == synclog.StatusRetry {
			res.Outcome = OutcomeRetry
		} else {
			res.Outcome = OutcomeFailure
			observability.RecordSyncFailed(o.now())
		}
		entry = synclog.NewEntry(o.now(), req.Type, status, fail.message)
	}

	if err := o.log.Append(entry); err != nil {
		logger.Error("append sync log", zap.Error(err))
	}
	res.Entry = &entry

	runsCounter.WithLabelValues(string(req.Type), string(res.Outcome)).Inc()
	runDuration.WithLabelValues(string(req.Type)).Observe(o.now().Sub(started).Seconds())

	fields := []zap.Field{zap.String("status", string(entry.Status)), zap.String("message", entry.Message)}
	if res.Outcome == OutcomeSuccess {
		logger.Info("sync run finished", fields...)
	} else {
		logger.Warn("sync run finished", append(fields, zap.Error(res.Err))...)
	}

	if res.Outcome == OutcomeFailure && o.reporter != nil {
		o.reporter.Report(res.Err, map[string]string{
			"run_id":  res.RunID,
			"type":    string(req.Type),
			"attempt": fmt.Sprint(req.Attempt),
		})
	}
	o.publish(ctx, res, logger)
	return res
}

func (o *Orchestrator) execute(ctx context.Context, req Request, logger *zap.Logger) (backend.SyncedCounts, Window, *failure) {
	stage := func(s Stage) {
		logger.Debug("sync stage", zap.String("stage", string(s)))
		if req.OnStage != nil {
			req.OnStage(s)
		}
	}

	stage(StagePreconditions)
	creds, err := o.prefs.Credentials(ctx)
	if err != nil {
		return backend.SyncedCounts{}, Window{}, o.transient(ctx, req, err)
	}
	if !creds.CanAuthenticate() {
		return backend.SyncedCounts{}, Window{}, &failure{
			err:      ErrNotConfigured,
			message:  "Sync skipped: server and account are not configured",
			terminal: true,
		}
	}
	if err := o.source.Available(ctx); err != nil {
		if ctx.Err() != nil {
			return backend.SyncedCounts{}, Window{}, cancelled(ctx)
		}
		return backend.SyncedCounts{}, Window{}, &failure{
			err:      fmt.Errorf("%w: %v", ErrHealthStoreUnavailable, err),
			message:  "Health store not available on this device",
			terminal: true,
		}
	}

	stage(StageToken)
	token, fail := o.ensureToken(ctx, creds, logger)
	if fail != nil {
		return backend.SyncedCounts{}, Window{}, fail
	}

	state, err := o.prefs.State(ctx)
	if err != nil {
		return backend.SyncedCounts{}, Window{}, o.transient(ctx, req, err)
	}
	now := o.now()
	window := ImportWindow(now, o.loc)
	if req.Type == synclog.TypePeriodic {
		last, ok := state.LastSync()
		window = PeriodicWindow(last, ok, now, o.loc)
	}
	logger.Debug("sync window", zap.Stringer("start", window.Start), zap.Stringer("end", window.End))

	stage(StageRead)
	snapshot, err := domain.ReadSnapshot(ctx, o.source, domain.DayRange(window.Start, window.End, o.loc))
	if err != nil {
		return backend.SyncedCounts{}, window, o.transient(ctx, req, err)
	}

	stage(StageBuild)
	profile, err := o.prefs.Profile(ctx)
	if err != nil {
		return backend.SyncedCounts{}, window, o.transient(ctx, req, err)
	}
	payload := BuildRequest(snapshot, o.policy, profile, window, o.loc, o.device, now)
	logger.Debug("payload built",
		zap.Int("daily_metrics", len(payload.DailyMetrics)),
		zap.Int("activities", len(payload.Activities)),
		zap.Int("sleep_sessions", len(payload.SleepSessions)),
	)

	stage(StageSubmit)
	resp, err := o.backend.PostHealthSync(ctx, token, payload)
	if err != nil {
		if ctx.Err() != nil {
			return backend.SyncedCounts{}, window, cancelled(ctx)
		}
		if backend.IsUnauthorized(err) {
			if clearErr := o.prefs.ClearToken(ctx); clearErr != nil {
				logger.Error("clear rejected token", zap.Error(clearErr))
			}
		}
		return backend.SyncedCounts{}, window, o.transient(ctx, req, err)
	}

	if ctx.Err() != nil {
		return backend.SyncedCounts{}, window, cancelled(ctx)
	}
	if err := o.prefs.SetLastSync(ctx, o.now()); err != nil {
		logger.Error("persist last sync", zap.Error(err))
	}
	return resp.Synced, window, nil
}

func (o *Orchestrator) ensureToken(ctx context.Context, creds settings.Credentials, logger *zap.Logger) (string, *failure) {
	if creds.Token != "" {
		if !creds.CanLogin() || !auth.RemoteExpired(creds.Token, o.now(), tokenExpirySkew) {
			return creds.Token, nil
		}
		logger.Info("cached token expired, logging in again")
	}
	authFailure := func(err error) *failure {
		return &failure{
			err:      fmt.Errorf("%w: %v", ErrAuthentication, err),
			message:  "Authentication failed - could not obtain token",
			terminal: true,
		}
	}
	if !creds.CanLogin() {
		return "", authFailure(errors.New("no stored account"))
	}

	resp, err := o.backend.Login(ctx, creds.Email, creds.Password)
	if err != nil {
		if ctx.Err() != nil {
			return "", cancelled(ctx)
		}
		tokenRefreshCounter.WithLabelValues("error").Inc()
		return "", authFailure(err)
	}
	if ctx.Err() != nil {
		return "", cancelled(ctx)
	}
	tokenRefreshCounter.WithLabelValues("ok").Inc()
	if err := o.prefs.SetToken(ctx, resp.Token); err != nil {
		logger.Error("cache token", zap.Error(err))
	}
	return resp.Token, nil
}

func (o *Orchestrator) transient(ctx context.Context, req Request, err error) *failure {
	if ctx.Err() != nil {
		return cancelled(ctx)
	}
	prefix := "Sync failed"
	if req.Type == synclog.TypeInitialImport {
		prefix = "Import failed"
	}
	message := fmt.Sprintf("%s: %v", prefix, err)
	var httpErr *backend.HTTPError
	if errors.As(err, &httpErr) {
		detail := httpErr.Body
		if detail == "" {
			detail = httpErr.Status
		}
		message = fmt.Sprintf("%s (HTTP %d): %s", prefix, httpErr.StatusCode, detail)
	}
	return &failure{err: err, message: message}
}

func cancelled(ctx context.Context) *failure {
	return &failure{err: ctx.Err(), cancelled: true}
}

func successMessage(typ synclog.SyncType, c backend.SyncedCounts) string {
	verb := "Synced"
	if typ == synclog.TypeInitialImport {
		verb = "Imported"
	}
	return fmt.Sprintf("%s %d days, %d activities, %d sleep sessions", verb, c.DailyMetrics, c.Activities, c.SleepSessions)
}

func (o *Orchestrator) publish(ctx context.Context, res Result, logger *zap.Logger) {
	outcome := events.SyncOutcome{
		RunID:   res.RunID,
		Device:  o.device,
		Type:    string(res.Type),
		Status:  string(res.Entry.Status),
		Message: res.Entry.Message,
		Attempt: res.Attempt,
		Counts: events.Counts{
			DailyMetrics:  res.Counts.DailyMetrics,
			Activities:    res.Counts.Activities,
			SleepSessions: res.Counts.SleepSessions,
		},
		OccurredAt: res.Entry.Time().UTC(),
	}
	if !res.Window.Start.IsZero() {
		outcome.WindowFrom = res.Window.Start.String()
		outcome.WindowTo = res.Window.End.String()
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := o.publisher.Publish(pubCtx, outcome); err != nil {
		logger.Warn("publish sync outcome", zap.Error(err))
	}
}
