// Package api exposes the local control endpoints of the agent.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"example.com/companion/internal/backend"
	"example.com/companion/internal/domain"
	"example.com/companion/internal/settings"
	"example.com/companion/internal/syncjob"
	"example.com/companion/internal/synclog"
)

// Scheduler is the worker the handlers drive.
type Scheduler interface {
	SyncNow()
	Import(ctx context.Context) (syncjob.Result, error)
	Reschedule(interval time.Duration)
	Pause()
	Paused() bool
}

// Settings is the persisted configuration the handlers read and update.
type Settings interface {
	Credentials(ctx context.Context) (settings.Credentials, error)
	State(ctx context.Context) (settings.SyncState, error)
	SetServerURL(ctx context.Context, raw string) error
	SetAllowSelfSigned(ctx context.Context, allow bool) error
	SetToken(ctx context.Context, token string) error
	SetLogin(ctx context.Context, email, password string) error
	SetInterval(ctx context.Context, minutes int) error
	Profile(ctx context.Context) (domain.UserProfile, error)
	SetProfile(ctx context.Context, profile domain.UserProfile) error
	Clear(ctx context.Context) error
}

// Remote is the server API used for setup and status.
type Remote interface {
	Login(ctx context.Context, email, password string) (backend.LoginResponse, error)
	GetStatus(ctx context.Context, token string) (backend.StatusResponse, error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithSettleDelay sets how long POST /v1/sync waits before reading the log.
func WithSettleDelay(d time.Duration) Option {
	return func(h *Handler) { h.settleDelay = d }
}

// WithLogger sets the handler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Handler coordinates control requests with the scheduler and settings.
type Handler struct {
	scheduler   Scheduler
	settings    Settings
	log         synclog.Log
	remote      Remote
	settleDelay time.Duration
	logger      *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(scheduler Scheduler, prefs Settings, log synclog.Log, remote Remote, opts ...Option) *Handler {
	h := &Handler{
		scheduler:   scheduler,
		settings:    prefs,
		log:         log,
		remote:      remote,
		settleDelay: 3 * time.Second,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// healthz reports a simple OK status for liveness checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) syncNow(w http.ResponseWriter, r *http.Request) {
	h.scheduler.SyncNow()

	timer := time.NewTimer(h.settleDelay)
	defer timer.Stop()
	select {
	case <-r.Context().Done():
		return
	case <-timer.C:
	}

	entries, err := h.log.Recent(synclog.DefaultReadCount)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, LogsResponse{Entries: toLogViews(entries)})
}

func (h *Handler) runImport(w http.ResponseWriter, r *http.Request) {
	res, err := h.scheduler.Import(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	resp := ImportResponse{RunID: res.RunID, Outcome: string(res.Outcome)}
	if res.Entry != nil {
		view := toLogView(*res.Entry)
		resp.Entry = &view
	}
	if !res.Window.Start.IsZero() {
		resp.WindowFrom = res.Window.Start.String()
		resp.WindowTo = res.Window.End.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	count := synclog.DefaultReadCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "count must be a positive integer")
			return
		}
		if parsed > synclog.DefaultMaxEntries {
			parsed = synclog.DefaultMaxEntries
		}
		count = parsed
	}

	entries, err := h.log.Recent(count)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, LogsResponse{Entries: toLogViews(entries)})
}

func (h *Handler) clearLogs(w http.ResponseWriter, r *http.Request) {
	if err := h.log.Clear(); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	creds, err := h.settings.Credentials(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	state, err := h.settings.State(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := StatusResponse{
		Configured:      creds.Configured(),
		ServerURL:       creds.ServerURL,
		Email:           creds.Email,
		IntervalMinutes: state.IntervalMinutes,
		Scheduled:       !h.scheduler.Paused(),
		Goals:           backend.DefaultGoals,
	}
	if last, ok := state.LastSync(); ok {
		formatted := domain.FormatInstant(last)
		resp.LastSync = &formatted
	}

	if creds.Configured() {
		remote, err := h.remote.GetStatus(ctx, creds.Token)
		if err != nil {
			h.logger.Info("remote status unavailable", zap.Error(err))
			resp.Remote = &RemoteStatus{Reachable: false, Error: err.Error()}
		} else {
			resp.Remote = &RemoteStatus{Reachable: true, Configured: remote.Configured, LastSync: remote.LastSync}
			resp.Goals = remote.Goals()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile, err := h.settings.Profile(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	// Fields absent from the body keep their stored values.
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := h.settings.SetProfile(ctx, profile); err != nil {
		if errors.Is(err, settings.ErrInvalidProfile) {
			writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) updateInterval(w http.ResponseWriter, r *http.Request) {
	var req IntervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := h.settings.SetInterval(r.Context(), req.Minutes); err != nil {
		if errors.Is(err, settings.ErrInvalidInterval) {
			writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if !h.scheduler.Paused() {
		h.scheduler.Reschedule(time.Duration(req.Minutes) * time.Minute)
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *Handler) setup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	if err := h.settings.SetServerURL(ctx, req.ServerURL); err != nil {
		if errors.Is(err, settings.ErrInvalidServerURL) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if err := h.settings.SetAllowSelfSigned(ctx, req.AllowSelfSigned); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	login, err := h.remote.Login(ctx, req.Email, req.Password)
	if err != nil {
		status := http.StatusBadGateway
		if backend.IsUnauthorized(err) {
			status = http.StatusUnauthorized
		}
		writeError(w, status, "login_failed", err.Error())
		return
	}
	if err := h.settings.SetToken(ctx, login.Token); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if err := h.settings.SetLogin(ctx, req.Email, req.Password); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	state, err := h.settings.State(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	h.scheduler.Reschedule(time.Duration(state.IntervalMinutes) * time.Minute)
	h.logger.Info("agent configured", zap.String("email", req.Email))

	writeJSON(w, http.StatusOK, SetupResponse{Configured: true, User: login.User.Name, IntervalMinutes: state.IntervalMinutes})
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Pause()
	if err := h.settings.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	h.logger.Info("agent disconnected")
	w.WriteHeader(http.StatusNoContent)
}

// LogView is one sync log entry on the wire.
type LogView struct {
	Timestamp int64  `json:"timestamp"`
	Time      string `json:"time"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// LogsResponse lists entries newest first.
type LogsResponse struct {
	Entries []LogView `json:"entries"`
}

// ImportResponse is the outcome of POST /v1/import.
type ImportResponse struct {
	RunID      string   `json:"runId"`
	Outcome    string   `json:"outcome"`
	Entry      *LogView `json:"entry,omitempty"`
	WindowFrom string   `json:"windowFrom,omitempty"`
	WindowTo   string   `json:"windowTo,omitempty"`
}

// RemoteStatus is what the server reported, if it could be reached.
type RemoteStatus struct {
	Reachable  bool    `json:"reachable"`
	Configured bool    `json:"configured"`
	LastSync   *string `json:"lastSync,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// StatusResponse combines local state with the server's view.
type StatusResponse struct {
	Configured      bool          `json:"configured"`
	ServerURL       string        `json:"serverUrl,omitempty"`
	Email           string        `json:"email,omitempty"`
	LastSync        *string       `json:"lastSync"`
	IntervalMinutes int           `json:"intervalMinutes"`
	Scheduled       bool          `json:"scheduled"`
	Remote          *RemoteStatus `json:"remote,omitempty"`
	Goals           backend.Goals `json:"goals"`
}

// IntervalRequest is the body of PUT /v1/settings/interval.
type IntervalRequest struct {
	Minutes int `json:"minutes"`
}

// SetupRequest is the body of POST /v1/setup.
type SetupRequest struct {
	ServerURL       string `json:"serverUrl"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	AllowSelfSigned bool   `json:"allowSelfSigned"`
}

// Validate ensures request correctness.
func (r SetupRequest) Validate() error {
	if strings.TrimSpace(r.ServerURL) == "" {
		return errors.New("serverUrl is required")
	}
	if strings.TrimSpace(r.Email) == "" {
		return errors.New("email is required")
	}
	if r.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// SetupResponse confirms a successful setup.
type SetupResponse struct {
	Configured      bool   `json:"configured"`
	User            string `json:"user,omitempty"`
	IntervalMinutes int    `json:"intervalMinutes"`
}

func toLogView(e synclog.Entry) LogView {
	return LogView{
		Timestamp: e.Timestamp,
		Time:      domain.FormatInstant(e.Time()),
		Type:      string(e.Type),
		Status:    string(e.Status),
		Message:   e.Message,
	}
}

func toLogViews(entries []synclog.Entry) []LogView {
	views := make([]LogView, 0, len(entries))
	for _, e := range entries {
		views = append(views, toLogView(e))
	}
	return views
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
