package settings

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"example.com/companion/internal/domain"
)

const (
	keyServerURL       = "server_url"
	keyToken           = "jwt_token"
	keyEmail           = "email"
	keyPassword        = "password"
	keyAllowSelfSigned = "allow_self_signed"
	keyLastSync        = "last_sync_timestamp"
	keyInterval        = "sync_frequency_minutes"
	keyStepsPerMinute  = "steps_per_min"
	keyWeightKg        = "weight_kg"
	keyHeightCm        = "height_cm"
	keyAge             = "age"
	keyIsMale          = "is_male"
)

// DefaultIntervalMinutes is the periodic sync interval before the user picks one.
const DefaultIntervalMinutes = 15

// IntervalOptions are the accepted sync intervals, in minutes.
var IntervalOptions = []int{15, 30, 60, 120}

var (
	ErrInvalidServerURL = errors.New("invalid server url")
	ErrInvalidInterval  = errors.New("invalid sync interval")
	ErrInvalidProfile   = errors.New("invalid profile")
)

// Credentials is the connection state needed to talk to the server.
type Credentials struct {
	ServerURL string
	Token     string
	Email     string
	Password  string
}

// Configured reports whether both a server URL and a bearer token are stored.
func (c Credentials) Configured() bool {
	return c.ServerURL != "" && c.Token != ""
}

// CanLogin reports whether a fresh token can be requested.
func (c Credentials) CanLogin() bool {
	return c.ServerURL != "" && c.Email != "" && c.Password != ""
}

// CanAuthenticate reports whether a run can obtain a bearer token, either
// cached or through login.
func (c Credentials) CanAuthenticate() bool {
	return c.Configured() || c.CanLogin()
}

// SyncState is the scheduling state persisted between runs.
type SyncState struct {
	LastSyncMillis  int64
	IntervalMinutes int
}

// LastSync returns the last successful submission time, if any.
func (s SyncState) LastSync() (time.Time, bool) {
	if s.LastSyncMillis <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(s.LastSyncMillis), true
}

// Preferences is a typed view over a Store. Token and password are sealed
// when a Sealer is configured.
type Preferences struct {
	store  Store
	sealer *Sealer
}

// NewPreferences wraps store. sealer may be nil.
func NewPreferences(store Store, sealer *Sealer) *Preferences {
	return &Preferences{store: store, sealer: sealer}
}

func (p *Preferences) get(ctx context.Context, key string) (string, error) {
	value, err := p.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (p *Preferences) set(ctx context.Context, key, value string) error {
	if err := p.store.Set(ctx, key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (p *Preferences) getSecret(ctx context.Context, key string) (string, error) {
	value, err := p.get(ctx, key)
	if err != nil || value == "" || p.sealer == nil {
		return value, err
	}
	return p.sealer.Open(key, value)
}

func (p *Preferences) setSecret(ctx context.Context, key, value string) error {
	if p.sealer != nil && value != "" {
		sealed, err := p.sealer.Seal(key, value)
		if err != nil {
			return err
		}
		value = sealed
	}
	return p.set(ctx, key, value)
}

func (p *Preferences) getInt(ctx context.Context, key string, fallback int) (int, error) {
	value, err := p.get(ctx, key)
	if err != nil || value == "" {
		return fallback, err
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback, nil
	}
	return parsed, nil
}

// Credentials loads the stored server URL, token, email and password.
func (p *Preferences) Credentials(ctx context.Context) (Credentials, error) {
	var c Credentials
	var err error
	if c.ServerURL, err = p.get(ctx, keyServerURL); err != nil {
		return Credentials{}, err
	}
	if c.Token, err = p.getSecret(ctx, keyToken); err != nil {
		return Credentials{}, err
	}
	if c.Email, err = p.get(ctx, keyEmail); err != nil {
		return Credentials{}, err
	}
	if c.Password, err = p.getSecret(ctx, keyPassword); err != nil {
		return Credentials{}, err
	}
	return c, nil
}

// ServerURL returns the stored base URL, always ending in a slash.
func (p *Preferences) ServerURL(ctx context.Context) (string, error) {
	return p.get(ctx, keyServerURL)
}

// NormalizeServerURL validates raw as an http(s) URL and appends a trailing slash.
func NormalizeServerURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidServerURL, raw)
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	return raw, nil
}

// SetServerURL stores a normalised base URL.
func (p *Preferences) SetServerURL(ctx context.Context, raw string) error {
	normalized, err := NormalizeServerURL(raw)
	if err != nil {
		return err
	}
	return p.set(ctx, keyServerURL, normalized)
}

// SetToken caches a bearer token.
func (p *Preferences) SetToken(ctx context.Context, token string) error {
	return p.setSecret(ctx, keyToken, token)
}

// ClearToken invalidates the cached bearer token so the next run logs in again.
func (p *Preferences) ClearToken(ctx context.Context) error {
	if err := p.store.Delete(ctx, keyToken); err != nil {
		return fmt.Errorf("delete %s: %w", keyToken, err)
	}
	return nil
}

// SetLogin stores the account used for re-authentication.
func (p *Preferences) SetLogin(ctx context.Context, email, password string) error {
	if err := p.set(ctx, keyEmail, email); err != nil {
		return err
	}
	return p.setSecret(ctx, keyPassword, password)
}

// AllowSelfSigned reports whether TLS verification is skipped for the server.
func (p *Preferences) AllowSelfSigned(ctx context.Context) (bool, error) {
	value, err := p.get(ctx, keyAllowSelfSigned)
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

func (p *Preferences) SetAllowSelfSigned(ctx context.Context, allow bool) error {
	return p.set(ctx, keyAllowSelfSigned, strconv.FormatBool(allow))
}

// State loads the last sync time and interval.
func (p *Preferences) State(ctx context.Context) (SyncState, error) {
	raw, err := p.get(ctx, keyLastSync)
	if err != nil {
		return SyncState{}, err
	}
	var last int64
	if raw != "" {
		last, _ = strconv.ParseInt(raw, 10, 64)
	}
	interval, err := p.getInt(ctx, keyInterval, DefaultIntervalMinutes)
	if err != nil {
		return SyncState{}, err
	}
	return SyncState{LastSyncMillis: last, IntervalMinutes: interval}, nil
}

// SetLastSync records a successful submission.
func (p *Preferences) SetLastSync(ctx context.Context, at time.Time) error {
	return p.set(ctx, keyLastSync, strconv.FormatInt(at.UnixMilli(), 10))
}

// SetInterval stores the periodic interval; only IntervalOptions are accepted.
func (p *Preferences) SetInterval(ctx context.Context, minutes int) error {
	if !slices.Contains(IntervalOptions, minutes) {
		return fmt.Errorf("%w: %d minutes (want one of %v)", ErrInvalidInterval, minutes, IntervalOptions)
	}
	return p.set(ctx, keyInterval, strconv.Itoa(minutes))
}

// Profile loads the user profile, falling back to defaults per field.
func (p *Preferences) Profile(ctx context.Context) (domain.UserProfile, error) {
	profile := domain.DefaultProfile()
	var err error
	if profile.StepsPerMinute, err = p.getInt(ctx, keyStepsPerMinute, profile.StepsPerMinute); err != nil {
		return domain.UserProfile{}, err
	}
	if profile.HeightCm, err = p.getInt(ctx, keyHeightCm, profile.HeightCm); err != nil {
		return domain.UserProfile{}, err
	}
	if profile.Age, err = p.getInt(ctx, keyAge, profile.Age); err != nil {
		return domain.UserProfile{}, err
	}
	weight, err := p.get(ctx, keyWeightKg)
	if err != nil {
		return domain.UserProfile{}, err
	}
	if parsed, perr := strconv.ParseFloat(weight, 64); perr == nil {
		profile.WeightKg = parsed
	}
	male, err := p.get(ctx, keyIsMale)
	if err != nil {
		return domain.UserProfile{}, err
	}
	if parsed, perr := strconv.ParseBool(male); perr == nil {
		profile.IsMale = parsed
	}
	return profile, nil
}

// ValidateProfile checks every field against its accepted range.
func ValidateProfile(profile domain.UserProfile) error {
	switch {
	case profile.StepsPerMinute < 50 || profile.StepsPerMinute > 200:
		return fmt.Errorf("%w: steps per minute %d outside 50-200", ErrInvalidProfile, profile.StepsPerMinute)
	case profile.WeightKg < 30 || profile.WeightKg > 250:
		return fmt.Errorf("%w: weight %.1f kg outside 30-250", ErrInvalidProfile, profile.WeightKg)
	case profile.HeightCm < 100 || profile.HeightCm > 250:
		return fmt.Errorf("%w: height %d cm outside 100-250", ErrInvalidProfile, profile.HeightCm)
	case profile.Age < 10 || profile.Age > 120:
		return fmt.Errorf("%w: age %d outside 10-120", ErrInvalidProfile, profile.Age)
	}
	return nil
}

// SetProfile validates and stores every profile field.
func (p *Preferences) SetProfile(ctx context.Context, profile domain.UserProfile) error {
	if err := ValidateProfile(profile); err != nil {
		return err
	}
	values := [][2]string{
		{keyStepsPerMinute, strconv.Itoa(profile.StepsPerMinute)},
		{keyWeightKg, strconv.FormatFloat(profile.WeightKg, 'f', -1, 64)},
		{keyHeightCm, strconv.Itoa(profile.HeightCm)},
		{keyAge, strconv.Itoa(profile.Age)},
		{keyIsMale, strconv.FormatBool(profile.IsMale)},
	}
	for _, kv := range values {
		if err := p.set(ctx, kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes every stored preference.
func (p *Preferences) Clear(ctx context.Context) error {
	if err := p.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear settings: %w", err)
	}
	return nil
}
