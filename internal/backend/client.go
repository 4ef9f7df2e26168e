// Package backend is the JSON client for the remote health-sync server.
package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	pathLogin  = "auth/login"
	pathSync   = "health-sync"
	pathStatus = "health-sync/status"
)

// ErrNoServerURL is returned when no base URL has been configured.
var ErrNoServerURL = errors.New("server url not configured")

// URLResolver returns the current base URL. It is consulted on every call so
// a changed server address takes effect without rebuilding the client.
type URLResolver func(ctx context.Context) (string, error)

// StaticURL resolves to a fixed base URL.
func StaticURL(base string) URLResolver {
	return func(context.Context) (string, error) { return base, nil }
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithInsecureSkipVerify accepts self-signed server certificates.
func WithInsecureSkipVerify(skip bool) Option {
	return func(c *Client) { c.insecure = skip }
}

// WithHTTPClient replaces the underlying transport entirely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client talks to the server's auth and health-sync endpoints.
type Client struct {
	resolve  URLResolver
	http     *http.Client
	timeout  time.Duration
	insecure bool
	logger   *zap.Logger
}

// NewClient constructs a Client.
func NewClient(resolve URLResolver, opts ...Option) *Client {
	c := &Client{
		resolve: resolve,
		timeout: 30 * time.Second,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if c.insecure {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		}
		c.http = &http.Client{Timeout: c.timeout, Transport: transport}
	}
	return c
}

// Login exchanges account credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, pathLogin, "", LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return LoginResponse{}, err
	}
	if resp.Token == "" {
		return LoginResponse{}, errors.New("login response carried no token")
	}
	return resp, nil
}

// PostHealthSync submits one window of telemetry.
func (c *Client) PostHealthSync(ctx context.Context, token string, req HealthSyncRequest) (HealthSyncResponse, error) {
	var resp HealthSyncResponse
	if err := c.do(ctx, http.MethodPost, pathSync, token, req, &resp); err != nil {
		return HealthSyncResponse{}, err
	}
	return resp, nil
}

// GetStatus fetches the server-side sync configuration and goals.
func (c *Client) GetStatus(ctx context.Context, token string) (StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, pathStatus, token, nil, &resp); err != nil {
		return StatusResponse{}, err
	}
	return resp, nil
}

func (c *Client) endpoint(ctx context.Context, path string) (string, error) {
	base, err := c.resolve(ctx)
	if err != nil {
		return "", err
	}
	if base == "" {
		return "", ErrNoServerURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	return baseURL.ResolveReference(&url.URL{Path: path}).String(), nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	endpoint, err := c.endpoint(ctx, path)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("server call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if err := parseErrorResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
