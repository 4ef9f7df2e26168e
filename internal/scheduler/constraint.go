package scheduler

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"example.com/companion/internal/backend"
)

// Constraint gates periodic and manual runs.
type Constraint interface {
	Name() string
	Check(ctx context.Context) error
}

// ConstraintFunc adapts a function to Constraint.
type ConstraintFunc struct {
	Label string
	Fn    func(ctx context.Context) error
}

func (c ConstraintFunc) Name() string { return c.Label }

func (c ConstraintFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// NetworkConstraint is met when a TCP connection to the server host succeeds.
// An unset server URL passes so the run can log the configuration error.
type NetworkConstraint struct {
	resolve backend.URLResolver
	timeout time.Duration
	dialer  net.Dialer
}

// NewNetworkConstraint checks reachability of the URL returned by resolve.
func NewNetworkConstraint(resolve backend.URLResolver, timeout time.Duration) *NetworkConstraint {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NetworkConstraint{resolve: resolve, timeout: timeout}
}

func (c *NetworkConstraint) Name() string { return "network" }

func (c *NetworkConstraint) Check(ctx context.Context) error {
	raw, err := c.resolve(ctx)
	if err != nil {
		return err
	}
	if raw == "" {
		return nil
	}
	addr, err := dialAddress(raw)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("server %s unreachable: %w", addr, err)
	}
	return conn.Close()
}

func dialAddress(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("server url %q has no host", raw)
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
