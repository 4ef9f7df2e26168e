package backend

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TLSPolicy reports whether self-signed server certificates are accepted.
type TLSPolicy func(ctx context.Context) (bool, error)

// Selector routes each call to a verifying or a non-verifying Client
// depending on the current TLS policy, so toggling the setting needs no
// restart.
type Selector struct {
	strict  *Client
	relaxed *Client
	policy  TLSPolicy
}

// NewSelector builds both clients against the same URL resolver.
func NewSelector(resolve URLResolver, policy TLSPolicy, timeout time.Duration, logger *zap.Logger) *Selector {
	return &Selector{
		strict:  NewClient(resolve, WithTimeout(timeout), WithLogger(logger)),
		relaxed: NewClient(resolve, WithTimeout(timeout), WithLogger(logger), WithInsecureSkipVerify(true)),
		policy:  policy,
	}
}

func (s *Selector) pick(ctx context.Context) (*Client, error) {
	allow, err := s.policy(ctx)
	if err != nil {
		return nil, err
	}
	if allow {
		return s.relaxed, nil
	}
	return s.strict, nil
}

func (s *Selector) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	c, err := s.pick(ctx)
	if err != nil {
		return LoginResponse{}, err
	}
	return c.Login(ctx, email, password)
}

func (s *Selector) PostHealthSync(ctx context.Context, token string, req HealthSyncRequest) (HealthSyncResponse, error) {
	c, err := s.pick(ctx)
	if err != nil {
		return HealthSyncResponse{}, err
	}
	return c.PostHealthSync(ctx, token, req)
}

func (s *Selector) GetStatus(ctx context.Context, token string) (StatusResponse, error) {
	c, err := s.pick(ctx)
	if err != nil {
		return StatusResponse{}, err
	}
	return c.GetStatus(ctx, token)
}
