// Package coordinator wraps authenticated remote calls with the refresh-and-retry-once protocol.
package coordinator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/fitsync/internal/errs"
)

// Tokens is the token coordinator side (session.Manager).
type Tokens interface {
	AccessToken(ctx context.Context) (token string, signaled bool, err error)
	TryBeginRefresh() bool
	MarkRefreshCompleted(success bool)
	IsRefreshInProgress() bool
	WaitForRefresh(ctx context.Context, timeout time.Duration) bool
}

// Refresher performs the network refresh (auth.Repository).
type Refresher interface {
	RefreshTokenIfNeeded(ctx context.Context) bool
}

// Call is one authenticated attempt. It must report a rejected token as errs.ErrAuthorizationExpired.
type Call func(ctx context.Context, accessToken string) error

// Coordinator is safe for concurrent use.
type Coordinator struct {
	tokens      Tokens
	refresher   Refresher
	waitTimeout time.Duration
	log         *zap.Logger
}

// New constructs a Coordinator. waitTimeout bounds how long a caller waits for someone
// else's refresh; zero means the token manager default.
func New(tokens Tokens, refresher Refresher, waitTimeout time.Duration, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{tokens: tokens, refresher: refresher, waitTimeout: waitTimeout, log: log}
}

// Do runs call with the current access token. On an authorization failure it obtains a
// refreshed token (by waiting for the in-flight refresh or by refreshing itself) and retries
// exactly once. Without a refreshed token it returns errs.ErrUnauthenticated.
func (c *Coordinator) Do(ctx context.Context, call Call) error {
	token, err := c.prepare(ctx)
	if err != nil {
		return err
	}

	err = call(ctx, token)
	if !errors.Is(err, errs.ErrAuthorizationExpired) {
		return err
	}

	if !c.obtainRefresh(ctx) {
		return errors.Join(errs.ErrUnauthenticated, err)
	}
	if token, err = c.current(ctx); err != nil {
		return err
	}
	err = call(ctx, token)
	if errors.Is(err, errs.ErrAuthorizationExpired) {
		return errors.Join(errs.ErrUnauthenticated, err)
	}
	return err
}

// prepare reads the token. A caller that wins the refresh signal refreshes up front only when
// the stored token is already unusable; otherwise the signal is released straight away.
func (c *Coordinator) prepare(ctx context.Context) (string, error) {
	token, signaled, err := c.tokens.AccessToken(ctx)
	if signaled {
		return c.settle(ctx, token, err)
	}
	if err != nil {
		return "", err
	}
	if token == "" && c.tokens.IsRefreshInProgress() {
		if !c.tokens.WaitForRefresh(ctx, c.waitTimeout) {
			return "", errs.ErrUnauthenticated
		}
		return c.current(ctx)
	}
	return token, nil
}

// current reads the token after a refresh cycle ended. The cycle may have failed without
// moving the interval, so this read can raise a new signal; it is settled before returning.
func (c *Coordinator) current(ctx context.Context) (string, error) {
	token, signaled, err := c.tokens.AccessToken(ctx)
	if signaled {
		return c.settle(ctx, token, err)
	}
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", errs.ErrUnauthenticated
	}
	return token, nil
}

// settle ends a cycle this caller was signaled for. Every path calls MarkRefreshCompleted.
func (c *Coordinator) settle(ctx context.Context, token string, err error) (string, error) {
	if err != nil {
		c.tokens.MarkRefreshCompleted(false)
		return "", err
	}
	if token != "" {
		c.tokens.MarkRefreshCompleted(true)
		return token, nil
	}
	ok := c.refresher.RefreshTokenIfNeeded(ctx)
	c.tokens.MarkRefreshCompleted(ok)
	if !ok {
		return "", errs.ErrUnauthenticated
	}
	// the interval restarted just above, so this read cannot signal again
	token, _, err = c.tokens.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", errs.ErrUnauthenticated
	}
	return token, nil
}

// obtainRefresh reports whether a successful refresh happened for this failure.
func (c *Coordinator) obtainRefresh(ctx context.Context) bool {
	if c.tokens.IsRefreshInProgress() || !c.tokens.TryBeginRefresh() {
		ok := c.tokens.WaitForRefresh(ctx, c.waitTimeout)
		c.log.Debug("waited for concurrent refresh", zap.Bool("ok", ok))
		return ok
	}
	ok := c.refresher.RefreshTokenIfNeeded(ctx)
	c.tokens.MarkRefreshCompleted(ok)
	c.log.Debug("refreshed after authorization failure", zap.Bool("ok", ok))
	return ok
}
