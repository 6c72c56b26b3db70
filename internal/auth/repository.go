// Package auth orchestrates login, sign-up, logout and token refresh and owns the
// authentication state observed by the rest of the app.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/fitsync/internal/errs"
	"github.com/and161185/fitsync/internal/model"
	"github.com/and161185/fitsync/internal/result"
	"github.com/and161185/fitsync/internal/tokenstore"
)

// unknownMessage is shown when the server answered with something the client cannot use.
const unknownMessage = "unknown"

// API is the remote auth endpoint.
type API interface {
	Login(ctx context.Context, creds model.Credentials) (*model.Session, error)
	SignUp(ctx context.Context, req model.SignUp) (*model.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*model.AuthTokens, error)
	Logout(ctx context.Context, accessToken string) error
}

// UserFetcher loads the current user from the remote.
type UserFetcher interface {
	FetchCurrentUser(ctx context.Context) (model.User, error)
}

// UserFetcherFunc adapts a function to UserFetcher.
type UserFetcherFunc func(ctx context.Context) (model.User, error)

func (f UserFetcherFunc) FetchCurrentUser(ctx context.Context) (model.User, error) { return f(ctx) }

// Selection is the unit selection store written on login and cleared on logout.
type Selection interface {
	Set(ctx context.Context, unitID, unitName string) error
	Clear(ctx context.Context) error
}

// Repository is the only component that transitions the authentication state.
type Repository struct {
	api       API
	tokens    tokenstore.Store
	selection Selection
	users     UserFetcher
	log       *zap.Logger
	clock     func() time.Time

	ops   sync.Mutex    // serializes state transitions
	epoch atomic.Uint64 // bumped under ops whenever the stored session is replaced or cleared
	state *stateCell
}

// Option configures a Repository.
type Option func(*Repository)

// WithSelection persists the user's unit on login and clears it on logout.
func WithSelection(s Selection) Option { return func(r *Repository) { r.selection = s } }

// WithUserFetcher sets the collaborator behind CurrentUser.
func WithUserFetcher(f UserFetcher) Option { return func(r *Repository) { r.users = f } }

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Repository) {
		if log != nil {
			r.log = log
		}
	}
}

// WithClock injects the time source used for expiry fallbacks.
func WithClock(clock func() time.Time) Option { return func(r *Repository) { r.clock = clock } }

// NewRepository constructs a Repository. The state starts as Unauthenticated until Bootstrap.
func NewRepository(api API, tokens tokenstore.Store, opts ...Option) *Repository {
	r := &Repository{
		api:    api,
		tokens: tokens,
		log:    zap.NewNop(),
		clock:  time.Now,
		state:  newStateCell(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// State returns the current authentication state.
func (r *Repository) State() State { return r.state.get() }

// Subscribe streams the current state followed by every later change until ctx ends.
// A slow subscriber only sees the latest state.
func (r *Repository) Subscribe(ctx context.Context) <-chan State { return r.state.subscribe(ctx) }

// Bootstrap restores Authenticated from the cached user when the device still holds a
// usable access token or a refresh token to obtain one.
func (r *Repository) Bootstrap(ctx context.Context) State {
	r.ops.Lock()
	defer r.ops.Unlock()

	u, err := r.tokens.CachedUser(ctx)
	if err != nil {
		r.log.Warn("bootstrap: cached user", zap.Error(err))
		return r.state.get()
	}
	if u == nil {
		return r.state.get()
	}
	rt, _ := r.tokens.RefreshToken(ctx)
	if !r.IsTokenValid(ctx) && rt == "" {
		return r.state.get()
	}
	r.state.set(StateAuthenticated(*u))
	r.log.Info("session restored", zap.String("user_id", u.ID.String()))
	return r.state.get()
}

// Login authenticates and persists the session before publishing Authenticated.
func (r *Repository) Login(ctx context.Context, creds model.Credentials) result.Result[model.User] {
	r.ops.Lock()
	defer r.ops.Unlock()

	r.state.set(StateLoading())
	sess, err := r.api.Login(ctx, creds)
	if err != nil {
		r.log.Info("login failed", zap.Error(err))
		r.state.set(StateError(errs.Message(err)))
		return result.Failure[model.User](err)
	}
	return r.establish(ctx, sess, "")
}

// SignUp registers a new account. req.UnitID, when set, wins over the unit the server returns.
func (r *Repository) SignUp(ctx context.Context, req model.SignUp) result.Result[model.User] {
	r.ops.Lock()
	defer r.ops.Unlock()

	r.state.set(StateLoading())
	sess, err := r.api.SignUp(ctx, req)
	if err != nil {
		r.log.Info("sign-up failed", zap.Error(err))
		r.state.set(StateError(errs.Message(err)))
		return result.Failure[model.User](err)
	}
	return r.establish(ctx, sess, req.UnitID)
}

func (r *Repository) establish(ctx context.Context, sess *model.Session, unitOverride string) result.Result[model.User] {
	if sess == nil || sess.Tokens.Token == "" || sess.User.ID == uuid.Nil {
		r.state.set(StateError(unknownMessage))
		return result.Failure[model.User](errs.ErrUnexpectedResponse)
	}
	user := sess.User
	if unitOverride != "" && unitOverride != user.UnitID {
		user.UnitID = unitOverride
		user.UnitName = ""
	}

	r.epoch.Add(1)
	if err := r.tokens.SaveTokens(ctx, withExpiry(sess.Tokens, r.clock())); err != nil {
		r.state.set(StateError(errs.Message(err)))
		return result.Failure[model.User](err)
	}
	if err := r.tokens.SaveUser(ctx, user); err != nil {
		r.state.set(StateError(errs.Message(err)))
		return result.Failure[model.User](err)
	}
	if r.selection != nil && user.UnitID != "" {
		if err := r.selection.Set(ctx, user.UnitID, user.UnitName); err != nil {
			r.log.Warn("persist unit selection", zap.Error(err))
		}
	}

	r.state.set(StateAuthenticated(user))
	r.log.Info("authenticated", zap.String("user_id", user.ID.String()), zap.String("role", string(user.Role)))
	return result.Success(user)
}

// Logout always ends Unauthenticated. The remote call is best-effort; the returned error
// only reports local cleanup failures.
func (r *Repository) Logout(ctx context.Context) error {
	r.ops.Lock()
	defer r.ops.Unlock()
	return r.logoutLocked(ctx)
}

func (r *Repository) logoutLocked(ctx context.Context) error {
	r.state.set(StateLoading())
	r.epoch.Add(1)
	// cleanup must not be skipped because the caller went away
	ctx = context.WithoutCancel(ctx)

	if t, err := r.tokens.Tokens(ctx); err == nil && t != nil && t.Token != "" {
		if err := r.api.Logout(ctx, t.Token); err != nil {
			r.log.Info("remote logout failed", zap.Error(err))
		}
	}

	var cleanup []error
	if err := r.tokens.Clear(ctx); err != nil {
		cleanup = append(cleanup, fmt.Errorf("clear tokens: %w", err))
	}
	if r.selection != nil {
		if err := r.selection.Clear(ctx); err != nil {
			cleanup = append(cleanup, fmt.Errorf("clear selection: %w", err))
		}
	}
	r.state.set(StateUnauthenticated())
	err := errors.Join(cleanup...)
	if err != nil {
		r.log.Error("logout cleanup", zap.Error(err))
	}
	return err
}

// CurrentUser fetches the user from the remote; the auth state is left untouched.
func (r *Repository) CurrentUser(ctx context.Context) result.Result[model.User] {
	if r.users == nil {
		return result.Failure[model.User](errors.New("auth: no user fetcher configured"))
	}
	return result.Of(r.users.FetchCurrentUser(ctx))
}

// CachedUser returns the last persisted user without touching the network.
func (r *Repository) CachedUser(ctx context.Context) *model.User {
	u, err := r.tokens.CachedUser(ctx)
	if err != nil {
		r.log.Warn("read cached user", zap.Error(err))
		return nil
	}
	return u
}

// IsTokenValid reports whether a usable access token is stored. Expiry is enforced by the
// store, so an expired token counts as absent.
func (r *Repository) IsTokenValid(ctx context.Context) bool {
	tok, err := r.tokens.AccessToken(ctx)
	return err == nil && tok != ""
}

// RefreshTokenIfNeeded exchanges the stored refresh token for a new pair. Without a refresh
// token it returns false and changes nothing; any failure ends the session via Logout.
// A pair that arrives after a logout or a new login is discarded and reported as false.
// The caller owns pairing this with session.Manager.MarkRefreshCompleted.
func (r *Repository) RefreshTokenIfNeeded(ctx context.Context) bool {
	epoch := r.epoch.Load()
	rt, err := r.tokens.RefreshToken(ctx)
	if err != nil {
		r.log.Warn("read refresh token", zap.Error(err))
		return false
	}
	if rt == "" {
		return false
	}

	fresh, err := r.api.Refresh(ctx, rt)
	if err == nil && (fresh == nil || fresh.Token == "") {
		err = errs.ErrUnexpectedResponse
	}

	r.ops.Lock()
	defer r.ops.Unlock()
	if r.epoch.Load() != epoch {
		r.log.Info("session changed during token refresh, discarding result")
		return false
	}
	if err == nil {
		next := withExpiry(*fresh, r.clock())
		if next.RefreshToken == "" {
			next.RefreshToken = rt
		}
		err = r.tokens.SaveTokens(ctx, next)
	}
	if err != nil {
		r.log.Info("token refresh failed, ending session", zap.Error(err))
		_ = r.logoutLocked(ctx)
		return false
	}
	r.log.Debug("token refreshed")
	return true
}
