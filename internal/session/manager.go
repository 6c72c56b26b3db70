// Package session holds the in-memory token coordinator and the unit selection store.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/fitsync/internal/model"
	"github.com/and161185/fitsync/internal/tokenstore"
)

// Defaults.
const (
	DefaultRefreshInterval = 5 * time.Minute
	DefaultWaitTimeout     = 5 * time.Second
)

// Phase of the refresh cycle.
type Phase uint8

const (
	// PhaseIdle: no refresh has been signaled since start or since the last reset.
	PhaseIdle Phase = iota
	// PhaseRefreshSignaled: one caller owns the refresh; everyone else waits for completion.
	PhaseRefreshSignaled
	// PhaseCompleted: the last cycle finished; see Manager.Phase for its outcome.
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseRefreshSignaled:
		return "refresh_signaled"
	case PhaseCompleted:
		return "completed"
	default:
		return "idle"
	}
}

// Manager tracks refresh timing and the in-flight refresh signal above a token store.
// It never talks to the network: whoever receives the signal performs the refresh and
// reports back through MarkRefreshCompleted.
type Manager struct {
	store    tokenstore.Store
	clock    func() time.Time
	interval time.Duration
	log      *zap.Logger

	mu          sync.Mutex
	phase       Phase
	lastOK      bool
	lastRefresh time.Time
	done        chan struct{} // closed when the signaled cycle ends
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock injects the time source.
func WithClock(clock func() time.Time) Option { return func(m *Manager) { m.clock = clock } }

// WithRefreshInterval overrides the 5 minute refresh interval.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewManager constructs a Manager over store.
func NewManager(store tokenstore.Store, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		clock:    time.Now,
		interval: DefaultRefreshInterval,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// AccessToken returns whatever access token the store currently yields ("" when missing
// or expired). When the refresh interval has elapsed and no refresh is in flight, it
// atomically raises the refresh signal and reports signaled=true to this caller only.
func (m *Manager) AccessToken(ctx context.Context) (token string, signaled bool, err error) {
	signaled = m.signalIfDue()
	token, err = m.store.AccessToken(ctx)
	return token, signaled, err
}

func (m *Manager) signalIfDue() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseRefreshSignaled {
		return false
	}
	if m.clock().Sub(m.lastRefresh) <= m.interval {
		return false
	}
	m.beginLocked()
	m.log.Debug("token refresh signaled")
	return true
}

// TryBeginRefresh claims the refresh signal outside the interval check. It returns false
// when another caller already owns it.
func (m *Manager) TryBeginRefresh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseRefreshSignaled {
		return false
	}
	m.beginLocked()
	return true
}

// MarkRefreshCompleted ends the current cycle. Call exactly once per refresh attempt.
func (m *Manager) MarkRefreshCompleted(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.lastRefresh = m.clock()
	}
	m.finishLocked(PhaseCompleted, success)
	m.log.Debug("token refresh completed", zap.Bool("success", success))
}

// IsRefreshInProgress is a point-in-time read of the signal.
func (m *Manager) IsRefreshInProgress() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase == PhaseRefreshSignaled
}

// Phase reports the current phase and, for PhaseCompleted, whether the last cycle succeeded.
func (m *Manager) Phase() (Phase, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase, m.lastOK
}

// WaitForRefresh blocks until the in-flight refresh completes (true) or timeout elapses
// or ctx ends (false). It returns true immediately when nothing is in flight.
// A non-positive timeout means DefaultWaitTimeout.
func (m *Manager) WaitForRefresh(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	m.mu.Lock()
	if m.phase != PhaseRefreshSignaled {
		m.mu.Unlock()
		return true
	}
	done := m.done
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		m.log.Warn("timed out waiting for token refresh", zap.Duration("timeout", timeout))
		return false
	case <-ctx.Done():
		return false
	}
}

// SaveTokens persists t and restarts the refresh interval. A pending signal is released
// as a successful cycle.
func (m *Manager) SaveTokens(ctx context.Context, t model.AuthTokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.SaveTokens(ctx, t); err != nil {
		return err
	}
	m.lastRefresh = m.clock()
	if m.phase == PhaseRefreshSignaled {
		m.finishLocked(PhaseCompleted, true)
	}
	return nil
}

// ClearTokens wipes the store and resets the cycle; waiters are released.
func (m *Manager) ClearTokens(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.store.Clear(ctx)
	m.lastRefresh = time.Time{}
	m.finishLocked(PhaseIdle, false)
	return err
}

// Store returns the underlying store with SaveTokens and Clear routed through the Manager,
// so every writer keeps the refresh cycle in step with what is persisted.
func (m *Manager) Store() tokenstore.Store { return managedStore{Store: m.store, m: m} }

type managedStore struct {
	tokenstore.Store
	m *Manager
}

func (s managedStore) SaveTokens(ctx context.Context, t model.AuthTokens) error {
	return s.m.SaveTokens(ctx, t)
}

func (s managedStore) Clear(ctx context.Context) error { return s.m.ClearTokens(ctx) }

func (m *Manager) beginLocked() {
	m.phase = PhaseRefreshSignaled
	m.done = make(chan struct{})
}

func (m *Manager) finishLocked(next Phase, ok bool) {
	m.phase = next
	m.lastOK = ok
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
}
