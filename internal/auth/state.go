package auth

import (
	"context"
	"sync"

	"github.com/and161185/fitsync/internal/model"
)

// StateKind tags a State.
type StateKind uint8

const (
	Unauthenticated StateKind = iota
	Loading
	Authenticated
	Failed
)

func (k StateKind) String() string {
	switch k {
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "error"
	default:
		return "unauthenticated"
	}
}

// State is exactly one of Unauthenticated, Loading, Authenticated(User) or Error(Message).
// The zero value is Unauthenticated.
type State struct {
	kind    StateKind
	user    model.User
	message string
}

func StateUnauthenticated() State { return State{kind: Unauthenticated} }

func StateLoading() State { return State{kind: Loading} }

func StateAuthenticated(u model.User) State { return State{kind: Authenticated, user: u} }

func StateError(message string) State { return State{kind: Failed, message: message} }

func (s State) Kind() StateKind { return s.kind }

func (s State) IsAuthenticated() bool { return s.kind == Authenticated }

// User is set only for Authenticated.
func (s State) User() (model.User, bool) { return s.user, s.kind == Authenticated }

// Message is set only for Error.
func (s State) Message() string { return s.message }

// stateCell holds the current state and fans changes out to subscribers.
// Subscribers see the latest value; intermediate values may be skipped.
type stateCell struct {
	mu   sync.Mutex
	cur  State
	subs map[chan State]struct{}
}

func newStateCell() *stateCell {
	return &stateCell{subs: map[chan State]struct{}{}}
}

func (c *stateCell) get() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *stateCell) set(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = s
	for ch := range c.subs {
		offer(ch, s)
	}
}

// offer replaces a pending value instead of blocking the writer.
func offer(ch chan State, s State) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

func (c *stateCell) subscribe(ctx context.Context) <-chan State {
	in := make(chan State, 1)
	out := make(chan State)

	c.mu.Lock()
	in <- c.cur
	c.subs[in] = struct{}{}
	c.mu.Unlock()

	go func() {
		defer close(out)
		defer func() {
			c.mu.Lock()
			delete(c.subs, in)
			c.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-in:
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
