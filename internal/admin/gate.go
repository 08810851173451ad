// Package admin guards the operator surface: login, session tokens, the
// pause switch, and the monitoring endpoints.
package admin

import (
	"crypto/subtle"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

var (
	// ErrUnauthorized covers a wrong password or a missing/expired token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTooManyAttempts means the caller must wait out the login backoff.
	ErrTooManyAttempts = errors.New("too many login attempts")
)

// Backoff tuning: after backoffFreeAttempts failures the wait doubles per
// failure, capped at backoffMax.
const (
	backoffFreeAttempts = 3
	backoffBase         = time.Second
	backoffMax          = 5 * time.Minute
	backoffWindow       = 15 * time.Minute
)

// Gate authenticates the shared admin credential and tracks sessions.
type Gate struct {
	password string
	sessions *gocache.Cache
	failures *gocache.Cache
	paused   *atomic.Bool

	now func() time.Time
}

type failureState struct {
	count   int
	blocked time.Time
}

// NewGate creates a gate for the given shared password. Sessions expire
// after sessionTTL; the paused flag is shared with the chat service.
func NewGate(password string, sessionTTL time.Duration, paused *atomic.Bool) *Gate {
	return &Gate{
		password: password,
		sessions: gocache.New(sessionTTL, 10*time.Minute),
		failures: gocache.New(backoffWindow, 10*time.Minute),
		paused:   paused,
		now:      time.Now,
	}
}

// Login checks the password and mints a session token. Failures from the
// same caller IP back off exponentially.
func (g *Gate) Login(callerIP, password string) (string, error) {
	if wait := g.retryWait(callerIP); wait > 0 {
		return "", ErrTooManyAttempts
	}

	if subtle.ConstantTimeCompare([]byte(password), []byte(g.password)) != 1 {
		g.recordFailure(callerIP)
		return "", ErrUnauthorized
	}

	g.failures.Delete(callerIP)
	token := uuid.NewString()
	g.sessions.SetDefault(token, g.now())
	return token, nil
}

// Logout invalidates a session token. Unknown tokens are a no-op.
func (g *Gate) Logout(token string) {
	g.sessions.Delete(token)
}

// Authenticate reports whether the token belongs to a live session.
func (g *Gate) Authenticate(token string) bool {
	if token == "" {
		return false
	}
	_, ok := g.sessions.Get(token)
	return ok
}

// RetryWait returns how long the caller IP must wait before the next login
// attempt, zero when unrestricted.
func (g *Gate) RetryWait(callerIP string) time.Duration {
	return g.retryWait(callerIP)
}

func (g *Gate) retryWait(callerIP string) time.Duration {
	v, ok := g.failures.Get(callerIP)
	if !ok {
		return 0
	}
	st := v.(*failureState)
	if wait := st.blocked.Sub(g.now()); wait > 0 {
		return wait
	}
	return 0
}

func (g *Gate) recordFailure(callerIP string) {
	st := &failureState{}
	if v, ok := g.failures.Get(callerIP); ok {
		st = v.(*failureState)
	}
	st.count++
	if st.count > backoffFreeAttempts {
		wait := backoffBase << (st.count - backoffFreeAttempts - 1)
		if wait > backoffMax || wait <= 0 {
			wait = backoffMax
		}
		st.blocked = g.now().Add(wait)
	}
	g.failures.SetDefault(callerIP, st)
}

// Pause suspends chat handling.
func (g *Gate) Pause() {
	g.paused.Store(true)
}

// Unpause resumes chat handling.
func (g *Gate) Unpause() {
	g.paused.Store(false)
}

// Paused reports the current pause state.
func (g *Gate) Paused() bool {
	return g.paused.Load()
}
