// Package cooldown enforces the every-Nth-query rest period.
//
// Each device gets its own counter. When an accepted request brings the
// counter to a multiple of the threshold, the device enters a cooldown and
// further requests are refused until it lapses. Expiry is lazy: state is
// corrected on the next check rather than by a background timer, so an idle
// device costs nothing.
package cooldown

import (
	"sync"
	"time"
)

// Gate tracks per-device query counts and active cooldowns.
type Gate struct {
	mu        sync.Mutex
	threshold int
	duration  time.Duration
	devices   map[string]*deviceState

	// now is swappable for tests.
	now func() time.Time
}

type deviceState struct {
	count        int
	blockedUntil time.Time
	lastQuery    time.Time
}

// New creates a gate that imposes a cooldown of the given duration after
// every threshold-th accepted query. A threshold below 1 disables cooldowns
// entirely; the gate still counts queries.
func New(threshold int, duration time.Duration) *Gate {
	return &Gate{
		threshold: threshold,
		duration:  duration,
		devices:   make(map[string]*deviceState),
		now:       time.Now,
	}
}

// Record registers an accepted query for the device and returns the device's
// new query count. When the count reaches a multiple of the threshold the
// device enters a cooldown effective immediately.
func (g *Gate) Record(deviceID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.devices[deviceID]
	if st == nil {
		st = &deviceState{}
		g.devices[deviceID] = st
	}

	st.count++
	st.lastQuery = g.now()
	if g.threshold > 0 && st.count%g.threshold == 0 {
		st.blockedUntil = st.lastQuery.Add(g.duration)
	}
	return st.count
}

// Blocked reports whether the device is in an active cooldown and, if so,
// how long remains. An unknown device is never blocked.
func (g *Gate) Blocked(deviceID string) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.devices[deviceID]
	if st == nil || st.blockedUntil.IsZero() {
		return false, 0
	}

	remaining := st.blockedUntil.Sub(g.now())
	if remaining <= 0 {
		st.blockedUntil = time.Time{}
		return false, 0
	}
	return true, remaining
}

// Count returns the device's query count so far. Unknown devices report 0.
func (g *Gate) Count(deviceID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if st := g.devices[deviceID]; st != nil {
		return st.count
	}
	return 0
}

// Reset drops all state for the device.
func (g *Gate) Reset(deviceID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.devices, deviceID)
}

// Prune removes devices that have been idle longer than maxIdle and are not
// in an active cooldown, keeping memory bounded across long runs. Query
// counts for pruned devices restart from zero, which only delays their next
// cooldown.
func (g *Gate) Prune(maxIdle time.Duration) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	removed := 0
	for id, st := range g.devices {
		if st.blockedUntil.After(now) {
			continue
		}
		if now.Sub(st.lastQuery) > maxIdle {
			delete(g.devices, id)
			removed++
		}
	}
	return removed
}
