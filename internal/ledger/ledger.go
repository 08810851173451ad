// Package ledger maintains the server-wide query log.
//
// The ledger is the single authority for the global query count: the LED
// bridge, the admin stats endpoints, and the live activity feed all read
// from it. Records live in memory only; restarting the server restarts the
// count, which downstream consumers must tolerate.
package ledger

import (
	"sync"
	"time"

	"github.com/spookylabs/spookygpt/internal/domain"
)

// promptExcerptLen bounds how much of each prompt the recent log retains.
const promptExcerptLen = 200

// Ledger records accepted queries and fans them out to subscribers.
type Ledger struct {
	mu           sync.Mutex
	total        int64
	startedAt    time.Time
	perCharacter map[string]int64
	recent       []domain.QueryRecord
	recentCap    int
	subscribers  map[chan domain.QueryRecord]struct{}

	now func() time.Time
}

// New creates an empty ledger whose recent log holds at most recentCap
// records.
func New(recentCap int) *Ledger {
	if recentCap < 1 {
		recentCap = 1
	}
	l := &Ledger{
		perCharacter: make(map[string]int64),
		recentCap:    recentCap,
		subscribers:  make(map[chan domain.QueryRecord]struct{}),
		now:          time.Now,
	}
	l.startedAt = l.now()
	return l
}

// Record appends an accepted query and returns the new global total. The
// record is fanned out to subscribers without blocking: a subscriber that
// cannot keep up misses records rather than stalling the request path.
func (l *Ledger) Record(characterID, prompt string) int64 {
	if len(prompt) > promptExcerptLen {
		prompt = prompt[:promptExcerptLen]
	}

	l.mu.Lock()
	l.total++
	l.perCharacter[characterID]++
	rec := domain.QueryRecord{
		Seq:         l.total,
		Timestamp:   l.now(),
		CharacterID: characterID,
		Prompt:      prompt,
	}
	l.recent = append(l.recent, rec)
	if len(l.recent) > l.recentCap {
		l.recent = l.recent[len(l.recent)-l.recentCap:]
	}
	total := l.total
	for ch := range l.subscribers {
		select {
		case ch <- rec:
		default:
		}
	}
	l.mu.Unlock()

	return total
}

// Total returns the global query count.
func (l *Ledger) Total() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Snapshot returns a point-in-time view of the ledger. Recent queries are
// ordered newest-first and capped at limit; limit <= 0 returns the whole
// retained log.
func (l *Ledger) Snapshot(limit int) domain.LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	uptime := l.now().Sub(l.startedAt)
	perHr := 0.0
	if hours := uptime.Hours(); hours > 0 {
		perHr = float64(l.total) / hours
	}

	perChar := make(map[string]int64, len(l.perCharacter))
	for k, v := range l.perCharacter {
		perChar[k] = v
	}

	n := len(l.recent)
	if limit > 0 && limit < n {
		n = limit
	}
	recent := make([]domain.QueryRecord, n)
	for i := 0; i < n; i++ {
		recent[i] = l.recent[len(l.recent)-1-i]
	}

	return domain.LedgerSnapshot{
		Total:         l.total,
		StartedAt:     l.startedAt,
		Uptime:        uptime,
		QueriesPerHr:  perHr,
		PerCharacter:  perChar,
		RecentQueries: recent,
	}
}

// Subscribe registers a channel that receives each record as it lands.
// Delivery is best-effort; the caller must keep draining or accept gaps.
func (l *Ledger) Subscribe() chan domain.QueryRecord {
	ch := make(chan domain.QueryRecord, 16)
	l.mu.Lock()
	l.subscribers[ch] = struct{}{}
	l.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (l *Ledger) Unsubscribe(ch chan domain.QueryRecord) {
	l.mu.Lock()
	if _, ok := l.subscribers[ch]; ok {
		delete(l.subscribers, ch)
		close(ch)
	}
	l.mu.Unlock()
}
