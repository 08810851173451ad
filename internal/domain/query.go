package domain

import (
	"time"
)

// QueryRecord captures one accepted chat query. Records are appended to the
// in-memory ledger at request-acceptance time, before the model call, so a
// request that fails mid-stream still counts.
type QueryRecord struct {
	Seq         int64     `json:"seq"`
	Timestamp   time.Time `json:"timestamp"`
	CharacterID string    `json:"character"`
	Prompt      string    `json:"prompt"`
}

// LedgerSnapshot is a point-in-time view of the query ledger.
type LedgerSnapshot struct {
	Total         int64            `json:"totalQueries"`
	StartedAt     time.Time        `json:"serverStartedAt"`
	Uptime        time.Duration    `json:"-"`
	QueriesPerHr  float64          `json:"queriesPerHour"`
	PerCharacter  map[string]int64 `json:"characterStats"`
	RecentQueries []QueryRecord    `json:"recentQueries"`
}
