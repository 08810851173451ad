package domain

import (
	"time"
)

// LedCommand is the pending command for the LED accessory. At most one is
// retained; a newer command replaces the previous one (most-recent-wins).
// The accessory firmware parses Action literally, so the string format must
// not change.
type LedCommand struct {
	Action     string    `json:"action"`
	IssuedAt   time.Time `json:"issuedAt"`
	QueryCount int64     `json:"queryCount"`
}
