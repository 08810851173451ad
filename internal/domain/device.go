// Package domain contains core domain types for the SpookyGPT server.
package domain

import (
	"time"
)

// Device represents an anonymous client device identified by the identity
// cookie. Cooldown and context state are keyed by its ID server-side.
type Device struct {
	DeviceID   string    `json:"device_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ActiveWithin returns true if the device was seen within the given window.
func (d *Device) ActiveWithin(window time.Duration) bool {
	return time.Since(d.LastSeenAt) <= window
}
