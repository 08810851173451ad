// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/spookylabs/spookygpt/internal/domain"
)

// Repository defines the interface for persisting device identity data.
// Cooldown counters and conversation context live in memory; only the
// identity that keys them is durable.
type Repository interface {
	// GetDevice retrieves a device by its ID. Returns (nil, nil) when the
	// device is unknown.
	GetDevice(ctx context.Context, deviceID string) (*domain.Device, error)

	// UpsertDevice creates or updates a device record.
	UpsertDevice(ctx context.Context, device *domain.Device) error

	// UpdateLastSeen updates the last_seen_at timestamp for a device.
	UpdateLastSeen(ctx context.Context, deviceID string, lastSeen time.Time) error

	// CountActiveSince returns the number of devices seen at or after cutoff.
	CountActiveSince(ctx context.Context, cutoff time.Time) (int, error)

	// DeleteInactive removes devices not seen within the TTL and returns the
	// number of rows deleted.
	DeleteInactive(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
