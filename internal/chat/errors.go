package chat

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInput covers requests the user can correct, like a missing
	// prompt.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPaused means an admin suspended the service.
	ErrPaused = errors.New("service paused")

	// ErrServerFull means the active-device capacity gate refused a new
	// device.
	ErrServerFull = errors.New("server full")
)

// RateLimitedError means the device is in a cooldown. RetryAfter is how long
// remains.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}
