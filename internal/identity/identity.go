// Package identity provides anonymous per-device identity primitives.
//
// The device ID issued here is the stable session identifier that keys all
// server-side gating state (cooldowns, conversation context). Clients may
// report their own counters, but those are hints; the server never trusts
// them for gating decisions.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/spookylabs/spookygpt/internal/domain"
	"github.com/spookylabs/spookygpt/internal/store"
)

const (
	// DeviceCookieName is the HttpOnly cookie carrying the device ID.
	DeviceCookieName = "spookygpt_device_id"

	deviceCookieMaxAge = 30 * 24 * time.Hour

	// lastSeenRefresh throttles last_seen_at writes so busy devices do not
	// hit the database on every request.
	lastSeenRefresh = time.Minute
)

type contextKey int

const (
	deviceIDKey contextKey = iota
	newDeviceKey
)

var deviceIDPattern = regexp.MustCompile(`^dev_[a-f0-9]{32}$`)

// DeviceIDFromContext extracts the device ID from the request context.
func DeviceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(deviceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithDeviceID returns a context carrying the given device ID. Intended for
// tests and internal wiring.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDKey, deviceID)
}

// IsNewDevice reports whether this request created the device record, i.e.
// the caller has never been seen before. Capacity gating uses this to admit
// returning devices while refusing newcomers when the floor is full.
func IsNewDevice(ctx context.Context) bool {
	v, _ := ctx.Value(newDeviceKey).(bool)
	return v
}

// WithNewDevice marks the context's device as first-seen. Intended for
// tests.
func WithNewDevice(ctx context.Context) context.Context {
	return context.WithValue(ctx, newDeviceKey, true)
}

func generateDeviceID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate device id: %w", err)
	}
	return "dev_" + hex.EncodeToString(buf), nil
}

func isValidDeviceID(id string) bool {
	return deviceIDPattern.MatchString(id)
}

func setDeviceCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     DeviceCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(deviceCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(deviceCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateDeviceID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(DeviceCookieName); err == nil && isValidDeviceID(c.Value) {
		// Refresh the cookie lifetime on every visit.
		setDeviceCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateDeviceID()
	if err != nil {
		return "", err
	}
	setDeviceCookie(w, id, isDev)
	return id, nil
}

func ensureDevice(ctx context.Context, repo store.Repository, deviceID string) (created bool, err error) {
	device, err := repo.GetDevice(ctx, deviceID)
	if err != nil {
		return false, err
	}

	now := time.Now()
	if device == nil {
		return true, repo.UpsertDevice(ctx, &domain.Device{
			DeviceID:   deviceID,
			LastSeenAt: now,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	if now.Sub(device.LastSeenAt) >= lastSeenRefresh {
		return false, repo.UpdateLastSeen(ctx, deviceID, now)
	}
	return false, nil
}

// Middleware injects anonymous per-device identity into the request context
// and keeps the device's last-seen timestamp current in the store.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID, err := getOrCreateDeviceID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish device identity"}`, http.StatusInternalServerError)
				return
			}

			created, err := ensureDevice(r.Context(), repo, deviceID)
			if err != nil {
				http.Error(w, `{"error":"failed to register device"}`, http.StatusInternalServerError)
				return
			}

			ctx := WithDeviceID(r.Context(), deviceID)
			if created {
				ctx = WithNewDevice(ctx)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for login throttling and
// request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
