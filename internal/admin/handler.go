package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spookylabs/spookygpt/internal/chat"
	"github.com/spookylabs/spookygpt/internal/identity"
	"github.com/spookylabs/spookygpt/internal/led"
	"github.com/spookylabs/spookygpt/internal/ledger"
)

// Handler serves the operator API under /api/admin.
type Handler struct {
	gate   *Gate
	ledger *ledger.Ledger
	bridge *led.Bridge
	logger *slog.Logger
}

// NewHandler creates the admin handler.
func NewHandler(gate *Gate, ldg *ledger.Ledger, bridge *led.Bridge, logger *slog.Logger) *Handler {
	return &Handler{
		gate:   gate,
		ledger: ldg,
		bridge: bridge,
		logger: logger,
	}
}

// tokenFromRequest extracts the session token from the Authorization header
// or, for websocket clients that cannot set headers, the token query
// parameter.
func tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return token
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// RequireAuth rejects requests without a live admin session.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.gate.Authenticate(tokenFromRequest(r)) {
			chat.Error(w, http.StatusUnauthorized, "invalid or expired admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleLogin serves POST /api/admin/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		chat.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	callerIP := identity.IPFromRequest(r)
	token, err := h.gate.Login(callerIP, req.Password)
	switch {
	case errors.Is(err, ErrTooManyAttempts):
		wait := h.gate.RetryWait(callerIP)
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		chat.Error(w, http.StatusTooManyRequests, "too many login attempts")
		h.logger.Warn("admin login throttled", "caller_ip", callerIP)
	case err != nil:
		chat.Error(w, http.StatusUnauthorized, "invalid password")
		h.logger.Warn("admin login failed", "caller_ip", callerIP)
	default:
		h.logger.Info("admin login", "caller_ip", callerIP)
		chat.JSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"token":   token,
		})
	}
}

// HandleLogout serves POST /api/admin/logout.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.gate.Logout(tokenFromRequest(r))
	chat.JSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// HandleStats serves /api/admin/stats with the full ledger view.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	snap := h.ledger.Snapshot(0)
	chat.JSON(w, http.StatusOK, map[string]interface{}{
		"totalQueries":    snap.Total,
		"serverStartedAt": snap.StartedAt,
		"uptime":          snap.Uptime.Round(time.Second).String(),
		"queriesPerHour":  math.Round(snap.QueriesPerHr*100) / 100,
		"characterStats":  snap.PerCharacter,
		"recentQueries":   snap.RecentQueries,
	})
}

// HandleQueries serves /api/admin/queries; limit is an optional query
// parameter.
func (h *Handler) HandleQueries(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			chat.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	snap := h.ledger.Snapshot(limit)
	chat.JSON(w, http.StatusOK, map[string]interface{}{
		"totalQueries": snap.Total,
		"queries":      snap.RecentQueries,
	})
}

// HandlePause serves /api/admin/pause.
func (h *Handler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.gate.Pause()
	h.logger.Info("service paused by admin")
	chat.JSON(w, http.StatusOK, map[string]interface{}{"success": true, "paused": true})
}

// HandleUnpause serves /api/admin/unpause.
func (h *Handler) HandleUnpause(w http.ResponseWriter, r *http.Request) {
	h.gate.Unpause()
	h.logger.Info("service unpaused by admin")
	chat.JSON(w, http.StatusOK, map[string]interface{}{"success": true, "paused": false})
}

// HandleStatus serves /api/admin/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.ledger.Snapshot(0)
	chat.JSON(w, http.StatusOK, map[string]interface{}{
		"paused":       h.gate.Paused(),
		"totalQueries": snap.Total,
		"uptime":       snap.Uptime.Round(time.Second).String(),
	})
}

// HandleLedStatus serves /api/admin/led/status for the accessory poller.
// The poller keeps its own baseline of totalQueries, so this endpoint is a
// pure read with no side effects and safe to hit on any cadence.
func (h *Handler) HandleLedStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"totalQueries": h.ledger.Total(),
	}
	if cmd := h.bridge.CurrentCommand(); cmd != nil {
		resp["lastLedCommand"] = cmd
	}
	chat.JSON(w, http.StatusOK, resp)
}
