package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/spookylabs/spookygpt/internal/characters"
	"github.com/spookylabs/spookygpt/internal/identity"
	"github.com/spookylabs/spookygpt/internal/ledger"
	"github.com/spookylabs/spookygpt/internal/store"
)

// maxPromptLen bounds accepted prompt bodies.
const maxPromptLen = 4000

// Handler serves the public chat API.
type Handler struct {
	service  *Service
	registry *characters.Registry
	ledger   *ledger.Ledger
	repo     store.Repository
	logger   *slog.Logger

	maxActiveDevices   int
	deviceActiveWindow time.Duration
}

// NewHandler creates the public API handler.
func NewHandler(service *Service, registry *characters.Registry, ldg *ledger.Ledger, repo store.Repository, logger *slog.Logger, maxActiveDevices int, deviceActiveWindow time.Duration) *Handler {
	return &Handler{
		service:            service,
		registry:           registry,
		ledger:             ldg,
		repo:               repo,
		logger:             logger,
		maxActiveDevices:   maxActiveDevices,
		deviceActiveWindow: deviceActiveWindow,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// atCapacity reports whether a first-time device should be turned away.
// Devices that have been seen before are always admitted; a counting error
// degrades to admitting everyone.
func (h *Handler) atCapacity(r *http.Request) bool {
	if h.maxActiveDevices <= 0 || !identity.IsNewDevice(r.Context()) {
		return false
	}
	active, err := h.repo.CountActiveSince(r.Context(), time.Now().Add(-h.deviceActiveWindow))
	if err != nil {
		h.logger.Error("count active devices", "error", err)
		return false
	}
	return active > h.maxActiveDevices
}

// HandleChat serves POST /api/chat as a chunked text/plain stream.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if h.atCapacity(r) {
		Error(w, http.StatusServiceUnavailable, "server is full, try again later")
		return
	}

	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Prompt) > maxPromptLen {
		Error(w, http.StatusBadRequest, "prompt too long")
		return
	}

	deviceID := identity.DeviceIDFromContext(r.Context())
	result, err := h.service.Chat(r.Context(), deviceID, req)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Query-Count", strconv.Itoa(result.QueryCount))
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for chunk, err := range result.Stream {
		if err != nil {
			// The status line is gone; surface the failure as readable
			// text in the stream itself.
			fmt.Fprintf(w, "\n\n[The spirits are silent: %s]", err)
			if flusher != nil {
				flusher.Flush()
			}
			return
		}
		if _, werr := fmt.Fprint(w, chunk); werr != nil {
			// Client went away; the request context cancellation stops
			// the backend stream.
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (h *Handler) writeChatError(w http.ResponseWriter, err error) {
	var rateLimited *RateLimitedError
	switch {
	case errors.Is(err, ErrInvalidInput):
		Error(w, http.StatusBadRequest, "missing prompt")
	case errors.As(err, &rateLimited):
		seconds := int(math.Ceil(rateLimited.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		JSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":      "cooldown active",
			"retryAfter": seconds,
		})
	case errors.Is(err, ErrPaused):
		Error(w, http.StatusServiceUnavailable, "the spirits are resting, try again soon")
	default:
		Error(w, http.StatusServiceUnavailable, "model backend unavailable")
	}
}

// HandleCharacters serves GET /api/characters.
func (h *Handler) HandleCharacters(w http.ResponseWriter, r *http.Request) {
	if h.atCapacity(r) {
		Error(w, http.StatusServiceUnavailable, "server is full, try again later")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"characters": h.registry.All(),
	})
}

// HandleSpeechConfig serves GET /api/speech-config.
func (h *Handler) HandleSpeechConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.registry.Speech())
}

// statsRecentLimit caps the recent entries in the public stats view.
const statsRecentLimit = 20

// HandleStats serves GET /api/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	snap := h.ledger.Snapshot(statsRecentLimit)
	JSON(w, http.StatusOK, map[string]interface{}{
		"totalQueries":    snap.Total,
		"serverStartedAt": snap.StartedAt,
		"uptime":          snap.Uptime.Round(time.Second).String(),
		"queriesPerHour":  math.Round(snap.QueriesPerHr*100) / 100,
		"characterStats":  snap.PerCharacter,
		"recentQueries":   snap.RecentQueries,
	})
}
