package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
)

// HandleActivityWS serves /api/admin/activity/ws: a live feed of accepted
// queries as JSON text frames. Authentication happens in RequireAuth before
// the upgrade; browser clients pass the token as a query parameter.
func (h *Handler) HandleActivityWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("failed to accept activity websocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed ended"); closeErr != nil {
			h.logger.Debug("failed to close activity websocket", "error", closeErr)
		}
	}()

	ctx := r.Context()
	feed := h.ledger.Subscribe()
	defer h.ledger.Unsubscribe(feed)

	// Drain client frames so pings and close frames are processed; the
	// feed is one-way.
	go func() {
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()

	h.logger.Info("activity feed connected")
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-feed:
			if !ok {
				return
			}
			data, err := json.Marshal(rec)
			if err != nil {
				h.logger.Error("failed to encode activity record", "error", err)
				continue
			}
			if err := ws.Write(context.Background(), websocket.MessageText, data); err != nil {
				if websocket.CloseStatus(err) == -1 {
					slog.Debug("activity websocket write failed", "error", err)
				}
				return
			}
		}
	}
}
