package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"usalli/internal/notification"
	"usalli/pkg/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// EventsHandler streams an account's domain events over a websocket.
type EventsHandler struct {
	hub      *notification.Hub
	access   *AccountAccess
	upgrader websocket.Upgrader
	logger   logger.Logger
}

// NewEventsHandler only upgrades same-origin requests when allowedOrigins is
// empty.
func NewEventsHandler(hub *notification.Hub, access *AccountAccess, allowedOrigins []string, log logger.Logger) *EventsHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(allowedOrigins) > 0 {
		upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range allowedOrigins {
				if strings.EqualFold(o, origin) {
					return true
				}
			}
			return false
		}
	}
	return &EventsHandler{
		hub:      hub,
		access:   access,
		upgrader: upgrader,
		logger:   log,
	}
}

// Stream handles GET /accounts/{id}/events.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.access.Authorize(r.Context(), accountID); err != nil {
		respondServiceError(w, r, h.logger, err, "Open event stream")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(accountID)
	defer sub.Close()

	h.logger.Info("Event stream opened", map[string]interface{}{"account_id": accountID})

	// Reads only serve pongs and close frames.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			h.logger.Info("Event stream closed", map[string]interface{}{"account_id": accountID})
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Warn("Failed to push event", map[string]interface{}{
					"account_id": accountID,
					"error":      err.Error(),
				})
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
