package api

import (
	"context"
	"fmt"

	"github.com/yegors/planetracker/internal/websocket"
	"github.com/yegors/planetracker/pkg/logger"
)

// WebSocketHandler handles incoming WebSocket messages
type WebSocketHandler struct {
	scheduler Scheduler
	logger    *logger.Logger
}

// NewWebSocketHandler creates a new WebSocket message handler
func NewWebSocketHandler(scheduler Scheduler, log *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		scheduler: scheduler,
		logger:    log.Named("ws-handler"),
	}
}

// HandleMessage handles incoming WebSocket messages
func (h *WebSocketHandler) HandleMessage(client *websocket.Client, messageType string, data map[string]any) error {
	switch messageType {
	case websocket.MessageTypeFlagSet:
		return h.handleFlagSet(client, data)
	default:
		h.logger.Debug("Unhandled message type", logger.String("type", messageType))
		return nil
	}
}

// handleFlagSet applies a flag edit from a client and answers with the flag state
func (h *WebSocketHandler) handleFlagSet(client *websocket.Client, data map[string]any) error {
	enabled, ok := data["enabled"].(bool)
	if !ok {
		return fmt.Errorf("flag_set requires a boolean \"enabled\"")
	}

	h.scheduler.SetFlag(context.Background(), enabled)
	view := h.scheduler.Flag()

	message := &websocket.Message{
		Type: websocket.MessageTypeFlagState,
		Data: map[string]any{
			"enabled":        view.Enabled,
			"state":          view.State,
			"suppress_until": view.SuppressUntil,
		},
	}
	if !client.SendMessage(message) {
		h.logger.Warn("Client send channel full, dropping message")
	}
	return nil
}
