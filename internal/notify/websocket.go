package notify

import (
	"context"
	"errors"

	"github.com/yegors/planetracker/internal/websocket"
)

// Broadcaster is the part of the websocket hub used for delivery
type Broadcaster interface {
	Broadcast(message *websocket.Message) bool
}

// WebSocketSink broadcasts notifications as "alert" messages
type WebSocketSink struct {
	hub Broadcaster
}

// NewWebSocketSink creates a websocket sink
func NewWebSocketSink(hub Broadcaster) *WebSocketSink {
	return &WebSocketSink{hub: hub}
}

// Name implements Sink
func (s *WebSocketSink) Name() string { return "websocket" }

// Notify implements Sink
func (s *WebSocketSink) Notify(_ context.Context, n Notification) error {
	msg := &websocket.Message{
		Type: websocket.MessageTypeAlert,
		Data: map[string]any{
			"title":   n.Title,
			"body":    n.Body,
			"summary": n.Summary,
		},
	}
	if !s.hub.Broadcast(msg) {
		return errors.New("websocket broadcast queue full")
	}
	return nil
}
