package network

import (
	"context"

	"wildshape/server/logging"
)

const (
	// EventMessageDropped is emitted when an inbound message fails the intake gate.
	EventMessageDropped logging.EventType = "network.message_dropped"
	// EventSendFailed is emitted when an outbound write to a client fails.
	EventSendFailed logging.EventType = "network.send_failed"
)

// DroppedPayload captures why an inbound message was discarded.
type DroppedPayload struct {
	Reason string `json:"reason"`
	Kind   string `json:"kind,omitempty"`
	Bytes  int    `json:"bytes,omitempty"`
}

// SendFailedPayload captures the write error for an outbound message.
type SendFailedPayload struct {
	Error string `json:"error"`
}

// MessageDropped publishes an intake rejection event.
func MessageDropped(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload DroppedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMessageDropped,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// SendFailed publishes an outbound write failure event.
func SendFailed(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload SendFailedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSendFailed,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}
