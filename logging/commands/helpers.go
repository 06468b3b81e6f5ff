package commands

import (
	"context"

	"wildshape/server/logging"
)

const (
	// EventDenied is emitted when the authorization gate rejects a command.
	EventDenied logging.EventType = "command.denied"
	// EventFailed is emitted when a command handler panics and is degraded to a no-op.
	EventFailed logging.EventType = "command.failed"
)

// DeniedPayload captures the rejected action.
type DeniedPayload struct {
	Action string `json:"action"`
}

// FailedPayload captures the recovered fault and the offending payload.
type FailedPayload struct {
	Action  string `json:"action"`
	Fault   string `json:"fault"`
	Command any    `json:"command,omitempty"`
}

// Denied publishes an authorization denial event.
func Denied(ctx context.Context, pub logging.Publisher, version uint64, actor logging.EntityRef, payload DeniedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDenied,
		Version:  version,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryCommand,
		Payload:  payload,
	})
}

// Failed publishes a recovered handler fault event.
func Failed(ctx context.Context, pub logging.Publisher, version uint64, actor logging.EntityRef, payload FailedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFailed,
		Version:  version,
		Actor:    actor,
		Severity: logging.SeverityError,
		Category: logging.CategoryCommand,
		Payload:  payload,
	})
}
