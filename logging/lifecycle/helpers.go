package lifecycle

import (
	"context"

	"wildshape/server/logging"
)

const (
	// EventPlayerAuthenticated is emitted when a player completes the room handshake.
	EventPlayerAuthenticated logging.EventType = "lifecycle.player_authenticated"
	// EventPlayerDisconnected is emitted when a player leaves the room.
	EventPlayerDisconnected logging.EventType = "lifecycle.player_disconnected"
	// EventPlayerTimedOut is emitted when the heartbeat sweep reclaims a player.
	EventPlayerTimedOut logging.EventType = "lifecycle.player_timed_out"
	// EventDMStatusChanged is emitted when a player gains or loses DM status.
	EventDMStatusChanged logging.EventType = "lifecycle.dm_status_changed"
)

// AuthenticatedPayload captures spawn metadata for a newly authenticated player.
type AuthenticatedPayload struct {
	SpawnX float64 `json:"spawnX"`
	SpawnY float64 `json:"spawnY"`
	IsDM   bool    `json:"isDM"`
}

// DisconnectedPayload captures the reason a player left.
type DisconnectedPayload struct {
	Reason string `json:"reason"`
}

// DMStatusPayload captures the new elevation state.
type DMStatusPayload struct {
	IsDM bool `json:"isDM"`
}

// PlayerAuthenticated publishes a handshake-complete event.
func PlayerAuthenticated(ctx context.Context, pub logging.Publisher, version uint64, actor logging.EntityRef, payload AuthenticatedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPlayerAuthenticated,
		Version:  version,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

// PlayerDisconnected publishes a player disconnect event.
func PlayerDisconnected(ctx context.Context, pub logging.Publisher, version uint64, actor logging.EntityRef, payload DisconnectedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPlayerDisconnected,
		Version:  version,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

// PlayerTimedOut publishes a heartbeat-timeout removal event.
func PlayerTimedOut(ctx context.Context, pub logging.Publisher, version uint64, actor logging.EntityRef) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPlayerTimedOut,
		Version:  version,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryLifecycle,
	})
}

// DMStatusChanged publishes an elevation or revocation event.
func DMStatusChanged(ctx context.Context, pub logging.Publisher, version uint64, actor logging.EntityRef, payload DMStatusPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDMStatusChanged,
		Version:  version,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}
