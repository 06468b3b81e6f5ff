package server

import (
	"context"
	"crypto/subtle"
	"time"

	"golang.org/x/crypto/bcrypt"

	"wildshape/server/logging"
	"wildshape/server/logging/lifecycle"
)

// handleAuthenticateLocked runs the room handshake. On success the
// connection is authorized for broadcasts, a roster entry is ensured, and a
// spawn token is created unless the player already holds DM status from a
// previous session. Failures answer with auth-failed and leave the
// connection open for a retry.
func (h *Hub) handleAuthenticateLocked(conn *connState, cmd Command) {
	payload := cmd.Auth
	if payload == nil {
		h.unicastLocked(conn, AuthResultMessage{Ver: ProtocolVersion, Type: MsgAuthFailed})
		return
	}

	roomID := payload.RoomID
	if roomID == "" {
		roomID = DefaultRoomID
	}
	if subtle.ConstantTimeCompare([]byte(roomID), []byte(h.state.RoomID)) != 1 {
		h.unicastLocked(conn, AuthResultMessage{Ver: ProtocolVersion, Type: MsgAuthFailed})
		return
	}
	if h.roomSecretHash != nil {
		if bcrypt.CompareHashAndPassword(h.roomSecretHash, []byte(payload.Secret)) != nil {
			h.logger.Printf("auth failed for %s: bad room secret", conn.id)
			h.unicastLocked(conn, AuthResultMessage{Ver: ProtocolVersion, Type: MsgAuthFailed})
			return
		}
	}

	conn.authenticated = true
	conn.lastHeartbeat = h.clock()
	h.metrics.Store(metricAuthorizedClients, uint64(h.authorizedCountLocked()))

	player, _ := h.state.ensurePlayer(conn.id, payload.Name)
	if !player.IsDM {
		h.state.ensureSpawnToken(conn.id)
	}

	h.unicastLocked(conn, AuthResultMessage{
		Ver:      ProtocolVersion,
		Type:     MsgAuthOK,
		PlayerID: conn.id,
		RoomID:   h.state.RoomID,
		IsDM:     player.IsDM,
	})

	lifecycle.PlayerAuthenticated(context.Background(), h.events, h.state.Version,
		logging.EntityRef{ID: conn.id, Kind: logging.EntityKindPlayer},
		lifecycle.AuthenticatedPayload{SpawnX: spawnX, SpawnY: spawnY, IsDM: player.IsDM})

	// The tailored snapshot fills the new client's asset cache; the
	// broadcast tells everyone else about the joined player.
	h.state.Version++
	h.scene = RebuildScene(h.scene, h.state, h.logger)
	h.sendSnapshotLocked(conn)
	h.broadcastSnapshotLocked()
	h.enqueueSaveLocked()
}

// handleHeartbeatLocked refreshes the liveness deadline and answers with an
// ack carrying the measured round trip.
func (h *Hub) handleHeartbeatLocked(conn *connState, cmd Command) {
	now := h.clock()
	conn.lastHeartbeat = now

	var clientSent int64
	if cmd.Heartbeat != nil {
		clientSent = cmd.Heartbeat.ClientSent
	}
	if clientSent > 0 {
		if rtt := now.UnixMilli() - clientSent; rtt >= 0 {
			conn.lastRTT = time.Duration(rtt) * time.Millisecond
		}
	}

	h.unicastLocked(conn, HeartbeatAckMessage{
		Ver:        ProtocolVersion,
		Type:       MsgHeartbeatAck,
		ServerTime: now.UnixMilli(),
		ClientTime: clientSent,
		RTTMillis:  conn.lastRTT.Milliseconds(),
	})
}

// handleResyncLocked answers a gap report with a full snapshot. When the
// requested version has already left the journal window, a nack precedes
// the snapshot so the client can surface the discontinuity.
func (h *Hub) handleResyncLocked(conn *connState, cmd Command) {
	var requested uint64
	if cmd.Resync != nil {
		requested = cmd.Resync.Version
	}

	if requested != 0 && conn.transport != nil && !h.hasUnseenAssetsLocked(conn) {
		// When the journal still spans the client's version, replaying the
		// retained frames closes the gap without re-serializing the room.
		// An empty replay answers nothing; fall through to the snapshot so
		// the client always receives a frame that clears its gap.
		if frames, covered := h.journal.DeltasAfter(requested); covered && len(frames) > 0 {
			delivered := true
			for _, frame := range frames {
				if !conn.transport.Enqueue(frame) {
					delivered = false
					break
				}
			}
			if delivered {
				return
			}
		}
	}

	if requested != 0 && !h.journal.Covers(requested) {
		h.unicastLocked(conn, ResyncNackMessage{
			Ver:       ProtocolVersion,
			Type:      MsgResyncNack,
			Requested: requested,
		})
	}

	// Serve the cached keyframe when it matches the live version and the
	// client needs no asset payloads; otherwise build a tailored snapshot.
	if data, version, ok := h.journal.LatestKeyframe(); ok && version == h.state.Version && !h.hasUnseenAssetsLocked(conn) {
		if conn.transport != nil && conn.transport.Enqueue(data) {
			return
		}
	}
	h.sendSnapshotLocked(conn)
}

func (h *Hub) hasUnseenAssetsLocked(conn *connState) bool {
	for id := range h.state.Assets {
		if _, seen := conn.seenAssets[id]; !seen {
			return true
		}
	}
	return false
}

// handleLoadSessionLocked replaces the live room with a previously persisted
// one. With an inline payload the session comes from the client; otherwise
// the configured save file is reloaded. The version counter never moves
// backwards across a load.
func (h *Hub) handleLoadSessionLocked(conn *connState) routeResult {
	if h.cfg.SaveFile == "" {
		h.logger.Printf("load-session from %s ignored: persistence disabled", conn.id)
		return routeResult{}
	}
	state, scene, err := LoadRoomState(h.cfg.SaveFile)
	if err != nil || state == nil {
		h.logger.Printf("load-session from %s failed: %v", conn.id, err)
		return routeResult{}
	}

	if state.Version < h.state.Version {
		state.Version = h.state.Version
	}
	state.RoomID = h.state.RoomID
	state.resetEphemeral()

	// Re-ensure roster entries for everyone currently connected so live
	// players are not orphaned by the loaded session.
	for id, c := range h.conns {
		if !c.authenticated {
			continue
		}
		name := ""
		if existing := h.state.Players[id]; existing != nil {
			name = existing.Name
		}
		player, _ := state.ensurePlayer(id, name)
		if existing := h.state.Players[id]; existing != nil {
			player.IsDM = existing.IsDM
		}
		if !player.IsDM {
			state.ensureSpawnToken(id)
		}
	}

	h.state = state
	h.scene = scene

	// Asset ids changed wholesale; every client's cache must refill.
	h.assetsBroadcast = make(map[string]struct{})
	for _, c := range h.conns {
		c.seenAssets = make(map[string]struct{})
	}
	return durable()
}

// handleSetPasswordLocked rotates the room or DM secret. An empty secret
// opens the room (or disables elevation). Secrets live on the hub, not in
// RoomState, so no version bump occurs.
func (h *Hub) handleSetPasswordLocked(conn *connState, cmd Command, scope string) {
	secret := ""
	if cmd.Password != nil {
		secret = cmd.Password.Secret
	}

	var hash []byte
	if secret != "" {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			h.logger.Printf("failed to hash %s secret: %v", scope, err)
			h.unicastLocked(conn, PasswordResultMessage{
				Ver:   ProtocolVersion,
				Type:  MsgRoomPasswordUpdateFailed,
				Scope: scope,
			})
			return
		}
	}

	if scope == "dm" {
		h.dmSecretHash = hash
	} else {
		h.roomSecretHash = hash
	}
	h.logger.Printf("%s secret rotated by %s", scope, conn.id)
	h.unicastLocked(conn, PasswordResultMessage{
		Ver:   ProtocolVersion,
		Type:  MsgRoomPasswordUpdated,
		Scope: scope,
	})
}

// handleElevateLocked grants DM status when the candidate matches the DM
// secret. Elevation is disabled while no DM secret is set.
func (h *Hub) handleElevateLocked(conn *connState, cmd Command) routeResult {
	candidate := ""
	if cmd.Password != nil {
		candidate = cmd.Password.Secret
	}
	if h.dmSecretHash == nil || bcrypt.CompareHashAndPassword(h.dmSecretHash, []byte(candidate)) != nil {
		h.logger.Printf("DM elevation failed for %s", conn.id)
		h.unicastLocked(conn, DMStatusMessage{Ver: ProtocolVersion, Type: MsgDMElevationFailed})
		return routeResult{}
	}

	player := h.state.Players[conn.id]
	if player == nil || player.IsDM {
		return routeResult{}
	}
	player.IsDM = true

	h.unicastLocked(conn, DMStatusMessage{Ver: ProtocolVersion, Type: MsgDMStatus, IsDM: true})
	lifecycle.DMStatusChanged(context.Background(), h.events, h.state.Version,
		logging.EntityRef{ID: conn.id, Kind: logging.EntityKindPlayer},
		lifecycle.DMStatusPayload{IsDM: true})
	return durable()
}

// handleRevokeLocked drops the sender's own DM status.
func (h *Hub) handleRevokeLocked(conn *connState) routeResult {
	player := h.state.Players[conn.id]
	if player == nil || !player.IsDM {
		return routeResult{}
	}
	player.IsDM = false

	h.unicastLocked(conn, DMStatusMessage{Ver: ProtocolVersion, Type: MsgDMStatus, IsDM: false})
	lifecycle.DMStatusChanged(context.Background(), h.events, h.state.Version,
		logging.EntityRef{ID: conn.id, Kind: logging.EntityKindPlayer},
		lifecycle.DMStatusPayload{IsDM: false})
	return durable()
}

// handleSignalLocked relays a WebRTC signaling blob to a named peer. The
// server never inspects the payload.
func (h *Hub) handleSignalLocked(conn *connState, cmd Command) {
	if cmd.Signal == nil || cmd.Signal.To == "" {
		return
	}
	target, ok := h.conns[cmd.Signal.To]
	if !ok || !target.authenticated {
		return
	}
	h.unicastLocked(target, RTCSignalMessage{
		Ver:     ProtocolVersion,
		Type:    MsgRTCSignal,
		From:    conn.id,
		Payload: cmd.Signal.Payload,
	})
}

func (h *Hub) publishTimeout(id string) {
	lifecycle.PlayerTimedOut(context.Background(), h.events, h.state.Version,
		logging.EntityRef{ID: id, Kind: logging.EntityKindPlayer})
}
