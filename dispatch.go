package server

import (
	"context"
	"encoding/json"
	"fmt"

	"wildshape/server/logging"
	logcommands "wildshape/server/logging/commands"
)

// routeResult describes what a command handler changed and how the change
// must reach clients. Handlers fill the narrowest delta that captures the
// mutation; anything else falls back to a full snapshot broadcast.
type routeResult struct {
	changed bool
	persist bool

	// tokenDelta broadcasts a token-updated message instead of a snapshot.
	tokenDelta   *Token
	tokenRemoved bool

	// selectionUser broadcasts a selection-updated message for one user.
	selectionUser string

	// sceneDelta broadcasts a scene-updated message for presentation-field
	// changes that leave the domain entities untouched.
	sceneDelta []string

	// pointer broadcasts an ephemeral pointer-moved message. No version
	// bump, no persistence.
	pointer *Pointer
}

func durable() routeResult {
	return routeResult{changed: true, persist: true}
}

// Dispatch runs one command through the gate sequence: connection check,
// authentication check, duplicate suppression, authorization, execution,
// then delta or snapshot fan-out. It is the only entry point that mutates
// room state.
func (h *Hub) Dispatch(senderID string, cmd Command) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[senderID]
	if !ok {
		return
	}
	h.metrics.Add(metricCommandsTotal, 1)

	if cmd.Type == CommandAuthenticate {
		h.handleAuthenticateLocked(conn, cmd)
		return
	}
	if !conn.authenticated {
		h.metrics.Add(metricCommandsRejected, 1)
		h.logger.Printf("rejected %s from unauthenticated %s", cmd.Type, senderID)
		return
	}

	// A retry of an already-applied command is acknowledged again but never
	// re-executed.
	if cmd.Seq != 0 && cmd.Seq <= conn.lastCommandSeq {
		h.unicastLocked(conn, CommandAckMessage{Ver: ProtocolVersion, Type: MsgCommandAck, Seq: cmd.Seq})
		return
	}

	player := h.state.Players[senderID]
	isDM := player != nil && player.IsDM
	if !authorize(h.state, cmd, senderID, isDM) {
		h.metrics.Add(metricCommandsRejected, 1)
		logcommands.Denied(context.Background(), h.events, h.state.Version,
			logging.EntityRef{ID: senderID, Kind: logging.EntityKindPlayer},
			logcommands.DeniedPayload{Action: string(cmd.Type)})
		return
	}

	res := h.executeLocked(conn, cmd, isDM)

	if cmd.Seq != 0 {
		conn.lastCommandSeq = cmd.Seq
		h.unicastLocked(conn, CommandAckMessage{Ver: ProtocolVersion, Type: MsgCommandAck, Seq: cmd.Seq})
	}

	h.applyResultLocked(res)
}

// executeLocked switches over the closed command union. A handler panic is
// degraded to a no-op: the fault is logged with the command kind, sender,
// and payload, and the room keeps serving with state untouched by the
// failed handler.
func (h *Hub) executeLocked(conn *connState, cmd Command, isDM bool) (res routeResult) {
	defer func() {
		if r := recover(); r != nil {
			res = routeResult{}
			h.metrics.Add(metricCommandsFailed, 1)
			h.logger.Printf("command %s from %s panicked: %v", cmd.Type, conn.id, r)
			logcommands.Failed(context.Background(), h.events, h.state.Version,
				logging.EntityRef{ID: conn.id, Kind: logging.EntityKindPlayer},
				logcommands.FailedPayload{
					Action:  string(cmd.Type),
					Fault:   fmt.Sprint(r),
					Command: cmd,
				})
		}
	}()

	s := h.state
	switch cmd.Type {
	case CommandHeartbeat:
		h.handleHeartbeatLocked(conn, cmd)
		return routeResult{}

	case CommandResync:
		h.handleResyncLocked(conn, cmd)
		return routeResult{}

	case CommandLoadSession:
		return h.handleLoadSessionLocked(conn)

	case CommandSetRoomPassword:
		h.handleSetPasswordLocked(conn, cmd, "room")
		return routeResult{}

	case CommandSetDMPassword:
		h.handleSetPasswordLocked(conn, cmd, "dm")
		return routeResult{}

	case CommandElevateToDM:
		return h.handleElevateLocked(conn, cmd)

	case CommandRevokeDM:
		return h.handleRevokeLocked(conn)

	case CommandMove:
		if token, changed := s.moveToken(cmd.Move.TokenID, cmd.Move.X, cmd.Move.Y); changed {
			return routeResult{changed: true, persist: true, tokenDelta: token}
		}

	case CommandRecolor:
		if token, changed := s.recolorToken(cmd.Token.TokenID, cmd.Token.ColorIndex); changed {
			return routeResult{changed: true, persist: true, tokenDelta: token}
		}

	case CommandSetTokenColor:
		if token, changed := s.setTokenColor(cmd.Token.TokenID, cmd.Token.Color); changed {
			return routeResult{changed: true, persist: true, tokenDelta: token}
		}

	case CommandSetTokenSize:
		if token, changed := s.setTokenSize(cmd.Token.TokenID, cmd.Token.Size); changed {
			return routeResult{changed: true, persist: true, tokenDelta: token}
		}

	case CommandUpdateTokenImage:
		// Asset payloads ride full snapshots so every client's cache fills.
		if _, changed := s.setTokenImage(cmd.Token.TokenID, cmd.Token.ImageData); changed {
			return durable()
		}

	case CommandLinkToken:
		if token, changed := s.linkToken(cmd.Token.TokenID, cmd.Token.CharacterID); changed {
			return routeResult{changed: true, persist: true, tokenDelta: token}
		}

	case CommandDeleteToken:
		if token, purged, changed := s.deleteToken(cmd.Token.TokenID); changed {
			// A removal delta alone would leave watchers with a dangling
			// selection entry; the full snapshot carries the purge.
			if len(purged) > 0 {
				return durable()
			}
			return routeResult{changed: true, persist: true, tokenDelta: token, tokenRemoved: true}
		}

	case CommandClearTokens:
		if s.clearTokens() {
			return durable()
		}

	case CommandCreateCharacter:
		if cmd.Character.Name != "" {
			owner := cmd.Character.Owner
			if owner == "" {
				owner = conn.id
			}
			s.createCharacter(owner, cmd.Character.Name, cmd.Character.HPOr(0), cmd.Character.MaxHP, false)
			return durable()
		}

	case CommandRenameCharacter:
		if s.renameCharacter(cmd.Character.CharacterID, cmd.Character.Name) {
			return durable()
		}

	case CommandCreateNPC:
		if cmd.Character.Name != "" {
			s.createCharacter(conn.id, cmd.Character.Name, cmd.Character.HPOr(0), cmd.Character.MaxHP, true)
			return durable()
		}

	case CommandUpdateNPC:
		if s.updateCharacter(cmd.Character.CharacterID, cmd.Character.Name, cmd.Character.HP, cmd.Character.MaxHP) {
			return durable()
		}

	case CommandDeleteNPC:
		if s.deleteCharacter(cmd.Character.CharacterID) {
			return durable()
		}

	case CommandPlaceNPCToken:
		if _, changed := s.placeNPCToken(conn.id, cmd.Character.CharacterID, cmd.Character.X, cmd.Character.Y); changed {
			return durable()
		}

	case CommandCreateProp:
		s.createProp(conn.id, cmd.Prop.Label, cmd.Prop.X, cmd.Prop.Y, cmd.Prop.Scale, cmd.Prop.ImageData)
		return durable()

	case CommandUpdateProp:
		if s.updateProp(cmd.Prop.PropID, cmd.Prop.Label, cmd.Prop.X, cmd.Prop.Y, cmd.Prop.Scale, cmd.Prop.ImageData) {
			return durable()
		}

	case CommandDeleteProp:
		if s.deleteProp(cmd.Prop.PropID) {
			return durable()
		}

	case CommandSetStagingZone:
		if s.setStagingZone(StagingZone{
			X: cmd.Staging.X, Y: cmd.Staging.Y,
			Width: cmd.Staging.Width, Height: cmd.Staging.Height,
			Active: cmd.Staging.Active,
		}) {
			return durable()
		}

	case CommandSetMapBackground:
		if s.setMapBackground(cmd.Map.ImageData, cmd.Map.Width, cmd.Map.Height) {
			return durable()
		}

	case CommandSelectObject:
		if s.selectObject(conn.id, cmd.Selection.ObjectID) {
			return routeResult{changed: true, selectionUser: conn.id}
		}

	case CommandDeselectObject:
		if s.deselect(conn.id) {
			return routeResult{changed: true, selectionUser: conn.id}
		}

	case CommandSelectMultiple:
		if s.selectMultiple(conn.id, cmd.Selection.ObjectIDs, cmd.Selection.Mode) {
			return routeResult{changed: true, selectionUser: conn.id}
		}

	case CommandLockSelected, CommandUnlockSelected:
		entry := s.Selections[conn.id]
		if entry == nil {
			return routeResult{}
		}
		locked := cmd.Type == CommandLockSelected
		if setLockedOnSelection(h.scene, entry, conn.id, isDM, locked) {
			return routeResult{changed: true, persist: true, sceneDelta: entry.ids()}
		}

	case CommandDraw:
		if _, changed := s.addDrawing(conn.id, cmd.Drawing.Points, cmd.Drawing.Color, cmd.Drawing.Width); changed {
			return durable()
		}

	case CommandUndoDrawing:
		if s.undoDrawing(conn.id) {
			return durable()
		}

	case CommandRedoDrawing:
		if s.redoDrawing(conn.id) {
			return durable()
		}

	case CommandClearDrawings:
		if s.clearDrawings() {
			return durable()
		}

	case CommandMoveDrawing:
		if s.moveDrawing(cmd.Drawing.DrawingID, cmd.Drawing.X, cmd.Drawing.Y) {
			return durable()
		}

	case CommandDeleteDrawing:
		if s.deleteDrawing(cmd.Drawing.DrawingID) {
			return durable()
		}

	case CommandErasePartial:
		if s.erasePartial(cmd.Drawing.DrawingID, cmd.Drawing.X, cmd.Drawing.Y, cmd.Drawing.Radius) {
			return durable()
		}

	case CommandSetInitiative:
		if s.setInitiative(cmd.Combat.CharacterID, cmd.Combat.Initiative) {
			return durable()
		}

	case CommandStartCombat:
		if s.startCombat() {
			return durable()
		}

	case CommandEndCombat:
		if s.endCombat() {
			return durable()
		}

	case CommandNextTurn:
		if s.nextTurn() {
			return durable()
		}

	case CommandPreviousTurn:
		if s.previousTurn() {
			return durable()
		}

	case CommandClearInitiative:
		if s.clearAllInitiative() {
			return durable()
		}

	case CommandRollDice:
		s.recordDiceRoll(conn.id, cmd.Dice.Formula, cmd.Dice.Values, cmd.Dice.Total, h.clock())
		return durable()

	case CommandMovePointer:
		pointer := &Pointer{Owner: conn.id, X: cmd.Pointer.X, Y: cmd.Pointer.Y, UpdatedAt: h.clock()}
		s.Pointers[conn.id] = pointer
		return routeResult{pointer: pointer}

	case CommandRTCSignal:
		h.handleSignalLocked(conn, cmd)
		return routeResult{}

	default:
		h.logger.Printf("unhandled command kind %q from %s", cmd.Type, conn.id)
	}
	return routeResult{}
}

// applyResultLocked turns a routeResult into wire traffic: version bump and
// scene rebuild for any change, then the narrowest broadcast that carries
// it. Every KeyframeInterval-th version forces a full snapshot so the
// journal always holds a recent keyframe.
func (h *Hub) applyResultLocked(res routeResult) {
	if res.pointer != nil {
		h.broadcastPointerLocked(*res.pointer)
	}
	if !res.changed {
		return
	}

	h.state.Version++
	h.scene = RebuildScene(h.scene, h.state, h.logger)

	forceKeyframe := h.cfg.KeyframeInterval > 0 && h.state.Version%uint64(h.cfg.KeyframeInterval) == 0

	switch {
	case forceKeyframe:
		h.broadcastSnapshotLocked()

	case res.tokenDelta != nil:
		msg := TokenUpdatedMessage{
			Ver:     ProtocolVersion,
			Type:    MsgTokenUpdated,
			Version: h.state.Version,
			Token:   *res.tokenDelta,
			Removed: res.tokenRemoved,
		}
		h.marshalAndBroadcastDeltaLocked(msg)

	case res.selectionUser != "":
		msg := SelectionUpdatedMessage{
			Ver:       ProtocolVersion,
			Type:      MsgSelectionUpdated,
			Version:   h.state.Version,
			UserID:    res.selectionUser,
			Selection: h.state.Selections[res.selectionUser].clone(),
		}
		h.marshalAndBroadcastDeltaLocked(msg)

	case len(res.sceneDelta) > 0:
		objects := make([]SceneObject, 0, len(res.sceneDelta))
		for _, id := range res.sceneDelta {
			if obj := findSceneObject(h.scene, id); obj != nil {
				objects = append(objects, *obj)
			}
		}
		msg := SceneUpdatedMessage{
			Ver:     ProtocolVersion,
			Type:    MsgSceneUpdated,
			Version: h.state.Version,
			Objects: objects,
		}
		h.marshalAndBroadcastDeltaLocked(msg)

	default:
		h.broadcastSnapshotLocked()
	}

	if res.persist {
		h.enqueueSaveLocked()
	}
}

func (h *Hub) marshalAndBroadcastDeltaLocked(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Printf("failed to marshal delta %T: %v", msg, err)
		h.broadcastSnapshotLocked()
		return
	}
	h.broadcastDeltaLocked(data)
}

func (h *Hub) broadcastPointerLocked(pointer Pointer) {
	msg := PointerMovedMessage{Ver: ProtocolVersion, Type: MsgPointerMoved, Pointer: pointer}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Printf("failed to marshal pointer update: %v", err)
		return
	}
	h.broadcastLocked(data)
}
