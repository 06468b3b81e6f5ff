// Package client mirrors room state from the server's versioned message
// stream. It implements the delta-contiguity contract: snapshots are adopted
// unconditionally, a delta applies only against the immediately preceding
// version, and any gap triggers exactly one resync request.
package client

import (
	"encoding/json"
	"fmt"
	"sync"

	"wildshape/server"
)

// ResyncRequester is invoked when the reconciler detects a version gap. It
// receives the last version applied locally.
type ResyncRequester func(lastVersion uint64)

// Reconciler holds the client-side replica of one room.
type Reconciler struct {
	mu sync.Mutex

	version       uint64
	resyncPending bool
	requestResync ResyncRequester

	roomID     string
	playerID   string
	isDM       bool
	players    map[string]server.Player
	tokens     map[string]server.Token
	characters map[string]server.Character
	props      map[string]server.Prop
	drawings   []server.Drawing
	scene      []server.SceneObject
	selections map[string]*server.SelectionEntry
	pointers   map[string]server.Pointer
	dice       []server.DiceRoll
	grid       server.GridConfig
	staging    server.StagingZone
	background server.MapBackground
	combat     server.CombatState

	// assets caches content-addressed payloads across snapshots; ref-only
	// snapshots resolve against it.
	assets        map[string]string
	missingAssets []string

	lastAckedSeq uint64
	lastRTT      int64
	nackCount    int
}

// NewReconciler creates an empty replica. requestResync may be nil when the
// caller polls NeedsResync instead.
func NewReconciler(requestResync ResyncRequester) *Reconciler {
	return &Reconciler{
		requestResync: requestResync,
		players:       make(map[string]server.Player),
		tokens:        make(map[string]server.Token),
		characters:    make(map[string]server.Character),
		props:         make(map[string]server.Prop),
		selections:    make(map[string]*server.SelectionEntry),
		pointers:      make(map[string]server.Pointer),
		assets:        make(map[string]string),
	}
}

type envelope struct {
	Type    string `json:"t"`
	Version uint64 `json:"version"`
}

// Apply feeds one server frame into the replica.
func (r *Reconciler) Apply(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch env.Type {
	case server.MsgSnapshot:
		var msg server.SnapshotMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		r.applySnapshotLocked(msg)
		return nil

	case server.MsgTokenUpdated:
		var msg server.TokenUpdatedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode token delta: %w", err)
		}
		if !r.admitDeltaLocked(msg.Version) {
			return nil
		}
		r.applyTokenDeltaLocked(msg)
		return nil

	case server.MsgSelectionUpdated:
		var msg server.SelectionUpdatedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode selection delta: %w", err)
		}
		if !r.admitDeltaLocked(msg.Version) {
			return nil
		}
		if msg.Selection == nil {
			delete(r.selections, msg.UserID)
		} else {
			r.selections[msg.UserID] = msg.Selection
		}
		return nil

	case server.MsgSceneUpdated:
		var msg server.SceneUpdatedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode scene delta: %w", err)
		}
		if !r.admitDeltaLocked(msg.Version) {
			return nil
		}
		for _, updated := range msg.Objects {
			for i := range r.scene {
				if r.scene[i].ID == updated.ID {
					r.scene[i] = updated
					break
				}
			}
		}
		return nil

	case server.MsgPointerMoved:
		var msg server.PointerMovedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode pointer: %w", err)
		}
		r.pointers[msg.Pointer.Owner] = msg.Pointer
		return nil

	case server.MsgAuthOK:
		var msg server.AuthResultMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode auth result: %w", err)
		}
		r.playerID = msg.PlayerID
		r.roomID = msg.RoomID
		r.isDM = msg.IsDM
		return nil

	case server.MsgDMStatus:
		var msg server.DMStatusMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode dm status: %w", err)
		}
		r.isDM = msg.IsDM
		return nil

	case server.MsgHeartbeatAck:
		var msg server.HeartbeatAckMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode heartbeat ack: %w", err)
		}
		r.lastRTT = msg.RTTMillis
		return nil

	case server.MsgCommandAck:
		var msg server.CommandAckMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode command ack: %w", err)
		}
		if msg.Seq > r.lastAckedSeq {
			r.lastAckedSeq = msg.Seq
		}
		return nil

	case server.MsgResyncNack:
		r.nackCount++
		return nil

	default:
		// Unknown frame kinds are ignored so older clients survive protocol
		// additions.
		return nil
	}
}

// admitDeltaLocked enforces the contiguity rule. Stale frames are dropped
// silently; a gap fires one resync request and suppresses further requests
// until the server answers.
func (r *Reconciler) admitDeltaLocked(version uint64) bool {
	if version <= r.version {
		return false
	}
	if version == r.version+1 {
		r.version = version
		r.resyncPending = false
		return true
	}
	if !r.resyncPending {
		r.resyncPending = true
		if r.requestResync != nil {
			r.requestResync(r.version)
		}
	}
	return false
}

func (r *Reconciler) applySnapshotLocked(msg server.SnapshotMessage) {
	r.version = msg.Version
	r.resyncPending = false
	r.roomID = msg.RoomID

	r.players = make(map[string]server.Player, len(msg.Players))
	for _, p := range msg.Players {
		r.players[p.ID] = p
	}
	r.tokens = make(map[string]server.Token, len(msg.Tokens))
	for _, t := range msg.Tokens {
		r.tokens[t.ID] = t
	}
	r.characters = make(map[string]server.Character, len(msg.Characters))
	for _, c := range msg.Characters {
		r.characters[c.ID] = c
	}
	r.props = make(map[string]server.Prop, len(msg.Props))
	for _, p := range msg.Props {
		r.props[p.ID] = p
	}
	r.drawings = append(r.drawings[:0], msg.Drawings...)
	r.scene = append(r.scene[:0], msg.Scene...)
	r.selections = make(map[string]*server.SelectionEntry, len(msg.Selections))
	for userID, entry := range msg.Selections {
		r.selections[userID] = entry
	}
	r.pointers = make(map[string]server.Pointer, len(msg.Pointers))
	for _, p := range msg.Pointers {
		r.pointers[p.Owner] = p
	}
	r.dice = append(r.dice[:0], msg.DiceHistory...)
	r.grid = msg.Grid
	r.staging = msg.Staging
	r.background = msg.Background
	r.combat = msg.Combat

	for id, payload := range msg.Assets {
		r.assets[id] = payload
	}
	r.missingAssets = r.missingAssets[:0]
	for _, id := range msg.AssetIDs {
		if _, ok := r.assets[id]; !ok {
			r.missingAssets = append(r.missingAssets, id)
		}
	}
}

func (r *Reconciler) applyTokenDeltaLocked(msg server.TokenUpdatedMessage) {
	sceneID := server.SceneID(server.SceneToken, msg.Token.ID)
	if msg.Removed {
		delete(r.tokens, msg.Token.ID)
		for i := range r.scene {
			if r.scene[i].ID == sceneID {
				r.scene = append(r.scene[:i], r.scene[i+1:]...)
				break
			}
		}
		return
	}

	r.tokens[msg.Token.ID] = msg.Token
	for i := range r.scene {
		if r.scene[i].ID == sceneID {
			r.scene[i].Transform.X = msg.Token.X
			r.scene[i].Transform.Y = msg.Token.Y
			r.scene[i].Owner = msg.Token.Owner
			r.scene[i].Data = server.TokenSceneData{
				ColorIndex:  msg.Token.ColorIndex,
				Color:       msg.Token.Color,
				AssetID:     msg.Token.AssetID,
				CharacterID: msg.Token.CharacterID,
				Size:        msg.Token.Size,
			}
			return
		}
	}
}

// Version reports the last applied state version.
func (r *Reconciler) Version() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// NeedsResync reports whether a gap is outstanding.
func (r *Reconciler) NeedsResync() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resyncPending
}

// PlayerID reports the identity assigned during authentication.
func (r *Reconciler) PlayerID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playerID
}

// IsDM reports the current elevation state.
func (r *Reconciler) IsDM() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isDM
}

// Token returns a token by id.
func (r *Reconciler) Token(id string) (server.Token, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[id]
	return token, ok
}

// TokenCount reports the replica's token population.
func (r *Reconciler) TokenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

// Scene returns a copy of the current scene graph.
func (r *Reconciler) Scene() []server.SceneObject {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]server.SceneObject(nil), r.scene...)
}

// Selection returns a user's selection, or nil.
func (r *Reconciler) Selection(userID string) *server.SelectionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selections[userID]
}

// Pointer returns a user's last pointer position.
func (r *Reconciler) Pointer(owner string) (server.Pointer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pointer, ok := r.pointers[owner]
	return pointer, ok
}

// Asset resolves a cached content payload.
func (r *Reconciler) Asset(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payload, ok := r.assets[id]
	return payload, ok
}

// MissingAssets lists ids referenced by the last snapshot with no cached
// payload.
func (r *Reconciler) MissingAssets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.missingAssets...)
}

// LastAckedSeq reports the highest acknowledged command sequence.
func (r *Reconciler) LastAckedSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastAckedSeq
}

// LastRTT reports the round trip from the latest heartbeat ack, in
// milliseconds.
func (r *Reconciler) LastRTT() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRTT
}

// NackCount reports how many resync requests the server refused because the
// version had left its journal window.
func (r *Reconciler) NackCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nackCount
}
