package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"wildshape/server/internal/journal"
	"wildshape/server/internal/telemetry"
	"wildshape/server/logging"
	"wildshape/server/logging/lifecycle"
)

// Metric keys reported through the telemetry adapter.
const (
	metricCommandsTotal     = "hub_commands_total"
	metricCommandsRejected  = "hub_commands_rejected_total"
	metricCommandsFailed    = "hub_commands_failed_total"
	metricBroadcastBytes    = "hub_broadcast_bytes_total"
	metricConnectedClients  = "hub_connected_clients"
	metricAuthorizedClients = "hub_authorized_clients"
	metricHeartbeatTimeouts = "hub_heartbeat_timeouts_total"
	metricSlowConsumerDrops = "hub_slow_consumer_drops_total"
)

// Transport is the outbound side of one client connection. Enqueue must not
// block; it reports false when the session's send queue is full.
type Transport interface {
	Enqueue(data []byte) bool
	Close()
}

// connState tracks one connection's lifecycle: Connected → Authenticating →
// Authenticated → Disconnected. Unauthenticated connections never receive
// broadcasts.
type connState struct {
	id             string
	transport      Transport
	authenticated  bool
	connectedAt    time.Time
	lastHeartbeat  time.Time
	lastRTT        time.Duration
	lastCommandSeq uint64
	seenAssets     map[string]struct{}
}

// Hub owns the canonical room state and every live connection. All mutation
// is funneled through Dispatch under a single mutex; network readers never
// touch RoomState directly.
type Hub struct {
	mu    sync.Mutex
	cfg   HubConfig
	state *RoomState
	scene []SceneObject
	conns map[string]*connState

	// assetsBroadcast tracks which asset payloads have already gone out in a
	// broadcast snapshot, so later snapshots only carry the ids.
	assetsBroadcast map[string]struct{}

	journal *journal.Journal
	saver   *Saver
	logger  telemetry.Logger
	metrics telemetry.Metrics
	events  logging.Publisher
	clock   func() time.Time

	roomSecretHash []byte
	dmSecretHash   []byte
}

// NewHub constructs a hub with default tuning.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig constructs a hub for one room. Secrets are hashed once at
// construction; an empty room secret leaves the room open, an empty DM
// secret disables elevation.
func NewHubWithConfig(cfg HubConfig) *Hub {
	cfg.applyDefaults()
	h := &Hub{
		cfg:             cfg,
		state:           NewRoomState(cfg.RoomID),
		conns:           make(map[string]*connState),
		assetsBroadcast: make(map[string]struct{}),
		journal:         journal.New(cfg.JournalCapacity, cfg.JournalMaxAge),
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		events:          cfg.Events,
		clock:           cfg.Clock,
	}
	if h.logger == nil {
		h.logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	if cfg.RoomSecret != "" {
		if hash, err := bcrypt.GenerateFromPassword([]byte(cfg.RoomSecret), bcrypt.DefaultCost); err == nil {
			h.roomSecretHash = hash
		} else {
			h.logger.Printf("failed to hash room secret: %v", err)
		}
	}
	if cfg.DMSecret != "" {
		if hash, err := bcrypt.GenerateFromPassword([]byte(cfg.DMSecret), bcrypt.DefaultCost); err == nil {
			h.dmSecretHash = hash
		} else {
			h.logger.Printf("failed to hash DM secret: %v", err)
		}
	}
	if cfg.SaveFile != "" {
		h.saver = NewSaver(cfg.SaveFile, h.logger, h.metrics)
		if state, scene, err := LoadRoomState(cfg.SaveFile); err == nil && state != nil {
			state.RoomID = cfg.RoomID
			h.state = state
			h.scene = scene
		} else if err != nil {
			h.logger.Printf("no persisted session loaded: %v", err)
		}
	}
	return h
}

// Close stops background work owned by the hub.
func (h *Hub) Close() {
	if h.saver != nil {
		h.saver.Close()
	}
}

// Connect registers the transport for senderID, replacing any stale handle
// left by a previous connection with the same id. Returns the sender id,
// minting one when the caller supplied none.
func (h *Hub) Connect(senderID string, transport Transport) string {
	if senderID == "" {
		senderID = newEntityID()
	}
	now := h.clock()

	h.mu.Lock()
	if existing, ok := h.conns[senderID]; ok && existing.transport != nil {
		existing.transport.Close()
	}
	h.conns[senderID] = &connState{
		id:            senderID,
		transport:     transport,
		connectedAt:   now,
		lastHeartbeat: now,
		seenAssets:    make(map[string]struct{}),
	}
	h.metrics.Store(metricConnectedClients, uint64(len(h.conns)))
	h.mu.Unlock()

	return senderID
}

// Disconnect removes the connection and its player state, then broadcasts
// the reduced room. A heartbeat timeout runs the identical path, so clients
// cannot distinguish a timeout from a clean close.
func (h *Hub) Disconnect(senderID, reason string) {
	h.mu.Lock()
	changed := h.disconnectLocked(senderID, reason)
	if changed {
		lifecycle.PlayerDisconnected(context.Background(), h.events, h.state.Version,
			logging.EntityRef{ID: senderID, Kind: logging.EntityKindPlayer},
			lifecycle.DisconnectedPayload{Reason: reason})
		h.bumpAndBroadcastSnapshotLocked(true)
	}
	h.mu.Unlock()
}

// disconnectLocked performs the disconnect cascade: close the transport,
// deauthorize, and remove the player's entities and selection. Reports
// whether room state changed.
func (h *Hub) disconnectLocked(senderID, reason string) bool {
	conn, ok := h.conns[senderID]
	if ok {
		delete(h.conns, senderID)
		if conn.transport != nil {
			conn.transport.Close()
		}
	}
	h.metrics.Store(metricConnectedClients, uint64(len(h.conns)))
	h.metrics.Store(metricAuthorizedClients, uint64(h.authorizedCountLocked()))

	changed := h.state.removePlayer(senderID)
	if changed {
		h.logger.Printf("disconnected %s (%s)", senderID, reason)
	}
	return changed
}

func (h *Hub) authorizedCountLocked() int {
	count := 0
	for _, conn := range h.conns {
		if conn.authenticated {
			count++
		}
	}
	return count
}

// bumpAndBroadcastSnapshotLocked increments the state version, rebuilds the
// scene graph, journals a keyframe, and broadcasts a full snapshot.
func (h *Hub) bumpAndBroadcastSnapshotLocked(persist bool) {
	h.state.Version++
	h.scene = RebuildScene(h.scene, h.state, h.logger)
	h.broadcastSnapshotLocked()
	if persist {
		h.enqueueSaveLocked()
	}
}

// broadcastSnapshotLocked sends the current state to every authorized
// connection. Asset payloads not yet broadcast ride along once; afterwards
// snapshots reference them by id only.
func (h *Hub) broadcastSnapshotLocked() {
	msg := h.snapshotLocked(nil)
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Printf("failed to marshal snapshot: %v", err)
		return
	}
	for id := range msg.Assets {
		h.assetsBroadcast[id] = struct{}{}
	}
	for _, conn := range h.conns {
		if !conn.authenticated {
			continue
		}
		for id := range msg.Assets {
			conn.seenAssets[id] = struct{}{}
		}
	}
	h.journal.RecordKeyframe(h.state.Version, data, h.clock())
	h.broadcastLocked(data)
}

// broadcastDeltaLocked journals and fans out an already-marshaled delta.
func (h *Hub) broadcastDeltaLocked(data []byte) {
	h.journal.RecordDelta(h.state.Version, data, h.clock())
	h.broadcastLocked(data)
}

// broadcastLocked enqueues data on every authorized connection, in the order
// versions were produced (the hub mutex serializes callers). A full send
// queue marks the consumer for disconnection rather than blocking dispatch.
func (h *Hub) broadcastLocked(data []byte) {
	var slow []string
	for id, conn := range h.conns {
		if !conn.authenticated || conn.transport == nil {
			continue
		}
		if !conn.transport.Enqueue(data) {
			slow = append(slow, id)
		}
	}
	h.metrics.Add(metricBroadcastBytes, uint64(len(data)))
	for _, id := range slow {
		h.metrics.Add(metricSlowConsumerDrops, 1)
		h.logger.Printf("dropping slow consumer %s", id)
		h.disconnectLocked(id, "send queue full")
	}
}

// unicastLocked marshals and enqueues a message for a single connection.
// Send failures are logged and otherwise ignored; the room keeps serving.
func (h *Hub) unicastLocked(conn *connState, msg any) {
	if conn == nil || conn.transport == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Printf("failed to marshal %T for %s: %v", msg, conn.id, err)
		return
	}
	if !conn.transport.Enqueue(data) {
		h.logger.Printf("send queue full for %s", conn.id)
	}
}

// snapshotLocked builds a full snapshot message. When conn is non-nil the
// asset payload set is tailored to what that connection has not seen yet;
// nil builds the broadcast variant carrying only never-broadcast payloads.
func (h *Hub) snapshotLocked(conn *connState) SnapshotMessage {
	s := h.state
	msg := SnapshotMessage{
		Ver:         ProtocolVersion,
		Type:        MsgSnapshot,
		Version:     s.Version,
		RoomID:      s.RoomID,
		Players:     make([]Player, 0, len(s.Players)),
		Tokens:      make([]Token, 0, len(s.Tokens)),
		Characters:  make([]Character, 0, len(s.Characters)),
		Props:       make([]Prop, 0, len(s.Props)),
		Drawings:    make([]Drawing, 0, len(s.Drawings)),
		Scene:       append([]SceneObject(nil), h.scene...),
		Selections:  make(map[string]*SelectionEntry, len(s.Selections)),
		Pointers:    make([]Pointer, 0, len(s.Pointers)),
		DiceHistory: append([]DiceRoll(nil), s.DiceHistory...),
		Grid:        s.Grid,
		Staging:     s.Staging,
		Background:  s.Background,
		Combat:      s.Combat,
		ServerTime:  h.clock().UnixMilli(),
	}
	msg.Combat.Order = append([]string(nil), s.Combat.Order...)
	for _, id := range sortedKeys(s.Players) {
		msg.Players = append(msg.Players, *s.Players[id])
	}
	for _, id := range sortedKeys(s.Tokens) {
		msg.Tokens = append(msg.Tokens, *s.Tokens[id])
	}
	for _, id := range sortedKeys(s.Characters) {
		msg.Characters = append(msg.Characters, *s.Characters[id])
	}
	for _, id := range sortedKeys(s.Props) {
		msg.Props = append(msg.Props, *s.Props[id])
	}
	for _, drawing := range s.Drawings {
		msg.Drawings = append(msg.Drawings, *drawing)
	}
	for userID, entry := range s.Selections {
		msg.Selections[userID] = entry.clone()
	}
	for _, id := range sortedKeys(s.Pointers) {
		msg.Pointers = append(msg.Pointers, *s.Pointers[id])
	}

	msg.AssetIDs = sortedKeys(s.Assets)
	payloads := make(map[string]string)
	for id, data := range s.Assets {
		if conn != nil {
			if _, seen := conn.seenAssets[id]; !seen {
				payloads[id] = data
			}
		} else if _, sent := h.assetsBroadcast[id]; !sent {
			payloads[id] = data
		}
	}
	if len(payloads) > 0 {
		msg.Assets = payloads
	}
	return msg
}

// sendSnapshotLocked unicasts a tailored full snapshot to one connection.
func (h *Hub) sendSnapshotLocked(conn *connState) {
	msg := h.snapshotLocked(conn)
	for id := range msg.Assets {
		conn.seenAssets[id] = struct{}{}
	}
	h.unicastLocked(conn, msg)
}

// SweepStale removes every connection whose last heartbeat is older than the
// timeout, running the full disconnect cascade for each. Returns how many
// were reclaimed.
func (h *Hub) SweepStale(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	var stale []string
	for id, conn := range h.conns {
		if now.Sub(conn.lastHeartbeat) > h.cfg.HeartbeatTimeout {
			stale = append(stale, id)
		}
	}
	changed := false
	for _, id := range stale {
		h.metrics.Add(metricHeartbeatTimeouts, 1)
		h.logger.Printf("heartbeat timeout for %s", id)
		h.publishTimeout(id)
		if h.disconnectLocked(id, "heartbeat timeout") {
			changed = true
		}
	}
	if changed {
		h.bumpAndBroadcastSnapshotLocked(true)
	}
	return len(stale)
}

// RunHeartbeatSweep drives the periodic sweep until stop closes.
func (h *Hub) RunHeartbeatSweep(stop <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			h.SweepStale(now)
		}
	}
}

// enqueueSaveLocked serializes the durable fields and hands them to the
// persistence queue. The caller keeps the hub lock; marshaling under it
// guarantees the saved bytes are a consistent snapshot.
func (h *Hub) enqueueSaveLocked() {
	if h.saver == nil {
		return
	}
	data, err := marshalPersistedState(h.state, h.scene)
	if err != nil {
		h.logger.Printf("failed to serialize room for persistence: %v", err)
		return
	}
	h.saver.Enqueue(data)
}

// StateVersion reports the current room version.
func (h *Hub) StateVersion() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Version
}

// DiagnosticsPlayer is one row of the /diagnostics response.
type DiagnosticsPlayer struct {
	ID            string `json:"id"`
	Authenticated bool   `json:"authenticated"`
	LastHeartbeat int64  `json:"lastHeartbeat"`
	RTTMillis     int64  `json:"rttMillis"`
}

// DiagnosticsSnapshot exposes connection health for the diagnostics endpoint.
func (h *Hub) DiagnosticsSnapshot() []DiagnosticsPlayer {
	h.mu.Lock()
	defer h.mu.Unlock()

	players := make([]DiagnosticsPlayer, 0, len(h.conns))
	for _, conn := range h.conns {
		players = append(players, DiagnosticsPlayer{
			ID:            conn.id,
			Authenticated: conn.authenticated,
			LastHeartbeat: conn.lastHeartbeat.UnixMilli(),
			RTTMillis:     conn.lastRTT.Milliseconds(),
		})
	}
	return players
}
