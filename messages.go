package server

import "encoding/json"

// ProtocolVersion tracks the wire-protocol revision expected by clients.
const ProtocolVersion = 1

// Outbound message type identifiers.
const (
	MsgSnapshot                 = "snapshot"
	MsgTokenUpdated             = "token-updated"
	MsgSelectionUpdated         = "selection-updated"
	MsgSceneUpdated             = "scene-updated"
	MsgPointerMoved             = "pointer-moved"
	MsgAuthOK                   = "auth-ok"
	MsgAuthFailed               = "auth-failed"
	MsgDMStatus                 = "dm-status"
	MsgDMElevationFailed        = "dm-elevation-failed"
	MsgRoomPasswordUpdated      = "room-password-updated"
	MsgRoomPasswordUpdateFailed = "room-password-update-failed"
	MsgHeartbeatAck             = "heartbeat-ack"
	MsgCommandAck               = "command-ack"
	MsgResyncNack               = "resync-nack"
	MsgRTCSignal                = "rtc-signal"
)

// SnapshotMessage is a full, self-contained serialization of room state plus
// the version that produced it. Asset payloads are omitted for clients that
// already hold the referenced ids; the reconciler fills them from its cache.
type SnapshotMessage struct {
	Ver         int                        `json:"ver"`
	Type        string                     `json:"t"`
	Version     uint64                     `json:"version"`
	RoomID      string                     `json:"roomId"`
	Players     []Player                   `json:"players"`
	Tokens      []Token                    `json:"tokens"`
	Characters  []Character                `json:"characters"`
	Props       []Prop                     `json:"props"`
	Drawings    []Drawing                  `json:"drawings"`
	Scene       []SceneObject              `json:"scene"`
	Selections  map[string]*SelectionEntry `json:"selections,omitempty"`
	Pointers    []Pointer                  `json:"pointers,omitempty"`
	DiceHistory []DiceRoll                 `json:"diceHistory"`
	Grid        GridConfig                 `json:"grid"`
	Staging     StagingZone                `json:"stagingZone"`
	Background  MapBackground              `json:"mapBackground"`
	Combat      CombatState                `json:"combat"`
	AssetIDs    []string                   `json:"assetIds,omitempty"`
	Assets      map[string]string          `json:"assets,omitempty"`
	ServerTime  int64                      `json:"serverTime"`
}

// TokenUpdatedMessage is the narrow delta for token mutations. Valid only
// against client state at Version-1.
type TokenUpdatedMessage struct {
	Ver     int    `json:"ver"`
	Type    string `json:"t"`
	Version uint64 `json:"version"`
	Token   Token  `json:"token"`
	Removed bool   `json:"removed,omitempty"`
}

// SelectionUpdatedMessage is the narrow delta for one user's selection.
// A nil Selection means the user deselected.
type SelectionUpdatedMessage struct {
	Ver       int             `json:"ver"`
	Type      string          `json:"t"`
	Version   uint64          `json:"version"`
	UserID    string          `json:"userId"`
	Selection *SelectionEntry `json:"selection,omitempty"`
}

// SceneUpdatedMessage is the narrow delta for presentation-field changes
// (lock flags) on existing scene objects.
type SceneUpdatedMessage struct {
	Ver     int           `json:"ver"`
	Type    string        `json:"t"`
	Version uint64        `json:"version"`
	Objects []SceneObject `json:"objects"`
}

// PointerMovedMessage is an ephemeral preview; it carries no version and is
// applied unconditionally by reconcilers.
type PointerMovedMessage struct {
	Ver     int     `json:"ver"`
	Type    string  `json:"t"`
	Pointer Pointer `json:"pointer"`
}

// AuthResultMessage acknowledges or rejects an authentication attempt.
type AuthResultMessage struct {
	Ver      int    `json:"ver"`
	Type     string `json:"t"`
	PlayerID string `json:"playerId,omitempty"`
	RoomID   string `json:"roomId,omitempty"`
	IsDM     bool   `json:"isDM,omitempty"`
}

// DMStatusMessage reports the sender's current elevation state.
type DMStatusMessage struct {
	Ver  int    `json:"ver"`
	Type string `json:"t"`
	IsDM bool   `json:"isDM"`
}

// PasswordResultMessage reports the outcome of a password update. Scope is
// "room" or "dm".
type PasswordResultMessage struct {
	Ver   int    `json:"ver"`
	Type  string `json:"t"`
	Scope string `json:"scope"`
}

// HeartbeatAckMessage echoes the client timestamp and reports measured RTT.
type HeartbeatAckMessage struct {
	Ver        int    `json:"ver"`
	Type       string `json:"t"`
	ServerTime int64  `json:"serverTime"`
	ClientTime int64  `json:"clientTime"`
	RTTMillis  int64  `json:"rtt"`
}

// CommandAckMessage confirms a seq-tagged command was applied (or had been
// applied already, for duplicate retries).
type CommandAckMessage struct {
	Ver  int    `json:"ver"`
	Type string `json:"t"`
	Seq  uint64 `json:"seq"`
}

// ResyncNackMessage tells a client the requested version left the journal
// window; a fresh snapshot follows immediately.
type ResyncNackMessage struct {
	Ver       int    `json:"ver"`
	Type      string `json:"t"`
	Requested uint64 `json:"requested"`
}

// RTCSignalMessage relays an opaque signaling blob between peers.
type RTCSignalMessage struct {
	Ver     int             `json:"ver"`
	Type    string          `json:"t"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}
