package server

import (
	"encoding/json"
	"time"
)

// CommandType enumerates every inbound command kind. Values match the wire
// `t` discriminator exactly.
type CommandType string

const (
	CommandAuthenticate    CommandType = "authenticate"
	CommandHeartbeat       CommandType = "heartbeat"
	CommandResync          CommandType = "request-room-resync"
	CommandLoadSession     CommandType = "load-session"
	CommandSetRoomPassword CommandType = "set-room-password"
	CommandElevateToDM     CommandType = "elevate-to-dm"
	CommandRevokeDM        CommandType = "revoke-dm"
	CommandSetDMPassword   CommandType = "set-dm-password"

	CommandMove             CommandType = "move"
	CommandRecolor          CommandType = "recolor"
	CommandDeleteToken      CommandType = "delete-token"
	CommandSetTokenSize     CommandType = "set-token-size"
	CommandSetTokenColor    CommandType = "set-token-color"
	CommandUpdateTokenImage CommandType = "update-token-image"
	CommandLinkToken        CommandType = "link-token"
	CommandClearTokens      CommandType = "clear-tokens"

	CommandCreateCharacter CommandType = "create-character"
	CommandRenameCharacter CommandType = "rename-character"
	CommandCreateNPC       CommandType = "create-npc"
	CommandUpdateNPC       CommandType = "update-npc"
	CommandDeleteNPC       CommandType = "delete-npc"
	CommandPlaceNPCToken   CommandType = "place-npc-token"

	CommandCreateProp CommandType = "create-prop"
	CommandUpdateProp CommandType = "update-prop"
	CommandDeleteProp CommandType = "delete-prop"

	CommandSetStagingZone   CommandType = "set-staging-zone"
	CommandSetMapBackground CommandType = "set-map-background"

	CommandSelectObject   CommandType = "select-object"
	CommandDeselectObject CommandType = "deselect-object"
	CommandSelectMultiple CommandType = "select-multiple"
	CommandLockSelected   CommandType = "lock-selected"
	CommandUnlockSelected CommandType = "unlock-selected"

	CommandDraw          CommandType = "draw"
	CommandUndoDrawing   CommandType = "undo-drawing"
	CommandRedoDrawing   CommandType = "redo-drawing"
	CommandClearDrawings CommandType = "clear-drawings"
	CommandMoveDrawing   CommandType = "move-drawing"
	CommandDeleteDrawing CommandType = "delete-drawing"
	CommandErasePartial  CommandType = "erase-partial"

	CommandSetInitiative   CommandType = "set-initiative"
	CommandStartCombat     CommandType = "start-combat"
	CommandEndCombat       CommandType = "end-combat"
	CommandNextTurn        CommandType = "next-turn"
	CommandPreviousTurn    CommandType = "previous-turn"
	CommandClearInitiative CommandType = "clear-all-initiative"

	CommandRollDice    CommandType = "roll-dice"
	CommandMovePointer CommandType = "move-pointer"
	CommandRTCSignal   CommandType = "rtc-signal"
)

// Command is the closed union decoded at the transport boundary. Exactly one
// payload pointer matching Type is non-nil; the dispatcher switches
// exhaustively over Type.
type Command struct {
	Type     CommandType
	ActorID  string
	Seq      uint64
	IssuedAt time.Time

	Auth      *AuthPayload
	Heartbeat *HeartbeatPayload
	Resync    *ResyncPayload
	Session   *SessionPayload
	Password  *PasswordPayload
	Move      *MovePayload
	Token     *TokenPayload
	Character *CharacterPayload
	Prop      *PropPayload
	Staging   *StagingPayload
	Map       *MapPayload
	Selection *SelectionPayload
	Drawing   *DrawingPayload
	Combat    *CombatPayload
	Dice      *DicePayload
	Pointer   *PointerPayload
	Signal    *SignalPayload
}

// AuthPayload carries the room handshake credentials.
type AuthPayload struct {
	RoomID string
	Secret string
	Name   string
}

// HeartbeatPayload carries the client send timestamp for RTT measurement.
type HeartbeatPayload struct {
	ClientSent int64
}

// ResyncPayload optionally names the version the client last applied; zero
// requests the latest snapshot.
type ResyncPayload struct {
	Version uint64
}

// SessionPayload carries a serialized session to load.
type SessionPayload struct {
	Data json.RawMessage
}

// PasswordPayload carries a new or candidate shared secret.
type PasswordPayload struct {
	Secret string
}

// MovePayload targets a token position change.
type MovePayload struct {
	TokenID string
	X, Y    float64
}

// TokenPayload carries the mutable token attributes for the edit commands.
type TokenPayload struct {
	TokenID     string
	ColorIndex  int
	Color       string
	Size        float64
	ImageData   string
	CharacterID string
}

// CharacterPayload carries character and NPC attributes. HP is a pointer
// because zero is a meaningful value on updates; absent means untouched.
type CharacterPayload struct {
	CharacterID string
	Name        string
	Owner       string
	HP          *int
	MaxHP       int
	X, Y        float64
}

// HPOr returns the carried HP, or fallback when the frame omitted it.
func (p *CharacterPayload) HPOr(fallback int) int {
	if p.HP == nil {
		return fallback
	}
	return *p.HP
}

// PropPayload carries prop attributes.
type PropPayload struct {
	PropID    string
	Label     string
	X, Y      float64
	Scale     float64
	ImageData string
}

// StagingPayload carries the staging zone extent.
type StagingPayload struct {
	X, Y          float64
	Width, Height float64
	Active        bool
}

// MapPayload carries a new background image.
type MapPayload struct {
	ImageData     string
	Width, Height float64
}

// SelectionPayload carries selection targets and the combine mode.
type SelectionPayload struct {
	ObjectID  string
	ObjectIDs []string
	Mode      MultiSelectMode
}

// DrawingPayload carries stroke geometry and edit targets.
type DrawingPayload struct {
	DrawingID string
	Points    []Vec2
	Color     string
	Width     float64
	X, Y      float64
	Radius    float64
}

// CombatPayload carries initiative assignments.
type CombatPayload struct {
	CharacterID string
	Initiative  int
}

// DicePayload carries an opaque resolved roll. Formula parsing is the
// client's concern; the server only records and replays results.
type DicePayload struct {
	Formula string
	Values  []int
	Total   int
}

// PointerPayload carries an ephemeral cursor position.
type PointerPayload struct {
	X, Y float64
}

// SignalPayload carries an opaque WebRTC signaling blob for a named peer.
type SignalPayload struct {
	To      string
	Payload json.RawMessage
}
