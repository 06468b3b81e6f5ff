// Package intake validates raw client frames and shapes them into commands.
// Everything crossing the websocket boundary passes through Decode before it
// can reach the dispatch pipeline.
package intake

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"wildshape/server"
)

// Intake limits. Oversized or overlong fields reject the whole frame.
const (
	MaxMessageBytes  = 4 << 20
	MaxImageBytes    = 3 << 20
	MaxDrawingPoints = 4096
	MaxSelectionIDs  = 100
	MaxLabelLength   = 256
)

// Typed drop reasons surfaced to the network logger.
var (
	ErrTooLarge    = errors.New("frame exceeds size limit")
	ErrMalformed   = errors.New("malformed frame")
	ErrInvalid     = errors.New("frame failed validation")
	ErrUnknownKind = errors.New("unknown command kind")
	ErrVersion     = errors.New("unsupported protocol version")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Envelope is the flat client frame. The `t` discriminator selects which
// field group is meaningful; unused fields stay at their zero values.
type Envelope struct {
	Ver  int    `json:"ver,omitempty"`
	Type string `json:"t" validate:"required,max=64"`
	Seq  uint64 `json:"seq,omitempty"`

	// Handshake and lifecycle.
	RoomID     string `json:"roomId,omitempty" validate:"max=128"`
	Secret     string `json:"secret,omitempty" validate:"max=256"`
	Name       string `json:"name,omitempty" validate:"max=256"`
	ClientSent int64  `json:"clientSent,omitempty"`
	Version    uint64 `json:"version,omitempty"`

	// Entity targets and geometry.
	TokenID     string  `json:"tokenId,omitempty" validate:"max=128"`
	CharacterID string  `json:"characterId,omitempty" validate:"max=128"`
	PropID      string  `json:"propId,omitempty" validate:"max=128"`
	DrawingID   string  `json:"drawingId,omitempty" validate:"max=128"`
	X           float64 `json:"x,omitempty"`
	Y           float64 `json:"y,omitempty"`
	Width       float64 `json:"width,omitempty"`
	Height      float64 `json:"height,omitempty"`
	Size        float64 `json:"size,omitempty"`
	Scale       float64 `json:"scale,omitempty"`
	Radius      float64 `json:"radius,omitempty"`
	Active      bool    `json:"active,omitempty"`

	// Appearance.
	ColorIndex int    `json:"colorIndex,omitempty" validate:"min=0,max=64"`
	Color      string `json:"color,omitempty" validate:"max=64"`
	ImageData  string `json:"imageData,omitempty"`
	Label      string `json:"label,omitempty" validate:"max=256"`

	// Characters and combat. HP is a pointer so a frame that omits it is
	// distinguishable from one setting it to zero.
	HP         *int `json:"hp,omitempty"`
	MaxHP      int  `json:"maxHp,omitempty"`
	Initiative int  `json:"initiative,omitempty"`

	// Selection.
	ObjectID  string   `json:"objectId,omitempty" validate:"max=160"`
	ObjectIDs []string `json:"objectIds,omitempty" validate:"max=100,dive,max=160"`
	Mode      string   `json:"mode,omitempty" validate:"omitempty,oneof=replace append subtract"`

	// Drawing strokes.
	Points []server.Vec2 `json:"points,omitempty" validate:"max=4096"`

	// Dice.
	Formula string `json:"formula,omitempty" validate:"max=256"`
	Values  []int  `json:"values,omitempty" validate:"max=256"`
	Total   int    `json:"total,omitempty"`

	// Signaling.
	To      string          `json:"to,omitempty" validate:"max=128"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode parses, validates, and shapes one client frame into a command.
// The returned command has no actor or timestamp yet; the session layer
// stamps those from connection identity, never from client input.
func Decode(data []byte) (server.Command, error) {
	var zero server.Command
	if len(data) > MaxMessageBytes {
		return zero, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(env); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	// Zero means a client predating the ver field; anything newer than we
	// speak is refused rather than half-decoded.
	if env.Ver > server.ProtocolVersion {
		return zero, fmt.Errorf("%w: %d", ErrVersion, env.Ver)
	}

	cmd := server.Command{Type: server.CommandType(env.Type), Seq: env.Seq}
	switch cmd.Type {
	case server.CommandAuthenticate:
		cmd.Auth = &server.AuthPayload{RoomID: env.RoomID, Secret: env.Secret, Name: env.Name}

	case server.CommandHeartbeat:
		cmd.Heartbeat = &server.HeartbeatPayload{ClientSent: env.ClientSent}

	case server.CommandResync:
		cmd.Resync = &server.ResyncPayload{Version: env.Version}

	case server.CommandLoadSession:
		cmd.Session = &server.SessionPayload{Data: env.Payload}

	case server.CommandSetRoomPassword, server.CommandSetDMPassword,
		server.CommandElevateToDM, server.CommandRevokeDM:
		cmd.Password = &server.PasswordPayload{Secret: env.Secret}

	case server.CommandMove:
		cmd.Move = &server.MovePayload{TokenID: env.TokenID, X: env.X, Y: env.Y}

	case server.CommandRecolor, server.CommandDeleteToken, server.CommandSetTokenSize,
		server.CommandSetTokenColor, server.CommandUpdateTokenImage, server.CommandLinkToken,
		server.CommandClearTokens:
		cmd.Token = &server.TokenPayload{
			TokenID:     env.TokenID,
			ColorIndex:  env.ColorIndex,
			Color:       env.Color,
			Size:        env.Size,
			ImageData:   env.ImageData,
			CharacterID: env.CharacterID,
		}

	case server.CommandCreateCharacter, server.CommandRenameCharacter, server.CommandCreateNPC,
		server.CommandUpdateNPC, server.CommandDeleteNPC, server.CommandPlaceNPCToken:
		cmd.Character = &server.CharacterPayload{
			CharacterID: env.CharacterID,
			Name:        env.Name,
			HP:          env.HP,
			MaxHP:       env.MaxHP,
			X:           env.X,
			Y:           env.Y,
		}

	case server.CommandCreateProp, server.CommandUpdateProp, server.CommandDeleteProp:
		cmd.Prop = &server.PropPayload{
			PropID:    env.PropID,
			Label:     env.Label,
			X:         env.X,
			Y:         env.Y,
			Scale:     env.Scale,
			ImageData: env.ImageData,
		}

	case server.CommandSetStagingZone:
		cmd.Staging = &server.StagingPayload{
			X: env.X, Y: env.Y,
			Width: env.Width, Height: env.Height,
			Active: env.Active,
		}

	case server.CommandSetMapBackground:
		cmd.Map = &server.MapPayload{ImageData: env.ImageData, Width: env.Width, Height: env.Height}

	case server.CommandSelectObject, server.CommandDeselectObject, server.CommandSelectMultiple:
		cmd.Selection = &server.SelectionPayload{
			ObjectID:  env.ObjectID,
			ObjectIDs: env.ObjectIDs,
			Mode:      server.MultiSelectMode(env.Mode),
		}

	case server.CommandLockSelected, server.CommandUnlockSelected:
		cmd.Selection = &server.SelectionPayload{}

	case server.CommandDraw, server.CommandUndoDrawing, server.CommandRedoDrawing,
		server.CommandClearDrawings, server.CommandMoveDrawing, server.CommandDeleteDrawing,
		server.CommandErasePartial:
		cmd.Drawing = &server.DrawingPayload{
			DrawingID: env.DrawingID,
			Points:    env.Points,
			Color:     env.Color,
			Width:     env.Width,
			X:         env.X,
			Y:         env.Y,
			Radius:    env.Radius,
		}

	case server.CommandSetInitiative, server.CommandStartCombat, server.CommandEndCombat,
		server.CommandNextTurn, server.CommandPreviousTurn, server.CommandClearInitiative:
		cmd.Combat = &server.CombatPayload{CharacterID: env.CharacterID, Initiative: env.Initiative}

	case server.CommandRollDice:
		cmd.Dice = &server.DicePayload{Formula: env.Formula, Values: env.Values, Total: env.Total}

	case server.CommandMovePointer:
		cmd.Pointer = &server.PointerPayload{X: env.X, Y: env.Y}

	case server.CommandRTCSignal:
		cmd.Signal = &server.SignalPayload{To: env.To, Payload: env.Payload}

	default:
		return zero, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}

	if cmd.Type == server.CommandUpdateTokenImage || cmd.Type == server.CommandSetMapBackground ||
		cmd.Type == server.CommandCreateProp || cmd.Type == server.CommandUpdateProp {
		if len(env.ImageData) > MaxImageBytes {
			return zero, fmt.Errorf("%w: image payload %d bytes", ErrTooLarge, len(env.ImageData))
		}
	}
	return cmd, nil
}
