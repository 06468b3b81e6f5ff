package server

import (
	"time"

	"github.com/google/uuid"
)

// Vec2 is a 2D point on the table surface.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Player is a connected (or previously connected) participant in a room.
// Connectivity metadata lives on the hub; this struct holds only the
// durable roster entry.
type Player struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ColorIndex int    `json:"colorIndex"`
	IsDM       bool   `json:"isDM"`
}

// Token is a movable marker on the map, usually representing a character.
type Token struct {
	ID          string  `json:"id"`
	Owner       string  `json:"owner"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Size        float64 `json:"size"`
	ColorIndex  int     `json:"colorIndex"`
	Color       string  `json:"color,omitempty"`
	AssetID     string  `json:"assetId,omitempty"`
	CharacterID string  `json:"characterId,omitempty"`
}

// Character is a sheet-level entity; NPCs share the struct with IsNPC set.
type Character struct {
	ID         string `json:"id"`
	Owner      string `json:"owner"`
	Name       string `json:"name"`
	HP         int    `json:"hp"`
	MaxHP      int    `json:"maxHp"`
	Initiative int    `json:"initiative"`
	IsNPC      bool   `json:"isNpc"`
}

// Prop is a DM-placed decoration (a chest, a door, a trap marker).
type Prop struct {
	ID      string  `json:"id"`
	Owner   string  `json:"owner,omitempty"`
	Label   string  `json:"label"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Scale   float64 `json:"scale"`
	AssetID string  `json:"assetId,omitempty"`
}

// Drawing is a freehand stroke. OffsetX/OffsetY accumulate move-drawing
// translations so the point list stays immutable after creation.
type Drawing struct {
	ID      string  `json:"id"`
	Owner   string  `json:"owner"`
	Color   string  `json:"color"`
	Width   float64 `json:"width"`
	Points  []Vec2  `json:"points"`
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
}

// Pointer is an ephemeral per-user cursor ping. Never persisted.
type Pointer struct {
	Owner     string    `json:"owner"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DiceRoll records one resolved roll in the room history.
type DiceRoll struct {
	ID       string    `json:"id"`
	Roller   string    `json:"roller"`
	Formula  string    `json:"formula"`
	Values   []int     `json:"values"`
	Total    int       `json:"total"`
	RolledAt time.Time `json:"rolledAt"`
}

// GridConfig describes the square grid overlaid on the map.
type GridConfig struct {
	Size    float64 `json:"size"`
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
	Visible bool    `json:"visible"`
}

// StagingZone is the DM-defined off-map area where tokens wait before play.
type StagingZone struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Active bool    `json:"active"`
}

// MapBackground references the current battle map image by asset id.
type MapBackground struct {
	AssetID string  `json:"assetId,omitempty"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// CombatState tracks initiative order and the turn cursor.
type CombatState struct {
	Active bool     `json:"active"`
	Order  []string `json:"order"`
	Cursor int      `json:"cursor"`
	Round  int      `json:"round"`
}

func newEntityID() string {
	return uuid.NewString()
}
