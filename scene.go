package server

import (
	"fmt"
	"sort"

	"wildshape/server/internal/telemetry"
)

// SceneObjectType discriminates the projected object categories.
type SceneObjectType string

const (
	SceneMap         SceneObjectType = "map"
	SceneStagingZone SceneObjectType = "staging-zone"
	SceneDrawing     SceneObjectType = "drawing"
	SceneProp        SceneObjectType = "prop"
	SceneToken       SceneObjectType = "token"
	ScenePointer     SceneObjectType = "pointer"
)

// Transform carries position, per-axis scale, and rotation for rendering.
type Transform struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	ScaleX   float64 `json:"scaleX"`
	ScaleY   float64 `json:"scaleY"`
	Rotation float64 `json:"rotation"`
}

// SceneObject is a stably-identified, rendering-oriented projection of a
// domain entity. Scene objects are derived, never canonical: any one of them
// can be rebuilt from RoomState alone, except for the presentation fields
// (Locked, ZIndex, and token scale/rotation) which are carried forward from
// the previous projection generation.
type SceneObject struct {
	ID        string          `json:"id"`
	Type      SceneObjectType `json:"type"`
	Owner     string          `json:"owner,omitempty"`
	Locked    bool            `json:"locked"`
	ZIndex    int             `json:"zIndex"`
	Transform Transform       `json:"transform"`
	Data      any             `json:"data,omitempty"`
}

// SceneID derives the deterministic projection id for an entity.
func SceneID(kind SceneObjectType, entityID string) string {
	return fmt.Sprintf("%s:%s", kind, entityID)
}

func defaultZIndex(kind SceneObjectType) int {
	switch kind {
	case SceneMap:
		return -100
	case SceneStagingZone:
		return -80
	case SceneDrawing:
		return 5
	case SceneProp:
		return 7
	case SceneToken:
		return 10
	case ScenePointer:
		return 20
	default:
		return 0
	}
}

// TokenSceneData carries the token fields the renderer needs beyond the transform.
type TokenSceneData struct {
	ColorIndex  int     `json:"colorIndex"`
	Color       string  `json:"color,omitempty"`
	AssetID     string  `json:"assetId,omitempty"`
	CharacterID string  `json:"characterId,omitempty"`
	Size        float64 `json:"size"`
}

// DrawingSceneData carries the stroke geometry.
type DrawingSceneData struct {
	Color  string  `json:"color"`
	Width  float64 `json:"width"`
	Points []Vec2  `json:"points"`
}

// PropSceneData carries the prop label and art reference.
type PropSceneData struct {
	Label   string `json:"label"`
	AssetID string `json:"assetId,omitempty"`
}

// MapSceneData carries the background art reference and dimensions.
type MapSceneData struct {
	AssetID string  `json:"assetId,omitempty"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// StagingSceneData carries the staging zone extent.
type StagingSceneData struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RebuildScene projects RoomState into a scene object list, merging new
// authoritative fields onto presentation fields preserved from prev. Objects
// whose entity no longer exists are dropped; structurally new entities get
// the type defaults. Rebuilding twice from unchanged state is idempotent.
func RebuildScene(prev []SceneObject, state *RoomState, logger telemetry.Logger) []SceneObject {
	previous := make(map[string]SceneObject, len(prev))
	for _, obj := range prev {
		if _, dup := previous[obj.ID]; dup && logger != nil {
			logger.Printf("scene: duplicate id %q in previous generation", obj.ID)
		}
		previous[obj.ID] = obj
	}

	next := make([]SceneObject, 0, len(prev)+4)
	seen := make(map[string]struct{}, len(prev)+4)

	emit := func(candidate SceneObject) {
		if _, dup := seen[candidate.ID]; dup {
			if logger != nil {
				logger.Printf("scene: duplicate id %q during rebuild", candidate.ID)
			}
			return
		}
		seen[candidate.ID] = struct{}{}
		if old, ok := previous[candidate.ID]; ok {
			candidate.Locked = old.Locked
			candidate.ZIndex = old.ZIndex
			if candidate.Type == SceneToken {
				candidate.Transform.ScaleX = old.Transform.ScaleX
				candidate.Transform.ScaleY = old.Transform.ScaleY
				candidate.Transform.Rotation = old.Transform.Rotation
			}
		} else {
			candidate.ZIndex = defaultZIndex(candidate.Type)
		}
		next = append(next, candidate)
	}

	if state.Background.AssetID != "" {
		emit(SceneObject{
			ID:        SceneID(SceneMap, "background"),
			Type:      SceneMap,
			Transform: Transform{ScaleX: 1, ScaleY: 1},
			Data: MapSceneData{
				AssetID: state.Background.AssetID,
				Width:   state.Background.Width,
				Height:  state.Background.Height,
			},
		})
	}

	if state.Staging.Active {
		emit(SceneObject{
			ID:        SceneID(SceneStagingZone, "staging"),
			Type:      SceneStagingZone,
			Transform: Transform{X: state.Staging.X, Y: state.Staging.Y, ScaleX: 1, ScaleY: 1},
			Data:      StagingSceneData{Width: state.Staging.Width, Height: state.Staging.Height},
		})
	}

	for _, drawing := range state.Drawings {
		emit(SceneObject{
			ID:        SceneID(SceneDrawing, drawing.ID),
			Type:      SceneDrawing,
			Owner:     drawing.Owner,
			Transform: Transform{X: drawing.OffsetX, Y: drawing.OffsetY, ScaleX: 1, ScaleY: 1},
			Data:      DrawingSceneData{Color: drawing.Color, Width: drawing.Width, Points: drawing.Points},
		})
	}

	for _, id := range sortedKeys(state.Props) {
		prop := state.Props[id]
		scale := prop.Scale
		if scale == 0 {
			scale = 1
		}
		emit(SceneObject{
			ID:        SceneID(SceneProp, prop.ID),
			Type:      SceneProp,
			Owner:     prop.Owner,
			Transform: Transform{X: prop.X, Y: prop.Y, ScaleX: scale, ScaleY: scale},
			Data:      PropSceneData{Label: prop.Label, AssetID: prop.AssetID},
		})
	}

	for _, id := range sortedKeys(state.Tokens) {
		token := state.Tokens[id]
		emit(SceneObject{
			ID:        SceneID(SceneToken, token.ID),
			Type:      SceneToken,
			Owner:     token.Owner,
			Transform: Transform{X: token.X, Y: token.Y, ScaleX: 1, ScaleY: 1},
			Data: TokenSceneData{
				ColorIndex:  token.ColorIndex,
				Color:       token.Color,
				AssetID:     token.AssetID,
				CharacterID: token.CharacterID,
				Size:        token.Size,
			},
		})
	}

	for _, id := range sortedKeys(state.Pointers) {
		pointer := state.Pointers[id]
		emit(SceneObject{
			ID:        SceneID(ScenePointer, pointer.Owner),
			Type:      ScenePointer,
			Owner:     pointer.Owner,
			Transform: Transform{X: pointer.X, Y: pointer.Y, ScaleX: 1, ScaleY: 1},
		})
	}

	return next
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func findSceneObject(scene []SceneObject, id string) *SceneObject {
	for i := range scene {
		if scene[i].ID == id {
			return &scene[i]
		}
	}
	return nil
}
