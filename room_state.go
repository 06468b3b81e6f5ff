package server

import (
	"crypto/sha256"
	"encoding/hex"
)

const (
	maxDiceHistory   = 100
	defaultGridSize  = 50.0
	spawnX           = 120.0
	spawnY           = 120.0
	defaultTokenSize = 40.0
)

// RoomState is the canonical mutable aggregate for one room. It exposes no
// behavior beyond invariant-preserving constructors; all mutation happens
// through the hub's dispatch pipeline, which serializes writers. RoomState is
// not safe for unsynchronized concurrent mutation.
type RoomState struct {
	RoomID      string                     `json:"roomId"`
	Players     map[string]*Player         `json:"players"`
	Tokens      map[string]*Token          `json:"tokens"`
	Characters  map[string]*Character      `json:"characters"`
	Props       map[string]*Prop           `json:"props"`
	Drawings    []*Drawing                 `json:"drawings"`
	Pointers    map[string]*Pointer        `json:"pointers"`
	DiceHistory []DiceRoll                 `json:"diceHistory"`
	Grid        GridConfig                 `json:"grid"`
	Staging     StagingZone                `json:"stagingZone"`
	Background  MapBackground              `json:"mapBackground"`
	Combat      CombatState                `json:"combat"`
	Selections  map[string]*SelectionEntry `json:"selections"`

	// Assets holds the immutable payloads (map images, token art) keyed by
	// asset id. Snapshots reference these ids; payloads are only shipped to
	// clients that have not cached them yet.
	Assets map[string]string `json:"assets"`

	// Version increments once per durable or broadcastable mutation.
	Version uint64 `json:"version"`

	// redoStacks holds per-user undone drawings. Ephemeral; reset on reload.
	redoStacks map[string][]*Drawing
}

// NewRoomState creates an empty room with the default grid.
func NewRoomState(roomID string) *RoomState {
	return &RoomState{
		RoomID:      roomID,
		Players:     make(map[string]*Player),
		Tokens:      make(map[string]*Token),
		Characters:  make(map[string]*Character),
		Props:       make(map[string]*Prop),
		Drawings:    make([]*Drawing, 0),
		Pointers:    make(map[string]*Pointer),
		DiceHistory: make([]DiceRoll, 0, maxDiceHistory),
		Grid:        GridConfig{Size: defaultGridSize, Visible: true},
		Selections:  make(map[string]*SelectionEntry),
		Assets:      make(map[string]string),
		redoStacks:  make(map[string][]*Drawing),
	}
}

// ensurePlayer adds a roster entry for id if none exists and reports whether
// one was created.
func (s *RoomState) ensurePlayer(id, name string) (*Player, bool) {
	if player, ok := s.Players[id]; ok {
		if name != "" && player.Name != name {
			player.Name = name
			return player, true
		}
		return player, false
	}
	player := &Player{ID: id, Name: name, ColorIndex: len(s.Players) % 8}
	if player.Name == "" {
		player.Name = "Adventurer"
	}
	s.Players[id] = player
	return player, true
}

// ensureSpawnToken guarantees the player owns at least one token, creating
// one at the spawn position when necessary.
func (s *RoomState) ensureSpawnToken(owner string) (*Token, bool) {
	for _, token := range s.Tokens {
		if token.Owner == owner {
			return token, false
		}
	}
	player := s.Players[owner]
	colorIndex := 0
	if player != nil {
		colorIndex = player.ColorIndex
	}
	token := &Token{
		ID:         newEntityID(),
		Owner:      owner,
		X:          spawnX,
		Y:          spawnY,
		Size:       defaultTokenSize,
		ColorIndex: colorIndex,
	}
	s.Tokens[token.ID] = token
	return token, true
}

// removePlayer deletes the roster entry, the player's tokens and pointer, and
// their selection. Returns whether anything was removed.
func (s *RoomState) removePlayer(id string) bool {
	changed := false
	if _, ok := s.Players[id]; ok {
		delete(s.Players, id)
		changed = true
	}
	for tokenID, token := range s.Tokens {
		if token.Owner == id {
			delete(s.Tokens, tokenID)
			changed = true
		}
	}
	if _, ok := s.Pointers[id]; ok {
		delete(s.Pointers, id)
		changed = true
	}
	if _, ok := s.Selections[id]; ok {
		delete(s.Selections, id)
		changed = true
	}
	delete(s.redoStacks, id)
	return changed
}

// appendDiceRoll stores a roll, evicting the oldest entry beyond the cap.
func (s *RoomState) appendDiceRoll(roll DiceRoll) {
	s.DiceHistory = append(s.DiceHistory, roll)
	if len(s.DiceHistory) > maxDiceHistory {
		s.DiceHistory = s.DiceHistory[len(s.DiceHistory)-maxDiceHistory:]
	}
}

// storeAsset registers an immutable payload under its content id. Identical
// payloads share one entry, so re-uploads never grow the store.
func (s *RoomState) storeAsset(data string) string {
	sum := sha256.Sum256([]byte(data))
	id := hex.EncodeToString(sum[:16])
	s.Assets[id] = data
	return id
}

// resetEphemeral clears the fields excluded from persistence. Called after a
// reload so clients never observe stale pointers or selections.
func (s *RoomState) resetEphemeral() {
	s.Pointers = make(map[string]*Pointer)
	s.Selections = make(map[string]*SelectionEntry)
	s.redoStacks = make(map[string][]*Drawing)
	s.Combat.Active = false
	s.Combat.Cursor = 0
	s.Combat.Round = 0
	s.Combat.Order = nil
}
