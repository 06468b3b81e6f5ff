package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"wildshape/server/internal/telemetry"
)

const (
	metricSavesTotal     = "persistence_saves_total"
	metricSaveFailures   = "persistence_save_failures_total"
	metricSaveQueueDrops = "persistence_queue_drops_total"

	saveQueueDepth = 16
)

// persistedState is the durable subset of a room. Pointers, selections,
// redo stacks, and combat turn state are deliberately absent: they describe
// a live table, not a session worth restoring.
type persistedState struct {
	FormatVersion int           `json:"formatVersion"`
	RoomID        string        `json:"roomId"`
	Version       uint64        `json:"version"`
	Players       []Player      `json:"players"`
	Tokens        []Token       `json:"tokens"`
	Characters    []Character   `json:"characters"`
	Props         []Prop        `json:"props"`
	Drawings      []Drawing     `json:"drawings"`
	Scene         []SceneObject `json:"scene"`
	DiceHistory   []DiceRoll    `json:"diceHistory"`
	Grid          GridConfig    `json:"grid"`
	Staging       StagingZone   `json:"stagingZone"`
	Background    MapBackground `json:"mapBackground"`

	Assets map[string]string `json:"assets,omitempty"`
}

const persistFormatVersion = 1

// marshalPersistedState serializes the durable fields. The caller must hold
// whatever lock protects state; the returned bytes are an immutable copy
// safe to hand to the save queue.
func marshalPersistedState(state *RoomState, scene []SceneObject) ([]byte, error) {
	out := persistedState{
		FormatVersion: persistFormatVersion,
		RoomID:        state.RoomID,
		Version:       state.Version,
		Players:       make([]Player, 0, len(state.Players)),
		Tokens:        make([]Token, 0, len(state.Tokens)),
		Characters:    make([]Character, 0, len(state.Characters)),
		Props:         make([]Prop, 0, len(state.Props)),
		Drawings:      make([]Drawing, 0, len(state.Drawings)),
		Scene:         scene,
		DiceHistory:   state.DiceHistory,
		Grid:          state.Grid,
		Staging:       state.Staging,
		Background:    state.Background,
		Assets:        state.Assets,
	}
	for _, id := range sortedKeys(state.Players) {
		out.Players = append(out.Players, *state.Players[id])
	}
	for _, id := range sortedKeys(state.Tokens) {
		out.Tokens = append(out.Tokens, *state.Tokens[id])
	}
	for _, id := range sortedKeys(state.Characters) {
		out.Characters = append(out.Characters, *state.Characters[id])
	}
	for _, id := range sortedKeys(state.Props) {
		out.Props = append(out.Props, *state.Props[id])
	}
	for _, drawing := range state.Drawings {
		out.Drawings = append(out.Drawings, *drawing)
	}
	return json.Marshal(out)
}

// unmarshalPersistedState rebuilds a RoomState from saved bytes. Ephemeral
// fields come back empty.
func unmarshalPersistedState(data []byte) (*RoomState, []SceneObject, error) {
	var saved persistedState
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, nil, fmt.Errorf("decode persisted session: %w", err)
	}
	if saved.FormatVersion != persistFormatVersion {
		return nil, nil, fmt.Errorf("unsupported session format %d", saved.FormatVersion)
	}

	state := NewRoomState(saved.RoomID)
	state.Version = saved.Version
	state.DiceHistory = saved.DiceHistory
	state.Grid = saved.Grid
	state.Staging = saved.Staging
	state.Background = saved.Background
	if saved.Assets != nil {
		state.Assets = saved.Assets
	}
	for i := range saved.Players {
		player := saved.Players[i]
		state.Players[player.ID] = &player
	}
	for i := range saved.Tokens {
		token := saved.Tokens[i]
		state.Tokens[token.ID] = &token
	}
	for i := range saved.Characters {
		character := saved.Characters[i]
		state.Characters[character.ID] = &character
	}
	for i := range saved.Props {
		prop := saved.Props[i]
		state.Props[prop.ID] = &prop
	}
	for i := range saved.Drawings {
		drawing := saved.Drawings[i]
		state.Drawings = append(state.Drawings, &drawing)
	}
	state.resetEphemeral()
	return state, saved.Scene, nil
}

// LoadRoomState reads a persisted session from disk. A missing file is not
// an error; it reports a nil state so callers start fresh.
func LoadRoomState(path string) (*RoomState, []SceneObject, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read persisted session: %w", err)
	}
	return unmarshalPersistedState(data)
}

// Saver writes session payloads to disk off the dispatch path. A single
// consumer goroutine drains a small queue; when saves arrive faster than
// the disk absorbs them, intermediate payloads are dropped since only the
// newest session matters. Failures are logged and swallowed so persistence
// trouble never interrupts a running game.
type Saver struct {
	path      string
	queue     chan []byte
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	logger    telemetry.Logger
	metrics   telemetry.Metrics
}

// NewSaver starts the background writer for path.
func NewSaver(path string, logger telemetry.Logger, metrics telemetry.Metrics) *Saver {
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	s := &Saver{
		path:    path,
		queue:   make(chan []byte, saveQueueDepth),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger,
		metrics: metrics,
	}
	go s.run()
	return s
}

// Enqueue hands a serialized session to the writer. Never blocks and is
// safe after Close; a full queue drops the payload because a newer one is
// already behind it, and a stopped saver drops everything.
func (s *Saver) Enqueue(data []byte) {
	select {
	case <-s.stop:
		return
	default:
	}
	select {
	case s.queue <- data:
	default:
		s.metrics.Add(metricSaveQueueDrops, 1)
	}
}

// Close stops the writer, flushing the newest pending payload so a clean
// shutdown never loses the latest session.
func (s *Saver) Close() {
	s.closeOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Saver) run() {
	defer close(s.done)
	for {
		select {
		case data := <-s.queue:
			s.write(s.newest(data))
		case <-s.stop:
			select {
			case data := <-s.queue:
				s.write(s.newest(data))
			default:
			}
			return
		}
	}
}

// newest skips straight to the last queued payload; intermediate sessions
// are superseded before they hit the disk.
func (s *Saver) newest(data []byte) []byte {
	for {
		select {
		case newer := <-s.queue:
			data = newer
		default:
			return data
		}
	}
}

// write lands the payload via temp file and rename so a crash mid-write
// never corrupts the previous session.
func (s *Saver) write(data []byte) {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		s.metrics.Add(metricSaveFailures, 1)
		s.logger.Printf("session save failed: %v", err)
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		s.metrics.Add(metricSaveFailures, 1)
		s.logger.Printf("session save failed: %v", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		s.metrics.Add(metricSaveFailures, 1)
		s.logger.Printf("session save failed: %v", err)
		return
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		s.metrics.Add(metricSaveFailures, 1)
		s.logger.Printf("session save failed: %v", err)
		return
	}
	s.metrics.Add(metricSavesTotal, 1)
}
