// Package journal retains recent broadcast frames so resync requests can be
// answered without re-serializing room state. Entries are version-tagged and
// pruned by both count and age.
package journal

import (
	"sync"
	"time"
)

// Entry is one retained broadcast frame.
type Entry struct {
	Version    uint64
	Keyframe   bool
	Data       []byte
	RecordedAt time.Time
}

// Journal is a bounded ring of recent frames. Keyframes are full snapshots;
// deltas fill the versions between them. The retained span defines which
// client-reported versions the server still recognizes.
type Journal struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	maxAge   time.Duration

	latestKeyframe Entry
	hasKeyframe    bool
}

// New creates a journal retaining at most capacity keyframes and discarding
// anything older than maxAge. Non-positive values disable the respective
// limit.
func New(capacity int, maxAge time.Duration) *Journal {
	if capacity < 0 {
		capacity = 0
	}
	return &Journal{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
		maxAge:   maxAge,
	}
}

// RecordKeyframe retains a full-snapshot frame for version.
func (j *Journal) RecordKeyframe(version uint64, data []byte, now time.Time) {
	j.record(Entry{Version: version, Keyframe: true, Data: data, RecordedAt: now})
}

// RecordDelta retains a delta frame for version.
func (j *Journal) RecordDelta(version uint64, data []byte, now time.Time) {
	j.record(Entry{Version: version, Data: data, RecordedAt: now})
}

func (j *Journal) record(entry Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = append(j.entries, entry)
	if entry.Keyframe {
		j.latestKeyframe = entry
		j.hasKeyframe = true
	}
	j.pruneLocked(entry.RecordedAt)
}

// pruneLocked enforces the age window and the keyframe capacity. Pruning is
// keyframe-aligned: when the oldest keyframe goes, the deltas leading up to
// the next one go with it, so the retained span always starts at a frame a
// client can anchor on.
func (j *Journal) pruneLocked(now time.Time) {
	if j.maxAge > 0 {
		cutoff := now.Add(-j.maxAge)
		idx := 0
		for idx < len(j.entries) && j.entries[idx].RecordedAt.Before(cutoff) {
			idx++
		}
		if idx > 0 {
			copy(j.entries, j.entries[idx:])
			j.entries = j.entries[:len(j.entries)-idx]
		}
	}

	if j.capacity <= 0 {
		return
	}
	for j.keyframeCountLocked() > j.capacity {
		// Drop the oldest keyframe and every frame before the next one.
		dropped := false
		for i, entry := range j.entries {
			if entry.Keyframe && dropped {
				copy(j.entries, j.entries[i:])
				j.entries = j.entries[:len(j.entries)-i]
				break
			}
			if entry.Keyframe {
				dropped = true
			}
		}
	}
}

func (j *Journal) keyframeCountLocked() int {
	count := 0
	for _, entry := range j.entries {
		if entry.Keyframe {
			count++
		}
	}
	return count
}

// Covers reports whether version still falls inside the retained span. A
// client reporting a version outside it must be told its gap is
// unrecoverable before receiving a fresh snapshot.
func (j *Journal) Covers(version uint64) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.entries) == 0 {
		return false
	}
	return version >= j.entries[0].Version && version <= j.entries[len(j.entries)-1].Version
}

// LatestKeyframe returns the newest retained full-snapshot frame.
func (j *Journal) LatestKeyframe() ([]byte, uint64, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.hasKeyframe {
		return nil, 0, false
	}
	return j.latestKeyframe.Data, j.latestKeyframe.Version, true
}

// Keyframe returns the retained full-snapshot frame for an exact version.
func (j *Journal) Keyframe(version uint64) ([]byte, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i := len(j.entries) - 1; i >= 0; i-- {
		if j.entries[i].Keyframe && j.entries[i].Version == version {
			return j.entries[i].Data, true
		}
	}
	return nil, false
}

// DeltasAfter returns the retained frames with versions strictly greater
// than version, oldest first. Keyframes in the range are included; a client
// replaying them simply adopts the snapshot. The second result reports
// whether the retained span actually reaches back to version; when false the
// caller must fall back to a full snapshot.
func (j *Journal) DeltasAfter(version uint64) ([][]byte, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.entries) == 0 || version < j.entries[0].Version {
		return nil, false
	}
	var frames [][]byte
	for _, entry := range j.entries {
		if entry.Version > version {
			frames = append(frames, entry.Data)
		}
	}
	return frames, true
}

// Len reports the number of retained frames.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}
