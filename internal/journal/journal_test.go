package journal

import (
	"testing"
	"time"
)

func TestJournalLatestKeyframe(t *testing.T) {
	j := New(4, time.Minute)
	now := time.Now()

	j.RecordKeyframe(1, []byte("k1"), now)
	j.RecordDelta(2, []byte("d2"), now)
	j.RecordKeyframe(3, []byte("k3"), now)

	data, version, ok := j.LatestKeyframe()
	if !ok {
		t.Fatalf("expected a keyframe to be retained")
	}
	if version != 3 {
		t.Fatalf("expected latest keyframe version 3, got %d", version)
	}
	if string(data) != "k3" {
		t.Fatalf("expected latest keyframe payload k3, got %q", data)
	}
}

func TestJournalCoversRetainedSpan(t *testing.T) {
	j := New(8, time.Minute)
	now := time.Now()

	j.RecordKeyframe(10, []byte("k10"), now)
	j.RecordDelta(11, []byte("d11"), now)
	j.RecordDelta(12, []byte("d12"), now)

	if !j.Covers(10) || !j.Covers(12) {
		t.Fatalf("expected span 10..12 to be covered")
	}
	if j.Covers(9) {
		t.Fatalf("expected version 9 to be outside the span")
	}
	if j.Covers(13) {
		t.Fatalf("expected version 13 to be outside the span")
	}
}

func TestJournalDeltasAfterReplaysContiguousFrames(t *testing.T) {
	j := New(8, time.Minute)
	now := time.Now()

	j.RecordKeyframe(5, []byte("k5"), now)
	j.RecordDelta(6, []byte("d6"), now)
	j.RecordDelta(7, []byte("d7"), now)

	frames, covered := j.DeltasAfter(5)
	if !covered {
		t.Fatalf("expected version 5 to be covered")
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames after version 5, got %d", len(frames))
	}
	if string(frames[0]) != "d6" || string(frames[1]) != "d7" {
		t.Fatalf("expected frames d6, d7 in order, got %q, %q", frames[0], frames[1])
	}

	if _, covered := j.DeltasAfter(3); covered {
		t.Fatalf("expected version 3 to fall outside the span")
	}
}

func TestJournalCapacityPrunesKeyframeAligned(t *testing.T) {
	j := New(2, time.Minute)
	now := time.Now()

	j.RecordKeyframe(1, []byte("k1"), now)
	j.RecordDelta(2, []byte("d2"), now)
	j.RecordKeyframe(3, []byte("k3"), now)
	j.RecordDelta(4, []byte("d4"), now)
	j.RecordKeyframe(5, []byte("k5"), now)

	if j.Covers(2) {
		t.Fatalf("expected pruning to drop frames before the second keyframe")
	}
	if !j.Covers(3) || !j.Covers(5) {
		t.Fatalf("expected span 3..5 to survive pruning")
	}
	if _, ok := j.Keyframe(1); ok {
		t.Fatalf("expected keyframe 1 to have been pruned")
	}
	if _, ok := j.Keyframe(3); !ok {
		t.Fatalf("expected keyframe 3 to be retained")
	}
}

func TestJournalAgePruning(t *testing.T) {
	j := New(8, 10*time.Second)
	base := time.Now()

	j.RecordKeyframe(1, []byte("k1"), base)
	j.RecordDelta(2, []byte("d2"), base.Add(2*time.Second))
	j.RecordKeyframe(3, []byte("k3"), base.Add(15*time.Second))

	if j.Covers(1) || j.Covers(2) {
		t.Fatalf("expected frames older than the window to be dropped")
	}
	if !j.Covers(3) {
		t.Fatalf("expected the fresh keyframe to survive")
	}
}
