package server

import "testing"

func TestUndoRedoRestoresStroke(t *testing.T) {
	s := NewRoomState("r")
	drawing, _ := s.addDrawing("p1", []Vec2{{X: 0, Y: 0}, {X: 5, Y: 5}}, "#00ff00", 2)

	if !s.undoDrawing("p1") {
		t.Fatalf("expected undo to remove the stroke")
	}
	if len(s.Drawings) != 0 {
		t.Fatalf("expected no strokes after undo")
	}
	if !s.redoDrawing("p1") {
		t.Fatalf("expected redo to restore the stroke")
	}
	if len(s.Drawings) != 1 || s.Drawings[0].ID != drawing.ID {
		t.Fatalf("expected the original stroke back")
	}
	if s.redoDrawing("p1") {
		t.Fatalf("expected an empty redo stack to report no change")
	}
}

func TestUndoOnlyTouchesOwnStrokes(t *testing.T) {
	s := NewRoomState("r")
	s.addDrawing("p1", []Vec2{{X: 0, Y: 0}, {X: 1, Y: 1}}, "#fff", 2)
	theirs, _ := s.addDrawing("p2", []Vec2{{X: 2, Y: 2}, {X: 3, Y: 3}}, "#fff", 2)

	if !s.undoDrawing("p1") {
		t.Fatalf("expected undo to find the owner's stroke")
	}
	if len(s.Drawings) != 1 || s.Drawings[0].ID != theirs.ID {
		t.Fatalf("expected the other user's stroke to survive")
	}
	if s.undoDrawing("p1") {
		t.Fatalf("expected no further strokes to undo for p1")
	}
}

func TestNewStrokeInvalidatesRedoStack(t *testing.T) {
	s := NewRoomState("r")
	s.addDrawing("p1", []Vec2{{X: 0, Y: 0}, {X: 1, Y: 1}}, "#fff", 2)
	s.undoDrawing("p1")
	s.addDrawing("p1", []Vec2{{X: 9, Y: 9}, {X: 8, Y: 8}}, "#fff", 2)

	if s.redoDrawing("p1") {
		t.Fatalf("expected a new stroke to clear the redo stack")
	}
}

func TestRedoStackCapsDepth(t *testing.T) {
	s := NewRoomState("r")
	for i := 0; i < maxRedoDepth+5; i++ {
		s.addDrawing("p1", []Vec2{{X: float64(i), Y: 0}, {X: float64(i), Y: 1}}, "#fff", 2)
	}
	for i := 0; i < maxRedoDepth+5; i++ {
		if !s.undoDrawing("p1") {
			t.Fatalf("undo %d failed unexpectedly", i)
		}
	}
	redone := 0
	for s.redoDrawing("p1") {
		redone++
		if redone > maxRedoDepth {
			t.Fatalf("redo stack exceeded its cap")
		}
	}
	if redone != maxRedoDepth {
		t.Fatalf("expected %d redoable strokes, got %d", maxRedoDepth, redone)
	}
}

func TestErasePartialSplitsOrDeletes(t *testing.T) {
	s := NewRoomState("r")
	points := make([]Vec2, 0, 5)
	for i := 0; i < 5; i++ {
		points = append(points, Vec2{X: float64(i * 10), Y: 0})
	}
	drawing, _ := s.addDrawing("p1", points, "#fff", 2)

	// Erase the middle point only.
	if !s.erasePartial(drawing.ID, 20, 0, 5) {
		t.Fatalf("expected the erase to hit")
	}
	if len(drawing.Points) != 4 {
		t.Fatalf("expected 4 points to remain, got %d", len(drawing.Points))
	}

	// A miss reports no change.
	if s.erasePartial(drawing.ID, 500, 500, 5) {
		t.Fatalf("expected a miss to report no change")
	}

	// Erasing down to fewer than two points deletes the stroke.
	if !s.erasePartial(drawing.ID, 20, 0, 100) {
		t.Fatalf("expected the wide erase to apply")
	}
	if len(s.Drawings) != 0 {
		t.Fatalf("expected the stroke to be deleted outright")
	}
}

func TestErasePartialHonorsStrokeOffset(t *testing.T) {
	s := NewRoomState("r")
	drawing, _ := s.addDrawing("p1", []Vec2{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 20, Y: 0}}, "#fff", 2)
	s.moveDrawing(drawing.ID, 100, 0)

	// The stroke now lives at x 100..120; erasing at its original
	// coordinates must miss.
	if s.erasePartial(drawing.ID, 10, 0, 5) {
		t.Fatalf("expected the erase at the pre-move position to miss")
	}
	if !s.erasePartial(drawing.ID, 110, 0, 5) {
		t.Fatalf("expected the erase at the moved position to hit")
	}
}

func TestClearDrawingsPurgesSelectionsAndRedo(t *testing.T) {
	s := NewRoomState("r")
	var last *Drawing
	for i := 0; i < 3; i++ {
		last, _ = s.addDrawing("p1", []Vec2{{X: float64(i), Y: 0}, {X: float64(i), Y: 1}}, "#fff", 2)
	}
	s.selectObject("p1", SceneID(SceneDrawing, last.ID))
	s.undoDrawing("p1")

	if !s.clearDrawings() {
		t.Fatalf("expected clear to report a change")
	}
	if len(s.Drawings) != 0 {
		t.Fatalf("expected no strokes after clear")
	}
	if s.redoDrawing("p1") {
		t.Fatalf("expected redo stacks to be dropped by clear")
	}
	if len(s.Selections) != 0 {
		t.Fatalf("expected drawing selections to be purged")
	}
}

func TestAddDrawingDefaultsWidth(t *testing.T) {
	s := NewRoomState("r")
	drawing, ok := s.addDrawing("p1", []Vec2{{X: 0, Y: 0}, {X: 1, Y: 1}}, "#fff", 0)
	if !ok || drawing.Width != 2 {
		t.Fatalf("expected a non-positive width to default, got %v", drawing.Width)
	}
	if _, ok := s.addDrawing("p1", nil, "#fff", 2); ok {
		t.Fatalf("expected an empty stroke to be rejected")
	}
}

func TestDrawingIDsAreUnique(t *testing.T) {
	s := NewRoomState("r")
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		drawing, _ := s.addDrawing("p1", []Vec2{{X: 0, Y: 0}, {X: 1, Y: 1}}, "#fff", 2)
		if seen[drawing.ID] {
			t.Fatalf("duplicate drawing id %s at iteration %d", drawing.ID, i)
		}
		seen[drawing.ID] = true
	}
}
