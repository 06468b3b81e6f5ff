package server

import "math"

// maxRedoDepth bounds how many undone strokes a user can buffer.
const maxRedoDepth = 32

func findDrawing(s *RoomState, id string) *Drawing {
	for _, drawing := range s.Drawings {
		if drawing.ID == id {
			return drawing
		}
	}
	return nil
}

// addDrawing appends a new stroke owned by the sender. Adding a stroke
// invalidates the sender's redo stack, mirroring editor undo semantics.
func (s *RoomState) addDrawing(owner string, points []Vec2, color string, width float64) (*Drawing, bool) {
	if len(points) == 0 {
		return nil, false
	}
	drawing := &Drawing{
		ID:     newEntityID(),
		Owner:  owner,
		Color:  color,
		Width:  width,
		Points: append([]Vec2(nil), points...),
	}
	if drawing.Width <= 0 {
		drawing.Width = 2
	}
	s.Drawings = append(s.Drawings, drawing)
	delete(s.redoStacks, owner)
	return drawing, true
}

// undoDrawing removes the sender's most recent stroke onto their redo stack.
func (s *RoomState) undoDrawing(owner string) bool {
	for i := len(s.Drawings) - 1; i >= 0; i-- {
		if s.Drawings[i].Owner != owner {
			continue
		}
		drawing := s.Drawings[i]
		s.Drawings = append(s.Drawings[:i], s.Drawings[i+1:]...)
		stack := s.redoStacks[owner]
		if len(stack) >= maxRedoDepth {
			stack = stack[1:]
		}
		s.redoStacks[owner] = append(stack, drawing)
		s.removeObjectFromSelections(SceneID(SceneDrawing, drawing.ID))
		return true
	}
	return false
}

// redoDrawing restores the sender's most recently undone stroke.
func (s *RoomState) redoDrawing(owner string) bool {
	stack := s.redoStacks[owner]
	if len(stack) == 0 {
		return false
	}
	drawing := stack[len(stack)-1]
	s.redoStacks[owner] = stack[:len(stack)-1]
	s.Drawings = append(s.Drawings, drawing)
	return true
}

// clearDrawings removes every stroke and all redo stacks.
func (s *RoomState) clearDrawings() bool {
	if len(s.Drawings) == 0 {
		return false
	}
	for _, drawing := range s.Drawings {
		s.removeObjectFromSelections(SceneID(SceneDrawing, drawing.ID))
	}
	s.Drawings = s.Drawings[:0]
	s.redoStacks = make(map[string][]*Drawing)
	return true
}

// moveDrawing translates a stroke by setting its offset.
func (s *RoomState) moveDrawing(id string, x, y float64) bool {
	drawing := findDrawing(s, id)
	if drawing == nil {
		return false
	}
	if drawing.OffsetX == x && drawing.OffsetY == y {
		return false
	}
	drawing.OffsetX = x
	drawing.OffsetY = y
	return true
}

func (s *RoomState) deleteDrawing(id string) bool {
	for i, drawing := range s.Drawings {
		if drawing.ID == id {
			s.Drawings = append(s.Drawings[:i], s.Drawings[i+1:]...)
			s.removeObjectFromSelections(SceneID(SceneDrawing, id))
			return true
		}
	}
	return false
}

// erasePartial removes the points of a stroke within radius of (x, y). A
// stroke left with fewer than two points is deleted outright.
func (s *RoomState) erasePartial(id string, x, y, radius float64) bool {
	drawing := findDrawing(s, id)
	if drawing == nil || radius <= 0 {
		return false
	}
	remaining := make([]Vec2, 0, len(drawing.Points))
	for _, p := range drawing.Points {
		px := p.X + drawing.OffsetX
		py := p.Y + drawing.OffsetY
		if math.Hypot(px-x, py-y) > radius {
			remaining = append(remaining, p)
		}
	}
	if len(remaining) == len(drawing.Points) {
		return false
	}
	if len(remaining) < 2 {
		return s.deleteDrawing(id)
	}
	drawing.Points = remaining
	return true
}
