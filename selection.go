package server

// SelectionMode distinguishes single-object from ordered multi-selection.
type SelectionMode string

const (
	SelectionSingle   SelectionMode = "single"
	SelectionMultiple SelectionMode = "multiple"
)

// MultiSelectMode controls how SelectMultiple combines with the existing set.
type MultiSelectMode string

const (
	MultiSelectReplace  MultiSelectMode = "replace"
	MultiSelectAppend   MultiSelectMode = "append"
	MultiSelectSubtract MultiSelectMode = "subtract"
)

// maxSelectionSize bounds selection entries so broadcast payloads stay small.
const maxSelectionSize = 100

// SelectionEntry is one user's current selection. Exactly one of ObjectID
// (single mode) or ObjectIDs (multiple mode, ordered) is populated.
type SelectionEntry struct {
	Mode      SelectionMode `json:"mode"`
	ObjectID  string        `json:"objectId,omitempty"`
	ObjectIDs []string      `json:"objectIds,omitempty"`
}

// ids returns the selected object ids regardless of mode.
func (e *SelectionEntry) ids() []string {
	if e == nil {
		return nil
	}
	if e.Mode == SelectionSingle {
		if e.ObjectID == "" {
			return nil
		}
		return []string{e.ObjectID}
	}
	return e.ObjectIDs
}

// clone returns a deep copy safe to hand to serialization.
func (e *SelectionEntry) clone() *SelectionEntry {
	if e == nil {
		return nil
	}
	copied := &SelectionEntry{Mode: e.Mode, ObjectID: e.ObjectID}
	if len(e.ObjectIDs) > 0 {
		copied.ObjectIDs = append([]string(nil), e.ObjectIDs...)
	}
	return copied
}

// selectObject replaces the user's selection with a single object. Reports
// whether the selection actually changed.
func (s *RoomState) selectObject(userID, objectID string) bool {
	current := s.Selections[userID]
	if current != nil && current.Mode == SelectionSingle && current.ObjectID == objectID {
		return false
	}
	s.Selections[userID] = &SelectionEntry{Mode: SelectionSingle, ObjectID: objectID}
	return true
}

// deselect clears the user's selection. Reports whether one existed.
func (s *RoomState) deselect(userID string) bool {
	if _, ok := s.Selections[userID]; !ok {
		return false
	}
	delete(s.Selections, userID)
	return true
}

// selectMultiple applies a batch selection with the given combine mode.
// Append unions the sets, de-duplicated preserving first-seen order and
// capped at maxSelectionSize. Subtract removes only the given ids; an empty
// result collapses to a full deselect so clients observe the same effect as
// an explicit deselect rather than an empty multi-selection.
func (s *RoomState) selectMultiple(userID string, objectIDs []string, mode MultiSelectMode) bool {
	if len(objectIDs) > maxSelectionSize {
		objectIDs = objectIDs[:maxSelectionSize]
	}
	current := s.Selections[userID]

	switch mode {
	case MultiSelectAppend:
		merged := dedupe(append(current.ids(), objectIDs...))
		if len(merged) > maxSelectionSize {
			merged = merged[:maxSelectionSize]
		}
		if sameIDs(current.ids(), merged) {
			return false
		}
		if len(merged) == 0 {
			return s.deselect(userID)
		}
		s.Selections[userID] = &SelectionEntry{Mode: SelectionMultiple, ObjectIDs: merged}
		return true

	case MultiSelectSubtract:
		if current == nil {
			return false
		}
		removed := make(map[string]struct{}, len(objectIDs))
		for _, id := range objectIDs {
			removed[id] = struct{}{}
		}
		remaining := make([]string, 0, len(current.ids()))
		for _, id := range current.ids() {
			if _, drop := removed[id]; !drop {
				remaining = append(remaining, id)
			}
		}
		if sameIDs(current.ids(), remaining) {
			return false
		}
		if len(remaining) == 0 {
			return s.deselect(userID)
		}
		s.Selections[userID] = &SelectionEntry{Mode: SelectionMultiple, ObjectIDs: remaining}
		return true

	default: // replace
		deduped := dedupe(objectIDs)
		if len(deduped) > maxSelectionSize {
			deduped = deduped[:maxSelectionSize]
		}
		if len(deduped) == 0 {
			return s.deselect(userID)
		}
		if current != nil && current.Mode == SelectionMultiple && sameIDs(current.ObjectIDs, deduped) {
			return false
		}
		s.Selections[userID] = &SelectionEntry{Mode: SelectionMultiple, ObjectIDs: deduped}
		return true
	}
}

// removeObjectFromSelections purges a deleted scene object from every user's
// selection so no dangling references survive entity deletion. Returns the
// user ids whose selections changed.
func (s *RoomState) removeObjectFromSelections(objectID string) []string {
	var changed []string
	for userID, entry := range s.Selections {
		switch entry.Mode {
		case SelectionSingle:
			if entry.ObjectID == objectID {
				delete(s.Selections, userID)
				changed = append(changed, userID)
			}
		case SelectionMultiple:
			remaining := make([]string, 0, len(entry.ObjectIDs))
			for _, id := range entry.ObjectIDs {
				if id != objectID {
					remaining = append(remaining, id)
				}
			}
			if len(remaining) == len(entry.ObjectIDs) {
				continue
			}
			if len(remaining) == 0 {
				delete(s.Selections, userID)
			} else {
				entry.ObjectIDs = remaining
			}
			changed = append(changed, userID)
		}
	}
	return changed
}

// setLockedOnSelection toggles the lock flag on every selected scene object
// the user may lock (owned, unowned, or any object for the DM). Reports
// whether any object actually changed, aggregated rather than per-id.
func setLockedOnSelection(scene []SceneObject, entry *SelectionEntry, userID string, isDM, locked bool) bool {
	changed := false
	for _, id := range entry.ids() {
		obj := findSceneObject(scene, id)
		if obj == nil {
			continue
		}
		if !isDM && obj.Owner != "" && obj.Owner != userID {
			continue
		}
		if obj.Locked != locked {
			obj.Locked = locked
			changed = true
		}
	}
	return changed
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
