package server

import "testing"

func TestSelectObjectReplacesSelection(t *testing.T) {
	state := NewRoomState("room")

	if !state.selectObject("p1", "token:a") {
		t.Fatalf("expected first selection to report a change")
	}
	if state.selectObject("p1", "token:a") {
		t.Fatalf("expected reselecting the same object to be a no-op")
	}
	if !state.selectObject("p1", "token:b") {
		t.Fatalf("expected selecting a different object to report a change")
	}
	entry := state.Selections["p1"]
	if entry.Mode != SelectionSingle || entry.ObjectID != "token:b" {
		t.Fatalf("unexpected selection entry %+v", entry)
	}
}

func TestSelectMultipleSubtractToEmptyCollapsesToDeselect(t *testing.T) {
	state := NewRoomState("room")
	state.selectMultiple("p1", []string{"token:a", "token:b"}, MultiSelectReplace)

	if !state.selectMultiple("p1", []string{"token:a", "token:b"}, MultiSelectSubtract) {
		t.Fatalf("expected subtract to report a change")
	}
	if _, ok := state.Selections["p1"]; ok {
		t.Fatalf("expected an empty subtraction result to remove the entry entirely")
	}
}

func TestSelectMultipleAppendDeduplicatesPreservingOrder(t *testing.T) {
	state := NewRoomState("room")
	state.selectMultiple("p1", []string{"token:a", "token:b"}, MultiSelectReplace)
	state.selectMultiple("p1", []string{"token:b", "token:c", "token:a"}, MultiSelectAppend)

	entry := state.Selections["p1"]
	want := []string{"token:a", "token:b", "token:c"}
	if !sameIDs(entry.ObjectIDs, want) {
		t.Fatalf("expected %v, got %v", want, entry.ObjectIDs)
	}
}

func TestSelectMultipleCapsAtLimit(t *testing.T) {
	state := NewRoomState("room")
	ids := make([]string, maxSelectionSize+20)
	for i := range ids {
		ids[i] = SceneID(SceneToken, newEntityID())
	}
	state.selectMultiple("p1", ids, MultiSelectReplace)

	entry := state.Selections["p1"]
	if len(entry.ObjectIDs) != maxSelectionSize {
		t.Fatalf("expected selection capped at %d, got %d", maxSelectionSize, len(entry.ObjectIDs))
	}
}

func TestRemoveObjectFromSelectionsPurgesAllUsers(t *testing.T) {
	state := NewRoomState("room")
	state.selectObject("p1", "token:a")
	state.selectMultiple("p2", []string{"token:a", "token:b"}, MultiSelectReplace)
	state.selectObject("p3", "token:c")

	changed := state.removeObjectFromSelections("token:a")
	if len(changed) != 2 {
		t.Fatalf("expected 2 users affected, got %v", changed)
	}
	if _, ok := state.Selections["p1"]; ok {
		t.Fatalf("expected p1's single selection to be removed")
	}
	if got := state.Selections["p2"].ObjectIDs; !sameIDs(got, []string{"token:b"}) {
		t.Fatalf("expected p2 left with token:b, got %v", got)
	}
	if state.Selections["p3"].ObjectID != "token:c" {
		t.Fatalf("expected p3's selection untouched")
	}
}

func TestSetLockedOnSelectionRespectsOwnership(t *testing.T) {
	state := NewRoomState("room")
	state.Tokens["mine"] = &Token{ID: "mine", Owner: "p1"}
	state.Tokens["theirs"] = &Token{ID: "theirs", Owner: "p2"}
	state.Props["free"] = &Prop{ID: "free", Scale: 1}
	scene := RebuildScene(nil, state, nil)

	entry := &SelectionEntry{Mode: SelectionMultiple, ObjectIDs: []string{
		"token:mine", "token:theirs", "prop:free",
	}}

	if !setLockedOnSelection(scene, entry, "p1", false, true) {
		t.Fatalf("expected lock to change at least one object")
	}
	if obj := findSceneObject(scene, "token:mine"); !obj.Locked {
		t.Fatalf("expected own token to lock")
	}
	if obj := findSceneObject(scene, "token:theirs"); obj.Locked {
		t.Fatalf("expected someone else's token to stay unlocked")
	}
	if obj := findSceneObject(scene, "prop:free"); !obj.Locked {
		t.Fatalf("expected unowned object to lock")
	}

	// The DM may lock anything.
	if !setLockedOnSelection(scene, entry, "dm", true, true) {
		t.Fatalf("expected DM lock to change the remaining object")
	}
	if obj := findSceneObject(scene, "token:theirs"); !obj.Locked {
		t.Fatalf("expected DM to lock the foreign token")
	}
}

func TestSetLockedOnSelectionAggregatesNoChange(t *testing.T) {
	state := NewRoomState("room")
	state.Tokens["mine"] = &Token{ID: "mine", Owner: "p1"}
	scene := RebuildScene(nil, state, nil)
	entry := &SelectionEntry{Mode: SelectionSingle, ObjectID: "token:mine"}

	setLockedOnSelection(scene, entry, "p1", false, true)
	if setLockedOnSelection(scene, entry, "p1", false, true) {
		t.Fatalf("expected locking an already locked object to report no change")
	}
}
