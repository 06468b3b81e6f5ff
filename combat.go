package server

import "sort"

// setInitiative assigns an initiative value to a character.
func (s *RoomState) setInitiative(characterID string, initiative int) bool {
	character, ok := s.Characters[characterID]
	if !ok || character.Initiative == initiative {
		return false
	}
	character.Initiative = initiative
	return true
}

// startCombat builds the turn order from current initiative values, highest
// first with stable id tiebreak, and resets the cursor.
func (s *RoomState) startCombat() bool {
	order := make([]string, 0, len(s.Characters))
	for id := range s.Characters {
		order = append(order, id)
	}
	if len(order) == 0 {
		return false
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := s.Characters[order[i]], s.Characters[order[j]]
		if a.Initiative != b.Initiative {
			return a.Initiative > b.Initiative
		}
		return a.ID < b.ID
	})
	s.Combat = CombatState{Active: true, Order: order, Cursor: 0, Round: 1}
	return true
}

func (s *RoomState) endCombat() bool {
	if !s.Combat.Active {
		return false
	}
	s.Combat = CombatState{}
	return true
}

// nextTurn advances the cursor, incrementing the round on wraparound.
func (s *RoomState) nextTurn() bool {
	if !s.Combat.Active || len(s.Combat.Order) == 0 {
		return false
	}
	s.Combat.Cursor++
	if s.Combat.Cursor >= len(s.Combat.Order) {
		s.Combat.Cursor = 0
		s.Combat.Round++
	}
	return true
}

// previousTurn steps the cursor back, never before round one, turn one.
func (s *RoomState) previousTurn() bool {
	if !s.Combat.Active || len(s.Combat.Order) == 0 {
		return false
	}
	if s.Combat.Cursor == 0 {
		if s.Combat.Round <= 1 {
			return false
		}
		s.Combat.Round--
		s.Combat.Cursor = len(s.Combat.Order) - 1
		return true
	}
	s.Combat.Cursor--
	return true
}

// clearAllInitiative zeroes every character's initiative and ends combat.
func (s *RoomState) clearAllInitiative() bool {
	changed := false
	for _, character := range s.Characters {
		if character.Initiative != 0 {
			character.Initiative = 0
			changed = true
		}
	}
	if s.Combat.Active || len(s.Combat.Order) > 0 {
		s.Combat = CombatState{}
		changed = true
	}
	return changed
}
