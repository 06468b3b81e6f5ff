package server

import "time"

// recordDiceRoll appends a resolved roll to the bounded history. The server
// treats formulas and values as opaque; evaluation belongs to the client's
// content layer.
func (s *RoomState) recordDiceRoll(roller, formula string, values []int, total int, now time.Time) DiceRoll {
	roll := DiceRoll{
		ID:       newEntityID(),
		Roller:   roller,
		Formula:  formula,
		Values:   append([]int(nil), values...),
		Total:    total,
		RolledAt: now,
	}
	s.appendDiceRoll(roll)
	return roll
}
