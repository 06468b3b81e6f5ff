package server

// moveToken updates a token's position. Returns the token and whether state
// changed; a missing token or identical position is a no-op.
func (s *RoomState) moveToken(id string, x, y float64) (*Token, bool) {
	token, ok := s.Tokens[id]
	if !ok {
		return nil, false
	}
	if token.X == x && token.Y == y {
		return token, false
	}
	token.X = x
	token.Y = y
	return token, true
}

func (s *RoomState) recolorToken(id string, colorIndex int) (*Token, bool) {
	token, ok := s.Tokens[id]
	if !ok {
		return nil, false
	}
	if token.ColorIndex == colorIndex {
		return token, false
	}
	token.ColorIndex = colorIndex
	return token, true
}

func (s *RoomState) setTokenColor(id, color string) (*Token, bool) {
	token, ok := s.Tokens[id]
	if !ok {
		return nil, false
	}
	if token.Color == color {
		return token, false
	}
	token.Color = color
	return token, true
}

func (s *RoomState) setTokenSize(id string, size float64) (*Token, bool) {
	token, ok := s.Tokens[id]
	if !ok || size <= 0 {
		return nil, false
	}
	if token.Size == size {
		return token, false
	}
	token.Size = size
	return token, true
}

// setTokenImage stores the image payload as an asset and points the token at it.
func (s *RoomState) setTokenImage(id, imageData string) (*Token, bool) {
	token, ok := s.Tokens[id]
	if !ok || imageData == "" {
		return nil, false
	}
	token.AssetID = s.storeAsset(imageData)
	return token, true
}

// linkToken associates a token with a character sheet. An empty character id
// clears the link; a non-empty id must reference an existing character.
func (s *RoomState) linkToken(id, characterID string) (*Token, bool) {
	token, ok := s.Tokens[id]
	if !ok {
		return nil, false
	}
	if characterID != "" {
		if _, exists := s.Characters[characterID]; !exists {
			return nil, false
		}
	}
	if token.CharacterID == characterID {
		return token, false
	}
	token.CharacterID = characterID
	return token, true
}

// deleteToken removes the token and purges it from every selection. The
// purged user ids are returned so the caller can pick a broadcast wide
// enough to convey the selection change.
func (s *RoomState) deleteToken(id string) (*Token, []string, bool) {
	token, ok := s.Tokens[id]
	if !ok {
		return nil, nil, false
	}
	delete(s.Tokens, id)
	purged := s.removeObjectFromSelections(SceneID(SceneToken, id))
	return token, purged, true
}

// clearTokens removes every token. Selections referencing them are purged.
func (s *RoomState) clearTokens() bool {
	if len(s.Tokens) == 0 {
		return false
	}
	for id := range s.Tokens {
		s.removeObjectFromSelections(SceneID(SceneToken, id))
	}
	s.Tokens = make(map[string]*Token)
	return true
}

// createCharacter mints a character (or NPC) and returns it.
func (s *RoomState) createCharacter(owner, name string, hp, maxHP int, isNPC bool) *Character {
	character := &Character{
		ID:    newEntityID(),
		Owner: owner,
		Name:  name,
		HP:    hp,
		MaxHP: maxHP,
		IsNPC: isNPC,
	}
	if character.Name == "" {
		if isNPC {
			character.Name = "NPC"
		} else {
			character.Name = "Character"
		}
	}
	s.Characters[character.ID] = character
	return character
}

func (s *RoomState) renameCharacter(id, name string) bool {
	character, ok := s.Characters[id]
	if !ok || name == "" || character.Name == name {
		return false
	}
	character.Name = name
	return true
}

// updateCharacter applies a partial edit. Absent fields stay untouched; HP
// rides a pointer because zero is a legal value for a downed character.
func (s *RoomState) updateCharacter(id, name string, hp *int, maxHP int) bool {
	character, ok := s.Characters[id]
	if !ok {
		return false
	}
	changed := false
	if name != "" && character.Name != name {
		character.Name = name
		changed = true
	}
	if maxHP > 0 && character.MaxHP != maxHP {
		character.MaxHP = maxHP
		changed = true
	}
	if hp != nil && character.HP != *hp {
		character.HP = *hp
		changed = true
	}
	return changed
}

// deleteCharacter removes the character and unlinks any tokens pointing at it.
func (s *RoomState) deleteCharacter(id string) bool {
	if _, ok := s.Characters[id]; !ok {
		return false
	}
	delete(s.Characters, id)
	for _, token := range s.Tokens {
		if token.CharacterID == id {
			token.CharacterID = ""
		}
	}
	for i, orderID := range s.Combat.Order {
		if orderID == id {
			s.Combat.Order = append(s.Combat.Order[:i], s.Combat.Order[i+1:]...)
			if s.Combat.Cursor >= len(s.Combat.Order) {
				s.Combat.Cursor = 0
			}
			break
		}
	}
	return true
}

// placeNPCToken creates a token bound to an NPC character at the given spot.
func (s *RoomState) placeNPCToken(owner, characterID string, x, y float64) (*Token, bool) {
	character, ok := s.Characters[characterID]
	if !ok || !character.IsNPC {
		return nil, false
	}
	token := &Token{
		ID:          newEntityID(),
		Owner:       owner,
		X:           x,
		Y:           y,
		Size:        defaultTokenSize,
		CharacterID: characterID,
	}
	s.Tokens[token.ID] = token
	return token, true
}

func (s *RoomState) createProp(owner, label string, x, y, scale float64, imageData string) *Prop {
	prop := &Prop{
		ID:    newEntityID(),
		Owner: owner,
		Label: label,
		X:     x,
		Y:     y,
		Scale: scale,
	}
	if prop.Scale <= 0 {
		prop.Scale = 1
	}
	if imageData != "" {
		prop.AssetID = s.storeAsset(imageData)
	}
	s.Props[prop.ID] = prop
	return prop
}

func (s *RoomState) updateProp(id, label string, x, y, scale float64, imageData string) bool {
	prop, ok := s.Props[id]
	if !ok {
		return false
	}
	changed := false
	if label != "" && prop.Label != label {
		prop.Label = label
		changed = true
	}
	if prop.X != x || prop.Y != y {
		prop.X = x
		prop.Y = y
		changed = true
	}
	if scale > 0 && prop.Scale != scale {
		prop.Scale = scale
		changed = true
	}
	if imageData != "" {
		prop.AssetID = s.storeAsset(imageData)
		changed = true
	}
	return changed
}

func (s *RoomState) deleteProp(id string) bool {
	if _, ok := s.Props[id]; !ok {
		return false
	}
	delete(s.Props, id)
	s.removeObjectFromSelections(SceneID(SceneProp, id))
	return true
}

// setStagingZone replaces the staging zone extent.
func (s *RoomState) setStagingZone(zone StagingZone) bool {
	if s.Staging == zone {
		return false
	}
	s.Staging = zone
	return true
}

// setMapBackground stores a new background image asset.
func (s *RoomState) setMapBackground(imageData string, width, height float64) bool {
	if imageData == "" {
		return false
	}
	s.Background = MapBackground{
		AssetID: s.storeAsset(imageData),
		Width:   width,
		Height:  height,
	}
	return true
}
