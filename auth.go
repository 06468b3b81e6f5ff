package server

// dmOnlyCommands is the explicit enumerated set of command kinds only the DM
// may execute.
var dmOnlyCommands = map[CommandType]struct{}{
	CommandCreateCharacter:  {},
	CommandCreateNPC:        {},
	CommandUpdateNPC:        {},
	CommandDeleteNPC:        {},
	CommandPlaceNPCToken:    {},
	CommandCreateProp:       {},
	CommandUpdateProp:       {},
	CommandDeleteProp:       {},
	CommandClearTokens:      {},
	CommandClearDrawings:    {},
	CommandStartCombat:      {},
	CommandEndCombat:        {},
	CommandNextTurn:         {},
	CommandPreviousTurn:     {},
	CommandClearInitiative:  {},
	CommandLoadSession:      {},
	CommandSetStagingZone:   {},
	CommandSetMapBackground: {},
	CommandSetRoomPassword:  {},
	CommandSetDMPassword:    {},
}

// dmOverrideCommands is the narrower subset of ownership-scoped commands the
// DM may run against entities they do not own. Deliberately excludes move,
// update-token-image, and link-token: the DM moderates appearance and
// removal, not arbitrary state edits.
var dmOverrideCommands = map[CommandType]struct{}{
	CommandSetTokenSize:  {},
	CommandSetTokenColor: {},
	CommandRecolor:       {},
	CommandDeleteToken:   {},
}

// authorize decides whether sender may execute cmd against the current room
// state. Denial is silent at the protocol level; the dispatcher logs it.
func authorize(state *RoomState, cmd Command, senderID string, isDM bool) bool {
	if _, dmOnly := dmOnlyCommands[cmd.Type]; dmOnly {
		return isDM
	}

	switch cmd.Type {
	case CommandMove:
		if cmd.Move == nil {
			return false
		}
		return ownsToken(state, cmd.Move.TokenID, senderID)

	case CommandRecolor, CommandDeleteToken, CommandSetTokenSize, CommandSetTokenColor,
		CommandUpdateTokenImage, CommandLinkToken:
		if cmd.Token == nil {
			return false
		}
		if ownsToken(state, cmd.Token.TokenID, senderID) {
			return true
		}
		if _, override := dmOverrideCommands[cmd.Type]; override && isDM {
			return true
		}
		return false

	case CommandRenameCharacter:
		if cmd.Character == nil {
			return false
		}
		character, ok := state.Characters[cmd.Character.CharacterID]
		if !ok {
			// Missing entities fall through to the domain handler, which
			// reports no effect; denying here would leak existence.
			return true
		}
		// DM may rename any sheet: names are table-visible and renaming
		// is moderation, like deleting a drawing or a token.
		return character.Owner == senderID || isDM

	case CommandSetInitiative:
		if cmd.Combat == nil {
			return false
		}
		character, ok := state.Characters[cmd.Combat.CharacterID]
		if !ok {
			return true
		}
		return character.Owner == senderID || isDM

	case CommandMoveDrawing, CommandDeleteDrawing, CommandErasePartial:
		if cmd.Drawing == nil {
			return false
		}
		drawing := findDrawing(state, cmd.Drawing.DrawingID)
		if drawing == nil {
			return true
		}
		return drawing.Owner == senderID || isDM

	default:
		return true
	}
}

func ownsToken(state *RoomState, tokenID, senderID string) bool {
	token, ok := state.Tokens[tokenID]
	if !ok {
		// Same reasoning as characters: let the domain handler no-op.
		return true
	}
	return token.Owner == senderID
}
