package intake

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wildshape/server"
)

func TestDecodeMoveCommand(t *testing.T) {
	cmd, err := Decode([]byte(`{"t":"move","seq":9,"tokenId":"tok-1","x":120.5,"y":-4}`))
	require.NoError(t, err)

	assert.Equal(t, server.CommandMove, cmd.Type)
	assert.Equal(t, uint64(9), cmd.Seq)
	require.NotNil(t, cmd.Move)
	assert.Equal(t, "tok-1", cmd.Move.TokenID)
	assert.Equal(t, 120.5, cmd.Move.X)
	assert.Equal(t, -4.0, cmd.Move.Y)
}

func TestDecodeAuthenticateCommand(t *testing.T) {
	cmd, err := Decode([]byte(`{"t":"authenticate","roomId":"weekly","secret":"s3cret","name":"Aila"}`))
	require.NoError(t, err)

	require.NotNil(t, cmd.Auth)
	assert.Equal(t, "weekly", cmd.Auth.RoomID)
	assert.Equal(t, "s3cret", cmd.Auth.Secret)
	assert.Equal(t, "Aila", cmd.Auth.Name)
}

func TestDecodeNeverTrustsClientIdentity(t *testing.T) {
	cmd, err := Decode([]byte(`{"t":"move-pointer","x":1,"y":2,"actorId":"admin"}`))
	require.NoError(t, err)
	assert.Empty(t, cmd.ActorID, "actor identity must come from the connection, not the frame")
	assert.True(t, cmd.IssuedAt.IsZero())
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	frame := make([]byte, MaxMessageBytes+1)
	_, err := Decode(frame)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{"t":"move",`))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"t":"drop-table"}`))
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestDecodeRejectsMissingType(t *testing.T) {
	_, err := Decode([]byte(`{"x":1}`))
	require.ErrorIs(t, err, ErrInvalid)
}

func TestDecodeUpdateNPCDistinguishesOmittedHP(t *testing.T) {
	cmd, err := Decode([]byte(`{"t":"update-npc","characterId":"c1","name":"Grum"}`))
	require.NoError(t, err)
	require.Nil(t, cmd.Character.HP)

	cmd, err = Decode([]byte(`{"t":"update-npc","characterId":"c1","hp":0}`))
	require.NoError(t, err)
	require.NotNil(t, cmd.Character.HP)
	require.Equal(t, 0, *cmd.Character.HP)
}

func TestDecodeRejectsNewerProtocolVersion(t *testing.T) {
	_, err := Decode([]byte(`{"t":"move","ver":99,"tokenId":"tok-1","x":1,"y":2}`))
	require.ErrorIs(t, err, ErrVersion)

	_, err = Decode([]byte(`{"t":"move","tokenId":"tok-1","x":1,"y":2}`))
	require.NoError(t, err)
}

func TestDecodeRejectsTooManySelectionIDs(t *testing.T) {
	ids := make([]string, MaxSelectionIDs+1)
	for i := range ids {
		ids[i] = "token:abc"
	}
	payload, err := json.Marshal(map[string]any{"t": "select-multiple", "objectIds": ids, "mode": "replace"})
	require.NoError(t, err)

	_, err = Decode(payload)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestDecodeRejectsBadSelectionMode(t *testing.T) {
	_, err := Decode([]byte(`{"t":"select-multiple","objectIds":["token:a"],"mode":"invert"}`))
	require.ErrorIs(t, err, ErrInvalid)
}

func TestDecodeRejectsOversizedImagePayload(t *testing.T) {
	image := strings.Repeat("A", MaxImageBytes+1)
	payload, err := json.Marshal(map[string]any{"t": "update-token-image", "tokenId": "tok-1", "imageData": image})
	require.NoError(t, err)

	_, err = Decode(payload)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestDecodeSelectionModes(t *testing.T) {
	for _, mode := range []string{"replace", "append", "subtract"} {
		cmd, err := Decode([]byte(`{"t":"select-multiple","objectIds":["token:a"],"mode":"` + mode + `"}`))
		require.NoError(t, err, "mode %s", mode)
		require.NotNil(t, cmd.Selection)
		assert.Equal(t, mode, string(cmd.Selection.Mode))
	}
}

func TestDecodeDrawingStroke(t *testing.T) {
	cmd, err := Decode([]byte(`{"t":"draw","points":[{"x":0,"y":0},{"x":4,"y":4}],"color":"#ff00ff","width":3}`))
	require.NoError(t, err)

	require.NotNil(t, cmd.Drawing)
	assert.Len(t, cmd.Drawing.Points, 2)
	assert.Equal(t, "#ff00ff", cmd.Drawing.Color)
	assert.Equal(t, 3.0, cmd.Drawing.Width)
}
