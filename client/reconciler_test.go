package client

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wildshape/server"
)

func marshal(t *testing.T, msg any) []byte {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func snapshotAt(version uint64, tokens ...server.Token) server.SnapshotMessage {
	msg := server.SnapshotMessage{
		Ver:     server.ProtocolVersion,
		Type:    server.MsgSnapshot,
		Version: version,
		RoomID:  "weekly",
		Tokens:  tokens,
	}
	for _, token := range tokens {
		msg.Scene = append(msg.Scene, server.SceneObject{
			ID:        server.SceneID(server.SceneToken, token.ID),
			Type:      server.SceneToken,
			Owner:     token.Owner,
			Transform: server.Transform{X: token.X, Y: token.Y, ScaleX: 1, ScaleY: 1},
		})
	}
	return msg
}

func tokenDelta(version uint64, token server.Token, removed bool) server.TokenUpdatedMessage {
	return server.TokenUpdatedMessage{
		Ver:     server.ProtocolVersion,
		Type:    server.MsgTokenUpdated,
		Version: version,
		Token:   token,
		Removed: removed,
	}
}

func TestSnapshotAdoptedUnconditionally(t *testing.T) {
	r := NewReconciler(nil)

	require.NoError(t, r.Apply(marshal(t, snapshotAt(10, server.Token{ID: "tok-1", Owner: "p1", X: 1, Y: 2}))))
	assert.Equal(t, uint64(10), r.Version())
	assert.Equal(t, 1, r.TokenCount())

	// A snapshot older than the current version still wins; the server is
	// authoritative after a resync.
	require.NoError(t, r.Apply(marshal(t, snapshotAt(4))))
	assert.Equal(t, uint64(4), r.Version())
	assert.Zero(t, r.TokenCount())
}

func TestContiguousDeltaApplies(t *testing.T) {
	r := NewReconciler(nil)
	require.NoError(t, r.Apply(marshal(t, snapshotAt(10, server.Token{ID: "tok-1", Owner: "p1", X: 1, Y: 2}))))

	moved := server.Token{ID: "tok-1", Owner: "p1", X: 50, Y: 60}
	require.NoError(t, r.Apply(marshal(t, tokenDelta(11, moved, false))))

	assert.Equal(t, uint64(11), r.Version())
	got, ok := r.Token("tok-1")
	require.True(t, ok)
	assert.Equal(t, 50.0, got.X)

	scene := r.Scene()
	require.Len(t, scene, 1)
	assert.Equal(t, 50.0, scene[0].Transform.X)
}

func TestStaleDeltaDropped(t *testing.T) {
	r := NewReconciler(nil)
	require.NoError(t, r.Apply(marshal(t, snapshotAt(10, server.Token{ID: "tok-1", X: 1}))))

	stale := server.Token{ID: "tok-1", X: 999}
	require.NoError(t, r.Apply(marshal(t, tokenDelta(10, stale, false))))
	require.NoError(t, r.Apply(marshal(t, tokenDelta(3, stale, false))))

	got, _ := r.Token("tok-1")
	assert.Equal(t, 1.0, got.X)
	assert.Equal(t, uint64(10), r.Version())
}

func TestGapFiresSingleResyncRequest(t *testing.T) {
	var requests []uint64
	r := NewReconciler(func(lastVersion uint64) { requests = append(requests, lastVersion) })
	require.NoError(t, r.Apply(marshal(t, snapshotAt(10))))

	// Version 12 skips 11: this is a gap.
	require.NoError(t, r.Apply(marshal(t, tokenDelta(12, server.Token{ID: "tok-1"}, false))))
	require.NoError(t, r.Apply(marshal(t, tokenDelta(13, server.Token{ID: "tok-1"}, false))))

	require.Equal(t, []uint64{10}, requests, "repeated gaps must not spam resync requests")
	assert.True(t, r.NeedsResync())

	// The snapshot answer clears the pending flag.
	require.NoError(t, r.Apply(marshal(t, snapshotAt(13))))
	assert.False(t, r.NeedsResync())

	// A fresh gap afterwards may request again.
	require.NoError(t, r.Apply(marshal(t, tokenDelta(20, server.Token{ID: "tok-1"}, false))))
	assert.Equal(t, []uint64{10, 13}, requests)
}

func TestContiguousDeltaClearsPendingResync(t *testing.T) {
	var requests int
	r := NewReconciler(func(uint64) { requests++ })
	require.NoError(t, r.Apply(marshal(t, snapshotAt(10))))

	require.NoError(t, r.Apply(marshal(t, tokenDelta(12, server.Token{ID: "tok-1"}, false))))
	require.True(t, r.NeedsResync())

	// Replayed frames arrive in order and close the gap without a snapshot.
	require.NoError(t, r.Apply(marshal(t, tokenDelta(11, server.Token{ID: "tok-1"}, false))))
	require.NoError(t, r.Apply(marshal(t, tokenDelta(12, server.Token{ID: "tok-1"}, false))))

	assert.False(t, r.NeedsResync())
	assert.Equal(t, uint64(12), r.Version())
	assert.Equal(t, 1, requests)
}

func TestTokenRemovalDelta(t *testing.T) {
	r := NewReconciler(nil)
	require.NoError(t, r.Apply(marshal(t, snapshotAt(10, server.Token{ID: "tok-1"}, server.Token{ID: "tok-2"}))))

	require.NoError(t, r.Apply(marshal(t, tokenDelta(11, server.Token{ID: "tok-1"}, true))))

	assert.Equal(t, 1, r.TokenCount())
	_, ok := r.Token("tok-1")
	assert.False(t, ok)
	assert.Len(t, r.Scene(), 1)
}

func TestSelectionDelta(t *testing.T) {
	r := NewReconciler(nil)
	require.NoError(t, r.Apply(marshal(t, snapshotAt(10))))

	entry := &server.SelectionEntry{Mode: server.SelectionSingle, ObjectID: "token:tok-1"}
	require.NoError(t, r.Apply(marshal(t, server.SelectionUpdatedMessage{
		Ver: server.ProtocolVersion, Type: server.MsgSelectionUpdated,
		Version: 11, UserID: "p1", Selection: entry,
	})))
	require.NotNil(t, r.Selection("p1"))

	require.NoError(t, r.Apply(marshal(t, server.SelectionUpdatedMessage{
		Ver: server.ProtocolVersion, Type: server.MsgSelectionUpdated,
		Version: 12, UserID: "p1",
	})))
	assert.Nil(t, r.Selection("p1"))
}

func TestAssetCachePersistsAcrossSnapshots(t *testing.T) {
	r := NewReconciler(nil)

	first := snapshotAt(10)
	first.AssetIDs = []string{"sha-1"}
	first.Assets = map[string]string{"sha-1": "data:image/png;base64,AAAA"}
	require.NoError(t, r.Apply(marshal(t, first)))

	payload, ok := r.Asset("sha-1")
	require.True(t, ok)
	assert.NotEmpty(t, payload)
	assert.Empty(t, r.MissingAssets())

	// Later snapshots reference the asset by id only; the cache fills the gap.
	second := snapshotAt(11)
	second.AssetIDs = []string{"sha-1", "sha-2"}
	require.NoError(t, r.Apply(marshal(t, second)))

	_, ok = r.Asset("sha-1")
	assert.True(t, ok)
	assert.Equal(t, []string{"sha-2"}, r.MissingAssets())
}

func TestAckAndStatusFrames(t *testing.T) {
	r := NewReconciler(nil)

	require.NoError(t, r.Apply(marshal(t, server.AuthResultMessage{
		Ver: server.ProtocolVersion, Type: server.MsgAuthOK,
		PlayerID: "p1", RoomID: "weekly", IsDM: false,
	})))
	assert.Equal(t, "p1", r.PlayerID())
	assert.False(t, r.IsDM())

	require.NoError(t, r.Apply(marshal(t, server.DMStatusMessage{
		Ver: server.ProtocolVersion, Type: server.MsgDMStatus, IsDM: true,
	})))
	assert.True(t, r.IsDM())

	require.NoError(t, r.Apply(marshal(t, server.CommandAckMessage{
		Ver: server.ProtocolVersion, Type: server.MsgCommandAck, Seq: 12,
	})))
	require.NoError(t, r.Apply(marshal(t, server.CommandAckMessage{
		Ver: server.ProtocolVersion, Type: server.MsgCommandAck, Seq: 7,
	})))
	assert.Equal(t, uint64(12), r.LastAckedSeq(), "acks never regress")

	require.NoError(t, r.Apply(marshal(t, server.HeartbeatAckMessage{
		Ver: server.ProtocolVersion, Type: server.MsgHeartbeatAck, RTTMillis: 42,
	})))
	assert.Equal(t, int64(42), r.LastRTT())

	require.NoError(t, r.Apply(marshal(t, server.ResyncNackMessage{
		Ver: server.ProtocolVersion, Type: server.MsgResyncNack, Requested: 3,
	})))
	assert.Equal(t, 1, r.NackCount())
}

func TestUnknownFrameKindsIgnored(t *testing.T) {
	r := NewReconciler(nil)
	require.NoError(t, r.Apply([]byte(`{"t":"future-frame","version":99}`)))
	assert.Zero(t, r.Version())

	err := r.Apply([]byte(`{broken`))
	require.Error(t, err)
}
