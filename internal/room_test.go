package internal_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/lobby-hub/internal"
)

// TestRoom_HasPlayer 測試成員查詢
func TestRoom_HasPlayer(t *testing.T) {
	room := &internal.Room{
		ID:     "r1",
		HostID: "h1",
		Players: []*internal.PlayerInfo{
			{ID: "h1", Status: internal.StatusHost},
			{ID: "g1", Status: internal.StatusGuest},
		},
	}

	assert.True(t, room.HasPlayer("h1"))
	assert.True(t, room.HasPlayer("g1"))
	assert.False(t, room.HasPlayer("nope"))
	assert.False(t, room.HasPlayer(""))
}

// TestRoom_Snapshot 測試快照的複製語義
//
// 快照必須是深複製：修改快照不能影響原房間，反之亦然。
func TestRoom_Snapshot(t *testing.T) {
	room := &internal.Room{
		ID:        "r1",
		Code:      "ABC123",
		HostID:    "h1",
		CreatedAt: time.Now(),
		Players: []*internal.PlayerInfo{
			{ID: "h1", Username: "alice", Name: "alice", Status: internal.StatusHost},
		},
	}

	snap := room.Snapshot()
	require.NotSame(t, room, snap)
	assert.Equal(t, room.ID, snap.ID)
	assert.Equal(t, room.Code, snap.Code)
	assert.Equal(t, room.HostID, snap.HostID)
	assert.Equal(t, room.CreatedAt, snap.CreatedAt)
	require.Len(t, snap.Players, 1)

	// 成員指標也被複製
	require.NotSame(t, room.Players[0], snap.Players[0])

	// 改快照不影響原房間
	snap.Players[0].Username = "mallory"
	snap.Players = append(snap.Players, &internal.PlayerInfo{ID: "g1"})
	assert.Equal(t, "alice", room.Players[0].Username)
	assert.Len(t, room.Players, 1)
}

// TestRoom_HostIsFirst 只要房主還在，成員列表第一位一定是房主
func TestRoom_HostIsFirst(t *testing.T) {
	registry := internal.NewRegistry(testLogger())
	room := registry.CreateRoom("h1", "alice")

	joined, ok := registry.JoinRoomByCode(room.Code, &internal.PlayerInfo{ID: "g1", Username: "bob"})
	require.True(t, ok)

	require.Len(t, joined.Players, 2)
	assert.Equal(t, joined.HostID, joined.Players[0].ID)
	assert.Equal(t, internal.StatusHost, joined.Players[0].Status)
}
