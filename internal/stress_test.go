package internal_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/lobby-hub/internal"
)

// 壓力測試：驗證註冊表和路由器在高並發下的正確性。
//
// 這些測試關注的不是效能數字，而是並發不變量：
//   - 存活房間之間代碼唯一
//   - 單一空位只能被一個玩家搶到
//   - 並發創建 / 加入 / 離開不會讓雙索引失去同步

// TestStress_ConcurrentCreateRoom 並發創建房間：代碼不碰撞
func TestStress_ConcurrentCreateRoom(t *testing.T) {
	if testing.Short() {
		t.Skip("跳過壓力測試（short 模式）")
	}

	registry := internal.NewRegistry(testLogger())

	const goroutines = 50
	const roomsPerGoroutine = 20

	var wg sync.WaitGroup
	codes := make(chan string, goroutines*roomsPerGoroutine)

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < roomsPerGoroutine; i++ {
				room := registry.CreateRoom(fmt.Sprintf("host_%d_%d", g, i), "")
				codes <- room.Code
			}
		}(g)
	}
	wg.Wait()
	close(codes)

	seen := make(map[string]bool)
	for code := range codes {
		assert.False(t, seen[code], "代碼重複: %s", code)
		seen[code] = true
	}
	assert.Len(t, seen, goroutines*roomsPerGoroutine)

	stats := registry.Stats()
	assert.Equal(t, goroutines*roomsPerGoroutine, stats["total_rooms"])
}

// TestStress_ConcurrentJoin 並發搶同一個空位：恰好一人成功
func TestStress_ConcurrentJoin(t *testing.T) {
	if testing.Short() {
		t.Skip("跳過壓力測試（short 模式）")
	}

	const rounds = 50
	const contenders = 20

	for round := 0; round < rounds; round++ {
		registry := internal.NewRegistry(testLogger())
		code := registry.CreateRoom("h1", "").Code

		var successes atomic.Int64
		var wg sync.WaitGroup

		for c := 0; c < contenders; c++ {
			wg.Add(1)
			go func(c int) {
				defer wg.Done()
				player := &internal.PlayerInfo{ID: fmt.Sprintf("guest_%d", c)}
				if _, ok := registry.JoinRoomByCode(code, player); ok {
					successes.Add(1)
				}
			}(c)
		}
		wg.Wait()

		require.Equal(t, int64(1), successes.Load(), "第 %d 輪有多於一人搶到空位", round)

		room, ok := registry.GetRoomByCode(code)
		require.True(t, ok)
		require.Len(t, room.Players, 2)
	}
}

// TestStress_ConcurrentCreateAndRemove 並發創建與解散：雙索引保持同步
func TestStress_ConcurrentCreateAndRemove(t *testing.T) {
	if testing.Short() {
		t.Skip("跳過壓力測試（short 模式）")
	}

	registry := internal.NewRegistry(testLogger())

	const goroutines = 30
	const iterations = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				hostID := fmt.Sprintf("host_%d_%d", g, i)
				room := registry.CreateRoom(hostID, "")

				// 房主立刻離開 → 房間解散
				after, found := registry.RemovePlayerFromRoom(room.ID, hostID)
				assert.True(t, found)
				assert.Nil(t, after)
			}
		}(g)
	}
	wg.Wait()

	stats := registry.Stats()
	assert.Equal(t, 0, stats["total_rooms"])
	assert.Equal(t, 0, stats["total_players"])
}

// TestStress_ConcurrentSessionGuard 並發註冊同名會話：守衛不崩潰、終態一致
func TestStress_ConcurrentSessionGuard(t *testing.T) {
	if testing.Short() {
		t.Skip("跳過壓力測試（short 模式）")
	}

	guard := internal.NewSessionGuard(testLogger())

	const goroutines = 50
	conns := make([]*fakeConn, goroutines)
	for i := range conns {
		conns[i] = newFakeConn(fmt.Sprintf("conn_%d", i))
	}

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(conn *fakeConn) {
			defer wg.Done()
			guard.RegisterActiveSession("alice", conn)
		}(conn)
	}
	wg.Wait()

	// 最後贏家是其中一條連接：恰好一條看不到活躍會話（自己）
	var owners int
	for _, conn := range conns {
		if !guard.HasActiveSession("alice", conn) {
			owners++
		}
	}
	assert.Equal(t, 1, owners)
}

// TestStress_ConcurrentRouterMessages 並發灌消息進路由器
//
// 混合創建 / 加入 / 未識別類型的轉發，驗證沒有 data race
// 也沒有 panic（配合 -race 執行最有意義）。
func TestStress_ConcurrentRouterMessages(t *testing.T) {
	if testing.Short() {
		t.Skip("跳過壓力測試（short 模式）")
	}

	router, registry, _, _, hub := testRouter(t)

	const goroutines = 30
	conns := make([]*fakeConn, goroutines)
	for i := range conns {
		conns[i] = newFakeConn(fmt.Sprintf("conn_%d", i))
	}
	hub.add(conns...)

	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func(i int, conn *fakeConn) {
			defer wg.Done()

			create := fmt.Sprintf(
				`{"type":"roomCreate","correlationId":"c%d","hostId":"h%d"}`, i, i)
			router.HandleMessage(conn, []byte(create))

			router.HandleMessage(conn, []byte(`{"type":"move","payload":{"x":1}}`))
			router.HandleMessage(conn, []byte(`{"type":"roomJoin","correlationId":"j","code":"ZZZZZZ","playerId":"px"}`))
		}(i, conn)
	}
	wg.Wait()

	// 每條連接都成功創建了自己的房間
	stats := registry.Stats()
	assert.Equal(t, goroutines, stats["total_rooms"])

	// 之後全部斷線 → 所有房間解散
	for _, conn := range conns {
		conn.close()
	}
	var closeWg sync.WaitGroup
	for _, conn := range conns {
		closeWg.Add(1)
		go func(conn *fakeConn) {
			defer closeWg.Done()
			router.HandleClose(conn)
		}(conn)
	}
	closeWg.Wait()

	stats = registry.Stats()
	assert.Equal(t, 0, stats["total_rooms"])
}
