package internal_test

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/koopa0/lobby-hub/internal"
)

// 創建測試用的 logger
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // 測試時只顯示錯誤
	}))
}

// fakeConn 測試用連接：記錄收到的每一幀
type fakeConn struct {
	id   string
	open bool
	mu   sync.Mutex
	sent [][]byte
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, open: true}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.sent = append(c.sent, cp)
	return nil
}

func (c *fakeConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
}

// frames 收到的所有幀（解析成 map）
func (c *fakeConn) frames(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]map[string]any, 0, len(c.sent))
	for _, data := range c.sent {
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		result = append(result, m)
	}
	return result
}

// lastFrame 最後一幀（沒有任何幀時測試失敗）
func (c *fakeConn) lastFrame(t *testing.T) map[string]any {
	t.Helper()
	frames := c.frames(t)
	require.NotEmpty(t, frames, "連接 %s 沒有收到任何幀", c.id)
	return frames[len(frames)-1]
}

// frameCount 收到的幀數
func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// fakeHub 測試用扇出：發給除發送者外的所有開啟連接
type fakeHub struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (h *fakeHub) add(conns ...*fakeConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns = append(h.conns, conns...)
}

func (h *fakeHub) Broadcast(sender internal.Conn, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, conn := range h.conns {
		if sender != nil && conn.ID() == sender.ID() {
			continue
		}
		if !conn.IsOpen() {
			continue
		}
		_ = conn.Send(data)
	}
}

// testRouter 組裝一套完整的路由器與其依賴
func testRouter(t *testing.T) (*internal.Router, *internal.Registry, *internal.SessionGuard, *internal.IdentityStore, *fakeHub) {
	t.Helper()

	logger := testLogger()
	registry := internal.NewRegistry(logger)
	sessions := internal.NewSessionGuard(logger)
	identities := internal.NewIdentityStore()
	hub := &fakeHub{}
	router := internal.NewRouter(registry, sessions, identities, hub, logger)

	return router, registry, sessions, identities, hub
}
