package internal_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/lobby-hub/internal"
)

// 創建帶真實 WebSocket 端點的測試伺服器
func setupWSServer(t *testing.T) (*httptest.Server, *internal.Hub, *internal.AuthService) {
	t.Helper()

	logger := testLogger()
	auth, err := internal.NewAuthService("test-secret", time.Hour, 4, logger)
	require.NoError(t, err)

	registry := internal.NewRegistry(logger)
	sessions := internal.NewSessionGuard(logger)
	identities := internal.NewIdentityStore()
	hub := internal.NewHub(logger)
	router := internal.NewRouter(registry, sessions, identities, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS(router, auth))

	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		hub.Stop()
		server.Close()
	})

	return server, hub, auth
}

// 撥號連上測試伺服器的 WebSocket 端點
func dialWS(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// 讀取下一幀（帶超時，避免測試卡死）
func readWSFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

// TestWebSocket_CreateAndJoin 兩個真實客戶端完成創建與加入
func TestWebSocket_CreateAndJoin(t *testing.T) {
	server, hub, _ := setupWSServer(t)

	connA := dialWS(t, server, "")
	connB := dialWS(t, server, "")

	// 等待兩條連接都註冊完成
	require.Eventually(t, func() bool {
		return hub.ConnectionCount() == 2
	}, time.Second, 10*time.Millisecond)

	// A 創建房間
	require.NoError(t, connA.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"roomCreate","correlationId":"c1","hostId":"h1","username":"alice"}`)))

	created := readWSFrame(t, connA)
	require.Equal(t, "roomCreate_SUCCESS", created["type"])
	code := created["code"].(string)

	// B 透過代碼加入
	joinMsg, err := json.Marshal(map[string]any{
		"type": "roomJoin", "correlationId": "c2", "code": code,
		"playerId": "g1", "username": "bob",
	})
	require.NoError(t, err)
	require.NoError(t, connB.WriteMessage(websocket.TextMessage, joinMsg))

	joined := readWSFrame(t, connB)
	assert.Equal(t, "roomJoin_SUCCESS", joined["type"])
	assert.Len(t, joined["players"].([]any), 2)

	// A 收到 roomUpdate
	update := readWSFrame(t, connA)
	assert.Equal(t, "roomUpdate", update["type"])
	assert.Len(t, update["players"].([]any), 2)
}

// TestWebSocket_HostDisconnect 房主斷線 → 訪客收到 roomClosed
func TestWebSocket_HostDisconnect(t *testing.T) {
	server, hub, _ := setupWSServer(t)

	connA := dialWS(t, server, "")
	connB := dialWS(t, server, "")
	require.Eventually(t, func() bool {
		return hub.ConnectionCount() == 2
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, connA.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"roomCreate","correlationId":"c1","hostId":"h1"}`)))
	created := readWSFrame(t, connA)
	roomID := created["roomId"].(string)
	code := created["code"].(string)

	joinMsg, err := json.Marshal(map[string]any{
		"type": "roomJoin", "correlationId": "c2", "code": code, "playerId": "g1",
	})
	require.NoError(t, err)
	require.NoError(t, connB.WriteMessage(websocket.TextMessage, joinMsg))
	require.Equal(t, "roomJoin_SUCCESS", readWSFrame(t, connB)["type"])
	require.Equal(t, "roomUpdate", readWSFrame(t, connA)["type"])

	// 房主直接斷線
	connA.Close()

	closed := readWSFrame(t, connB)
	assert.Equal(t, "roomClosed", closed["type"])
	assert.Equal(t, roomID, closed["roomId"])
}

// TestWebSocket_TokenGate 身份閘門在升級之前
func TestWebSocket_TokenGate(t *testing.T) {
	server, _, auth := setupWSServer(t)

	t.Run("invalid token rejected before upgrade", func(t *testing.T) {
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=not-a-jwt"
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid token accepted", func(t *testing.T) {
		token, err := auth.Register("alice", "secret123")
		require.NoError(t, err)

		conn := dialWS(t, server, "?token="+token)

		// 連接可用：發一幀創建請求並收到回應
		require.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"roomCreate","correlationId":"c1","username":"alice"}`)))
		assert.Equal(t, "roomCreate_SUCCESS", readWSFrame(t, conn)["type"])
	})

	t.Run("anonymous connection allowed", func(t *testing.T) {
		conn := dialWS(t, server, "")
		require.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"roomCreate","correlationId":"c1"}`)))
		assert.Equal(t, "roomCreate_SUCCESS", readWSFrame(t, conn)["type"])
	})
}

// TestWebSocket_MalformedFrame 壞幀只影響發送者
func TestWebSocket_MalformedFrame(t *testing.T) {
	server, hub, _ := setupWSServer(t)

	conn := dialWS(t, server, "")
	require.Eventually(t, func() bool {
		return hub.ConnectionCount() == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)))

	frame := readWSFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "Invalid JSON", frame["error"])

	// 連接保持開啟：後續請求照常工作
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"roomCreate","correlationId":"c1"}`)))
	assert.Equal(t, "roomCreate_SUCCESS", readWSFrame(t, conn)["type"])
}

// TestWebSocket_Relay 未識別類型逐字轉發
func TestWebSocket_Relay(t *testing.T) {
	server, hub, _ := setupWSServer(t)

	connA := dialWS(t, server, "")
	connB := dialWS(t, server, "")
	require.Eventually(t, func() bool {
		return hub.ConnectionCount() == 2
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, connA.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"move","payload":{"x":1,"y":2}}`)))

	frame := readWSFrame(t, connB)
	assert.Equal(t, "move", frame["type"])
	assert.Equal(t, map[string]any{"x": float64(1), "y": float64(2)}, frame["payload"])
}

// TestWebSocket_ConnectionCount 連接計數隨註冊 / 註銷變化
func TestWebSocket_ConnectionCount(t *testing.T) {
	server, hub, _ := setupWSServer(t)

	assert.Equal(t, 0, hub.ConnectionCount())

	conn := dialWS(t, server, "")
	require.Eventually(t, func() bool {
		return hub.ConnectionCount() == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return hub.ConnectionCount() == 0
	}, time.Second, 10*time.Millisecond)
}
