package internal

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	errConnClosed     = errors.New("連接已關閉")
	errSendBufferFull = errors.New("發送緩衝區已滿")
)

// 系統設計問題：
//   如何維護所有存活的 WebSocket 連接，並把大廳事件即時扇出？
//
// 設計方案：
//   ✅ Hub 模式 - 集中管理全部連接（單一競技場，不按房間分組）
//   ✅ Ping/Pong 心跳 - 檢測死連接（54s/60s）
//   ✅ 緩衝 channel - 異步發送（不阻塞業務邏輯）
//   ✅ 慢接收者保護 - 緩衝滿直接丟幀，絕不拖累其他連接

// Hub WebSocket 連接中心
//
// 連接集合是全進程一張表（connID -> Connection），廣播遍歷當下的
// 連接集合，跳過發送者與任何非開啟狀態的連接；中途關閉的連接
// 只是被跳過，絕不讓遍歷失敗。
type Hub struct {
	upgrader    websocket.Upgrader
	connections map[string]*Connection
	mu          sync.RWMutex
	logger      *slog.Logger
}

// Connection 一條 WebSocket 連接
//
// 發送走緩衝 channel（writePump 消費），closed 標誌在註銷時置位，
// 此後 IsOpen 回傳 false，廣播與單播都會跳過它。
type Connection struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	lastPing  time.Time
	mu        sync.Mutex
	sendMu    sync.RWMutex // 保護 send channel 的「推送 vs 關閉」競爭
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewHub 創建連接中心
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 生產環境應檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[string]*Connection),
		logger:      logger,
	}
}

// ID 穩定的連接識別碼（身份旁表與會話守衛都以它為鍵）
func (c *Connection) ID() string {
	return c.id
}

// IsOpen 連接是否仍處於開啟狀態
func (c *Connection) IsOpen() bool {
	return !c.closed.Load()
}

// Send 送出一幀（異步，最佳努力）
//
// 緩衝滿或連接已關閉時回傳錯誤；呼叫方（路由器）只記錄不中斷。
func (c *Connection) Send(data []byte) error {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()

	if c.closed.Load() {
		return errConnClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// ServeWS 回傳 WebSocket 升級入口
//
// 身份閘門在升級之前：帶了 token 就必須有效（401 拒絕），
// 沒帶 token 的匿名連接照常放行——會話唯一性本來就是選擇加入的。
func (hub *Hub) ServeWS(router *Router, verifier TokenVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := ""
		if token := bearerToken(r); token != "" {
			claims, err := verifier.VerifyToken(token)
			if err != nil {
				http.Error(w, "無效或過期的憑證", http.StatusUnauthorized)
				return
			}
			username = claims.Username
		}

		conn, err := hub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Error("升級 WebSocket 失敗", "error", err)
			return
		}

		connection := &Connection{
			id:       uuid.NewString(),
			conn:     conn,
			send:     make(chan []byte, 256),
			hub:      hub,
			lastPing: time.Now(),
		}

		hub.register(connection)
		router.HandleOpen(connection, username)

		go connection.writePump()
		go connection.readPump(router)

		hub.logger.Info("WebSocket 連接建立",
			"conn_id", connection.id,
			"username", username,
			"remote", r.RemoteAddr)
	}
}

// bearerToken 從查詢參數或 cookie 取出憑證
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if cookie, err := r.Cookie("token"); err == nil {
		return cookie.Value
	}
	return ""
}

// register 註冊連接
func (hub *Hub) register(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.connections[conn.id] = conn
}

// unregister 註銷連接並置位 closed 標誌
func (hub *Hub) unregister(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if _, exists := hub.connections[conn.id]; !exists {
		return
	}
	delete(hub.connections, conn.id)
	conn.markClosed()
}

// markClosed 置位 closed 標誌並關閉發送通道（恰好一次）
func (c *Connection) markClosed() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.closed.Store(true)
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Broadcast 把一幀發給除發送者之外的所有開啟連接
//
// 每個接收者的發送失敗都被吞掉（記錄後繼續），
// 絕不因為某個慢 / 死連接中斷對其餘連接的扇出。
func (hub *Hub) Broadcast(sender Conn, data []byte) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for id, conn := range hub.connections {
		if sender != nil && id == sender.ID() {
			continue
		}
		if !conn.IsOpen() {
			continue
		}
		if err := conn.Send(data); err != nil {
			hub.logger.Warn("廣播發送失敗",
				"conn_id", id,
				"error", err)
		}
	}
}

// ConnectionCount 目前的開啟連接數
func (hub *Hub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.connections)
}

// Stop 關閉所有連接
func (hub *Hub) Stop() {
	hub.mu.Lock()
	for _, conn := range hub.connections {
		conn.markClosed()
		conn.conn.Close()
	}
	hub.connections = make(map[string]*Connection)
	hub.mu.Unlock()

	hub.logger.Info("WebSocket Hub 已停止")
}

// readPump 讀取客戶端消息
//
// 心跳（讀取端）：60 秒內沒有任何消息（含 Pong）就關閉連接，
// 配合 writePump 的 54 秒 Ping（留 6 秒余量）。
// 連接結束時先註銷（此後廣播跳過它），再執行路由器的清理鉤子。
func (c *Connection) readPump(router *Router) {
	defer func() {
		c.hub.unregister(c)
		router.HandleClose(c)
		c.conn.Close()
	}()

	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			c.hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		c.mu.Lock()
		c.lastPing = time.Now()
		c.mu.Unlock()
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket 讀取錯誤",
					"conn_id", c.id,
					"error", err)
			}
			break
		}

		if messageType == websocket.TextMessage {
			router.HandleMessage(c, message)
		}
	}
}

// writePump 寫入消息到客戶端
//
// 54 秒 Ping 間隔避開常見代理的 60 秒超時閾值；
// 業務消息批量沖刷（消費完 channel 中累積的幀再回到 select）。
func (c *Connection) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道，優雅關閉連接
				deadline := time.Now().Add(time.Second)
				if err := c.conn.SetWriteDeadline(deadline); err == nil {
					_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				}
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的消息
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
