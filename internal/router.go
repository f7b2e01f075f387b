package internal

import (
	"log/slog"

	"github.com/google/uuid"
)

// 系統設計問題：
//   每個入站幀如何被解碼、分發、並把結果扇出給正確的連接集合？
//
// 核心挑戰：
//   1. 幀與幀之間不攜帶狀態：所有狀態都在 Registry / SessionGuard / IdentityStore
//   2. 錯誤分級：格式錯誤回 error 幀、業務拒絕回 _FAILURE 幀、缺參數靜默忽略
//   3. 最佳努力扇出：單個接收者發送失敗不能中斷對其餘連接的發送

// Conn 路由器眼中的傳輸連接
//
// 核心只依賴三件事：穩定的連接 ID、發送一幀、查詢開啟狀態。
// 傳輸層的握手、分幀、心跳都不在這個介面之內。
type Conn interface {
	ID() string
	Send(data []byte) error
	IsOpen() bool
}

// Broadcaster 扇出介面：把一幀發給除發送者之外的所有開啟連接
type Broadcaster interface {
	Broadcast(sender Conn, data []byte)
}

// Router 消息路由器
//
// 設計考量：
//
//  1. 廣播是全進程範圍的（不按房間劃分）：
//     roomUpdate / roomClosed / 未識別消息的轉發，都發給除發送者外的
//     所有開啟連接。這延續單一競技場（single arena）的假設——
//     同時存活的房間數量小，按房間過濾的收益不值得增加的狀態。
//     這是刻意保留的既有行為，由測試固定下來。
//
//  2. 處理器一次跑到底：
//     單幀的處理過程沒有內部掛起點，不會阻塞在別的連接的狀態上；
//     共享存儲各自用粗粒度鎖串行化變更。
type Router struct {
	registry   *Registry
	sessions   *SessionGuard
	identities *IdentityStore
	hub        Broadcaster
	logger     *slog.Logger
}

// NewRouter 創建消息路由器
func NewRouter(registry *Registry, sessions *SessionGuard, identities *IdentityStore, hub Broadcaster, logger *slog.Logger) *Router {
	return &Router{
		registry:   registry,
		sessions:   sessions,
		identities: identities,
		hub:        hub,
		logger:     logger,
	}
}

// HandleMessage 處理一個入站幀
//
// 解碼失敗只回覆發送者一個 error 幀：不廣播、不改狀態、連接保持開啟。
// 一條連接的壞幀絕不影響其他連接。
func (rt *Router) HandleMessage(conn Conn, data []byte) {
	msg, err := DecodeInbound(data)
	if err != nil {
		rt.logger.Warn("入站幀格式錯誤",
			"conn_id", conn.ID(),
			"error", err)
		rt.send(conn, encodeError(ErrInvalidJSON))
		return
	}

	switch {
	case msg.Create != nil:
		rt.handleCreate(conn, msg.Create)
	case msg.Join != nil:
		rt.handleJoin(conn, msg.Join)
	case msg.Leave != nil:
		rt.handleLeave(conn, msg.Leave)
	default:
		// 未識別類型：原始位元組逐字轉發給其他連接
		// （移動、射擊等不帶伺服器端狀態的遊戲動作）
		rt.hub.Broadcast(conn, msg.Raw)
	}
}

// handleCreate 處理 roomCreate
//
// 會話的檢查與註冊必須是單個原子操作（TryRegister）：
// 分成兩步的話，併發的同名請求可以同時通過檢查、同時註冊成功。
func (rt *Router) handleCreate(conn Conn, req *CreateRequest) {
	if !rt.sessions.TryRegister(req.Username, conn) {
		rt.send(conn, encodeFailure(TypeRoomCreateFailure, req.CorrelationID, ErrActiveSessionExists))
		return
	}

	hostID := req.HostID
	if hostID == "" {
		hostID = uuid.NewString()
	}

	room := rt.registry.CreateRoom(hostID, req.Username)

	rt.identities.BindMembership(conn.ID(), hostID, room.ID)
	if req.Username != "" {
		rt.identities.BindUsername(conn.ID(), req.Username)
	}

	rt.send(conn, encodeRoomResult(TypeRoomCreateSuccess, req.CorrelationID, room))
}

// handleJoin 處理 roomJoin
//
// 會話的檢查與註冊同樣走原子的 TryRegister（見 handleCreate）。
// 註冊發生在加入房間之前：加入失敗時回滾——但只在本連接先前
// 並未持有這個會話的情況下（否則會誤刪它既有的合法會話）。
func (rt *Router) handleJoin(conn Conn, req *JoinRequest) {
	alreadyOwned := rt.identities.Get(conn.ID()).Username == req.Username

	if !rt.sessions.TryRegister(req.Username, conn) {
		rt.send(conn, encodeFailure(TypeRoomJoinFailure, req.CorrelationID, ErrActiveSessionExists))
		return
	}

	playerID := req.PlayerID
	if playerID == "" {
		playerID = uuid.NewString()
	}

	player := &PlayerInfo{
		ID:       playerID,
		Username: req.Username,
		Name:     req.Username,
		ConnID:   conn.ID(),
	}

	room, ok := rt.registry.JoinRoomByCode(req.Code, player)
	if !ok {
		if req.Username != "" && !alreadyOwned {
			rt.sessions.RemoveActiveSession(req.Username, conn)
		}
		rt.send(conn, encodeFailure(TypeRoomJoinFailure, req.CorrelationID, ErrRoomNotFoundOrFull))
		return
	}

	rt.identities.BindMembership(conn.ID(), playerID, room.ID)
	if req.Username != "" {
		rt.identities.BindUsername(conn.ID(), req.Username)
	}

	rt.send(conn, encodeRoomResult(TypeRoomJoinSuccess, req.CorrelationID, room))

	// 成員變更通知所有其他連接
	rt.hub.Broadcast(conn, encodeRoomResult(TypeRoomUpdate, "", room))
}

// handleLeave 處理 room:leave
//
// 缺任一欄位、或房間已不存在 → 靜默 no-op（不回應、不變更）。
// 這是刻意的軟失敗：容忍已斷線客戶端發來的重複 / 遲到的離開通知。
func (rt *Router) handleLeave(conn Conn, req *LeaveRequest) {
	if req.RoomID == "" || req.PlayerID == "" {
		return
	}

	after, found := rt.registry.RemovePlayerFromRoom(req.RoomID, req.PlayerID)
	if !found {
		return
	}

	// 成員資格結束，對應的身份標籤恰好清除一次
	if id := rt.identities.Get(conn.ID()); id.RoomID == req.RoomID && id.PlayerID == req.PlayerID {
		rt.identities.ClearMembership(conn.ID())
	}

	// 離開者本身不收到任何回應
	if after == nil {
		rt.hub.Broadcast(conn, encodeRoomClosed(req.RoomID))
	} else {
		rt.hub.Broadcast(conn, encodeRoomResult(TypeRoomUpdate, "", after))
	}
}

// HandleOpen 連接建立時的鉤子
//
// 把身份閘門驗證過的使用者名稱預先綁進身份旁表：
// 之後的生命週期事件（斷線清理）不需要再回頭問傳輸層。
func (rt *Router) HandleOpen(conn Conn, username string) {
	if username == "" {
		return
	}
	rt.identities.BindUsername(conn.ID(), username)
}

// HandleClose 連接關閉時的清理鉤子
//
// 兩段清理彼此獨立，就算其中一段無事可做另一段也必須執行：
//  1. 有房間成員資格 → 移出房間並廣播最新狀態（或解散通知）
//  2. 有綁定的 username → 清除活躍會話（帶「仍指向本連接」的防護）
func (rt *Router) HandleClose(conn Conn) {
	id := rt.identities.Get(conn.ID())

	if id.PlayerID != "" && id.RoomID != "" {
		after, found := rt.registry.RemovePlayerFromRoom(id.RoomID, id.PlayerID)
		if found {
			if after == nil {
				rt.hub.Broadcast(conn, encodeRoomClosed(id.RoomID))
			} else {
				rt.hub.Broadcast(conn, encodeRoomResult(TypeRoomUpdate, "", after))
			}
		}
	}

	if id.Username != "" {
		rt.sessions.RemoveActiveSession(id.Username, conn)
	}

	rt.identities.Clear(conn.ID())

	rt.logger.Info("連接清理完成",
		"conn_id", conn.ID(),
		"player_id", id.PlayerID,
		"room_id", id.RoomID)
}

// send 單播（最佳努力：失敗只記錄，不影響呼叫方流程）
func (rt *Router) send(conn Conn, data []byte) {
	if !conn.IsOpen() {
		return
	}
	if err := conn.Send(data); err != nil {
		rt.logger.Warn("發送回應失敗",
			"conn_id", conn.ID(),
			"error", err)
	}
}
