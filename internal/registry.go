package internal

import (
	"crypto/rand"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// codeAlphabet 房間代碼字符集（大寫字母 + 數字，36 個符號）
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// codeLength 房間代碼長度
//
// 36^6 ≈ 21 億種組合，以同時存在的房間數量級來看，
// 「重試直到唯一」的生成策略幾乎不會真的重試。
const codeLength = 6

// Registry 房間註冊表
//
// 系統設計考量：
//
//  1. 雙索引（roomsByID / roomsByCode）：
//     房間可由內部 ID 查找（服務端邏輯），也可由短代碼查找（玩家分享）。
//     不變量：兩個索引要嘛都有這個房間，要嘛都沒有——絕不出現半刪除狀態。
//
//  2. 單一粗粒度鎖：
//     所有房間共用一把 RWMutex。資料量小（房間數以百計、每房最多兩人），
//     房間可以整個原子地讀寫，不需要每房一把鎖。
//     關鍵保證：對同一房間的 join / leave 互斥——
//     兩個併發 join 打到同一個只剩一個位置的房間，只有一個會成功。
//
//  3. 代碼可重用：
//     代碼只需在「目前存活」的房間之間唯一；
//     房間刪除後代碼釋放，之後可以再被生成。
type Registry struct {
	roomsByID   map[string]*Room
	roomsByCode map[string]*Room
	mu          sync.RWMutex
	logger      *slog.Logger
}

// NewRegistry 創建房間註冊表
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		roomsByID:   make(map[string]*Room),
		roomsByCode: make(map[string]*Room),
		logger:      logger,
	}
}

// CreateRoom 創建房間
//
// 分配新 ID、生成目前唯一的代碼、以房主為唯一成員建立房間，
// 並同時寫入兩個索引。username 為空時顯示名稱回退為 "Host"。
// 正常運行下不會失敗（代碼空間耗盡不做處理，視為實際上不可能）。
func (reg *Registry) CreateRoom(hostID, username string) *Room {
	displayName := username
	if displayName == "" {
		displayName = "Host"
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	room := &Room{
		ID:     uuid.NewString(),
		Code:   reg.generateUniqueCode(),
		HostID: hostID,
		Players: []*PlayerInfo{{
			ID:       hostID,
			Username: displayName,
			Name:     displayName,
			Status:   StatusHost,
		}},
		CreatedAt: time.Now(),
	}

	reg.roomsByID[room.ID] = room
	reg.roomsByCode[room.Code] = room

	reg.logger.Info("房間已創建",
		"room_id", room.ID,
		"code", room.Code,
		"host_id", hostID)

	return room.Snapshot()
}

// GetRoomByID 透過 ID 查找房間（純查詢，無副作用）
func (reg *Registry) GetRoomByID(id string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, exists := reg.roomsByID[id]
	if !exists {
		return nil, false
	}
	return room.Snapshot(), true
}

// GetRoomByCode 透過代碼查找房間（純查詢，無副作用）
func (reg *Registry) GetRoomByCode(code string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, exists := reg.roomsByCode[strings.ToUpper(code)]
	if !exists {
		return nil, false
	}
	return room.Snapshot(), true
}

// AddPlayerToRoom 將玩家加入房間
//
// 冪等操作：同 ID 玩家已存在則不做任何事。
// 房間不存在也靜默略過——呼叫方應已透過 JoinRoomByCode 驗證過存在性。
func (reg *Registry) AddPlayerToRoom(roomID string, player *PlayerInfo) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, exists := reg.roomsByID[roomID]
	if !exists {
		return
	}
	if room.HasPlayer(player.ID) {
		return
	}
	room.Players = append(room.Players, player)
}

// JoinRoomByCode 嘗試以訪客身份透過代碼加入房間
//
// 失敗情況（回傳 nil, false）：代碼無效，或房間已滿（兩人上限）。
// 玩家已是成員時回傳房間不變（加入是冪等的，不視為錯誤）。
func (reg *Registry) JoinRoomByCode(code string, player *PlayerInfo) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, exists := reg.roomsByCode[strings.ToUpper(code)]
	if !exists {
		return nil, false
	}

	// 重複加入：冪等，直接回傳現況
	if room.HasPlayer(player.ID) {
		return room.Snapshot(), true
	}

	// 兩人上限：房主 + 一位訪客
	if len(room.Players) >= 2 {
		return nil, false
	}

	if player.Status == "" {
		player.Status = StatusGuest
	}
	room.Players = append(room.Players, player)

	reg.logger.Info("玩家加入房間",
		"room_id", room.ID,
		"code", room.Code,
		"player_id", player.ID)

	return room.Snapshot(), true
}

// RemovePlayerFromRoom 將玩家移出房間
//
// 移除後若成員為空、或被移除者是房主，則整個房間刪除
// （房主離開即解散，即使訪客還在）。
//
// 回傳值：
//   - after：移除後的房間快照；房間被刪除時為 nil
//   - found：房間是否存在（不存在時整個操作是 no-op）
func (reg *Registry) RemovePlayerFromRoom(roomID, playerID string) (after *Room, found bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, exists := reg.roomsByID[roomID]
	if !exists {
		return nil, false
	}

	if i := room.findPlayer(playerID); i >= 0 {
		room.Players = append(room.Players[:i], room.Players[i+1:]...)
	}

	if len(room.Players) == 0 || playerID == room.HostID {
		reg.deleteLocked(room)
		return nil, true
	}

	return room.Snapshot(), true
}

// DeleteRoom 刪除房間（同時從兩個索引移除；不存在則 no-op）
func (reg *Registry) DeleteRoom(roomID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if room, exists := reg.roomsByID[roomID]; exists {
		reg.deleteLocked(room)
	}
}

// deleteLocked 從兩個索引中移除房間（呼叫方必須持有寫鎖）
func (reg *Registry) deleteLocked(room *Room) {
	delete(reg.roomsByID, room.ID)
	delete(reg.roomsByCode, room.Code)

	reg.logger.Info("房間已刪除",
		"room_id", room.ID,
		"code", room.Code)
}

// Stats 統計資訊
func (reg *Registry) Stats() map[string]any {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	totalPlayers := 0
	for _, room := range reg.roomsByID {
		totalPlayers += len(room.Players)
	}

	return map[string]any{
		"total_rooms":   len(reg.roomsByID),
		"total_players": totalPlayers,
	}
}

// generateUniqueCode 生成目前存活房間之間唯一的代碼
// （呼叫方必須持有寫鎖）
func (reg *Registry) generateUniqueCode() string {
	for {
		code := randomCode()
		if _, taken := reg.roomsByCode[code]; !taken {
			return code
		}
	}
}

// randomCode 生成一個 6 位隨機代碼
//
// crypto/rand 不可用屬於不可恢復的環境故障，沒有安全的退路。
func randomCode() string {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		panic("讀取系統隨機源失敗: " + err.Error())
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b)
}
