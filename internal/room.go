package internal

import (
	"time"
)

// 系統設計問題：
//   如何表示一個 1v1 對戰大廳的房間，讓兩名玩家透過短代碼配對？
//
// 核心挑戰：
//   1. 雙索引：房間同時可由內部 ID 和分享用的短代碼查找
//   2. 順序保證：players 是有序序列，房主永遠在第一位
//   3. 生命週期：房主離開即解散（沒有「轉移房主」的路徑）

// PlayerStatus 玩家在房間中的角色
type PlayerStatus string

const (
	StatusHost  PlayerStatus = "host"  // 房間創建者
	StatusGuest PlayerStatus = "guest" // 透過代碼加入的第二位玩家
)

// PlayerInfo 房間成員資訊
//
// 連接本身不屬於 Room：連接的所有權在傳輸層（Hub），
// 房間成員只透過 ConnID 弱引用它。
type PlayerInfo struct {
	ID       string       `json:"id"`
	Username string       `json:"username,omitempty"`
	Name     string       `json:"name,omitempty"`
	Status   PlayerStatus `json:"status,omitempty"`
	ConnID   string       `json:"-"`
}

// Room 對戰房間
//
// 設計考量：
//
//  1. 固定兩人上限：
//     房間只支援房主 + 一位訪客（1v1 對戰模型）。
//     好處：狀態機極小——成員數只有 1 或 2 兩種合法狀態，
//     終態只有「空房」或「已刪除」。
//
//  2. 房主中心的刪除規則：
//     房主離開 → 房間直接解散（即使訪客還在）。
//     沒有「訪客升級為房主」的路徑，換取更簡單的生命週期。
//
//  3. 有序成員列表：
//     players 用 slice 而非 map，插入順序有意義：
//     只要房主還在，第一個元素一定是房主。
type Room struct {
	ID        string        `json:"roomId"`
	Code      string        `json:"code"`
	HostID    string        `json:"hostId"`
	Players   []*PlayerInfo `json:"players"`
	CreatedAt time.Time     `json:"createdAt"`
}

// findPlayer 在成員列表中尋找玩家，回傳索引（找不到回傳 -1）
func (r *Room) findPlayer(playerID string) int {
	for i, p := range r.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// HasPlayer 檢查玩家是否已是成員
func (r *Room) HasPlayer(playerID string) bool {
	return r.findPlayer(playerID) >= 0
}

// snapshotPlayers 複製成員列表（避免把內部 slice 交給呼叫方）
func (r *Room) snapshotPlayers() []*PlayerInfo {
	players := make([]*PlayerInfo, len(r.Players))
	for i, p := range r.Players {
		cp := *p
		players[i] = &cp
	}
	return players
}

// Snapshot 取得房間目前狀態的複本（用於序列化與廣播）
func (r *Room) Snapshot() *Room {
	return &Room{
		ID:        r.ID,
		Code:      r.Code,
		HostID:    r.HostID,
		Players:   r.snapshotPlayers(),
		CreatedAt: r.CreatedAt,
	}
}
