package internal

import (
	"sync"
)

// Identity 連接的身份標籤
//
// 一條連接在一次房間成員資格中最多被標記一次：
// PlayerID / RoomID 在加入（或創建）房間時設置，成員資格結束時清除。
// Username 獨立於房間成員資格，在會話註冊時設置。
type Identity struct {
	PlayerID string
	RoomID   string
	Username string
}

// IdentityStore 連接身份存儲
//
// 設計取捨：不把 playerId / roomId 直接掛在傳輸層連接物件上，
// 而是用一張以連接 ID 為鍵的旁表（side table）。
// 傳輸層連接保持純粹（只管收發），生命週期事件到來時按 ID 查表即可，
// 也避免對連接物件的欄位做跨 goroutine 的裸讀寫。
type IdentityStore struct {
	identities map[string]Identity // connID -> Identity
	mu         sync.RWMutex
}

// NewIdentityStore 創建身份存儲
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		identities: make(map[string]Identity),
	}
}

// Get 查詢連接的身份標籤（不存在時回傳零值）
func (s *IdentityStore) Get(connID string) Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identities[connID]
}

// BindMembership 標記連接的房間成員資格
func (s *IdentityStore) BindMembership(connID, playerID, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.identities[connID]
	id.PlayerID = playerID
	id.RoomID = roomID
	s.identities[connID] = id
}

// BindUsername 標記連接所屬的使用者名稱
func (s *IdentityStore) BindUsername(connID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.identities[connID]
	id.Username = username
	s.identities[connID] = id
}

// ClearMembership 清除房間成員資格標籤（保留 username）
//
// 顯式 room:leave 結束成員資格但連接還活著時使用；
// username 的生命週期跟著會話走，不跟著房間走。
func (s *IdentityStore) ClearMembership(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.identities[connID]
	if !exists {
		return
	}
	id.PlayerID = ""
	id.RoomID = ""
	s.identities[connID] = id
}

// Clear 清除連接的所有身份標籤（連接關閉時呼叫，恰好一次）
func (s *IdentityStore) Clear(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.identities, connID)
}
