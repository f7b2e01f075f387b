package internal

import (
	"log/slog"
	"sync"
)

// SessionGuard 活躍會話守衛
//
// 系統設計考量：
//
//  1. 每個使用者名稱同一時刻最多一條存活連接。
//     會話唯一性是「選擇加入」的：沒有提供 username 的連接完全不受約束。
//
//  2. 後寫者勝（last writer wins）：
//     重新註冊同一個 username 直接覆蓋舊記錄。
//
//  3. 防止過期的關閉事件誤刪：
//     RemoveActiveSession 只在記錄仍指向該連接時才清除。
//     場景：使用者換了新連接（覆蓋註冊）之後，舊連接的 close 事件
//     才姍姍來遲——此時不能把新會話踢掉。
type SessionGuard struct {
	sessions map[string]Conn // username -> 目前的連接
	mu       sync.Mutex
	logger   *slog.Logger
}

// NewSessionGuard 創建會話守衛
func NewSessionGuard(logger *slog.Logger) *SessionGuard {
	return &SessionGuard{
		sessions: make(map[string]Conn),
		logger:   logger,
	}
}

// HasActiveSession 檢查 username 是否已有另一條存活連接
//
// 只有「不同於 current、且仍處於開啟狀態」的已註冊連接才算活躍會話。
// 空 username 永遠沒有活躍會話。
func (g *SessionGuard) HasActiveSession(username string, current Conn) bool {
	if username == "" {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	existing, exists := g.sessions[username]
	if !exists {
		return false
	}
	if current != nil && existing.ID() == current.ID() {
		return false
	}
	return existing.IsOpen()
}

// TryRegister 原子地「檢查並註冊」會話
//
// 檢查與寫入在同一次鎖持有內完成：多條連接併發搶同一個 username，
// 恰好一條成功，其餘回傳 false。
// 已指向本連接、或指向已關閉連接的舊記錄直接被覆蓋。
// 空 username 不受約束，永遠成功。
func (g *SessionGuard) TryRegister(username string, conn Conn) bool {
	if username == "" {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	existing, exists := g.sessions[username]
	if exists && existing.ID() != conn.ID() && existing.IsOpen() {
		return false
	}

	g.sessions[username] = conn

	g.logger.Debug("會話已註冊",
		"username", username,
		"conn_id", conn.ID())
	return true
}

// RegisterActiveSession 註冊會話（覆蓋任何舊記錄）
func (g *SessionGuard) RegisterActiveSession(username string, conn Conn) {
	if username == "" {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.sessions[username] = conn

	g.logger.Debug("會話已註冊",
		"username", username,
		"conn_id", conn.ID())
}

// RemoveActiveSession 清除會話
//
// 只在記錄仍指向 conn 時才清除（或記錄已不存在時 no-op），
// 避免過期的關閉事件驅逐較新的會話。
func (g *SessionGuard) RemoveActiveSession(username string, conn Conn) {
	if username == "" {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	existing, exists := g.sessions[username]
	if !exists {
		return
	}
	if conn != nil && existing.ID() != conn.ID() {
		return
	}

	delete(g.sessions, username)

	g.logger.Debug("會話已清除", "username", username)
}
