package internal

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ScoreEntry 排行榜記錄
type ScoreEntry struct {
	Username string `json:"username"`
	Score    int64  `json:"score"`
}

// Leaderboard 持久化分數存儲
//
// 大廳核心只透過兩個操作接觸分數資料：
//   - Top：讀取排名前 N 的記錄
//   - Submit：條件寫入——只有嚴格大於已存記錄時才生效，
//     否則回傳既有記錄不變
type Leaderboard interface {
	Top(ctx context.Context, n int) ([]ScoreEntry, error)
	Submit(ctx context.Context, username string, score int64) (ScoreEntry, error)
}

// RedisLeaderboard 以 Redis sorted set 實作的排行榜
//
// 系統設計考量：
//
//  1. 為什麼用 sorted set？
//     ZREVRANGE 直接給出按分數降序的前 N 名（O(log N + M)），
//     不需要自己維護排序。
//
//  2. 條件寫入用 ZADD GT：
//     GT 旗標讓 Redis 在伺服器端原子地執行「只有更大才更新」，
//     不需要 GET-比較-SET 的往返（那樣會有 race）。
//     新成員不受 GT 約束，首次提交直接寫入。
type RedisLeaderboard struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// NewRedisLeaderboard 創建 Redis 排行榜
func NewRedisLeaderboard(client *redis.Client, key string, logger *slog.Logger) *RedisLeaderboard {
	return &RedisLeaderboard{
		client: client,
		key:    key,
		logger: logger,
	}
}

// Top 讀取前 n 名（分數降序）
func (lb *RedisLeaderboard) Top(ctx context.Context, n int) ([]ScoreEntry, error) {
	if n <= 0 {
		return []ScoreEntry{}, nil
	}

	results, err := lb.client.ZRevRangeWithScores(ctx, lb.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]ScoreEntry, 0, len(results))
	for _, z := range results {
		username, _ := z.Member.(string)
		entries = append(entries, ScoreEntry{
			Username: username,
			Score:    int64(z.Score),
		})
	}
	return entries, nil
}

// Submit 條件寫入新高分
func (lb *RedisLeaderboard) Submit(ctx context.Context, username string, score int64) (ScoreEntry, error) {
	if err := lb.client.ZAddGT(ctx, lb.key, redis.Z{
		Score:  float64(score),
		Member: username,
	}).Err(); err != nil {
		return ScoreEntry{}, err
	}

	// 讀回生效後的分數（可能是新高分，也可能是保持不變的舊記錄）
	current, err := lb.client.ZScore(ctx, lb.key, username).Result()
	if err != nil {
		return ScoreEntry{}, err
	}

	return ScoreEntry{Username: username, Score: int64(current)}, nil
}

// MemoryLeaderboard 記憶體排行榜
//
// 未配置 Redis 時的替代實作（開發環境、單元測試）。
// 語義與 Redis 版完全一致。
type MemoryLeaderboard struct {
	scores map[string]int64
	mu     sync.RWMutex
}

// NewMemoryLeaderboard 創建記憶體排行榜
func NewMemoryLeaderboard() *MemoryLeaderboard {
	return &MemoryLeaderboard{
		scores: make(map[string]int64),
	}
}

// Top 讀取前 n 名（分數降序，同分按名稱穩定排序）
func (lb *MemoryLeaderboard) Top(_ context.Context, n int) ([]ScoreEntry, error) {
	lb.mu.RLock()
	entries := make([]ScoreEntry, 0, len(lb.scores))
	for username, score := range lb.scores {
		entries = append(entries, ScoreEntry{Username: username, Score: score})
	}
	lb.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Username < entries[j].Username
	})

	if n < 0 {
		n = 0
	}
	if n > len(entries) {
		n = len(entries)
	}
	return entries[:n], nil
}

// Submit 條件寫入新高分
func (lb *MemoryLeaderboard) Submit(_ context.Context, username string, score int64) (ScoreEntry, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	current, exists := lb.scores[username]
	if !exists || score > current {
		lb.scores[username] = score
		current = score
	}
	return ScoreEntry{Username: username, Score: current}, nil
}
