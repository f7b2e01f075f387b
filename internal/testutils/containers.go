// Package testutils 提供測試用的共用工具和輔助函數
//
// 目前只管理 Redis 測試容器（排行榜整合測試用），
// 容器在測試結束時自動清理。
package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisEnvironment 封裝 Redis 測試環境
type RedisEnvironment struct {
	Client    *redis.Client
	Container tc.Container
	Addr      string
	ctx       context.Context
}

// SetupRedis 啟動 Redis 測試容器並回傳已連線的客戶端
//
// 使用範例：
//
//	func TestSomething(t *testing.T) {
//	    env := testutils.SetupRedis(t)
//	    // 使用 env.Client
//	}
func SetupRedis(t testing.TB) *RedisEnvironment {
	t.Helper()

	ctx := context.Background()
	env := &RedisEnvironment{ctx: ctx}

	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	env.Container = redisContainer

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}
	env.Addr = endpoint

	env.Client = redis.NewClient(&redis.Options{
		Addr:         endpoint,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := env.Client.Ping(ctx).Err(); err != nil {
		t.Fatalf("failed to ping redis: %v", err)
	}

	t.Cleanup(func() {
		env.Cleanup()
	})

	return env
}

// Cleanup 關閉客戶端並終止容器
func (env *RedisEnvironment) Cleanup() {
	if env.Client != nil {
		_ = env.Client.Close()
	}
	if env.Container != nil {
		_ = env.Container.Terminate(env.ctx)
	}
}
