package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port         int           `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		IdleTimeout  time.Duration `yaml:"idle_timeout"`
	} `yaml:"server"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"` // 未啟用時排行榜落在記憶體實作
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		Secret     string        `yaml:"secret"`
		TokenTTL   time.Duration `yaml:"token_ttl"`
		BcryptCost int           `yaml:"bcrypt_cost"`
	} `yaml:"auth"`

	Leaderboard struct {
		Key  string `yaml:"key"`   // Redis sorted set 的鍵名
		TopN int    `yaml:"top_n"` // GET /leaderboard 回傳的名次數
	} `yaml:"leaderboard"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultConfig 預設配置
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Port = 8080
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.PoolSize = 10

	cfg.Auth.Secret = "dev-secret-change-me"
	cfg.Auth.TokenTTL = 24 * time.Hour
	cfg.Auth.BcryptCost = 10

	cfg.Leaderboard.Key = "leaderboard:scores"
	cfg.Leaderboard.TopN = 10

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

// LoadConfig 載入配置檔（path 為空時直接使用預設值）
//
// 支援環境變數覆蓋密鑰（生產環境常用）。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("讀取配置檔失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置檔失敗: %w", err)
		}
	}

	if secret := os.Getenv("LOBBY_JWT_SECRET"); secret != "" {
		cfg.Auth.Secret = secret
	}
	if addr := os.Getenv("LOBBY_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}

	return cfg, nil
}
