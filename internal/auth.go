package internal

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// 身份閘門：核心把憑證簽發 / 驗證當作外部協作者，
// 只要求「在核心看到幀之前產出一個可信的呼叫者身份（或直接拒絕）」。
// 一旦通過閘門，核心信任收到的 username / playerId 欄位。

// Claims 憑證載荷
type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenVerifier 憑證驗證介面
type TokenVerifier interface {
	VerifyToken(token string) (*Claims, error)
}

// user 已註冊的使用者
type user struct {
	id           string
	username     string
	passwordHash []byte
}

// AuthService 認證服務
//
// 使用者記錄放在記憶體（持久化使用者存儲是外部協作者的職責），
// 密碼以 bcrypt 雜湊保存，憑證用 HS256 簽發。
type AuthService struct {
	users      map[string]*user // username -> user
	mu         sync.RWMutex
	secret     []byte
	tokenTTL   time.Duration
	bcryptCost int
	logger     *slog.Logger
}

// NewAuthService 創建認證服務
func NewAuthService(secret string, tokenTTL time.Duration, bcryptCost int, logger *slog.Logger) (*AuthService, error) {
	if secret == "" {
		return nil, fmt.Errorf("憑證密鑰不能為空")
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}

	return &AuthService{
		users:      make(map[string]*user),
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		bcryptCost: bcryptCost,
		logger:     logger,
	}, nil
}

// Register 註冊新使用者並簽發憑證
func (s *AuthService) Register(username, password string) (string, error) {
	if username == "" || password == "" {
		return "", fmt.Errorf("使用者名稱和密碼為必填")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("雜湊密碼失敗: %w", err)
	}

	s.mu.Lock()
	if _, exists := s.users[username]; exists {
		s.mu.Unlock()
		return "", fmt.Errorf("該使用者名稱已被註冊")
	}
	u := &user{
		id:           uuid.NewString(),
		username:     username,
		passwordHash: hash,
	}
	s.users[username] = u
	s.mu.Unlock()

	s.logger.Info("使用者已註冊", "username", username, "user_id", u.id)

	return s.signToken(u)
}

// Login 驗證密碼並簽發憑證
//
// 使用者不存在與密碼錯誤回覆同一個錯誤，不洩露哪個環節失敗。
func (s *AuthService) Login(username, password string) (string, error) {
	s.mu.RLock()
	u, exists := s.users[username]
	s.mu.RUnlock()

	if !exists {
		return "", fmt.Errorf("無效的使用者名稱或密碼")
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return "", fmt.Errorf("無效的使用者名稱或密碼")
	}

	return s.signToken(u)
}

// VerifyToken 驗證憑證並還原載荷
func (s *AuthService) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("未預期的簽名方法: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("無效或過期的憑證: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("無效或過期的憑證")
	}
	return claims, nil
}

// signToken 簽發 HS256 憑證
func (s *AuthService) signToken(u *user) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   u.id,
		Username: u.username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("簽發憑證失敗: %w", err)
	}
	return token, nil
}
