package internal

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Handler HTTP 請求處理器
//
// WebSocket 之外的周邊表面：認證、排行榜、健康檢查與統計。
type Handler struct {
	auth        *AuthService
	leaderboard Leaderboard
	registry    *Registry
	hub         *Hub
	topN        int
	logger      *slog.Logger
}

// NewHandler 創建 HTTP 處理器
func NewHandler(auth *AuthService, leaderboard Leaderboard, registry *Registry, hub *Hub, topN int, logger *slog.Logger) *Handler {
	if topN <= 0 {
		topN = 10
	}
	return &Handler{
		auth:        auth,
		leaderboard: leaderboard,
		registry:    registry,
		hub:         hub,
		topN:        topN,
		logger:      logger,
	}
}

// ctxKey 請求上下文的私有鍵類型
type ctxKey string

const claimsKey ctxKey = "claims"

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	// 認證（閘門本身，不在閘門之後）
	mux.HandleFunc("POST /auth/register", wrap(h.register))
	mux.HandleFunc("POST /auth/login", wrap(h.login))

	// 排行榜（閘門之後）
	mux.HandleFunc("GET /leaderboard", wrap(h.authMiddleware(h.getLeaderboard)))
	mux.HandleFunc("PUT /leaderboard", wrap(h.authMiddleware(h.submitScore)))

	// 健康檢查
	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /stats", wrap(h.stats))

	return mux
}

// 請求結構
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type submitScoreRequest struct {
	Score int64 `json:"score"`
}

// register 註冊
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, "無效的請求格式", http.StatusBadRequest)
		return
	}

	token, err := h.auth.Register(req.Username, req.Password)
	if err != nil {
		h.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.setTokenCookie(w, token)
	h.jsonResponse(w, map[string]any{
		"message":  "註冊成功",
		"username": req.Username,
		"token":    token,
	}, http.StatusCreated)
}

// login 登入
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, "無效的請求格式", http.StatusBadRequest)
		return
	}

	token, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		h.errorResponse(w, err.Error(), http.StatusUnauthorized)
		return
	}

	h.setTokenCookie(w, token)
	h.jsonResponse(w, map[string]any{
		"message":  "登入成功",
		"username": req.Username,
		"token":    token,
	}, http.StatusOK)
}

// getLeaderboard 讀取排行榜前 N 名
func (h *Handler) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.leaderboard.Top(r.Context(), h.topN)
	if err != nil {
		h.logger.Error("讀取排行榜失敗", "error", err)
		h.errorResponse(w, "讀取排行榜失敗", http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, entries, http.StatusOK)
}

// submitScore 提交新高分
//
// 條件寫入：只有嚴格大於已存分數才生效，否則回傳既有記錄。
// username 取自已驗證的憑證，不信任請求體。
func (h *Handler) submitScore(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(claimsKey).(*Claims)
	if !ok {
		h.errorResponse(w, "未提供憑證", http.StatusUnauthorized)
		return
	}

	var req submitScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, "無效的請求格式", http.StatusBadRequest)
		return
	}

	entry, err := h.leaderboard.Submit(r.Context(), claims.Username, req.Score)
	if err != nil {
		h.logger.Error("提交分數失敗", "error", err, "username", claims.Username)
		h.errorResponse(w, "提交分數失敗", http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, entry, http.StatusOK)
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}, http.StatusOK)
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats := h.registry.Stats()
	stats["total_connections"] = h.hub.ConnectionCount()
	h.jsonResponse(w, stats, http.StatusOK)
}

// setTokenCookie 設置憑證 cookie
func (h *Handler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		MaxAge:   int((24 * time.Hour).Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}

// authMiddleware 憑證驗證中間件
//
// 從 cookie 或 Authorization 標頭取出憑證，驗證通過後
// 把載荷掛進請求上下文供下游使用。
func (h *Handler) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if cookie, err := r.Cookie("token"); err == nil {
			token = cookie.Value
		}
		if token == "" {
			const prefix = "Bearer "
			if auth := r.Header.Get("Authorization"); len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
				token = auth[len(prefix):]
			}
		}
		if token == "" {
			h.errorResponse(w, "未提供憑證", http.StatusUnauthorized)
			return
		}

		claims, err := h.auth.VerifyToken(token)
		if err != nil {
			h.errorResponse(w, "無效或過期的憑證", http.StatusUnauthorized)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, map[string]any{
		"error": message,
	}, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 包裝 ResponseWriter 以獲取狀態碼
		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
