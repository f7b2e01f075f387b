// Package lobbyhub 提供一個即時多人對戰大廳服務器。
//
// 客戶端透過持久的 WebSocket 通道連入，創建或加入一個由
// 六位短代碼標識的 1v1 房間，並在成員變動時收到即時推送。
//
// # 房間模型
//
// 每個房間恰好是房主 + 至多一位訪客：
//   - roomCreate 創建房間並生成可分享的加入碼
//   - roomJoin 透過代碼加入為訪客（滿房 / 無效代碼會被拒絕）
//   - 房主離開（或斷線）即解散房間；訪客離開房間保留
//
// # 會話唯一性
//
// 提供了 username 的連接受「同名最多一條存活連接」約束，
// 衝突時 create / join 會被明確拒絕（ACTIVE_SESSION_EXISTS）。
//
// # 消息轉發
//
// 未識別類型的消息（移動、射擊等遊戲動作）逐字廣播給
// 除發送者外的所有開啟連接——單一競技場模型。
//
// # 周邊表面
//
//   - /auth/register、/auth/login：簽發憑證（bcrypt + HS256）
//   - /leaderboard：排名前十讀取與「嚴格更高才生效」的分數提交
//     （Redis sorted set，未配置時退回記憶體實作）
//   - /health、/stats：健康檢查與統計
//
// 啟動服務器：
//
//	go run ./cmd/server -port 8080 -log-level debug
package lobbyhub
