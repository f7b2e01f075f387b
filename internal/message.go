package internal

import (
	"encoding/json"
	"fmt"
)

// 消息信封：雙向的結構化記錄，至少帶一個 type 欄位。
//
// 入站消息先解析成一個封閉的標籤聯合（tagged union）：
// 已知的三種請求各自有明確的結構，其餘一律落入「轉發」變體，
// 原始位元組原封不動地廣播給其他連接（無伺服器端狀態的遊戲動作，
// 如移動、射擊，都走這條路徑）。

// 入站消息類型
const (
	TypeRoomCreate = "roomCreate"
	TypeRoomJoin   = "roomJoin"
	TypeRoomLeave  = "room:leave"
)

// 出站消息類型
const (
	TypeRoomCreateSuccess = "roomCreate_SUCCESS"
	TypeRoomCreateFailure = "roomCreate_FAILURE"
	TypeRoomJoinSuccess   = "roomJoin_SUCCESS"
	TypeRoomJoinFailure   = "roomJoin_FAILURE"
	TypeRoomUpdate        = "roomUpdate"
	TypeRoomClosed        = "roomClosed"
	TypeError             = "error"
)

// 穩定的錯誤代碼 / 錯誤字串（客戶端依賴這些值做分支）
const (
	ErrActiveSessionExists = "ACTIVE_SESSION_EXISTS"
	ErrRoomNotFoundOrFull  = "Room not found or full"
	ErrInvalidJSON         = "Invalid JSON"
)

// CreateRequest roomCreate 請求
type CreateRequest struct {
	CorrelationID string `json:"correlationId"`
	HostID        string `json:"hostId,omitempty"`
	Username      string `json:"username,omitempty"`
}

// JoinRequest roomJoin 請求
type JoinRequest struct {
	CorrelationID string `json:"correlationId"`
	Code          string `json:"code"`
	PlayerID      string `json:"playerId,omitempty"`
	Username      string `json:"username,omitempty"`
}

// LeaveRequest room:leave 請求
type LeaveRequest struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

// Inbound 解碼後的入站消息
//
// 封閉聯合：Create / Join / Leave 恰有一個非 nil，
// 或三者皆 nil 表示未識別類型（轉發變體）。
// Raw 永遠保留原始位元組，轉發時逐字使用。
type Inbound struct {
	Type   string
	Create *CreateRequest
	Join   *JoinRequest
	Leave  *LeaveRequest
	Raw    json.RawMessage
}

// DecodeInbound 解析入站幀
//
// 兩段式解析：先探測 type 欄位，再按類型解碼成具體結構。
// 任何一段失敗都視為格式錯誤（malformed input）。
func DecodeInbound(data []byte) (*Inbound, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("解析消息失敗: %w", err)
	}

	msg := &Inbound{Type: probe.Type, Raw: data}

	switch probe.Type {
	case TypeRoomCreate:
		var req CreateRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("解析 roomCreate 失敗: %w", err)
		}
		msg.Create = &req
	case TypeRoomJoin:
		var req JoinRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("解析 roomJoin 失敗: %w", err)
		}
		msg.Join = &req
	case TypeRoomLeave:
		var req LeaveRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("解析 room:leave 失敗: %w", err)
		}
		msg.Leave = &req
	}

	return msg, nil
}

// roomResultFrame 帶房間內容的回應 / 廣播幀
type roomResultFrame struct {
	Type          string        `json:"type"`
	CorrelationID string        `json:"correlationId,omitempty"`
	RoomID        string        `json:"roomId"`
	Code          string        `json:"code"`
	Players       []*PlayerInfo `json:"players"`
}

// failureFrame 業務規則拒絕幀
type failureFrame struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlationId,omitempty"`
	Error         string `json:"error"`
}

// roomClosedFrame 房間解散通知
type roomClosedFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// errorFrame 格式錯誤回應
type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// 以下構造器輸出已序列化的幀。這些結構不含不可序列化的類型，
// Marshal 不會失敗，錯誤直接忽略（與回應路徑上的最佳努力語義一致）。

func encodeRoomResult(msgType, correlationID string, room *Room) []byte {
	data, _ := json.Marshal(roomResultFrame{
		Type:          msgType,
		CorrelationID: correlationID,
		RoomID:        room.ID,
		Code:          room.Code,
		Players:       room.Players,
	})
	return data
}

func encodeFailure(msgType, correlationID, errMsg string) []byte {
	data, _ := json.Marshal(failureFrame{
		Type:          msgType,
		CorrelationID: correlationID,
		Error:         errMsg,
	})
	return data
}

func encodeRoomClosed(roomID string) []byte {
	data, _ := json.Marshal(roomClosedFrame{
		Type:   TypeRoomClosed,
		RoomID: roomID,
	})
	return data
}

func encodeError(errMsg string) []byte {
	data, _ := json.Marshal(errorFrame{
		Type:  TypeError,
		Error: errMsg,
	})
	return data
}
