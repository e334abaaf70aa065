package internal

import "encoding/json"

// 系統設計問題：
//   如何在鬆散的字串事件協議上建立型別安全的分發？
//
// 核心挑戰：
//   1. 協議相容：線路格式是 {"event": 名稱, "data": 載荷} 的 JSON 信封
//   2. 封閉枚舉：入站/出站事件是固定集合，不允許未知事件改變狀態
//   3. 防禦性忽略：格式錯誤的載荷不能汙染共享狀態，也不回報錯誤
//
// 設計方案：
//   ✅ 信封 + json.RawMessage - 兩段式解碼（先辨識事件，再解析載荷）
//   ✅ 封閉的常數集合 - 未列舉的事件一律丟棄
//   ✅ 靜態載荷結構 - 每種事件對應一個固定形狀的 struct

// InboundEvent 入站事件名稱（客戶端 → 伺服器）
type InboundEvent string

const (
	EventJoinRoom    InboundEvent = "joinRoom"
	EventMove        InboundEvent = "move"
	EventSendMessage InboundEvent = "sendMessage"
)

// OutboundEvent 出站事件名稱（伺服器 → 客戶端）
type OutboundEvent string

const (
	EventChatHistory   OutboundEvent = "chatHistory"   // 單播給新加入者：完整聊天記錄
	EventRoomJoined    OutboundEvent = "roomJoined"    // 單播給新加入者：加入確認
	EventUpdatePlayers OutboundEvent = "updatePlayers" // 房間廣播：完整成員快照
	EventNewMessage    OutboundEvent = "newMessage"    // 房間廣播：新聊天訊息
)

// Envelope 入站事件信封
//
// Data 保留為 RawMessage，由分發器依事件名稱做第二段解碼。
// 解碼失敗視為格式錯誤，整個事件被丟棄（防禦性忽略策略）。
type Envelope struct {
	Event InboundEvent    `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Outbound 出站事件（序列化後推給客戶端）
type Outbound struct {
	Event OutboundEvent `json:"event"`
	Data  any           `json:"data"`
}

// JoinRoomPayload joinRoom 事件載荷
type JoinRoomPayload struct {
	RoomID     string `json:"roomId"`
	PlayerName string `json:"playerName,omitempty"`
}

// MovePayload move 事件載荷
type MovePayload struct {
	RoomID    string  `json:"roomId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Direction Vector  `json:"direction"`
}

// ChatPayload sendMessage 事件載荷
type ChatPayload struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// RoomJoinedPayload roomJoined 事件載荷（加入確認）
type RoomJoinedPayload struct {
	RoomID   string             `json:"roomId"`
	PlayerID string             `json:"playerId"`
	Players  map[string]*Player `json:"players"`
}
