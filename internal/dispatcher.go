package internal

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// 系統設計問題：
//   多個連接的事件並發到達，如何保證房間狀態永遠一致？
//
// 核心挑戰：
//   1. 原子性：換房（join）必須是「離開舊房 + 加入新房」的單一步驟
//   2. 順序性：通知的順序（記錄重放 → 確認 → 快照 → 訊息）不能交錯
//   3. 隔離性：任一連接的事件處理不能觀察到半完成的狀態
//   4. 韌性：格式錯誤或前置條件不符的事件不能汙染狀態，也不能中斷服務
//
// 設計方案：
//   ✅ 單一互斥鎖 - 每個事件處理到完成（含廣播扇出）才輪到下一個
//   ✅ 離開再加入 - 換房客戶端永遠不會留下孤兒成員記錄
//   ✅ 防禦性 no-op - 不符前置條件的事件靜默忽略，不回報
//   ✅ 射後不理廣播 - 投遞不等待確認，慢客戶端不拖累處理器

// Sender 出站事件投遞介面（由 WebSocket Hub 實現）
//
// 投遞是射後不理：不回傳錯誤、不等待確認、不產生背壓。
// 目標連接不存在或緩衝已滿時，事件被丟棄。
type Sender interface {
	Send(connID string, event Outbound)
}

// Dispatcher 事件分發器
//
// 每個連接的狀態機：Unjoined → InRoom(r) → Unjoined（離開/斷線），
// 或 InRoom(r) → InRoom(r')（換房 = 原子的離開再加入）。
//
// 所有入站事件（join/move/chat/disconnect）都在 mu 之下處理到
// 完成，包括全部廣播扇出。Store 與 Registry 只被這裡變更，
// 單一寫入者紀律由結構保證，而非依賴排程巧合。
type Dispatcher struct {
	mu       sync.Mutex
	store    *Store
	registry *Registry
	sender   Sender
	logger   *slog.Logger
}

// NewDispatcher 創建事件分發器
func NewDispatcher(store *Store, registry *Registry, sender Sender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		registry: registry,
		sender:   sender,
		logger:   logger,
	}
}

// Dispatch 解碼並分發一個入站事件
//
// 兩段式解碼：先辨識事件名稱，再解析對應的靜態載荷。
// 格式錯誤或未列舉的事件一律丟棄（防禦性 no-op 策略），
// 只留 debug 日誌，不回報給發送者。
func (d *Dispatcher) Dispatch(connID string, raw []byte) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		d.logger.Debug("丟棄無法解析的事件", "conn_id", connID, "error", err)
		return
	}

	switch envelope.Event {
	case EventJoinRoom:
		var payload JoinRoomPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			d.logger.Debug("丟棄格式錯誤的 joinRoom 載荷", "conn_id", connID, "error", err)
			return
		}
		d.HandleJoin(connID, payload)
	case EventMove:
		var payload MovePayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			d.logger.Debug("丟棄格式錯誤的 move 載荷", "conn_id", connID, "error", err)
			return
		}
		d.HandleMove(connID, payload)
	case EventSendMessage:
		var payload ChatPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			d.logger.Debug("丟棄格式錯誤的 sendMessage 載荷", "conn_id", connID, "error", err)
			return
		}
		d.HandleChat(connID, payload)
	default:
		d.logger.Debug("丟棄未知事件", "conn_id", connID, "event", envelope.Event)
	}
}

// HandleJoin 處理 joinRoom 事件
//
// 已在其他房間時，先以斷線處理器的清理效果離開舊房
// （只作用於舊房），再加入新房 —— 兩者在同一個鎖持有
// 期間完成，換房對外是原子的。
//
// 通知順序（契約）：
//  1. 單播給加入者：新房的完整聊天記錄（不含本次加入公告）
//  2. 單播給加入者：加入確認（房間 ID、自身連接 ID、成員快照）
//  3. 廣播給全房（含加入者）：更新後的成員快照
//  4. 廣播給全房（含加入者）：加入公告的系統訊息
func (d *Dispatcher) HandleJoin(connID string, payload JoinRoomPayload) {
	if payload.RoomID == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// 換房：先離開舊房（含重新加入同一房間的情況）
	if oldRoomID, ok := d.registry.CurrentRoom(connID); ok {
		d.leaveRoom(connID, oldRoomID)
	}

	name := payload.PlayerName
	if name == "" {
		name = DefaultPlayerName(connID)
	}

	d.store.EnsureRoom(payload.RoomID)

	// 記錄重放先於任何新的追加
	history := d.store.History(payload.RoomID)

	player := &Player{
		ID:        connID,
		X:         SpawnX,
		Y:         SpawnY,
		Direction: Vector{},
		Name:      name,
	}
	d.store.AddMember(payload.RoomID, player)
	d.registry.RecordMembership(connID, payload.RoomID)

	snapshot := d.store.Snapshot(payload.RoomID)
	d.sender.Send(connID, Outbound{Event: EventChatHistory, Data: history})
	d.sender.Send(connID, Outbound{Event: EventRoomJoined, Data: RoomJoinedPayload{
		RoomID:   payload.RoomID,
		PlayerID: connID,
		Players:  snapshot,
	}})

	system := d.systemMessage(payload.RoomID, name+" joined the room")
	d.store.AppendChat(payload.RoomID, system)

	d.broadcast(payload.RoomID, Outbound{Event: EventUpdatePlayers, Data: snapshot})
	d.broadcast(payload.RoomID, Outbound{Event: EventNewMessage, Data: system})

	d.logger.Info("玩家加入房間",
		"room_id", payload.RoomID,
		"conn_id", connID,
		"player_name", name)
}

// HandleMove 處理 move 事件
//
// 連接不是該房間成員時是 no-op。成功後向全房廣播
// 完整成員快照（而非增量 —— 以帶寬換取客戶端一致性）。
func (d *Dispatcher) HandleMove(connID string, payload MovePayload) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.store.UpdatePosition(payload.RoomID, connID, payload.X, payload.Y, payload.Direction) {
		return
	}

	d.broadcast(payload.RoomID, Outbound{
		Event: EventUpdatePlayers,
		Data:  d.store.Snapshot(payload.RoomID),
	})
}

// HandleChat 處理 sendMessage 事件
//
// 連接不是該房間成員時是 no-op。發送者名稱取自存儲中的
// Player 記錄，不信任客戶端自報。
func (d *Dispatcher) HandleChat(connID string, payload ChatPayload) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name, ok := d.store.MemberName(payload.RoomID, connID)
	if !ok {
		return
	}

	msg := ChatMessage{
		Sender:    name,
		Message:   payload.Message,
		Timestamp: time.Now().UnixMilli(),
		RoomID:    payload.RoomID,
	}
	d.store.AppendChat(payload.RoomID, msg)
	d.broadcast(payload.RoomID, Outbound{Event: EventNewMessage, Data: msg})
}

// HandleDisconnect 處理斷線（傳輸層觸發，不可取消）
//
// 防禦性掃描所有房間，不假設單一房間模型必然成立：
// 對每個殘餘的成員關係執行離開清理，最後清除註冊表歸屬。
// 網絡異常與明確斷線走同一條路，清理無條件執行。
func (d *Dispatcher) HandleDisconnect(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, roomID := range d.store.MemberRooms(connID) {
		d.leaveRoom(connID, roomID)
	}
	d.registry.ClearMembership(connID)

	d.logger.Info("連接已斷開", "conn_id", connID)
}

// leaveRoom 離開單一房間的清理效果（呼叫者需持有 mu）
//
// 追加離開公告、移除成員（空房同步銷毀）、向剩餘成員
// 廣播公告與更新後的快照。房間被銷毀時沒有剩餘成員，
// 廣播自然為空。
func (d *Dispatcher) leaveRoom(connID, roomID string) {
	name, ok := d.store.MemberName(roomID, connID)
	if !ok {
		return
	}

	system := d.systemMessage(roomID, name+" left the room")
	d.store.AppendChat(roomID, system)
	d.store.RemoveMember(roomID, connID)

	snapshot := d.store.Snapshot(roomID)
	if len(snapshot) > 0 {
		d.broadcast(roomID, Outbound{Event: EventNewMessage, Data: system})
		d.broadcast(roomID, Outbound{Event: EventUpdatePlayers, Data: snapshot})
	}

	d.logger.Info("玩家離開房間",
		"room_id", roomID,
		"conn_id", connID,
		"player_name", name)
}

// broadcast 向房間所有現任成員投遞同一事件（呼叫者需持有 mu）
func (d *Dispatcher) broadcast(roomID string, event Outbound) {
	for connID := range d.store.Snapshot(roomID) {
		d.sender.Send(connID, event)
	}
}

// systemMessage 構造系統訊息
func (d *Dispatcher) systemMessage(roomID, text string) ChatMessage {
	return ChatMessage{
		Sender:    SystemSender,
		Message:   text,
		Timestamp: time.Now().UnixMilli(),
		RoomID:    roomID,
	}
}

// DefaultPlayerName 從連接 ID 派生預設顯示名稱
//
// 純函數：同一連接 ID 永遠得到同一名稱。
func DefaultPlayerName(connID string) string {
	prefix := connID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "Player-" + prefix
}
