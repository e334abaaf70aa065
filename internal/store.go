package internal

import "sync"

// 固定出生點：每個玩家加入房間時的初始座標
const (
	SpawnX = 250.0
	SpawnY = 250.0
)

// SystemSender 系統訊息的發送者名稱（加入/離開公告）
const SystemSender = "System"

// Vector 二維向量（位置或朝向）
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Player 玩家的房間內狀態（每個連接、每個房間一筆）
//
// 隨 joinRoom 創建，move 事件原地覆寫座標與朝向，
// 離開房間（明確離開或斷線）時銷毀。
// 不變式：Player 存在於房間 R ⟺ 其連接目前是 R 的成員。
type Player struct {
	ID        string  `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Direction Vector  `json:"direction"`
	Name      string  `json:"name"`
}

// ChatMessage 聊天訊息（創建後不可變）
type ChatMessage struct {
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"` // epoch 毫秒
	RoomID    string `json:"roomId"`
}

// Room 房間狀態：成員映射 + 聊天記錄
type Room struct {
	ID      string
	Members map[string]*Player // connID -> Player
	Chat    []ChatMessage
}

// RoomInfo 診斷快照（GET /rooms 用）
type RoomInfo struct {
	ID          string `json:"id"`
	PlayerCount int    `json:"playerCount"`
}

// Store 房間存儲
//
// 系統設計考量：
//
//  1. 無空房間不變式：
//     成員映射一旦變空，房間條目與其聊天記錄在同一個操作內
//     同步銷毀 —— 沒有寬限期，也沒有背景清理迴圈。
//     存儲中永遠不存在零成員的房間。
//
//  2. 單一寫入者紀律：
//     所有變更都來自分發器的事件處理器（分發器自身互斥），
//     這裡的 RWMutex 只保護診斷讀取（HTTP /rooms）與
//     變更之間的並發安全，不承擔跨方法的原子性。
//
//  3. 快照語義：
//     Snapshot / History 回傳副本，呼叫者拿到的資料不會被
//     後續事件改寫 —— 廣播永遠反映變更完成後的那一刻。
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewStore 創建房間存儲
func NewStore() *Store {
	return &Store{
		rooms: make(map[string]*Room),
	}
}

// EnsureRoom 確保房間存在（不存在則創建空房間；冪等）
func (s *Store) EnsureRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rooms[roomID]; exists {
		return
	}
	s.rooms[roomID] = &Room{
		ID:      roomID,
		Members: make(map[string]*Player),
	}
}

// AddMember 插入（或覆寫）房間內該連接的 Player
//
// 房間不存在時是 no-op；呼叫者先用 EnsureRoom 保證存在。
func (s *Store) AddMember(roomID string, player *Player) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[roomID]
	if !exists {
		return
	}
	room.Members[player.ID] = player
}

// RemoveMember 刪除房間內該連接的 Player
//
// 成員映射因此變空時，整個房間條目連同聊天記錄同步銷毀
// （無條件，無寬限期）。回傳是否實際移除了成員。
func (s *Store) RemoveMember(roomID, connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[roomID]
	if !exists {
		return false
	}
	if _, member := room.Members[connID]; !member {
		return false
	}

	delete(room.Members, connID)
	if len(room.Members) == 0 {
		delete(s.rooms, roomID)
	}
	return true
}

// UpdatePosition 原地覆寫成員的座標與朝向
//
// 連接不是該房間成員時是 no-op，回傳 false。
func (s *Store) UpdatePosition(roomID, connID string, x, y float64, direction Vector) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[roomID]
	if !exists {
		return false
	}
	player, member := room.Members[connID]
	if !member {
		return false
	}

	player.X = x
	player.Y = y
	player.Direction = direction
	return true
}

// MemberName 獲取成員的顯示名稱（連接不是成員時回傳 false）
func (s *Store) MemberName(roomID, connID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, exists := s.rooms[roomID]
	if !exists {
		return "", false
	}
	player, member := room.Members[connID]
	if !member {
		return "", false
	}
	return player.Name, true
}

// AppendChat 追加聊天訊息到房間記錄
//
// 房間已不存在時靜默忽略（移除與追加競爭時可能發生）。
func (s *Store) AppendChat(roomID string, msg ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[roomID]
	if !exists {
		return
	}
	room.Chat = append(room.Chat, msg)
}

// Snapshot 獲取房間的成員快照（connID -> Player 的副本）
//
// 房間不存在時回傳空映射。Player 以值複製，後續 move
// 不會改寫已發出的快照。
func (s *Store) Snapshot(roomID string) map[string]*Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string]*Player)
	room, exists := s.rooms[roomID]
	if !exists {
		return snapshot
	}
	for connID, player := range room.Members {
		copied := *player
		snapshot[connID] = &copied
	}
	return snapshot
}

// History 獲取房間聊天記錄的有序副本（房間不存在時為空）
func (s *Store) History(roomID string) []ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, exists := s.rooms[roomID]
	if !exists {
		return []ChatMessage{}
	}
	history := make([]ChatMessage, len(room.Chat))
	copy(history, room.Chat)
	return history
}

// MemberRooms 列出該連接目前是成員的所有房間
//
// 單一房間模型下最多一個，但斷線清理防禦性掃描全部房間，
// 不假設先前的處理邏輯沒有留下殘餘條目。
func (s *Store) MemberRooms(connID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var roomIDs []string
	for roomID, room := range s.rooms {
		if _, member := room.Members[connID]; member {
			roomIDs = append(roomIDs, roomID)
		}
	}
	return roomIDs
}

// ListRooms 列出所有房間與成員數（診斷用，唯讀）
func (s *Store) ListRooms() []RoomInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]RoomInfo, 0, len(s.rooms))
	for roomID, room := range s.rooms {
		result = append(result, RoomInfo{
			ID:          roomID,
			PlayerCount: len(room.Members),
		})
	}
	return result
}

// RoomCount 獲取房間總數
func (s *Store) RoomCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
