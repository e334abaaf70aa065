package internal

import "sync"

// Registry 連接註冊表
//
// 追蹤每個存活連接目前所屬的房間（最多一個）。
// 單一房間不變式在這裡是結構性的：成員關係直接儲存為
// 連接 → 房間的映射，而不是靠掃描所有房間反推。
//
// 純簿記，沒有失敗模式；所有變更都由分發器在單一寫入者
// 紀律下進行，這裡的鎖只保護映射本身的讀寫。
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]string // connID -> roomID
}

// NewRegistry 創建連接註冊表
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]string),
	}
}

// RecordMembership 記錄連接的房間歸屬（覆寫任何先前的歸屬）
//
// 呼叫者（分發器）負責在呼叫前把連接從舊房間的成員映射移除。
func (r *Registry) RecordMembership(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[connID] = roomID
}

// CurrentRoom 獲取連接目前所屬的房間
func (r *Registry) CurrentRoom(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.rooms[connID]
	return roomID, ok
}

// ClearMembership 清除連接的房間歸屬（斷線或明確離開時呼叫）
func (r *Registry) ClearMembership(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, connID)
}

// Count 獲取有房間歸屬的連接數
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
