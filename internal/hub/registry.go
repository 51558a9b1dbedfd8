package hub

import "sync"

// Registry 保存进程内的会话表和房间成员表。
// 两张表只存在于单个协调进程中，不跨进程共享。
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[string][]string // roomID -> 按加入顺序排列的 sessionID
}

// NewRegistry 创建空的 Registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		rooms:    make(map[string][]string),
	}
}

// Add 把会话登记到两张表中，返回是否新建了房间条目
func (r *Registry) Add(s *Session) (created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
	members, ok := r.rooms[s.RoomID()]
	for _, id := range members {
		if id == s.ID() {
			return false
		}
	}
	r.rooms[s.RoomID()] = append(members, s.ID())
	return !ok
}

// Leave 把会话从所在房间的成员集合中移除，会话表中的条目保留。
// 房间条目即使变空也保留，由 DeleteIfEmpty 删除。
func (r *Registry) Leave(sessionID string) (roomID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, found := r.sessions[sessionID]
	if !found {
		return "", false
	}
	members := r.rooms[s.RoomID()]
	for i, id := range members {
		if id == sessionID {
			r.rooms[s.RoomID()] = append(members[:i:i], members[i+1:]...)
			return s.RoomID(), true
		}
	}
	return s.RoomID(), false
}

// Forget 从会话表中删除会话
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
}

// Session 根据 ID 查找会话
func (r *Registry) Session(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Members 返回房间当前的会话，按加入顺序
func (r *Registry) Members(roomID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.rooms[roomID]
	members := make([]*Session, 0, len(ids))
	for _, id := range ids {
		if s, ok := r.sessions[id]; ok {
			members = append(members, s)
		}
	}
	return members
}

// Roster 返回房间内所有会话的显示名称
func (r *Registry) Roster(roomID string) []string {
	members := r.Members(roomID)
	names := make([]string, 0, len(members))
	for _, s := range members {
		names = append(names, s.Name())
	}
	return names
}

// RoomSize 返回房间成员数
func (r *Registry) RoomSize(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// DeleteIfEmpty 在房间没有成员时删除房间条目
func (r *Registry) DeleteIfEmpty(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[roomID]
	if !ok || len(members) > 0 {
		return false
	}
	delete(r.rooms, roomID)
	return true
}

// RoomIDs 返回所有有成员的房间
func (r *Registry) RoomIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.rooms))
	for id, members := range r.rooms {
		if len(members) > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// Sessions 返回所有已连接会话的快照
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	return all
}
