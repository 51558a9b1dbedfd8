package hub

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultNickname 是新会话的显示名称
const DefaultNickname = "User"

// Transport 是会话底层连接的最小接口
type Transport interface {
	// Send 同步发送一条文本消息
	Send(msg []byte) error
	// Ping 发送一次存活探测，对端回复后应调用 Session.MarkAlive
	Ping() error
	// Terminate 立即关闭连接，可重复调用
	Terminate()
}

// Session 是一个连接在 Hub 中的运行时状态。
// 存活状态: ALIVE (alive=true) -> 发出 ping -> AWAITING (alive=false) -> 收到 pong -> ALIVE。
type Session struct {
	id        string
	roomID    string
	transport Transport

	mu   sync.RWMutex
	name string

	alive atomic.Bool
}

// NewSession 为 roomID 创建一个新的会话
func NewSession(roomID string, transport Transport) *Session {
	if transport == nil {
		panic("Transport cannot be nil for Session")
	}
	s := &Session{
		id:        uuid.NewString(),
		roomID:    roomID,
		transport: transport,
		name:      DefaultNickname,
	}
	s.alive.Store(true)
	return s
}

func (s *Session) ID() string     { return s.id }
func (s *Session) RoomID() string { return s.roomID }

// Name 返回显示名称
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// SetName 修改显示名称
func (s *Session) SetName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

// MarkAlive 在收到 pong 时调用
func (s *Session) MarkAlive() { s.alive.Store(true) }

// probe 从 ALIVE 进入 AWAITING。
// 返回 false 表示上一轮探测没有得到回复。
func (s *Session) probe() bool {
	return s.alive.CompareAndSwap(true, false)
}

// Send 发送消息
func (s *Session) Send(msg []byte) error { return s.transport.Send(msg) }

// Terminate 关闭底层连接
func (s *Session) Terminate() { s.transport.Terminate() }
