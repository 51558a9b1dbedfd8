package hub

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"dormdesign/internal/metrics"
	"dormdesign/internal/service"
)

// DefaultPingInterval 是存活探测的默认周期
const DefaultPingInterval = 15 * time.Second

// Hub 管理会话与房间成员关系，分发客户端事件并向房间广播结果。
type Hub struct {
	registry     *Registry
	rooms        *service.RoomCacheService
	pingInterval time.Duration
}

// NewHub 创建 Hub 实例
func NewHub(registry *Registry, rooms *service.RoomCacheService, pingInterval time.Duration) *Hub {
	if registry == nil {
		panic("Registry cannot be nil for Hub")
	}
	if rooms == nil {
		panic("RoomCacheService cannot be nil for Hub")
	}
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	return &Hub{registry: registry, rooms: rooms, pingInterval: pingInterval}
}

// Run 按固定周期执行存活检查，直到 ctx 结束。
func (h *Hub) Run(ctx context.Context) {
	log := logrus.WithField("component", "hub")
	log.WithField("interval", h.pingInterval).Info("Hub liveness sweep running")

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Hub liveness sweep stopped")
			return
		case <-ticker.C:
			h.sweep(ctx)
		}
	}
}

// sweep 向存活的会话发出新的 ping，并断开上一轮 ping 后没有回复的会话。
// 断开后的 Detach 可能等待房间锁和空房刷写，放到独立的 goroutine 中执行，不阻塞其他房间的探测。
func (h *Hub) sweep(ctx context.Context) {
	var dead []*Session
	for _, s := range h.registry.Sessions() {
		if !s.probe() {
			dead = append(dead, s)
			continue
		}
		if err := s.transport.Ping(); err != nil {
			logrus.WithError(err).WithField("session_id", s.ID()).Debug("Failed to send ping")
		}
	}
	for _, s := range dead {
		logrus.WithFields(logrus.Fields{"session_id": s.ID(), "room_id": s.RoomID()}).
			Info("Session missed liveness check, closing it")
		s.Terminate()
		go h.Detach(ctx, s.ID())
	}
}

// Attach 登记会话，必要时把房间加载进缓存，然后向整个房间 (包括新会话) 广播名单。
func (h *Hub) Attach(ctx context.Context, s *Session) error {
	logCtx := logrus.WithFields(logrus.Fields{"component": "hub", "session_id": s.ID(), "room_id": s.RoomID()})

	if h.registry.Add(s) {
		metrics.RoomsActive.Inc()
	}
	metrics.SessionsActive.Inc()

	if err := h.rooms.Load(ctx, s.RoomID()); err != nil {
		logCtx.WithError(err).Warn("Failed to load room for new session")
		h.Detach(ctx, s.ID())
		return err
	}

	h.broadcastRoster(s.ID(), s.RoomID(), true)
	logCtx.Info("Session attached")
	return nil
}

// Detach 移除会话。名单广播在会话从会话表删除之前发出，否则无法解析发送者所在的房间。
// 房间变空时刷写并移除缓存记录，失败只记录日志。
func (h *Hub) Detach(ctx context.Context, sessionID string) {
	// 会话已被其他调用移出房间时由那次调用负责清理
	roomID, ok := h.registry.Leave(sessionID)
	if !ok {
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"component": "hub", "session_id": sessionID, "room_id": roomID})

	h.broadcastRoster(sessionID, roomID, false)
	h.registry.Forget(sessionID)
	metrics.SessionsActive.Dec()
	logCtx.Info("Session detached")

	if h.registry.RoomSize(roomID) > 0 {
		return
	}
	// 连接关闭不应中断空房刷写
	flushCtx := context.WithoutCancel(ctx)
	vacant := func() bool { return h.registry.RoomSize(roomID) == 0 }
	if err := h.rooms.Vacate(flushCtx, roomID, vacant); err != nil {
		logCtx.WithError(err).Error("Failed to evict vacant room")
	}
	if h.registry.DeleteIfEmpty(roomID) {
		metrics.RoomsActive.Dec()
	}
}

// Dispatch 处理会话发来的一条原始消息。
// 房间已不在缓存中时强制断开会话，而不是执行事件。
func (h *Hub) Dispatch(ctx context.Context, s *Session, raw []byte) {
	logCtx := logrus.WithFields(logrus.Fields{"component": "hub", "session_id": s.ID(), "room_id": s.RoomID()})

	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.fail(s, "", service.NewValidationError("malformed message"))
		return
	}
	logCtx = logCtx.WithField("event", msg.Event)

	exists, err := h.rooms.Exists(ctx, s.RoomID())
	if err != nil {
		h.fail(s, msg.Event, err)
		return
	}
	if !exists {
		metrics.StaleSessions.Inc()
		logCtx.Warn("Room no longer cached, terminating session")
		h.Detach(ctx, s.ID())
		s.Terminate()
		return
	}

	event, err := decodeEvent(msg.Event, msg.Data)
	if errors.Is(err, errUnknownEvent) {
		metrics.ObserveEvent("unknown", err)
		h.fail(s, msg.Event, service.NewValidationError("unknown event '%s'", msg.Event))
		return
	}
	if err == nil {
		err = event.handle(ctx, h, s, msg.SendResponse)
	}
	metrics.ObserveEvent(msg.Event, err)
	if err != nil {
		h.fail(s, msg.Event, err)
		return
	}
	logCtx.Debug("Event handled")
}

// fail 只向发起者发送 actionFailed。内部错误记录完整信息，客户端只收到通用消息。
func (h *Hub) fail(s *Session, action string, err error) {
	status, message := service.Classify(err)
	logCtx := logrus.WithFields(logrus.Fields{"session_id": s.ID(), "room_id": s.RoomID(), "event": action, "status": status})
	if !service.IsClientError(err) {
		logCtx.WithError(err).Error("Internal error on room event")
	} else {
		logCtx.WithError(err).Warn("Room event rejected")
	}

	payload, encErr := encode(EventActionFailed, map[string]string{"action": action, "message": message})
	if encErr != nil {
		logCtx.WithError(encErr).Error("Failed to encode actionFailed")
		return
	}
	if err := s.Send(payload); err != nil {
		logCtx.WithError(err).Debug("Failed to deliver actionFailed")
	}
}

// SendToRoom 把 payload 发送给发送者所在房间的所有会话；includeSender 为 false 时跳过发送者。
func (h *Hub) SendToRoom(senderID string, includeSender bool, payload []byte) {
	sender, ok := h.registry.Session(senderID)
	if !ok {
		logrus.WithField("session_id", senderID).Warn("Cannot broadcast: unknown sender")
		return
	}
	for _, member := range h.registry.Members(sender.RoomID()) {
		if member.ID() == senderID && !includeSender {
			continue
		}
		if err := member.Send(payload); err != nil {
			logrus.WithError(err).WithField("session_id", member.ID()).Debug("Failed to deliver message")
		}
	}
}

func (h *Hub) broadcast(s *Session, includeSender bool, event string, data interface{}) {
	payload, err := encode(event, data)
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("Failed to encode broadcast")
		return
	}
	h.SendToRoom(s.ID(), includeSender, payload)
}

func (h *Hub) broadcastRoster(senderID, roomID string, includeSender bool) {
	payload, err := encode(EventNicknamesUpdated, map[string][]string{"users": h.registry.Roster(roomID)})
	if err != nil {
		logrus.WithError(err).Error("Failed to encode roster")
		return
	}
	h.SendToRoom(senderID, includeSender, payload)
}

// ActiveRoomIDs 返回当前有会话的房间
func (h *Hub) ActiveRoomIDs() []string {
	return h.registry.RoomIDs()
}

// Shutdown 断开所有会话，房间变空时照常刷写。
func (h *Hub) Shutdown(ctx context.Context) {
	sessions := h.registry.Sessions()
	logrus.WithField("sessions", len(sessions)).Info("Hub closing all sessions")
	for _, s := range sessions {
		h.Detach(ctx, s.ID())
		s.Terminate()
	}
}

func encode(event string, data interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Event: event, Data: data})
}
