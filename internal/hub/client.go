package hub

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// Client 是基于 gorilla/websocket 的 Transport。
// 发送是同步的，写锁保证同一时刻只有一个写者。
type Client struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// NewClient 包装一个已升级的 WebSocket 连接
func NewClient(conn *websocket.Conn) *Client {
	if conn == nil {
		panic("websocket connection cannot be nil for Client")
	}
	return &Client{conn: conn}
}

// Send 写入一条文本消息
func (c *Client) Send(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Ping 发送 ping 控制帧，可与 Send 并发调用
func (c *Client) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Terminate 关闭连接
func (c *Client) Terminate() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// ReadPump 把连接上收到的文本消息交给 Hub 分发，直到连接关闭。
// 退出时从 Hub 中移除会话。
func (c *Client) ReadPump(ctx context.Context, h *Hub, s *Session) {
	logCtx := logrus.WithFields(logrus.Fields{"session_id": s.ID(), "room_id": s.RoomID()})
	defer func() {
		h.Detach(ctx, s.ID())
		c.Terminate()
		logCtx.Debug("readPump exited")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		s.MarkAlive()
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logCtx.WithError(err).Debug("WebSocket read error (unexpected close)")
			}
			return
		}
		if messageType != websocket.TextMessage {
			logCtx.Debugf("Ignoring non-text message type: %d", messageType)
			continue
		}
		h.Dispatch(ctx, s, message)
	}
}
