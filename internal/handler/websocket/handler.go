package websocket

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"dormdesign/internal/hub"
	"dormdesign/internal/service"
)

// WebSocketHandler 负责 WebSocket 升级并把连接登记到 Hub
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	hub         *hub.Hub
	roomService *service.RoomService
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。
// allowedOrigin 为空或 "*" 时接受任意来源。
func NewWebSocketHandler(h *hub.Hub, roomService *service.RoomService, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if roomService == nil {
		panic("RoomService cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowedOrigin == "" || allowedOrigin == "*" || origin == "" || origin == allowedOrigin
		},
	}

	return &WebSocketHandler{
		upgrader:    upgrader,
		hub:         h,
		roomService: roomService,
	}
}

// HandleConnection 处理 WebSocket 连接请求
// URL 预期格式: /ws?id={roomId}
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	roomID := c.Query("id")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Query parameter 'id' is required"})
		return
	}
	logCtx := logrus.WithField("room_id", roomID)

	if _, err := h.roomService.Get(c.Request.Context(), roomID); err != nil {
		status, message := service.Classify(err)
		if errors.Is(err, service.ErrRoomNotFound) {
			logCtx.Warn("WS Handler: Room not found")
		} else {
			logCtx.WithError(err).Error("WS Handler: Error checking room existence")
		}
		c.JSON(status, gin.H{"message": message})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了 HTTP 错误
		logCtx.WithError(err).Warn("WS Handler: Failed to upgrade connection")
		return
	}

	client := hub.NewClient(conn)
	session := hub.NewSession(roomID, client)
	logCtx = logCtx.WithField("session_id", session.ID())

	// 连接的生命周期长于本次请求
	ctx := context.WithoutCancel(c.Request.Context())
	if err := h.hub.Attach(ctx, session); err != nil {
		logCtx.WithError(err).Warn("WS Handler: Failed to attach session")
		client.Terminate()
		return
	}

	go client.ReadPump(ctx, h.hub, session)
	logCtx.Debug("WS Handler: read pump started")
}
