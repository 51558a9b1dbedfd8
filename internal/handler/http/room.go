package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"dormdesign/internal/service"
)

// RoomHandler 封装了与房间管理相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService  *service.RoomService
	cacheService *service.RoomCacheService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService, cacheService *service.RoomCacheService) *RoomHandler {
	if roomService == nil || cacheService == nil {
		panic("RoomService and RoomCacheService cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService, cacheService: cacheService}
}

// CreateRoomRequest 是创建房间的请求体，两个字段都可省略
type CreateRoomRequest struct {
	Name       *string `json:"name"`
	TemplateID *string `json:"templateId"`
}

// CreateRoom 处理 POST /api/room/create
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	room, err := h.roomService.Create(c.Request.Context(), req.Name, req.TemplateID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	logrus.WithFields(logrus.Fields{"room_id": room.ID, "template_id": room.TemplateID}).Info("Handler.CreateRoom: Room created")
	SuccessResponse(c, http.StatusOK, room)
}

// GetRoom 处理 GET /api/room/get?id=，房间活跃时返回缓存中的副本
func (h *RoomHandler) GetRoom(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		ErrorResponse(c, http.StatusBadRequest, "Query parameter 'id' is required")
		return
	}
	room, err := h.cacheService.Lookup(c.Request.Context(), id)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}
