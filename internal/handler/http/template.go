package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dormdesign/internal/domain"
	"dormdesign/internal/service"
)

// TemplateHandler 提供模板的只读接口
type TemplateHandler struct {
	roomService  *service.RoomService
	cacheService *service.RoomCacheService
}

// NewTemplateHandler 创建 TemplateHandler 实例
func NewTemplateHandler(roomService *service.RoomService, cacheService *service.RoomCacheService) *TemplateHandler {
	if roomService == nil || cacheService == nil {
		panic("RoomService and RoomCacheService cannot be nil for TemplateHandler")
	}
	return &TemplateHandler{roomService: roomService, cacheService: cacheService}
}

// FeaturedResponse 是精选模板列表
type FeaturedResponse struct {
	Templates []domain.TemplateSummary `json:"templates"`
}

// ListFeatured 处理 GET /api/template/featured
func (h *TemplateHandler) ListFeatured(c *gin.Context) {
	templates, err := h.roomService.ListFeatured(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, FeaturedResponse{Templates: templates})
}

// GetTemplate 处理 GET /api/template/:id，返回不含房间 ID 的模板
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	room, err := h.cacheService.LookupTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room.AsTemplate())
}
