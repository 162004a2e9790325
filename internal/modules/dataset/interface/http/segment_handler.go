package http

import (
	"OmniBase/internal/modules/dataset/application/service"
	"OmniBase/pkg/back"

	"github.com/gin-gonic/gin"
)

// SegmentHandler 分段生命周期 HTTP Handler
type SegmentHandler struct {
	lifecycleSvc service.LifecycleService
}

func NewSegmentHandler(lifecycleSvc service.LifecycleService) *SegmentHandler {
	return &SegmentHandler{lifecycleSvc: lifecycleSvc}
}

// Enable 启用分段
//
// 路由: POST /dataset/segment/enable
func (h *SegmentHandler) Enable(c *gin.Context) {
	id, ok := bindId(c, "segment_id")
	if !ok {
		return
	}
	back.Result(c, nil, h.lifecycleSvc.EnableSegment(c.Request.Context(), id))
}

// Disable 禁用分段
//
// 路由: POST /dataset/segment/disable
func (h *SegmentHandler) Disable(c *gin.Context) {
	id, ok := bindId(c, "segment_id")
	if !ok {
		return
	}
	back.Result(c, nil, h.lifecycleSvc.DisableSegment(c.Request.Context(), id))
}
