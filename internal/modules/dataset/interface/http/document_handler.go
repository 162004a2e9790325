package http

import (
	dsRequest "OmniBase/internal/modules/dataset/application/dto/request"
	"OmniBase/internal/modules/dataset/application/service"
	"OmniBase/pkg/back"
	"OmniBase/pkg/xerr"
	"OmniBase/pkg/zlog"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 文档入库与生命周期 HTTP Handler
type DocumentHandler struct {
	indexingSvc  service.IndexingService
	lifecycleSvc service.LifecycleService
}

func NewDocumentHandler(indexingSvc service.IndexingService, lifecycleSvc service.LifecycleService) *DocumentHandler {
	return &DocumentHandler{indexingSvc: indexingSvc, lifecycleSvc: lifecycleSvc}
}

// Ingest 文档入库
//
// 路由: POST /dataset/document/ingest
func (h *DocumentHandler) Ingest(c *gin.Context) {
	var req dsRequest.IngestDocumentRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.indexingSvc.IngestDocument(c.Request.Context(), req)
	back.Result(c, data, err)
}

// Enable 启用文档
//
// 路由: POST /dataset/document/enable
func (h *DocumentHandler) Enable(c *gin.Context) {
	id, ok := bindId(c, "document_id")
	if !ok {
		return
	}
	back.Result(c, nil, h.lifecycleSvc.EnableDocument(c.Request.Context(), id))
}

// Disable 禁用文档
//
// 路由: POST /dataset/document/disable
func (h *DocumentHandler) Disable(c *gin.Context) {
	id, ok := bindId(c, "document_id")
	if !ok {
		return
	}
	back.Result(c, nil, h.lifecycleSvc.DisableDocument(c.Request.Context(), id))
}

// Delete 删除文档（幂等）
//
// 路由: POST /dataset/document/delete
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := bindId(c, "document_id")
	if !ok {
		return
	}
	back.Result(c, nil, h.lifecycleSvc.DeleteDocument(c.Request.Context(), id))
}
