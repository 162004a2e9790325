package http

import (
	dsRequest "OmniBase/internal/modules/dataset/application/dto/request"
	"OmniBase/internal/modules/dataset/application/service"
	"OmniBase/pkg/back"
	"OmniBase/pkg/xerr"
	"OmniBase/pkg/zlog"

	"github.com/gin-gonic/gin"
)

// RetrievalHandler 检索、重建索引与成本估算 HTTP Handler
type RetrievalHandler struct {
	retrievalSvc service.RetrievalService
	reindexSvc   service.ReindexService
	costSvc      service.CostService
}

func NewRetrievalHandler(retrievalSvc service.RetrievalService, reindexSvc service.ReindexService, costSvc service.CostService) *RetrievalHandler {
	return &RetrievalHandler{retrievalSvc: retrievalSvc, reindexSvc: reindexSvc, costSvc: costSvc}
}

// Retrieve 执行检索
//
// 路由: POST /dataset/retrieve
func (h *RetrievalHandler) Retrieve(c *gin.Context) {
	var req dsRequest.RetrieveRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.retrievalSvc.Retrieve(c.Request.Context(), req)
	back.Result(c, data, err)
}

// Reindex 重建数据集索引
//
// 路由: POST /dataset/reindex
func (h *RetrievalHandler) Reindex(c *gin.Context) {
	var req dsRequest.ReindexRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.reindexSvc.Reindex(c.Request.Context(), req)
	back.Result(c, data, err)
}

// EstimateCost 向量化成本估算
//
// 路由: POST /dataset/cost/estimate
func (h *RetrievalHandler) EstimateCost(c *gin.Context) {
	var req dsRequest.CostEstimateRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.costSvc.EstimateCost(c.Request.Context(), req)
	back.Result(c, data, err)
}
