package http

import (
	"strconv"
	"strings"

	dsRequest "OmniBase/internal/modules/dataset/application/dto/request"
	"OmniBase/internal/modules/dataset/application/service"
	"OmniBase/pkg/back"
	"OmniBase/pkg/xerr"
	"OmniBase/pkg/zlog"

	"github.com/gin-gonic/gin"
)

// DatasetHandler 数据集开通与删除 HTTP Handler
type DatasetHandler struct {
	datasetSvc   service.DatasetService
	lifecycleSvc service.LifecycleService
}

func NewDatasetHandler(datasetSvc service.DatasetService, lifecycleSvc service.LifecycleService) *DatasetHandler {
	return &DatasetHandler{datasetSvc: datasetSvc, lifecycleSvc: lifecycleSvc}
}

// Create 创建数据集
//
// 路由: POST /dataset/create
func (h *DatasetHandler) Create(c *gin.Context) {
	var req dsRequest.CreateDatasetRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.datasetSvc.CreateDataset(c.Request.Context(), req)
	back.Result(c, data, err)
}

// Delete 删除数据集（幂等）
//
// 路由: POST /dataset/delete
func (h *DatasetHandler) Delete(c *gin.Context) {
	id, ok := bindId(c, "dataset_id")
	if !ok {
		return
	}
	back.Result(c, nil, h.lifecycleSvc.DeleteDataset(c.Request.Context(), id))
}

// bindId 从 JSON 体里取单个 id 字段（数字或数字字符串皆可）
func bindId(c *gin.Context, field string) (int64, bool) {
	var body map[string]interface{}
	if err := c.BindJSON(&body); err != nil {
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return 0, false
	}
	raw, ok := body[field]
	if !ok {
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return int64(v), true
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || id <= 0 {
			back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
			return 0, false
		}
		return id, true
	default:
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return 0, false
	}
}
