package repository

import (
	"context"
	"time"

	"OmniBase/internal/modules/dataset/domain/entity"
)

type SegmentRepository interface {
	Create(ctx context.Context, seg *entity.Segment) error

	// GetByID 未找到时返回 (nil, nil)
	GetByID(ctx context.Context, id int64) (*entity.Segment, error)

	// ListByDocument 按状态过滤文档下的分段；statuses 为空时返回所有未删除分段
	ListByDocument(ctx context.Context, documentId int64, statuses []int8) ([]entity.Segment, error)

	// ListByDataset 按状态过滤数据集下的分段
	ListByDataset(ctx context.Context, datasetId int64, statuses []int8) ([]entity.Segment, error)

	// MarkIndexed 向量化成功：写入 index_id、token 数、完成时间，状态置 indexed
	MarkIndexed(ctx context.Context, id int64, indexId string, tokenCount int64, completedAt time.Time) error

	// UpdateIndexingStatus 写入状态机状态；失败时同时记录错误信息
	UpdateIndexingStatus(ctx context.Context, id int64, indexingStatus int8, errorMsg string) error

	UpdateStatus(ctx context.Context, id int64, status int8) error

	// ResetIndexing 批量回到未向量化态：index_id 作废、token 归零、
	// indexing_status=not_indexed。重建索引与禁用路径共用
	ResetIndexing(ctx context.Context, ids []int64) error

	SoftDeleteByDocument(ctx context.Context, documentId int64) error

	SoftDeleteByDataset(ctx context.Context, datasetId int64) error

	// IncrHitCount 命中计数只增不减，检索失败也不回滚
	IncrHitCount(ctx context.Context, id int64) error
}
