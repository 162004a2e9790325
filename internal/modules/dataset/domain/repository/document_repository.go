package repository

import (
	"context"

	"OmniBase/internal/modules/dataset/domain/entity"
)

type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error

	// GetByID 未找到时返回 (nil, nil)
	GetByID(ctx context.Context, id int64) (*entity.Document, error)

	// ListByDataset 按状态过滤数据集下的文档；statuses 为空时返回所有未删除文档
	ListByDataset(ctx context.Context, datasetId int64, statuses []int8) ([]entity.Document, error)

	UpdateStatus(ctx context.Context, id int64, status int8) error

	// UpdateIndexingResult 入库完成后回写字数、token 数与耗时
	UpdateIndexingResult(ctx context.Context, id int64, wordCount, tokenCount, latencyMs int64) error

	// SoftDeleteByDataset 软删除数据集下所有文档
	SoftDeleteByDataset(ctx context.Context, datasetId int64) error
}
