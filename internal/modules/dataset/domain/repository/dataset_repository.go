package repository

import (
	"context"

	"OmniBase/internal/modules/dataset/domain/entity"
)

// DatasetRepository 数据集元数据持久化。
//
// 重建索引哨兵的获取与释放必须走 CASCollectionRef（条件更新），
// 不允许先读后写：check-then-act 在并发下会产生双写竞态。
type DatasetRepository interface {
	Create(ctx context.Context, ds *entity.Dataset) error

	// GetByID 未找到时返回 (nil, nil)
	GetByID(ctx context.Context, id int64) (*entity.Dataset, error)

	// CASCollectionRef 仅当当前 collection_ref == expect 时改写为 next，
	// 返回是否改写成功
	CASCollectionRef(ctx context.Context, id int64, expect, next string) (bool, error)

	// UpdateEmbeddingConfigId 更新数据集绑定的向量化配置
	UpdateEmbeddingConfigId(ctx context.Context, id int64, embeddingConfigId int64) error

	// SoftDelete 软删除数据集（status 置为 deleted，不删行）
	SoftDelete(ctx context.Context, id int64) error

	// GetProcessRule 未找到时返回 (nil, nil)
	GetProcessRule(ctx context.Context, id int64) (*entity.ProcessRule, error)
}
