package persistence

import (
	"context"
	"errors"
	"time"

	"OmniBase/internal/modules/dataset/domain/entity"
	"OmniBase/internal/modules/dataset/domain/repository"

	"gorm.io/gorm"
)

type datasetRepository struct {
	db *gorm.DB
}

func NewDatasetRepository(db *gorm.DB) repository.DatasetRepository {
	return &datasetRepository{db: db}
}

func (r *datasetRepository) Create(ctx context.Context, ds *entity.Dataset) error {
	return r.db.WithContext(ctx).Create(ds).Error
}

func (r *datasetRepository) GetByID(ctx context.Context, id int64) (*entity.Dataset, error) {
	var ds entity.Dataset
	err := r.db.WithContext(ctx).Where("id = ? AND status != ?", id, entity.CommonStatusDeleted).Take(&ds).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ds, nil
}

// CASCollectionRef 条件更新实现比较并交换：
// UPDATE ds_dataset SET collection_ref = next WHERE id = ? AND collection_ref = expect。
// 受影响行数为 0 即竞争失败（或值已变），由调用方决定重试还是放弃。
func (r *datasetRepository) CASCollectionRef(ctx context.Context, id int64, expect, next string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&entity.Dataset{}).
		Where("id = ? AND collection_ref = ?", id, expect).
		Updates(map[string]interface{}{
			"collection_ref": next,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *datasetRepository) UpdateEmbeddingConfigId(ctx context.Context, id int64, embeddingConfigId int64) error {
	return r.db.WithContext(ctx).
		Model(&entity.Dataset{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"embedding_config_id": embeddingConfigId,
			"updated_at":          time.Now(),
		}).Error
}

func (r *datasetRepository) SoftDelete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&entity.Dataset{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     entity.CommonStatusDeleted,
			"updated_at": time.Now(),
		}).Error
}

func (r *datasetRepository) GetProcessRule(ctx context.Context, id int64) (*entity.ProcessRule, error) {
	var rule entity.ProcessRule
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}
