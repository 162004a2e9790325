package persistence

import (
	"context"
	"errors"

	"OmniBase/internal/modules/dataset/domain/entity"
	"OmniBase/internal/modules/dataset/domain/repository"

	"gorm.io/gorm"
)

type modelConfigRepository struct {
	db *gorm.DB
}

func NewModelConfigRepository(db *gorm.DB) repository.ModelConfigRepository {
	return &modelConfigRepository{db: db}
}

func (r *modelConfigRepository) GetEmbeddingConfig(ctx context.Context, configId int64) (*entity.ModelConfig, *entity.ModelSupplier, error) {
	var mc entity.ModelConfig
	err := r.db.WithContext(ctx).
		Where("id = ? AND model_type = ? AND status = ?", configId, entity.ModelTypeEmbedding, entity.CommonStatusEnabled).
		Take(&mc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	sup, err := r.getSupplier(ctx, mc.SupplierId)
	if err != nil {
		return nil, nil, err
	}
	if sup == nil {
		return nil, nil, nil
	}
	return &mc, sup, nil
}

func (r *modelConfigRepository) GetTenantRerankConfig(ctx context.Context, tenantId string) (*entity.ModelConfig, *entity.ModelSupplier, error) {
	return r.getTenantConfig(ctx, tenantId, entity.ModelTypeRerank)
}

func (r *modelConfigRepository) GetTenantEmbeddingConfig(ctx context.Context, tenantId string) (*entity.ModelConfig, *entity.ModelSupplier, error) {
	return r.getTenantConfig(ctx, tenantId, entity.ModelTypeEmbedding)
}

// getTenantConfig 取租户当前启用的某类模型配置，多条时取最新一条
func (r *modelConfigRepository) getTenantConfig(ctx context.Context, tenantId, modelType string) (*entity.ModelConfig, *entity.ModelSupplier, error) {
	var mc entity.ModelConfig
	err := r.db.WithContext(ctx).
		Joins("JOIN ds_model_supplier ON ds_model_supplier.id = ds_model_config.supplier_id").
		Where("ds_model_supplier.tenant_id = ? AND ds_model_supplier.status = ?", tenantId, entity.CommonStatusEnabled).
		Where("ds_model_config.model_type = ? AND ds_model_config.status = ?", modelType, entity.CommonStatusEnabled).
		Order("ds_model_config.id DESC").
		Take(&mc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	sup, err := r.getSupplier(ctx, mc.SupplierId)
	if err != nil {
		return nil, nil, err
	}
	if sup == nil {
		return nil, nil, nil
	}
	return &mc, sup, nil
}

func (r *modelConfigRepository) getSupplier(ctx context.Context, supplierId int64) (*entity.ModelSupplier, error) {
	var sup entity.ModelSupplier
	err := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", supplierId, entity.CommonStatusEnabled).
		Take(&sup).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sup, nil
}
