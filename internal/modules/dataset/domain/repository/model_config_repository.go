package repository

import (
	"context"

	"OmniBase/internal/modules/dataset/domain/entity"
)

// ModelConfigRepository 持久化的供应商/模型配置。
// Provider Cache 按 embedding_config_id（或租户，对重排序）取出这对配置并合并实例化。
type ModelConfigRepository interface {
	// GetEmbeddingConfig 返回模型级配置与其供应商级配置；未找到时 (nil, nil, nil)
	GetEmbeddingConfig(ctx context.Context, configId int64) (*entity.ModelConfig, *entity.ModelSupplier, error)

	// GetTenantRerankConfig 返回租户当前启用的重排序配置；未配置时 (nil, nil, nil)
	GetTenantRerankConfig(ctx context.Context, tenantId string) (*entity.ModelConfig, *entity.ModelSupplier, error)

	// GetTenantEmbeddingConfig 返回租户当前启用的向量化配置（成本估算用）
	GetTenantEmbeddingConfig(ctx context.Context, tenantId string) (*entity.ModelConfig, *entity.ModelSupplier, error)
}
