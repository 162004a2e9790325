package service

import (
	"context"

	embeddingInfra "OmniBase/internal/modules/dataset/infrastructure/embedding"
	"OmniBase/internal/modules/dataset/domain/repository"
	"OmniBase/pkg/zlog"

	"go.uber.org/zap"
)

// embeddingCacheFor 按向量化配置定位内容缓存的 (provider, model) 键空间。
// 配置缺失或查询失败时返回 nil（清缓存是尽力而为，不阻塞主流程）。
func embeddingCacheFor(ctx context.Context, modelRepo repository.ModelConfigRepository, configId int64) *embeddingInfra.EmbeddingCache {
	mc, sup, err := modelRepo.GetEmbeddingConfig(ctx, configId)
	if err != nil {
		zlog.Warn("resolve embedding config for cache purge failed", zap.Int64("config_id", configId), zap.Error(err))
		return nil
	}
	if mc == nil || sup == nil {
		return nil
	}
	s := embeddingInfra.MergeSettings(mc, sup)
	return embeddingInfra.NewEmbeddingCache(s.Provider, s.Model)
}
