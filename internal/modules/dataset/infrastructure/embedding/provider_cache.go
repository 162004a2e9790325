package embedding

import (
	"context"
	"fmt"
	"sync"

	"OmniBase/internal/modules/dataset/domain/repository"
	"OmniBase/pkg/zlog"

	"github.com/cloudwego/eino/components/embedding"
	"go.uber.org/zap"
)

// RerankerBuilder 由 rerank 包注入，避免 embedding 与 rerank 互相依赖
type RerankerBuilder func(ctx context.Context, s Settings) (repository.Reranker, error)

// ProviderCache 进程级供应商句柄缓存，显式构造、显式注入（不做包级全局状态）。
//
// 语义：
//   - 同一 key 的并发首次请求只构造一次：后到者阻塞在该 key 的 sync.Once 上，
//     等待首个构造完成（不会冗余构造再丢弃）。
//   - 仅 locally_hosted 的供应商进入常驻缓存（本地模型加载昂贵，值得保温）；
//     远程 API 供应商构造廉价且凭证可能轮换，构造完成后即从表中摘除。
//   - 随进程存活，无淘汰。
type ProviderCache struct {
	repo    repository.ModelConfigRepository
	buildRR RerankerBuilder

	mu        sync.Mutex
	embedders map[int64]*embedderEntry
	rerankers map[string]*rerankerEntry
}

type embedderEntry struct {
	once sync.Once
	emb  embedding.Embedder
	meta Settings
	err  error
}

type rerankerEntry struct {
	once sync.Once
	rr   repository.Reranker
	meta Settings
	err  error
}

func NewProviderCache(repo repository.ModelConfigRepository, buildRR RerankerBuilder) *ProviderCache {
	return &ProviderCache{
		repo:      repo,
		buildRR:   buildRR,
		embedders: make(map[int64]*embedderEntry),
		rerankers: make(map[string]*rerankerEntry),
	}
}

// GetEmbedder 按 embedding_config_id 取（或构造）向量化供应商句柄
func (c *ProviderCache) GetEmbedder(ctx context.Context, configId int64) (embedding.Embedder, Settings, error) {
	c.mu.Lock()
	e, ok := c.embedders[configId]
	if !ok {
		e = &embedderEntry{}
		c.embedders[configId] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		mc, sup, err := c.repo.GetEmbeddingConfig(ctx, configId)
		if err != nil {
			e.err = err
			return
		}
		if mc == nil || sup == nil {
			e.err = fmt.Errorf("embedding config %d not found", configId)
			return
		}
		e.meta = MergeSettings(mc, sup)
		e.emb, e.err = BuildEmbedder(ctx, e.meta)
		if e.err == nil {
			zlog.Info("embedder constructed", zap.Int64("config_id", configId), zap.String("provider", e.meta.Provider), zap.String("model", e.meta.Model), zap.Bool("locally_hosted", e.meta.LocallyHosted))
		}
	})

	// 构造失败或远程供应商：从表中摘除，下次调用重新构造
	if e.err != nil || !e.meta.LocallyHosted {
		c.mu.Lock()
		if c.embedders[configId] == e {
			delete(c.embedders, configId)
		}
		c.mu.Unlock()
	}
	return e.emb, e.meta, e.err
}

// GetReranker 按租户取（或构造）重排序供应商句柄
func (c *ProviderCache) GetReranker(ctx context.Context, tenantId string) (repository.Reranker, Settings, error) {
	c.mu.Lock()
	e, ok := c.rerankers[tenantId]
	if !ok {
		e = &rerankerEntry{}
		c.rerankers[tenantId] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		mc, sup, err := c.repo.GetTenantRerankConfig(ctx, tenantId)
		if err != nil {
			e.err = err
			return
		}
		if mc == nil || sup == nil {
			e.err = fmt.Errorf("tenant %s has no rerank config", tenantId)
			return
		}
		e.meta = MergeSettings(mc, sup)
		if c.buildRR == nil {
			e.err = fmt.Errorf("reranker builder not wired")
			return
		}
		e.rr, e.err = c.buildRR(ctx, e.meta)
	})

	if e.err != nil || !e.meta.LocallyHosted {
		c.mu.Lock()
		if c.rerankers[tenantId] == e {
			delete(c.rerankers, tenantId)
		}
		c.mu.Unlock()
	}
	return e.rr, e.meta, e.err
}
