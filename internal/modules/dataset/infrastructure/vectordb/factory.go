package vectordb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"OmniBase/internal/config"
	"OmniBase/internal/modules/dataset/domain/repository"
	embeddingInfra "OmniBase/internal/modules/dataset/infrastructure/embedding"
	"OmniBase/internal/modules/dataset/infrastructure/tokenizer"

	"github.com/cloudwego/eino/components/embedding"
	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// NewFactory 按配置的后端类型构造工厂。类型在配置加载时已经收敛成枚举，
// 这里不接受任意字符串。
func NewFactory(kind config.VectorStoreKind, cli mclient.Client, providers *embeddingInfra.ProviderCache) (repository.VectorStoreFactory, error) {
	switch kind {
	case config.VectorStoreMilvus:
		if cli == nil {
			return nil, fmt.Errorf("milvus backend selected but client is nil")
		}
		return NewMilvusFactory(cli, providers), nil
	case config.VectorStoreMemory:
		return NewMemoryFactory(providers), nil
	default:
		return nil, fmt.Errorf("unknown vector store backend: %q", kind)
	}
}

// MilvusFactory 每次 Open 组装一条新的 Embedder 链与集合句柄。
// 重建索引会用不同的 collectionRef 同时打开新旧两个集合。
type MilvusFactory struct {
	cli       mclient.Client
	providers *embeddingInfra.ProviderCache
}

func NewMilvusFactory(cli mclient.Client, providers *embeddingInfra.ProviderCache) *MilvusFactory {
	return &MilvusFactory{cli: cli, providers: providers}
}

func (f *MilvusFactory) Open(ctx context.Context, embeddingConfigId int64, collectionRef string) (repository.VectorStore, error) {
	chain, dim, err := buildEmbedderChain(ctx, f.providers, embeddingConfigId)
	if err != nil {
		return nil, err
	}
	store, err := NewMilvusStore(f.cli, collectionRef, dim, entity.COSINE)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	return NewMilvusVectorStore(store, chain.embedder, chain.counter), nil
}

// MemoryFactory 集合表跨 Open 调用共享，同名集合拿到同一份数据
type MemoryFactory struct {
	providers *embeddingInfra.ProviderCache

	mu    sync.Mutex
	colls map[string]*memoryCollection
}

func NewMemoryFactory(providers *embeddingInfra.ProviderCache) *MemoryFactory {
	return &MemoryFactory{providers: providers, colls: make(map[string]*memoryCollection)}
}

func (f *MemoryFactory) Open(ctx context.Context, embeddingConfigId int64, collectionRef string) (repository.VectorStore, error) {
	chain, _, err := buildEmbedderChain(ctx, f.providers, embeddingConfigId)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	coll, ok := f.colls[collectionRef]
	if !ok {
		coll = newMemoryCollection()
		f.colls[collectionRef] = coll
	}
	f.mu.Unlock()
	return NewMemoryVectorStore(coll, chain.embedder, chain.counter), nil
}

type embedderChain struct {
	embedder embedding.Embedder
	counter  *atomic.Int64
}

// buildEmbedderChain 组装 缓存 -> 计数 -> 供应商 三层：
// 缓存命中不经过计数层，成本只按真实发往供应商的文本累计。
func buildEmbedderChain(ctx context.Context, providers *embeddingInfra.ProviderCache, embeddingConfigId int64) (*embedderChain, int, error) {
	emb, meta, err := providers.GetEmbedder(ctx, embeddingConfigId)
	if err != nil {
		return nil, 0, err
	}
	dim := meta.Dimensions
	if dim <= 0 {
		dim = 768
	}

	counter := &atomic.Int64{}
	counting := embeddingInfra.NewTokenCountingEmbedder(emb, tokenizer.ForProvider(meta.Provider), counter)
	cached := embeddingInfra.NewCachedEmbedder(counting, embeddingInfra.NewEmbeddingCache(meta.Provider, meta.Model))
	return &embedderChain{embedder: cached, counter: counter}, dim, nil
}

var (
	_ repository.VectorStoreFactory = (*MilvusFactory)(nil)
	_ repository.VectorStoreFactory = (*MemoryFactory)(nil)
)
