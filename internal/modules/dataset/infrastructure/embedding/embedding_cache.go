package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"OmniBase/pkg/redis"
	"OmniBase/pkg/zlog"

	"github.com/cloudwego/eino/components/embedding"
	"go.uber.org/zap"
)

const embeddingCacheTTL = 30 * 24 * time.Hour

// EmbeddingCache 以分段内容为键的向量缓存（Redis）。
// 同一 (provider, model) 下相同内容的重复向量化直接命中缓存；
// 切换向量化配置或重建索引时必须按内容清除，否则会拿到旧模型的向量。
type EmbeddingCache struct {
	provider string
	model    string
}

func NewEmbeddingCache(provider, model string) *EmbeddingCache {
	return &EmbeddingCache{provider: provider, model: model}
}

func (c *EmbeddingCache) key(content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("emb:%s:%s:%s", c.provider, c.model, hex.EncodeToString(sum[:]))
}

// Get 命中返回向量；未命中返回 (nil, nil)
func (c *EmbeddingCache) Get(ctx context.Context, content string) ([]float64, error) {
	if !redis.IsConnected() {
		return nil, nil
	}
	raw, err := redis.Get(ctx, c.key(content))
	if err != nil {
		if redis.IsNil(err) {
			return nil, nil
		}
		return nil, err
	}
	var vec []float64
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func (c *EmbeddingCache) Set(ctx context.Context, content string, vec []float64) error {
	if !redis.IsConnected() {
		return nil
	}
	bs, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	return redis.Set(ctx, c.key(content), string(bs), embeddingCacheTTL)
}

// PurgeContents 按内容批量清除缓存项。缓存清除失败只告警不中断：
// 最坏情况是下一次向量化多算一遍。
func (c *EmbeddingCache) PurgeContents(ctx context.Context, contents []string) {
	if !redis.IsConnected() || len(contents) == 0 {
		return
	}
	keys := make([]string, 0, len(contents))
	for _, content := range contents {
		keys = append(keys, c.key(content))
	}
	if err := redis.Del(ctx, keys...); err != nil {
		zlog.Warn("embedding cache purge failed", zap.Int("keys", len(keys)), zap.Error(err))
	}
}

// CachedEmbedder 在任意 Embedder 外包一层内容缓存
type CachedEmbedder struct {
	inner embedding.Embedder
	cache *EmbeddingCache
}

func NewCachedEmbedder(inner embedding.Embedder, cache *EmbeddingCache) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (e *CachedEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, t := range texts {
		vec, err := e.cache.Get(ctx, t)
		if err != nil {
			zlog.Warn("embedding cache get failed", zap.Error(err))
		}
		if vec != nil {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	if len(missTexts) > 0 {
		vecs, err := e.inner.EmbedStrings(ctx, missTexts, opts...)
		if err != nil {
			return nil, err
		}
		for j, i := range missIdx {
			out[i] = vecs[j]
			if err := e.cache.Set(ctx, texts[i], vecs[j]); err != nil {
				zlog.Warn("embedding cache set failed", zap.Error(err))
			}
		}
	}
	return out, nil
}

var _ embedding.Embedder = (*CachedEmbedder)(nil)
