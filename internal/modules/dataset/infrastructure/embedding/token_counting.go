package embedding

import (
	"context"
	"sync/atomic"

	"OmniBase/internal/modules/dataset/infrastructure/tokenizer"

	"github.com/cloudwego/eino/components/embedding"
)

// TokenCountingEmbedder 在真正发往供应商的文本上累计 token 消耗。
// 必须包在内容缓存之内：缓存命中不产生供应商调用，也就不计 token。
type TokenCountingEmbedder struct {
	inner    embedding.Embedder
	estimate tokenizer.Strategy
	counter  *atomic.Int64
}

func NewTokenCountingEmbedder(inner embedding.Embedder, estimate tokenizer.Strategy, counter *atomic.Int64) *TokenCountingEmbedder {
	return &TokenCountingEmbedder{inner: inner, estimate: estimate, counter: counter}
}

func (e *TokenCountingEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	var total int64
	for _, t := range texts {
		total += e.estimate(t)
	}
	vecs, err := e.inner.EmbedStrings(ctx, texts, opts...)
	if err != nil {
		return nil, err
	}
	e.counter.Add(total)
	return vecs, nil
}

var _ embedding.Embedder = (*TokenCountingEmbedder)(nil)
