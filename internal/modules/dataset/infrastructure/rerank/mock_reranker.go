package rerank

import (
	"context"
	"strings"

	"OmniBase/internal/modules/dataset/domain/repository"
	"OmniBase/internal/modules/dataset/infrastructure/tokenizer"
)

// MockReranker 本地确定性重排序：按查询词在候选文本中的覆盖率打分。
// 供本地开发与测试使用。
type MockReranker struct{}

func NewMockReranker() *MockReranker {
	return &MockReranker{}
}

func (m *MockReranker) Rerank(ctx context.Context, query string, docs []repository.RerankInput) ([]repository.RerankResult, int64, error) {
	terms := strings.Fields(strings.ToLower(query))
	var tokens int64 = tokenizer.EstimateByChars(query) * int64(len(docs))

	out := make([]repository.RerankResult, 0, len(docs))
	for _, d := range docs {
		tokens += tokenizer.EstimateByChars(d.Content)
		lower := strings.ToLower(d.Content)
		matched := 0
		for _, t := range terms {
			if strings.Contains(lower, t) {
				matched++
			}
		}
		score := 0.0
		if len(terms) > 0 {
			score = float64(matched) / float64(len(terms))
		}
		out = append(out, repository.RerankResult{SegmentId: d.SegmentId, RelevanceScore: score})
	}
	return out, tokens, nil
}

var _ repository.Reranker = (*MockReranker)(nil)
