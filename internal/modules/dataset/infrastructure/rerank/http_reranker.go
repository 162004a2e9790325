package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"OmniBase/internal/modules/dataset/domain/repository"
	embeddingInfra "OmniBase/internal/modules/dataset/infrastructure/embedding"
	"OmniBase/internal/modules/dataset/infrastructure/tokenizer"
)

// HTTPReranker 通过交叉编码器 HTTP 服务重排序（Jina/Cohere 风格的 /rerank 接口）。
// token 消耗按查询与全部候选文本估算。
type HTTPReranker struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	model    string
	estimate tokenizer.Strategy
}

// NewReranker 按合并后的供应商配置构造重排序实现。
// provider 为 mock（或留空）时返回本地确定性实现。
func NewReranker(ctx context.Context, s embeddingInfra.Settings) (repository.Reranker, error) {
	switch strings.ToLower(s.Provider) {
	case "", "mock":
		return NewMockReranker(), nil
	default:
		if s.BaseURL == "" || s.Model == "" {
			return nil, fmt.Errorf("rerank provider %s missing baseURL/model", s.Provider)
		}
		return &HTTPReranker{
			client:   &http.Client{Timeout: 30 * time.Second},
			baseURL:  strings.TrimRight(s.BaseURL, "/"),
			apiKey:   s.APIKey,
			model:    s.Model,
			estimate: tokenizer.ForProvider(s.Provider),
		}, nil
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func (r *HTTPReranker) Rerank(ctx context.Context, query string, docs []repository.RerankInput) ([]repository.RerankResult, int64, error) {
	if len(docs) == 0 {
		return []repository.RerankResult{}, 0, nil
	}

	texts := make([]string, 0, len(docs))
	tokens := r.estimate(query) * int64(len(docs))
	for _, d := range docs {
		texts = append(texts, d.Content)
		tokens += r.estimate(d.Content)
	}

	body, err := json.Marshal(rerankRequest{Model: r.model, Query: query, Documents: texts})
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, tokens, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		bs, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, tokens, fmt.Errorf("rerank http %d: %s", resp.StatusCode, string(bs))
	}

	var rr rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, tokens, err
	}

	out := make([]repository.RerankResult, 0, len(rr.Results))
	for _, item := range rr.Results {
		if item.Index < 0 || item.Index >= len(docs) {
			continue
		}
		out = append(out, repository.RerankResult{
			SegmentId:      docs[item.Index].SegmentId,
			RelevanceScore: item.RelevanceScore,
		})
	}
	return out, tokens, nil
}

var _ repository.Reranker = (*HTTPReranker)(nil)
