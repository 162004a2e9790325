package repository

import "context"

// RerankInput 待重排序的候选段落
type RerankInput struct {
	SegmentId int64
	Content   string
}

// RerankResult 重排序结果，RelevanceScore 为交叉编码器打分
type RerankResult struct {
	SegmentId      int64
	RelevanceScore float64
}

// Reranker 交叉编码器重排序能力。返回值 tokens 为本次调用消耗的 token 数。
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []RerankInput) ([]RerankResult, int64, error)
}
