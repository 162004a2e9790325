package respond

// DatasetRespond 数据集创建结果
type DatasetRespond struct {
	Id                int64  `json:"id"`
	Name              string `json:"name"`
	CollectionRef     string `json:"collection_ref"`
	EmbeddingConfigId int64  `json:"embedding_config_id"`
}

// IngestRespond 入库结果。异步投递时 dispatched 为 true 且统计字段为零值。
type IngestRespond struct {
	DocumentId int64 `json:"document_id"`
	WordCount  int64 `json:"word_count"`
	TokenCount int64 `json:"token_count"`
	LatencyMs  int64 `json:"latency_ms"`
	Dispatched bool  `json:"dispatched"`
}

// RetrievedSegment 单条检索命中。reranking_score 仅在启用重排序时存在。
type RetrievedSegment struct {
	SegmentId      int64    `json:"segment_id"`
	DocumentId     int64    `json:"document_id"`
	DatasetId      int64    `json:"dataset_id"`
	Content        string   `json:"content"`
	Score          float64  `json:"score"`
	RerankingScore *float64 `json:"reranking_score,omitempty"`
}

// RetrieveRespond 检索结果与本次调用的 token 消耗
type RetrieveRespond struct {
	RecordUuid      string             `json:"record_uuid"`
	Segments        []RetrievedSegment `json:"segments"`
	EmbeddingTokens int64              `json:"embedding_tokens"`
	RerankingTokens int64              `json:"reranking_tokens"`
	ElapsedMs       int64              `json:"elapsed_ms"`
}

// CostRespond 成本估算结果
type CostRespond struct {
	TotalTokens   int64   `json:"total_tokens"`
	EstimatedCost float64 `json:"estimated_cost"`
	Currency      string  `json:"currency"`
}

// ReindexRespond 重建索引结果
type ReindexRespond struct {
	DatasetId     int64  `json:"dataset_id"`
	CollectionRef string `json:"collection_ref"`
	Dispatched    bool   `json:"dispatched"`
}
