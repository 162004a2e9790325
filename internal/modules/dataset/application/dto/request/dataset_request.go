package request

// CreateDatasetRequest 创建数据集
type CreateDatasetRequest struct {
	TenantId                string  `json:"tenant_id" binding:"required"`
	AppId                   string  `json:"app_id" binding:"required"`
	Name                    string  `json:"name" binding:"required"`
	EmbeddingConfigId       int64   `json:"embedding_config_id" binding:"required"`
	RetrieverTopK           int     `json:"retriever_top_k"`
	RetrieverScoreThreshold float64 `json:"retriever_score_threshold"`
}

// IngestDocumentRequest 文档入库请求。
// source_type 为 upload_file 时取 upload_file_id，为 inline_text 时取 inline_text。
// async 为 true 时仅创建文档并投递任务，入库由消费端执行。
type IngestDocumentRequest struct {
	DatasetId     int64  `json:"dataset_id" binding:"required"`
	Name          string `json:"name" binding:"required"`
	SourceType    string `json:"source_type" binding:"required"`
	UploadFileId  string `json:"upload_file_id"`
	InlineText    string `json:"inline_text"`
	SourceTag     string `json:"source_tag"`
	ProcessRuleId int64  `json:"process_rule_id"`
	Async         bool   `json:"async"`
}

// ReindexRequest 数据集重建索引
type ReindexRequest struct {
	DatasetId         int64 `json:"dataset_id" binding:"required"`
	EmbeddingConfigId int64 `json:"embedding_config_id" binding:"required"`
	Async             bool  `json:"async"`
}

// RetrieveRequest 检索请求。dataset_ids 多于一个时走多数据集检索协议。
type RetrieveRequest struct {
	TenantId    string  `json:"tenant_id" binding:"required"`
	DatasetIds  []int64 `json:"dataset_ids" binding:"required"`
	Query       string  `json:"query" binding:"required"`
	DocumentIds []int64 `json:"document_ids"`
	UseRerank   bool    `json:"use_rerank"`
}

// CostEstimateRequest 成本估算。texts 与 document_id 二选一：
// 给 document_id 时按该文档现有分段内容估算。
type CostEstimateRequest struct {
	TenantId   string   `json:"tenant_id" binding:"required"`
	Texts      []string `json:"texts"`
	DocumentId int64    `json:"document_id"`
}
