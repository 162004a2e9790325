package queue

// 入库任务类型
const (
	TaskTypeIngestDocument = "ingest_document"
	TaskTypeReindexDataset = "reindex_dataset"
)

// IndexingTask 投递到 Kafka 的异步任务负载。
// DocumentId 仅 ingest_document 使用；EmbeddingConfigId 仅 reindex_dataset 使用。
type IndexingTask struct {
	TaskType          string `json:"task_type"`
	DatasetId         int64  `json:"dataset_id"`
	DocumentId        int64  `json:"document_id,omitempty"`
	EmbeddingConfigId int64  `json:"embedding_config_id,omitempty"`
	TraceId           string `json:"trace_id,omitempty"`
}
