package entity

import (
	"database/sql"
	"time"
)

// 通用行状态
const (
	CommonStatusDeleted  int8 = -1
	CommonStatusDisabled int8 = 0
	CommonStatusEnabled  int8 = 1
)

// 分段向量化状态机：not_indexed -> indexing -> indexed / failed
const (
	IndexingStatusNotIndexed int8 = 0
	IndexingStatusIndexing   int8 = 1
	IndexingStatusIndexed    int8 = 2
	IndexingStatusFailed     int8 = 3
)

// 检索审计记录状态
const (
	RetrievalStatusRunning int8 = 0
	RetrievalStatusSuccess int8 = 1
	RetrievalStatusFailed  int8 = 2
)

// CollectionRefReindexing 重建索引期间写入 collection_ref 的哨兵值。
// 持有该值的数据集拒绝一切入库、生命周期变更与检索请求，
// 只有设置它的编排器可以清除（通过条件更新实现，见 DatasetRepository）。
const CollectionRefReindexing = "reindexing"

// 文档来源类型
const (
	DocSourceUploadFile = "upload_file"
	DocSourceInlineText = "inline_text"
)

type Dataset struct {
	Id                int64     `gorm:"column:id;primaryKey;autoIncrement"`
	TenantId          string    `gorm:"column:tenant_id;type:char(36);not null;index:idx_ds_dataset_tenant"`
	AppId             string    `gorm:"column:app_id;type:char(36);not null"`
	Name              string    `gorm:"column:name;type:varchar(128);not null"`
	CollectionRef     string    `gorm:"column:collection_ref;type:varchar(64);not null"`
	EmbeddingConfigId int64     `gorm:"column:embedding_config_id;not null"`
	RetrieverTopK     int       `gorm:"column:retriever_top_k;type:int;not null;default:4"`
	RetrieverScoreThreshold float64 `gorm:"column:retriever_score_threshold;type:double;not null;default:0"`
	Status            int8      `gorm:"column:status;type:tinyint;not null;default:1"`
	CreatedAt         time.Time `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt         time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (Dataset) TableName() string { return "ds_dataset" }

// IsReindexing 数据集是否处于重建索引哨兵态
func (d *Dataset) IsReindexing() bool { return d.CollectionRef == CollectionRefReindexing }

type Document struct {
	Id              int64          `gorm:"column:id;primaryKey;autoIncrement"`
	DatasetId       int64          `gorm:"column:dataset_id;not null;index:idx_ds_doc_dataset"`
	Name            string         `gorm:"column:name;type:varchar(255);not null"`
	SourceType      string         `gorm:"column:source_type;type:varchar(20);not null"`
	UploadFileId    sql.NullString `gorm:"column:upload_file_id;type:char(36)"`
	InlineText      string         `gorm:"column:inline_text;type:mediumtext"`
	SourceTag       string         `gorm:"column:source_tag;type:varchar(64)"`
	ProcessRuleId   int64          `gorm:"column:process_rule_id;not null"`
	Status          int8           `gorm:"column:status;type:tinyint;not null;default:1;index:idx_ds_doc_status"`
	Archived        bool           `gorm:"column:archived;not null;default:false"`
	WordCount       int64          `gorm:"column:word_count;type:bigint;not null;default:0"`
	TokenCount      int64          `gorm:"column:token_count;type:bigint;not null;default:0"`
	IndexingLatencyMs int64        `gorm:"column:indexing_latency_ms;type:bigint;not null;default:0"`
	CreatedAt       time.Time      `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;type:datetime;not null"`
}

func (Document) TableName() string { return "ds_document" }

type Segment struct {
	Id             int64        `gorm:"column:id;primaryKey;autoIncrement"`
	DatasetId      int64        `gorm:"column:dataset_id;not null;index:idx_ds_seg_dataset"`
	DocumentId     int64        `gorm:"column:document_id;not null;index:idx_ds_seg_document"`
	Position       int          `gorm:"column:position;type:int;not null"`
	Content        string       `gorm:"column:content;type:mediumtext"`
	WordCount      int64        `gorm:"column:word_count;type:bigint;not null;default:0"`
	TokenCount     int64        `gorm:"column:token_count;type:bigint;not null;default:0"`
	IndexId        string       `gorm:"column:index_id;type:varchar(128)"`
	IndexingStatus int8         `gorm:"column:indexing_status;type:tinyint;not null;default:0;index:idx_ds_seg_indexing"`
	Status         int8         `gorm:"column:status;type:tinyint;not null;default:1;index:idx_ds_seg_status"`
	HitCount       int64        `gorm:"column:hit_count;type:bigint;not null;default:0"`
	ErrorMsg       string       `gorm:"column:error_msg;type:varchar(255)"`
	CompletedAt    sql.NullTime `gorm:"column:completed_at;type:datetime"`
	CreatedAt      time.Time    `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt      time.Time    `gorm:"column:updated_at;type:datetime;not null"`
}

func (Segment) TableName() string { return "ds_segment" }

// Retrievable 分段可被检索的充要条件：enabled 且已完成向量化
func (s *Segment) Retrievable() bool {
	return s.Status == CommonStatusEnabled && s.IndexingStatus == IndexingStatusIndexed
}

// RetrievalRecord 一次检索调用的审计记录（只追加，不回滚）
type RetrievalRecord struct {
	Id              int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RecordUuid      string    `gorm:"column:record_uuid;type:char(36);not null;uniqueIndex:uniq_ds_rr_uuid"`
	TenantId        string    `gorm:"column:tenant_id;type:char(36);not null;index:idx_ds_rr_tenant"`
	DatasetIdsJson  string    `gorm:"column:dataset_ids_json;type:json"`
	DocumentIdsJson string    `gorm:"column:document_ids_json;type:json"`
	Query           string    `gorm:"column:query;type:text"`
	RunType         string    `gorm:"column:run_type;type:varchar(20);not null"`
	Status          int8      `gorm:"column:status;type:tinyint;not null;default:0"`
	ElapsedMs       int64     `gorm:"column:elapsed_ms;type:bigint;not null;default:0"`
	EmbeddingTokens int64     `gorm:"column:embedding_tokens;type:bigint;not null;default:0"`
	RerankingTokens int64     `gorm:"column:reranking_tokens;type:bigint;not null;default:0"`
	ErrorMsg        string    `gorm:"column:error_msg;type:varchar(255)"`
	CreatedAt       time.Time `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt       time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (RetrievalRecord) TableName() string { return "ds_retrieval_record" }

// RetrievalDetail 命中明细，逐分段记录得分来源
type RetrievalDetail struct {
	Id             int64           `gorm:"column:id;primaryKey;autoIncrement"`
	RecordId       int64           `gorm:"column:record_id;not null;index:idx_ds_rd_record"`
	DatasetId      int64           `gorm:"column:dataset_id;not null"`
	DocumentId     int64           `gorm:"column:document_id;not null"`
	SegmentId      int64           `gorm:"column:segment_id;not null"`
	Score          float64         `gorm:"column:score;type:double;not null"`
	RerankingScore sql.NullFloat64 `gorm:"column:reranking_score;type:double"`
	CreatedAt      time.Time       `gorm:"column:created_at;type:datetime;not null"`
}

func (RetrievalDetail) TableName() string { return "ds_retrieval_detail" }

// ModelSupplier 供应商级配置（API 凭证、计价、是否本地部署）
type ModelSupplier struct {
	Id             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	TenantId       string    `gorm:"column:tenant_id;type:char(36);not null;index:idx_ds_supplier_tenant"`
	Provider       string    `gorm:"column:provider;type:varchar(30);not null"`
	APIKey         string    `gorm:"column:api_key;type:varchar(255)"`
	BaseURL        string    `gorm:"column:base_url;type:varchar(255)"`
	LocallyHosted  bool      `gorm:"column:locally_hosted;not null;default:false"`
	InputPricePerK float64   `gorm:"column:input_price_per_k;type:double;not null;default:0"`
	Currency       string    `gorm:"column:currency;type:varchar(10);not null;default:'USD'"`
	Status         int8      `gorm:"column:status;type:tinyint;not null;default:1"`
	CreatedAt      time.Time `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt      time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (ModelSupplier) TableName() string { return "ds_model_supplier" }

// 模型用途
const (
	ModelTypeEmbedding = "embedding"
	ModelTypeRerank    = "rerank"
)

// ModelConfig 模型级配置，字段与供应商级合并后生效（模型级优先）
type ModelConfig struct {
	Id         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	SupplierId int64     `gorm:"column:supplier_id;not null;index:idx_ds_model_supplier"`
	ModelType  string    `gorm:"column:model_type;type:varchar(20);not null;index:idx_ds_model_type"`
	Model      string    `gorm:"column:model;type:varchar(64);not null"`
	Dimensions int       `gorm:"column:dimensions;type:int;not null;default:0"`
	BaseURL    string    `gorm:"column:base_url;type:varchar(255)"`
	APIKey     string    `gorm:"column:api_key;type:varchar(255)"`
	Status     int8      `gorm:"column:status;type:tinyint;not null;default:1"`
	CreatedAt  time.Time `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (ModelConfig) TableName() string { return "ds_model_config" }

// ProcessRule 文档切分规则
type ProcessRule struct {
	Id           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	DatasetId    int64     `gorm:"column:dataset_id;not null;index:idx_ds_rule_dataset"`
	Mode         string    `gorm:"column:mode;type:varchar(20);not null;default:'automatic'"`
	ChunkSize    int       `gorm:"column:chunk_size;type:int;not null;default:500"`
	ChunkOverlap int       `gorm:"column:chunk_overlap;type:int;not null;default:50"`
	Recursive    bool      `gorm:"column:recursive;not null;default:true"`
	CreatedAt    time.Time `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (ProcessRule) TableName() string { return "ds_process_rule" }
