package repository

import (
	"context"
	"errors"
)

// VectorStore 是 domain 层定义的"向量库能力抽象"。
//
// 设计约束：
// 1) application 层只能依赖本接口，不应直接依赖 Milvus SDK 或 Eino。
// 2) infrastructure 通过适配器实现本接口（MilvusVectorStore / MemoryVectorStore），
//    后端由配置加载时的类型枚举选定，不做运行期字符串分发。
// 3) 适配器实例廉价，可按 (embedding_config_id, collection_ref) 逐次重建；
//    唯一的跨调用状态是 ConsumeEmbeddingTokens 的计数器。

// ErrDeleteCollectionNotSupported 后端不支持整集合删除时返回；
// 调用方必须回退到按 index_id 逐条删除。
var ErrDeleteCollectionNotSupported = errors.New("vector store: delete collection not supported")

// TextDocument 待写入向量库的一段文本及其溯源维度
type TextDocument struct {
	SegmentId  int64
	DocumentId int64
	DatasetId  int64
	Content    string
}

// SearchHit 相似度检索命中结果，Score 已归一化到 [0,1]，1 为最相似
type SearchHit struct {
	IndexId    string
	SegmentId  int64
	DocumentId int64
	DatasetId  int64
	Content    string
	Score      float64
}

type VectorStore interface {
	// AddTexts 向量化并写入，返回每段文本的 index_id（与入参同序）
	AddTexts(ctx context.Context, docs []TextDocument) ([]string, error)

	// DeleteByIDs 按 index_id 删除
	DeleteByIDs(ctx context.Context, ids []string) error

	// DeleteCollection 删除整个集合；不支持时返回 ErrDeleteCollectionNotSupported
	DeleteCollection(ctx context.Context) error

	// SearchByText 相似度检索。documentIds 非空时限定命中文档范围。
	SearchByText(ctx context.Context, query string, topK int, scoreThreshold float64, documentIds []int64) ([]SearchHit, error)

	// ConsumeEmbeddingTokens 读取并清零本适配器自上次读取以来消耗的向量化 token 数，
	// 调用方据此归集成本
	ConsumeEmbeddingTokens() int64
}

// VectorStoreFactory 按 (向量化配置, 集合) 打开适配器实例。
// 重建索引需要同时持有新旧两个集合的适配器，因此工厂是一等依赖。
type VectorStoreFactory interface {
	Open(ctx context.Context, embeddingConfigId int64, collectionRef string) (VectorStore, error)
}
