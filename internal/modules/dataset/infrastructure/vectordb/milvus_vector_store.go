package vectordb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"OmniBase/internal/modules/dataset/domain/repository"
	"OmniBase/pkg/util"

	"github.com/cloudwego/eino/components/embedding"
)

// MilvusVectorStore 把 MilvusStore 适配成 domain 层的 VectorStore。
// 向量化走注入的 Embedder 链（缓存 -> 计数 -> 供应商），
// token 计数器由工厂注入并通过 ConsumeEmbeddingTokens 对外结算。
type MilvusVectorStore struct {
	store    *MilvusStore
	embedder embedding.Embedder
	counter  *atomic.Int64
}

func NewMilvusVectorStore(store *MilvusStore, embedder embedding.Embedder, counter *atomic.Int64) *MilvusVectorStore {
	return &MilvusVectorStore{store: store, embedder: embedder, counter: counter}
}

func (s *MilvusVectorStore) AddTexts(ctx context.Context, docs []repository.TextDocument) ([]string, error) {
	if len(docs) == 0 {
		return []string{}, nil
	}
	texts := make([]string, 0, len(docs))
	for _, d := range docs {
		texts = append(texts, d.Content)
	}
	vecs, err := s.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(docs))
	}

	items := make([]UpsertItem, 0, len(docs))
	ids := make([]string, 0, len(docs))
	for i, d := range docs {
		id := util.GenerateShortUUID()
		ids = append(ids, id)
		items = append(items, UpsertItem{
			ID:         id,
			Vector:     toFloat32(vecs[i]),
			DatasetID:  d.DatasetId,
			DocumentID: d.DocumentId,
			SegmentID:  d.SegmentId,
			Content:    d.Content,
		})
	}
	if _, err := s.store.Upsert(ctx, items); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *MilvusVectorStore) DeleteByIDs(ctx context.Context, ids []string) error {
	return s.store.DeleteByIDs(ctx, ids)
}

func (s *MilvusVectorStore) DeleteCollection(ctx context.Context) error {
	return s.store.DropCollection(ctx)
}

func (s *MilvusVectorStore) SearchByText(ctx context.Context, query string, topK int, scoreThreshold float64, documentIds []int64) ([]repository.SearchHit, error) {
	vecs, err := s.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for query", len(vecs))
	}

	raw, err := s.store.Search(ctx, toFloat32(vecs[0]), topK, documentFilterExpr(documentIds))
	if err != nil {
		return nil, err
	}

	hits := make([]repository.SearchHit, 0, len(raw))
	for _, h := range raw {
		score := NormalizeCosine(float64(h.Score))
		if score < scoreThreshold {
			continue
		}
		hits = append(hits, repository.SearchHit{
			IndexId:    h.ID,
			SegmentId:  h.SegmentID,
			DocumentId: h.DocumentID,
			DatasetId:  h.DatasetID,
			Content:    h.Content,
			Score:      score,
		})
	}
	return hits, nil
}

func (s *MilvusVectorStore) ConsumeEmbeddingTokens() int64 {
	return s.counter.Swap(0)
}

// NormalizeCosine 把 [-1,1] 的余弦相似度映射到 [0,1]，并夹紧浮点越界
func NormalizeCosine(cos float64) float64 {
	score := (cos + 1) / 2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func documentFilterExpr(documentIds []int64) string {
	if len(documentIds) == 0 {
		return ""
	}
	parts := make([]string, 0, len(documentIds))
	for _, id := range documentIds {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return fmt.Sprintf("document_id in [%s]", strings.Join(parts, ","))
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}

var _ repository.VectorStore = (*MilvusVectorStore)(nil)
