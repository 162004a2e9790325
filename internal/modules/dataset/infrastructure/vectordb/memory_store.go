package vectordb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"OmniBase/internal/modules/dataset/domain/repository"
	"OmniBase/pkg/util"

	"github.com/cloudwego/eino/components/embedding"
)

// memoryCollection 进程内集合，按 index_id 存向量。
// 不支持整集合删除（刻意模拟只有逐条删除能力的后端），
// 调用方必须走 ErrDeleteCollectionNotSupported 回退路径。
type memoryCollection struct {
	mu    sync.RWMutex
	items map[string]memoryItem
}

type memoryItem struct {
	vector     []float64
	datasetId  int64
	documentId int64
	segmentId  int64
	content    string
}

func newMemoryCollection() *memoryCollection {
	return &memoryCollection{items: make(map[string]memoryItem)}
}

// MemoryVectorStore 内存后端，供本地开发与测试使用
type MemoryVectorStore struct {
	coll     *memoryCollection
	embedder embedding.Embedder
	counter  *atomic.Int64
}

func NewMemoryVectorStore(coll *memoryCollection, embedder embedding.Embedder, counter *atomic.Int64) *MemoryVectorStore {
	return &MemoryVectorStore{coll: coll, embedder: embedder, counter: counter}
}

func (s *MemoryVectorStore) AddTexts(ctx context.Context, docs []repository.TextDocument) ([]string, error) {
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

	ids := make([]string, 0, len(docs))
	s.coll.mu.Lock()
	defer s.coll.mu.Unlock()
	for i, d := range docs {
		id := util.GenerateShortUUID()
		ids = append(ids, id)
		s.coll.items[id] = memoryItem{
			vector:     vecs[i],
			datasetId:  d.DatasetId,
			documentId: d.DocumentId,
			segmentId:  d.SegmentId,
			content:    d.Content,
		}
	}
	return ids, nil
}

func (s *MemoryVectorStore) DeleteByIDs(ctx context.Context, ids []string) error {
	s.coll.mu.Lock()
	defer s.coll.mu.Unlock()
	for _, id := range ids {
		delete(s.coll.items, id)
	}
	return nil
}

func (s *MemoryVectorStore) DeleteCollection(ctx context.Context) error {
	return repository.ErrDeleteCollectionNotSupported
}

func (s *MemoryVectorStore) SearchByText(ctx context.Context, query string, topK int, scoreThreshold float64, documentIds []int64) ([]repository.SearchHit, error) {
	vecs, err := s.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for query", len(vecs))
	}
	qv := vecs[0]

	allow := make(map[int64]bool, len(documentIds))
	for _, id := range documentIds {
		allow[id] = true
	}

	s.coll.mu.RLock()
	hits := make([]repository.SearchHit, 0, len(s.coll.items))
	for id, it := range s.coll.items {
		if len(allow) > 0 && !allow[it.documentId] {
			continue
		}
		score := NormalizeCosine(cosineSimilarity(qv, it.vector))
		if score < scoreThreshold {
			continue
		}
		hits = append(hits, repository.SearchHit{
			IndexId:    id,
			SegmentId:  it.segmentId,
			DocumentId: it.documentId,
			DatasetId:  it.datasetId,
			Content:    it.content,
			Score:      score,
		})
	}
	s.coll.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *MemoryVectorStore) ConsumeEmbeddingTokens() int64 {
	return s.counter.Swap(0)
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return -1
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ repository.VectorStore = (*MemoryVectorStore)(nil)
