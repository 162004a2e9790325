package vectordb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// UpsertItem 向量写入所需的标准字段（用于归属与可追溯）
type UpsertItem struct {
	ID         string
	Vector     []float32
	DatasetID  int64
	DocumentID int64
	SegmentID  int64
	Content    string
}

// StoreHit 底层检索命中，Score 为 Milvus 原始 COSINE 相似度
type StoreHit struct {
	ID         string
	Score      float32
	DatasetID  int64
	DocumentID int64
	SegmentID  int64
	Content    string
}

// MilvusStore Milvus SDK 底层封装，集合粒度，不依赖 domain 层
type MilvusStore struct {
	cli         mclient.Client
	collection  string
	vectorField string
	metricType  entity.MetricType
	vectorDim   int
	searchParam entity.SearchParam
}

func NewMilvusStore(cli mclient.Client, collection string, vectorDim int, metricType entity.MetricType) (*MilvusStore, error) {
	if cli == nil {
		return nil, errors.New("milvus client is nil")
	}
	if strings.TrimSpace(collection) == "" {
		return nil, errors.New("collection is empty")
	}
	if vectorDim <= 0 {
		return nil, fmt.Errorf("invalid vectorDim: %d", vectorDim)
	}
	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		return nil, err
	}
	return &MilvusStore{
		cli:         cli,
		collection:  collection,
		vectorField: "vector",
		metricType:  metricType,
		vectorDim:   vectorDim,
		searchParam: sp,
	}, nil
}

// EnsureCollection 幂等地创建集合 schema、AUTOINDEX 索引并加载
func (s *MilvusStore) EnsureCollection(ctx context.Context) error {
	has, err := s.cli.HasCollection(ctx, s.collection)
	if err != nil {
		return err
	}
	if !has {
		schema := &entity.Schema{
			CollectionName: s.collection,
			Fields: []*entity.Field{
				{Name: "id", DataType: entity.FieldTypeVarChar, PrimaryKey: true, TypeParams: map[string]string{entity.TypeParamMaxLength: "128"}},
				{Name: s.vectorField, DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{entity.TypeParamDim: strconv.Itoa(s.vectorDim)}},
				{Name: "dataset_id", DataType: entity.FieldTypeInt64},
				{Name: "document_id", DataType: entity.FieldTypeInt64},
				{Name: "segment_id", DataType: entity.FieldTypeInt64},
				{Name: "content", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{entity.TypeParamMaxLength: "8192"}},
			},
		}
		if err := s.cli.CreateCollection(ctx, schema, 1); err != nil {
			return err
		}
		idx, err := entity.NewIndexAUTOINDEX(s.metricType)
		if err != nil {
			return err
		}
		if err := s.cli.CreateIndex(ctx, s.collection, s.vectorField, idx, false); err != nil {
			return err
		}
	}
	return s.cli.LoadCollection(ctx, s.collection, false)
}

// DropCollection 整集合删除（Milvus 支持）
func (s *MilvusStore) DropCollection(ctx context.Context) error {
	return s.cli.DropCollection(ctx, s.collection)
}

func (s *MilvusStore) Upsert(ctx context.Context, items []UpsertItem) ([]string, error) {
	if len(items) == 0 {
		return []string{}, nil
	}
	ids := make([]string, 0, len(items))
	vectors := make([][]float32, 0, len(items))
	datasetIDs := make([]int64, 0, len(items))
	documentIDs := make([]int64, 0, len(items))
	segmentIDs := make([]int64, 0, len(items))
	contents := make([]string, 0, len(items))

	for _, it := range items {
		if it.ID == "" {
			return nil, errors.New("upsert item missing ID")
		}
		if len(it.Vector) != s.vectorDim {
			return nil, fmt.Errorf("vector dim mismatch for id=%s, got=%d want=%d", it.ID, len(it.Vector), s.vectorDim)
		}
		ids = append(ids, it.ID)
		vectors = append(vectors, it.Vector)
		datasetIDs = append(datasetIDs, it.DatasetID)
		documentIDs = append(documentIDs, it.DocumentID)
		segmentIDs = append(segmentIDs, it.SegmentID)
		contents = append(contents, it.Content)
	}

	_, err := s.cli.Upsert(
		ctx,
		s.collection,
		"",
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnFloatVector(s.vectorField, s.vectorDim, vectors),
		entity.NewColumnInt64("dataset_id", datasetIDs),
		entity.NewColumnInt64("document_id", documentIDs),
		entity.NewColumnInt64("segment_id", segmentIDs),
		entity.NewColumnVarChar("content", contents),
	)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *MilvusStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	expr := fmt.Sprintf(`id in ["%s"]`, strings.Join(ids, `","`))
	return s.cli.Delete(ctx, s.collection, "", expr)
}

func (s *MilvusStore) Search(ctx context.Context, vector []float32, topK int, expr string) ([]StoreHit, error) {
	if len(vector) != s.vectorDim {
		return nil, fmt.Errorf("vector dim mismatch, got=%d want=%d", len(vector), s.vectorDim)
	}
	if topK <= 0 {
		topK = 4
	}
	res, err := s.cli.Search(
		ctx,
		s.collection,
		[]string{},
		expr,
		[]string{"dataset_id", "document_id", "segment_id", "content"},
		[]entity.Vector{entity.FloatVector(vector)},
		s.vectorField,
		s.metricType,
		topK,
		s.searchParam,
	)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return []StoreHit{}, nil
	}
	return parseSearchResult(res[0])
}

func parseSearchResult(sr mclient.SearchResult) ([]StoreHit, error) {
	if sr.Err != nil {
		return nil, sr.Err
	}
	hits := make([]StoreHit, 0, sr.ResultCount)

	idCol := sr.IDs
	datasetCol := columnByName(sr.Fields, "dataset_id")
	documentCol := columnByName(sr.Fields, "document_id")
	segmentCol := columnByName(sr.Fields, "segment_id")
	contentCol := columnByName(sr.Fields, "content")

	for i := 0; i < sr.ResultCount; i++ {
		id, _ := idCol.GetAsString(i)
		score := float32(0)
		if i < len(sr.Scores) {
			score = sr.Scores[i]
		}

		h := StoreHit{ID: id, Score: score}
		if datasetCol != nil {
			v, _ := datasetCol.GetAsInt64(i)
			h.DatasetID = v
		}
		if documentCol != nil {
			v, _ := documentCol.GetAsInt64(i)
			h.DocumentID = v
		}
		if segmentCol != nil {
			v, _ := segmentCol.GetAsInt64(i)
			h.SegmentID = v
		}
		if contentCol != nil {
			v, _ := contentCol.GetAsString(i)
			h.Content = v
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func columnByName(cols []entity.Column, name string) entity.Column {
	for _, c := range cols {
		if c != nil && c.Name() == name {
			return c
		}
	}
	return nil
}
