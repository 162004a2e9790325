package service

import (
	"context"
	"testing"

	"OmniBase/internal/modules/dataset/application/dto/request"
	"OmniBase/internal/modules/dataset/domain/entity"
	"OmniBase/internal/modules/dataset/domain/repository"
	embeddingInfra "OmniBase/internal/modules/dataset/infrastructure/embedding"
	"OmniBase/pkg/xerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type retrievalFixture struct {
	dsRepo   *fakeDatasetRepo
	docRepo  *fakeDocumentRepo
	segRepo  *fakeSegmentRepo
	retRepo  *fakeRetrievalRepo
	factory  *fakeFactory
	reranker *fakeReranker
	svc      RetrievalService
}

func newRetrievalFixture() *retrievalFixture {
	f := &retrievalFixture{
		dsRepo:   newFakeDatasetRepo(),
		docRepo:  newFakeDocumentRepo(),
		segRepo:  newFakeSegmentRepo(),
		retRepo:  newFakeRetrievalRepo(),
		factory:  newFakeFactory(),
		reranker: &fakeReranker{scores: map[int64]float64{}},
	}
	modelRepo := newFakeModelRepo()
	modelRepo.rerankByTenant["tenant-a"] = modelPair{
		mc:  &entity.ModelConfig{Model: "mock-rerank"},
		sup: &entity.ModelSupplier{Provider: "mock"},
	}
	providers := embeddingInfra.NewProviderCache(modelRepo, func(ctx context.Context, s embeddingInfra.Settings) (repository.Reranker, error) {
		return f.reranker, nil
	})
	f.svc = NewRetrievalService(f.dsRepo, f.docRepo, f.segRepo, f.retRepo, f.factory, providers)
	return f
}

// seedRetrievable 造一条可检索分段（enabled 文档 + enabled/indexed 分段）
func (f *retrievalFixture) seedRetrievable(ds *entity.Dataset, docId int64, indexId, content string) *entity.Segment {
	return f.segRepo.put(&entity.Segment{
		DatasetId:      ds.Id,
		DocumentId:     docId,
		Content:        content,
		IndexId:        indexId,
		IndexingStatus: entity.IndexingStatusIndexed,
		Status:         entity.CommonStatusEnabled,
	})
}

func TestSingleRetrieveRerankOverridesSimilarityOrder(t *testing.T) {
	fx := newRetrievalFixture()
	ds := fx.dsRepo.put(&entity.Dataset{
		TenantId:          "tenant-a",
		CollectionRef:     "vec_r1",
		EmbeddingConfigId: 1,
		RetrieverTopK:     4,
		Status:            entity.CommonStatusEnabled,
	})
	doc := fx.docRepo.put(&entity.Document{DatasetId: ds.Id, Status: entity.CommonStatusEnabled})
	seg1 := fx.seedRetrievable(ds, doc.Id, "r-1", "similarity winner")
	seg2 := fx.seedRetrievable(ds, doc.Id, "r-2", "rerank winner")

	store := fx.factory.store("vec_r1")
	store.searchTokens = 5
	store.hits = []repository.SearchHit{
		{IndexId: "r-1", SegmentId: seg1.Id, DocumentId: doc.Id, DatasetId: ds.Id, Score: 0.9},
		{IndexId: "r-2", SegmentId: seg2.Id, DocumentId: doc.Id, DatasetId: ds.Id, Score: 0.5},
	}
	fx.reranker.scores = map[int64]float64{seg1.Id: 0.2, seg2.Id: 0.8}
	fx.reranker.tokens = 7

	res, err := fx.svc.Retrieve(context.Background(), request.RetrieveRequest{
		TenantId:   "tenant-a",
		DatasetIds: []int64{ds.Id},
		Query:      "which one",
		UseRerank:  true,
	})
	require.NoError(t, err)
	require.Len(t, res.Segments, 2)

	// 重排序得分覆盖相似度排序：0.8 在前
	assert.Equal(t, seg2.Id, res.Segments[0].SegmentId)
	assert.Equal(t, seg1.Id, res.Segments[1].SegmentId)
	require.NotNil(t, res.Segments[0].RerankingScore)
	assert.InDelta(t, 0.8, *res.Segments[0].RerankingScore, 1e-9)
	assert.InDelta(t, 0.5, res.Segments[0].Score, 1e-9)

	assert.Equal(t, int64(5), res.EmbeddingTokens)
	assert.Equal(t, int64(7), res.RerankingTokens)

	// 审计：恰好一条记录、恰好关闭一次、成功态、token 入账
	rec := fx.retRepo.singleRecord()
	require.NotNil(t, rec)
	assert.Equal(t, RunTypeSingle, rec.RunType)
	assert.Equal(t, entity.RetrievalStatusSuccess, rec.Status)
	assert.Equal(t, int64(5), rec.EmbeddingTokens)
	assert.Equal(t, int64(7), rec.RerankingTokens)
	require.Len(t, fx.retRepo.closes[rec.Id], 1)

	// 明细逐条落库，命中计数 +1
	require.Len(t, fx.retRepo.details, 2)
	assert.Equal(t, int64(1), fx.segRepo.get(seg1.Id).HitCount)
	assert.Equal(t, int64(1), fx.segRepo.get(seg2.Id).HitCount)
}

func TestSingleRetrieveRecordsDocumentScope(t *testing.T) {
	fx := newRetrievalFixture()
	ds := fx.dsRepo.put(&entity.Dataset{
		CollectionRef:     "vec_scope",
		EmbeddingConfigId: 1,
		RetrieverTopK:     4,
		Status:            entity.CommonStatusEnabled,
	})

	_, err := fx.svc.SingleRetrieve(context.Background(), "tenant-a", ds.Id, "scoped query", []int64{7, 8}, false)
	require.NoError(t, err)

	// 文档范围过滤写进审计记录，回放时能复原限定条件
	rec := fx.retRepo.singleRecord()
	require.NotNil(t, rec)
	assert.JSONEq(t, "[7,8]", rec.DocumentIdsJson)
}

func TestRetrieveBusyClosesRecordFailed(t *testing.T) {
	fx := newRetrievalFixture()
	ds := fx.dsRepo.put(&entity.Dataset{
		CollectionRef:     entity.CollectionRefReindexing,
		EmbeddingConfigId: 1,
		RetrieverTopK:     4,
		Status:            entity.CommonStatusEnabled,
	})

	_, err := fx.svc.SingleRetrieve(context.Background(), "tenant-a", ds.Id, "query", nil, false)
	assert.ErrorIs(t, err, xerr.ErrDatasetBusy)

	// 失败路径同样恰好关闭一次，状态 failed 且带错误信息
	rec := fx.retRepo.singleRecord()
	require.NotNil(t, rec)
	assert.Equal(t, entity.RetrievalStatusFailed, rec.Status)
	assert.NotEmpty(t, rec.ErrorMsg)
	require.Len(t, fx.retRepo.closes[rec.Id], 1)
	assert.Empty(t, fx.retRepo.details)
}

func TestRetrieveFiltersStaleHits(t *testing.T) {
	fx := newRetrievalFixture()
	ds := fx.dsRepo.put(&entity.Dataset{
		CollectionRef:     "vec_stale",
		EmbeddingConfigId: 1,
		RetrieverTopK:     10,
		Status:            entity.CommonStatusEnabled,
	})
	docOn := fx.docRepo.put(&entity.Document{DatasetId: ds.Id, Status: entity.CommonStatusEnabled})
	docOff := fx.docRepo.put(&entity.Document{DatasetId: ds.Id, Status: entity.CommonStatusDisabled})

	valid := fx.seedRetrievable(ds, docOn.Id, "s-1", "still valid")
	disabled := fx.segRepo.put(&entity.Segment{
		DatasetId: ds.Id, DocumentId: docOn.Id, Content: "disabled seg",
		IndexId: "s-2", IndexingStatus: entity.IndexingStatusIndexed,
		Status: entity.CommonStatusDisabled,
	})
	underOff := fx.seedRetrievable(ds, docOff.Id, "s-3", "doc disabled")

	store := fx.factory.store("vec_stale")
	store.hits = []repository.SearchHit{
		{IndexId: "s-1", SegmentId: valid.Id, DocumentId: docOn.Id, DatasetId: ds.Id, Score: 0.9},
		{IndexId: "s-2", SegmentId: disabled.Id, DocumentId: docOn.Id, DatasetId: ds.Id, Score: 0.8},
		{IndexId: "s-3", SegmentId: underOff.Id, DocumentId: docOff.Id, DatasetId: ds.Id, Score: 0.7},
		{IndexId: "s-4", SegmentId: 9999, DocumentId: docOn.Id, DatasetId: ds.Id, Score: 0.6},
	}

	res, err := fx.svc.SingleRetrieve(context.Background(), "tenant-a", ds.Id, "query", nil, false)
	require.NoError(t, err)

	// 向量命中与元数据对账后只剩可检索分段
	require.Len(t, res.Segments, 1)
	assert.Equal(t, valid.Id, res.Segments[0].SegmentId)
	assert.Nil(t, res.Segments[0].RerankingScore)
}

func TestMultipleRetrievePoolsAcrossDatasets(t *testing.T) {
	fx := newRetrievalFixture()
	ctx := context.Background()

	ds1 := fx.dsRepo.put(&entity.Dataset{CollectionRef: "vec_m1", EmbeddingConfigId: 1, RetrieverTopK: 4, Status: entity.CommonStatusEnabled})
	ds2 := fx.dsRepo.put(&entity.Dataset{CollectionRef: "vec_m2", EmbeddingConfigId: 2, RetrieverTopK: 2, Status: entity.CommonStatusEnabled})
	doc1 := fx.docRepo.put(&entity.Document{DatasetId: ds1.Id, Status: entity.CommonStatusEnabled})
	doc2 := fx.docRepo.put(&entity.Document{DatasetId: ds2.Id, Status: entity.CommonStatusEnabled})
	segA := fx.seedRetrievable(ds1, doc1.Id, "m-1", "from first")
	segB := fx.seedRetrievable(ds2, doc2.Id, "m-2", "from second")

	st1 := fx.factory.store("vec_m1")
	st1.searchTokens = 3
	st1.hits = []repository.SearchHit{{IndexId: "m-1", SegmentId: segA.Id, DocumentId: doc1.Id, DatasetId: ds1.Id, Score: 0.6}}
	st2 := fx.factory.store("vec_m2")
	st2.searchTokens = 4
	st2.hits = []repository.SearchHit{{IndexId: "m-2", SegmentId: segB.Id, DocumentId: doc2.Id, DatasetId: ds2.Id, Score: 0.8}}

	res, err := fx.svc.MultipleRetrieve(ctx, "tenant-a", []int64{ds1.Id, ds2.Id}, "query", false)
	require.NoError(t, err)
	require.Len(t, res.Segments, 2)

	// 未重排序时按相似度全局降序
	assert.Equal(t, segB.Id, res.Segments[0].SegmentId)
	assert.Equal(t, segA.Id, res.Segments[1].SegmentId)
	assert.Equal(t, int64(7), res.EmbeddingTokens)

	rec := fx.retRepo.singleRecord()
	require.NotNil(t, rec)
	assert.Equal(t, RunTypeMultiple, rec.RunType)

	// 每数据集使用各自的向量化配置打开集合
	assert.Equal(t, int64(1), fx.factory.openedConfigs["vec_m1"])
	assert.Equal(t, int64(2), fx.factory.openedConfigs["vec_m2"])
}

func TestMultipleRetrieveFailsWhenAnyDatasetBusy(t *testing.T) {
	fx := newRetrievalFixture()
	ds1 := fx.dsRepo.put(&entity.Dataset{CollectionRef: "vec_ok", EmbeddingConfigId: 1, RetrieverTopK: 4, Status: entity.CommonStatusEnabled})
	ds2 := fx.dsRepo.put(&entity.Dataset{CollectionRef: entity.CollectionRefReindexing, EmbeddingConfigId: 1, RetrieverTopK: 4, Status: entity.CommonStatusEnabled})

	_, err := fx.svc.MultipleRetrieve(context.Background(), "tenant-a", []int64{ds1.Id, ds2.Id}, "query", false)
	assert.ErrorIs(t, err, xerr.ErrDatasetBusy)

	rec := fx.retRepo.singleRecord()
	require.NotNil(t, rec)
	assert.Equal(t, entity.RetrievalStatusFailed, rec.Status)
}

func TestRetrieveValidatesParams(t *testing.T) {
	fx := newRetrievalFixture()
	ctx := context.Background()

	_, err := fx.svc.Retrieve(ctx, request.RetrieveRequest{DatasetIds: []int64{1}, Query: "  "})
	assert.ErrorIs(t, err, xerr.ErrParam)

	_, err = fx.svc.Retrieve(ctx, request.RetrieveRequest{Query: "q"})
	assert.ErrorIs(t, err, xerr.ErrParam)
}
