package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"OmniBase/internal/modules/dataset/application/dto/request"
	"OmniBase/internal/modules/dataset/domain/entity"
	"OmniBase/internal/modules/dataset/domain/repository"
	"OmniBase/internal/modules/dataset/infrastructure/queue"
	"OmniBase/pkg/xerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reindexFixture struct {
	dsRepo    *fakeDatasetRepo
	docRepo   *fakeDocumentRepo
	segRepo   *fakeSegmentRepo
	modelRepo *fakeModelRepo
	factory   *fakeFactory
	svc       ReindexService
}

func newReindexFixture(dispatcher *queue.Dispatcher) *reindexFixture {
	f := &reindexFixture{
		dsRepo:    newFakeDatasetRepo(),
		docRepo:   newFakeDocumentRepo(),
		segRepo:   newFakeSegmentRepo(),
		modelRepo: newFakeModelRepo(),
		factory:   newFakeFactory(),
	}
	f.svc = NewReindexService(f.dsRepo, f.docRepo, f.segRepo, f.modelRepo, f.factory, dispatcher)
	return f
}

// seedMigratable 数据集 + 启用文档 + 两条已入库分段 + 旧集合里的向量
func (f *reindexFixture) seedMigratable(oldRef string) (*entity.Dataset, []*entity.Segment) {
	ds := f.dsRepo.put(&entity.Dataset{
		CollectionRef:     oldRef,
		EmbeddingConfigId: 1,
		RetrieverTopK:     4,
		Status:            entity.CommonStatusEnabled,
	})
	doc := f.docRepo.put(&entity.Document{DatasetId: ds.Id, Status: entity.CommonStatusEnabled})
	store := f.factory.store(oldRef)

	segs := make([]*entity.Segment, 0, 2)
	for i, content := range []string{"first segment", "second segment"} {
		indexId := []string{"old-1", "old-2"}[i]
		seg := f.segRepo.put(&entity.Segment{
			DatasetId:      ds.Id,
			DocumentId:     doc.Id,
			Position:       i + 1,
			Content:        content,
			TokenCount:     9,
			IndexId:        indexId,
			IndexingStatus: entity.IndexingStatusIndexed,
			Status:         entity.CommonStatusEnabled,
		})
		store.putItem(indexId, repository.TextDocument{
			SegmentId: seg.Id, DocumentId: doc.Id, DatasetId: ds.Id, Content: content,
		})
		segs = append(segs, seg)
	}
	return ds, segs
}

func TestReindexMigratesToNewCollection(t *testing.T) {
	fx := newReindexFixture(nil)
	ds, segs := fx.seedMigratable("vec_old")
	oldStore := fx.factory.store("vec_old")
	ctx := context.Background()

	res, err := fx.svc.Reindex(ctx, request.ReindexRequest{DatasetId: ds.Id, EmbeddingConfigId: 2})
	require.NoError(t, err)
	require.NotNil(t, res)

	newRef := res.CollectionRef
	assert.True(t, strings.HasPrefix(newRef, "vec_"))
	assert.NotEqual(t, "vec_old", newRef)

	// 哨兵已摘除，数据集指向新集合与新配置
	got, err := fx.dsRepo.GetByID(ctx, ds.Id)
	require.NoError(t, err)
	assert.Equal(t, newRef, got.CollectionRef)
	assert.Equal(t, int64(2), got.EmbeddingConfigId)

	// 旧集合排空（该后端不支持整集合删除，走逐条回退），新集合持有全量
	assert.Equal(t, 0, oldStore.count())
	assert.ElementsMatch(t, []string{"old-1", "old-2"}, oldStore.deleted)
	newStore := fx.factory.store(newRef)
	assert.Equal(t, 2, newStore.count())
	assert.Equal(t, int64(2), fx.factory.openedConfigs[newRef])

	// 分段全部重新入库，index_id 更新
	for _, seg := range segs {
		cur := fx.segRepo.get(seg.Id)
		assert.Equal(t, entity.IndexingStatusIndexed, cur.IndexingStatus)
		assert.NotEmpty(t, cur.IndexId)
		assert.NotContains(t, []string{"old-1", "old-2"}, cur.IndexId)
		assert.True(t, newStore.has(cur.IndexId))
	}
}

func TestReindexSkipsDisabledRows(t *testing.T) {
	fx := newReindexFixture(nil)
	ds, _ := fx.seedMigratable("vec_skip")
	// 禁用分段不进入迁移快照
	off := fx.segRepo.put(&entity.Segment{
		DatasetId:      ds.Id,
		DocumentId:     1,
		Content:        "disabled",
		IndexId:        "old-off",
		IndexingStatus: entity.IndexingStatusIndexed,
		Status:         entity.CommonStatusDisabled,
	})
	fx.factory.store("vec_skip").putItem("old-off", repository.TextDocument{SegmentId: off.Id})
	ctx := context.Background()

	res, err := fx.svc.Reindex(ctx, request.ReindexRequest{DatasetId: ds.Id, EmbeddingConfigId: 2})
	require.NoError(t, err)

	newStore := fx.factory.store(res.CollectionRef)
	assert.Equal(t, 2, newStore.count())
	cur := fx.segRepo.get(off.Id)
	assert.Equal(t, "old-off", cur.IndexId)
	assert.Equal(t, entity.CommonStatusDisabled, cur.Status)
}

func TestReindexRejectsConcurrentRequest(t *testing.T) {
	fx := newReindexFixture(nil)
	ds, _ := fx.seedMigratable("vec_cas")
	ctx := context.Background()

	// 已在哨兵态直接拒绝
	busy := fx.dsRepo.put(&entity.Dataset{
		CollectionRef:     entity.CollectionRefReindexing,
		EmbeddingConfigId: 1,
		Status:            entity.CommonStatusEnabled,
	})
	_, err := fx.svc.Reindex(ctx, request.ReindexRequest{DatasetId: busy.Id, EmbeddingConfigId: 2})
	assert.ErrorIs(t, err, xerr.ErrDatasetBusy)

	// 读取与 CAS 之间被竞争者抢先：条件更新失败同样拒绝，不产生双写
	fx.dsRepo.casDeny = true
	_, err = fx.svc.Reindex(ctx, request.ReindexRequest{DatasetId: ds.Id, EmbeddingConfigId: 2})
	assert.ErrorIs(t, err, xerr.ErrDatasetBusy)

	got, gerr := fx.dsRepo.GetByID(ctx, ds.Id)
	require.NoError(t, gerr)
	assert.Equal(t, "vec_cas", got.CollectionRef)
	assert.Equal(t, int64(1), got.EmbeddingConfigId)
}

func TestReindexPartialFailureLeavesSentinel(t *testing.T) {
	fx := newReindexFixture(nil)
	// 新建集合的第一次写入即失败
	fx.factory.build = func(ref string) *fakeVectorStore {
		st := newFakeVectorStore()
		if ref != "vec_part" {
			st.failAfter(0)
		}
		return st
	}
	ds, segs := fx.seedMigratable("vec_part")
	ctx := context.Background()

	_, err := fx.svc.Reindex(ctx, request.ReindexRequest{DatasetId: ds.Id, EmbeddingConfigId: 2})
	require.Error(t, err)
	assert.True(t, xerr.Is(err, xerr.BadGateway))

	// 数据集停留在哨兵态，失败分段带错误信息
	got, gerr := fx.dsRepo.GetByID(ctx, ds.Id)
	require.NoError(t, gerr)
	assert.True(t, got.IsReindexing())

	first := fx.segRepo.get(segs[0].Id)
	assert.Equal(t, entity.IndexingStatusFailed, first.IndexingStatus)
	assert.NotEmpty(t, first.ErrorMsg)

	// 后续重建请求被哨兵拒绝
	_, err = fx.svc.Reindex(ctx, request.ReindexRequest{DatasetId: ds.Id, EmbeddingConfigId: 2})
	assert.ErrorIs(t, err, xerr.ErrDatasetBusy)
}

func TestReindexValidatesParams(t *testing.T) {
	fx := newReindexFixture(nil)
	ctx := context.Background()

	_, err := fx.svc.Reindex(ctx, request.ReindexRequest{DatasetId: 0, EmbeddingConfigId: 2})
	assert.ErrorIs(t, err, xerr.ErrParam)
	_, err = fx.svc.Reindex(ctx, request.ReindexRequest{DatasetId: 1, EmbeddingConfigId: 0})
	assert.ErrorIs(t, err, xerr.ErrParam)
	_, err = fx.svc.Reindex(ctx, request.ReindexRequest{DatasetId: 404, EmbeddingConfigId: 2})
	assert.ErrorIs(t, err, xerr.ErrDatasetNotFound)
}

func TestReindexAsyncDispatches(t *testing.T) {
	pub := &fakePublisher{}
	fx := newReindexFixture(queue.NewDispatcher(pub, "omnibase.indexing.task"))
	ds, _ := fx.seedMigratable("vec_async_r")
	ctx := context.Background()

	res, err := fx.svc.Reindex(ctx, request.ReindexRequest{DatasetId: ds.Id, EmbeddingConfigId: 2, Async: true})
	require.NoError(t, err)
	assert.True(t, res.Dispatched)

	// 只投递任务，集合与哨兵不动
	got, gerr := fx.dsRepo.GetByID(ctx, ds.Id)
	require.NoError(t, gerr)
	assert.Equal(t, "vec_async_r", got.CollectionRef)

	require.Len(t, pub.messages, 1)
	var task queue.IndexingTask
	require.NoError(t, json.Unmarshal(pub.messages[0].Value, &task))
	assert.Equal(t, queue.TaskTypeReindexDataset, task.TaskType)
	assert.Equal(t, ds.Id, task.DatasetId)
	assert.Equal(t, int64(2), task.EmbeddingConfigId)
}
