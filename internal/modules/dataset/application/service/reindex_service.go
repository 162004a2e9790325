package service

import (
	"context"
	"errors"
	"time"

	"OmniBase/internal/modules/dataset/application/dto/request"
	"OmniBase/internal/modules/dataset/application/dto/respond"
	"OmniBase/internal/modules/dataset/domain/entity"
	"OmniBase/internal/modules/dataset/domain/repository"
	"OmniBase/internal/modules/dataset/infrastructure/queue"
	"OmniBase/pkg/util"
	"OmniBase/pkg/xerr"
	"OmniBase/pkg/zlog"

	"go.uber.org/zap"
)

// ReindexService 数据集重建索引编排。
//
// 哨兵的获取与释放走 collection_ref 的条件更新（CAS），
// 并发的第二个重建请求在 CAS 处失败，不存在先检查后写入的竞态窗口。
// 迁移中途失败时数据集停留在哨兵态，分段带 failed 状态与错误信息，
// 需人工介入后重新发起（已知缺口，无自动回滚/续传）。
type ReindexService interface {
	// Reindex 迁移数据集到新的向量化配置
	Reindex(ctx context.Context, req request.ReindexRequest) (*respond.ReindexRespond, error)

	// ExecuteReindex 消费端入口（queue.ReindexExecutor）
	ExecuteReindex(ctx context.Context, datasetId, embeddingConfigId int64) error
}

type reindexServiceImpl struct {
	datasetRepo  repository.DatasetRepository
	documentRepo repository.DocumentRepository
	segmentRepo  repository.SegmentRepository
	modelRepo    repository.ModelConfigRepository
	factory      repository.VectorStoreFactory
	dispatcher   *queue.Dispatcher
}

func NewReindexService(
	datasetRepo repository.DatasetRepository,
	documentRepo repository.DocumentRepository,
	segmentRepo repository.SegmentRepository,
	modelRepo repository.ModelConfigRepository,
	factory repository.VectorStoreFactory,
	dispatcher *queue.Dispatcher,
) ReindexService {
	return &reindexServiceImpl{
		datasetRepo:  datasetRepo,
		documentRepo: documentRepo,
		segmentRepo:  segmentRepo,
		modelRepo:    modelRepo,
		factory:      factory,
		dispatcher:   dispatcher,
	}
}

func (s *reindexServiceImpl) Reindex(ctx context.Context, req request.ReindexRequest) (*respond.ReindexRespond, error) {
	if req.DatasetId <= 0 || req.EmbeddingConfigId <= 0 {
		return nil, xerr.ErrParam
	}
	if req.Async {
		if s.dispatcher == nil {
			return nil, xerr.New(xerr.InternalServerError, "异步重建未启用")
		}
		if err := s.dispatcher.DispatchReindex(ctx, req.DatasetId, req.EmbeddingConfigId); err != nil {
			return nil, xerr.Wrap(xerr.InternalServerError, err)
		}
		return &respond.ReindexRespond{DatasetId: req.DatasetId, Dispatched: true}, nil
	}

	newRef, err := s.reindex(ctx, req.DatasetId, req.EmbeddingConfigId)
	if err != nil {
		return nil, err
	}
	return &respond.ReindexRespond{DatasetId: req.DatasetId, CollectionRef: newRef}, nil
}

func (s *reindexServiceImpl) ExecuteReindex(ctx context.Context, datasetId, embeddingConfigId int64) error {
	_, err := s.reindex(ctx, datasetId, embeddingConfigId)
	return err
}

func (s *reindexServiceImpl) reindex(ctx context.Context, datasetId, newConfigId int64) (string, error) {
	// 1. 加载数据集；已在重建中则拒绝
	ds, err := s.datasetRepo.GetByID(ctx, datasetId)
	if err != nil {
		return "", xerr.Wrap(xerr.InternalServerError, err)
	}
	if ds == nil {
		return "", xerr.ErrDatasetNotFound
	}
	if ds.IsReindexing() {
		return "", xerr.ErrDatasetBusy
	}

	oldRef := ds.CollectionRef
	oldConfigId := ds.EmbeddingConfigId
	newRef := "vec_" + util.GenerateShortUUID()

	// 2. CAS 上哨兵：只有从当前集合标识成功换到 "reindexing" 的调用者获得锁
	ok, err := s.datasetRepo.CASCollectionRef(ctx, datasetId, oldRef, entity.CollectionRefReindexing)
	if err != nil {
		return "", xerr.Wrap(xerr.InternalServerError, err)
	}
	if !ok {
		return "", xerr.ErrDatasetBusy
	}
	if err := s.datasetRepo.UpdateEmbeddingConfigId(ctx, datasetId, newConfigId); err != nil {
		return "", xerr.Wrap(xerr.InternalServerError, err)
	}

	zlog.Info("reindex started",
		zap.Int64("dataset_id", datasetId),
		zap.String("old_collection", oldRef),
		zap.String("new_collection", newRef),
		zap.Int64("old_config", oldConfigId),
		zap.Int64("new_config", newConfigId))

	// 3. 快照当前启用文档下的启用分段，迁移范围在变更开始前固定
	snapshot, oldIndexIds, err := s.snapshotEnabledSegments(ctx, datasetId)
	if err != nil {
		return "", err
	}

	// 4. 快照分段清零：token=0、not_indexed（保持 enabled，旧索引即将销毁）
	segIds := make([]int64, 0, len(snapshot))
	for i := range snapshot {
		segIds = append(segIds, snapshot[i].Id)
	}
	if err := s.segmentRepo.ResetIndexing(ctx, segIds); err != nil {
		return "", xerr.Wrap(xerr.InternalServerError, err)
	}

	// 5. 销毁旧集合；不支持时按快照里的 index_id 逐条删除
	oldStore, err := s.factory.Open(ctx, oldConfigId, oldRef)
	if err != nil {
		return "", xerr.Wrap(xerr.BadGateway, err)
	}
	if err := oldStore.DeleteCollection(ctx); err != nil {
		if !errors.Is(err, repository.ErrDeleteCollectionNotSupported) {
			return "", xerr.Wrap(xerr.BadGateway, err)
		}
		if err := oldStore.DeleteByIDs(ctx, oldIndexIds); err != nil {
			return "", xerr.Wrap(xerr.BadGateway, err)
		}
	}

	// 6. 清旧配置键空间下所有未删除分段的内容缓存，防止新集合拿到旧模型向量
	all, err := s.segmentRepo.ListByDataset(ctx, datasetId, nil)
	if err != nil {
		return "", xerr.Wrap(xerr.InternalServerError, err)
	}
	if cache := embeddingCacheFor(ctx, s.modelRepo, oldConfigId); cache != nil {
		contents := make([]string, 0, len(all))
		for i := range all {
			contents = append(contents, all[i].Content)
		}
		cache.PurgeContents(ctx, contents)
	}

	// 7. 逐段写入新集合；失败即中止，数据集停留在哨兵态
	newStore, err := s.factory.Open(ctx, newConfigId, newRef)
	if err != nil {
		return "", xerr.Wrap(xerr.BadGateway, err)
	}
	for i := range snapshot {
		seg := &snapshot[i]
		if err := s.segmentRepo.UpdateIndexingStatus(ctx, seg.Id, entity.IndexingStatusIndexing, ""); err != nil {
			return "", xerr.Wrap(xerr.InternalServerError, err)
		}
		ids, err := newStore.AddTexts(ctx, []repository.TextDocument{{
			SegmentId:  seg.Id,
			DocumentId: seg.DocumentId,
			DatasetId:  seg.DatasetId,
			Content:    seg.Content,
		}})
		if err != nil {
			_ = s.segmentRepo.UpdateIndexingStatus(ctx, seg.Id, entity.IndexingStatusFailed, truncateErr(err))
			zlog.Error("reindex aborted, dataset left in sentinel state",
				zap.Int64("dataset_id", datasetId),
				zap.Int64("segment_id", seg.Id),
				zap.Int("migrated", i),
				zap.Int("total", len(snapshot)),
				zap.Error(err))
			return "", xerr.Wrap(xerr.BadGateway, err)
		}
		tokens := newStore.ConsumeEmbeddingTokens()
		if err := s.segmentRepo.MarkIndexed(ctx, seg.Id, ids[0], tokens, time.Now()); err != nil {
			return "", xerr.Wrap(xerr.InternalServerError, err)
		}
	}

	// 8. 发布新集合：CAS 摘哨兵。哨兵只有本编排器会写，此处必然成功
	ok, err = s.datasetRepo.CASCollectionRef(ctx, datasetId, entity.CollectionRefReindexing, newRef)
	if err != nil {
		return "", xerr.Wrap(xerr.InternalServerError, err)
	}
	if !ok {
		zlog.Error("reindex sentinel clear lost", zap.Int64("dataset_id", datasetId), zap.String("new_collection", newRef))
		return "", xerr.New(xerr.InternalServerError, "哨兵释放失败")
	}

	zlog.Info("reindex finished",
		zap.Int64("dataset_id", datasetId),
		zap.String("collection_ref", newRef),
		zap.Int("segments", len(snapshot)))
	return newRef, nil
}

// snapshotEnabledSegments 收集启用文档下的启用分段及其当前有效 index_id
func (s *reindexServiceImpl) snapshotEnabledSegments(ctx context.Context, datasetId int64) ([]entity.Segment, []string, error) {
	docs, err := s.documentRepo.ListByDataset(ctx, datasetId, []int8{entity.CommonStatusEnabled})
	if err != nil {
		return nil, nil, xerr.Wrap(xerr.InternalServerError, err)
	}
	enabledDocs := make(map[int64]bool, len(docs))
	for i := range docs {
		enabledDocs[docs[i].Id] = true
	}

	segs, err := s.segmentRepo.ListByDataset(ctx, datasetId, []int8{entity.CommonStatusEnabled})
	if err != nil {
		return nil, nil, xerr.Wrap(xerr.InternalServerError, err)
	}

	snapshot := make([]entity.Segment, 0, len(segs))
	oldIndexIds := make([]string, 0, len(segs))
	for i := range segs {
		if !enabledDocs[segs[i].DocumentId] {
			continue
		}
		snapshot = append(snapshot, segs[i])
		if segs[i].IndexingStatus == entity.IndexingStatusIndexed && segs[i].IndexId != "" {
			oldIndexIds = append(oldIndexIds, segs[i].IndexId)
		}
	}
	return snapshot, oldIndexIds, nil
}
