package service

import (
	"context"
	"errors"
	"time"

	"OmniBase/internal/modules/dataset/domain/entity"
	"OmniBase/internal/modules/dataset/domain/repository"
	"OmniBase/pkg/xerr"
	"OmniBase/pkg/zlog"

	"go.uber.org/zap"
)

// LifecycleService 分段/文档/数据集生命周期管理。
//
// 失败策略：向量库异常时受影响的行保持 failed 或原状态并向上抛出，
// 本层不做自动重试。
type LifecycleService interface {
	// EnableSegment 启用分段。所属文档处于禁用态时只翻转状态不重新向量化
	//（文档级禁用已整体摘除向量，文档再启用时统一重建）。
	EnableSegment(ctx context.Context, segmentId int64) error

	// DisableSegment 禁用分段：从向量库删除该分段向量，状态机回到 not_indexed
	DisableSegment(ctx context.Context, segmentId int64) error

	// EnableDocument 启用文档并重建其所有启用分段的向量
	EnableDocument(ctx context.Context, documentId int64) error

	// DisableDocument 禁用文档并整体摘除其启用分段的向量，元数据保留
	DisableDocument(ctx context.Context, documentId int64) error

	// DeleteDocument 删除文档（幂等）：已禁用时仅软删元数据，
	// 启用态时先摘除向量并清内容缓存
	DeleteDocument(ctx context.Context, documentId int64) error

	// DeleteDataset 删除数据集：整集合删除，后端不支持时逐条回退
	DeleteDataset(ctx context.Context, datasetId int64) error
}

type lifecycleServiceImpl struct {
	datasetRepo  repository.DatasetRepository
	documentRepo repository.DocumentRepository
	segmentRepo  repository.SegmentRepository
	modelRepo    repository.ModelConfigRepository
	factory      repository.VectorStoreFactory
}

func NewLifecycleService(
	datasetRepo repository.DatasetRepository,
	documentRepo repository.DocumentRepository,
	segmentRepo repository.SegmentRepository,
	modelRepo repository.ModelConfigRepository,
	factory repository.VectorStoreFactory,
) LifecycleService {
	return &lifecycleServiceImpl{
		datasetRepo:  datasetRepo,
		documentRepo: documentRepo,
		segmentRepo:  segmentRepo,
		modelRepo:    modelRepo,
		factory:      factory,
	}
}

// resolveSegmentChain 取 分段 -> 文档 -> 数据集 并做公共校验
func (s *lifecycleServiceImpl) resolveSegmentChain(ctx context.Context, segmentId int64) (*entity.Segment, *entity.Document, *entity.Dataset, error) {
	seg, err := s.segmentRepo.GetByID(ctx, segmentId)
	if err != nil {
		return nil, nil, nil, xerr.Wrap(xerr.InternalServerError, err)
	}
	if seg == nil {
		return nil, nil, nil, xerr.ErrSegmentNotFound
	}
	doc, ds, err := s.resolveDocumentChain(ctx, seg.DocumentId)
	if err != nil {
		return nil, nil, nil, err
	}
	return seg, doc, ds, nil
}

func (s *lifecycleServiceImpl) resolveDocumentChain(ctx context.Context, documentId int64) (*entity.Document, *entity.Dataset, error) {
	doc, err := s.documentRepo.GetByID(ctx, documentId)
	if err != nil {
		return nil, nil, xerr.Wrap(xerr.InternalServerError, err)
	}
	if doc == nil {
		return nil, nil, xerr.ErrDocumentNotFound
	}
	ds, err := s.datasetRepo.GetByID(ctx, doc.DatasetId)
	if err != nil {
		return nil, nil, xerr.Wrap(xerr.InternalServerError, err)
	}
	if ds == nil {
		return nil, nil, xerr.ErrDatasetNotFound
	}
	if ds.IsReindexing() {
		return nil, nil, xerr.ErrDatasetBusy
	}
	return doc, ds, nil
}

func (s *lifecycleServiceImpl) EnableSegment(ctx context.Context, segmentId int64) error {
	seg, doc, ds, err := s.resolveSegmentChain(ctx, segmentId)
	if err != nil {
		return err
	}
	if doc.Archived {
		return xerr.ErrDocArchived
	}

	// 文档禁用态：只翻状态，向量由文档级启用统一重建
	if doc.Status == entity.CommonStatusDisabled {
		if err := s.segmentRepo.UpdateStatus(ctx, segmentId, entity.CommonStatusEnabled); err != nil {
			return xerr.Wrap(xerr.InternalServerError, err)
		}
		return nil
	}

	// 已启用且已向量化：幂等返回，重复启用不得产生第二份向量
	if seg.Status == entity.CommonStatusEnabled && seg.IndexingStatus == entity.IndexingStatusIndexed {
		return nil
	}

	store, err := s.factory.Open(ctx, ds.EmbeddingConfigId, ds.CollectionRef)
	if err != nil {
		return xerr.Wrap(xerr.BadGateway, err)
	}
	if err := s.reembedSegment(ctx, store, seg); err != nil {
		return err
	}
	if err := s.segmentRepo.UpdateStatus(ctx, segmentId, entity.CommonStatusEnabled); err != nil {
		return xerr.Wrap(xerr.InternalServerError, err)
	}
	return nil
}

func (s *lifecycleServiceImpl) DisableSegment(ctx context.Context, segmentId int64) error {
	seg, doc, ds, err := s.resolveSegmentChain(ctx, segmentId)
	if err != nil {
		return err
	}
	if doc.Archived {
		return xerr.ErrDocArchived
	}

	if doc.Status == entity.CommonStatusDisabled {
		if err := s.segmentRepo.UpdateStatus(ctx, segmentId, entity.CommonStatusDisabled); err != nil {
			return xerr.Wrap(xerr.InternalServerError, err)
		}
		return nil
	}

	if seg.IndexingStatus == entity.IndexingStatusIndexed && seg.IndexId != "" {
		store, err := s.factory.Open(ctx, ds.EmbeddingConfigId, ds.CollectionRef)
		if err != nil {
			return xerr.Wrap(xerr.BadGateway, err)
		}
		if err := store.DeleteByIDs(ctx, []string{seg.IndexId}); err != nil {
			return xerr.Wrap(xerr.BadGateway, err)
		}
	}
	// index_id 随向量一起作废，保持 index_id 仅在 indexed 态有效
	if err := s.segmentRepo.ResetIndexing(ctx, []int64{segmentId}); err != nil {
		return xerr.Wrap(xerr.InternalServerError, err)
	}
	if err := s.segmentRepo.UpdateStatus(ctx, segmentId, entity.CommonStatusDisabled); err != nil {
		return xerr.Wrap(xerr.InternalServerError, err)
	}
	return nil
}

func (s *lifecycleServiceImpl) EnableDocument(ctx context.Context, documentId int64) error {
	doc, ds, err := s.resolveDocumentChain(ctx, documentId)
	if err != nil {
		return err
	}
	if doc.Archived {
		return xerr.ErrDocArchived
	}
	if doc.Status == entity.CommonStatusEnabled {
		return nil
	}

	if err := s.documentRepo.UpdateStatus(ctx, documentId, entity.CommonStatusEnabled); err != nil {
		return xerr.Wrap(xerr.InternalServerError, err)
	}

	store, err := s.factory.Open(ctx, ds.EmbeddingConfigId, ds.CollectionRef)
	if err != nil {
		return xerr.Wrap(xerr.BadGateway, err)
	}
	segs, err := s.segmentRepo.ListByDocument(ctx, documentId, []int8{entity.CommonStatusEnabled})
	if err != nil {
		return xerr.Wrap(xerr.InternalServerError, err)
	}
	for i := range segs {
		if err := s.reembedSegment(ctx, store, &segs[i]); err != nil {
			return err
		}
	}

	zlog.Info("document enabled", zap.Int64("document_id", documentId), zap.Int("segments", len(segs)))
	return nil
}

func (s *lifecycleServiceImpl) DisableDocument(ctx context.Context, documentId int64) error {
	doc, ds, err := s.resolveDocumentChain(ctx, documentId)
	if err != nil {
		return err
	}
	if doc.Archived {
		return xerr.ErrDocArchived
	}
	if doc.Status == entity.CommonStatusDisabled {
		return nil
	}

	segs, err := s.segmentRepo.ListByDocument(ctx, documentId, []int8{entity.CommonStatusEnabled})
	if err != nil {
		return xerr.Wrap(xerr.InternalServerError, err)
	}

	ids := make([]string, 0, len(segs))
	for i := range segs {
		if segs[i].IndexingStatus == entity.IndexingStatusIndexed && segs[i].IndexId != "" {
			ids = append(ids, segs[i].IndexId)
		}
	}
	if len(ids) > 0 {
		store, err := s.factory.Open(ctx, ds.EmbeddingConfigId, ds.CollectionRef)
		if err != nil {
			return xerr.Wrap(xerr.BadGateway, err)
		}
		if err := store.DeleteByIDs(ctx, ids); err != nil {
			return xerr.Wrap(xerr.BadGateway, err)
		}
	}
	// 向量已摘除，index_id 一并清空；分段保持 enabled，供文档再启用时重建
	segIds := make([]int64, 0, len(segs))
	for i := range segs {
		segIds = append(segIds, segs[i].Id)
	}
	if err := s.segmentRepo.ResetIndexing(ctx, segIds); err != nil {
		return xerr.Wrap(xerr.InternalServerError, err)
	}
	if err := s.documentRepo.UpdateStatus(ctx, documentId, entity.CommonStatusDisabled); err != nil {
		return xerr.Wrap(xerr.InternalServerError, err)
	}

	zlog.Info("document disabled", zap.Int64("document_id", documentId), zap.Int("vectors_removed", len(ids)))
	return nil
}

func (s *lifecycleServiceImpl) DeleteDocument(ctx context.Context, documentId int64) error {
	doc, err := s.documentRepo.GetByID(ctx, documentId)
	if err != nil {
		return xerr.Wrap(xerr.InternalServerError, err)
	}
	if doc == nil {
		// 已删除，幂等返回
		return nil
	}
	ds, err := s.datasetRepo.GetByID(ctx, doc.DatasetId)
	if err != nil {
		return xerr.Wrap(xerr.InternalServerError, err)
	}
	if ds == nil {
		return xerr.ErrDatasetNotFound
	}
	if ds.IsReindexing() {
		return xerr.ErrDatasetBusy
	}

	// 已禁用：向量早已摘除，只软删元数据
	if doc.Status == entity.CommonStatusDisabled {
		if err := s.segmentRepo.SoftDeleteByDocument(ctx, documentId); err != nil {
			return xerr.Wrap(xerr.InternalServerError, err)
		}
		if err := s.documentRepo.UpdateStatus(ctx, documentId, entity.CommonStatusDeleted); err != nil {
			return xerr.Wrap(xerr.InternalServerError, err)
		}
		return nil
	}

	segs, err := s.segmentRepo.ListByDocument(ctx, documentId, nil)
	if err != nil {
		return xerr.Wrap(xerr.InternalServerError, err)
	}
	ids := make([]string, 0, len(segs))
	contents := make([]string, 0, len(segs))
	for i := range segs {
		contents = append(contents, segs[i].Content)
		if segs[i].IndexingStatus == entity.IndexingStatusIndexed && segs[i].IndexId != "" {
			ids = append(ids, segs[i].IndexId)
		}
	}
	if len(ids) > 0 {
		store, err := s.factory.Open(ctx, ds.EmbeddingConfigId, ds.CollectionRef)
		if err != nil {
			return xerr.Wrap(xerr.BadGateway, err)
		}
		if err := store.DeleteByIDs(ctx, ids); err != nil {
			return xerr.Wrap(xerr.BadGateway, err)
		}
	}
	if cache := embeddingCacheFor(ctx, s.modelRepo, ds.EmbeddingConfigId); cache != nil {
		cache.PurgeContents(ctx, contents)
	}

	if err := s.segmentRepo.SoftDeleteByDocument(ctx, documentId); err != nil {
		return xerr.Wrap(xerr.InternalServerError, err)
	}
	if err := s.documentRepo.UpdateStatus(ctx, documentId, entity.CommonStatusDeleted); err != nil {
		return xerr.Wrap(xerr.InternalServerError, err)
	}

	zlog.Info("document deleted", zap.Int64("document_id", documentId), zap.Int("vectors_removed", len(ids)))
	return nil
}

func (s *lifecycleServiceImpl) DeleteDataset(ctx context.Context, datasetId int64) error {
	ds, err := s.datasetRepo.GetByID(ctx, datasetId)
	if err != nil {
		return xerr.Wrap(xerr.InternalServerError, err)
	}
	if ds == nil {
		return nil
	}
	if ds.IsReindexing() {
		return xerr.ErrDatasetBusy
	}

	store, err := s.factory.Open(ctx, ds.EmbeddingConfigId, ds.CollectionRef)
	if err != nil {
		return xerr.Wrap(xerr.BadGateway, err)
	}

	// 1. 整集合删除；后端不支持时回退到逐条删除启用分段的 index_id
	if err := store.DeleteCollection(ctx); err != nil {
		if !errors.Is(err, repository.ErrDeleteCollectionNotSupported) {
			return xerr.Wrap(xerr.BadGateway, err)
		}
		enabled, err := s.segmentRepo.ListByDataset(ctx, datasetId, []int8{entity.CommonStatusEnabled})
		if err != nil {
			return xerr.Wrap(xerr.InternalServerError, err)
		}
		ids := make([]string, 0, len(enabled))
		for i := range enabled {
			if enabled[i].IndexingStatus == entity.IndexingStatusIndexed && enabled[i].IndexId != "" {
				ids = append(ids, enabled[i].IndexId)
			}
		}
		if err := store.DeleteByIDs(ctx, ids); err != nil {
			return xerr.Wrap(xerr.BadGateway, err)
		}
		zlog.Info("dataset collection delete fell back to per-id delete",
			zap.Int64("dataset_id", datasetId), zap.Int("vectors_removed", len(ids)))
	}

	// 2. 清除所有未删除分段的内容缓存
	all, err := s.segmentRepo.ListByDataset(ctx, datasetId, nil)
	if err != nil {
		return xerr.Wrap(xerr.InternalServerError, err)
	}
	if cache := embeddingCacheFor(ctx, s.modelRepo, ds.EmbeddingConfigId); cache != nil {
		contents := make([]string, 0, len(all))
		for i := range all {
			contents = append(contents, all[i].Content)
		}
		cache.PurgeContents(ctx, contents)
	}

	// 3. 软删除全部文档、分段与数据集本身
	if err := s.segmentRepo.SoftDeleteByDataset(ctx, datasetId); err != nil {
		return xerr.Wrap(xerr.InternalServerError, err)
	}
	if err := s.documentRepo.SoftDeleteByDataset(ctx, datasetId); err != nil {
		return xerr.Wrap(xerr.InternalServerError, err)
	}
	if err := s.datasetRepo.SoftDelete(ctx, datasetId); err != nil {
		return xerr.Wrap(xerr.InternalServerError, err)
	}

	zlog.Info("dataset deleted", zap.Int64("dataset_id", datasetId), zap.String("collection_ref", ds.CollectionRef))
	return nil
}

// reembedSegment 单段重建：indexing -> 向量库写入 -> indexed；失败置 failed 并抛出
func (s *lifecycleServiceImpl) reembedSegment(ctx context.Context, store repository.VectorStore, seg *entity.Segment) error {
	// 旧向量还挂在集合里时先摘除，换 index_id 不能留下孤儿
	if seg.IndexingStatus == entity.IndexingStatusIndexed && seg.IndexId != "" {
		if err := store.DeleteByIDs(ctx, []string{seg.IndexId}); err != nil {
			return xerr.Wrap(xerr.BadGateway, err)
		}
	}
	if err := s.segmentRepo.UpdateIndexingStatus(ctx, seg.Id, entity.IndexingStatusIndexing, ""); err != nil {
		return xerr.Wrap(xerr.InternalServerError, err)
	}
	ids, err := store.AddTexts(ctx, []repository.TextDocument{{
		SegmentId:  seg.Id,
		DocumentId: seg.DocumentId,
		DatasetId:  seg.DatasetId,
		Content:    seg.Content,
	}})
	if err != nil {
		_ = s.segmentRepo.UpdateIndexingStatus(ctx, seg.Id, entity.IndexingStatusFailed, truncateErr(err))
		zlog.Error("segment re-embed failed", zap.Int64("segment_id", seg.Id), zap.Error(err))
		return xerr.Wrap(xerr.BadGateway, err)
	}
	tokens := store.ConsumeEmbeddingTokens()
	if err := s.segmentRepo.MarkIndexed(ctx, seg.Id, ids[0], tokens, time.Now()); err != nil {
		return xerr.Wrap(xerr.InternalServerError, err)
	}
	return nil
}
