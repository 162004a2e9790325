package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"OmniBase/internal/modules/dataset/application/dto/request"
	"OmniBase/internal/modules/dataset/application/dto/respond"
	"OmniBase/internal/modules/dataset/domain/entity"
	"OmniBase/internal/modules/dataset/domain/repository"
	"OmniBase/internal/modules/dataset/infrastructure/chunking"
	"OmniBase/internal/modules/dataset/infrastructure/loader"
	"OmniBase/internal/modules/dataset/infrastructure/queue"
	"OmniBase/internal/modules/dataset/infrastructure/tokenizer"
	"OmniBase/pkg/xerr"
	"OmniBase/pkg/zlog"

	"go.uber.org/zap"
)

// IndexingService 文档入库管线
type IndexingService interface {
	// IngestDocument 创建文档并入库。req.Async 为真时只投递任务，
	// 统计结果由消费端回写。
	IngestDocument(ctx context.Context, req request.IngestDocumentRequest) (*respond.IngestRespond, error)

	// AddDocumentToDataset 同步入库一篇已创建的文档：
	// 读源、切分、逐段向量化并写入向量库，返回字数/token/耗时统计。
	// 某一段失败即中止后续分段，已入库分段保持有效。
	AddDocumentToDataset(ctx context.Context, datasetId, documentId int64) (*respond.IngestRespond, error)

	// ExecuteIngest 消费端入口（queue.IngestExecutor）
	ExecuteIngest(ctx context.Context, datasetId, documentId int64) error
}

type indexingServiceImpl struct {
	datasetRepo  repository.DatasetRepository
	documentRepo repository.DocumentRepository
	segmentRepo  repository.SegmentRepository
	factory      repository.VectorStoreFactory
	loader       *loader.Loader
	dispatcher   *queue.Dispatcher
}

func NewIndexingService(
	datasetRepo repository.DatasetRepository,
	documentRepo repository.DocumentRepository,
	segmentRepo repository.SegmentRepository,
	factory repository.VectorStoreFactory,
	ld *loader.Loader,
	dispatcher *queue.Dispatcher,
) IndexingService {
	return &indexingServiceImpl{
		datasetRepo:  datasetRepo,
		documentRepo: documentRepo,
		segmentRepo:  segmentRepo,
		factory:      factory,
		loader:       ld,
		dispatcher:   dispatcher,
	}
}

func (s *indexingServiceImpl) IngestDocument(ctx context.Context, req request.IngestDocumentRequest) (*respond.IngestRespond, error) {
	// 1. 数据集必须存在且不在重建哨兵态
	ds, err := s.datasetRepo.GetByID(ctx, req.DatasetId)
	if err != nil {
		return nil, xerr.Wrap(xerr.InternalServerError, err)
	}
	if ds == nil {
		return nil, xerr.ErrDatasetNotFound
	}
	if ds.IsReindexing() {
		return nil, xerr.ErrDatasetBusy
	}

	// 2. 来源校验
	sourceType := strings.TrimSpace(req.SourceType)
	switch sourceType {
	case entity.DocSourceUploadFile:
		if strings.TrimSpace(req.UploadFileId) == "" {
			return nil, xerr.ErrParam
		}
	case entity.DocSourceInlineText:
		if strings.TrimSpace(req.InlineText) == "" {
			return nil, xerr.ErrParam
		}
	default:
		return nil, xerr.ErrParam
	}

	// 3. 创建文档行
	now := time.Now()
	doc := &entity.Document{
		DatasetId:     req.DatasetId,
		Name:          strings.TrimSpace(req.Name),
		SourceType:    sourceType,
		InlineText:    req.InlineText,
		SourceTag:     strings.TrimSpace(req.SourceTag),
		ProcessRuleId: req.ProcessRuleId,
		Status:        entity.CommonStatusEnabled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if id := strings.TrimSpace(req.UploadFileId); id != "" {
		doc.UploadFileId = sql.NullString{String: id, Valid: true}
	}
	if err := s.documentRepo.Create(ctx, doc); err != nil {
		return nil, xerr.Wrap(xerr.InternalServerError, err)
	}

	// 4. 异步：投递任务后立即返回
	if req.Async {
		if s.dispatcher == nil {
			return nil, xerr.New(xerr.InternalServerError, "异步入库未启用")
		}
		if err := s.dispatcher.DispatchIngest(ctx, req.DatasetId, doc.Id); err != nil {
			return nil, xerr.Wrap(xerr.InternalServerError, err)
		}
		return &respond.IngestRespond{DocumentId: doc.Id, Dispatched: true}, nil
	}

	return s.AddDocumentToDataset(ctx, req.DatasetId, doc.Id)
}

func (s *indexingServiceImpl) AddDocumentToDataset(ctx context.Context, datasetId, documentId int64) (*respond.IngestRespond, error) {
	start := time.Now()

	// 1. 解析数据集与文档
	ds, err := s.datasetRepo.GetByID(ctx, datasetId)
	if err != nil {
		return nil, xerr.Wrap(xerr.InternalServerError, err)
	}
	if ds == nil {
		return nil, xerr.ErrDatasetNotFound
	}
	if ds.IsReindexing() {
		return nil, xerr.ErrDatasetBusy
	}
	doc, err := s.documentRepo.GetByID(ctx, documentId)
	if err != nil {
		return nil, xerr.Wrap(xerr.InternalServerError, err)
	}
	if doc == nil || doc.DatasetId != datasetId {
		return nil, xerr.ErrDocumentNotFound
	}

	// 2. 按切分规则构造切片器并产出分段序列（一次性，不可重放）
	rule, err := s.datasetRepo.GetProcessRule(ctx, doc.ProcessRuleId)
	if err != nil {
		return nil, xerr.Wrap(xerr.InternalServerError, err)
	}
	chunker := chunking.NewFromRule(rule)
	iter, err := s.loader.LoadAndSplit(ctx, loader.Source{
		Type:         doc.SourceType,
		UploadFileId: doc.UploadFileId.String,
		InlineText:   doc.InlineText,
		SourceTag:    doc.SourceTag,
	}, chunker)
	if err != nil {
		return nil, xerr.Wrap(xerr.BadRequest, err)
	}

	store, err := s.factory.Open(ctx, ds.EmbeddingConfigId, ds.CollectionRef)
	if err != nil {
		return nil, xerr.Wrap(xerr.BadGateway, err)
	}

	// 3. 逐段：建行 -> indexing -> 向量化写入 -> indexed；失败即中止
	var totalWords, totalTokens int64
	position := 0
	for {
		content, ok := iter.Next()
		if !ok {
			break
		}
		position++

		now := time.Now()
		seg := &entity.Segment{
			DatasetId:      datasetId,
			DocumentId:     documentId,
			Position:       position,
			Content:        content,
			WordCount:      tokenizer.CharCount(content),
			IndexingStatus: entity.IndexingStatusNotIndexed,
			Status:         entity.CommonStatusEnabled,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.segmentRepo.Create(ctx, seg); err != nil {
			return nil, xerr.Wrap(xerr.InternalServerError, err)
		}
		if err := s.segmentRepo.UpdateIndexingStatus(ctx, seg.Id, entity.IndexingStatusIndexing, ""); err != nil {
			return nil, xerr.Wrap(xerr.InternalServerError, err)
		}

		ids, err := store.AddTexts(ctx, []repository.TextDocument{{
			SegmentId:  seg.Id,
			DocumentId: documentId,
			DatasetId:  datasetId,
			Content:    content,
		}})
		if err != nil {
			_ = s.segmentRepo.UpdateIndexingStatus(ctx, seg.Id, entity.IndexingStatusFailed, truncateErr(err))
			zlog.Error("segment indexing failed",
				zap.Int64("dataset_id", datasetId),
				zap.Int64("document_id", documentId),
				zap.Int64("segment_id", seg.Id),
				zap.Int("position", position),
				zap.Error(err))
			return nil, xerr.Wrap(xerr.BadGateway, err)
		}

		tokens := store.ConsumeEmbeddingTokens()
		if err := s.segmentRepo.MarkIndexed(ctx, seg.Id, ids[0], tokens, time.Now()); err != nil {
			return nil, xerr.Wrap(xerr.InternalServerError, err)
		}

		totalWords += seg.WordCount
		totalTokens += tokens
	}

	// 4. 回写文档级统计
	latency := time.Since(start).Milliseconds()
	if err := s.documentRepo.UpdateIndexingResult(ctx, documentId, totalWords, totalTokens, latency); err != nil {
		return nil, xerr.Wrap(xerr.InternalServerError, err)
	}

	zlog.Info("document ingested",
		zap.Int64("dataset_id", datasetId),
		zap.Int64("document_id", documentId),
		zap.Int("segments", position),
		zap.Int64("word_count", totalWords),
		zap.Int64("token_count", totalTokens),
		zap.Int64("latency_ms", latency))

	return &respond.IngestRespond{
		DocumentId: documentId,
		WordCount:  totalWords,
		TokenCount: totalTokens,
		LatencyMs:  latency,
	}, nil
}

// ExecuteIngest 消费端入口
func (s *indexingServiceImpl) ExecuteIngest(ctx context.Context, datasetId, documentId int64) error {
	_, err := s.AddDocumentToDataset(ctx, datasetId, documentId)
	return err
}

func truncateErr(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 255 {
		msg = msg[:255]
	}
	return msg
}
