package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"OmniBase/internal/modules/dataset/application/dto/request"
	"OmniBase/internal/modules/dataset/application/dto/respond"
	"OmniBase/internal/modules/dataset/domain/entity"
	"OmniBase/internal/modules/dataset/domain/repository"
	embeddingInfra "OmniBase/internal/modules/dataset/infrastructure/embedding"
	"OmniBase/pkg/util"
	"OmniBase/pkg/xerr"
	"OmniBase/pkg/zlog"

	"go.uber.org/zap"
)

// 检索调用类型（写入审计记录）
const (
	RunTypeSingle   = "single"
	RunTypeMultiple = "multiple"
)

// RetrievalService 相似度检索与重排序。
//
// 每次调用恰好产生一条审计记录并恰好关闭一次：成功或失败都带上
// 耗时与 token 消耗；失败前已消费的 token 照常入账。
// 命中计数与命中明细只增不减，后续失败不回滚。
type RetrievalService interface {
	// Retrieve 按 dataset_ids 数量分发到单/多数据集协议
	Retrieve(ctx context.Context, req request.RetrieveRequest) (*respond.RetrieveRespond, error)

	// SingleRetrieve 单数据集检索，可选按文档范围过滤
	SingleRetrieve(ctx context.Context, tenantId string, datasetId int64, query string, documentIds []int64, useRerank bool) (*respond.RetrieveRespond, error)

	// MultipleRetrieve 多数据集检索：逐数据集按各自检索配置召回，
	// 重排序（启用时）在汇总后的候选池上全局执行一次
	MultipleRetrieve(ctx context.Context, tenantId string, datasetIds []int64, query string, useRerank bool) (*respond.RetrieveRespond, error)
}

type retrievalServiceImpl struct {
	datasetRepo   repository.DatasetRepository
	documentRepo  repository.DocumentRepository
	segmentRepo   repository.SegmentRepository
	retrievalRepo repository.RetrievalRepository
	factory       repository.VectorStoreFactory
	providers     *embeddingInfra.ProviderCache
}

func NewRetrievalService(
	datasetRepo repository.DatasetRepository,
	documentRepo repository.DocumentRepository,
	segmentRepo repository.SegmentRepository,
	retrievalRepo repository.RetrievalRepository,
	factory repository.VectorStoreFactory,
	providers *embeddingInfra.ProviderCache,
) RetrievalService {
	return &retrievalServiceImpl{
		datasetRepo:   datasetRepo,
		documentRepo:  documentRepo,
		segmentRepo:   segmentRepo,
		retrievalRepo: retrievalRepo,
		factory:       factory,
		providers:     providers,
	}
}

func (s *retrievalServiceImpl) Retrieve(ctx context.Context, req request.RetrieveRequest) (*respond.RetrieveRespond, error) {
	if strings.TrimSpace(req.Query) == "" || len(req.DatasetIds) == 0 {
		return nil, xerr.ErrParam
	}
	if len(req.DatasetIds) == 1 {
		return s.SingleRetrieve(ctx, req.TenantId, req.DatasetIds[0], req.Query, req.DocumentIds, req.UseRerank)
	}
	return s.MultipleRetrieve(ctx, req.TenantId, req.DatasetIds, req.Query, req.UseRerank)
}

func (s *retrievalServiceImpl) SingleRetrieve(ctx context.Context, tenantId string, datasetId int64, query string, documentIds []int64, useRerank bool) (*respond.RetrieveRespond, error) {
	return s.retrieve(ctx, tenantId, []int64{datasetId}, query, documentIds, useRerank, RunTypeSingle)
}

func (s *retrievalServiceImpl) MultipleRetrieve(ctx context.Context, tenantId string, datasetIds []int64, query string, useRerank bool) (*respond.RetrieveRespond, error) {
	return s.retrieve(ctx, tenantId, datasetIds, query, nil, useRerank, RunTypeMultiple)
}

// candidate 汇总池中的一条候选，携带原始相似度与（可选）重排序得分
type candidate struct {
	segment *entity.Segment
	score   float64
	rerank  *float64
}

func (s *retrievalServiceImpl) retrieve(ctx context.Context, tenantId string, datasetIds []int64, query string, documentIds []int64, useRerank bool, runType string) (*respond.RetrieveRespond, error) {
	start := time.Now()

	// 1. 开审计记录（running）
	idsJson, _ := json.Marshal(datasetIds)
	now := time.Now()
	rec := &entity.RetrievalRecord{
		RecordUuid:     util.GenerateUUID(),
		TenantId:       strings.TrimSpace(tenantId),
		DatasetIdsJson: string(idsJson),
		Query:          query,
		RunType:        runType,
		Status:         entity.RetrievalStatusRunning,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	// 文档范围过滤同样落审计，回放时能复原限定条件
	if len(documentIds) > 0 {
		docIdsJson, _ := json.Marshal(documentIds)
		rec.DocumentIdsJson = string(docIdsJson)
	}
	if err := s.retrievalRepo.CreateRecord(ctx, rec); err != nil {
		return nil, xerr.Wrap(xerr.InternalServerError, err)
	}

	var embTokens, rerankTokens int64
	fail := func(e error) (*respond.RetrieveRespond, error) {
		if err := s.retrievalRepo.CloseRecord(ctx, rec.Id, entity.RetrievalStatusFailed,
			time.Since(start).Milliseconds(), embTokens, rerankTokens, truncateErr(e)); err != nil {
			zlog.Warn("close retrieval record failed", zap.Int64("record_id", rec.Id), zap.Error(err))
		}
		return nil, e
	}

	// 2. 逐数据集按各自检索配置召回
	pool := make([]candidate, 0, 16)
	docCache := make(map[int64]*entity.Document)
	for _, datasetId := range datasetIds {
		ds, err := s.datasetRepo.GetByID(ctx, datasetId)
		if err != nil {
			return fail(xerr.Wrap(xerr.InternalServerError, err))
		}
		if ds == nil {
			return fail(xerr.ErrDatasetNotFound)
		}
		if ds.IsReindexing() {
			return fail(xerr.ErrDatasetBusy)
		}

		store, err := s.factory.Open(ctx, ds.EmbeddingConfigId, ds.CollectionRef)
		if err != nil {
			return fail(xerr.Wrap(xerr.BadGateway, err))
		}
		hits, err := store.SearchByText(ctx, query, ds.RetrieverTopK, ds.RetrieverScoreThreshold, documentIds)
		embTokens += store.ConsumeEmbeddingTokens()
		if err != nil {
			return fail(xerr.Wrap(xerr.BadGateway, err))
		}

		// 向量命中与元数据对账：分段必须仍可检索、文档必须仍启用
		for _, h := range hits {
			seg, err := s.segmentRepo.GetByID(ctx, h.SegmentId)
			if err != nil {
				return fail(xerr.Wrap(xerr.InternalServerError, err))
			}
			if seg == nil || !seg.Retrievable() {
				continue
			}
			doc, ok := docCache[seg.DocumentId]
			if !ok {
				doc, err = s.documentRepo.GetByID(ctx, seg.DocumentId)
				if err != nil {
					return fail(xerr.Wrap(xerr.InternalServerError, err))
				}
				docCache[seg.DocumentId] = doc
			}
			if doc == nil || doc.Status != entity.CommonStatusEnabled {
				continue
			}
			pool = append(pool, candidate{segment: seg, score: h.Score})
		}
	}

	// 3. 重排序：汇总池上全局一次
	if useRerank && len(pool) > 0 {
		reranker, _, err := s.providers.GetReranker(ctx, tenantId)
		if err != nil {
			return fail(xerr.Wrap(xerr.BadGateway, err))
		}
		inputs := make([]repository.RerankInput, 0, len(pool))
		for i := range pool {
			inputs = append(inputs, repository.RerankInput{
				SegmentId: pool[i].segment.Id,
				Content:   pool[i].segment.Content,
			})
		}
		results, tokens, err := reranker.Rerank(ctx, query, inputs)
		rerankTokens += tokens
		if err != nil {
			return fail(xerr.Wrap(xerr.BadGateway, err))
		}
		scores := make(map[int64]float64, len(results))
		for _, r := range results {
			scores[r.SegmentId] = r.RelevanceScore
		}
		for i := range pool {
			if v, ok := scores[pool[i].segment.Id]; ok {
				sc := v
				pool[i].rerank = &sc
			}
		}
	}

	// 4. 排序：重排序得分优先，相似度得分兜底
	sort.SliceStable(pool, func(i, j int) bool {
		ri, rj := rerankOrDefault(pool[i].rerank), rerankOrDefault(pool[j].rerank)
		if ri != rj {
			return ri > rj
		}
		return pool[i].score > pool[j].score
	})

	// 5. 命中计数与明细行（只增不减）
	details := make([]entity.RetrievalDetail, 0, len(pool))
	segments := make([]respond.RetrievedSegment, 0, len(pool))
	for i := range pool {
		seg := pool[i].segment
		if err := s.segmentRepo.IncrHitCount(ctx, seg.Id); err != nil {
			zlog.Warn("increment hit count failed", zap.Int64("segment_id", seg.Id), zap.Error(err))
		}
		d := entity.RetrievalDetail{
			RecordId:   rec.Id,
			DatasetId:  seg.DatasetId,
			DocumentId: seg.DocumentId,
			SegmentId:  seg.Id,
			Score:      pool[i].score,
			CreatedAt:  time.Now(),
		}
		out := respond.RetrievedSegment{
			SegmentId:  seg.Id,
			DocumentId: seg.DocumentId,
			DatasetId:  seg.DatasetId,
			Content:    seg.Content,
			Score:      pool[i].score,
		}
		if pool[i].rerank != nil {
			d.RerankingScore.Float64 = *pool[i].rerank
			d.RerankingScore.Valid = true
			out.RerankingScore = pool[i].rerank
		}
		details = append(details, d)
		segments = append(segments, out)
	}
	if err := s.retrievalRepo.CreateDetails(ctx, details); err != nil {
		return fail(xerr.Wrap(xerr.InternalServerError, err))
	}

	// 6. 关审计记录（success）
	elapsed := time.Since(start).Milliseconds()
	if err := s.retrievalRepo.CloseRecord(ctx, rec.Id, entity.RetrievalStatusSuccess, elapsed, embTokens, rerankTokens, ""); err != nil {
		zlog.Warn("close retrieval record failed", zap.Int64("record_id", rec.Id), zap.Error(err))
	}

	zlog.Info("retrieval finished",
		zap.String("record_uuid", rec.RecordUuid),
		zap.String("run_type", runType),
		zap.Int("hits", len(segments)),
		zap.Int64("embedding_tokens", embTokens),
		zap.Int64("reranking_tokens", rerankTokens),
		zap.Int64("elapsed_ms", elapsed))

	return &respond.RetrieveRespond{
		RecordUuid:      rec.RecordUuid,
		Segments:        segments,
		EmbeddingTokens: embTokens,
		RerankingTokens: rerankTokens,
		ElapsedMs:       elapsed,
	}, nil
}

func rerankOrDefault(v *float64) float64 {
	if v == nil {
		return -1
	}
	return *v
}
