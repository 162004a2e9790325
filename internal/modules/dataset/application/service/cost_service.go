package service

import (
	"context"
	"strings"

	"OmniBase/internal/modules/dataset/application/dto/request"
	"OmniBase/internal/modules/dataset/application/dto/respond"
	"OmniBase/internal/modules/dataset/domain/repository"
	"OmniBase/internal/modules/dataset/infrastructure/tokenizer"
	"OmniBase/pkg/xerr"
)

// CostService 向量化成本估算。
// 计数策略按租户绑定的向量化供应商选择；本层只做求和与计价。
type CostService interface {
	EstimateCost(ctx context.Context, req request.CostEstimateRequest) (*respond.CostRespond, error)
}

type costServiceImpl struct {
	modelRepo   repository.ModelConfigRepository
	segmentRepo repository.SegmentRepository
}

func NewCostService(modelRepo repository.ModelConfigRepository, segmentRepo repository.SegmentRepository) CostService {
	return &costServiceImpl{modelRepo: modelRepo, segmentRepo: segmentRepo}
}

func (s *costServiceImpl) EstimateCost(ctx context.Context, req request.CostEstimateRequest) (*respond.CostRespond, error) {
	tenantId := strings.TrimSpace(req.TenantId)
	if tenantId == "" {
		return nil, xerr.ErrParam
	}

	// 1. 估算对象：直接给的文本，或某文档现有分段的内容
	texts := req.Texts
	if len(texts) == 0 && req.DocumentId > 0 {
		segs, err := s.segmentRepo.ListByDocument(ctx, req.DocumentId, nil)
		if err != nil {
			return nil, xerr.Wrap(xerr.InternalServerError, err)
		}
		texts = make([]string, 0, len(segs))
		for i := range segs {
			texts = append(texts, segs[i].Content)
		}
	}
	if len(texts) == 0 {
		return nil, xerr.ErrParam
	}

	// 2. 按租户当前启用的向量化供应商选计数策略
	_, sup, err := s.modelRepo.GetTenantEmbeddingConfig(ctx, tenantId)
	if err != nil {
		return nil, xerr.Wrap(xerr.InternalServerError, err)
	}
	if sup == nil {
		return nil, xerr.New(xerr.NotFound, "租户未配置向量化供应商")
	}
	estimate := tokenizer.ForProvider(sup.Provider)

	// 3. 求和并按供应商千 token 单价计价
	var total int64
	for _, t := range texts {
		total += estimate(t)
	}
	cost := float64(total) / 1000 * sup.InputPricePerK
	currency := sup.Currency
	if currency == "" {
		currency = "USD"
	}

	return &respond.CostRespond{
		TotalTokens:   total,
		EstimatedCost: cost,
		Currency:      currency,
	}, nil
}
