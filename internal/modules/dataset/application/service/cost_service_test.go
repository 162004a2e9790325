package service

import (
	"context"
	"testing"

	"OmniBase/internal/modules/dataset/application/dto/request"
	"OmniBase/internal/modules/dataset/domain/entity"
	"OmniBase/pkg/xerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCostFixture() (*fakeModelRepo, *fakeSegmentRepo, CostService) {
	modelRepo := newFakeModelRepo()
	segRepo := newFakeSegmentRepo()
	return modelRepo, segRepo, NewCostService(modelRepo, segRepo)
}

func TestEstimateCostFromTexts(t *testing.T) {
	modelRepo, _, svc := newCostFixture()
	modelRepo.embedByTenant["t1"] = modelPair{
		mc:  &entity.ModelConfig{Model: "text-embedding-3-small"},
		sup: &entity.ModelSupplier{Provider: "openai", InputPricePerK: 0.1},
	}

	res, err := svc.EstimateCost(context.Background(), request.CostEstimateRequest{
		TenantId: "t1",
		Texts:    []string{"abcdefgh"}, // openai 字符启发式 -> 2 token
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.TotalTokens)
	assert.InDelta(t, 0.0002, res.EstimatedCost, 1e-9)
	// 供应商未配置币种时默认 USD
	assert.Equal(t, "USD", res.Currency)
}

func TestEstimateCostFromDocumentSegments(t *testing.T) {
	modelRepo, segRepo, svc := newCostFixture()
	modelRepo.embedByTenant["t1"] = modelPair{
		mc:  &entity.ModelConfig{Model: "text-embedding-3-small"},
		sup: &entity.ModelSupplier{Provider: "openai", InputPricePerK: 0.5, Currency: "CNY"},
	}
	segRepo.put(&entity.Segment{DocumentId: 10, Content: "abcd", Status: entity.CommonStatusEnabled})
	segRepo.put(&entity.Segment{DocumentId: 10, Content: "efghijkl", Status: entity.CommonStatusEnabled})

	res, err := svc.EstimateCost(context.Background(), request.CostEstimateRequest{
		TenantId:   "t1",
		DocumentId: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.TotalTokens)
	assert.InDelta(t, 0.0015, res.EstimatedCost, 1e-9)
	assert.Equal(t, "CNY", res.Currency)
}

func TestEstimateCostValidation(t *testing.T) {
	_, _, svc := newCostFixture()
	ctx := context.Background()

	_, err := svc.EstimateCost(ctx, request.CostEstimateRequest{Texts: []string{"x"}})
	assert.ErrorIs(t, err, xerr.ErrParam)

	_, err = svc.EstimateCost(ctx, request.CostEstimateRequest{TenantId: "t1"})
	assert.ErrorIs(t, err, xerr.ErrParam)

	// 租户未配置向量化供应商
	_, err = svc.EstimateCost(ctx, request.CostEstimateRequest{TenantId: "t1", Texts: []string{"x"}})
	assert.True(t, xerr.Is(err, xerr.NotFound))
}
