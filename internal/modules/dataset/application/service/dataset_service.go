package service

import (
	"context"
	"strings"
	"time"

	"OmniBase/internal/modules/dataset/application/dto/request"
	"OmniBase/internal/modules/dataset/application/dto/respond"
	"OmniBase/internal/modules/dataset/domain/entity"
	"OmniBase/internal/modules/dataset/domain/repository"
	"OmniBase/pkg/util"
	"OmniBase/pkg/xerr"
	"OmniBase/pkg/zlog"

	"go.uber.org/zap"
)

// DatasetService 数据集开通
type DatasetService interface {
	// CreateDataset 创建数据集：分配全新集合标识并预建向量库集合
	CreateDataset(ctx context.Context, req request.CreateDatasetRequest) (*respond.DatasetRespond, error)
}

type datasetServiceImpl struct {
	datasetRepo repository.DatasetRepository
	factory     repository.VectorStoreFactory
}

func NewDatasetService(datasetRepo repository.DatasetRepository, factory repository.VectorStoreFactory) DatasetService {
	return &datasetServiceImpl{datasetRepo: datasetRepo, factory: factory}
}

func (s *datasetServiceImpl) CreateDataset(ctx context.Context, req request.CreateDatasetRequest) (*respond.DatasetRespond, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || req.EmbeddingConfigId <= 0 {
		return nil, xerr.ErrParam
	}
	topK := req.RetrieverTopK
	if topK <= 0 {
		topK = 4
	}
	threshold := req.RetrieverScoreThreshold
	if threshold < 0 || threshold > 1 {
		return nil, xerr.ErrParam
	}

	// 1. 分配集合标识；"reindexing" 是保留哨兵，正常集合一律带 vec_ 前缀
	collectionRef := "vec_" + util.GenerateShortUUID()

	// 2. 预建向量库集合，保证首次入库前 schema 已就绪
	if _, err := s.factory.Open(ctx, req.EmbeddingConfigId, collectionRef); err != nil {
		return nil, xerr.Wrap(xerr.BadGateway, err)
	}

	// 3. 落库
	now := time.Now()
	ds := &entity.Dataset{
		TenantId:                strings.TrimSpace(req.TenantId),
		AppId:                   strings.TrimSpace(req.AppId),
		Name:                    name,
		CollectionRef:           collectionRef,
		EmbeddingConfigId:       req.EmbeddingConfigId,
		RetrieverTopK:           topK,
		RetrieverScoreThreshold: threshold,
		Status:                  entity.CommonStatusEnabled,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := s.datasetRepo.Create(ctx, ds); err != nil {
		return nil, xerr.Wrap(xerr.InternalServerError, err)
	}

	zlog.Info("dataset created",
		zap.Int64("dataset_id", ds.Id),
		zap.String("collection_ref", collectionRef),
		zap.Int64("embedding_config_id", req.EmbeddingConfigId))

	return &respond.DatasetRespond{
		Id:                ds.Id,
		Name:              ds.Name,
		CollectionRef:     ds.CollectionRef,
		EmbeddingConfigId: ds.EmbeddingConfigId,
	}, nil
}
