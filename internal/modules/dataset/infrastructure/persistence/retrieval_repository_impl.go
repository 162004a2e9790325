package persistence

import (
	"context"
	"time"

	"OmniBase/internal/modules/dataset/domain/entity"
	"OmniBase/internal/modules/dataset/domain/repository"

	"gorm.io/gorm"
)

type retrievalRepository struct {
	db *gorm.DB
}

func NewRetrievalRepository(db *gorm.DB) repository.RetrievalRepository {
	return &retrievalRepository{db: db}
}

func (r *retrievalRepository) CreateRecord(ctx context.Context, rec *entity.RetrievalRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *retrievalRepository) CloseRecord(ctx context.Context, id int64, status int8, elapsedMs, embeddingTokens, rerankingTokens int64, errorMsg string) error {
	return r.db.WithContext(ctx).
		Model(&entity.RetrievalRecord{}).
		Where("id = ? AND status = ?", id, entity.RetrievalStatusRunning).
		Updates(map[string]interface{}{
			"status":           status,
			"elapsed_ms":       elapsedMs,
			"embedding_tokens": embeddingTokens,
			"reranking_tokens": rerankingTokens,
			"error_msg":        errorMsg,
			"updated_at":       time.Now(),
		}).Error
}

func (r *retrievalRepository) CreateDetails(ctx context.Context, details []entity.RetrievalDetail) error {
	if len(details) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&details).Error
}
