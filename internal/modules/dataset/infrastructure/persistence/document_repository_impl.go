package persistence

import (
	"context"
	"errors"
	"time"

	"OmniBase/internal/modules/dataset/domain/entity"
	"OmniBase/internal/modules/dataset/domain/repository"

	"gorm.io/gorm"
)

type documentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) repository.DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *entity.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *documentRepository) GetByID(ctx context.Context, id int64) (*entity.Document, error) {
	var doc entity.Document
	err := r.db.WithContext(ctx).Where("id = ? AND status != ?", id, entity.CommonStatusDeleted).Take(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) ListByDataset(ctx context.Context, datasetId int64, statuses []int8) ([]entity.Document, error) {
	q := r.db.WithContext(ctx).Where("dataset_id = ?", datasetId)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	} else {
		q = q.Where("status != ?", entity.CommonStatusDeleted)
	}
	var docs []entity.Document
	if err := q.Order("id ASC").Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *documentRepository) UpdateStatus(ctx context.Context, id int64, status int8) error {
	return r.db.WithContext(ctx).
		Model(&entity.Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

func (r *documentRepository) UpdateIndexingResult(ctx context.Context, id int64, wordCount, tokenCount, latencyMs int64) error {
	return r.db.WithContext(ctx).
		Model(&entity.Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"word_count":          wordCount,
			"token_count":         tokenCount,
			"indexing_latency_ms": latencyMs,
			"updated_at":          time.Now(),
		}).Error
}

func (r *documentRepository) SoftDeleteByDataset(ctx context.Context, datasetId int64) error {
	return r.db.WithContext(ctx).
		Model(&entity.Document{}).
		Where("dataset_id = ? AND status != ?", datasetId, entity.CommonStatusDeleted).
		Updates(map[string]interface{}{
			"status":     entity.CommonStatusDeleted,
			"updated_at": time.Now(),
		}).Error
}
