package persistence

import (
	"context"
	"errors"
	"time"

	"OmniBase/internal/modules/dataset/domain/entity"
	"OmniBase/internal/modules/dataset/domain/repository"

	"gorm.io/gorm"
)

type segmentRepository struct {
	db *gorm.DB
}

func NewSegmentRepository(db *gorm.DB) repository.SegmentRepository {
	return &segmentRepository{db: db}
}

func (r *segmentRepository) Create(ctx context.Context, seg *entity.Segment) error {
	return r.db.WithContext(ctx).Create(seg).Error
}

func (r *segmentRepository) GetByID(ctx context.Context, id int64) (*entity.Segment, error) {
	var seg entity.Segment
	err := r.db.WithContext(ctx).Where("id = ? AND status != ?", id, entity.CommonStatusDeleted).Take(&seg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &seg, nil
}

func (r *segmentRepository) ListByDocument(ctx context.Context, documentId int64, statuses []int8) ([]entity.Segment, error) {
	q := r.db.WithContext(ctx).Where("document_id = ?", documentId)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	} else {
		q = q.Where("status != ?", entity.CommonStatusDeleted)
	}
	var segs []entity.Segment
	if err := q.Order("position ASC").Find(&segs).Error; err != nil {
		return nil, err
	}
	return segs, nil
}

func (r *segmentRepository) ListByDataset(ctx context.Context, datasetId int64, statuses []int8) ([]entity.Segment, error) {
	q := r.db.WithContext(ctx).Where("dataset_id = ?", datasetId)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	} else {
		q = q.Where("status != ?", entity.CommonStatusDeleted)
	}
	var segs []entity.Segment
	if err := q.Order("id ASC").Find(&segs).Error; err != nil {
		return nil, err
	}
	return segs, nil
}

func (r *segmentRepository) MarkIndexed(ctx context.Context, id int64, indexId string, tokenCount int64, completedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&entity.Segment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"index_id":        indexId,
			"token_count":     tokenCount,
			"indexing_status": entity.IndexingStatusIndexed,
			"error_msg":       "",
			"completed_at":    completedAt,
			"updated_at":      time.Now(),
		}).Error
}

func (r *segmentRepository) UpdateIndexingStatus(ctx context.Context, id int64, indexingStatus int8, errorMsg string) error {
	return r.db.WithContext(ctx).
		Model(&entity.Segment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"indexing_status": indexingStatus,
			"error_msg":       errorMsg,
			"updated_at":      time.Now(),
		}).Error
}

func (r *segmentRepository) UpdateStatus(ctx context.Context, id int64, status int8) error {
	return r.db.WithContext(ctx).
		Model(&entity.Segment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

// ResetIndexing 批量清零：index_id 作废、token 归零、状态机回到 not_indexed
func (r *segmentRepository) ResetIndexing(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&entity.Segment{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"index_id":        "",
			"token_count":     0,
			"indexing_status": entity.IndexingStatusNotIndexed,
			"error_msg":       "",
			"completed_at":    nil,
			"updated_at":      time.Now(),
		}).Error
}

func (r *segmentRepository) SoftDeleteByDocument(ctx context.Context, documentId int64) error {
	return r.db.WithContext(ctx).
		Model(&entity.Segment{}).
		Where("document_id = ? AND status != ?", documentId, entity.CommonStatusDeleted).
		Updates(map[string]interface{}{
			"status":     entity.CommonStatusDeleted,
			"updated_at": time.Now(),
		}).Error
}

func (r *segmentRepository) SoftDeleteByDataset(ctx context.Context, datasetId int64) error {
	return r.db.WithContext(ctx).
		Model(&entity.Segment{}).
		Where("dataset_id = ? AND status != ?", datasetId, entity.CommonStatusDeleted).
		Updates(map[string]interface{}{
			"status":     entity.CommonStatusDeleted,
			"updated_at": time.Now(),
		}).Error
}

func (r *segmentRepository) IncrHitCount(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&entity.Segment{}).
		Where("id = ?", id).
		UpdateColumn("hit_count", gorm.Expr("hit_count + 1")).Error
}
