package repository

import (
	"context"

	"expense-approval/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApprovalLogRepository is insert-only: there is no update method.
type ApprovalLogRepository interface {
	// Append assigns the next sequence number for the application and inserts the entry.
	Append(ctx context.Context, entry *model.ApprovalLog) error
	HistoryFor(ctx context.Context, appID uuid.UUID) ([]model.ApprovalLog, error)
	HistoryForMany(ctx context.Context, appIDs []uuid.UUID) (map[uuid.UUID][]model.ApprovalLog, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*model.ApprovalLog, error)
	// DeleteByApplication is only used when the application itself is deleted.
	DeleteByApplication(ctx context.Context, appID uuid.UUID) error
}

type approvalLogRepository struct {
	db *gorm.DB
}

func NewApprovalLogRepository(db *gorm.DB) ApprovalLogRepository {
	return &approvalLogRepository{db: db}
}

func (r *approvalLogRepository) Append(ctx context.Context, entry *model.ApprovalLog) error {
	db := GetDB(ctx, r.db)
	var last int
	err := db.Model(&model.ApprovalLog{}).
		Where("application_id = ?", entry.ApplicationID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&last).Error
	if err != nil {
		return err
	}
	entry.Sequence = last + 1
	return db.Create(entry).Error
}

func (r *approvalLogRepository) HistoryFor(ctx context.Context, appID uuid.UUID) ([]model.ApprovalLog, error) {
	var entries []model.ApprovalLog
	err := GetDB(ctx, r.db).Preload("Approver").
		Where("application_id = ?", appID).
		Order("created_at ASC, sequence ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *approvalLogRepository) HistoryForMany(ctx context.Context, appIDs []uuid.UUID) (map[uuid.UUID][]model.ApprovalLog, error) {
	out := make(map[uuid.UUID][]model.ApprovalLog, len(appIDs))
	if len(appIDs) == 0 {
		return out, nil
	}
	var entries []model.ApprovalLog
	err := GetDB(ctx, r.db).
		Where("application_id IN ?", appIDs).
		Order("created_at ASC, sequence ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		out[e.ApplicationID] = append(out[e.ApplicationID], e)
	}
	return out, nil
}

func (r *approvalLogRepository) FindByIdempotencyKey(ctx context.Context, key string) (*model.ApprovalLog, error) {
	var entry model.ApprovalLog
	if err := GetDB(ctx, r.db).First(&entry, "idempotency_key = ?", key).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *approvalLogRepository) DeleteByApplication(ctx context.Context, appID uuid.UUID) error {
	return GetDB(ctx, r.db).Where("application_id = ?", appID).Delete(&model.ApprovalLog{}).Error
}
