package repository

import (
	"context"

	"expense-approval/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditFilter narrows an audit listing. Zero fields match everything.
type AuditFilter struct {
	Action   string
	EntityID string
	UserID   *uuid.UUID
}

// AuditRepository stores administrative changes (route edits, deletions, directory changes).
// Approval decisions live in ApprovalLogRepository.
type AuditRepository interface {
	Log(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, f AuditFilter, page, limit int) ([]model.AuditLog, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Log(ctx context.Context, entry *model.AuditLog) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (f AuditFilter) apply(q *gorm.DB) *gorm.DB {
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.EntityID != "" {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	return q
}

func (r *auditRepository) List(ctx context.Context, f AuditFilter, page, limit int) ([]model.AuditLog, int64, error) {
	var entries []model.AuditLog
	var total int64

	db := GetDB(ctx, r.db)
	if err := f.apply(db.Model(&model.AuditLog{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	q := f.apply(db.Preload("User")).Order("created_at DESC")
	if limit > 0 {
		q = q.Offset((page - 1) * limit).Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
