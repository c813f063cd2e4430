package repository

import (
	"context"
	"strings"
	"time"

	"expense-approval/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ApplicationFilter narrows application listings. Zero values are ignored.
type ApplicationFilter struct {
	DepartmentID *uuid.UUID
	ApplicantID  *uuid.UUID
	ApproverID   *uuid.UUID
	Statuses     []model.Status
	Type         string
	From         *time.Time
	To           *time.Time
	Query        string // free text on title
}

type ApplicationRepository interface {
	Create(ctx context.Context, app *model.Application) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Application, error)
	// FindForUpdate loads the row with a write lock where the dialect supports one.
	FindForUpdate(ctx context.Context, id uuid.UUID) (*model.Application, error)
	List(ctx context.Context, f ApplicationFilter, page, limit int) ([]model.Application, int64, error)
	// CompareAndSwap applies updates only when the row still has the expected status and version.
	// It bumps the version and reports whether a row was changed.
	CompareAndSwap(ctx context.Context, id uuid.UUID, status model.Status, version int, updates map[string]interface{}) (bool, error)
	ReplaceItems(ctx context.Context, appID uuid.UUID, items []model.ApplicationItem) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type applicationRepository struct {
	db *gorm.DB
}

func NewApplicationRepository(db *gorm.DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

func (r *applicationRepository) Create(ctx context.Context, app *model.Application) error {
	return GetDB(ctx, r.db).Create(app).Error
}

func (r *applicationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Application, error) {
	var app model.Application
	if err := GetDB(ctx, r.db).Preload("Items").First(&app, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *applicationRepository) FindForUpdate(ctx context.Context, id uuid.UUID) (*model.Application, error) {
	var app model.Application
	err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&app, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	if err := GetDB(ctx, r.db).Where("application_id = ?", id).Order("created_at asc").Find(&app.Items).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *applicationRepository) List(ctx context.Context, f ApplicationFilter, page, limit int) ([]model.Application, int64, error) {
	var apps []model.Application
	var total int64

	db := GetDB(ctx, r.db)
	if err := applyFilter(db.Model(&model.Application{}), f).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := applyFilter(db.Preload("Items"), f).Order("created_at DESC")
	if limit > 0 {
		query = query.Offset((page - 1) * limit).Limit(limit)
	}
	if err := query.Find(&apps).Error; err != nil {
		return nil, 0, err
	}

	return apps, total, nil
}

func applyFilter(q *gorm.DB, f ApplicationFilter) *gorm.DB {
	if f.DepartmentID != nil {
		q = q.Where("department_id = ?", *f.DepartmentID)
	}
	if f.ApplicantID != nil {
		q = q.Where("applicant_id = ?", *f.ApplicantID)
	}
	if f.ApproverID != nil {
		q = q.Where("current_approver_id = ?", *f.ApproverID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}
	if s := strings.TrimSpace(f.Query); s != "" {
		q = q.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	return q
}

func (r *applicationRepository) CompareAndSwap(ctx context.Context, id uuid.UUID, status model.Status, version int, updates map[string]interface{}) (bool, error) {
	values := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = version + 1

	res := GetDB(ctx, r.db).Model(&model.Application{}).
		Where("id = ? AND status = ? AND version = ?", id, status, version).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *applicationRepository) ReplaceItems(ctx context.Context, appID uuid.UUID, items []model.ApplicationItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("application_id = ?", appID).Delete(&model.ApplicationItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].ID = uuid.Nil
		items[i].ApplicationID = appID
	}
	return db.Create(&items).Error
}

func (r *applicationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("application_id = ?", id).Delete(&model.ApplicationItem{}).Error; err != nil {
		return err
	}
	res := db.Delete(&model.Application{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
