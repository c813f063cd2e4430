package repository

import (
	"context"

	"expense-approval/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RouteRepository interface {
	Create(ctx context.Context, route *model.ApprovalRoute) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRoute, error)
	List(ctx context.Context, departmentID *uuid.UUID) ([]model.ApprovalRoute, error)
	// ActiveFor returns a department's active routes, newest first.
	ActiveFor(ctx context.Context, departmentID uuid.UUID) ([]model.ApprovalRoute, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	DeleteSteps(ctx context.Context, routeID uuid.UUID) error
	InsertSteps(ctx context.Context, routeID uuid.UUID, steps []model.ApprovalStep) error
	// DeactivateOthers turns off every other active route of the department.
	DeactivateOthers(ctx context.Context, departmentID, keepID uuid.UUID) error
	// CountInFlight counts applications that still walk the route's steps.
	CountInFlight(ctx context.Context, routeID uuid.UUID) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type routeRepository struct {
	db *gorm.DB
}

func NewRouteRepository(db *gorm.DB) RouteRepository {
	return &routeRepository{db: db}
}

func orderedSteps(db *gorm.DB) *gorm.DB {
	return db.Order("step_number ASC")
}

func (r *routeRepository) Create(ctx context.Context, route *model.ApprovalRoute) error {
	return GetDB(ctx, r.db).Create(route).Error
}

func (r *routeRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRoute, error) {
	var route model.ApprovalRoute
	if err := GetDB(ctx, r.db).Preload("Steps", orderedSteps).First(&route, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &route, nil
}

func (r *routeRepository) List(ctx context.Context, departmentID *uuid.UUID) ([]model.ApprovalRoute, error) {
	var routes []model.ApprovalRoute
	q := GetDB(ctx, r.db).Preload("Steps", orderedSteps)
	if departmentID != nil {
		q = q.Where("department_id = ?", *departmentID)
	}
	if err := q.Order("created_at DESC").Find(&routes).Error; err != nil {
		return nil, err
	}
	return routes, nil
}

func (r *routeRepository) ActiveFor(ctx context.Context, departmentID uuid.UUID) ([]model.ApprovalRoute, error) {
	var routes []model.ApprovalRoute
	err := GetDB(ctx, r.db).Preload("Steps", orderedSteps).
		Where("department_id = ? AND is_active = ?", departmentID, true).
		Order("created_at DESC").
		Find(&routes).Error
	if err != nil {
		return nil, err
	}
	return routes, nil
}

func (r *routeRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	res := GetDB(ctx, r.db).Model(&model.ApprovalRoute{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *routeRepository) DeleteSteps(ctx context.Context, routeID uuid.UUID) error {
	return GetDB(ctx, r.db).Where("route_id = ?", routeID).Delete(&model.ApprovalStep{}).Error
}

func (r *routeRepository) InsertSteps(ctx context.Context, routeID uuid.UUID, steps []model.ApprovalStep) error {
	if len(steps) == 0 {
		return nil
	}
	for i := range steps {
		steps[i].ID = uuid.Nil
		steps[i].RouteID = routeID
	}
	return GetDB(ctx, r.db).Create(&steps).Error
}

func (r *routeRepository) DeactivateOthers(ctx context.Context, departmentID, keepID uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.ApprovalRoute{}).
		Where("department_id = ? AND id <> ? AND is_active = ?", departmentID, keepID, true).
		Update("is_active", false).Error
}

func (r *routeRepository) CountInFlight(ctx context.Context, routeID uuid.UUID) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.Application{}).
		Where("route_id = ? AND status IN ?", routeID, []model.Status{model.StatusPending, model.StatusSubmitted, model.StatusOnHold}).
		Count(&n).Error
	return n, err
}

func (r *routeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("route_id = ?", id).Delete(&model.ApprovalStep{}).Error; err != nil {
		return err
	}
	res := db.Delete(&model.ApprovalRoute{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
