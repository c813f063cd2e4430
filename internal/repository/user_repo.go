package repository

import (
	"context"

	"expense-approval/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository defines data access for directory users and departments
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// List pages through users, optionally filtered by role.
	List(ctx context.Context, role string, page, limit int) ([]model.User, int64, error)
	// FirstWithRole returns the first user holding role, ordered by username.
	FirstWithRole(ctx context.Context, role string) (*model.User, error)
	ListByRole(ctx context.Context, role string) ([]model.User, error)

	CreateDepartment(ctx context.Context, dept *model.Department) error
	GetDepartment(ctx context.Context, id uuid.UUID) (*model.Department, error)
	GetDepartmentByName(ctx context.Context, name string) (*model.Department, error)
	SetDepartmentHead(ctx context.Context, deptID, userID uuid.UUID) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new instance of UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Create(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context, role string, page, limit int) ([]model.User, int64, error) {
	var users []model.User
	var total int64

	query := GetDB(ctx, r.db).Model(&model.User{})
	if role != "" {
		query = query.Where("role = ?", role)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("username ASC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *userRepository) FirstWithRole(ctx context.Context, role string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).Where("role = ?", role).Order("username ASC").First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) ListByRole(ctx context.Context, role string) ([]model.User, error) {
	var users []model.User
	if err := GetDB(ctx, r.db).Where("role = ?", role).Order("username ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) CreateDepartment(ctx context.Context, dept *model.Department) error {
	return GetDB(ctx, r.db).Create(dept).Error
}

func (r *userRepository) GetDepartment(ctx context.Context, id uuid.UUID) (*model.Department, error) {
	var dept model.Department
	if err := GetDB(ctx, r.db).First(&dept, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &dept, nil
}

func (r *userRepository) GetDepartmentByName(ctx context.Context, name string) (*model.Department, error) {
	var dept model.Department
	if err := GetDB(ctx, r.db).First(&dept, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &dept, nil
}

func (r *userRepository) SetDepartmentHead(ctx context.Context, deptID, userID uuid.UUID) error {
	res := GetDB(ctx, r.db).Model(&model.Department{}).Where("id = ?", deptID).Update("head_user_id", userID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
