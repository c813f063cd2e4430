package service

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"expense-approval/internal/apperror"
	"expense-approval/internal/model"
	"expense-approval/internal/repository"
)

var emailRegex = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

// DTOs for Request validation
type CreateUserRequest struct {
	Username     string `json:"username" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	FullName     string `json:"full_name"`
	Role         string `json:"role" binding:"required"`
	DepartmentID string `json:"department_id"`
}

type CreateDepartmentRequest struct {
	Name       string `json:"name" binding:"required"`
	HeadUserID string `json:"head_user_id"`
}

type SetDepartmentHeadRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// UserResponse is the directory view of a user. Credentials are not stored here.
type UserResponse struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	Email        string  `json:"email"`
	FullName     string  `json:"full_name"`
	Role         string  `json:"role"`
	DepartmentID *string `json:"department_id"`
	CreatedAt    string  `json:"created_at"`
}

type DepartmentResponse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	HeadUserID *string `json:"head_user_id"`
	CreatedAt  string  `json:"created_at"`
}

// UserService maintains the directory that role and department_head steps resolve against.
type UserService interface {
	CreateUser(ctx context.Context, actorID uuid.UUID, req CreateUserRequest) (UserResponse, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (UserResponse, error)
	ListUsers(ctx context.Context, role string, page, limit int) ([]UserResponse, int64, error)
	CreateDepartment(ctx context.Context, actorID uuid.UUID, req CreateDepartmentRequest) (DepartmentResponse, error)
	SetDepartmentHead(ctx context.Context, actorID, deptID uuid.UUID, req SetDepartmentHeadRequest) (DepartmentResponse, error)
}

type userService struct {
	tx     repository.TransactionManager
	repo   repository.UserRepository
	audit  repository.AuditRepository
	logger *zap.Logger
}

// NewUserService returns a new instance of UserService
func NewUserService(tx repository.TransactionManager, repo repository.UserRepository, audit repository.AuditRepository, logger *zap.Logger) UserService {
	return &userService{tx: tx, repo: repo, audit: audit, logger: logger.With(zap.String("component", "user_service"))}
}

func (s *userService) CreateUser(ctx context.Context, actorID uuid.UUID, req CreateUserRequest) (UserResponse, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Role = strings.TrimSpace(req.Role)
	if req.Username == "" || req.Role == "" {
		return UserResponse{}, apperror.Validation("username and role are required")
	}
	if !emailRegex.MatchString(req.Email) {
		return UserResponse{}, apperror.Validation("invalid email format")
	}
	deptID, err := parseOptionalID("department_id", &req.DepartmentID)
	if err != nil {
		return UserResponse{}, err
	}

	user := model.User{
		Username:     req.Username,
		Email:        req.Email,
		FullName:     req.FullName,
		Role:         req.Role,
		DepartmentID: deptID,
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		// Double check username/email uniqueness so callers get a conflict instead of a driver error
		if _, err := s.repo.GetByUsername(txCtx, user.Username); err == nil {
			return apperror.Conflict("username %q already exists", user.Username)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.Persistence("check username", err)
		}
		if _, err := s.repo.GetByEmail(txCtx, user.Email); err == nil {
			return apperror.Conflict("email %q already exists", user.Email)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.Persistence("check email", err)
		}
		if deptID != nil {
			if _, err := s.repo.GetDepartment(txCtx, *deptID); err != nil {
				return storeErr("load department", "department", *deptID, err)
			}
		}
		if err := s.repo.Create(txCtx, &user); err != nil {
			return apperror.Persistence("create user", err)
		}
		return s.writeAudit(txCtx, actorID, model.ActionCreateUser, user.ID.String(), user.Username, map[string]interface{}{
			"role":          user.Role,
			"department_id": idString(user.DepartmentID),
		})
	})
	if err != nil {
		return UserResponse{}, err
	}

	s.logger.Info("user created", zap.String("user_id", user.ID.String()), zap.String("role", user.Role))
	return toUserResponse(user), nil
}

func (s *userService) GetUserByID(ctx context.Context, id uuid.UUID) (UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return UserResponse{}, storeErr("load user", "user", id, err)
	}
	return toUserResponse(*user), nil
}

func (s *userService) ListUsers(ctx context.Context, role string, page, limit int) ([]UserResponse, int64, error) {
	users, total, err := s.repo.List(ctx, role, page, limit)
	if err != nil {
		return nil, 0, apperror.Persistence("list users", err)
	}
	res := make([]UserResponse, 0, len(users))
	for _, u := range users {
		res = append(res, toUserResponse(u))
	}
	return res, total, nil
}

func (s *userService) CreateDepartment(ctx context.Context, actorID uuid.UUID, req CreateDepartmentRequest) (DepartmentResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return DepartmentResponse{}, apperror.Validation("department name is required")
	}
	headID, err := parseOptionalID("head_user_id", &req.HeadUserID)
	if err != nil {
		return DepartmentResponse{}, err
	}

	dept := model.Department{Name: name, HeadUserID: headID}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.GetDepartmentByName(txCtx, name); err == nil {
			return apperror.Conflict("department %q already exists", name)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.Persistence("check department", err)
		}
		if headID != nil {
			if _, err := s.repo.GetByID(txCtx, *headID); err != nil {
				return storeErr("load user", "user", *headID, err)
			}
		}
		if err := s.repo.CreateDepartment(txCtx, &dept); err != nil {
			return apperror.Persistence("create department", err)
		}
		return s.writeAudit(txCtx, actorID, model.ActionCreateDepartment, dept.ID.String(), dept.Name, map[string]interface{}{
			"head_user_id": idString(dept.HeadUserID),
		})
	})
	if err != nil {
		return DepartmentResponse{}, err
	}
	return toDepartmentResponse(dept), nil
}

// SetDepartmentHead changes who department_head steps resolve to. Applications already
// waiting on the previous head keep their current approver.
func (s *userService) SetDepartmentHead(ctx context.Context, actorID, deptID uuid.UUID, req SetDepartmentHeadRequest) (DepartmentResponse, error) {
	userID, err := parseID("user_id", req.UserID)
	if err != nil {
		return DepartmentResponse{}, err
	}

	var dept *model.Department
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.GetByID(txCtx, userID); err != nil {
			return storeErr("load user", "user", userID, err)
		}
		if err := s.repo.SetDepartmentHead(txCtx, deptID, userID); err != nil {
			return storeErr("set department head", "department", deptID, err)
		}
		dept, err = s.repo.GetDepartment(txCtx, deptID)
		if err != nil {
			return storeErr("load department", "department", deptID, err)
		}
		return s.writeAudit(txCtx, actorID, model.ActionSetDepartmentHead, dept.ID.String(), dept.Name, map[string]interface{}{
			"head_user_id": userID.String(),
		})
	})
	if err != nil {
		return DepartmentResponse{}, err
	}

	s.logger.Info("department head changed", zap.String("department_id", deptID.String()), zap.String("user_id", userID.String()))
	return toDepartmentResponse(*dept), nil
}

func (s *userService) writeAudit(ctx context.Context, actorID uuid.UUID, action, entityID, name string, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	entry := model.AuditLog{
		Action:     action,
		EntityID:   entityID,
		EntityName: name,
		Details:    string(payload),
	}
	if actorID != uuid.Nil {
		entry.UserID = &actorID
	}
	if err := s.audit.Log(ctx, &entry); err != nil {
		return apperror.Persistence("write audit log", err)
	}
	return nil
}

func toUserResponse(u model.User) UserResponse {
	return UserResponse{
		ID:           u.ID.String(),
		Username:     u.Username,
		Email:        u.Email,
		FullName:     u.FullName,
		Role:         u.Role,
		DepartmentID: idString(u.DepartmentID),
		CreatedAt:    u.CreatedAt.Format(timeLayout),
	}
}

func toDepartmentResponse(d model.Department) DepartmentResponse {
	return DepartmentResponse{
		ID:         d.ID.String(),
		Name:       d.Name,
		HeadUserID: idString(d.HeadUserID),
		CreatedAt:  d.CreatedAt.Format(timeLayout),
	}
}
