package service

import (
	"context"

	"github.com/google/uuid"

	"expense-approval/internal/apperror"
	"expense-approval/internal/repository"
	"expense-approval/internal/workflow"
)

// directory answers approver lookups from the users and departments tables.
type directory struct {
	users repository.UserRepository
}

// NewDirectory adapts the user repository for route resolution.
func NewDirectory(users repository.UserRepository) workflow.Directory {
	return &directory{users: users}
}

func (d *directory) FirstUserWithRole(ctx context.Context, role string) (uuid.UUID, error) {
	u, err := d.users.FirstWithRole(ctx, role)
	if err != nil {
		return uuid.Nil, storeErr("find user by role", "user with role", role, err)
	}
	return u.ID, nil
}

func (d *directory) DepartmentHead(ctx context.Context, departmentID uuid.UUID) (uuid.UUID, error) {
	dept, err := d.users.GetDepartment(ctx, departmentID)
	if err != nil {
		return uuid.Nil, storeErr("load department", "department", departmentID, err)
	}
	if dept.HeadUserID == nil {
		return uuid.Nil, apperror.NotFound("head of department", dept.Name)
	}
	return *dept.HeadUserID, nil
}
