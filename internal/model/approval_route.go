package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ApproverType enum constants
const (
	ApproverTypeUser           = "user"
	ApproverTypeRole           = "role"
	ApproverTypeDepartmentHead = "department_head"
)

// ApprovalRoute is a department-scoped ordered chain of approval steps.
type ApprovalRoute struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string         `gorm:"type:varchar(255);not null" json:"name"`
	Description  string         `gorm:"type:text" json:"description"`
	DepartmentID uuid.UUID      `gorm:"type:uuid;not null;index" json:"department_id"`
	IsActive     bool           `gorm:"not null;index" json:"is_active"`
	CreatedBy    *uuid.UUID     `gorm:"type:uuid" json:"created_by"`
	Steps        []ApprovalStep `gorm:"foreignKey:RouteID;constraint:OnDelete:CASCADE" json:"steps"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (r *ApprovalRoute) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ApprovalStep is one link of a route. MinAmount/MaxAmount restrict when it applies.
type ApprovalStep struct {
	ID                    uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	RouteID               uuid.UUID           `gorm:"type:uuid;not null;index" json:"route_id"`
	StepNumber            int                 `gorm:"not null" json:"step_number"`
	ApproverType          string              `gorm:"type:varchar(30);not null" json:"approver_type"` // user, role, department_head
	ApproverUserID        *uuid.UUID          `gorm:"type:uuid" json:"approver_user_id"`
	RoleName              string              `gorm:"type:varchar(50)" json:"role_name"`
	ApproverDepartmentID  *uuid.UUID          `gorm:"type:uuid" json:"approver_department_id"`
	MinAmount             decimal.NullDecimal `gorm:"type:decimal(18,2)" json:"min_amount"`
	MaxAmount             decimal.NullDecimal `gorm:"type:decimal(18,2)" json:"max_amount"`
	IsRequired            bool                `gorm:"not null" json:"is_required"`
	CanDelegate           bool                `gorm:"not null" json:"can_delegate"`
	AutoApproveIfSameUser bool                `gorm:"not null" json:"auto_approve_if_same_user"`
	CreatedAt             time.Time           `json:"created_at"`
}

func (s *ApprovalStep) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// HasAmountRange reports whether the step is conditioned on the application total.
func (s ApprovalStep) HasAmountRange() bool {
	return s.MinAmount.Valid || s.MaxAmount.Valid
}
