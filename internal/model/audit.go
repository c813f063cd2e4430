package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Administrative actions recorded in the audit trail
const (
	ActionCreateApprovalRoute = "CREATE_APPROVAL_ROUTE"
	ActionUpdateApprovalRoute = "UPDATE_APPROVAL_ROUTE"
	ActionDeleteApprovalRoute = "DELETE_APPROVAL_ROUTE"
	ActionDeleteApplication   = "DELETE_APPLICATION"
	ActionCreateUser          = "CREATE_USER"
	ActionCreateDepartment    = "CREATE_DEPARTMENT"
	ActionSetDepartmentHead   = "SET_DEPARTMENT_HEAD"
)

// AuditLog tracks Who, What, and When for administrative changes outside the decision history
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable when written by a bootstrap job
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"` // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
