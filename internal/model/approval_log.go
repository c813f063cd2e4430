package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Action is a decision or lifecycle move recorded in the approval log.
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionReturn   Action = "return"
	ActionHold     Action = "hold"
	ActionSubmit   Action = "submit"
	ActionResubmit Action = "resubmit"
	ActionResume   Action = "resume"
	ActionDelegate Action = "delegate"
)

// ErrAppendOnly is returned when something tries to modify a stored log entry.
var ErrAppendOnly = errors.New("approval log entries are append-only")

// ApprovalLog is one immutable entry of an application's decision history.
// ApproverID is nil for entries written by the system (auto-approval).
type ApprovalLog struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ApplicationID  uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_approval_logs_app_seq" json:"application_id"`
	Sequence       int        `gorm:"not null;uniqueIndex:idx_approval_logs_app_seq" json:"sequence"`
	ApproverID     *uuid.UUID `gorm:"type:uuid;index" json:"approver_id"`
	Approver       *User      `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
	Action         Action     `gorm:"type:varchar(20);not null;index" json:"action"`
	Comment        *string    `gorm:"type:text" json:"comment"`
	StatusBefore   Status     `gorm:"type:varchar(20);not null" json:"status_before"`
	StatusAfter    Status     `gorm:"type:varchar(20);not null" json:"status_after"`
	StepNumber     int        `gorm:"not null" json:"step_number"`
	IdempotencyKey *string    `gorm:"type:varchar(128);uniqueIndex" json:"-"`
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`
}

func (l *ApprovalLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

func (l *ApprovalLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrAppendOnly
}

// IsSystem reports whether the entry was written without a human actor.
func (l ApprovalLog) IsSystem() bool {
	return l.ApproverID == nil
}
