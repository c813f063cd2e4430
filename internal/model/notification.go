package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationType enum constants
const (
	NotifApplicationStatus = "application_status"
	NotifApprovalRequired  = "approval_required"
	NotifApprovalCompleted = "approval_completed"
)

// NotificationPriority enum constants
const (
	NotifPriorityLow    = "low"
	NotifPriorityMedium = "medium"
	NotifPriorityHigh   = "high"
)

// Notification is a per-user message derived from workflow events.
type Notification struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Type          string     `gorm:"type:varchar(30);not null" json:"type"`
	Title         string     `gorm:"type:varchar(255);not null" json:"title"`
	Message       string     `gorm:"type:text" json:"message"`
	ApplicationID *uuid.UUID `gorm:"type:uuid;index" json:"application_id"`
	Priority      string     `gorm:"type:varchar(10);not null" json:"priority"`
	IsRead        bool       `gorm:"not null;index" json:"is_read"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
