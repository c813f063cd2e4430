package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ApplicationType enum constants
const (
	AppTypeBusinessTrip = "business_trip"
	AppTypeExpense      = "expense"
)

// Priority enum constants
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Status is the lifecycle state of an application.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted" // legacy alias of pending
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusReturned  Status = "returned"
	StatusOnHold    Status = "on_hold"
)

// Statuses lists the closed status set.
var Statuses = []Status{
	StatusDraft, StatusPending, StatusSubmitted, StatusApproved,
	StatusRejected, StatusReturned, StatusOnHold,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// AwaitingDecision reports whether s waits for an approver's decision.
func (s Status) AwaitingDecision() bool {
	return s == StatusPending || s == StatusSubmitted
}

// Application is a business-trip or expense request moving through approval.
type Application struct {
	ID                uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	Type              string              `gorm:"type:varchar(20);not null;index" json:"type"` // business_trip, expense
	Title             string              `gorm:"type:varchar(255);not null" json:"title"`
	DepartmentID      uuid.UUID           `gorm:"type:uuid;not null;index" json:"department_id"`
	ApplicantID       uuid.UUID           `gorm:"type:uuid;not null;index" json:"applicant_id"`
	TotalAmount       decimal.NullDecimal `gorm:"type:decimal(18,2)" json:"total_amount"` // NULL until computed
	Priority          string              `gorm:"type:varchar(20);not null" json:"priority"`
	Status            Status              `gorm:"type:varchar(20);not null;index" json:"status"`
	CurrentApproverID *uuid.UUID          `gorm:"type:uuid;index" json:"current_approver_id"`
	RouteID           *uuid.UUID          `gorm:"type:uuid" json:"route_id"`
	CurrentStep       int                 `gorm:"not null" json:"current_step"` // 0 when no step is active
	SubmittedAt       *time.Time          `json:"submitted_at"`
	ApprovedAt        *time.Time          `json:"approved_at"`
	RejectionReason   *string             `gorm:"type:text" json:"rejection_reason"`
	StatusChangedAt   *time.Time          `json:"status_changed_at"`
	Version           int                 `gorm:"not null" json:"version"` // optimistic lock counter
	Items             []ApplicationItem   `gorm:"foreignKey:ApplicationID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

func (a *Application) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Version == 0 {
		a.Version = 1
	}
	return nil
}

// ApplicationItem is one expense line or trip cost estimate.
type ApplicationItem struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ApplicationID uuid.UUID       `gorm:"type:uuid;not null;index" json:"application_id"`
	Category      string          `gorm:"type:varchar(50);not null" json:"category"` // transportation, accommodation, daily_allowance, ...
	Description   string          `gorm:"type:text" json:"description"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	ItemDate      *time.Time      `json:"item_date"`
	StoreName     string          `gorm:"type:varchar(255)" json:"store_name"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (i *ApplicationItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// ItemsTotal sums the item amounts.
func ItemsTotal(items []ApplicationItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Amount)
	}
	return total
}
