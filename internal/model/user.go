package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is directory data for applicants and approvers. Credentials live with the identity provider.
type User struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Username     string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	Email        string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	FullName     string         `gorm:"type:varchar(255)" json:"full_name"`
	Role         string         `gorm:"type:varchar(50);not null;index" json:"role"` // admin, manager, staff, accounting, ...
	DepartmentID *uuid.UUID     `gorm:"type:uuid;index" json:"department_id"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"` // GORM soft delete
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Department owns approval routes; HeadUserID backs department_head steps.
type Department struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string     `gorm:"type:varchar(255);not null" json:"name"`
	HeadUserID *uuid.UUID `gorm:"type:uuid" json:"head_user_id"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (d *Department) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
