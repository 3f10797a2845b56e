package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the authorization role carried by a User and its session token.
type Role string

const (
	RoleParent    Role = "parent"
	RoleStudent   Role = "student"
	RoleAdmin     Role = "admin"
	RoleDirection Role = "direction"
	// RoleSystem is only ever minted for service-to-service credentials.
	RoleSystem Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleParent, RoleStudent, RoleAdmin, RoleDirection, RoleSystem:
		return true
	}
	return false
}

// CanReview reports whether the role may approve, reject or delete applications.
func (r Role) CanReview() bool {
	return r == RoleAdmin || r == RoleDirection
}

// User is a login identity.
type User struct {
	ID              string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email           string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password        string    `gorm:"not null" json:"-"`
	Role            Role      `gorm:"type:varchar(20);not null;index" json:"role"`
	FullName        string    `gorm:"size:240" json:"fullName"`
	StudentID       *string   `gorm:"type:varchar(36);index" json:"studentId,omitempty"`
	MirrorStudentID *string   `gorm:"size:64" json:"mirrorStudentId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// BeforeCreate assigns a UUID when none was set.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
