// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ApplicationStatus defines lifecycle states for admission applications.
type ApplicationStatus string

const (
	// ApplicationStatusPending indicates the application is awaiting review.
	ApplicationStatusPending ApplicationStatus = "pending"
	// ApplicationStatusApproved indicates the application produced a Student.
	ApplicationStatusApproved ApplicationStatus = "approved"
	// ApplicationStatusRejected indicates the application was declined.
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

var validApplicationStatus = map[ApplicationStatus]struct{}{
	ApplicationStatusPending:  {},
	ApplicationStatusApproved: {},
	ApplicationStatusRejected: {},
}

// Valid reports whether s is a known status.
func (s ApplicationStatus) Valid() bool {
	_, ok := validApplicationStatus[s]
	return ok
}

// Terminal reports whether no further transition is allowed from s.
func (s ApplicationStatus) Terminal() bool {
	return s == ApplicationStatusApproved || s == ApplicationStatusRejected
}

// Application is an admission request submitted by a prospective family.
type Application struct {
	ID             string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	FirstName      string            `gorm:"size:120;not null" json:"firstName"`
	LastName       string            `gorm:"size:120;not null" json:"lastName"`
	DateOfBirth    time.Time         `gorm:"not null" json:"dateOfBirth"`
	Gender         Gender            `gorm:"type:varchar(20);not null" json:"gender"`
	Address        string            `gorm:"type:text;not null" json:"address"`
	ParentName     string            `gorm:"size:200;not null" json:"parentName"`
	ParentPhone    string            `gorm:"size:40;not null" json:"parentPhone"`
	ParentEmail    string            `gorm:"size:255;index" json:"parentEmail"`
	Program        string            `gorm:"size:200;not null" json:"program"`
	Session        string            `gorm:"size:80;not null" json:"session"`
	SecondaryLevel *string           `gorm:"size:40" json:"secondaryLevel,omitempty"`
	Status         ApplicationStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Notes          string            `gorm:"type:text" json:"notes"`
	Submission     datatypes.JSON    `json:"-"`
	SubmittedAt    time.Time         `gorm:"not null" json:"submittedAt"`
	ReviewedAt     *time.Time        `json:"reviewedAt,omitempty"`
	ReviewedByID   *string           `gorm:"type:varchar(36)" json:"reviewedById,omitempty"`
	StudentID      *string           `gorm:"type:varchar(36);index" json:"studentId,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`

	Documents []ApplicationDocument `gorm:"foreignKey:ApplicationID;constraint:OnDelete:CASCADE" json:"documents,omitempty"`
}

// BeforeCreate assigns a UUID when none was set.
func (a *Application) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// FullName returns the applicant's display name.
func (a *Application) FullName() string {
	return a.FirstName + " " + a.LastName
}

// AccessCode is the short lookup code handed to families after approval.
func (a *Application) AccessCode() string {
	if len(a.ID) < AccessCodeLength {
		return a.ID
	}
	return a.ID[:AccessCodeLength]
}

// AccessCodeLength is the number of leading id characters forming an access code.
const AccessCodeLength = 8
