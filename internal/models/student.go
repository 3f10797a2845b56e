package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StudentStatus defines the enrollment state of a student.
type StudentStatus string

const (
	StudentStatusPending   StudentStatus = "pending"
	StudentStatusActive    StudentStatus = "active"
	StudentStatusInactive  StudentStatus = "inactive"
	StudentStatusGraduated StudentStatus = "graduated"
	StudentStatusSuspended StudentStatus = "suspended"
)

// Student is the durable record produced when an Application is approved.
type Student struct {
	ID             string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	StudentCode    string        `gorm:"size:20;uniqueIndex" json:"studentCode"`
	FirstName      string        `gorm:"size:120;not null" json:"firstName"`
	LastName       string        `gorm:"size:120;not null" json:"lastName"`
	DateOfBirth    time.Time     `gorm:"not null" json:"dateOfBirth"`
	Gender         Gender        `gorm:"type:varchar(20);not null" json:"gender"`
	Address        string        `gorm:"type:text;not null" json:"address"`
	ParentName     string        `gorm:"size:200;not null" json:"parentName"`
	ParentPhone    string        `gorm:"size:40;not null" json:"parentPhone"`
	ParentEmail    string        `gorm:"size:255" json:"parentEmail"`
	Program        string        `gorm:"size:200;not null" json:"program"`
	Session        string        `gorm:"size:80;not null" json:"session"`
	SecondaryLevel *string       `gorm:"size:40" json:"secondaryLevel,omitempty"`
	Status         StudentStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	TuitionAmount  float64       `gorm:"not null" json:"tuitionAmount"`
	TuitionPaid    float64       `gorm:"not null;default:0" json:"tuitionPaid"`
	EnrollmentDate time.Time     `gorm:"not null" json:"enrollmentDate"`
	ApplicationID  *string       `gorm:"type:varchar(36);uniqueIndex" json:"applicationId,omitempty"`
	MirrorID       *string       `gorm:"size:64" json:"mirrorId,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// BeforeCreate assigns a UUID when none was set.
func (s *Student) BeforeCreate(_ *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// FullName returns the student's display name.
func (s *Student) FullName() string {
	return s.FirstName + " " + s.LastName
}
