package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DocumentType classifies an uploaded admission document.
type DocumentType string

const (
	DocumentTypeBirthCertificate DocumentType = "birth_certificate"
	DocumentTypePhoto            DocumentType = "photo"
	DocumentTypeReportCard       DocumentType = "report_card"
	DocumentTypeMedicalRecord    DocumentType = "medical_record"
	DocumentTypeOther            DocumentType = "other"
)

var validDocumentTypes = map[DocumentType]struct{}{
	DocumentTypeBirthCertificate: {},
	DocumentTypePhoto:            {},
	DocumentTypeReportCard:       {},
	DocumentTypeMedicalRecord:    {},
	DocumentTypeOther:            {},
}

// ParseDocumentType normalizes raw input, falling back to DocumentTypeOther.
func ParseDocumentType(raw string) DocumentType {
	t := DocumentType(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := validDocumentTypes[t]; ok {
		return t
	}
	return DocumentTypeOther
}

// ApplicationDocument is an artifact attached to exactly one Application.
type ApplicationDocument struct {
	ID            string       `gorm:"type:varchar(36);primaryKey" json:"id"`
	ApplicationID string       `gorm:"type:varchar(36);not null;index" json:"applicationId"`
	Type          DocumentType `gorm:"type:varchar(40);not null;default:'other'" json:"type"`
	FileName      string       `gorm:"size:255;not null" json:"fileName"`
	FileURL       string       `gorm:"type:text;not null" json:"fileUrl"`
	FileSize      int64        `json:"fileSize"`
	MimeType      string       `gorm:"size:120" json:"mimeType"`
	UploadedAt    time.Time    `gorm:"not null" json:"uploadedAt"`
}

// BeforeCreate assigns a UUID and upload time when missing.
func (d *ApplicationDocument) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now().UTC()
	}
	return nil
}
