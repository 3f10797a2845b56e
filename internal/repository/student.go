package repository

import (
	"context"
	"errors"
	"fmt"

	"schoolreg/internal/models"

	"gorm.io/gorm"
)

// StudentRepository defines persistence operations for students.
type StudentRepository interface {
	Create(ctx context.Context, student *models.Student) error
	GetByID(ctx context.Context, id string) (*models.Student, error)
	GetByApplicationID(ctx context.Context, applicationID string) (*models.Student, error)
	SetMirrorID(ctx context.Context, id, mirrorID string) error
	ListUnmirrored(ctx context.Context, limit int) ([]models.Student, error)
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository returns a new StudentRepository implementation.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

// Create inserts student. Unique index violations wrap ErrUniqueViolation.
func (r *studentRepository) Create(ctx context.Context, student *models.Student) error {
	if err := r.db.WithContext(ctx).Create(student).Error; err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("create student: %w", ErrUniqueViolation)
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *studentRepository) GetByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&student).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Student", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &student, nil
}

func (r *studentRepository) GetByApplicationID(ctx context.Context, applicationID string) (*models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).Where("application_id = ?", applicationID).First(&student).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Student", applicationID)
		}
		return nil, models.NewInternalError(err)
	}
	return &student, nil
}

func (r *studentRepository) SetMirrorID(ctx context.Context, id, mirrorID string) error {
	if err := r.db.WithContext(ctx).
		Model(&models.Student{}).
		Where("id = ?", id).
		Update("mirror_id", mirrorID).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// ListUnmirrored returns students that never received a student-records id, oldest first.
func (r *studentRepository) ListUnmirrored(ctx context.Context, limit int) ([]models.Student, error) {
	var students []models.Student
	if err := r.db.WithContext(ctx).
		Where("mirror_id IS NULL OR mirror_id = ''").
		Order("created_at ASC").
		Limit(clampLimit(limit, 50, 500)).
		Find(&students).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return students, nil
}
