package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"schoolreg/internal/models"

	"gorm.io/gorm"
)

// ApplicationFilter narrows List results.
type ApplicationFilter struct {
	Status models.ApplicationStatus
	Limit  int
	Offset int
}

// ApplicationRepository defines persistence operations for admission applications.
type ApplicationRepository interface {
	Create(ctx context.Context, app *models.Application) error
	GetByID(ctx context.Context, id string) (*models.Application, error)
	GetWithDocuments(ctx context.Context, id string) (*models.Application, error)
	List(ctx context.Context, filter ApplicationFilter) ([]models.Application, int64, error)
	FindByIDPrefix(ctx context.Context, prefix string, limit int) ([]models.Application, error)
	MarkApproved(ctx context.Context, id string, reviewerID *string, at time.Time) (bool, error)
	LinkStudent(ctx context.Context, id, studentID string) error
	MarkRejected(ctx context.Context, id, reason string, reviewerID *string, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
	AddDocument(ctx context.Context, doc *models.ApplicationDocument) error
}

type applicationRepository struct {
	db *gorm.DB
}

// NewApplicationRepository returns a new ApplicationRepository implementation.
func NewApplicationRepository(db *gorm.DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

func (r *applicationRepository) Create(ctx context.Context, app *models.Application) error {
	if err := r.db.WithContext(ctx).Omit("Documents").Create(app).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *applicationRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	var app models.Application
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&app).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Application", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &app, nil
}

func (r *applicationRepository) GetWithDocuments(ctx context.Context, id string) (*models.Application, error) {
	var app models.Application
	if err := r.db.WithContext(ctx).
		Preload("Documents", func(db *gorm.DB) *gorm.DB {
			return db.Order("uploaded_at ASC")
		}).
		Where("id = ?", id).
		First(&app).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Application", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &app, nil
}

func (r *applicationRepository) List(ctx context.Context, filter ApplicationFilter) ([]models.Application, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Application{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var apps []models.Application
	if err := q.Order("submitted_at DESC").
		Limit(clampLimit(filter.Limit, 20, 100)).
		Offset(offset).
		Find(&apps).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return apps, total, nil
}

// FindByIDPrefix returns up to limit applications whose id starts with prefix, ignoring case.
func (r *applicationRepository) FindByIDPrefix(ctx context.Context, prefix string, limit int) ([]models.Application, error) {
	pattern := escapeLike(strings.ToLower(prefix)) + "%"
	var apps []models.Application
	if err := r.db.WithContext(ctx).
		Where(`LOWER(id) LIKE ? ESCAPE '\'`, pattern).
		Order("id ASC").
		Limit(clampLimit(limit, 2, 10)).
		Find(&apps).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return apps, nil
}

// MarkApproved flips a pending application to approved. It reports false
// when the row was no longer pending. Inside a transaction the updated row
// stays locked until commit, so concurrent approvals serialize here.
func (r *applicationRepository) MarkApproved(ctx context.Context, id string, reviewerID *string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("id = ? AND status = ?", id, models.ApplicationStatusPending).
		Updates(map[string]any{
			"status":         models.ApplicationStatusApproved,
			"reviewed_at":    at,
			"reviewed_by_id": reviewerID,
			"updated_at":     at,
		})
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// LinkStudent records the Student produced by an approved application.
func (r *applicationRepository) LinkStudent(ctx context.Context, id, studentID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("id = ? AND status = ?", id, models.ApplicationStatusApproved).
		Update("student_id", studentID)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Application", id)
	}
	return nil
}

// MarkRejected flips a pending application to rejected with reason as notes.
// It reports false when the row was no longer pending.
func (r *applicationRepository) MarkRejected(ctx context.Context, id, reason string, reviewerID *string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("id = ? AND status = ?", id, models.ApplicationStatusPending).
		Updates(map[string]any{
			"status":         models.ApplicationStatusRejected,
			"reviewed_at":    at,
			"reviewed_by_id": reviewerID,
			"notes":          reason,
			"updated_at":     at,
		})
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Delete removes the application and its documents in one transaction.
func (r *applicationRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("application_id = ?", id).Delete(&models.ApplicationDocument{}).Error; err != nil {
			return models.NewInternalError(err)
		}
		res := tx.Where("id = ?", id).Delete(&models.Application{})
		if res.Error != nil {
			return models.NewInternalError(res.Error)
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Application", id)
		}
		return nil
	})
}

func (r *applicationRepository) AddDocument(ctx context.Context, doc *models.ApplicationDocument) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
