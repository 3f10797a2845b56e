package repository

import (
	"context"
	"errors"
	"strings"

	"schoolreg/internal/models"

	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByStudentID(ctx context.Context, studentID string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	FindOrCreateByEmail(ctx context.Context, user *models.User) (*models.User, bool, error)
	UpdatePassword(ctx context.Context, id, hash string) error
	UpdateRole(ctx context.Context, id string, role models.Role) error
	SetMirrorStudentID(ctx context.Context, studentID, mirrorID string) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// NormalizeEmail lowercases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("User", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

// GetByEmail returns nil, nil when no user has that email.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

// GetByStudentID returns the oldest account linked to the student, or nil, nil.
func (r *userRepository) GetByStudentID(ctx context.Context, studentID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at ASC").
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	user.Email = NormalizeEmail(user.Email)
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError("User already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

// FindOrCreateByEmail inserts user unless an account with the same email
// exists. An existing account keeps its credential and role; its display
// name and student link are overwritten by non-empty values from user. The
// bool reports whether a new row was created.
func (r *userRepository) FindOrCreateByEmail(ctx context.Context, user *models.User) (*models.User, bool, error) {
	email := NormalizeEmail(user.Email)
	existing, err := r.GetByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}

	if existing == nil {
		user.Email = email
		if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
			return nil, false, models.NewInternalError(err)
		}
		return user, true, nil
	}

	updates := map[string]any{}
	if user.FullName != "" && existing.FullName != user.FullName {
		updates["full_name"] = user.FullName
		existing.FullName = user.FullName
	}
	if user.StudentID != nil && (existing.StudentID == nil || *existing.StudentID != *user.StudentID) {
		updates["student_id"] = *user.StudentID
		sid := *user.StudentID
		existing.StudentID = &sid
	}
	if len(updates) > 0 {
		if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return nil, false, models.NewInternalError(err)
		}
	}
	return existing, false, nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("password", hash)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	return nil
}

func (r *userRepository) UpdateRole(ctx context.Context, id string, role models.Role) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("role", role)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	return nil
}

// SetMirrorStudentID records the student-records id on every account linked to studentID.
func (r *userRepository) SetMirrorStudentID(ctx context.Context, studentID, mirrorID string) error {
	if err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("student_id = ?", studentID).
		Update("mirror_student_id", mirrorID).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
