package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"schoolreg/internal/auth"
	"schoolreg/internal/models"
	"schoolreg/internal/repository"
	"schoolreg/internal/validation"
)

// TokenRevoker records logged-out token ids until they expire.
type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
}

// Session is a credential issued by sign-in.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

// AuthService handles password sign-in and credential changes.
type AuthService struct {
	users   repository.UserRepository
	hasher  PasswordHasher
	issuer  *auth.Issuer
	revoker TokenRevoker
	ttl     time.Duration
}

// NewAuthService creates an AuthService. revoker may be nil, which turns
// Logout into a no-op.
func NewAuthService(users repository.UserRepository, hasher PasswordHasher, issuer *auth.Issuer, revoker TokenRevoker, ttl time.Duration) *AuthService {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{users: users, hasher: hasher, issuer: issuer, revoker: revoker, ttl: ttl}
}

// Login verifies email and password and issues a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, models.NewValidationError("Email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Role == models.RoleSystem || s.hasher.Compare(user.Password, password) != nil {
		return nil, models.NewUnauthenticatedError("Invalid credentials")
	}

	token, expiresAt, err := s.issuer.Issue(auth.ClaimsForUser(user), s.ttl)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	slog.InfoContext(ctx, "user signed in", slog.String("user_id", user.ID), slog.String("role", string(user.Role)))
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Logout revokes the token described by claims.
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil {
		return models.NewUnauthenticatedError("Authentication required")
	}
	if s.revoker == nil || claims.ID == "" {
		return nil
	}
	expiresAt := time.Now().Add(s.ttl)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := s.revoker.Revoke(ctx, claims.ID, expiresAt); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Me returns the signed-in user.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

// ChangePassword replaces the password of userID after checking current.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if s.hasher.Compare(user.Password, current) != nil {
		return models.NewUnauthenticatedError("Current password is incorrect")
	}
	if current == next {
		return models.NewValidationError("New password must differ from the current one")
	}
	if err := validation.ValidatePassword(next); err != nil {
		return models.NewValidationError(err.Error())
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return models.NewInternalError(err)
	}
	return s.users.UpdatePassword(ctx, user.ID, hash)
}
