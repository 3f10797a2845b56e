// Package bootstrap wires the process-wide runtime shared by the server and
// the maintenance commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"schoolreg/internal/cache"
	"schoolreg/internal/config"
	"schoolreg/internal/database"
	"schoolreg/internal/middleware"
	"schoolreg/internal/models"
	"schoolreg/internal/observability"
	"schoolreg/internal/repository"
	"schoolreg/internal/validation"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// InitRuntime connects to the database and Redis and ensures the
// development root account. The Redis client is nil when Redis is
// unreachable.
func InitRuntime(cfg *config.Config) (*gorm.DB, *redis.Client, error) {
	observability.SetLogger(middleware.Logger)

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if err := EnsureDevRootAdmin(context.Background(), cfg, db); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap development root admin: %w", err)
	}
	return db, r, nil
}

// EnsureDevRootAdmin creates or promotes an admin account from DEV_ROOT_*
// settings. It only acts in development with DEV_BOOTSTRAP_ROOT enabled.
func EnsureDevRootAdmin(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapRoot {
		return nil
	}

	email := repository.NormalizeEmail(cfg.DevRootEmail)
	if email == "" {
		email = "root@ecole.local"
	}
	if err := validation.ValidateEmail(email); err != nil {
		return fmt.Errorf("DEV_ROOT_EMAIL: %w", err)
	}
	password := cfg.DevRootPassword
	if password == "" {
		return errors.New("DEV_ROOT_PASSWORD must be set when DEV_BOOTSTRAP_ROOT is enabled")
	}
	fullName := strings.TrimSpace(cfg.DevRootFullName)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash root password: %w", err)
	}

	if err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := repository.NewUserRepository(tx)
		root, err := users.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if root == nil {
			return users.Create(ctx, &models.User{
				Email:    email,
				Password: string(hashedPassword),
				Role:     models.RoleAdmin,
				FullName: fullName,
			})
		}

		if root.Role != models.RoleAdmin {
			if err := users.UpdateRole(ctx, root.ID, models.RoleAdmin); err != nil {
				return err
			}
		}
		if cfg.DevRootForceCredentials {
			return users.UpdatePassword(ctx, root.ID, string(hashedPassword))
		}
		return nil
	}); err != nil {
		return err
	}

	slog.InfoContext(ctx, "development root admin ensured", slog.String("email", email))
	return nil
}
