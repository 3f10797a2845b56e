// Package server contains the HTTP handlers for the admissions API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"schoolreg/internal/auth"
	"schoolreg/internal/bootstrap"
	"schoolreg/internal/cache"
	"schoolreg/internal/config"
	"schoolreg/internal/database"
	"schoolreg/internal/featureflags"
	"schoolreg/internal/middleware"
	"schoolreg/internal/mirror"
	"schoolreg/internal/models"
	"schoolreg/internal/notifications"
	"schoolreg/internal/repository"
	"schoolreg/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	systemSubject  = "schoolreg-system"
	systemTokenTTL = 5 * time.Minute
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	issuer         *auth.Issuer
	revocations    *cache.TokenRevocations
	featureFlags   *featureflags.Manager
	notifier       *notifications.BestEffort
	userRepo       repository.UserRepository
	applications   *service.ApplicationService
	authService    *service.AuthService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, redisClient, err := bootstrap.InitRuntime(cfg)
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, db, redisClient)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if db == nil {
		return nil, fmt.Errorf("server: database is required")
	}

	collab := cfg.Collaborators()
	flags := featureflags.NewManager(cfg.FeatureFlags)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenIssuer, cfg.TokenAudience)
	revocations := cache.NewTokenRevocations(redisClient)
	userRepo := repository.NewUserRepository(db)

	notifier := notifications.NewBestEffort(buildDispatchers(cfg, collab, flags, redisClient), collab.Timeout)

	var studentMirror service.StudentMirror
	if collab.StudentRecordsURL != "" {
		studentMirror = mirror.NewClient(collab.StudentRecordsURL, serviceToken(issuer, collab.ServiceToken), collab.Timeout)
	}

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("schoolreg-api"),
		issuer:         issuer,
		revocations:    revocations,
		featureFlags:   flags,
		notifier:       notifier,
		userRepo:       userRepo,
	}

	server.applications = service.NewApplicationService(service.ApplicationServiceDeps{
		DB:       db,
		Mirror:   studentMirror,
		Notifier: notifier,
		Issuer:   issuer,
		Flags:    flags,
		Config: service.ProvisioningConfig{
			StudentEmailDomain:     collab.StudentEmailDomain,
			DefaultParentPassword:  cfg.DefaultParentPassword,
			DefaultStudentPassword: cfg.DefaultStudentPassword,
			CodeTokenTTL:           cfg.CodeTokenTTL(),
		},
	})
	server.authService = service.NewAuthService(userRepo, nil, issuer, revocations, cfg.SessionTokenTTL())

	return server, nil
}

// buildDispatchers fans approval events out to every configured channel.
func buildDispatchers(cfg *config.Config, collab config.Collaborators, flags *featureflags.Manager, rdb *redis.Client) notifications.Dispatcher {
	var multi notifications.Multi
	if collab.NotificationsURL != "" {
		multi = append(multi, notifications.NewHTTPDispatcher(collab.NotificationsURL, collab.ServiceToken, collab.Timeout))
	}
	if rdb != nil {
		multi = append(multi, notifications.NewRedisDispatcher(rdb))
	}
	if cfg.SMTPHost != "" && flags.Enabled(featureflags.ParentEmail, "") {
		sender := notifications.NewSMTPSender(notifications.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
		multi = append(multi, notifications.NewMailDispatcher(cfg.SMTPFrom, sender))
	}
	if len(multi) == 0 {
		return notifications.Nop
	}
	return multi
}

// serviceToken returns the credential used for student-records calls. A
// configured SERVICE_TOKEN wins; otherwise a short-lived system token is
// minted per call.
func serviceToken(issuer *auth.Issuer, static string) mirror.TokenSource {
	if static != "" {
		return mirror.StaticToken(static)
	}
	return func() (string, error) {
		token, _, err := issuer.Issue(auth.Claims{
			UserID:   systemSubject,
			Role:     models.RoleSystem,
			FullName: "School Registration",
		}, systemTokenTTL)
		return token, err
	}
}

// Applications exposes the admissions service to command-line tooling.
func (s *Server) Applications() *service.ApplicationService {
	return s.applications
}

// App builds the Fiber application once and returns it.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:      "School Registration API",
		BodyLimit:    1024 * 1024,
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	if fe, ok := err.(*fiber.Error); ok {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	slog.ErrorContext(c.UserContext(), "unhandled request error", "error", err, "path", c.Path())
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	app.Use(middleware.TracingMiddleware())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so error responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: origins != "*",
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "School Registration Metrics",
	}))

	authRequired := middleware.AuthRequired(s.issuer, s.revocations)
	optionalAuth := middleware.OptionalAuth(s.issuer, s.revocations)

	// Auth routes
	authGroup := api.Group("/auth")
	authGroup.Post("/login", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "login"), s.Login)
	authGroup.Post("/code", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "code_access"), s.AccessByCode)
	authGroup.Post("/logout", authRequired, s.Logout)
	authGroup.Get("/me", authRequired, s.Me)

	users := api.Group("/users", authRequired)
	users.Put("/me/password", middleware.RateLimit(
		s.redis, 5, 10*time.Minute, "change_password"), s.ChangePassword)

	// Application routes
	applications := api.Group("/applications")
	applications.Post("/", middleware.RateLimit(
		s.redis, 5, 10*time.Minute, "submit_application"), s.SubmitApplication)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	applications.Post("/:id/documents", optionalAuth, s.AddApplicationDocument)
	applications.Post("/:id/approve", authRequired, s.ReviewerRequired(), s.ApproveApplication)
	applications.Post("/:id/reject", authRequired, s.ReviewerRequired(), s.RejectApplication)
	applications.Post("/:id/mirror", authRequired, s.ReviewerRequired(), s.RemirrorApplication)
	applications.Get("/", authRequired, s.ReviewerRequired(), s.ListApplications)
	applications.Get("/:id", authRequired, s.ReviewerRequired(), s.GetApplication)
	applications.Delete("/:id", authRequired, s.ReviewerRequired(), s.DeleteApplication)

	// Admin routes
	admin := api.Group("/admin", authRequired, s.ReviewerRequired())
	admin.Get("/feature-flags", s.GetFeatureFlags)
	admin.Post("/reconcile-mirrors", s.ReconcileMirrors)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	// Redis only backs revocation and rate limiting, so its loss degrades
	// readiness without failing it.
	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	} else if redisStatus != "healthy" {
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	app := s.App()
	slog.Info("server starting", "port", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			slog.Error("error shutting down HTTP server", "error", err)
		}
	}

	// Let in-flight notifications finish, bounded by ctx.
	if s.notifier != nil {
		done := make(chan struct{})
		go func() {
			s.notifier.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			slog.Warn("notifications still in flight at shutdown")
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			slog.Error("error closing sql DB", "error", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			slog.Error("error closing redis", "error", rerr)
		}
	}

	slog.Info("server shutdown complete")
	return nil
}
