package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"schoolreg/internal/middleware"
	"schoolreg/internal/models"
	"schoolreg/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupMockDB creates a GORM *gorm.DB backed by sqlmock for unit tests.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

// --- humanizeParam (pure function, no HTTP) ---

func TestHumanizeParam(t *testing.T) {
	tests := []struct {
		param    string
		expected string
	}{
		{"id", "ID"},
		{"applicationId", "application ID"},
		{"studentId", "student ID"},
		{"parentUserId", "parent user ID"},
		{"something", "something"},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			assert.Equal(t, tt.expected, humanizeParam(tt.param))
		})
	}
}

// --- parsePagination ---

func TestParsePagination(t *testing.T) {
	app := fiber.New()
	app.Get("/items", func(c *fiber.Ctx) error {
		p := parsePagination(c, 25)
		return c.JSON(fiber.Map{"limit": p.Limit, "offset": p.Offset})
	})

	tests := []struct {
		query         string
		limit, offset float64
	}{
		{"", 25, 0},
		{"?limit=10&offset=30", 10, 30},
		{"?limit=500", 100, 0},
		{"?limit=-1&offset=-5", 25, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/items"+tt.query, nil)
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			var body map[string]float64
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.limit, body["limit"])
			assert.Equal(t, tt.offset, body["offset"])
		})
	}
}

// --- parseID ---

func TestParseID(t *testing.T) {
	app := fiber.New()
	app.Get("/items/:id", func(c *fiber.Ctx) error {
		id, err := parseID(c, "id")
		if err != nil {
			return nil
		}
		return c.JSON(fiber.Map{"id": id})
	})

	t.Run("valid uuid is normalized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/items/8F14E45F-CEEA-4E7A-9B1C-2D3E4F5A6B7C", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "8f14e45f-ceea-4e7a-9b1c-2d3e4f5a6b7c", body["id"])
	})

	t.Run("garbage", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/items/42", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "Invalid ID", body["error"])
		assert.Equal(t, models.CodeValidation, body["code"])
	})
}

func TestParseID_ContextSpecificErrorMessage(t *testing.T) {
	app := fiber.New()
	app.Get("/items/:applicationId", func(c *fiber.Ctx) error {
		_, _ = parseID(c, "applicationId")
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, "/items/abc", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Invalid application ID", body["error"])
}

// --- statusForError ---

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{models.NewValidationError("bad"), http.StatusBadRequest},
		{models.NewInvalidDateOfBirthError("x"), http.StatusBadRequest},
		{models.NewMissingFieldError("firstName"), http.StatusBadRequest},
		{models.NewInvalidAgeForSecondaryError(9), http.StatusBadRequest},
		{models.NewInvalidEnumValueError("program", "X"), http.StatusBadRequest},
		{models.NewInvalidCodeFormatError(), http.StatusBadRequest},
		{models.NewNotFoundError("Application", "a"), http.StatusNotFound},
		{models.NewAlreadyApprovedError("a"), http.StatusConflict},
		{models.NewAlreadyRejectedError("a"), http.StatusConflict},
		{models.NewNotApprovedError(models.ApplicationStatusPending), http.StatusConflict},
		{models.NewAmbiguousCodeError(2), http.StatusConflict},
		{models.NewNoLinkedStudentError(), http.StatusConflict},
		{models.NewNoUserAccountError(), http.StatusConflict},
		{models.NewUnauthenticatedError("no"), http.StatusUnauthorized},
		{models.NewForbiddenError("no"), http.StatusForbidden},
		{models.NewInternalError(errors.New("boom")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, statusForError(tt.err))
		})
	}
}

func TestRespondError_HidesInternalCause(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return respondError(c, errors.New("pq: connection reset"))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, models.CodeInternal, body.Code)
	assert.NotContains(t, body.Error, "pq")
	assert.Empty(t, body.Details)
}

// --- ReviewerRequired against the users table ---

func TestReviewerRequired_ReadsRoleFromDatabase(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	s := &Server{db: gormDB, userRepo: repository.NewUserRepository(gormDB)}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE id = $1`)).
		WithArgs("u-admin", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "role"}).
			AddRow("u-admin", "admin@ecole.local", "admin"))

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(middleware.LocalUserID, "u-admin")
		return c.Next()
	})
	app.Get("/admin", s.ReviewerRequired(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewerRequired_RejectsParent(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	s := &Server{db: gormDB, userRepo: repository.NewUserRepository(gormDB)}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE id = $1`)).
		WithArgs("u-parent", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "role"}).
			AddRow("u-parent", "parent@example.com", "parent"))

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(middleware.LocalUserID, "u-parent")
		return c.Next()
	})
	app.Get("/admin", s.ReviewerRequired(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Reviewer access required", body["error"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewerRequired_DatabaseError(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	s := &Server{db: gormDB, userRepo: repository.NewUserRepository(gormDB)}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE id = $1`)).
		WithArgs("u-1", 1).
		WillReturnError(errors.New("connection refused"))

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(middleware.LocalUserID, "u-1")
		return c.Next()
	})
	app.Get("/admin", s.ReviewerRequired(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}
