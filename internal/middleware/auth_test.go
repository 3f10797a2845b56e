package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"schoolreg/internal/auth"
	"schoolreg/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

type revocationStub struct {
	revoked map[string]bool
	err     error
}

func (r revocationStub) IsRevoked(_ context.Context, jti string) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	return r.revoked[jti], nil
}

func TestAuthRequired(t *testing.T) {
	issuer := auth.NewIssuer(testSecret, "schoolreg", "schoolreg-api")

	generateToken := func(userID string, exp time.Duration) string {
		s, _, err := issuer.Issue(auth.Claims{UserID: userID, Role: models.RoleAdmin}, exp)
		require.NoError(t, err)
		return s
	}

	app := fiber.New()
	app.Get("/test", AuthRequired(issuer, nil), func(c *fiber.Ctx) error {
		claims := ClaimsFrom(c)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"userID": c.Locals(LocalUserID),
			"role":   claims.Role,
		})
	})

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
		expectedUserID string
	}{
		{
			name:           "Happy Path",
			authHeader:     "Bearer " + generateToken("user-123", time.Hour),
			expectedStatus: http.StatusOK,
			expectedUserID: "user-123",
		},
		{
			name:           "Missing Header",
			authHeader:     "",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Invalid Format",
			authHeader:     "Basic dXNlcjpwYXNz",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Malformed Token",
			authHeader:     "Bearer malformed.token.here",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Expired Token",
			authHeader:     "Bearer " + generateToken("user-123", -time.Hour),
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, tt.expectedUserID, body["userID"])
				assert.Equal(t, "admin", body["role"])
			} else {
				assert.Equal(t, models.CodeUnauthenticated, body["code"])
			}
		})
	}
}

func TestAuthRequired_Revocation(t *testing.T) {
	issuer := auth.NewIssuer(testSecret, "schoolreg", "schoolreg-api")
	token, _, err := issuer.Issue(auth.Claims{UserID: "u1", Role: models.RoleParent}, time.Hour)
	require.NoError(t, err)
	claims, err := issuer.Parse(token)
	require.NoError(t, err)

	run := func(checker RevocationChecker) int {
		app := fiber.New()
		app.Get("/me", AuthRequired(issuer, checker), func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, run(revocationStub{revoked: map[string]bool{claims.ID: true}}))
	assert.Equal(t, http.StatusOK, run(revocationStub{revoked: map[string]bool{}}))
	// Store failures fail open.
	assert.Equal(t, http.StatusOK, run(revocationStub{err: errors.New("redis down")}))
}

func TestOptionalAuth(t *testing.T) {
	issuer := auth.NewIssuer(testSecret, "schoolreg", "schoolreg-api")
	token, _, err := issuer.Issue(auth.Claims{UserID: "u1", Role: models.RoleDirection}, time.Hour)
	require.NoError(t, err)
	claims, err := issuer.Parse(token)
	require.NoError(t, err)

	run := func(header string, checker RevocationChecker) string {
		app := fiber.New()
		app.Get("/docs", OptionalAuth(issuer, checker), func(c *fiber.Ctx) error {
			uid, _ := c.Locals(LocalUserID).(string)
			return c.SendString(uid)
		})
		req := httptest.NewRequest(http.MethodGet, "/docs", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var buf [64]byte
		n, _ := resp.Body.Read(buf[:])
		return string(buf[:n])
	}

	assert.Equal(t, "u1", run("Bearer "+token, nil))
	assert.Empty(t, run("", nil))
	assert.Empty(t, run("Bearer not-a-token", nil))
	assert.Empty(t, run("Bearer "+token, revocationStub{revoked: map[string]bool{claims.ID: true}}))
}
