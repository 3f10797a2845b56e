// Package middleware provides authentication and authorization middleware for the application.
package middleware

import (
	"context"
	"strings"

	"schoolreg/internal/auth"
	"schoolreg/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Fiber locals written by AuthRequired.
const (
	LocalUserID = "userID"
	LocalClaims = "claims"
)

// RevocationChecker reports whether a token id was revoked by logout.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// AuthRequired returns a middleware that enforces a valid bearer token.
// revoked may be nil, in which case logout revocation is not checked.
func AuthRequired(issuer *auth.Issuer, revoked RevocationChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, err := bearerToken(c.Get("Authorization"))
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}

		claims, err := issuer.Parse(tokenString)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthenticatedError("Invalid or expired token"))
		}

		if revoked != nil && claims.ID != "" {
			isRevoked, checkErr := revoked.IsRevoked(c.UserContext(), claims.ID)
			if checkErr != nil {
				// Fail open when the revocation store is unavailable.
				Logger.WarnContext(c.UserContext(), "token revocation check failed", "error", checkErr)
			} else if isRevoked {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthenticatedError("Token has been revoked"))
			}
		}

		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalClaims, claims)
		c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, claims.UserID))

		return c.Next()
	}
}

// OptionalAuth populates the same locals as AuthRequired when a valid,
// unrevoked bearer token is present and otherwise lets the request through
// anonymously.
func OptionalAuth(issuer *auth.Issuer, revoked RevocationChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, err := bearerToken(c.Get("Authorization"))
		if err != nil {
			return c.Next()
		}
		claims, err := issuer.Parse(tokenString)
		if err != nil {
			return c.Next()
		}
		if revoked != nil && claims.ID != "" {
			if isRevoked, checkErr := revoked.IsRevoked(c.UserContext(), claims.ID); checkErr == nil && isRevoked {
				return c.Next()
			}
		}

		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalClaims, claims)
		c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, claims.UserID))
		return c.Next()
	}
}

// ClaimsFrom returns the claims stored by AuthRequired, or nil.
func ClaimsFrom(c *fiber.Ctx) *auth.Claims {
	claims, _ := c.Locals(LocalClaims).(*auth.Claims)
	return claims
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", models.NewUnauthenticatedError("Authorization header required")
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", models.NewUnauthenticatedError("Invalid authorization header format")
	}
	return parts[1], nil
}
