package server

import (
	"errors"
	"strings"
	"unicode"

	"schoolreg/internal/middleware"
	"schoolreg/internal/models"
	"schoolreg/internal/observability"
	"schoolreg/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

const localRole = "role"

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

const (
	maxPaginationLimit = 100
)

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return Pagination{
		Limit:  limit,
		Offset: offset,
	}
}

// parseID extracts a route parameter by name as a UUID string.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// The error message is derived from the parameter name (e.g. "id" -> "Invalid ID",
// "applicationId" -> "Invalid application ID").
func parseID(c *fiber.Ctx, param string) (string, error) {
	raw := strings.TrimSpace(c.Params(param))
	id, err := uuid.Parse(raw)
	if err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+humanizeParam(param)))
		return "", errResponseWritten
	}
	return id.String(), nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "applicationId" -> "application ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		prefix := param[:len(param)-2]
		words := splitCamel(prefix)
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

// splitCamel splits a camelCase string into words.
func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	words = append(words, s[start:])
	return words
}

// statusForError maps a service error to its HTTP status.
func statusForError(err error) int {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		return fiber.StatusInternalServerError
	}
	switch appErr.Code {
	case models.CodeValidation,
		models.CodeInvalidDateOfBirth,
		models.CodeMissingField,
		models.CodeInvalidAgeForSecondary,
		models.CodeInvalidEnumValue,
		models.CodeInvalidCodeFormat:
		return fiber.StatusBadRequest
	case models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeAlreadyApproved,
		models.CodeAlreadyRejected,
		models.CodeNotApproved,
		models.CodeAmbiguousCode,
		models.CodeNoLinkedStudent,
		models.CodeNoUserAccount:
		return fiber.StatusConflict
	case models.CodeUnauthenticated:
		return fiber.StatusUnauthorized
	case models.CodeForbidden:
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err with the status statusForError picks. Internal
// errors never leak their cause.
func respondError(c *fiber.Ctx, err error) error {
	status := statusForError(err)
	if status == fiber.StatusInternalServerError {
		var appErr *models.AppError
		if !errors.As(err, &appErr) || appErr.Code != models.CodeInternal {
			err = models.NewInternalError(err)
		}
		observability.RecordErrorInContext(c.UserContext(), err)
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			"error", err, "path", c.Path(), "method", c.Method())
	}
	return models.RespondWithError(c, status, err)
}

// callerFrom builds the service principal from the request locals. The role
// resolved by ReviewerRequired wins over the token claim.
func callerFrom(c *fiber.Ctx) *service.Caller {
	claims := middleware.ClaimsFrom(c)
	if claims == nil || claims.UserID == "" {
		return nil
	}
	role := claims.Role
	if r, ok := c.Locals(localRole).(models.Role); ok && r != "" {
		role = r
	}
	return &service.Caller{UserID: claims.UserID, Role: role}
}

// ReviewerRequired returns middleware that rejects users who cannot review
// applications with 403. The role is read from the database so demotions
// take effect before the token expires. Must be placed after AuthRequired.
func (s *Server) ReviewerRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals(middleware.LocalUserID).(string)
		if userID == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthenticatedError("Authentication required"))
		}

		user, err := s.userRepo.GetByID(c.UserContext(), userID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthenticatedError("Account no longer exists"))
			}
			return respondError(c, err)
		}
		if !user.Role.CanReview() {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Reviewer access required"))
		}

		c.Locals(localRole, user.Role)
		return c.Next()
	}
}
