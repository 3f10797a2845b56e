package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes surfaced to API clients.
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeInvalidDateOfBirth     = "INVALID_DATE_OF_BIRTH"
	CodeMissingField           = "MISSING_FIELD"
	CodeInvalidAgeForSecondary = "INVALID_AGE_FOR_SECONDARY"
	CodeInvalidEnumValue       = "INVALID_ENUM_VALUE"
	CodeInvalidCodeFormat      = "INVALID_CODE_FORMAT"
	CodeNotFound               = "NOT_FOUND"
	CodeAlreadyApproved        = "ALREADY_APPROVED"
	CodeAlreadyRejected        = "ALREADY_REJECTED"
	CodeNotApproved            = "NOT_APPROVED"
	CodeAmbiguousCode          = "AMBIGUOUS_CODE"
	CodeNoLinkedStudent        = "NO_LINKED_STUDENT"
	CodeNoUserAccount          = "NO_USER_ACCOUNT"
	CodeUnauthenticated        = "UNAUTHENTICATED"
	CodeForbidden              = "FORBIDDEN"
	CodeInternal               = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks. AppError.Is compares codes only.
var (
	ErrInvalidDateOfBirth     = &AppError{Code: CodeInvalidDateOfBirth}
	ErrMissingField           = &AppError{Code: CodeMissingField}
	ErrInvalidAgeForSecondary = &AppError{Code: CodeInvalidAgeForSecondary}
	ErrInvalidEnumValue       = &AppError{Code: CodeInvalidEnumValue}
	ErrInvalidCodeFormat      = &AppError{Code: CodeInvalidCodeFormat}
	ErrNotFound               = &AppError{Code: CodeNotFound}
	ErrAlreadyApproved        = &AppError{Code: CodeAlreadyApproved}
	ErrAlreadyRejected        = &AppError{Code: CodeAlreadyRejected}
	ErrNotApproved            = &AppError{Code: CodeNotApproved}
	ErrAmbiguousCode          = &AppError{Code: CodeAmbiguousCode}
	ErrNoLinkedStudent        = &AppError{Code: CodeNoLinkedStudent}
	ErrNoUserAccount          = &AppError{Code: CodeNoUserAccount}
	ErrUnauthenticated        = &AppError{Code: CodeUnauthenticated}
	ErrForbidden              = &AppError{Code: CodeForbidden}
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Field   string
	Err     error
}

func (e *AppError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewInvalidDateOfBirthError(raw string) *AppError {
	return &AppError{
		Code:    CodeInvalidDateOfBirth,
		Message: fmt.Sprintf("invalid date of birth %q", raw),
		Field:   "dateOfBirth",
	}
}

func NewMissingFieldError(field string) *AppError {
	return &AppError{
		Code:    CodeMissingField,
		Message: fmt.Sprintf("missing required field: %s", field),
		Field:   field,
	}
}

func NewInvalidAgeForSecondaryError(age int) *AppError {
	return &AppError{
		Code:    CodeInvalidAgeForSecondary,
		Message: fmt.Sprintf("age %d at session start is outside the secondary range", age),
		Field:   "dateOfBirth",
	}
}

func NewInvalidEnumValueError(field, value string) *AppError {
	return &AppError{
		Code:    CodeInvalidEnumValue,
		Message: fmt.Sprintf("invalid value %q for %s", value, field),
		Field:   field,
	}
}

func NewInvalidCodeFormatError() *AppError {
	return &AppError{
		Code:    CodeInvalidCodeFormat,
		Message: "access code must be exactly 8 characters",
		Field:   "code",
	}
}

func NewAlreadyApprovedError(id string) *AppError {
	return &AppError{
		Code:    CodeAlreadyApproved,
		Message: fmt.Sprintf("application %s is already approved", id),
	}
}

func NewAlreadyRejectedError(id string) *AppError {
	return &AppError{
		Code:    CodeAlreadyRejected,
		Message: fmt.Sprintf("application %s is already rejected", id),
	}
}

func NewNotApprovedError(status ApplicationStatus) *AppError {
	return &AppError{
		Code:    CodeNotApproved,
		Message: fmt.Sprintf("application is not approved (status: %s)", status),
	}
}

func NewAmbiguousCodeError(matches int) *AppError {
	return &AppError{
		Code:    CodeAmbiguousCode,
		Message: fmt.Sprintf("access code matches %d applications", matches),
	}
}

func NewNoLinkedStudentError() *AppError {
	return &AppError{
		Code:    CodeNoLinkedStudent,
		Message: "application has no linked student",
	}
}

func NewNoUserAccountError() *AppError {
	return &AppError{
		Code:    CodeNoUserAccount,
		Message: "no user account exists for this student",
	}
}

func NewUnauthenticatedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthenticated,
		Message: message,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
			Field: appErr.Field,
		}
		if appErr.Err != nil && appErr.Code != CodeInternal {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}
