package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Error codes surfaced to callers.
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeStaleReference     = "STALE_REFERENCE"
	CodeTransitionRejected = "TRANSITION_REJECTED"
	CodeConflict           = "CONFLICT"
	CodeInternal           = "INTERNAL_ERROR"
)

// Postgres SQLSTATEs mapped to domain errors.
const (
	pgForeignKeyViolation  = "23503"
	pgInvalidTextRepresent = "22P02"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewStaleReference reports a reference to a row that no longer exists.
func NewStaleReference(message string, details map[string]any, err error) error {
	return &DomainError{
		Code:       CodeStaleReference,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
		Err:        err,
	}
}

func NewTransitionRejected(from, to string, err error) error {
	return &DomainError{
		Code:       CodeTransitionRejected,
		Message:    "status transition rejected",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"from": from, "to": to},
		Err:        err,
	}
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

// IsNotFound reports whether err is a NOT_FOUND domain error.
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// MapStoreError translates pgx errors into domain errors, leaving domain errors untouched.
// resource names the entity the failing statement targeted.
func MapStoreError(err error, resource string, details map[string]any) error {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound(resource, details)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return NewInternalError(err)
	}
	switch pgErr.Code {
	case pgForeignKeyViolation:
		if details == nil {
			details = map[string]any{}
		}
		details["constraint"] = pgErr.ConstraintName
		return NewStaleReference(fmt.Sprintf("%s references a missing row", resource), details, err)
	case pgInvalidTextRepresent:
		// Malformed identifier or value rejected by a column type.
		validation := NewDomainError(CodeValidation, fmt.Sprintf("invalid %s input", resource), http.StatusBadRequest, details)
		validation.Err = err
		return validation
	default:
		return NewInternalError(err)
	}
}

// ToDomainError converts any error into the DomainError rendered to clients.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(MapStoreError(err, "resource", nil), &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
