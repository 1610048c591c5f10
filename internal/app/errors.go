package app

import (
	"errors"
	"fmt"
	"net/http"

	"ideaboard/api/internal/auth"
	"ideaboard/api/internal/authpw"
	"ideaboard/api/internal/bugs"
	"ideaboard/api/internal/export"
	"ideaboard/api/internal/ideas"
	"ideaboard/api/internal/session"
	"ideaboard/api/internal/social"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var errUnauthorized = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	switch {
	case errors.Is(err, bugs.ErrInvalidStatus):
		return http.StatusBadRequest, "INVALID_STATUS", err.Error(), nil
	case errors.Is(err, ideas.ErrValidation),
		errors.Is(err, social.ErrInvalidTarget),
		errors.Is(err, social.ErrValidation),
		errors.Is(err, bugs.ErrValidation),
		errors.Is(err, authpw.ErrInvalidInput),
		errors.Is(err, authpw.ErrEmailTaken),
		errors.Is(err, authpw.ErrInvalidResetToken):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), nil
	case errors.Is(err, bugs.ErrBugNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Bug not found", nil
	case errors.Is(err, ideas.ErrIdeaNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Idea not found", nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusNotImplemented, "EXPORT_UNAVAILABLE", err.Error(), nil
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, session.ErrSessionNotFound):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
