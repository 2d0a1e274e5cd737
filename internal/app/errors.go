package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
)

// DomainError is the failure shape operations return for user-facing
// errors. Code is a stable machine-readable string: unauthorized,
// forbidden, not_found, validation_failed, conflict, or internal.
// Status suggests a transport status for whatever surface eventually
// carries the error.
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

// fetchErr maps a row lookup failure onto the domain error shape:
// missing rows become not_found, everything else stays a wrapped
// internal error.
func fetchErr(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domainError(http.StatusNotFound, "not_found", what+" not found", nil)
	}
	return fmt.Errorf("get %s: %w", what, err)
}
