package app

import (
	"fmt"
	"net/http"
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

func notFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func accessDenied(message string) *DomainError {
	return domainError(http.StatusForbidden, "ACCESS_DENIED", message, nil)
}

func permissionDenied(message string) *DomainError {
	return domainError(http.StatusForbidden, "PERMISSION_DENIED", message, nil)
}

func invalidState(message string) *DomainError {
	return domainError(http.StatusConflict, "INVALID_STATE", message, nil)
}

// storageError is the generic retryable failure; the cause is logged at
// the call site, never sent to callers.
func storageError() *DomainError {
	return domainError(http.StatusInternalServerError, "STORAGE_ERROR", "temporary storage failure, retry later", nil)
}
