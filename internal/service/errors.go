package service

import "net/http"

// AuthError carries the HTTP status a failure should surface as. Handlers
// serialize the message only; the code is for logs and tests.
type AuthError struct {
	Code    string
	Message string
	Status  int
}

func (e *AuthError) Error() string {
	return e.Message
}

func newValidationError(message string) *AuthError {
	return &AuthError{Code: "invalid_request", Message: message, Status: http.StatusBadRequest}
}

func newNotFoundError(message string) *AuthError {
	return &AuthError{Code: "not_found", Message: message, Status: http.StatusNotFound}
}

func newConflictError(message string) *AuthError {
	return &AuthError{Code: "conflict", Message: message, Status: http.StatusConflict}
}

func newUnauthorizedError(message string) *AuthError {
	return &AuthError{Code: "unauthorized", Message: message, Status: http.StatusUnauthorized}
}

func newForbiddenError(message string) *AuthError {
	return &AuthError{Code: "forbidden", Message: message, Status: http.StatusForbidden}
}

func newConfigurationError(message string) *AuthError {
	return &AuthError{Code: "not_configured", Message: message, Status: http.StatusInternalServerError}
}
