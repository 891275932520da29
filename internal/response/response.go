// Package response provides standardized HTTP response helpers.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Error codes carried in the error envelope.
const (
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeValidationError       = "VALIDATION_ERROR"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeUnknownProvider       = "UNKNOWN_PROVIDER"
	ErrCodeProviderNotConfigured = "PROVIDER_NOT_CONFIGURED"
	ErrCodeProviderError         = "PROVIDER_ERROR"
	ErrCodeInvalidState          = "INVALID_STATE"
	ErrCodeRateLimited           = "RATE_LIMITED"
	ErrCodeInternalError         = "INTERNAL_ERROR"
)

// APIError represents a structured API error response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorResponse wraps an APIError in the standard response format.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// JSON writes a JSON response.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// NoContent writes a 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorWithDetails(w, status, code, message, nil)
}

// WriteErrorWithDetails writes a JSON error response with additional details.
func WriteErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	JSON(w, status, ErrorResponse{Error: APIError{Code: code, Message: message, Details: details}})
}

// WriteUnauthorized writes a 401.
func WriteUnauthorized(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication required")
}

// WriteValidationError writes a 400 validation error.
func WriteValidationError(w http.ResponseWriter, message string, details map[string]any) {
	WriteErrorWithDetails(w, http.StatusBadRequest, ErrCodeValidationError, message, details)
}

// WriteNotFound writes a 404.
func WriteNotFound(w http.ResponseWriter, what string) {
	WriteError(w, http.StatusNotFound, ErrCodeNotFound, what+" not found")
}

// WriteProviderError writes a 502 for a failed upstream calendar call.
func WriteProviderError(w http.ResponseWriter, message string, details map[string]any) {
	WriteErrorWithDetails(w, http.StatusBadGateway, ErrCodeProviderError, message, details)
}

// WriteRateLimited writes a 429 with Retry-After.
func WriteRateLimited(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	WriteErrorWithDetails(w, http.StatusTooManyRequests, ErrCodeRateLimited,
		"Too many requests, please slow down",
		map[string]any{"retry_after_seconds": retryAfter})
}

// WriteInternalError writes a 500 internal error.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, message)
}
