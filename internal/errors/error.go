package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
)

// ErrorCode enum for machine-readable errors
type ErrorCode string

const (
	ErrSchema        ErrorCode = "SCHEMA"        // A field value cannot be coerced to its inferred type
	ErrConfiguration ErrorCode = "CONFIGURATION" // Engine or document type missing for a sync
	ErrProvisioning  ErrorCode = "PROVISIONING"  // Remote engine/document type creation failed
	ErrTransport     ErrorCode = "TRANSPORT"     // Network, timeout, unexpected status
	ErrInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrConflict      ErrorCode = "CONFLICT"
	ErrUnauthorized  ErrorCode = "UNAUTHORIZED"
	ErrForbidden     ErrorCode = "FORBIDDEN"
	ErrInternal      ErrorCode = "INTERNAL"
)

// AppError carries the "User View" and the "System View"
type AppError struct {
	Code     ErrorCode // Machine code
	Message  string    // Safe message naming the index/class/record affected
	Internal error     // Original error (HTTP status, DB error, ...)
	Stack    string    // Stack trace for audit
}

func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Internal }

// New factory to capture stack trace automatically
func New(code ErrorCode, msg string, internal error) *AppError {
	return &AppError{
		Code:     code,
		Message:  msg,
		Internal: internal,
		Stack:    string(debug.Stack()),
	}
}

// Newf is New with a formatted message.
func Newf(code ErrorCode, internal error, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...), internal)
}

// CodeOf returns the code of the outermost AppError in the chain, or "" when there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether any AppError in the chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Internal
	}
	return false
}

// IsPermanent reports whether retrying the unit of work cannot succeed without
// an operator changing data or configuration.
func IsPermanent(err error) bool {
	switch CodeOf(err) {
	case ErrSchema, ErrConfiguration, ErrInvalidInput, ErrNotFound:
		return true
	}
	return false
}

func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetReqID(r.Context())

	// 1. Unwrap the AppError
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		// If it's a generic Go error (e.g. from a library), wrap it as Internal
		appErr = New(ErrInternal, "Unexpected system error", err)
	}

	// 2. Map Error Code -> HTTP Status
	status := http.StatusInternalServerError
	switch appErr.Code {
	case ErrInvalidInput, ErrSchema:
		status = http.StatusBadRequest
	case ErrNotFound:
		status = http.StatusNotFound
	case ErrUnauthorized:
		status = http.StatusUnauthorized
	case ErrForbidden:
		status = http.StatusForbidden
	case ErrConfiguration, ErrConflict:
		status = http.StatusConflict
	case ErrProvisioning, ErrTransport:
		status = http.StatusBadGateway
	}

	logFields := []any{
		"req_id", reqID,
		"method", r.Method,
		"path", r.URL.Path,
		"code", appErr.Code,
		"user_msg", appErr.Message,
	}

	if status >= http.StatusInternalServerError {
		logFields = append(logFields, "internal_err", appErr.Internal, "stack", appErr.Stack)
		slog.ErrorContext(r.Context(), "Request failed", logFields...)
	} else {
		if appErr.Internal != nil {
			logFields = append(logFields, "internal_details", appErr.Internal)
		}
		slog.WarnContext(r.Context(), "Request rejected", logFields...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error_code": string(appErr.Code),
		"message":    appErr.Message,
		"request_id": reqID,
	})
}
