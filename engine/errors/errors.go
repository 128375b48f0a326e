// Package errors provides coded error types for the engine and the mapping from
// errors to response envelope status codes.
package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/guileen/docsql/logger"
)

// Error codes for different types of errors
const (
	ErrCodeParse       = "parse_error"
	ErrCodeTransaction = "transaction_error"
	ErrCodeStorage     = "storage_error"
	ErrCodeQuery       = "query_error"
	ErrCodeValidation  = "validation_error"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeAuth        = "auth_error"
	ErrCodeInternal    = "internal_error"
)

// EngineError represents a custom error type for the engine
type EngineError struct {
	Code    string
	Message string
	Op      string
	Err     error
}

// Error implements the error interface
func (e *EngineError) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil && e.Err.Error() != e.Message {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap implements the unwrap interface for error chaining
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target error
func (e *EngineError) Is(target error) bool {
	if t, ok := target.(*EngineError); ok {
		return e.Code == t.Code
	}
	return false
}

// ErrorCode returns the machine readable code.
func (e *EngineError) ErrorCode() string {
	return e.Code
}

// Log logs the error with the package logger
func (e *EngineError) Log(ctx context.Context, level slog.Level) {
	fields := []any{
		"error_code", e.Code,
		"operation", e.Op,
		"message", e.Message,
	}
	if e.Err != nil {
		fields = append(fields, "cause", e.Err.Error())
	}

	switch level {
	case slog.LevelDebug:
		logger.DebugContext(ctx, "engine error", fields...)
	case slog.LevelInfo:
		logger.InfoContext(ctx, "engine error", fields...)
	case slog.LevelWarn:
		logger.WarnContext(ctx, "engine error", fields...)
	default:
		logger.ErrorContext(ctx, "engine error", fields...)
	}
}

// New creates a new EngineError
func New(code, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}

// Errorf creates a new EngineError with formatted message
func Errorf(code, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with context
func Wrap(err error, code, op string) *EngineError {
	return &EngineError{Code: code, Message: err.Error(), Op: op, Err: err}
}

// Wrapf wraps an existing error with formatted context
func Wrapf(err error, code, op, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...), Op: op, Err: err}
}

func NewParseErrorf(format string, args ...any) *EngineError {
	return &EngineError{Code: ErrCodeParse, Message: fmt.Sprintf(format, args...), Op: "parse"}
}

func NewTransactionErrorf(op, format string, args ...any) *EngineError {
	return &EngineError{Code: ErrCodeTransaction, Message: fmt.Sprintf(format, args...), Op: op}
}

func NewQueryErrorf(op, format string, args ...any) *EngineError {
	return &EngineError{Code: ErrCodeQuery, Message: fmt.Sprintf(format, args...), Op: op}
}

func NewValidationErrorf(op, format string, args ...any) *EngineError {
	return &EngineError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...), Op: op}
}

func NewNotFoundErrorf(op, format string, args ...any) *EngineError {
	return &EngineError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...), Op: op}
}

func NewConflictErrorf(op, format string, args ...any) *EngineError {
	return &EngineError{Code: ErrCodeConflict, Message: fmt.Sprintf(format, args...), Op: op}
}

func NewAuthErrorf(op, format string, args ...any) *EngineError {
	return &EngineError{Code: ErrCodeAuth, Message: fmt.Sprintf(format, args...), Op: op}
}

// Predefined error variables
var (
	ErrParse           = &EngineError{Code: ErrCodeParse, Message: "parse error"}
	ErrTransaction     = &EngineError{Code: ErrCodeTransaction, Message: "transaction error"}
	ErrNotFound        = &EngineError{Code: ErrCodeNotFound, Message: "not found"}
	ErrConflict        = &EngineError{Code: ErrCodeConflict, Message: "conflict"}
	ErrUnauthenticated = &EngineError{Code: ErrCodeAuth, Message: "authentication required"}
)

func hasCode(err error, code string) bool {
	var e *EngineError
	return errors.As(err, &e) && e.Code == code
}

// IsParseError checks if an error is a parse error
func IsParseError(err error) bool { return hasCode(err, ErrCodeParse) }

// IsTransactionError checks if an error is a transaction error
func IsTransactionError(err error) bool { return hasCode(err, ErrCodeTransaction) }

// IsStorageError checks if an error is a storage error
func IsStorageError(err error) bool { return hasCode(err, ErrCodeStorage) }

// IsQueryError checks if an error is a query error
func IsQueryError(err error) bool { return hasCode(err, ErrCodeQuery) }

// IsNotFound checks if an error indicates something was not found
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsConflict checks if an error indicates a conflict
func IsConflict(err error) bool { return hasCode(err, ErrCodeConflict) }

// coder is implemented by EngineError and catalog errors.
type coder interface {
	ErrorCode() string
}

// Status maps err to the status carried in the response envelope. Every
// error maps to a 4xx code.
func Status(err error) uint16 {
	if err == nil {
		return 200
	}
	var c coder
	if !errors.As(err, &c) {
		return 400
	}
	switch c.ErrorCode() {
	case ErrCodeAuth:
		return 401
	case ErrCodeNotFound, "table_not_found":
		return 404
	case ErrCodeConflict, ErrCodeTransaction,
		"table_already_exists",
		"not_null_violation", "type_mismatch",
		"unique_constraint_violation", "foreign_key_violation",
		"check_constraint_violation", "referential_violation":
		return 409
	default:
		return 400
	}
}

// LogError logs an error at error level
func LogError(ctx context.Context, err error) {
	var e *EngineError
	if errors.As(err, &e) {
		e.Log(ctx, slog.LevelError)
		return
	}
	logger.ErrorContext(ctx, "unexpected error", "error", err.Error())
}

// LogWarning logs an error at warning level
func LogWarning(ctx context.Context, err error) {
	var e *EngineError
	if errors.As(err, &e) {
		e.Log(ctx, slog.LevelWarn)
		return
	}
	logger.WarnContext(ctx, "unexpected error", "error", err.Error())
}
