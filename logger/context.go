package logger

import (
	"context"
)

// ContextKey is used for context values
type ContextKey string

const (
	// DatabaseKey is the context key for the current database name
	DatabaseKey ContextKey = "database"
	// TxIDKey is the context key for the active transaction id
	TxIDKey ContextKey = "tx_id"
	// SessionIDKey is the context key for the session id
	SessionIDKey ContextKey = "session_id"
	// UserKey is the context key for the authenticated user
	UserKey ContextKey = "user"
)

var contextKeys = []ContextKey{DatabaseKey, TxIDKey, SessionIDKey, UserKey}

// WithContextValue adds a value to the context for logging
func WithContextValue(ctx context.Context, key ContextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// appendContextArgs extracts logging-relevant values from ctx and appends them to args
func appendContextArgs(ctx context.Context, args ...any) []any {
	if ctx == nil {
		return args
	}
	for _, key := range contextKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			args = append(args, string(key), v)
		}
	}
	return args
}
