package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngineError_Error(t *testing.T) {
	err := NewQueryErrorf("select", "table %s missing", "users")
	assert.Equal(t, "select: table users missing", err.Error())

	inner := errors.New("disk full")
	wrapped := Wrapf(inner, ErrCodeStorage, "commit", "apply batch to table %q", "orders")
	assert.Equal(t, `commit: apply batch to table "orders": disk full`, wrapped.Error())
	assert.ErrorIs(t, wrapped, inner)
}

func TestIsByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewTransactionErrorf("commit", "transaction %s not found", "tx1"))
	assert.True(t, IsTransactionError(err))
	assert.ErrorIs(t, err, ErrTransaction)
	assert.False(t, IsParseError(err))
}

type codedErr string

func (c codedErr) Error() string     { return string(c) }
func (c codedErr) ErrorCode() string { return string(c) }

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want uint16
	}{
		{"nil", nil, 200},
		{"parse", NewParseErrorf("bad"), 400},
		{"plain", errors.New("boom"), 400},
		{"auth", ErrUnauthenticated, 401},
		{"not found", NewNotFoundErrorf("get", "x"), 404},
		{"catalog not found", codedErr("table_not_found"), 404},
		{"constraint", codedErr("unique_constraint_violation"), 409},
		{"referential", fmt.Errorf("delete: %w", codedErr("referential_violation")), 409},
		{"transaction", NewTransactionErrorf("begin", "dup"), 409},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}
