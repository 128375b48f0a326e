// Package errors provides standardized error types for catalog operations.
package errors

import (
	"errors"
	"fmt"
)

// Error constants for catalog operations
var (
	// ErrTableNotFound is returned when a requested table cannot be found
	ErrTableNotFound = &CatalogError{code: "table_not_found", msg: "table not found"}

	// ErrTableAlreadyExists is returned when trying to create a table that already exists
	ErrTableAlreadyExists = &CatalogError{code: "table_already_exists", msg: "table already exists"}

	// ErrInvalidColumnType is returned when a column has an invalid type
	ErrInvalidColumnType = &CatalogError{code: "invalid_column_type", msg: "invalid column type"}

	// ErrColumnNotFound is returned when a requested column cannot be found
	ErrColumnNotFound = &CatalogError{code: "column_not_found", msg: "column not found"}

	// ErrInvalidSchema is returned when a table definition breaks a schema invariant
	ErrInvalidSchema = &CatalogError{code: "invalid_schema", msg: "invalid schema"}

	// ErrInvalidConstraint is returned when a constraint is invalid
	ErrInvalidConstraint = &CatalogError{code: "invalid_constraint", msg: "invalid constraint"}

	// ErrNotNullViolation is returned when a NOT NULL column is empty
	ErrNotNullViolation = &CatalogError{code: "not_null_violation", msg: "not null constraint violation"}

	// ErrTypeMismatch is returned when a value does not parse as its column type
	ErrTypeMismatch = &CatalogError{code: "type_mismatch", msg: "type mismatch"}

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated
	ErrForeignKeyViolation = &CatalogError{code: "foreign_key_violation", msg: "foreign key constraint violation"}

	// ErrUniqueConstraintViolation is returned when a unique constraint is violated
	ErrUniqueConstraintViolation = &CatalogError{code: "unique_constraint_violation", msg: "unique constraint violation"}

	// ErrCheckConstraintViolation is returned when a check constraint is violated
	ErrCheckConstraintViolation = &CatalogError{code: "check_constraint_violation", msg: "check constraint violation"}

	// ErrReferentialViolation is returned when a delete is restricted by referencing rows
	ErrReferentialViolation = &CatalogError{code: "referential_violation", msg: "referential integrity violation"}

	// ErrTableReferenced is returned when dropping a table other tables still reference
	ErrTableReferenced = &CatalogError{code: "referential_violation", msg: "table is referenced by a foreign key"}
)

// CatalogError represents a catalog-specific error
type CatalogError struct {
	code string
	msg  string
	err  error // wrapped error
}

// Error implements the error interface
func (e *CatalogError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

// Code returns the error code
func (e *CatalogError) Code() string {
	return e.code
}

// ErrorCode returns the error code; used by the envelope status mapping.
func (e *CatalogError) ErrorCode() string {
	return e.code
}

// Unwrap returns the wrapped error
func (e *CatalogError) Unwrap() error {
	return e.err
}

// Is checks if the error matches the target
func (e *CatalogError) Is(target error) bool {
	if t, ok := target.(*CatalogError); ok {
		return e.code == t.code
	}
	return false
}

// New creates a new CatalogError with a formatted message
func New(code, format string, args ...any) *CatalogError {
	return &CatalogError{
		code: code,
		msg:  fmt.Sprintf(format, args...),
	}
}

// Newf derives an error with the same code as base and a formatted message.
func Newf(base *CatalogError, format string, args ...any) *CatalogError {
	return &CatalogError{
		code: base.code,
		msg:  fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with a catalog error
func Wrap(err error, code, format string, args ...any) *CatalogError {
	return &CatalogError{
		code: code,
		msg:  fmt.Sprintf(format, args...),
		err:  err,
	}
}

// IsTableNotFoundError checks if an error indicates a table not found
func IsTableNotFoundError(err error) bool {
	return errors.Is(err, ErrTableNotFound)
}

// IsTableAlreadyExistsError checks if an error indicates a table already exists
func IsTableAlreadyExistsError(err error) bool {
	return errors.Is(err, ErrTableAlreadyExists)
}

// IsConstraintError reports whether err is any row-level constraint failure.
func IsConstraintError(err error) bool {
	for _, target := range []error{
		ErrNotNullViolation, ErrTypeMismatch, ErrForeignKeyViolation,
		ErrUniqueConstraintViolation, ErrCheckConstraintViolation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsReferentialError reports whether err is a referential integrity failure.
func IsReferentialError(err error) bool {
	return errors.Is(err, ErrReferentialViolation)
}
