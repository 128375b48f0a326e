// Package shared provides shared types and interfaces for the storage module
package shared

import (
	"errors"
	"io"
)

// WriteOptions defines options for write operations
type WriteOptions struct {
	Sync bool
}

var (
	DefaultWriteOptions = &WriteOptions{Sync: false}
	SyncWriteOptions    = &WriteOptions{Sync: true}
)

// KV defines the interface for key-value storage operations
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte, opts *WriteOptions) error
	Delete(key []byte, opts *WriteOptions) error
	DeleteRange(start, end []byte, opts *WriteOptions) error
	NewBatch() Batch
	CommitBatch(batch Batch, opts *WriteOptions) error
	NewIterator(opts *IteratorOptions) (Iterator, error)
	Flush() error
	Close() error
}

// Batch collects writes applied atomically by KV.CommitBatch. A batch is
// single use: once committed or closed, writes to it fail with ErrBatchDone.
type Batch interface {
	Set(key, value []byte) error
	Delete(key []byte) error
	Count() int
	Close() error
}

// IteratorOptions defines options for iterator operations
type IteratorOptions struct {
	LowerBound []byte
	UpperBound []byte
}

// Iterator defines the interface for iterating over key-value pairs
type Iterator interface {
	io.Closer
	First() bool
	Next() bool
	Valid() bool
	Key() []byte
	Value() []byte
	Error() error
}

// Error types
var (
	ErrNotFound  = &kvError{msg: "key not found"}
	ErrClosed    = &kvError{msg: "kv store closed"}
	ErrBatchDone = &kvError{msg: "batch already committed or closed"}
)

type kvError struct {
	msg string
}

func (e *kvError) Error() string {
	return e.msg
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// PrefixEnd returns the smallest key greater than every key with the prefix.
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
