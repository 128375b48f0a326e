package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/guileen/docsql/storage/shared"
)

// ErrStopScan can be returned from a scan callback to end the scan early
// without an error.
var ErrStopScan = errors.New("stop scan")

// Tree is a named, key-ordered collection inside a Store.
type Tree struct {
	store  *Store
	name   string
	prefix []byte

	// serializes read-modify-write in Insert and Remove
	mu sync.Mutex
}

func newTree(s *Store, name string) *Tree {
	prefix := append(append([]byte(nil), treeDataPrefix...), name...)
	prefix = append(prefix, 0)
	return &Tree{store: s, name: name, prefix: prefix}
}

// Name returns the tree name.
func (t *Tree) Name() string { return t.name }

func (t *Tree) key(k string) []byte {
	return append(append([]byte(nil), t.prefix...), k...)
}

// Get returns the value stored under key or ErrNotFound.
func (t *Tree) Get(key string) ([]byte, error) {
	return t.store.kv.Get(t.key(key))
}

// Insert stores value under key and returns the previous value, if any.
func (t *Tree) Insert(key string, value []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	old, err := t.Get(key)
	if err != nil && !shared.IsNotFound(err) {
		return nil, err
	}
	if err := t.store.kv.Set(t.key(key), value, shared.DefaultWriteOptions); err != nil {
		return nil, fmt.Errorf("insert into %s: %w", t.name, err)
	}
	return old, nil
}

// Remove deletes key and returns the removed value, or nil when absent.
func (t *Tree) Remove(key string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	old, err := t.Get(key)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if err := t.store.kv.Delete(t.key(key), shared.DefaultWriteOptions); err != nil {
		return nil, fmt.Errorf("remove from %s: %w", t.name, err)
	}
	return old, nil
}

// Scan calls fn for every entry in key order.
func (t *Tree) Scan(fn func(key string, value []byte) error) error {
	return t.ScanPrefix("", fn)
}

// ScanPrefix calls fn for every entry whose key starts with prefix.
func (t *Tree) ScanPrefix(prefix string, fn func(key string, value []byte) error) error {
	lower := t.key(prefix)
	iter, err := t.store.kv.NewIterator(&shared.IteratorOptions{
		LowerBound: lower,
		UpperBound: shared.PrefixEnd(lower),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		k := string(iter.Key()[len(t.prefix):])
		v := append([]byte(nil), iter.Value()...)
		if err := fn(k, v); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return iter.Error()
}

// Len counts the entries in the tree.
func (t *Tree) Len() (int, error) {
	n := 0
	err := t.Scan(func(string, []byte) error {
		n++
		return nil
	})
	return n, err
}

// Clear removes every entry from the tree.
func (t *Tree) Clear() error {
	return t.store.kv.DeleteRange(t.prefix, shared.PrefixEnd(t.prefix), shared.DefaultWriteOptions)
}

// NewBatch starts a batch of writes against this tree.
func (t *Tree) NewBatch() *Batch {
	return &Batch{tree: t, b: t.store.kv.NewBatch()}
}

// ApplyBatch commits b atomically. The batch is closed afterwards.
func (t *Tree) ApplyBatch(b *Batch) error {
	if b.tree != t {
		return fmt.Errorf("batch for tree %s applied to %s", b.tree.name, t.name)
	}
	defer b.Close()
	if err := t.store.kv.CommitBatch(b.b, shared.DefaultWriteOptions); err != nil {
		return fmt.Errorf("apply batch to %s: %w", t.name, err)
	}
	return nil
}
