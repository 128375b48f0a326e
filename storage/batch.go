package storage

import (
	"github.com/guileen/docsql/storage/shared"
)

// Batch collects writes for one tree until ApplyBatch.
type Batch struct {
	tree   *Tree
	b      shared.Batch
	closed bool
}

// Tree returns the tree the batch targets.
func (b *Batch) Tree() *Tree { return b.tree }

// Set stages key=value.
func (b *Batch) Set(key string, value []byte) error {
	return b.b.Set(b.tree.key(key), value)
}

// Delete stages removal of key.
func (b *Batch) Delete(key string) error {
	return b.b.Delete(b.tree.key(key))
}

// Len returns the number of staged writes.
func (b *Batch) Len() int {
	return b.b.Count()
}

// Close discards the batch. It is safe to call more than once.
func (b *Batch) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.b.Close()
}
