package transaction

import (
	"sort"
	"time"

	"github.com/guileen/docsql/storage"
	"github.com/guileen/docsql/types"
)

// TxnContext is the staged state of one open transaction: a pending write
// batch per table, the set of modified tables and an ordered operation log.
type TxnContext struct {
	ID        string
	StartTime time.Time

	batches  map[string]*storage.Batch
	modified map[string]struct{}
	ops      []types.Operation
	inserts  map[string]int
	// keys written by staged inserts, per table
	staged map[string]map[string]struct{}
}

func newTxnContext(id string) *TxnContext {
	return &TxnContext{
		ID:        id,
		StartTime: time.Now(),
		batches:   make(map[string]*storage.Batch),
		modified:  make(map[string]struct{}),
		inserts:   make(map[string]int),
		staged:    make(map[string]map[string]struct{}),
	}
}

func (t *TxnContext) batch(tree *storage.Tree) *storage.Batch {
	b, ok := t.batches[tree.Name()]
	if !ok {
		b = tree.NewBatch()
		t.batches[tree.Name()] = b
	}
	t.modified[tree.Name()] = struct{}{}
	return b
}

func (t *TxnContext) addStaged(table, key string) {
	keys, ok := t.staged[table]
	if !ok {
		keys = make(map[string]struct{})
		t.staged[table] = keys
	}
	keys[key] = struct{}{}
}

// ModifiedTables returns the tables touched by the transaction, sorted.
func (t *TxnContext) ModifiedTables() []string {
	tables := make([]string, 0, len(t.modified))
	for name := range t.modified {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables
}

// Operations returns a copy of the operation log.
func (t *TxnContext) Operations() []types.Operation {
	return append([]types.Operation(nil), t.ops...)
}

func (t *TxnContext) discard() {
	for _, b := range t.batches {
		b.Close()
	}
}
