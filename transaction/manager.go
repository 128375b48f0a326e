// Package transaction stages multi-statement writes per table and applies
// them on commit.
package transaction

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	dberrors "github.com/guileen/docsql/engine/errors"
	"github.com/guileen/docsql/logger"
	"github.com/guileen/docsql/storage"
	"github.com/guileen/docsql/types"
)

// CommitObserver is notified after a transaction has been applied.
type CommitObserver func(ctx context.Context, txID string, tables []string, ops []types.Operation)

// Manager owns the registry of open transactions for one store.
type Manager struct {
	store *storage.Store

	mu        sync.Mutex
	active    map[string]*TxnContext
	observers []CommitObserver
}

// NewManager creates a transaction manager for store.
func NewManager(store *storage.Store) *Manager {
	return &Manager{
		store:  store,
		active: make(map[string]*TxnContext),
	}
}

// OnCommit registers an observer run after every successful commit.
func (m *Manager) OnCommit(obs CommitObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, obs)
}

// Begin opens a transaction. An empty txID gets a generated UUID.
func (m *Manager) Begin(ctx context.Context, txID string) (string, error) {
	if txID == "" {
		txID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[txID]; ok {
		return "", dberrors.NewTransactionErrorf("begin", "transaction %s already active", txID)
	}
	m.active[txID] = newTxnContext(txID)

	logger.DebugContext(ctx, "transaction started", logger.Component("transaction"), logger.TxID(txID))
	return txID, nil
}

// IsActive reports whether txID is open.
func (m *Manager) IsActive(txID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[txID]
	return ok
}

// ActiveCount returns the number of open transactions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// PendingInserts returns how many inserts into table txID has staged.
func (m *Manager) PendingInserts(txID, table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if txn, ok := m.active[txID]; ok {
		return txn.inserts[table]
	}
	return 0
}

// IsStaged reports whether txID has staged an insert under key in table.
func (m *Manager) IsStaged(txID, table, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if txn, ok := m.active[txID]; ok {
		_, staged := txn.staged[table][key]
		return staged
	}
	return false
}

// PendingOn returns the open transactions that modified table, sorted.
func (m *Manager) PendingOn(table string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, txn := range m.active {
		if _, ok := txn.modified[table]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// MarkModified adds table to the commit set of txID without staging a write,
// so commit observers see it.
func (m *Manager) MarkModified(txID, table string) error {
	if !m.store.HasTree(table) {
		return dberrors.NewNotFoundErrorf("mark modified", "table %s does not exist", table)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.active[txID]
	if !ok {
		return dberrors.NewNotFoundErrorf("mark modified", "transaction %s not found", txID)
	}
	txn.modified[table] = struct{}{}
	return nil
}

func (m *Manager) stage(txID, table string, fn func(txn *TxnContext, b *storage.Batch) error) error {
	tree, err := m.store.Tree(table)
	if err != nil {
		return dberrors.Wrapf(err, dberrors.ErrCodeNotFound, "stage", "table %s", table)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.active[txID]
	if !ok {
		return dberrors.NewNotFoundErrorf("stage", "transaction %s not found", txID)
	}
	return fn(txn, txn.batch(tree))
}

// AddInsert stages row under key in table.
func (m *Manager) AddInsert(txID, table, key string, row types.Row) error {
	data, err := types.EncodeRow(row)
	if err != nil {
		return err
	}
	return m.stage(txID, table, func(txn *TxnContext, b *storage.Batch) error {
		if err := b.Set(key, data); err != nil {
			return err
		}
		txn.inserts[table]++
		txn.addStaged(table, key)
		txn.ops = append(txn.ops, types.Operation{Kind: types.EventInsert, Table: table, Key: key, After: row})
		return nil
	})
}

// AddUpdate stages the replacement of before with after under key.
func (m *Manager) AddUpdate(txID, table, key string, before, after types.Row) error {
	data, err := types.EncodeRow(after)
	if err != nil {
		return err
	}
	return m.stage(txID, table, func(txn *TxnContext, b *storage.Batch) error {
		if err := b.Set(key, data); err != nil {
			return err
		}
		txn.ops = append(txn.ops, types.Operation{Kind: types.EventUpdate, Table: table, Key: key, Before: before, After: after})
		return nil
	})
}

// AddDelete stages removal of key from table.
func (m *Manager) AddDelete(txID, table, key string, before types.Row) error {
	return m.stage(txID, table, func(txn *TxnContext, b *storage.Batch) error {
		if err := b.Delete(key); err != nil {
			return err
		}
		delete(txn.staged[table], key)
		txn.ops = append(txn.ops, types.Operation{Kind: types.EventDelete, Table: table, Key: key, Before: before})
		return nil
	})
}

// Commit applies each modified table's batch atomically, in table name
// order, then flushes the store. A failing table aborts the commit with an
// error naming it; tables applied before it stay applied.
func (m *Manager) Commit(ctx context.Context, txID string) error {
	m.mu.Lock()
	txn, ok := m.active[txID]
	if ok {
		delete(m.active, txID)
	}
	observers := append([]CommitObserver(nil), m.observers...)
	m.mu.Unlock()

	if !ok {
		return dberrors.NewNotFoundErrorf("commit", "transaction %s not found", txID)
	}

	start := time.Now()
	tables := txn.ModifiedTables()
	for _, table := range tables {
		b, ok := txn.batches[table]
		if !ok {
			continue
		}
		var err error
		// A dropped (or dropped and recreated) table no longer owns the batch.
		if cur, terr := m.store.Tree(table); terr != nil || cur != b.Tree() {
			err = dberrors.NewNotFoundErrorf("commit", "table %s was dropped", table)
		} else {
			err = b.Tree().ApplyBatch(b)
		}
		if err != nil {
			txn.discard()
			logger.ErrorContext(ctx, "commit failed", logger.Component("transaction"), logger.TxID(txID),
				logger.Table(table), logger.ErrorField(err))
			return dberrors.Wrapf(err, dberrors.ErrCodeTransaction, "commit", "apply batch to table %q", table)
		}
	}

	if len(tables) > 0 {
		if err := m.store.Flush(); err != nil {
			return dberrors.Wrapf(err, dberrors.ErrCodeStorage, "commit", "flush after transaction %s", txID)
		}
	}

	logger.InfoContext(ctx, "transaction committed", logger.Component("transaction"), logger.TxID(txID),
		logger.Int("tables", len(tables)), logger.Int("operations", len(txn.ops)),
		logger.Duration("elapsed", time.Since(start)))

	ops := txn.Operations()
	for _, obs := range observers {
		obs(ctx, txID, tables, ops)
	}
	return nil
}

// Rollback discards every staged write of txID.
func (m *Manager) Rollback(ctx context.Context, txID string) error {
	m.mu.Lock()
	txn, ok := m.active[txID]
	if ok {
		delete(m.active, txID)
	}
	m.mu.Unlock()

	if !ok {
		return dberrors.NewNotFoundErrorf("rollback", "transaction %s not found", txID)
	}
	txn.discard()

	logger.InfoContext(ctx, "transaction rolled back", logger.Component("transaction"), logger.TxID(txID),
		logger.Int("operations", len(txn.ops)))
	return nil
}
