package sql

import (
	"context"
	"time"

	"github.com/guileen/docsql/auth"
	"github.com/guileen/docsql/catalog"
	dberrors "github.com/guileen/docsql/engine/errors"
	"github.com/guileen/docsql/logger"
	"github.com/guileen/docsql/metrics"
	"github.com/guileen/docsql/modules"
	"github.com/guileen/docsql/protocol/sql/operators"
	"github.com/guileen/docsql/storage"
	"github.com/guileen/docsql/transaction"
	"github.com/guileen/docsql/types"
)

// Options wires an Executor to one database. Cache, Modules, Users and
// Metrics are optional.
type Options struct {
	Database     string
	Store        *storage.Store
	Schemas      *catalog.SchemaManager
	Transactions *transaction.Manager
	Cache        *ResultCache
	JoinStrategy string
	Modules      *modules.Manager
	Users        *auth.Directory
	Metrics      *metrics.Metrics
}

// Executor runs parsed statements against one database.
type Executor struct {
	database string
	store    *storage.Store
	schemas  *catalog.SchemaManager
	txns     *transaction.Manager
	cache    *ResultCache
	joins    *operators.JoinEngine
	modules  *modules.Manager
	users    *auth.Directory
	metrics  *metrics.Metrics
}

// NewExecutor creates an executor and registers its commit observers on the
// transaction manager.
func NewExecutor(opts Options) *Executor {
	e := &Executor{
		database: opts.Database,
		store:    opts.Store,
		schemas:  opts.Schemas,
		txns:     opts.Transactions,
		cache:    opts.Cache,
		joins:    operators.NewJoinEngine(opts.Store, opts.Schemas, opts.JoinStrategy),
		modules:  opts.Modules,
		users:    opts.Users,
		metrics:  opts.Metrics,
	}
	e.txns.OnCommit(e.onCommit)
	if e.modules != nil {
		e.txns.OnCommit(e.modules.CommitObserver(e.database))
	}
	return e
}

// Database returns the name of the database the executor serves.
func (e *Executor) Database() string { return e.database }

// Schemas returns the schema manager.
func (e *Executor) Schemas() *catalog.SchemaManager { return e.schemas }

// Transactions returns the transaction manager.
func (e *Executor) Transactions() *transaction.Manager { return e.txns }

// Execute runs stmt. A non-empty txID stages writes in that transaction.
func (e *Executor) Execute(ctx context.Context, stmt Statement, txID string) (*types.Response, error) {
	start := time.Now()
	resp, err := e.dispatch(ctx, stmt, txID)

	status := uint16(200)
	if err != nil {
		status = dberrors.Status(err)
		logger.DebugContext(ctx, "statement failed", logger.Component("executor"),
			logger.String("kind", string(stmt.Kind())), logger.ErrorField(err))
	}
	e.metrics.ObserveStatement(string(stmt.Kind()), status, time.Since(start))
	return resp, err
}

func (e *Executor) dispatch(ctx context.Context, stmt Statement, txID string) (*types.Response, error) {
	switch s := stmt.(type) {
	case *Select:
		return e.executeSelect(ctx, s)
	case *Insert:
		return e.executeInsert(ctx, s, txID)
	case *Update:
		return e.executeUpdate(ctx, s, txID)
	case *Delete:
		return e.executeDelete(ctx, s, txID)
	case *CreateTable:
		return e.executeCreateTable(ctx, s)
	case *DropTable:
		return e.executeDropTable(ctx, s)
	case *AlterTable:
		return e.executeAlterTable(ctx, s)
	case *CreateIndex:
		return e.executeCreateIndex(ctx, s)
	case *Begin:
		return e.executeBegin(ctx, txID)
	case *Commit:
		return e.executeCommit(ctx, txID)
	case *Rollback:
		return e.executeRollback(ctx, txID)
	case *ShowTables:
		return e.executeShowTables()
	case *ShowUsers:
		return e.executeShowUsers()
	case *ShowStatus:
		return e.executeShowStatus()
	case *DescribeTable:
		return e.executeDescribe(s)
	case *Subscribe:
		return e.executeSubscribe(ctx, s)
	case *Unsubscribe:
		return e.executeUnsubscribe(ctx, s)
	case *Auth:
		return e.executeAuth(ctx, s)
	case *LoadModule:
		return e.executeLoadModule(ctx, s)
	case *WasmExec:
		return e.executeWasm(ctx, s)
	case *CreateDatabase, *UseDatabase, *DropDatabase, *ShowDatabases:
		return nil, dberrors.NewQueryErrorf("execute", "%s is handled by the session", stmt.Kind())
	}
	return nil, dberrors.Errorf(dberrors.ErrCodeInternal, "unsupported statement %T", stmt)
}

// onCommit drops cached reads and statistics of the tables a transaction wrote.
func (e *Executor) onCommit(ctx context.Context, txID string, tables []string, _ []types.Operation) {
	for _, t := range tables {
		e.invalidate(t)
	}
	logger.DebugContext(ctx, "caches invalidated after commit", logger.Component("executor"),
		logger.TxID(txID), logger.Int("tables", len(tables)))
}

func (e *Executor) invalidate(table string) {
	if e.cache != nil {
		e.cache.InvalidateTable(e.database, table)
	}
	e.joins.InvalidateStats(table)
}

func (e *Executor) emit(ctx context.Context, kind types.EventKind, table, key string, before, after types.Row) {
	if e.modules == nil {
		return
	}
	e.modules.Emit(ctx, types.NewEvent(kind, e.database, table, key, before, after))
}

func (e *Executor) tree(table string) (*storage.Tree, error) {
	tree, err := e.store.Tree(table)
	if err != nil {
		return nil, dberrors.NewNotFoundErrorf("execute", "table %s does not exist", table)
	}
	return tree, nil
}

// listing is a result set that belongs to no table.
func listing(rows []types.Row) *types.Response {
	if rows == nil {
		rows = []types.Row{}
	}
	return &types.Response{Status: 200, Message: "OK", Results: rows, AffectedRows: len(rows)}
}
