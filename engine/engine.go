// Package engine wires storage, catalog, transactions and the executor into
// named databases, and runs statement text on behalf of client sessions.
package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/guileen/docsql/auth"
	"github.com/guileen/docsql/catalog"
	"github.com/guileen/docsql/config"
	dberrors "github.com/guileen/docsql/engine/errors"
	"github.com/guileen/docsql/logger"
	"github.com/guileen/docsql/metrics"
	"github.com/guileen/docsql/modules"
	"github.com/guileen/docsql/protocol/sql"
	"github.com/guileen/docsql/storage"
	"github.com/guileen/docsql/transaction"
)

// systemDir holds engine-wide collections such as the user directory.
const systemDir = "_system"

var databaseName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Option customizes an Engine.
type Option func(*options)

type options struct {
	host    modules.Host
	metrics *metrics.Metrics
}

// WithModuleHost sets the host LOAD MODULE, WASM_EXEC and reducer calls go to.
func WithModuleHost(h modules.Host) Option {
	return func(o *options) { o.host = h }
}

// WithMetrics replaces the engine's metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Engine owns the process-wide resources and the databases opened through
// them. It is safe for concurrent use.
type Engine struct {
	cfg      config.Config
	registry *storage.Registry
	broker   *modules.Broker
	modules  *modules.Manager
	users    *auth.Directory
	metrics  *metrics.Metrics

	mu        sync.Mutex
	databases map[string]*Database
}

// Database is one named database: its own store, catalog, transaction
// manager, result cache and executor.
type Database struct {
	name string
	exec *sql.Executor
}

func (d *Database) Name() string { return d.name }

// Executor returns the statement executor of the database.
func (d *Database) Executor() *sql.Executor { return d.exec }

// New bootstraps an engine from cfg and opens the default database.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}

	registry := storage.NewRegistry(storage.Options{
		InMemory:      cfg.InMemory,
		CacheSize:     cfg.Storage.CacheSize,
		FlushInterval: cfg.Storage.FlushInterval,
	})
	system, err := registry.Open(filepath.Join(cfg.DataDir, systemDir))
	if err != nil {
		return nil, err
	}
	users, err := auth.NewDirectory(system)
	if err != nil {
		registry.Close()
		return nil, err
	}
	if cfg.Auth.AdminUser != "" {
		if err := users.EnsureUser(ctx, cfg.Auth.AdminUser, cfg.Auth.AdminPassword); err != nil {
			registry.Close()
			return nil, err
		}
	}

	broker, err := modules.NewBroker(cfg.Notify.Workers)
	if err != nil {
		registry.Close()
		return nil, err
	}
	mgr := modules.NewManager(broker, o.host)
	mgr.Register(modules.NotifyHook{})

	e := &Engine{
		cfg:       cfg,
		registry:  registry,
		broker:    broker,
		modules:   mgr,
		users:     users,
		metrics:   o.metrics,
		databases: make(map[string]*Database),
	}

	e.mu.Lock()
	_, err = e.open(ctx, cfg.DefaultDatabase)
	e.mu.Unlock()
	if err != nil {
		e.Close()
		return nil, err
	}

	logger.InfoContext(ctx, "engine started", logger.Component("engine"),
		logger.String("data_dir", cfg.DataDir), logger.Bool("in_memory", cfg.InMemory),
		logger.String("default_database", cfg.DefaultDatabase))
	return e, nil
}

func (e *Engine) Config() config.Config { return e.cfg }

func (e *Engine) Modules() *modules.Manager { return e.modules }

func (e *Engine) Broker() *modules.Broker { return e.broker }

func (e *Engine) Users() *auth.Directory { return e.users }

func (e *Engine) Metrics() *metrics.Metrics { return e.metrics }

func (e *Engine) path(name string) string {
	return filepath.Join(e.cfg.DataDir, name)
}

// open creates the executor stack for name. e.mu must be held.
func (e *Engine) open(ctx context.Context, name string) (*Database, error) {
	path := e.path(name)
	store, err := e.registry.Open(path)
	if err != nil {
		return nil, dberrors.Wrapf(err, dberrors.ErrCodeStorage, "open database", "database %s", name)
	}
	schemas, err := catalog.NewSchemaManager(ctx, store)
	if err != nil {
		return nil, err
	}
	cache, err := sql.NewResultCache(e.cfg.Cache.Capacity, e.cfg.Cache.TTL)
	if err != nil {
		return nil, err
	}

	db := &Database{
		name: name,
		exec: sql.NewExecutor(sql.Options{
			Database:     name,
			Store:        store,
			Schemas:      schemas,
			Transactions: transaction.NewManager(store),
			Cache:        cache,
			JoinStrategy: e.cfg.Join.Strategy,
			Modules:      e.modules,
			Users:        e.users,
			Metrics:      e.metrics,
		}),
	}
	e.databases[name] = db
	logger.InfoContext(ctx, "database opened", logger.Component("engine"),
		logger.String("database", name), logger.Int("tables", len(schemas.ListTables())))
	return db, nil
}

// onDisk reports whether a database directory exists for name.
func (e *Engine) onDisk(name string) bool {
	if e.cfg.InMemory {
		return false
	}
	info, err := os.Stat(e.path(name))
	return err == nil && info.IsDir()
}

// Database returns the named database, opening it from disk on first use.
func (e *Engine) Database(ctx context.Context, name string) (*Database, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if db, ok := e.databases[name]; ok {
		return db, nil
	}
	if databaseName.MatchString(name) && e.onDisk(name) {
		return e.open(ctx, name)
	}
	return nil, dberrors.NewNotFoundErrorf("database", "database %s does not exist", name)
}

// HasDatabase reports whether name exists, open or on disk.
func (e *Engine) HasDatabase(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.databases[name]
	return ok || (databaseName.MatchString(name) && e.onDisk(name))
}

// CreateDatabase creates and opens a new database.
func (e *Engine) CreateDatabase(ctx context.Context, name string) error {
	if !databaseName.MatchString(name) {
		return dberrors.NewValidationErrorf("create database", "invalid database name %q", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.databases[name]; ok || e.onDisk(name) {
		return dberrors.NewConflictErrorf("create database", "database %s already exists", name)
	}
	if _, err := e.open(ctx, name); err != nil {
		return err
	}
	logger.InfoContext(ctx, "database created", logger.Component("engine"), logger.String("database", name))
	return nil
}

// DropDatabase closes the database and deletes its files. The default
// database cannot be dropped.
func (e *Engine) DropDatabase(ctx context.Context, name string) error {
	if name == e.cfg.DefaultDatabase {
		return dberrors.NewValidationErrorf("drop database", "cannot drop the default database %s", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	db, open := e.databases[name]
	if !open && !(databaseName.MatchString(name) && e.onDisk(name)) {
		return dberrors.NewNotFoundErrorf("drop database", "database %s does not exist", name)
	}
	if open && db.exec.Transactions().ActiveCount() > 0 {
		return dberrors.NewConflictErrorf("drop database", "database %s has active transactions", name)
	}

	if err := e.registry.Remove(e.path(name)); err != nil {
		return dberrors.Wrapf(err, dberrors.ErrCodeStorage, "drop database", "database %s", name)
	}
	delete(e.databases, name)
	logger.InfoContext(ctx, "database dropped", logger.Component("engine"), logger.String("database", name))
	return nil
}

// Databases lists open and on-disk databases, sorted.
func (e *Engine) Databases() []string {
	e.mu.Lock()
	seen := make(map[string]bool, len(e.databases))
	for name := range e.databases {
		seen[name] = true
	}
	e.mu.Unlock()

	if !e.cfg.InMemory {
		entries, err := os.ReadDir(e.cfg.DataDir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("list data directory", logger.Component("engine"), logger.ErrorField(err))
		}
		for _, entry := range entries {
			if entry.IsDir() && databaseName.MatchString(entry.Name()) {
				seen[entry.Name()] = true
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close stops the notification pool and closes every store.
func (e *Engine) Close() error {
	e.broker.Close()
	e.mu.Lock()
	e.databases = make(map[string]*Database)
	e.mu.Unlock()
	return e.registry.Close()
}
