// Package catalog manages table schemas, constraints and referential
// integrity for one database store.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/guileen/docsql/catalog/errors"
	"github.com/guileen/docsql/catalog/internal"
	"github.com/guileen/docsql/catalog/persistence"
	"github.com/guileen/docsql/logger"
	"github.com/guileen/docsql/storage"
	"github.com/guileen/docsql/types"
)

// ReservedPrefix marks internal tree names that user tables may not use.
const ReservedPrefix = "__"

// SchemaManager owns the schema registry of a store.
type SchemaManager struct {
	store     *storage.Store
	cache     *internal.SchemaCache
	persister *persistence.Persister
	checks    *CheckEvaluator
}

// NewSchemaManager opens the metadata trees of store and loads every
// persisted schema into memory.
func NewSchemaManager(ctx context.Context, store *storage.Store) (*SchemaManager, error) {
	persister, err := persistence.NewPersister(store)
	if err != nil {
		return nil, err
	}
	m := &SchemaManager{
		store:     store,
		cache:     internal.NewSchemaCache(),
		persister: persister,
		checks:    NewCheckEvaluator(),
	}
	if err := m.LoadSchemas(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadSchemas replaces the in-memory registry with the persisted schemas.
func (m *SchemaManager) LoadSchemas(ctx context.Context) error {
	schemas, err := m.persister.LoadSchemas(ctx)
	if err != nil {
		return err
	}
	for _, s := range schemas {
		m.cache.Set(s)
	}
	logger.DebugContext(ctx, "schemas loaded", logger.Component("catalog"), logger.Int("tables", len(schemas)))
	return nil
}

// CreateTable validates and registers schema. The schema is persisted before
// it becomes visible.
func (m *SchemaManager) CreateTable(ctx context.Context, schema *types.TableSchema) error {
	if schema.Name == "" || strings.HasPrefix(schema.Name, ReservedPrefix) {
		return errors.Newf(errors.ErrInvalidSchema, "invalid table name %q", schema.Name)
	}
	if m.cache.Exists(schema.Name) {
		return errors.Newf(errors.ErrTableAlreadyExists, "table %s already exists", schema.Name)
	}

	def := schema.Clone()
	if err := m.prepareSchema(def); err != nil {
		return err
	}
	def.CreatedAt = time.Now().UTC()
	def.Version = 1

	if err := m.persister.PersistSchema(ctx, def); err != nil {
		return err
	}
	m.cache.Set(def)

	logger.InfoContext(ctx, "table created", logger.Component("catalog"), logger.Table(def.Name),
		logger.Int("columns", len(def.Columns)), logger.Int("foreign_keys", len(def.ForeignKeys)))
	return nil
}

// prepareSchema applies the primary key fallback and checks every schema invariant.
func (m *SchemaManager) prepareSchema(def *types.TableSchema) error {
	if len(def.Columns) == 0 {
		return errors.Newf(errors.ErrInvalidSchema, "table %s has no columns", def.Name)
	}

	seen := make(map[string]bool, len(def.Columns))
	for _, col := range def.Columns {
		if col.Name == "" {
			return errors.Newf(errors.ErrInvalidSchema, "table %s has a column without a name", def.Name)
		}
		if seen[col.Name] {
			return errors.Newf(errors.ErrInvalidSchema, "column %s declared twice in %s", col.Name, def.Name)
		}
		seen[col.Name] = true
		if col.Type.Kind == types.VarChar && col.Type.Length <= 0 {
			return errors.Newf(errors.ErrInvalidColumnType, "column %s: VarChar needs a positive length", col.Name)
		}
	}

	if len(def.PrimaryKey()) == 0 {
		if col, ok := def.Column("id"); ok {
			col.Constraints = append(col.Constraints, types.Constraint{Kind: types.ConstraintPrimaryKey})
		} else {
			return errors.Newf(errors.ErrInvalidSchema, "table %s needs a primary key column", def.Name)
		}
	}

	for _, col := range def.Columns {
		for _, expr := range col.Checks() {
			if err := m.checks.Compile(def, expr); err != nil {
				return errors.Wrap(err, "invalid_constraint", "column %s", col.Name)
			}
		}
	}

	for i := range def.ForeignKeys {
		fk := &def.ForeignKeys[i]
		fk.Table = def.Name
		if fk.OnDelete == "" {
			fk.OnDelete = types.NoAction
		}
		if fk.OnUpdate == "" {
			fk.OnUpdate = types.NoAction
		}
		if err := m.validateForeignKeyDef(def, fk); err != nil {
			return err
		}
	}

	for _, idx := range def.Indexes {
		for _, c := range idx.Columns {
			if _, ok := def.Column(c); !ok {
				return errors.Newf(errors.ErrColumnNotFound, "index %s: column %s not in %s", idx.Name, c, def.Name)
			}
		}
	}
	return nil
}

func (m *SchemaManager) validateForeignKeyDef(def *types.TableSchema, fk *types.ForeignKey) error {
	if len(fk.Columns) == 0 || len(fk.Columns) != len(fk.ReferencedColumns) {
		return errors.Newf(errors.ErrInvalidConstraint, "foreign key on %s: %d columns reference %d columns",
			def.Name, len(fk.Columns), len(fk.ReferencedColumns))
	}
	for _, c := range fk.Columns {
		if _, ok := def.Column(c); !ok {
			return errors.Newf(errors.ErrColumnNotFound, "foreign key column %s not in %s", c, def.Name)
		}
	}

	var ref *types.TableSchema
	if fk.ReferencedTable == def.Name {
		ref = def
	} else if s, ok := m.cache.Get(fk.ReferencedTable); ok {
		ref = s
	} else {
		return errors.Newf(errors.ErrTableNotFound, "foreign key on %s references missing table %s", def.Name, fk.ReferencedTable)
	}
	for _, c := range fk.ReferencedColumns {
		if _, ok := ref.Column(c); !ok {
			return errors.Newf(errors.ErrColumnNotFound, "foreign key on %s references missing column %s.%s", def.Name, ref.Name, c)
		}
	}
	return nil
}

// DropTable removes the schema and its foreign key list. Tables still
// referenced by another table cannot be dropped.
func (m *SchemaManager) DropTable(ctx context.Context, name string) error {
	if !m.cache.Exists(name) {
		return errors.Newf(errors.ErrTableNotFound, "table %s does not exist", name)
	}
	for _, fk := range m.cache.ReferencedBy(name) {
		if fk.Table != name {
			return errors.Newf(errors.ErrTableReferenced, "table %s is referenced by %s(%s)",
				name, fk.Table, strings.Join(fk.Columns, ", "))
		}
	}

	if err := m.persister.DeleteSchema(ctx, name); err != nil {
		return err
	}
	m.cache.Delete(name)
	m.checks.Forget(name)

	logger.InfoContext(ctx, "table dropped", logger.Component("catalog"), logger.Table(name))
	return nil
}

// AlterKind enumerates supported ALTER TABLE operations.
type AlterKind int

const (
	AlterAddColumn AlterKind = iota
	AlterDropColumn
	AlterAddForeignKey
	AlterDropForeignKey
)

// AlterOperation describes one ALTER TABLE change.
type AlterOperation struct {
	Kind       AlterKind
	Column     types.Column     // AlterAddColumn
	Name       string           // AlterDropColumn column, AlterDropForeignKey constraint name
	ForeignKey types.ForeignKey // AlterAddForeignKey
}

// AlterTable applies op and bumps the schema version.
func (m *SchemaManager) AlterTable(ctx context.Context, name string, op AlterOperation) error {
	current, ok := m.cache.Get(name)
	if !ok {
		return errors.Newf(errors.ErrTableNotFound, "table %s does not exist", name)
	}
	def := current.Clone()

	switch op.Kind {
	case AlterAddColumn:
		if _, exists := def.Column(op.Column.Name); exists {
			return errors.Newf(errors.ErrInvalidSchema, "column %s already exists in %s", op.Column.Name, name)
		}
		if op.Column.IsPrimaryKey() {
			return errors.Newf(errors.ErrInvalidSchema, "cannot add a primary key column to %s", name)
		}
		def.Columns = append(def.Columns, op.Column)
	case AlterDropColumn:
		col, exists := def.Column(op.Name)
		if !exists {
			return errors.Newf(errors.ErrColumnNotFound, "column %s not in %s", op.Name, name)
		}
		if col.IsPrimaryKey() {
			return errors.Newf(errors.ErrInvalidSchema, "cannot drop primary key column %s", op.Name)
		}
		if m.columnInForeignKey(def, op.Name) {
			return errors.Newf(errors.ErrInvalidSchema, "column %s.%s is part of a foreign key", name, op.Name)
		}
		cols := def.Columns[:0]
		for _, c := range def.Columns {
			if c.Name != op.Name {
				cols = append(cols, c)
			}
		}
		def.Columns = cols
	case AlterAddForeignKey:
		fk := op.ForeignKey
		fk.Table = name
		if fk.OnDelete == "" {
			fk.OnDelete = types.NoAction
		}
		if fk.OnUpdate == "" {
			fk.OnUpdate = types.NoAction
		}
		if err := m.validateForeignKeyDef(def, &fk); err != nil {
			return err
		}
		def.ForeignKeys = append(def.ForeignKeys, fk)
	case AlterDropForeignKey:
		fks := def.ForeignKeys[:0]
		found := false
		for _, fk := range def.ForeignKeys {
			if fk.Name == op.Name {
				found = true
				continue
			}
			fks = append(fks, fk)
		}
		if !found {
			return errors.Newf(errors.ErrInvalidConstraint, "foreign key %s not found on %s", op.Name, name)
		}
		def.ForeignKeys = fks
	default:
		return errors.Newf(errors.ErrInvalidSchema, "unsupported alter operation %d", op.Kind)
	}

	return m.replace(ctx, def)
}

func (m *SchemaManager) columnInForeignKey(def *types.TableSchema, col string) bool {
	for _, fk := range def.ForeignKeys {
		for _, c := range fk.Columns {
			if c == col {
				return true
			}
		}
	}
	for _, fk := range m.cache.ReferencedBy(def.Name) {
		for _, c := range fk.ReferencedColumns {
			if c == col {
				return true
			}
		}
	}
	return false
}

// CreateIndex records an index on table.
func (m *SchemaManager) CreateIndex(ctx context.Context, table string, idx types.Index) error {
	current, ok := m.cache.Get(table)
	if !ok {
		return errors.Newf(errors.ErrTableNotFound, "table %s does not exist", table)
	}
	def := current.Clone()
	for _, existing := range def.Indexes {
		if existing.Name == idx.Name {
			return errors.Newf(errors.ErrInvalidSchema, "index %s already exists on %s", idx.Name, table)
		}
	}
	for _, c := range idx.Columns {
		if _, ok := def.Column(c); !ok {
			return errors.Newf(errors.ErrColumnNotFound, "index %s: column %s not in %s", idx.Name, c, table)
		}
	}
	def.Indexes = append(def.Indexes, idx)
	return m.replace(ctx, def)
}

func (m *SchemaManager) replace(ctx context.Context, def *types.TableSchema) error {
	def.Version++
	if err := m.persister.PersistSchema(ctx, def); err != nil {
		return err
	}
	m.cache.Set(def)
	m.checks.Forget(def.Name)
	logger.InfoContext(ctx, "table altered", logger.Component("catalog"), logger.Table(def.Name), logger.Int("version", def.Version))
	return nil
}

// GetSchema returns a copy of the schema of name.
func (m *SchemaManager) GetSchema(name string) (*types.TableSchema, error) {
	s, ok := m.cache.Get(name)
	if !ok {
		return nil, errors.Newf(errors.ErrTableNotFound, "table %s does not exist", name)
	}
	return s.Clone(), nil
}

// HasTable reports whether name is registered.
func (m *SchemaManager) HasTable(name string) bool {
	return m.cache.Exists(name)
}

// ListTables returns the registered table names, sorted.
func (m *SchemaManager) ListTables() []string {
	return m.cache.Names()
}

// GetForeignKeys returns the foreign keys declared by table.
func (m *SchemaManager) GetForeignKeys(table string) []types.ForeignKey {
	s, ok := m.cache.Get(table)
	if !ok {
		return nil
	}
	return append([]types.ForeignKey(nil), s.ForeignKeys...)
}

// ReferencingForeignKeys returns the foreign keys of any table that point at table.
func (m *SchemaManager) ReferencingForeignKeys(table string) []types.ForeignKey {
	fks := m.cache.ReferencedBy(table)
	sort.SliceStable(fks, func(i, j int) bool { return fks[i].Table < fks[j].Table })
	return fks
}

func (m *SchemaManager) dataTree(table string) (*storage.Tree, error) {
	t, err := m.store.Tree(table)
	if err != nil {
		return nil, fmt.Errorf("open data of %s: %w", table, err)
	}
	return t, nil
}
