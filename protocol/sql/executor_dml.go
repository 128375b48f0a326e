package sql

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/guileen/docsql/catalog"
	catalogerrors "github.com/guileen/docsql/catalog/errors"
	dberrors "github.com/guileen/docsql/engine/errors"
	"github.com/guileen/docsql/logger"
	"github.com/guileen/docsql/protocol/sql/operators"
	"github.com/guileen/docsql/storage"
	"github.com/guileen/docsql/types"
)

// resolveValue replaces the current timestamp sentinel with the time
// formatted for the column type.
func resolveValue(col *types.Column, v string) string {
	if v != CurrentTimestamp {
		return v
	}
	now := time.Now().UTC()
	if col != nil && col.Type.Kind == types.Date {
		return now.Format("2006-01-02")
	}
	return now.Format(time.RFC3339)
}

func (e *Executor) executeInsert(ctx context.Context, s *Insert, txID string) (*types.Response, error) {
	schema, err := e.schemas.GetSchema(s.Table)
	if err != nil {
		return nil, err
	}
	tree, err := e.tree(s.Table)
	if err != nil {
		return nil, err
	}

	columns := s.Columns
	if len(columns) == 0 {
		columns = schema.ColumnNames()
	}

	for i, values := range s.Rows {
		if len(values) != len(columns) {
			return nil, dberrors.NewValidationErrorf("insert", "row %d has %d values for %d columns", i+1, len(values), len(columns))
		}
		row := buildRow(schema, columns, values)
		key, err := e.assignKey(txID, schema, tree, row)
		if err != nil {
			return nil, err
		}
		if err := e.validate(ctx, s.Table, row, ""); err != nil {
			return nil, err
		}

		if txID != "" {
			if err := e.txns.AddInsert(txID, s.Table, key, row); err != nil {
				return nil, err
			}
			continue
		}
		data, err := types.EncodeRow(row)
		if err != nil {
			return nil, err
		}
		if _, err := tree.Insert(key, data); err != nil {
			return nil, dberrors.Wrapf(err, dberrors.ErrCodeStorage, "insert", "table %s", s.Table)
		}
		e.emit(ctx, types.EventInsert, s.Table, key, nil, row)
	}

	if txID == "" {
		e.invalidate(s.Table)
	}
	logger.DebugContext(ctx, "rows inserted", logger.Component("executor"), logger.Table(s.Table),
		logger.Int("rows", len(s.Rows)), logger.Bool("staged", txID != ""))
	return types.Affected(s.Table, fmt.Sprintf("Inserted %d row(s)", len(s.Rows)), len(s.Rows)), nil
}

// buildRow pairs columns with values and fills DEFAULTs of the columns the
// statement left out. An explicit NULL stays NULL.
func buildRow(schema *types.TableSchema, columns, values []string) types.Row {
	row := make(types.Row, len(columns))
	listed := make(map[string]bool, len(columns))
	for i, name := range columns {
		col, _ := schema.Column(name)
		listed[name] = true
		if values[i] != "" {
			row[name] = resolveValue(col, values[i])
		}
	}
	for i := range schema.Columns {
		col := &schema.Columns[i]
		if listed[col.Name] {
			continue
		}
		if def, ok := col.Default(); ok {
			if v := resolveValue(col, StripDefault(def)); v != "" {
				row[col.Name] = v
			}
		}
	}
	return row
}

// assignKey returns the storage key of a new row. A single non-id primary key
// is the key itself; otherwise an explicit id is used after a duplicate
// check, or the next free id is generated from the row count plus the
// inserts staged by txID. Keys staged by txID count as taken.
func (e *Executor) assignKey(txID string, schema *types.TableSchema, tree *storage.Tree, row types.Row) (string, error) {
	if kc := schema.KeyColumn(); kc != "id" && !row.IsNull(kc) {
		key := row[kc]
		if e.txns.IsStaged(txID, schema.Name, key) {
			return "", catalogerrors.Newf(catalogerrors.ErrUniqueConstraintViolation, "duplicate key %s.%s = %s", schema.Name, kc, key)
		}
		return key, nil
	}

	if id := row["id"]; id != "" {
		taken, err := e.keyTaken(txID, schema.Name, tree, id)
		if err != nil {
			return "", err
		}
		if taken {
			return "", catalogerrors.Newf(catalogerrors.ErrUniqueConstraintViolation, "duplicate key %s.id = %s", schema.Name, id)
		}
		return id, nil
	}

	n, err := tree.Len()
	if err != nil {
		return "", dberrors.Wrapf(err, dberrors.ErrCodeStorage, "insert", "count rows of %s", schema.Name)
	}
	if txID != "" {
		n += e.txns.PendingInserts(txID, schema.Name)
	}
	next := n + 1
	for {
		taken, err := e.keyTaken(txID, schema.Name, tree, strconv.Itoa(next))
		if err != nil {
			return "", err
		}
		if !taken {
			break
		}
		next++
	}
	key := strconv.Itoa(next)
	if _, ok := schema.Column("id"); ok {
		row["id"] = key
	}
	return key, nil
}

// keyTaken reports whether key is stored in tree or staged by txID.
func (e *Executor) keyTaken(txID, table string, tree *storage.Tree, key string) (bool, error) {
	if e.txns.IsStaged(txID, table, key) {
		return true, nil
	}
	_, err := tree.Get(key)
	if storage.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// validate runs the row checks in order: schema, uniqueness, foreign keys,
// CHECK constraints.
func (e *Executor) validate(ctx context.Context, table string, row types.Row, excludeKey string) error {
	if err := e.schemas.ValidateSchema(ctx, table, row); err != nil {
		return err
	}
	if err := e.schemas.ValidateUnique(ctx, table, row, excludeKey); err != nil {
		return err
	}
	if err := e.schemas.ValidateForeignKeys(ctx, table, row); err != nil {
		return err
	}
	return e.schemas.ValidateChecks(ctx, table, row)
}

type storedRow struct {
	key string
	row types.Row
}

// matchRows returns the stored rows of tree matching conds. A condition on
// the key column keyCol is a point lookup.
func matchRows(tree *storage.Tree, keyCol string, conds map[string]string) ([]storedRow, error) {
	if id, ok := conds[keyCol]; ok {
		data, err := tree.Get(id)
		if storage.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		row, err := types.DecodeRow(data)
		if err != nil {
			return nil, err
		}
		if !operators.MatchConditions(row, conds) {
			return nil, nil
		}
		return []storedRow{{key: id, row: row}}, nil
	}

	var out []storedRow
	err := tree.Scan(func(key string, value []byte) error {
		row, err := types.DecodeRow(value)
		if err != nil {
			return err
		}
		if operators.MatchConditions(row, conds) {
			out = append(out, storedRow{key: key, row: row})
		}
		return nil
	})
	return out, err
}

func (e *Executor) executeUpdate(ctx context.Context, s *Update, txID string) (*types.Response, error) {
	schema, err := e.schemas.GetSchema(s.Table)
	if err != nil {
		return nil, err
	}
	tree, err := e.tree(s.Table)
	if err != nil {
		return nil, err
	}
	conds, err := ParseConditions(s.Where)
	if err != nil {
		return nil, err
	}
	matched, err := matchRows(tree, schema.KeyColumn(), conds)
	if err != nil {
		return nil, dberrors.Wrapf(err, dberrors.ErrCodeStorage, "update", "scan %s", s.Table)
	}

	// The key column is the storage key and stays fixed.
	keyCol := schema.KeyColumn()
	if txID != "" {
		if err := e.txns.MarkModified(txID, s.Table); err != nil {
			return nil, err
		}
	}

	for _, m := range matched {
		after := m.row.Clone()
		for name, v := range s.Values {
			if (name == "id" || name == keyCol) && v != m.row[name] {
				return nil, dberrors.NewValidationErrorf("update", "cannot change primary key %s of %s row %s", name, s.Table, m.key)
			}
			col, _ := schema.Column(name)
			if v = resolveValue(col, v); v == "" {
				delete(after, name)
			} else {
				after[name] = v
			}
		}
		if err := e.validate(ctx, s.Table, after, m.key); err != nil {
			return nil, err
		}

		if txID != "" {
			if err := e.txns.AddUpdate(txID, s.Table, m.key, m.row, after); err != nil {
				return nil, err
			}
			continue
		}
		data, err := types.EncodeRow(after)
		if err != nil {
			return nil, err
		}
		if _, err := tree.Insert(m.key, data); err != nil {
			return nil, dberrors.Wrapf(err, dberrors.ErrCodeStorage, "update", "table %s", s.Table)
		}
		e.emit(ctx, types.EventUpdate, s.Table, m.key, m.row, after)
	}

	if txID == "" && len(matched) > 0 {
		e.invalidate(s.Table)
	}
	return types.Affected(s.Table, fmt.Sprintf("Updated %d row(s)", len(matched)), len(matched)), nil
}

type rowChange struct {
	table  string
	key    string
	before types.Row
	after  types.Row // nil for deletes
}

// deletePlan collects every row change a DELETE causes, cascades included.
type deletePlan struct {
	changes []rowChange
	deleted map[string]bool
}

func changeID(table, key string) string { return table + "\x00" + key }

func (e *Executor) executeDelete(ctx context.Context, s *Delete, txID string) (*types.Response, error) {
	schema, err := e.schemas.GetSchema(s.Table)
	if err != nil {
		return nil, err
	}
	tree, err := e.tree(s.Table)
	if err != nil {
		return nil, err
	}
	conds, err := ParseConditions(s.Where)
	if err != nil {
		return nil, err
	}
	matched, err := matchRows(tree, schema.KeyColumn(), conds)
	if err != nil {
		return nil, dberrors.Wrapf(err, dberrors.ErrCodeStorage, "delete", "scan %s", s.Table)
	}

	if txID != "" {
		if err := e.txns.MarkModified(txID, s.Table); err != nil {
			return nil, err
		}
	}

	plan := &deletePlan{deleted: make(map[string]bool)}
	for _, m := range matched {
		if err := e.planDelete(ctx, plan, s.Table, m.key, m.row); err != nil {
			return nil, err
		}
	}
	if err := e.applyChanges(ctx, plan, txID); err != nil {
		return nil, err
	}
	return types.Affected(s.Table, fmt.Sprintf("Deleted %d row(s)", len(matched)), len(matched)), nil
}

// planDelete adds the delete of (table, key) and, recursively, the
// referential actions it triggers. A RESTRICT anywhere in the tree fails the
// whole statement before anything is written.
func (e *Executor) planDelete(ctx context.Context, plan *deletePlan, table, key string, row types.Row) error {
	id := changeID(table, key)
	if plan.deleted[id] {
		return nil
	}
	plan.deleted[id] = true
	plan.changes = append(plan.changes, rowChange{table: table, key: key, before: row})

	actions, err := e.schemas.CascadeDelete(ctx, table, key, row)
	if err != nil {
		return err
	}
	for _, a := range actions {
		tree, err := e.tree(a.Table)
		if err != nil {
			return err
		}
		for _, k := range a.Keys {
			data, err := tree.Get(k)
			if storage.IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			child, err := types.DecodeRow(data)
			if err != nil {
				return err
			}
			switch a.Kind {
			case catalog.CascadeDeleteRows:
				if err := e.planDelete(ctx, plan, a.Table, k, child); err != nil {
					return err
				}
			case catalog.CascadeSetNull, catalog.CascadeSetDefault:
				after := child.Clone()
				for c, v := range a.Values {
					if v == "" {
						delete(after, c)
					} else {
						after[c] = v
					}
				}
				plan.changes = append(plan.changes, rowChange{table: a.Table, key: k, before: child, after: after})
			}
		}
	}
	return nil
}

func (e *Executor) applyChanges(ctx context.Context, plan *deletePlan, txID string) error {
	touched := make(map[string]bool)
	for _, c := range plan.changes {
		if c.after != nil && plan.deleted[changeID(c.table, c.key)] {
			continue
		}
		touched[c.table] = true

		if txID != "" {
			var err error
			if c.after == nil {
				err = e.txns.AddDelete(txID, c.table, c.key, c.before)
			} else {
				err = e.txns.AddUpdate(txID, c.table, c.key, c.before, c.after)
			}
			if err != nil {
				return err
			}
			continue
		}

		tree, err := e.tree(c.table)
		if err != nil {
			return err
		}
		if c.after == nil {
			if _, err := tree.Remove(c.key); err != nil {
				return dberrors.Wrapf(err, dberrors.ErrCodeStorage, "delete", "table %s", c.table)
			}
			e.emit(ctx, types.EventDelete, c.table, c.key, c.before, nil)
			continue
		}
		data, err := types.EncodeRow(c.after)
		if err != nil {
			return err
		}
		if _, err := tree.Insert(c.key, data); err != nil {
			return dberrors.Wrapf(err, dberrors.ErrCodeStorage, "delete", "table %s", c.table)
		}
		e.emit(ctx, types.EventUpdate, c.table, c.key, c.before, c.after)
	}

	if txID == "" {
		for t := range touched {
			e.invalidate(t)
		}
	}
	if len(plan.changes) > 0 {
		logger.DebugContext(ctx, "delete applied", logger.Component("executor"),
			logger.Int("changes", len(plan.changes)), logger.Bool("staged", txID != ""))
	}
	return nil
}
