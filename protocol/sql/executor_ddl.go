package sql

import (
	"context"
	"fmt"

	"github.com/guileen/docsql/catalog"
	dberrors "github.com/guileen/docsql/engine/errors"
	"github.com/guileen/docsql/logger"
	"github.com/guileen/docsql/types"
)

func (e *Executor) executeCreateTable(ctx context.Context, s *CreateTable) (*types.Response, error) {
	name := s.Schema.Name
	if s.IfNotExists && e.schemas.HasTable(name) {
		return types.Affected(name, fmt.Sprintf("Table %s already exists", name), 0), nil
	}
	if err := e.schemas.CreateTable(ctx, s.Schema); err != nil {
		return nil, err
	}
	if _, err := e.store.OpenTree(name); err != nil {
		return nil, dberrors.Wrapf(err, dberrors.ErrCodeStorage, "create table", "open collection %s", name)
	}
	e.invalidate(name)
	return types.Affected(name, fmt.Sprintf("Table %s created", name), 0), nil
}

func (e *Executor) executeDropTable(ctx context.Context, s *DropTable) (*types.Response, error) {
	dropped := 0
	for _, name := range s.Tables {
		if !e.schemas.HasTable(name) {
			if s.IfExists {
				continue
			}
			return nil, dberrors.NewNotFoundErrorf("drop table", "table %s does not exist", name)
		}
		if pending := e.txns.PendingOn(name); len(pending) > 0 {
			return nil, dberrors.NewTransactionErrorf("drop table", "table %s has pending writes in transaction %s", name, pending[0])
		}
		if err := e.schemas.DropTable(ctx, name); err != nil {
			return nil, err
		}
		if e.store.HasTree(name) {
			if err := e.store.DropTree(name); err != nil {
				return nil, dberrors.Wrapf(err, dberrors.ErrCodeStorage, "drop table", "drop collection %s", name)
			}
		}
		e.invalidate(name)
		dropped++
	}
	return types.OK(fmt.Sprintf("Dropped %d table(s)", dropped)), nil
}

func (e *Executor) executeAlterTable(ctx context.Context, s *AlterTable) (*types.Response, error) {
	for _, op := range s.Operations {
		if err := e.schemas.AlterTable(ctx, s.Table, op); err != nil {
			return nil, err
		}
		switch op.Kind {
		case catalog.AlterDropColumn:
			if err := e.rewriteRows(ctx, s.Table, func(row types.Row) bool {
				if _, ok := row[op.Name]; !ok {
					return false
				}
				delete(row, op.Name)
				return true
			}); err != nil {
				return nil, err
			}
		case catalog.AlterAddColumn:
			def, ok := op.Column.Default()
			if !ok {
				continue
			}
			value := resolveValue(&op.Column, StripDefault(def))
			if value == "" {
				continue
			}
			if err := e.rewriteRows(ctx, s.Table, func(row types.Row) bool {
				if !row.IsNull(op.Column.Name) {
					return false
				}
				row[op.Column.Name] = value
				return true
			}); err != nil {
				return nil, err
			}
		}
	}
	e.invalidate(s.Table)
	return types.Affected(s.Table, fmt.Sprintf("Table %s altered", s.Table), 0), nil
}

// rewriteRows applies fn to every stored row of table and writes back the
// rows it changed in one batch.
func (e *Executor) rewriteRows(ctx context.Context, table string, fn func(types.Row) bool) error {
	tree, err := e.tree(table)
	if err != nil {
		return err
	}
	b := tree.NewBatch()
	err = tree.Scan(func(key string, value []byte) error {
		row, err := types.DecodeRow(value)
		if err != nil {
			return err
		}
		if !fn(row) {
			return nil
		}
		data, err := types.EncodeRow(row)
		if err != nil {
			return err
		}
		return b.Set(key, data)
	})
	if err != nil {
		b.Close()
		return dberrors.Wrapf(err, dberrors.ErrCodeStorage, "alter table", "rewrite %s", table)
	}
	n := b.Len()
	if err := tree.ApplyBatch(b); err != nil {
		return dberrors.Wrapf(err, dberrors.ErrCodeStorage, "alter table", "rewrite %s", table)
	}
	logger.DebugContext(ctx, "rows rewritten", logger.Component("executor"), logger.Table(table), logger.Int("rows", n))
	return nil
}

func (e *Executor) executeCreateIndex(ctx context.Context, s *CreateIndex) (*types.Response, error) {
	if err := e.schemas.CreateIndex(ctx, s.Table, s.Index); err != nil {
		return nil, err
	}
	e.invalidate(s.Table)
	return types.Affected(s.Table, fmt.Sprintf("Index %s created", s.Index.Name), 0), nil
}
