package sql

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	dberrors "github.com/guileen/docsql/engine/errors"
	"github.com/guileen/docsql/logger"
	"github.com/guileen/docsql/protocol/sql/operators"
	"github.com/guileen/docsql/types"
)

// cteScope maps a CTE name to the collection holding its rows.
type cteScope map[string]string

func (e *Executor) executeSelect(ctx context.Context, s *Select) (*types.Response, error) {
	base := operators.ParseTableRef(s.Table)

	if len(s.CTEs) > 0 {
		scope, err := e.materializeCTEs(ctx, s.CTEs)
		defer e.dropCTEs(ctx, scope)
		if err != nil {
			return nil, err
		}
		rows, err := e.selectRows(ctx, s, scope)
		if err != nil {
			return nil, err
		}
		return types.ResultSet(base.Name, rows), nil
	}

	if !s.isDirect() || e.cache == nil {
		rows, err := e.selectRows(ctx, s, nil)
		if err != nil {
			return nil, err
		}
		return types.ResultSet(base.Name, rows), nil
	}

	conds, err := ParseConditions(s.Where)
	if err != nil {
		return nil, err
	}
	key := CacheKey{Database: e.database, Table: base.Name, Columns: s.Columns, Conditions: conds, OrderBy: s.OrderBy, Limit: s.Limit}
	if resp, ok := e.cache.Get(key); ok {
		e.metrics.CacheHit()
		return resp, nil
	}
	e.metrics.CacheMiss()

	gen := e.cache.Generation(key)
	rows, err := e.selectRows(ctx, s, nil)
	if err != nil {
		return nil, err
	}
	resp := types.ResultSet(base.Name, rows)
	e.cache.Put(key, gen, resp)
	return resp, nil
}

// isDirect reports whether s is a plain single-table read whose result can
// be cached.
func (s *Select) isDirect() bool {
	return len(s.Joins) == 0 && !s.needsPostProcessing()
}

func (s *Select) needsPostProcessing() bool {
	return len(s.Aggregates) > 0 || len(s.GroupBy) > 0 || s.Having != "" ||
		len(s.WindowFunctions) > 0 || len(s.CaseExpressions) > 0
}

// materializeCTEs runs each CTE in order and stores its rows in an ephemeral
// collection. Later CTEs may read earlier ones.
func (e *Executor) materializeCTEs(ctx context.Context, ctes []CTE) (cteScope, error) {
	scope := make(cteScope, len(ctes))
	for _, cte := range ctes {
		stmt, err := Parse(cte.Query)
		if err != nil {
			return scope, err
		}
		inner, ok := stmt.(*Select)
		if !ok {
			return scope, dberrors.NewParseErrorf("CTE %s must be a SELECT", cte.Name)
		}
		if len(inner.CTEs) > 0 {
			return scope, dberrors.NewParseErrorf("nested WITH in CTE %s is not supported", cte.Name)
		}
		rows, err := e.selectRows(ctx, inner, scope)
		if err != nil {
			return scope, err
		}

		name := "__cte_" + cte.Name + "_" + strings.ToLower(ulid.Make().String())
		tree, err := e.store.OpenTree(name)
		if err != nil {
			return scope, dberrors.Wrapf(err, dberrors.ErrCodeStorage, "cte", "create %s", name)
		}
		scope[cte.Name] = name

		b := tree.NewBatch()
		for i, row := range rows {
			data, err := types.EncodeRow(row)
			if err != nil {
				b.Close()
				return scope, err
			}
			// Derived rows may repeat an id, so rows are keyed by position.
			if err := b.Set(fmt.Sprintf("%08d", i+1), data); err != nil {
				b.Close()
				return scope, err
			}
		}
		if err := tree.ApplyBatch(b); err != nil {
			return scope, err
		}
		logger.DebugContext(ctx, "cte materialized", logger.Component("executor"),
			logger.String("cte", cte.Name), logger.Int("rows", len(rows)))
	}
	return scope, nil
}

func (e *Executor) dropCTEs(ctx context.Context, scope cteScope) {
	for name, tree := range scope {
		if err := e.store.DropTree(tree); err != nil {
			logger.WarnContext(ctx, "drop cte collection", logger.Component("executor"),
				logger.String("cte", name), logger.ErrorField(err))
		}
	}
}

// resolveTable maps a FROM item to its collection: CTE names first, then
// registered tables.
func (e *Executor) resolveTable(text string, scope cteScope) (operators.TableRef, error) {
	ref := operators.ParseTableRef(text)
	if tree, ok := scope[ref.Name]; ok {
		ref.Name = tree
		return ref, nil
	}
	if !e.schemas.HasTable(ref.Name) {
		return ref, dberrors.NewNotFoundErrorf("select", "table %s does not exist", ref.Name)
	}
	return ref, nil
}

// selectRows computes the projected rows of s.
func (e *Executor) selectRows(ctx context.Context, s *Select, scope cteScope) ([]types.Row, error) {
	tables := make([]operators.TableRef, 0, len(s.Joins)+1)
	base, err := e.resolveTable(s.Table, scope)
	if err != nil {
		return nil, err
	}
	tables = append(tables, base)
	joins := make([]operators.JoinStep, 0, len(s.Joins))
	for _, j := range s.Joins {
		ref, err := e.resolveTable(j.Table, scope)
		if err != nil {
			return nil, err
		}
		tables = append(tables, ref)
		joins = append(joins, operators.JoinStep{Type: j.Type, On: j.On})
	}

	conds, err := ParseConditions(s.Where)
	if err != nil {
		return nil, err
	}

	if !s.needsPostProcessing() {
		rows, err := e.joins.ExecuteJoinQuery(ctx, tables, joins, conds, s.OrderBy, s.Limit)
		if err != nil {
			return nil, err
		}
		return project(rows, s.Columns), nil
	}

	rows, err := e.joins.ExecuteJoinQuery(ctx, tables, joins, conds, nil, nil)
	if err != nil {
		return nil, err
	}
	for _, wf := range s.WindowFunctions {
		applyWindow(rows, wf)
	}
	for _, ce := range s.CaseExpressions {
		applyCase(rows, ce)
	}

	if len(s.Aggregates) > 0 || len(s.GroupBy) > 0 {
		if rows, err = aggregate(rows, s); err != nil {
			return nil, err
		}
	}
	if s.Having != "" {
		if rows, err = filterHaving(rows, s); err != nil {
			return nil, err
		}
	}

	operators.SortRows(rows, s.OrderBy)
	if s.Limit != nil && *s.Limit < len(rows) {
		rows = rows[:*s.Limit]
	}
	return project(rows, s.Columns), nil
}

// splitAlias splits "expr AS alias".
func splitAlias(col string) (string, string) {
	if i := strings.LastIndex(strings.ToUpper(col), " AS "); i > 0 {
		return strings.TrimSpace(col[:i]), strings.TrimSpace(col[i+4:])
	}
	return col, col
}

func groupColumns(s *Select) []string {
	if !s.HasGroupByAll() {
		return s.GroupBy
	}
	outputs := make(map[string]bool, len(s.Aggregates))
	for _, a := range s.Aggregates {
		outputs[a.Output] = true
	}
	var cols []string
	for _, c := range s.Columns {
		if outputs[c] || c == "*" {
			continue
		}
		src, _ := splitAlias(c)
		cols = append(cols, src)
	}
	return cols
}

func aggregate(rows []types.Row, s *Select) ([]types.Row, error) {
	specs := make([]operators.AggregateSpec, len(s.Aggregates))
	for i, a := range s.Aggregates {
		specs[i] = operators.AggregateSpec{Func: a.Func, Column: a.Arg, Output: a.Output}
	}
	op := operators.NewAggregate(operators.NewRowsOperator(rows, nil), groupColumns(s), specs)
	out, err := operators.Collect(op)
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.ErrCodeQuery, "aggregate")
	}
	return out, nil
}

// havingValue finds the HAVING operand in an aggregated row: a row key
// (case-insensitively), or the output of the aggregate the text names.
func havingValue(row types.Row, s *Select, ref string) (string, bool) {
	norm := strings.ReplaceAll(ref, " ", "")
	for k, v := range row {
		if strings.EqualFold(k, norm) || strings.EqualFold(k, ref) {
			return v, true
		}
	}
	for _, a := range s.Aggregates {
		if strings.EqualFold(a.Func+"("+a.Arg+")", norm) {
			v, ok := row[a.Output]
			return v, ok
		}
	}
	return operators.ResolveColumn(row, ref)
}

func filterHaving(rows []types.Row, s *Select) ([]types.Row, error) {
	cond, err := ParseHaving(s.Having)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, row := range rows {
		v, ok := havingValue(row, s, cond.Left)
		if ok && compare(v, cond.Op, cond.Right) {
			out = append(out, row)
		}
	}
	return out, nil
}

// compare applies a comparison operator using numeric order when both sides
// are numbers.
func compare(left, op, right string) bool {
	c := operators.CompareValues(left, right)
	switch op {
	case "=":
		return c == 0
	case "<>", "!=":
		return c != 0
	case ">":
		return c > 0
	case "<":
		return c < 0
	case ">=":
		return c >= 0
	case "<=":
		return c <= 0
	}
	return false
}

// project evaluates the select list. "*" keeps every column, "t.*" the
// columns qualified by t; a column that does not resolve is NULL.
func project(rows []types.Row, columns []string) []types.Row {
	if len(columns) == 0 || (len(columns) == 1 && columns[0] == "*") {
		return rows
	}
	out := make([]types.Row, len(rows))
	for i, row := range rows {
		p := make(types.Row, len(columns))
		for _, c := range columns {
			src, name := splitAlias(c)
			switch {
			case src == "*":
				for k, v := range row {
					p[k] = v
				}
			case strings.HasSuffix(src, ".*"):
				prefix := strings.TrimSuffix(src, "*")
				matched := false
				for k, v := range row {
					if strings.HasPrefix(k, prefix) {
						p[k] = v
						matched = true
					}
				}
				if !matched {
					for k, v := range row {
						if !strings.Contains(k, ".") {
							p[k] = v
						}
					}
				}
			default:
				if v, ok := operators.ResolveColumn(row, src); ok {
					p[name] = v
				} else {
					p[name] = types.NullValue
				}
			}
		}
		out[i] = p
	}
	return out
}
