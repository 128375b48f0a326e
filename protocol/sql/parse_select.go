package sql

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	dberrors "github.com/guileen/docsql/engine/errors"
	"github.com/guileen/docsql/protocol/sql/operators"
)

var aggregateFuncs = map[string]bool{"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true}

var windowFuncs = map[string]bool{"ROW_NUMBER": true, "RANK": true, "DENSE_RANK": true, "LEAD": true, "LAG": true}

func parseSelect(stmt *pg_query.SelectStmt) (*Select, error) {
	if stmt.GetOp() != pg_query.SetOperation_SETOP_NONE {
		return nil, dberrors.NewParseErrorf("set operations are not supported")
	}
	if len(stmt.GetValuesLists()) > 0 {
		return nil, dberrors.NewParseErrorf("VALUES lists are only supported in INSERT")
	}
	sel := &Select{}

	if with := stmt.GetWithClause(); with != nil {
		if with.GetRecursive() {
			return nil, dberrors.NewParseErrorf("recursive CTEs are not supported")
		}
		for _, n := range with.GetCtes() {
			cte := n.GetCommonTableExpr()
			if cte == nil {
				continue
			}
			query, err := deparse(cte.GetCtequery())
			if err != nil {
				return nil, err
			}
			sel.CTEs = append(sel.CTEs, CTE{Name: cte.GetCtename(), Query: query})
		}
	}

	from := stmt.GetFromClause()
	switch len(from) {
	case 0:
		return nil, dberrors.NewParseErrorf("SELECT without FROM is not supported")
	case 1:
	default:
		return nil, dberrors.NewParseErrorf("comma separated FROM lists are not supported, use JOIN")
	}
	if err := flattenFrom(from[0], sel); err != nil {
		return nil, err
	}

	if err := parseTargets(stmt.GetTargetList(), sel); err != nil {
		return nil, err
	}

	where, err := renderExpr(stmt.GetWhereClause())
	if err != nil {
		return nil, err
	}
	if _, err := ParseConditions(where); err != nil {
		return nil, err
	}
	sel.Where = where

	for _, g := range stmt.GetGroupClause() {
		text, err := exprName(g)
		if err != nil {
			return nil, err
		}
		sel.GroupBy = append(sel.GroupBy, text)
	}

	if sel.Having, err = renderExpr(stmt.GetHavingClause()); err != nil {
		return nil, err
	}
	if sel.Having != "" {
		if _, err := ParseHaving(sel.Having); err != nil {
			return nil, err
		}
	}

	for _, n := range stmt.GetSortClause() {
		sb := n.GetSortBy()
		if sb == nil {
			continue
		}
		col, err := sortKey(sb.GetNode())
		if err != nil {
			return nil, err
		}
		sel.OrderBy = append(sel.OrderBy, operators.OrderSpec{
			Column: col,
			Desc:   sb.GetSortbyDir() == pg_query.SortByDir_SORTBY_DESC,
		})
	}

	if lc := stmt.GetLimitCount(); lc != nil {
		c := lc.GetAConst()
		if c == nil || c.GetIval() == nil {
			if c != nil && c.GetIsnull() {
				return sel, nil
			}
			return nil, dberrors.NewParseErrorf("LIMIT must be an integer literal")
		}
		n := int(c.GetIval().GetIval())
		if n < 0 {
			return nil, dberrors.NewParseErrorf("LIMIT must not be negative")
		}
		sel.Limit = &n
	}
	return sel, nil
}

// flattenFrom walks a left-deep join tree into the base table and the
// ordered join clauses.
func flattenFrom(node *pg_query.Node, sel *Select) error {
	if rv := node.GetRangeVar(); rv != nil {
		sel.Table = rangeVarText(rv)
		return nil
	}
	je := node.GetJoinExpr()
	if je == nil {
		return dberrors.NewParseErrorf("unsupported FROM item: only tables and joins are supported")
	}
	if err := flattenFrom(je.GetLarg(), sel); err != nil {
		return err
	}
	rv := je.GetRarg().GetRangeVar()
	if rv == nil {
		return dberrors.NewParseErrorf("the right side of a join must be a table")
	}
	if je.GetIsNatural() || len(je.GetUsingClause()) > 0 || je.GetQuals() == nil {
		return dberrors.NewParseErrorf("joins need an ON condition")
	}

	var jt operators.JoinType
	switch je.GetJointype() {
	case pg_query.JoinType_JOIN_INNER:
		jt = operators.InnerJoin
	case pg_query.JoinType_JOIN_LEFT:
		jt = operators.LeftJoin
	case pg_query.JoinType_JOIN_RIGHT:
		jt = operators.RightJoin
	case pg_query.JoinType_JOIN_FULL:
		jt = operators.FullJoin
	default:
		return dberrors.NewParseErrorf("unsupported join type %s", je.GetJointype())
	}

	on, err := renderExpr(je.GetQuals())
	if err != nil {
		return err
	}
	if _, err := operators.ParseJoinCondition(on); err != nil {
		return dberrors.NewParseErrorf("%v", err)
	}
	sel.Joins = append(sel.Joins, JoinClause{Table: rangeVarText(rv), Type: jt, On: on})
	return nil
}

func parseTargets(targets []*pg_query.Node, sel *Select) error {
	for _, t := range targets {
		rt := t.GetResTarget()
		if rt == nil {
			continue
		}
		val := rt.GetVal()
		alias := rt.GetName()

		switch {
		case val.GetColumnRef() != nil:
			col := columnRefName(val.GetColumnRef())
			if alias != "" {
				col += " AS " + alias
			}
			sel.Columns = append(sel.Columns, col)

		case val.GetFuncCall() != nil:
			fc := val.GetFuncCall()
			fn := funcName(fc)
			switch {
			case fc.GetOver() != nil && windowFuncs[fn]:
				wf, err := parseWindow(fn, fc, alias)
				if err != nil {
					return err
				}
				sel.WindowFunctions = append(sel.WindowFunctions, wf)
				sel.Columns = append(sel.Columns, wf.Output)
			case fc.GetOver() == nil && aggregateFuncs[fn]:
				call, err := parseAggregate(fn, fc, alias)
				if err != nil {
					return err
				}
				sel.Aggregates = append(sel.Aggregates, call)
				sel.Columns = append(sel.Columns, call.Output)
			default:
				return dberrors.NewParseErrorf("unsupported function %s in select list", fn)
			}

		case val.GetCaseExpr() != nil:
			ce, err := parseCase(val, alias)
			if err != nil {
				return err
			}
			sel.CaseExpressions = append(sel.CaseExpressions, ce)
			sel.Columns = append(sel.Columns, ce.Output)

		default:
			text, _ := renderExpr(val)
			return dberrors.NewParseErrorf("unsupported select expression %q", text)
		}
	}
	if len(sel.Columns) == 0 {
		sel.Columns = []string{"*"}
	}
	return nil
}

func parseAggregate(fn string, fc *pg_query.FuncCall, alias string) (AggregateCall, error) {
	call := AggregateCall{Func: fn, Output: alias}
	switch {
	case fc.GetAggStar():
		call.Arg = "*"
	case len(fc.GetArgs()) == 1 && fc.GetArgs()[0].GetColumnRef() != nil:
		call.Arg = columnRefName(fc.GetArgs()[0].GetColumnRef())
	default:
		return AggregateCall{}, dberrors.NewParseErrorf("%s takes a single column or *", fn)
	}
	if fc.GetAggDistinct() {
		return AggregateCall{}, dberrors.NewParseErrorf("%s(DISTINCT ...) is not supported", fn)
	}
	if call.Output == "" {
		call.Output = fmt.Sprintf("%s(%s)", fn, call.Arg)
	}
	return call, nil
}

func parseWindow(fn string, fc *pg_query.FuncCall, alias string) (WindowFunction, error) {
	wf := WindowFunction{Func: fn, Output: alias}
	if wf.Output == "" {
		wf.Output = strings.ToLower(fn)
	}
	for _, a := range fc.GetArgs() {
		text, err := exprName(a)
		if err != nil {
			return WindowFunction{}, err
		}
		wf.Args = append(wf.Args, text)
	}
	if (fn == "LEAD" || fn == "LAG") && len(wf.Args) == 0 {
		return WindowFunction{}, dberrors.NewParseErrorf("%s needs a column argument", fn)
	}

	over := fc.GetOver()
	var clauses []string
	for _, p := range over.GetPartitionClause() {
		text, err := exprName(p)
		if err != nil {
			return WindowFunction{}, err
		}
		wf.PartitionBy = append(wf.PartitionBy, text)
	}
	if len(wf.PartitionBy) > 0 {
		clauses = append(clauses, "PARTITION BY "+strings.Join(wf.PartitionBy, ", "))
	}
	var orders []string
	for _, n := range over.GetOrderClause() {
		sb := n.GetSortBy()
		if sb == nil {
			continue
		}
		col, err := sortKey(sb.GetNode())
		if err != nil {
			return WindowFunction{}, err
		}
		spec := operators.OrderSpec{Column: col, Desc: sb.GetSortbyDir() == pg_query.SortByDir_SORTBY_DESC}
		wf.OrderBy = append(wf.OrderBy, spec)
		orders = append(orders, spec.String())
	}
	if len(orders) > 0 {
		clauses = append(clauses, "ORDER BY "+strings.Join(orders, ", "))
	}
	wf.Over = strings.Join(clauses, " ")
	return wf, nil
}

func parseCase(val *pg_query.Node, alias string) (CaseExpression, error) {
	ce := val.GetCaseExpr()
	if ce.GetArg() != nil {
		return CaseExpression{}, dberrors.NewParseErrorf("only searched CASE WHEN expressions are supported")
	}
	out := CaseExpression{Output: alias}
	if out.Output == "" {
		out.Output = "case"
	}
	for _, n := range ce.GetArgs() {
		w := n.GetCaseWhen()
		if w == nil {
			continue
		}
		cond, err := renderExpr(w.GetExpr())
		if err != nil {
			return CaseExpression{}, err
		}
		result, err := caseResult(w.GetResult())
		if err != nil {
			return CaseExpression{}, err
		}
		out.Whens = append(out.Whens, CaseWhen{Condition: cond, Result: result})
	}
	if d := ce.GetDefresult(); d != nil {
		res, err := caseResult(d)
		if err != nil {
			return CaseExpression{}, err
		}
		out.Else = res
	}
	text, err := renderExpr(val)
	if err != nil {
		return CaseExpression{}, err
	}
	out.Text = text
	return out, nil
}

// caseResult keeps column references as their name and decodes literals.
func caseResult(n *pg_query.Node) (string, error) {
	if ref := n.GetColumnRef(); ref != nil {
		return columnRefName(ref), nil
	}
	if c := n.GetAConst(); c != nil {
		if c.GetSval() != nil {
			return "'" + strings.ReplaceAll(c.GetSval().GetSval(), "'", "''") + "'", nil
		}
		return constValue(c), nil
	}
	return renderExpr(n)
}

func sortKey(n *pg_query.Node) (string, error) {
	if ref := n.GetColumnRef(); ref != nil {
		return columnRefName(ref), nil
	}
	if fc := n.GetFuncCall(); fc != nil && aggregateFuncs[funcName(fc)] {
		call, err := parseAggregate(funcName(fc), fc, "")
		if err != nil {
			return "", err
		}
		return call.Output, nil
	}
	if c := n.GetAConst(); c != nil && c.GetIval() != nil {
		return "", dberrors.NewParseErrorf("ORDER BY position is not supported")
	}
	text, _ := renderExpr(n)
	return "", dberrors.NewParseErrorf("unsupported ORDER BY expression %q", text)
}
