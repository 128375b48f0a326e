package sql

import (
	"strconv"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	dberrors "github.com/guileen/docsql/engine/errors"
)

// renderExpr deparses an expression node back to SQL text.
func renderExpr(node *pg_query.Node) (string, error) {
	if node == nil {
		return "", nil
	}
	sel := &pg_query.SelectStmt{
		TargetList:  []*pg_query.Node{pg_query.MakeResTargetNodeWithVal(node, 0)},
		Op:          pg_query.SetOperation_SETOP_NONE,
		LimitOption: pg_query.LimitOption_LIMIT_OPTION_DEFAULT,
	}
	out, err := deparse(&pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: sel}})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.TrimPrefix(out, "SELECT ")), nil
}

// deparse renders a whole statement node.
func deparse(stmt *pg_query.Node) (string, error) {
	out, err := pg_query.Deparse(&pg_query.ParseResult{Stmts: []*pg_query.RawStmt{{Stmt: stmt}}})
	if err != nil {
		return "", dberrors.NewParseErrorf("render expression: %v", err)
	}
	return out, nil
}

// columnRefName joins the fields of a column reference ("t.col", "*").
func columnRefName(ref *pg_query.ColumnRef) string {
	parts := make([]string, 0, len(ref.GetFields()))
	for _, f := range ref.GetFields() {
		switch {
		case f.GetString_() != nil:
			parts = append(parts, f.GetString_().GetSval())
		case f.GetAStar() != nil:
			parts = append(parts, "*")
		}
	}
	return strings.Join(parts, ".")
}

// exprName is the column name of a column reference and the SQL text of
// anything else.
func exprName(n *pg_query.Node) (string, error) {
	if ref := n.GetColumnRef(); ref != nil {
		return columnRefName(ref), nil
	}
	return renderExpr(n)
}

func stringNodes(nodes []*pg_query.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if s := n.GetString_(); s != nil {
			out = append(out, s.GetSval())
		}
	}
	return out
}

// constValue returns the string encoding of a literal. NULL is the empty
// string.
func constValue(c *pg_query.A_Const) string {
	switch {
	case c.GetIsnull():
		return ""
	case c.GetSval() != nil:
		return c.GetSval().GetSval()
	case c.GetIval() != nil:
		return strconv.FormatInt(int64(c.GetIval().GetIval()), 10)
	case c.GetFval() != nil:
		return c.GetFval().GetFval()
	case c.GetBoolval() != nil:
		return strconv.FormatBool(c.GetBoolval().GetBoolval())
	case c.GetBsval() != nil:
		return c.GetBsval().GetBsval()
	}
	return ""
}

// CurrentTimestamp is the value sentinel for NOW() and CURRENT_TIMESTAMP.
const CurrentTimestamp = "CURRENT_TIMESTAMP"

// literalValue evaluates a value expression of INSERT or UPDATE: literals,
// casts of literals and the current timestamp sentinel. Other expressions
// are carried as their SQL text.
func literalValue(node *pg_query.Node) (string, error) {
	switch {
	case node.GetAConst() != nil:
		return constValue(node.GetAConst()), nil
	case node.GetTypeCast() != nil:
		return literalValue(node.GetTypeCast().GetArg())
	case node.GetSqlvalueFunction() != nil:
		return CurrentTimestamp, nil
	case node.GetFuncCall() != nil:
		if fn := funcName(node.GetFuncCall()); fn == "NOW" || fn == "CURRENT_TIMESTAMP" {
			return CurrentTimestamp, nil
		}
	case node.GetColumnRef() != nil:
		return "", dberrors.NewParseErrorf("column reference %s is not a value", columnRefName(node.GetColumnRef()))
	}
	return renderExpr(node)
}

func funcName(fc *pg_query.FuncCall) string {
	names := stringNodes(fc.GetFuncname())
	if len(names) == 0 {
		return ""
	}
	return strings.ToUpper(names[len(names)-1])
}

func rangeVarText(rv *pg_query.RangeVar) string {
	name := rv.GetRelname()
	if a := rv.GetAlias(); a != nil && a.GetAliasname() != "" {
		return name + " AS " + a.GetAliasname()
	}
	return name
}
