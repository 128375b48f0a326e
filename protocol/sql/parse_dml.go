package sql

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	dberrors "github.com/guileen/docsql/engine/errors"
)

func parseInsert(stmt *pg_query.InsertStmt) (*Insert, error) {
	if stmt.GetOnConflictClause() != nil {
		return nil, dberrors.NewParseErrorf("ON CONFLICT is not supported")
	}
	ins := &Insert{Table: stmt.GetRelation().GetRelname()}
	for _, c := range stmt.GetCols() {
		if rt := c.GetResTarget(); rt != nil {
			ins.Columns = append(ins.Columns, rt.GetName())
		}
	}

	src := stmt.GetSelectStmt().GetSelectStmt()
	if src == nil || len(src.GetValuesLists()) == 0 {
		return nil, dberrors.NewParseErrorf("INSERT needs a VALUES list")
	}
	for _, list := range src.GetValuesLists() {
		items := list.GetList().GetItems()
		if len(ins.Columns) > 0 && len(items) != len(ins.Columns) {
			return nil, dberrors.NewParseErrorf("INSERT has %d columns but %d values", len(ins.Columns), len(items))
		}
		row := make([]string, len(items))
		for i, item := range items {
			v, err := literalValue(item)
			if err != nil {
				return nil, err
			}
			row[i] = v
		}
		ins.Rows = append(ins.Rows, row)
	}
	return ins, nil
}

func parseUpdate(stmt *pg_query.UpdateStmt) (*Update, error) {
	if len(stmt.GetFromClause()) > 0 {
		return nil, dberrors.NewParseErrorf("UPDATE ... FROM is not supported")
	}
	up := &Update{Table: stmt.GetRelation().GetRelname(), Values: make(map[string]string)}
	for _, t := range stmt.GetTargetList() {
		rt := t.GetResTarget()
		if rt == nil {
			continue
		}
		v, err := literalValue(rt.GetVal())
		if err != nil {
			return nil, err
		}
		up.Values[rt.GetName()] = v
	}
	if len(up.Values) == 0 {
		return nil, dberrors.NewParseErrorf("UPDATE without SET")
	}

	where, err := renderExpr(stmt.GetWhereClause())
	if err != nil {
		return nil, err
	}
	if _, err := ParseConditions(where); err != nil {
		return nil, err
	}
	up.Where = where
	return up, nil
}

func parseDelete(stmt *pg_query.DeleteStmt) (*Delete, error) {
	if len(stmt.GetUsingClause()) > 0 {
		return nil, dberrors.NewParseErrorf("DELETE ... USING is not supported")
	}
	where, err := renderExpr(stmt.GetWhereClause())
	if err != nil {
		return nil, err
	}
	if _, err := ParseConditions(where); err != nil {
		return nil, err
	}
	return &Delete{Table: stmt.GetRelation().GetRelname(), Where: where}, nil
}
