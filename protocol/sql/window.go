package sql

import (
	"strconv"
	"strings"

	"github.com/guileen/docsql/protocol/sql/operators"
	"github.com/guileen/docsql/types"
)

// applyWindow computes wf for every row and stores it under wf.Output. Rows
// keep their order; each partition is ranked on a sorted copy.
func applyWindow(rows []types.Row, wf WindowFunction) {
	partitions := make(map[string][]types.Row)
	var order []string
	for _, row := range rows {
		parts := make([]string, len(wf.PartitionBy))
		for i, c := range wf.PartitionBy {
			v, ok := operators.ResolveColumn(row, c)
			if !ok {
				v = types.NullValue
			}
			parts[i] = v
		}
		key := strings.Join(parts, "\x1f")
		if _, ok := partitions[key]; !ok {
			order = append(order, key)
		}
		partitions[key] = append(partitions[key], row)
	}

	for _, key := range order {
		part := partitions[key]
		operators.SortRows(part, wf.OrderBy)
		switch wf.Func {
		case "ROW_NUMBER":
			for i, row := range part {
				row[wf.Output] = strconv.Itoa(i + 1)
			}
		case "RANK", "DENSE_RANK":
			rank, dense := 0, 0
			for i, row := range part {
				if i == 0 || !sameOrderKey(part[i-1], row, wf.OrderBy) {
					rank = i + 1
					dense++
				}
				if wf.Func == "RANK" {
					row[wf.Output] = strconv.Itoa(rank)
				} else {
					row[wf.Output] = strconv.Itoa(dense)
				}
			}
		case "LEAD", "LAG":
			offset, def := windowOffset(wf.Args)
			if wf.Func == "LAG" {
				offset = -offset
			}
			values := make([]string, len(part))
			for i := range part {
				values[i] = def
				if j := i + offset; j >= 0 && j < len(part) {
					if v, ok := operators.ResolveColumn(part[j], wf.Args[0]); ok {
						values[i] = v
					}
				}
			}
			for i, row := range part {
				row[wf.Output] = values[i]
			}
		}
	}
}

func sameOrderKey(a, b types.Row, order []operators.OrderSpec) bool {
	for _, o := range order {
		x, _ := operators.ResolveColumn(a, o.Column)
		y, _ := operators.ResolveColumn(b, o.Column)
		if operators.CompareValues(x, y) != 0 {
			return false
		}
	}
	return true
}

// windowOffset reads the optional offset and default of LEAD and LAG.
func windowOffset(args []string) (int, string) {
	offset, def := 1, ""
	if len(args) > 1 {
		if n, err := strconv.Atoi(strings.TrimSpace(args[1])); err == nil && n >= 0 {
			offset = n
		}
	}
	if len(args) > 2 {
		if v, ok := unquoteLiteral(args[2]); ok {
			def = v
		}
	}
	return offset, def
}

// applyCase evaluates ce for every row and stores the result under ce.Output.
func applyCase(rows []types.Row, ce CaseExpression) {
	for _, row := range rows {
		result, matched := "", false
		for _, w := range ce.Whens {
			if evalCondition(row, w.Condition) {
				result, matched = w.Result, true
				break
			}
		}
		if !matched {
			result = ce.Else
		}
		row[ce.Output] = operandValue(row, result)
	}
}

var comparisonOps = []string{">=", "<=", "<>", "!=", ">", "<", "="}

// evalCondition evaluates a CASE condition: comparisons between columns and
// literals, IS [NOT] NULL, joined by AND and OR. A comparison with a NULL
// operand is false.
func evalCondition(row types.Row, cond string) bool {
	cond = trimParens(cond)
	if ors := splitTopLevel(cond, " OR "); len(ors) > 1 {
		for _, c := range ors {
			if evalCondition(row, c) {
				return true
			}
		}
		return false
	}
	if ands := splitTopLevel(cond, " AND "); len(ands) > 1 {
		for _, c := range ands {
			if !evalCondition(row, c) {
				return false
			}
		}
		return true
	}

	upper := strings.ToUpper(cond)
	if strings.HasSuffix(upper, " IS NOT NULL") {
		v := operandValue(row, cond[:len(cond)-len(" IS NOT NULL")])
		return v != "" && v != types.NullValue
	}
	if strings.HasSuffix(upper, " IS NULL") {
		v := operandValue(row, cond[:len(cond)-len(" IS NULL")])
		return v == "" || v == types.NullValue
	}

	l, op, r, ok := splitComparison(cond)
	if !ok {
		return false
	}
	left, right := operandValue(row, l), operandValue(row, r)
	if left == "" || right == "" || left == types.NullValue || right == types.NullValue {
		return false
	}
	return compare(left, op, right)
}

// splitComparison splits cond at its first comparison operator outside
// quoted literals.
func splitComparison(cond string) (left, op, right string, ok bool) {
	var quote byte
	for i := 0; i < len(cond); i++ {
		switch c := cond[i]; {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case i > 0:
			for _, op := range comparisonOps {
				if strings.HasPrefix(cond[i:], op) {
					return cond[:i], op, cond[i+len(op):], true
				}
			}
		}
	}
	return "", "", "", false
}

// operandValue decodes a literal or looks a column up; anything else is
// NULL.
func operandValue(row types.Row, text string) string {
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(text, "NULL") {
		return ""
	}
	if v, ok := unquoteLiteral(text); ok {
		return v
	}
	if v, ok := operators.ResolveColumn(row, strings.ReplaceAll(text, `"`, "")); ok {
		return v
	}
	return ""
}
