package operators

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/guileen/docsql/types"
)

// DefaultNullColumns pads the missing side of an outer join when neither the
// schema nor the scanned rows say which columns it has.
var DefaultNullColumns = []string{"id", "name", "user_id", "email", "age", "amount", "date", "status"}

// TableRef is a table reference: Name is the storage collection, Label the
// alias (or the name) used to qualify its columns.
type TableRef struct {
	Name  string
	Label string
}

// ParseTableRef parses "users", "users AS u" and "users u".
func ParseTableRef(s string) TableRef {
	fields := strings.Fields(s)
	switch {
	case len(fields) == 3 && strings.EqualFold(fields[1], "AS"):
		return TableRef{Name: fields[0], Label: fields[2]}
	case len(fields) == 2:
		return TableRef{Name: fields[0], Label: fields[1]}
	case len(fields) == 1:
		return TableRef{Name: fields[0], Label: fields[0]}
	}
	return TableRef{Name: strings.TrimSpace(s), Label: strings.TrimSpace(s)}
}

func (t TableRef) String() string {
	if t.Label != "" && t.Label != t.Name {
		return t.Name + " AS " + t.Label
	}
	return t.Name
}

// SplitQualified splits "t.col" into ("t", "col"); an unqualified name
// returns an empty qualifier.
func SplitQualified(ref string) (string, string) {
	if i := strings.LastIndexByte(ref, '.'); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return "", ref
}

// ResolveColumn looks ref up in row: the exact key first, then the bare
// column name, then any key ending in ".column".
func ResolveColumn(row types.Row, ref string) (string, bool) {
	if v, ok := row[ref]; ok {
		return v, true
	}
	_, col := SplitQualified(ref)
	if col != ref {
		if v, ok := row[col]; ok {
			return v, true
		}
	}
	suffix := "." + col
	var match string
	found := false
	for k := range row {
		if strings.HasSuffix(k, suffix) && (!found || k < match) {
			match, found = k, true
		}
	}
	if found {
		return row[match], true
	}
	return "", false
}

// JoinCondition is an equality between a left and a right column reference.
type JoinCondition struct {
	Left  string
	Right string
}

// ParseJoinCondition parses "a.x = b.y". Only a single equality is supported.
func ParseJoinCondition(on string) (JoinCondition, error) {
	on = strings.TrimSpace(on)
	for _, op := range []string{"<>", "!=", ">=", "<=", "<", ">"} {
		if strings.Contains(on, op) {
			return JoinCondition{}, fmt.Errorf("unsupported join condition %q: only equality is supported", on)
		}
	}
	if strings.Contains(strings.ToUpper(on), " AND ") || strings.Contains(strings.ToUpper(on), " OR ") {
		return JoinCondition{}, fmt.Errorf("unsupported join condition %q: only a single equality is supported", on)
	}
	left, right, ok := strings.Cut(on, "=")
	left = strings.ReplaceAll(strings.TrimSpace(left), `"`, "")
	right = strings.ReplaceAll(strings.TrimSpace(right), `"`, "")
	if !ok || left == "" || right == "" {
		return JoinCondition{}, fmt.Errorf("invalid join condition %q", on)
	}
	return JoinCondition{Left: left, Right: right}, nil
}

// Orient swaps the sides when the condition names the right table on its left.
func (c JoinCondition) Orient(right TableRef) JoinCondition {
	lq, _ := SplitQualified(c.Left)
	rq, _ := SplitQualified(c.Right)
	names := func(q string) bool { return q != "" && (q == right.Label || q == right.Name) }
	if names(lq) && !names(rq) {
		return JoinCondition{Left: c.Right, Right: c.Left}
	}
	return c
}

func (c JoinCondition) String() string {
	return c.Left + " = " + c.Right
}

// joinKey resolves ref in row. NULLs and unresolved columns never join.
func joinKey(row types.Row, ref string) (string, bool) {
	v, ok := ResolveColumn(row, ref)
	if !ok || v == "" || v == types.NullValue {
		return "", false
	}
	return v, true
}

func qualify(label, col string) string {
	if strings.Contains(col, ".") {
		return col
	}
	return label + "." + col
}

// mergeRows prefixes unqualified left keys with leftLabel and every right key
// with rightLabel.
func mergeRows(left types.Row, leftLabel string, right types.Row, rightLabel string) types.Row {
	out := make(types.Row, len(left)+len(right))
	for k, v := range left {
		out[qualify(leftLabel, k)] = v
	}
	for k, v := range right {
		_, col := SplitQualified(k)
		out[rightLabel+"."+col] = v
	}
	return out
}

func nullRow(columns []string) types.Row {
	if len(columns) == 0 {
		columns = DefaultNullColumns
	}
	row := make(types.Row, len(columns))
	for _, c := range columns {
		row[c] = types.NullValue
	}
	return row
}

func qualifiedColumns(label string, cols []string, always bool) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		if always {
			_, bare := SplitQualified(c)
			out[i] = label + "." + bare
		} else {
			out[i] = qualify(label, c)
		}
	}
	return out
}

func observedColumns(rows []types.Row) []string {
	seen := make(map[string]bool)
	for _, r := range rows {
		for k := range r {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// CompareValues orders two encoded values numerically when both parse as
// numbers and lexically otherwise. Empty values sort first.
func CompareValues(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

// MatchConditions reports whether row satisfies every column=value pair.
// Keys may be qualified; the qualifier is stripped before matching.
func MatchConditions(row types.Row, conditions map[string]string) bool {
	for k, want := range conditions {
		_, col := SplitQualified(k)
		if got, ok := row[col]; !ok || got != want {
			return false
		}
	}
	return true
}
