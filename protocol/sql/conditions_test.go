package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dberrors "github.com/guileen/docsql/engine/errors"
)

func TestParseConditions(t *testing.T) {
	tests := []struct {
		where string
		want  map[string]string
	}{
		{"", map[string]string{}},
		{"name = 'Alice'", map[string]string{"name": "Alice"}},
		{"(id = 1)", map[string]string{"id": "1"}},
		{"name = 'Alice' AND age = 30", map[string]string{"name": "Alice", "age": "30"}},
		{"u.name = 'a' AND o.status = 'x AND y'", map[string]string{"u.name": "a", "o.status": "x AND y"}},
		{`"Name" = 'x'`, map[string]string{"Name": "x"}},
		{"note = 'it''s'", map[string]string{"note": "it's"}},
		{"kind = 'a'::text", map[string]string{"kind": "a"}},
		{"active = TRUE", map[string]string{"active": "true"}},
		{"price = 1.5", map[string]string{"price": "1.5"}},
	}
	for _, tt := range tests {
		t.Run(tt.where, func(t *testing.T) {
			got, err := ParseConditions(tt.where)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseConditionsRejects(t *testing.T) {
	for _, where := range []string{
		"age > 3",
		"age >= 3",
		"age <> 3",
		"age != 3",
		"a = 1 OR b = 2",
		"a = b",
		"a = NULL",
		"lower(name) = 'x'",
	} {
		_, err := ParseConditions(where)
		assert.True(t, dberrors.IsParseError(err), where)
	}
}

func TestParseHaving(t *testing.T) {
	tests := []struct {
		in   string
		want HavingCondition
	}{
		{"count(*) > 1", HavingCondition{Left: "count(*)", Op: ">", Right: "1"}},
		{"(sum(amount) >= 100)", HavingCondition{Left: "sum(amount)", Op: ">=", Right: "100"}},
		{"total <> 'x'", HavingCondition{Left: "total", Op: "<>", Right: "x"}},
		{"avg(score) = 2.5", HavingCondition{Left: "avg(score)", Op: "=", Right: "2.5"}},
		{"max(name) = 'a>b'", HavingCondition{Left: "max(name)", Op: "=", Right: "a>b"}},
	}
	for _, tt := range tests {
		got, err := ParseHaving(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseHaving("count(*)")
	assert.Error(t, err)
}

func TestSplitStatements(t *testing.T) {
	got := SplitStatements("SELECT 'a;b' FROM t; ; DELETE FROM t")
	assert.Equal(t, []string{"SELECT 'a;b' FROM t", "DELETE FROM t"}, got)
}
