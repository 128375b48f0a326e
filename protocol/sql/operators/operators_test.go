package operators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guileen/docsql/types"
)

func usersRows() []types.Row {
	return []types.Row{
		{"id": "1", "name": "alice"},
		{"id": "2", "name": "bob"},
		{"id": "3", "name": "carol"},
	}
}

func ordersRows() []types.Row {
	return []types.Row{
		{"id": "10", "user_id": "1", "amount": "100"},
		{"id": "11", "user_id": "1", "amount": "50"},
		{"id": "12", "user_id": "9", "amount": "7"},
	}
}

func TestResolveColumn(t *testing.T) {
	row := types.Row{"users.id": "1", "name": "alice"}

	v, ok := ResolveColumn(row, "users.id")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	v, ok = ResolveColumn(row, "u.name")
	assert.True(t, ok)
	assert.Equal(t, "alice", v)

	v, ok = ResolveColumn(row, "id")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = ResolveColumn(row, "email")
	assert.False(t, ok)
}

func TestParseJoinCondition(t *testing.T) {
	c, err := ParseJoinCondition(" users.id = orders.user_id ")
	require.NoError(t, err)
	assert.Equal(t, JoinCondition{Left: "users.id", Right: "orders.user_id"}, c)

	swapped := JoinCondition{Left: "orders.user_id", Right: "users.id"}.Orient(TableRef{Name: "orders", Label: "orders"})
	assert.Equal(t, c, swapped)

	for _, bad := range []string{"a.x > b.y", "a.x", "= b.y", "a.x = b.y AND a.z = b.z"} {
		_, err := ParseJoinCondition(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseTableRef(t *testing.T) {
	assert.Equal(t, TableRef{Name: "users", Label: "users"}, ParseTableRef("users"))
	assert.Equal(t, TableRef{Name: "users", Label: "u"}, ParseTableRef("users AS u"))
	assert.Equal(t, TableRef{Name: "users", Label: "u"}, ParseTableRef("users u"))
}

type joinFactory func(left, right PhysicalOperator, leftLabel, rightLabel string, cond JoinCondition, joinType JoinType) PhysicalOperator

var joinAlgorithms = map[string]joinFactory{
	"nested_loop": func(l, r PhysicalOperator, ll, rl string, c JoinCondition, jt JoinType) PhysicalOperator {
		return NewNestedLoopJoin(l, r, ll, rl, c, jt)
	},
	"hash": func(l, r PhysicalOperator, ll, rl string, c JoinCondition, jt JoinType) PhysicalOperator {
		return NewHashJoin(l, r, ll, rl, c, jt)
	},
}

func TestJoinTypes(t *testing.T) {
	cond := JoinCondition{Left: "users.id", Right: "orders.user_id"}
	userCols := []string{"id", "name"}
	orderCols := []string{"id", "user_id", "amount"}

	tests := []struct {
		name     string
		users    []types.Row
		joinType JoinType
		want     int
	}{
		{"inner", usersRows(), InnerJoin, 2},
		{"left", usersRows(), LeftJoin, 4},
		{"right", usersRows(), RightJoin, 3},
		{"full", usersRows(), FullJoin, 5},
		{"left with smaller left side", usersRows()[:2], LeftJoin, 3},
		{"right with smaller left side", usersRows()[:2], RightJoin, 3},
		{"full with smaller left side", usersRows()[:2], FullJoin, 4},
	}

	for algo, newJoin := range joinAlgorithms {
		for _, tt := range tests {
			t.Run(algo+"/"+tt.name, func(t *testing.T) {
				op := newJoin(NewRowsOperator(tt.users, userCols), NewRowsOperator(ordersRows(), orderCols),
					"users", "orders", cond, tt.joinType)
				rows, err := Collect(op)
				require.NoError(t, err)
				assert.Len(t, rows, tt.want)

				for _, r := range rows {
					assert.Contains(t, r, "users.name")
					assert.Contains(t, r, "orders.amount")
				}
			})
		}
	}
}

func TestLeftJoinPadsMissingSide(t *testing.T) {
	for algo, newJoin := range joinAlgorithms {
		t.Run(algo, func(t *testing.T) {
			op := newJoin(NewRowsOperator(usersRows(), []string{"id", "name"}),
				NewRowsOperator(ordersRows(), []string{"id", "user_id", "amount"}),
				"users", "orders", JoinCondition{Left: "users.id", Right: "orders.user_id"}, LeftJoin)
			rows, err := Collect(op)
			require.NoError(t, err)

			var bob types.Row
			for _, r := range rows {
				if r["users.name"] == "bob" {
					bob = r
				}
			}
			require.NotNil(t, bob)
			assert.Equal(t, types.NullValue, bob["orders.amount"])
			assert.Equal(t, types.NullValue, bob["orders.user_id"])
		})
	}
}

func TestPaddingFallsBackToDefaultColumns(t *testing.T) {
	op := NewNestedLoopJoin(NewRowsOperator(usersRows(), nil), NewRowsOperator(nil, nil),
		"users", "orders", JoinCondition{Left: "users.id", Right: "orders.user_id"}, LeftJoin)
	rows, err := Collect(op)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, col := range DefaultNullColumns {
		assert.Equal(t, types.NullValue, rows[0]["orders."+col])
	}
}

func TestHashJoinBuildsSmallerSide(t *testing.T) {
	cond := JoinCondition{Left: "users.id", Right: "orders.user_id"}

	op := NewHashJoin(NewRowsOperator(usersRows()[:1], nil), NewRowsOperator(ordersRows(), nil), "users", "orders", cond, InnerJoin)
	_, err := Collect(op)
	require.NoError(t, err)
	assert.True(t, op.BuiltLeft)

	op = NewHashJoin(NewRowsOperator(usersRows(), nil), NewRowsOperator(ordersRows()[:1], nil), "users", "orders", cond, InnerJoin)
	_, err = Collect(op)
	require.NoError(t, err)
	assert.False(t, op.BuiltLeft)
}

func TestNullKeysNeverMatch(t *testing.T) {
	left := []types.Row{{"id": "1", "ref": ""}, {"id": "2", "ref": types.NullValue}}
	right := []types.Row{{"id": ""}, {"id": types.NullValue}}
	op := NewHashJoin(NewRowsOperator(left, nil), NewRowsOperator(right, nil), "a", "b",
		JoinCondition{Left: "a.ref", Right: "b.id"}, InnerJoin)
	rows, err := Collect(op)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFilterSortLimit(t *testing.T) {
	rows := []types.Row{
		{"id": "1", "n": "10", "tag": "x"},
		{"id": "2", "n": "9", "tag": "x"},
		{"id": "3", "n": "100", "tag": "y"},
		{"id": "4", "n": "1", "tag": "x"},
	}
	op := NewLimit(NewSort(NewFilter(NewRowsOperator(rows, nil), map[string]string{"t.tag": "x"}),
		[]OrderSpec{{Column: "n", Desc: true}}), 2)
	out, err := Collect(op)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "1", out[0]["id"])
	assert.Equal(t, "2", out[1]["id"])
}

func TestCompareValues(t *testing.T) {
	assert.Equal(t, -1, CompareValues("9", "10"))
	assert.Equal(t, 1, CompareValues("b", "a"))
	assert.Equal(t, 0, CompareValues("1.0", "1"))
	assert.Equal(t, -1, CompareValues("", "a"))
}

func TestAggregate(t *testing.T) {
	specs := []AggregateSpec{
		{Func: "COUNT", Column: "*", Output: "COUNT(*)"},
		{Func: "SUM", Column: "amount", Output: "total"},
		{Func: "AVG", Column: "amount", Output: "AVG(amount)"},
		{Func: "MAX", Column: "amount", Output: "MAX(amount)"},
	}
	op := NewAggregate(NewRowsOperator(ordersRows(), nil), []string{"user_id"}, specs)
	rows, err := Collect(op)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, types.Row{"user_id": "1", "COUNT(*)": "2", "total": "150", "AVG(amount)": "75", "MAX(amount)": "100"}, rows[0])
	assert.Equal(t, types.Row{"user_id": "9", "COUNT(*)": "1", "total": "7", "AVG(amount)": "7", "MAX(amount)": "7"}, rows[1])
}

func TestAggregateWithoutGroupOverEmptyInput(t *testing.T) {
	op := NewAggregate(NewRowsOperator(nil, nil), nil, []AggregateSpec{
		{Func: "COUNT", Column: "*", Output: "COUNT(*)"},
		{Func: "SUM", Column: "amount", Output: "SUM(amount)"},
	})
	rows, err := Collect(op)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "0", rows[0]["COUNT(*)"])
	assert.Equal(t, types.NullValue, rows[0]["SUM(amount)"])
}

func TestAggregateUnknownFunction(t *testing.T) {
	op := NewAggregate(NewRowsOperator(ordersRows(), nil), nil, []AggregateSpec{{Func: "MEDIAN", Column: "amount", Output: "m"}})
	_, err := Collect(op)
	assert.Error(t, err)
}
