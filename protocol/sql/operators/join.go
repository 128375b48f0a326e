package operators

import (
	"strings"

	"github.com/guileen/docsql/types"
)

// JoinType selects which unmatched rows an outer join keeps.
type JoinType string

const (
	InnerJoin JoinType = "INNER"
	LeftJoin  JoinType = "LEFT"
	RightJoin JoinType = "RIGHT"
	FullJoin  JoinType = "FULL"
)

// ParseJoinType accepts INNER, LEFT, RIGHT and FULL with an optional OUTER.
func ParseJoinType(s string) (JoinType, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(strings.ToUpper(s)), "OUTER"))
	switch JoinType(s) {
	case InnerJoin, LeftJoin, RightJoin, FullJoin:
		return JoinType(s), true
	case "":
		return InnerJoin, true
	}
	return "", false
}

func (t JoinType) keepsLeft() bool  { return t == LeftJoin || t == FullJoin }
func (t JoinType) keepsRight() bool { return t == RightJoin || t == FullJoin }

// joinSides carries what both join algorithms share.
type joinSides struct {
	left, right           PhysicalOperator
	leftLabel, rightLabel string
	cond                  JoinCondition
	joinType              JoinType

	leftRows, rightRows []types.Row
	columns             []string
}

func (j *joinSides) load() error {
	var err error
	if j.leftRows, err = Collect(j.left); err != nil {
		return err
	}
	if j.rightRows, err = Collect(j.right); err != nil {
		return err
	}
	leftCols := j.left.Columns()
	if len(leftCols) == 0 {
		leftCols = DefaultNullColumns
	}
	rightCols := j.right.Columns()
	if len(rightCols) == 0 {
		rightCols = DefaultNullColumns
	}
	j.columns = append(qualifiedColumns(j.leftLabel, leftCols, false), qualifiedColumns(j.rightLabel, rightCols, true)...)
	return nil
}

func (j *joinSides) merge(left, right types.Row) types.Row {
	if left == nil {
		left = nullRow(j.left.Columns())
	}
	if right == nil {
		right = nullRow(j.right.Columns())
	}
	return mergeRows(left, j.leftLabel, right, j.rightLabel)
}

// NestedLoopJoinOperator compares every left row with every right row.
type NestedLoopJoinOperator struct {
	bufferedOutput
	joinSides
}

func NewNestedLoopJoin(left, right PhysicalOperator, leftLabel, rightLabel string, cond JoinCondition, joinType JoinType) *NestedLoopJoinOperator {
	return &NestedLoopJoinOperator{joinSides: joinSides{
		left: left, right: right,
		leftLabel: leftLabel, rightLabel: rightLabel,
		cond: cond, joinType: joinType,
	}}
}

func (op *NestedLoopJoinOperator) Open() error {
	op.reset()
	if err := op.load(); err != nil {
		return err
	}

	rightMatched := make([]bool, len(op.rightRows))
	for _, l := range op.leftRows {
		lk, lok := joinKey(l, op.cond.Left)
		matched := false
		for i, r := range op.rightRows {
			rk, rok := joinKey(r, op.cond.Right)
			if !lok || !rok || lk != rk {
				continue
			}
			matched = true
			rightMatched[i] = true
			op.emit(op.merge(l, r))
		}
		if !matched && op.joinType.keepsLeft() {
			op.emit(op.merge(l, nil))
		}
	}
	if op.joinType.keepsRight() {
		for i, r := range op.rightRows {
			if !rightMatched[i] {
				op.emit(op.merge(nil, r))
			}
		}
	}
	return nil
}

func (op *NestedLoopJoinOperator) Close() error { return nil }

func (op *NestedLoopJoinOperator) Columns() []string { return op.columns }
