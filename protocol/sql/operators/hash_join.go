package operators

import (
	"github.com/guileen/docsql/types"
)

// HashJoinOperator builds a hash table over the smaller input and looks up
// each row of the other in it. Matched build rows are tracked so outer joins
// keep their unmatched rows whichever side was built.
type HashJoinOperator struct {
	bufferedOutput
	joinSides

	// BuiltLeft reports whether the left input was the build side; set on Open.
	BuiltLeft bool
}

func NewHashJoin(left, right PhysicalOperator, leftLabel, rightLabel string, cond JoinCondition, joinType JoinType) *HashJoinOperator {
	return &HashJoinOperator{joinSides: joinSides{
		left: left, right: right,
		leftLabel: leftLabel, rightLabel: rightLabel,
		cond: cond, joinType: joinType,
	}}
}

func (op *HashJoinOperator) Open() error {
	op.reset()
	if err := op.load(); err != nil {
		return err
	}

	build, stream := op.rightRows, op.leftRows
	buildRef, streamRef := op.cond.Right, op.cond.Left
	op.BuiltLeft = len(op.leftRows) < len(op.rightRows)
	if op.BuiltLeft {
		build, stream = op.leftRows, op.rightRows
		buildRef, streamRef = op.cond.Left, op.cond.Right
	}

	table := make(map[string][]int, len(build))
	for i, row := range build {
		if k, ok := joinKey(row, buildRef); ok {
			table[k] = append(table[k], i)
		}
	}

	pair := func(streamRow, buildRow types.Row) types.Row {
		if op.BuiltLeft {
			return op.merge(buildRow, streamRow)
		}
		return op.merge(streamRow, buildRow)
	}

	buildMatched := make([]bool, len(build))
	keepStream := op.joinType.keepsLeft()
	keepBuild := op.joinType.keepsRight()
	if op.BuiltLeft {
		keepStream, keepBuild = keepBuild, keepStream
	}

	for _, p := range stream {
		var matches []int
		if k, ok := joinKey(p, streamRef); ok {
			matches = table[k]
		}
		for _, i := range matches {
			buildMatched[i] = true
			op.emit(pair(p, build[i]))
		}
		if len(matches) == 0 && keepStream {
			op.emit(pair(p, nil))
		}
	}
	if keepBuild {
		for i, b := range build {
			if !buildMatched[i] {
				op.emit(pair(nil, b))
			}
		}
	}
	return nil
}

func (op *HashJoinOperator) Close() error { return nil }

func (op *HashJoinOperator) Columns() []string { return op.columns }
