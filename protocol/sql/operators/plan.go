package operators

import (
	"fmt"
	"sort"
	"strings"
)

// ExecutionOperation is a node of a QueryExecutionPlan.
type ExecutionOperation interface {
	Children() []ExecutionOperation
	Describe() string
	Cost() PlanCost
}

type TableScan struct {
	Table      TableRef
	Conditions map[string]string
	Estimate   PlanCost
}

func (n *TableScan) Children() []ExecutionOperation { return nil }
func (n *TableScan) Cost() PlanCost                 { return n.Estimate }
func (n *TableScan) Describe() string {
	return fmt.Sprintf("TableScan %s%s", n.Table, describeConditions(n.Conditions))
}

// IndexScan reads a table through the primary key (Index "primary", Primary
// set, a point read on the storage key) or a unique column or index.
type IndexScan struct {
	Table      TableRef
	Index      string
	Column     string
	Unique     bool
	Primary    bool
	Conditions map[string]string
	Estimate   PlanCost
}

func (n *IndexScan) Children() []ExecutionOperation { return nil }
func (n *IndexScan) Cost() PlanCost                 { return n.Estimate }
func (n *IndexScan) Describe() string {
	return fmt.Sprintf("IndexScan %s using %s(%s)%s", n.Table, n.Index, n.Column, describeConditions(n.Conditions))
}

// JoinNode is shared by both join algorithms.
type JoinNode struct {
	Left, Right ExecutionOperation
	Type        JoinType
	Condition   JoinCondition
	LeftLabel   string
	RightLabel  string
	Estimate    PlanCost
}

func (n *JoinNode) Children() []ExecutionOperation { return []ExecutionOperation{n.Left, n.Right} }
func (n *JoinNode) Cost() PlanCost                 { return n.Estimate }

type NestedLoopJoin struct{ JoinNode }

func (n *NestedLoopJoin) Describe() string {
	return fmt.Sprintf("NestedLoopJoin %s ON %s", n.Type, n.Condition)
}

type HashJoin struct{ JoinNode }

func (n *HashJoin) Describe() string {
	return fmt.Sprintf("HashJoin %s ON %s", n.Type, n.Condition)
}

type Filter struct {
	Input      ExecutionOperation
	Conditions map[string]string
	Estimate   PlanCost
}

func (n *Filter) Children() []ExecutionOperation { return []ExecutionOperation{n.Input} }
func (n *Filter) Cost() PlanCost                 { return n.Estimate }
func (n *Filter) Describe() string               { return "Filter" + describeConditions(n.Conditions) }

type Sort struct {
	Input    ExecutionOperation
	OrderBy  []OrderSpec
	Estimate PlanCost
}

func (n *Sort) Children() []ExecutionOperation { return []ExecutionOperation{n.Input} }
func (n *Sort) Cost() PlanCost                 { return n.Estimate }
func (n *Sort) Describe() string {
	keys := make([]string, len(n.OrderBy))
	for i, o := range n.OrderBy {
		keys[i] = o.String()
	}
	return "Sort " + strings.Join(keys, ", ")
}

type Limit struct {
	Input    ExecutionOperation
	Count    int
	Estimate PlanCost
}

func (n *Limit) Children() []ExecutionOperation { return []ExecutionOperation{n.Input} }
func (n *Limit) Cost() PlanCost                 { return n.Estimate }
func (n *Limit) Describe() string               { return fmt.Sprintf("Limit %d", n.Count) }

// QueryExecutionPlan is a join plan annotated with its estimates.
type QueryExecutionPlan struct {
	Root          ExecutionOperation
	EstimatedCost float64
	EstimatedRows float64
}

// Explain renders the plan one node per line, children indented.
func (p *QueryExecutionPlan) Explain() string {
	var b strings.Builder
	var walk func(op ExecutionOperation, depth int)
	walk = func(op ExecutionOperation, depth int) {
		c := op.Cost()
		fmt.Fprintf(&b, "%s%s (cost=%.2f rows=%.0f)\n", strings.Repeat("  ", depth), op.Describe(), c.TotalCost, c.Rows)
		for _, child := range op.Children() {
			walk(child, depth+1)
		}
	}
	walk(p.Root, 0)
	return b.String()
}

func describeConditions(conds map[string]string) string {
	if len(conds) == 0 {
		return ""
	}
	keys := make([]string, 0, len(conds))
	for k := range conds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s = '%s'", k, conds[k])
	}
	return " WHERE " + strings.Join(parts, " AND ")
}
