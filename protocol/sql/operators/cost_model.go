package operators

import (
	"math"
)

// CostModel prices plan nodes. Costs only pick a join algorithm; plans are
// never enumerated.
type CostModel struct {
	seqPageCost       float64
	randomPageCost    float64
	cpuTupleCost      float64
	cpuIndexTupleCost float64
	cpuOperatorCost   float64
	rowsPerPage       int64
}

// PlanCost is the estimate attached to a plan node.
type PlanCost struct {
	StartupCost float64
	TotalCost   float64
	Rows        float64
}

func NewCostModel() *CostModel {
	return &CostModel{
		seqPageCost:       1.0,
		randomPageCost:    4.0,
		cpuTupleCost:      0.01,
		cpuIndexTupleCost: 0.005,
		cpuOperatorCost:   0.0025,
		rowsPerPage:       100,
	}
}

func (cm *CostModel) pages(tuples int64) int64 {
	return tuples/cm.rowsPerPage + 1
}

func (cm *CostModel) SeqScanCost(tuples int64) PlanCost {
	return PlanCost{
		TotalCost: float64(cm.pages(tuples))*cm.seqPageCost + float64(tuples)*cm.cpuTupleCost,
		Rows:      float64(tuples),
	}
}

// IndexScanCost prices a keyed lookup returning the given number of tuples.
func (cm *CostModel) IndexScanCost(tuples int64) PlanCost {
	startup := cm.randomPageCost
	return PlanCost{
		StartupCost: startup,
		TotalCost:   startup + float64(tuples)*(cm.cpuIndexTupleCost+cm.randomPageCost),
		Rows:        float64(tuples),
	}
}

func (cm *CostModel) NestedLoopJoinCost(left, right PlanCost, selectivity float64) PlanCost {
	return PlanCost{
		StartupCost: left.StartupCost + right.StartupCost,
		TotalCost:   left.TotalCost + right.TotalCost + left.Rows*right.Rows*cm.cpuOperatorCost,
		Rows:        joinRows(left, right, selectivity),
	}
}

func (cm *CostModel) HashJoinCost(left, right PlanCost, selectivity float64) PlanCost {
	build, stream := right, left
	if left.Rows < right.Rows {
		build, stream = left, right
	}
	startup := build.TotalCost + build.Rows*cm.cpuOperatorCost
	return PlanCost{
		StartupCost: startup,
		TotalCost:   startup + stream.TotalCost + stream.Rows*cm.cpuOperatorCost,
		Rows:        joinRows(left, right, selectivity),
	}
}

func (cm *CostModel) FilterCost(input PlanCost, conditions int) PlanCost {
	rows := input.Rows
	for i := 0; i < conditions; i++ {
		rows *= 0.1
	}
	return PlanCost{
		StartupCost: input.StartupCost,
		TotalCost:   input.TotalCost + input.Rows*float64(conditions)*cm.cpuOperatorCost,
		Rows:        rows,
	}
}

func (cm *CostModel) SortCost(input PlanCost) PlanCost {
	total := input.TotalCost + input.Rows*log2(input.Rows)*cm.cpuOperatorCost
	return PlanCost{StartupCost: total, TotalCost: total, Rows: input.Rows}
}

func (cm *CostModel) LimitCost(input PlanCost, n int) PlanCost {
	rows := math.Min(input.Rows, float64(n))
	return PlanCost{StartupCost: input.StartupCost, TotalCost: input.TotalCost, Rows: rows}
}

// JoinSelectivity is the equality-join estimate 1/max(rows) without column
// statistics.
func JoinSelectivity(left, right PlanCost) float64 {
	return 1.0 / math.Max(1, math.Max(left.Rows, right.Rows))
}

func joinRows(left, right PlanCost, selectivity float64) float64 {
	return math.Max(1, left.Rows*right.Rows*selectivity)
}

func log2(x float64) float64 {
	if x <= 1 {
		return 0
	}
	return math.Log2(x)
}
