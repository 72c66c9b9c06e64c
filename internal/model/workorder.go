package model

import "time"

// WorkOrderType distinguishes the two WorkOrder variants (§3).
type WorkOrderType string

const (
	WorkOrderMaker  WorkOrderType = "JB"
	WorkOrderFeeder WorkOrderType = "WS"
)

// MakerOrder is the terminal artifact for one maker machine, one article.
type MakerOrder struct {
	ID       string
	Maker    string
	Article  string
	Unit     string
	PlanDate time.Time

	InputQuantity int
	FinalQuantity int

	Start time.Time
	End   time.Time

	SequenceWithinDay int // 1-based, per machine per plan-date

	FeederOrderID string
	IsBackup      bool
	BackupReason  string

	// Lineage
	SplitFrom  string // parent order id, if produced by a split
	SplitIndex int
	MergedFrom []string // source PlanRow/work-order ids, if produced by a merge

	ManualReview  bool
	ReviewReasons []string
}

// FeederRelatedMaker captures one maker order a FeederOrder aggregates.
type FeederRelatedMaker struct {
	MakerOrderID string
	Quantity     int
}

// FeederOrder is the terminal artifact for one feeder machine, aggregating
// every related maker order's chain.
type FeederOrder struct {
	ID      string
	Feeder  string
	Article string

	// Quantity = ceil(sum(related maker quantities) * 1.05), the 5%
	// safety-stock allocation.
	Quantity int

	Start time.Time
	End   time.Time

	SequenceWithinDay int

	RelatedMakers []FeederRelatedMaker

	ManualReview  bool
	ReviewReasons []string
}

// TotalMakerQuantity sums the quantities of related maker orders, the raw
// input to the safety-stock calculation.
func (f FeederOrder) TotalMakerQuantity() int {
	total := 0
	for _, m := range f.RelatedMakers {
		total += m.Quantity
	}
	return total
}
