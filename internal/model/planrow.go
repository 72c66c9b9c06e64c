package model

import "time"

// ValidationStatus classifies a parsed PlanRow.
type ValidationStatus string

const (
	StatusValid   ValidationStatus = "valid"
	StatusWarning ValidationStatus = "warning"
	StatusError   ValidationStatus = "error"
)

// PlanRow is one line extracted from a workbook.
type PlanRow struct {
	RowIndex int

	WorkOrderID    string
	ArticleCode    string
	PackageType    string
	Specification  string
	ProductionUnit string

	// FeederCodes and MakerCodes preserve the order they were listed in
	// the source cell; duplicates are removed and empty tokens rejected
	// by the parser before a PlanRow is constructed.
	FeederCodes []string
	MakerCodes  []string

	InputQuantity int
	FinalQuantity int

	PlannedStart time.Time
	PlannedEnd   time.Time
	RawDateRange string

	Status  ValidationStatus
	Message string
}

// Valid reports whether the row may flow into downstream pipeline stages.
// Rows with only warnings still flow; only `error` rows are excluded.
func (r PlanRow) Valid() bool {
	return r.Status != StatusError
}

// QuantityInRange reports whether FinalQuantity falls within the
// [0.8, 1.2] x InputQuantity band required by the data model invariant.
func (r PlanRow) QuantityInRange() bool {
	lo := float64(r.InputQuantity) * 0.8
	hi := float64(r.InputQuantity) * 1.2
	f := float64(r.FinalQuantity)
	return f >= lo && f <= hi
}
