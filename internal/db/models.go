package db

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// ImportBatchRow mirrors aps_import_batch.
type ImportBatchRow struct {
	ID             string
	Cadence        string
	SourceFilename string
	FileSizeBytes  int64
	StoragePath    sql.NullString
	UploadedAt     time.Time

	TotalRows   int
	ValidRows   int
	ErrorRows   int
	WarningRows int

	State string
}

// PlanRowRow mirrors aps_plan_row.
type PlanRowRow struct {
	ID          int64
	BatchID     string
	RowIndex    int
	WorkOrderID string

	ArticleCode    string
	PackageType    string
	Specification  string
	ProductionUnit string

	FeederCodes pq.StringArray
	MakerCodes  pq.StringArray

	InputQuantity int
	FinalQuantity int

	PlannedStart sql.NullTime
	PlannedEnd   sql.NullTime
	RawDateRange string

	Status  string
	Message sql.NullString
}

// TaskRow mirrors aps_task: one run of the 5-stage pipeline over a set of
// import batches.
type TaskRow struct {
	ID         string
	BatchIDs   pq.StringArray
	State      string
	StageName  sql.NullString
	Progress   float64
	Counts     []byte // raw JSONB summary, populated once the task completes
	CreatedAt  time.Time
	StartedAt  sql.NullTime
	FinishedAt sql.NullTime
	Error      sql.NullString
	Checkpoint sql.NullString // opaque stage-resume marker
}

// MakerOrderRow mirrors aps_work_order_maker.
type MakerOrderRow struct {
	ID       string
	TaskID   string
	Maker    string
	Article  string
	Unit     string
	PlanDate time.Time

	InputQuantity int
	FinalQuantity int

	StartTime time.Time
	EndTime   time.Time

	SequenceWithinDay int

	FeederOrderID sql.NullString
	IsBackup      bool
	BackupReason  sql.NullString

	SplitFrom  sql.NullString
	SplitIndex int
	MergedFrom pq.StringArray

	ManualReview  bool
	ReviewReasons pq.StringArray

	DispatchedAt sql.NullTime
}

// FeederOrderRow mirrors aps_work_order_feeder.
type FeederOrderRow struct {
	ID      string
	TaskID  string
	Feeder  string
	Article string

	Quantity int

	StartTime time.Time
	EndTime   time.Time

	SequenceWithinDay int

	ManualReview  bool
	ReviewReasons pq.StringArray

	DispatchedAt sql.NullTime
}

// FeederRelatedMakerRow mirrors aps_work_order_feeder_maker, the join table
// between a FeederOrderRow and the MakerOrderRows it aggregates.
type FeederRelatedMakerRow struct {
	FeederOrderID string
	MakerOrderID  string
	Quantity      int
}
