package model

import "time"

// Cadence is the planning cadence a batch was uploaded under.
type Cadence string

const (
	CadenceDecade  Cadence = "decade"
	CadenceMonthly Cadence = "monthly"
)

// BatchState is the lifecycle state of an ImportBatch.
type BatchState string

const (
	BatchUploading BatchState = "uploading"
	BatchParsing   BatchState = "parsing"
	BatchCompleted BatchState = "completed"
	BatchFailed    BatchState = "failed"
)

// ImportBatch is the unit of ingestion identifying one uploaded workbook.
// It is created by upload, completed by the parser, and never mutated
// after that.
type ImportBatch struct {
	ID             string
	Cadence        Cadence
	SourceFilename string
	FileSizeBytes  int64
	StoragePath    string
	UploadedAt     time.Time

	TotalRows   int
	ValidRows   int
	ErrorRows   int
	WarningRows int

	State BatchState
}
