package model

// DiagnosticKind classifies a single-field anomaly raised by the parser.
type DiagnosticKind string

const (
	DiagFormat      DiagnosticKind = "format"
	DiagMissing     DiagnosticKind = "missing"
	DiagOutOfRange  DiagnosticKind = "out-of-range"
	DiagUnknownCode DiagnosticKind = "unknown-code"
)

// Diagnostic is a single anomaly attached to a row during parsing.
// Diagnostics are data, not errors: a row carrying one or more
// DiagFormat/DiagMissing/etc entries with Fatal=true is excluded
// downstream, but the diagnostic itself never unwinds the call stack.
type Diagnostic struct {
	RowNumber     int
	ColumnLabel   string
	Kind          DiagnosticKind
	OriginalValue string
	Message       string
	Fatal         bool // true promotes the owning row to validation-status "error"
}

// TransformStep records one stage's effect on a WorkOrderDraft for lineage
// and audit purposes.
type TransformStep struct {
	Stage  string
	Before string
	After  string
	Reason string
}
