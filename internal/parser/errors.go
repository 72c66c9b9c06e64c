package parser

import "errors"

// StructuralError reports a workbook-level failure: unreadable file or no
// locatable header row. Unlike row-level diagnostics, this aborts parsing
// entirely and no batch is persisted.
type StructuralError struct {
	Reason string
	Cause  error
}

func (e *StructuralError) Error() string {
	if e.Cause != nil {
		return e.Reason + ": " + e.Cause.Error()
	}
	return e.Reason
}

func (e *StructuralError) Unwrap() error {
	return e.Cause
}

var errNoHeader = errors.New("no header row found within scan window")
