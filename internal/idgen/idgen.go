// Package idgen centralizes the identifier schemes spec.md spreads across
// the parser, the orchestrator, and work-order emission (§9 design note:
// "centralize [identifier generation] in a single sequence-allocator
// component with a defined locking contract"). Per-type numeric sequences
// still live in internal/db (row-locked counters); this package covers the
// id *shapes* that don't need a database round trip.
package idgen

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// random8 returns an 8-character uppercase hex fragment derived from a
// fresh UUID, matching the teacher's `uuid.New().String()` idiom
// (internal/db/bulk_operation_jobs.go) trimmed to the width spec.md's
// ImportBatch id format calls for.
func random8() string {
	id := uuid.New().String()
	return strings.ToUpper(strings.ReplaceAll(id, "-", "")[:8])
}

// ImportBatch returns a new ImportBatch id: `{cadence}_{yyyymmdd}_{hhmmss}_{random8}`.
func ImportBatch(cadence string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%s", cadence, at.Format("20060102"), at.Format("150405"), random8())
}

// Task returns a new orchestrator task id, the same shape as the
// teacher's bulk-operation job id (a bare UUID) since tasks have no
// cadence/date component of their own.
func Task() string {
	return uuid.New().String()
}

// WorkOrderPrefix returns the two-letter type prefix spec.md §4.6 assigns
// to a work order type.
type WorkOrderPrefix string

const (
	PrefixMaker  WorkOrderPrefix = "JB"
	PrefixFeeder WorkOrderPrefix = "WS"
)

// WorkOrder formats a work-order id as `H{type:2}{date:yyyymmdd}{seq:04d}`
// per spec.md §4.6. seq is the value returned by the row-locked sequence
// allocator in internal/db.
func WorkOrder(prefix WorkOrderPrefix, date time.Time, seq int64) string {
	return fmt.Sprintf("H%s%s%04d", prefix, date.Format("20060102"), seq)
}

// MESPlanID formats the zero-padded PlanID spec.md §6 puts on the outbound
// MES dispatch record: `H{type:2}{seq:09d}`.
func MESPlanID(prefix WorkOrderPrefix, seq int64) string {
	return fmt.Sprintf("H%s%09d", prefix, seq)
}
