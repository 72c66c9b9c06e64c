package model

// WorkOrderDraft is an in-pipeline order. It carries the PlanRow
// attributes plus everything the pipeline stages add: lineage, transform
// history, and (after the split stage) a single maker/feeder assignment.
type WorkOrderDraft struct {
	ID          string
	OriginBatch string
	Lineage     []string
	History     []TransformStep

	PlanRow

	// Maker and Feeder are set once the split stage has narrowed a draft
	// to a single machine pair. Before split, Maker is empty and the
	// draft instead carries the full MakerCodes list inherited from
	// PlanRow.
	Maker  string
	Feeder string

	Priority int // default 5, 1 = highest

	// SplitParent/SplitIndex identify the parent draft this one was
	// produced from in the split stage (§4.3); SplitParent is empty for
	// drafts that never went through a split.
	SplitParent string
	SplitIndex  int

	// ManualReview is set by the time-correction or parallel-sync stages
	// when no feasible schedule could be found within their iteration
	// bounds (spec §4.4/§4.5 failure semantics).
	ManualReview     bool
	ReviewReasons    []string
	MaintenanceSplit bool // true if this draft was produced as a maintenance-window remainder
}

// Clone returns a deep-enough copy for a stage to mutate safely: slices
// are copied, the PlanRow value is copied by value already.
func (d WorkOrderDraft) Clone() WorkOrderDraft {
	out := d
	out.Lineage = append([]string(nil), d.Lineage...)
	out.History = append([]TransformStep(nil), d.History...)
	out.FeederCodes = append([]string(nil), d.FeederCodes...)
	out.MakerCodes = append([]string(nil), d.MakerCodes...)
	out.ReviewReasons = append([]string(nil), d.ReviewReasons...)
	return out
}

// WithHistory returns a copy of d with one more TransformStep appended.
func (d WorkOrderDraft) WithHistory(stage, before, after, reason string) WorkOrderDraft {
	out := d.Clone()
	out.History = append(out.History, TransformStep{
		Stage: stage, Before: before, After: after, Reason: reason,
	})
	return out
}
