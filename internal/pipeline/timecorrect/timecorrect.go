// Package timecorrect implements the pipeline's time-correction stage
// (§4.4): each order's interval is shifted to avoid maintenance windows
// and honor shift/working-day boundaries while preserving its required
// duration.
package timecorrect

import (
	"fmt"
	"sort"
	"time"

	"github.com/pinggolf/aps-scheduler/internal/model"
)

const stageName = "timecorrect"

// maxIterations bounds the conflict-resolution loop (§4.4).
const maxIterations = 16

// MaintenanceLookup resolves overlapping downtime windows for a machine.
type MaintenanceLookup interface {
	Overlapping(machine string, s, e time.Time) []model.MaintenanceWindow
}

// ShiftLookup resolves shift boundaries for a machine.
type ShiftLookup interface {
	InShift(machine string, t time.Time) (model.ShiftDef, bool)
	NextShiftStart(machine string, t time.Time) time.Time
	ShiftEnd(machine string, t time.Time) time.Time
}

// DurationLookup computes the required production duration for a
// machine/article/quantity triple.
type DurationLookup interface {
	RequiredDuration(machine, article string, quantity int, t time.Time) time.Duration
}

// Run time-corrects every draft, returning the corrected set (including
// any maintenance-split remainders) and diagnostics for unresolved
// conflicts. Processing order is deterministic: ascending start, then
// maker-code.
func Run(drafts []model.WorkOrderDraft, maint MaintenanceLookup, shift ShiftLookup, speed DurationLookup) ([]model.WorkOrderDraft, []model.Diagnostic) {
	ordered := append([]model.WorkOrderDraft(nil), drafts...)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].PlannedStart.Equal(ordered[j].PlannedStart) {
			return ordered[i].PlannedStart.Before(ordered[j].PlannedStart)
		}
		return ordered[i].Maker < ordered[j].Maker
	})

	var out []model.WorkOrderDraft
	var diags []model.Diagnostic

	for _, d := range ordered {
		corrected, diag := correctOne(d, maint, shift, speed)
		out = append(out, corrected...)
		diags = append(diags, diag...)
	}

	return out, diags
}

// correctOne resolves d (and returns d plus any maintenance-split
// remainders born from it).
func correctOne(d model.WorkOrderDraft, maint MaintenanceLookup, shift ShiftLookup, speed DurationLookup) ([]model.WorkOrderDraft, []model.Diagnostic) {
	machine := d.Maker
	if machine == "" && len(d.MakerCodes) > 0 {
		machine = d.MakerCodes[0]
	}

	required := speed.RequiredDuration(machine, d.ArticleCode, d.InputQuantity, d.PlannedStart)
	s, e := d.PlannedStart, d.PlannedEnd
	if e.Sub(s) < required {
		e = s.Add(required)
	}
	duration := e.Sub(s)

	var remainder *model.WorkOrderDraft
	resolved := false

	for i := 0; i < maxIterations; i++ {
		windows := maint.Overlapping(machine, s, e)
		if len(windows) == 0 {
			resolved = true
			break
		}
		sort.Slice(windows, func(a, b int) bool { return windows[a].Start.Before(windows[b].Start) })
		w := windows[0]

		switch {
		case !w.Start.After(s) && !e.After(w.End):
			// fully contains the order: shift entire order to start at me
			s = w.End
			e = s.Add(duration)

		case w.Start.After(s) && w.Start.Before(e) && !e.After(w.End):
			// window starts inside the order, runs past its end: truncate
			// order end to ms; generate a remainder if time was lost
			truncatedDuration := w.Start.Sub(s)
			e = w.Start
			if truncatedDuration < required {
				rem := d.Clone()
				rem.ID = d.ID + "-mr"
				rem.PlannedStart = w.End
				rem.PlannedEnd = w.End.Add(required - truncatedDuration)
				rem.MaintenanceSplit = true
				rem.History = append(rem.History, model.TransformStep{
					Stage: stageName, Before: d.ID, After: rem.ID,
					Reason: "maintenance-split remainder after truncation",
				})
				remainder = &rem
			}
			resolved = true

		case w.Start.Before(s) && w.End.After(s) && w.End.Before(e):
			// window ends inside the order: shift start to me, preserve
			// duration
			s = w.End
			e = s.Add(duration)

		case w.Start.After(s) && w.End.Before(e):
			// window strictly inside the order: split into a remainder
			// re-scheduled after me (lineage marker "maintenance-split")
			firstPartDuration := w.Start.Sub(s)
			e = w.Start
			rem := d.Clone()
			rem.ID = d.ID + "-mr"
			rem.PlannedStart = w.End
			rem.PlannedEnd = w.End.Add(required - firstPartDuration)
			rem.MaintenanceSplit = true
			rem.History = append(rem.History, model.TransformStep{
				Stage: stageName, Before: d.ID, After: rem.ID,
				Reason: "maintenance-split remainder (window strictly inside order)",
			})
			remainder = &rem
			resolved = true

		default:
			// overlap detected but doesn't match a named case (can occur
			// at exact boundary equalities); nudge past the window and
			// retry.
			s = w.End
			e = s.Add(duration)
		}
	}

	var diags []model.Diagnostic
	if !resolved {
		if len(maint.Overlapping(machine, s, e)) > 0 {
			d.ManualReview = true
			d.ReviewReasons = append(d.ReviewReasons, "unresolved maintenance conflict after 16 iterations")
			diags = append(diags, model.Diagnostic{
				RowNumber: d.RowIndex, Kind: model.DiagOutOfRange, Fatal: false,
				Message: fmt.Sprintf("order %s: maintenance conflict unresolved after %d iterations", d.ID, maxIterations),
			})
		}
	}

	s, e = projectOntoShift(machine, s, e, required, shift)

	final, splitRemainder := cutAtShiftBoundary(d, machine, s, e, shift)

	results := []model.WorkOrderDraft{final}
	if splitRemainder != nil {
		results = append(results, *splitRemainder)
	}
	if remainder != nil {
		remResults, remDiags := correctOne(*remainder, maint, shift, speed)
		results = append(results, remResults...)
		diags = append(diags, remDiags...)
	}

	return results, diags
}

// projectOntoShift moves start forward onto the next shift boundary if it
// currently falls in a gap, extending end by the same amount to preserve
// duration (§4.4 step 2).
func projectOntoShift(machine string, s, e time.Time, required time.Duration, shift ShiftLookup) (time.Time, time.Time) {
	next := shift.NextShiftStart(machine, s)
	if next.Equal(s) {
		return s, e
	}
	return next, next.Add(required)
}

// cutAtShiftBoundary truncates an order at the end of its containing
// shift when it would otherwise cross into a non-contiguous shift,
// producing a remainder for the rest (§4.4 step 3).
func cutAtShiftBoundary(d model.WorkOrderDraft, machine string, s, e time.Time, shift ShiftLookup) (model.WorkOrderDraft, *model.WorkOrderDraft) {
	shiftEnd := shift.ShiftEnd(machine, s)
	if !shiftEnd.After(s) || !e.After(shiftEnd) {
		final := d.Clone()
		final.PlannedStart = s
		final.PlannedEnd = e
		if final.Maker == "" {
			final.Maker = machine
		}
		return final, nil
	}

	final := d.Clone()
	final.PlannedStart = s
	final.PlannedEnd = shiftEnd
	if final.Maker == "" {
		final.Maker = machine
	}

	rem := d.Clone()
	rem.ID = d.ID + "-sr"
	rem.PlannedStart = shiftEnd
	rem.PlannedEnd = shiftEnd.Add(e.Sub(shiftEnd))
	rem.History = append(rem.History, model.TransformStep{
		Stage: stageName, Before: d.ID, After: rem.ID,
		Reason: "cut at shift boundary, continued next shift",
	})

	return final, &rem
}
