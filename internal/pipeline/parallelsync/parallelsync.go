// Package parallelsync implements the pipeline's parallel-synchronization
// stage (§4.5): children of the same split must start and end together,
// and orders sharing a feeder must not overlap in time on that feeder.
package parallelsync

import (
	"sort"
	"time"

	"github.com/pinggolf/aps-scheduler/internal/model"
)

const stageName = "parallelsync"

// FeederChangeoverDefault is the Δ used between consecutive orders on one
// feeder when no configuration overrides it (§4.5).
const FeederChangeoverDefault = 15 * time.Minute

const maxOuterPasses = 3
const maxSyncRetries = 16

// MaintenanceLookup resolves overlapping downtime windows for a machine.
type MaintenanceLookup interface {
	Overlapping(machine string, s, e time.Time) []model.MaintenanceWindow
}

// DurationLookup computes the required production duration for a
// machine/article/quantity triple.
type DurationLookup interface {
	RequiredDuration(machine, article string, quantity int, t time.Time) time.Duration
}

// Run synchronizes parallel split-groups and chains feeder orders,
// alternating up to maxOuterPasses times. Orders left inconsistent after
// that are marked manual-review rather than silently emitted.
func Run(drafts []model.WorkOrderDraft, maint MaintenanceLookup, speed DurationLookup, feederChangeover time.Duration) ([]model.WorkOrderDraft, []model.Diagnostic) {
	if feederChangeover <= 0 {
		feederChangeover = FeederChangeoverDefault
	}

	out := append([]model.WorkOrderDraft(nil), drafts...)
	var diags []model.Diagnostic

	for pass := 0; pass < maxOuterPasses; pass++ {
		changedParallel := syncParallelGroups(out, maint, speed)
		changedSequential := chainFeeders(out, feederChangeover)
		if !changedParallel && !changedSequential {
			break
		}
	}

	// final stability check: any group still split or any feeder overlap
	// gets flagged manual-review.
	diags = append(diags, flagUnstable(out, feederChangeover)...)

	return out, diags
}

func machineOf(d model.WorkOrderDraft) string {
	if d.Maker != "" {
		return d.Maker
	}
	if len(d.MakerCodes) > 0 {
		return d.MakerCodes[0]
	}
	return ""
}

// syncParallelGroups rewrites every member of a split group with a
// unified start/end, reports whether anything changed.
func syncParallelGroups(drafts []model.WorkOrderDraft, maint MaintenanceLookup, speed DurationLookup) bool {
	groups := make(map[string][]int)
	for i, d := range drafts {
		if d.SplitParent == "" {
			continue
		}
		groups[d.SplitParent] = append(groups[d.SplitParent], i)
	}

	changed := false
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		if syncOneGroup(drafts, members, maint, speed) {
			changed = true
		}
	}
	return changed
}

func syncOneGroup(drafts []model.WorkOrderDraft, members []int, maint MaintenanceLookup, speed DurationLookup) bool {
	unifiedStart := drafts[members[0]].PlannedStart
	for _, idx := range members[1:] {
		if drafts[idx].PlannedStart.After(unifiedStart) {
			unifiedStart = drafts[idx].PlannedStart
		}
	}

	var required time.Duration
	for _, idx := range members {
		d := drafts[idx]
		r := speed.RequiredDuration(machineOf(d), d.ArticleCode, d.InputQuantity, unifiedStart)
		if r > required {
			required = r
		}
	}

	feasible := false
	for retry := 0; retry < maxSyncRetries; retry++ {
		unifiedEnd := unifiedStart.Add(required)
		conflict := false
		for _, idx := range members {
			d := drafts[idx]
			if len(maint.Overlapping(machineOf(d), unifiedStart, unifiedEnd)) > 0 {
				conflict = true
				break
			}
		}
		if !conflict {
			feasible = true
			break
		}

		next := unifiedStart
		for _, idx := range members {
			d := drafts[idx]
			for _, w := range maint.Overlapping(machineOf(d), unifiedStart, unifiedStart.Add(required)) {
				if w.End.After(next) {
					next = w.End
				}
			}
		}
		if !next.After(unifiedStart) {
			break
		}
		unifiedStart = next
	}

	changed := false
	unifiedEnd := unifiedStart.Add(required)
	for _, idx := range members {
		if !drafts[idx].PlannedStart.Equal(unifiedStart) || !drafts[idx].PlannedEnd.Equal(unifiedEnd) {
			changed = true
		}
		drafts[idx].PlannedStart = unifiedStart
		drafts[idx].PlannedEnd = unifiedEnd
		drafts[idx].History = append(drafts[idx].History, model.TransformStep{
			Stage: stageName, After: "unified interval", Reason: "parallel-group synchronization",
		})
		if !feasible {
			drafts[idx].ManualReview = true
			drafts[idx].ReviewReasons = append(drafts[idx].ReviewReasons, "no feasible unified interval within retry bound")
		}
	}

	return changed
}

// chainUnit is one schedulable entity on a feeder: either a single draft,
// or every sibling produced by the same split (they occupy the feeder
// simultaneously and move together).
type chainUnit struct {
	key      string // splitParent, or the draft ID if ungrouped
	members []int
	priority int
	start    time.Time
	end      time.Time
}

// chainFeeders walks each feeder's schedulable units in priority/start
// order and shifts later ones right to maintain the changeover gap,
// carrying every split-group sibling along together. Returns whether
// anything changed.
func chainFeeders(drafts []model.WorkOrderDraft, changeover time.Duration) bool {
	chains := make(map[string][]string) // feeder -> unit keys, first-seen order
	units := make(map[string]*chainUnit)

	for i, d := range drafts {
		if d.Feeder == "" {
			continue
		}
		key := d.SplitParent
		if key == "" {
			key = d.ID
		}
		u, ok := units[key]
		if !ok {
			u = &chainUnit{key: key, priority: d.Priority, start: d.PlannedStart, end: d.PlannedEnd}
			units[key] = u
			chains[d.Feeder] = append(chains[d.Feeder], key)
		}
		u.members = append(u.members, i)
		if d.PlannedStart.Before(u.start) {
			u.start = d.PlannedStart
		}
		if d.PlannedEnd.After(u.end) {
			u.end = d.PlannedEnd
		}
	}

	changed := false
	for _, keys := range chains {
		sort.Slice(keys, func(a, b int) bool {
			ua, ub := units[keys[a]], units[keys[b]]
			if ua.priority != ub.priority {
				return ua.priority < ub.priority
			}
			return ua.start.Before(ub.start)
		})

		for i := 1; i < len(keys); i++ {
			prev := units[keys[i-1]]
			cur := units[keys[i]]
			minStart := prev.end.Add(changeover)
			if cur.start.Before(minStart) {
				shift := minStart.Sub(cur.start)
				for _, idx := range cur.members {
					drafts[idx].PlannedStart = drafts[idx].PlannedStart.Add(shift)
					drafts[idx].PlannedEnd = drafts[idx].PlannedEnd.Add(shift)
				}
				cur.start = cur.start.Add(shift)
				cur.end = cur.end.Add(shift)
				changed = true
			}
		}
	}
	return changed
}

// flagUnstable marks manual-review on any order still violating the
// parallel-equality or feeder-non-overlap invariants after the outer pass
// budget is exhausted.
func flagUnstable(drafts []model.WorkOrderDraft, changeover time.Duration) []model.Diagnostic {
	var diags []model.Diagnostic

	groups := make(map[string][]int)
	for i, d := range drafts {
		if d.SplitParent != "" {
			groups[d.SplitParent] = append(groups[d.SplitParent], i)
		}
	}
	for parent, members := range groups {
		if len(members) < 2 {
			continue
		}
		start := drafts[members[0]].PlannedStart
		end := drafts[members[0]].PlannedEnd
		unstable := false
		for _, idx := range members[1:] {
			if !drafts[idx].PlannedStart.Equal(start) || !drafts[idx].PlannedEnd.Equal(end) {
				unstable = true
			}
		}
		if unstable {
			for _, idx := range members {
				drafts[idx].ManualReview = true
				drafts[idx].ReviewReasons = append(drafts[idx].ReviewReasons, "parallel group unstable after outer pass budget")
			}
			diags = append(diags, model.Diagnostic{
				Kind: model.DiagOutOfRange, Fatal: false,
				Message: "parallel group " + parent + " did not converge within pass budget",
			})
		}
	}

	chains := make(map[string][]int)
	for i, d := range drafts {
		if d.Feeder != "" {
			chains[d.Feeder] = append(chains[d.Feeder], i)
		}
	}
	for feeder, members := range chains {
		sort.Slice(members, func(a, b int) bool { return drafts[members[a]].PlannedStart.Before(drafts[members[b]].PlannedStart) })
		for i := 1; i < len(members); i++ {
			prev := drafts[members[i-1]]
			cur := drafts[members[i]]
			if cur.SplitParent != "" && cur.SplitParent == prev.SplitParent {
				// split siblings occupy the feeder together (see chainUnit);
				// their equality is checked by the group pass above
				continue
			}
			if cur.PlannedStart.Before(prev.PlannedEnd.Add(changeover)) {
				drafts[members[i]].ManualReview = true
				drafts[members[i]].ReviewReasons = append(drafts[members[i]].ReviewReasons, "feeder overlap unresolved after pass budget")
				diags = append(diags, model.Diagnostic{
					Kind: model.DiagOutOfRange, Fatal: false,
					Message: "feeder " + feeder + " chain still overlapping after pass budget",
				})
			}
		}
	}

	return diags
}
