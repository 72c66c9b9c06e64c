// Package merge implements the pipeline's merge stage (§4.2): rows that
// represent the same production commitment split across reporting
// periods collapse into one order via union-find grouping.
package merge

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pinggolf/aps-scheduler/internal/model"
)

const stageName = "merge"

// unionFind is a standard disjoint-set structure over row indices.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}

// eligibilityKey returns the (plan-year, plan-month, article, maker-set,
// feeder-set) key two drafts must share to be merge-eligible.
func eligibilityKey(d model.WorkOrderDraft) string {
	makers := append([]string(nil), d.MakerCodes...)
	feeders := append([]string(nil), d.FeederCodes...)
	sort.Strings(makers)
	sort.Strings(feeders)
	return fmt.Sprintf("%d|%d|%s|%s|%s",
		d.PlannedStart.Year(), d.PlannedStart.Month(), d.ArticleCode,
		strings.Join(makers, ","), strings.Join(feeders, ","))
}

// IDAllocator produces the next merge-result id for a given calendar day,
// formatted M{yyyymmdd}{seq}.
type IDAllocator func(day time.Time) string

// SequentialIDAllocator returns a deterministic IDAllocator backed by an
// in-process counter per day, suitable for one task's single-threaded
// merge pass.
func SequentialIDAllocator() IDAllocator {
	counters := make(map[string]int)
	return func(day time.Time) string {
		key := day.Format("20060102")
		counters[key]++
		return fmt.Sprintf("M%s%d", key, counters[key])
	}
}

// Run groups mergeable drafts and collapses each group of size >= 2 into
// one merged draft; singleton groups pass through unchanged. Processing
// order is deterministic: planned-start ascending, then row-index
// ascending, matching the stage contract.
func Run(drafts []model.WorkOrderDraft, nextID IDAllocator) ([]model.WorkOrderDraft, []model.Diagnostic) {
	if len(drafts) == 0 {
		return nil, nil
	}

	order := make([]int, len(drafts))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := drafts[order[i]], drafts[order[j]]
		if !a.PlannedStart.Equal(b.PlannedStart) {
			return a.PlannedStart.Before(b.PlannedStart)
		}
		return a.RowIndex < b.RowIndex
	})

	keys := make([]string, len(drafts))
	for i := range drafts {
		keys[i] = eligibilityKey(drafts[i])
	}

	uf := newUnionFind(len(drafts))
	byKey := make(map[string]int) // key -> first row index seen, for union edges
	for _, idx := range order {
		if first, ok := byKey[keys[idx]]; ok {
			uf.union(first, idx)
		} else {
			byKey[keys[idx]] = idx
		}
	}

	groups := make(map[int][]int)
	for _, idx := range order {
		root := uf.find(idx)
		groups[root] = append(groups[root], idx)
	}

	rootsByStart := make([]int, 0, len(groups))
	for _, idx := range order {
		if root := uf.find(idx); groups[root][0] == idx {
			rootsByStart = append(rootsByStart, root)
		}
	}
	sort.SliceStable(rootsByStart, func(i, j int) bool {
		return earliestStart(drafts, groups[rootsByStart[i]]).Before(earliestStart(drafts, groups[rootsByStart[j]]))
	})

	var out []model.WorkOrderDraft
	var diags []model.Diagnostic

	for _, root := range rootsByStart {
		members := groups[root]
		if len(members) == 1 {
			out = append(out, drafts[members[0]])
			continue
		}

		merged, diag, ok := mergeGroup(drafts, members, nextID)
		if diag != nil {
			diags = append(diags, *diag)
		}
		if ok {
			out = append(out, merged)
		} else {
			// failure semantics: emit members unmerged with a warning
			out = append(out, membersOf(drafts, members)...)
		}
	}

	return out, diags
}

func earliestStart(drafts []model.WorkOrderDraft, members []int) time.Time {
	best := drafts[members[0]].PlannedStart
	for _, m := range members[1:] {
		if drafts[m].PlannedStart.Before(best) {
			best = drafts[m].PlannedStart
		}
	}
	return best
}

func membersOf(drafts []model.WorkOrderDraft, idxs []int) []model.WorkOrderDraft {
	out := make([]model.WorkOrderDraft, len(idxs))
	for i, idx := range idxs {
		out[i] = drafts[idx]
	}
	return out
}

func mergeGroup(drafts []model.WorkOrderDraft, members []int, nextID IDAllocator) (model.WorkOrderDraft, *model.Diagnostic, bool) {
	sort.SliceStable(members, func(i, j int) bool {
		return drafts[members[i]].PlannedStart.Before(drafts[members[j]].PlannedStart)
	})
	earliest := drafts[members[0]]

	start := drafts[members[0]].PlannedStart
	end := drafts[members[0]].PlannedEnd
	var inputSum, finalSum int64
	lineage := make([]string, 0, len(members))

	for _, idx := range members {
		d := drafts[idx]
		if d.PlannedStart.Before(start) {
			start = d.PlannedStart
		}
		if d.PlannedEnd.After(end) {
			end = d.PlannedEnd
		}
		inputSum += int64(d.InputQuantity)
		finalSum += int64(d.FinalQuantity)
		if d.WorkOrderID != "" {
			lineage = append(lineage, d.WorkOrderID)
		} else {
			lineage = append(lineage, d.ID)
		}
	}

	if inputSum > math.MaxInt32 || finalSum > math.MaxInt32 {
		return model.WorkOrderDraft{}, &model.Diagnostic{
			RowNumber: earliest.RowIndex,
			Kind:      model.DiagOutOfRange,
			Message:   fmt.Sprintf("merge of %d rows would overflow quantity; emitted unmerged", len(members)),
			Fatal:     false,
		}, false
	}

	merged := earliest.Clone()
	merged.ID = nextID(start)
	merged.PlannedStart = start
	merged.PlannedEnd = end
	merged.InputQuantity = int(inputSum)
	merged.FinalQuantity = int(finalSum)
	merged.Lineage = lineage
	merged.History = append(merged.History, model.TransformStep{
		Stage:  stageName,
		Before: fmt.Sprintf("%d rows", len(members)),
		After:  merged.ID,
		Reason: "merged rows sharing plan-year/month/article/maker-set/feeder-set",
	})

	return merged, nil, true
}
