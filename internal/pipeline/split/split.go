// Package split implements the pipeline's split stage (§4.3): an order
// targeting multiple maker machines becomes one order per maker, each
// referencing the shared feeder.
package split

import (
	"fmt"
	"sort"
	"time"

	"github.com/pinggolf/aps-scheduler/internal/model"
)

const stageName = "split"

// CapacityFn computes the single-machine daily capacity for (maker,
// article) over the order's interval, used to decide whether an order
// must be split even when it already names one maker.
type CapacityFn func(maker, article string, start, end time.Time) int

// Trigger reports whether d must be split: more than one maker, quantity
// exceeds single-machine capacity, or the interval exceeds one shift
// (approximated here as more than maxShiftHours).
func Trigger(d model.WorkOrderDraft, capacity CapacityFn, maxShiftHours float64) bool {
	if len(d.MakerCodes) > 1 {
		return true
	}
	if len(d.MakerCodes) == 1 && capacity != nil {
		cap := capacity(d.MakerCodes[0], d.ArticleCode, d.PlannedStart, d.PlannedEnd)
		if cap > 0 && d.InputQuantity > cap {
			return true
		}
	}
	if d.PlannedEnd.Sub(d.PlannedStart).Hours() > maxShiftHours {
		return true
	}
	return false
}

// Run splits every draft that Trigger flags into one child per maker
// code; drafts that don't trigger pass through unchanged (still assigned
// their single maker/feeder for downstream stages).
func Run(drafts []model.WorkOrderDraft, capacity CapacityFn, maxShiftHours float64) ([]model.WorkOrderDraft, []model.Diagnostic) {
	var out []model.WorkOrderDraft
	var diags []model.Diagnostic

	for _, d := range drafts {
		if !Trigger(d, capacity, maxShiftHours) {
			child := d.Clone()
			if len(child.MakerCodes) == 1 {
				child.Maker = child.MakerCodes[0]
			}
			if len(child.FeederCodes) >= 1 {
				child.Feeder = child.FeederCodes[0]
			}
			out = append(out, child)
			continue
		}

		children, diag := splitOne(d)
		diags = append(diags, diag...)
		out = append(out, children...)
	}

	return out, diags
}

func splitOne(d model.WorkOrderDraft) ([]model.WorkOrderDraft, []model.Diagnostic) {
	makers := append([]string(nil), d.MakerCodes...)
	sort.Strings(makers)
	n := len(makers)
	if n == 0 {
		return nil, []model.Diagnostic{{
			RowNumber: d.RowIndex, Kind: model.DiagMissing,
			Message: "split triggered but no maker codes present", Fatal: true,
		}}
	}

	feeder := ""
	if len(d.FeederCodes) > 0 {
		feeder = d.FeederCodes[0]
	}

	inputBase, inputRem := d.InputQuantity/n, d.InputQuantity%n
	finalBase, finalRem := d.FinalQuantity/n, d.FinalQuantity%n

	children := make([]model.WorkOrderDraft, 0, n)
	for i, maker := range makers {
		child := d.Clone()
		child.ID = fmt.Sprintf("%s-%02d", d.ID, i+1)
		child.Maker = maker
		child.Feeder = feeder
		child.MakerCodes = []string{maker}
		child.SplitParent = d.ID
		child.SplitIndex = i + 1

		inputQty := inputBase
		finalQty := finalBase
		if i < inputRem {
			inputQty++
		}
		if i < finalRem {
			finalQty++
		}
		child.InputQuantity = inputQty
		child.FinalQuantity = finalQty

		child.History = append(child.History, model.TransformStep{
			Stage:  stageName,
			Before: d.ID,
			After:  child.ID,
			Reason: fmt.Sprintf("split %d of %d makers", i+1, n),
		})

		children = append(children, child)
	}

	return children, nil
}
