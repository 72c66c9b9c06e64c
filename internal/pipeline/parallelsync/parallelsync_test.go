package parallelsync

import (
	"testing"
	"time"

	"github.com/pinggolf/aps-scheduler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMaint struct {
	windows map[string][]model.MaintenanceWindow
}

func (f *fakeMaint) Overlapping(machine string, s, e time.Time) []model.MaintenanceWindow {
	var out []model.MaintenanceWindow
	for _, w := range f.windows[machine] {
		if w.Overlaps(s, e) {
			out = append(out, w)
		}
	}
	return out
}

type fakeSpeed struct {
	hours map[string]float64
}

func (f *fakeSpeed) RequiredDuration(machine, article string, quantity int, t time.Time) time.Duration {
	h, ok := f.hours[machine]
	if !ok {
		h = 4
	}
	return time.Duration(h * float64(time.Hour))
}

// TestParallelSync_S5 mirrors the split-group asymmetric-maintenance
// scenario: two machines sharing a split parent, one of them has a
// maintenance window that pushes the feasible start later; both children
// must end up with the same unified interval.
func TestParallelSync_S5(t *testing.T) {
	base := time.Date(2024, 11, 10, 8, 0, 0, 0, time.UTC)
	d1 := model.WorkOrderDraft{
		ID: "WO1-01", Maker: "M1", Feeder: "F1", SplitParent: "WO1",
		PlanRow: model.PlanRow{PlannedStart: base, PlannedEnd: base.Add(4 * time.Hour)},
	}
	d2 := model.WorkOrderDraft{
		ID: "WO1-02", Maker: "M2", Feeder: "F1", SplitParent: "WO1",
		PlanRow: model.PlanRow{PlannedStart: base, PlannedEnd: base.Add(4 * time.Hour)},
	}

	maint := &fakeMaint{windows: map[string][]model.MaintenanceWindow{
		"M2": {{Machine: "M2", Start: base, End: base.Add(2 * time.Hour)}},
	}}
	speed := &fakeSpeed{hours: map[string]float64{"M1": 4, "M2": 4}}

	out, diags := Run([]model.WorkOrderDraft{d1, d2}, maint, speed, 15*time.Minute)
	require.Empty(t, diags)
	require.Len(t, out, 2)

	assert.Equal(t, out[0].PlannedStart, out[1].PlannedStart)
	assert.Equal(t, out[0].PlannedEnd, out[1].PlannedEnd)
	assert.Equal(t, base.Add(2*time.Hour), out[0].PlannedStart)
	assert.Equal(t, 4*time.Hour, out[0].PlannedEnd.Sub(out[0].PlannedStart))
	for _, o := range out {
		assert.False(t, o.ManualReview)
	}
}

// TestParallelSync_S6 mirrors the feeder-chain scenario: two unrelated
// orders sharing a feeder must not overlap, and the second must start no
// earlier than the first's end plus the changeover gap.
func TestParallelSync_S6(t *testing.T) {
	base := time.Date(2024, 11, 10, 8, 0, 0, 0, time.UTC)
	first := model.WorkOrderDraft{
		ID: "WO1", Maker: "M1", Feeder: "F1", Priority: 5,
		PlanRow: model.PlanRow{PlannedStart: base, PlannedEnd: base.Add(4 * time.Hour)},
	}
	second := model.WorkOrderDraft{
		ID: "WO2", Maker: "M2", Feeder: "F1", Priority: 5,
		PlanRow: model.PlanRow{PlannedStart: base.Add(3 * time.Hour), PlannedEnd: base.Add(7 * time.Hour)},
	}

	maint := &fakeMaint{}
	speed := &fakeSpeed{hours: map[string]float64{"M1": 4, "M2": 4}}

	out, diags := Run([]model.WorkOrderDraft{first, second}, maint, speed, 15*time.Minute)
	require.Empty(t, diags)
	require.Len(t, out, 2)

	var firstOut, secondOut model.WorkOrderDraft
	for _, o := range out {
		if o.ID == "WO1" {
			firstOut = o
		} else {
			secondOut = o
		}
	}
	assert.True(t, !secondOut.PlannedStart.Before(firstOut.PlannedEnd.Add(15*time.Minute)))
	assert.Equal(t, 4*time.Hour, secondOut.PlannedEnd.Sub(secondOut.PlannedStart))
}

func TestParallelSync_NoGroupsOrChainsPassesThrough(t *testing.T) {
	base := time.Date(2024, 11, 10, 8, 0, 0, 0, time.UTC)
	d := model.WorkOrderDraft{
		ID: "WO1", Maker: "M1",
		PlanRow: model.PlanRow{PlannedStart: base, PlannedEnd: base.Add(4 * time.Hour)},
	}
	maint := &fakeMaint{}
	speed := &fakeSpeed{}

	out, diags := Run([]model.WorkOrderDraft{d}, maint, speed, 15*time.Minute)
	require.Empty(t, diags)
	require.Len(t, out, 1)
	assert.Equal(t, d.PlannedStart, out[0].PlannedStart)
	assert.Equal(t, d.PlannedEnd, out[0].PlannedEnd)
}

// TestParallelSync_ShiftCarriesSplitSiblings ensures that when a
// feeder-chain shift applies to one member of a parallel split group, its
// sibling (sharing the same feeder via a different chain slot) is shifted
// by the same delta so the group stays synchronized.
func TestParallelSync_ShiftCarriesSplitSiblings(t *testing.T) {
	base := time.Date(2024, 11, 10, 8, 0, 0, 0, time.UTC)
	// Two groups on the same feeder: group "WO1" (two makers) must run
	// before group "WO2" starts, but WO2 is requested to start inside
	// WO1's window; it must be pushed out and WO1 has no maintenance.
	a1 := model.WorkOrderDraft{
		ID: "WO1-01", Maker: "M1", Feeder: "F1", SplitParent: "WO1", Priority: 1,
		PlanRow: model.PlanRow{PlannedStart: base, PlannedEnd: base.Add(4 * time.Hour)},
	}
	a2 := model.WorkOrderDraft{
		ID: "WO1-02", Maker: "M2", Feeder: "F1", SplitParent: "WO1", Priority: 1,
		PlanRow: model.PlanRow{PlannedStart: base, PlannedEnd: base.Add(4 * time.Hour)},
	}
	b := model.WorkOrderDraft{
		ID: "WO2", Maker: "M3", Feeder: "F1", Priority: 2,
		PlanRow: model.PlanRow{PlannedStart: base.Add(time.Hour), PlannedEnd: base.Add(5 * time.Hour)},
	}

	maint := &fakeMaint{}
	speed := &fakeSpeed{hours: map[string]float64{"M1": 4, "M2": 4, "M3": 4}}

	out, diags := Run([]model.WorkOrderDraft{a1, a2, b}, maint, speed, 15*time.Minute)
	require.Empty(t, diags)
	require.Len(t, out, 3)

	byID := map[string]model.WorkOrderDraft{}
	for _, o := range out {
		byID[o.ID] = o
	}
	assert.Equal(t, byID["WO1-01"].PlannedStart, byID["WO1-02"].PlannedStart)
	assert.Equal(t, byID["WO1-01"].PlannedEnd, byID["WO1-02"].PlannedEnd)
	assert.True(t, !byID["WO2"].PlannedStart.Before(byID["WO1-01"].PlannedEnd.Add(15*time.Minute)))
}
