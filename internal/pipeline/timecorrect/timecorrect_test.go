package timecorrect

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

type fakeShift struct{}

func (f *fakeShift) InShift(machine string, t time.Time) (model.ShiftDef, bool) {
	return model.ShiftDef{Name: "all-day", Start: 0, End: 24 * time.Hour}, true
}
func (f *fakeShift) NextShiftStart(machine string, t time.Time) time.Time { return t }
func (f *fakeShift) ShiftEnd(machine string, t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.Add(24 * time.Hour)
}

type fakeSpeed struct {
	hours float64
}

func (f *fakeSpeed) RequiredDuration(machine, article string, quantity int, t time.Time) time.Duration {
	return time.Duration(f.hours * float64(time.Hour))
}

func TestTimeCorrectMaintenanceShift_S4(t *testing.T) {
	d := model.WorkOrderDraft{
		ID: "M1ORDER",
		PlanRow: model.PlanRow{
			ArticleCode:  "ABC",
			PlannedStart: time.Date(2024, 11, 10, 8, 0, 0, 0, time.UTC),
			PlannedEnd:   time.Date(2024, 11, 10, 12, 0, 0, 0, time.UTC),
		},
		Maker: "M1",
	}

	maint := &fakeMaint{windows: map[string][]model.MaintenanceWindow{
		"M1": {{Machine: "M1", Start: time.Date(2024, 11, 10, 7, 0, 0, 0, time.UTC), End: time.Date(2024, 11, 10, 9, 0, 0, 0, time.UTC)}},
	}}
	speed := &fakeSpeed{hours: 3}

	out, diags := Run([]model.WorkOrderDraft{d}, maint, &fakeShift{}, speed)
	require.Empty(t, diags)
	require.Len(t, out, 1)
	assert.Equal(t, time.Date(2024, 11, 10, 9, 0, 0, 0, time.UTC), out[0].PlannedStart)
	assert.Equal(t, time.Date(2024, 11, 10, 13, 0, 0, 0, time.UTC), out[0].PlannedEnd)
}

func TestTimeCorrectNoConflictPassesThrough(t *testing.T) {
	d := model.WorkOrderDraft{
		ID:    "M1ORDER",
		Maker: "M1",
		PlanRow: model.PlanRow{
			PlannedStart: time.Date(2024, 11, 10, 8, 0, 0, 0, time.UTC),
			PlannedEnd:   time.Date(2024, 11, 10, 12, 0, 0, 0, time.UTC),
		},
	}
	maint := &fakeMaint{}
	speed := &fakeSpeed{hours: 3}

	out, diags := Run([]model.WorkOrderDraft{d}, maint, &fakeShift{}, speed)
	require.Empty(t, diags)
	require.Len(t, out, 1)
	assert.Equal(t, d.PlannedStart, out[0].PlannedStart)
	assert.Equal(t, d.PlannedEnd, out[0].PlannedEnd)
}

func TestTimeCorrectExtendsForInadequateDuration(t *testing.T) {
	d := model.WorkOrderDraft{
		ID:    "M1ORDER",
		Maker: "M1",
		PlanRow: model.PlanRow{
			PlannedStart: time.Date(2024, 11, 10, 8, 0, 0, 0, time.UTC),
			PlannedEnd:   time.Date(2024, 11, 10, 9, 0, 0, 0, time.UTC),
		},
	}
	maint := &fakeMaint{}
	speed := &fakeSpeed{hours: 3}

	out, _ := Run([]model.WorkOrderDraft{d}, maint, &fakeShift{}, speed)
	require.Len(t, out, 1)
	assert.Equal(t, 3*time.Hour, out[0].PlannedEnd.Sub(out[0].PlannedStart))
}

func TestTimeCorrectFullyContainedWindowShiftsOrder(t *testing.T) {
	d := model.WorkOrderDraft{
		ID:    "M1ORDER",
		Maker: "M1",
		PlanRow: model.PlanRow{
			PlannedStart: time.Date(2024, 11, 10, 8, 0, 0, 0, time.UTC),
			PlannedEnd:   time.Date(2024, 11, 10, 12, 0, 0, 0, time.UTC),
		},
	}
	maint := &fakeMaint{windows: map[string][]model.MaintenanceWindow{
		"M1": {{Machine: "M1", Start: time.Date(2024, 11, 10, 8, 0, 0, 0, time.UTC), End: time.Date(2024, 11, 10, 10, 0, 0, 0, time.UTC)}},
	}}
	speed := &fakeSpeed{hours: 3}

	out, diags := Run([]model.WorkOrderDraft{d}, maint, &fakeShift{}, speed)
	require.Empty(t, diags)
	require.Len(t, out, 1)
	assert.Equal(t, time.Date(2024, 11, 10, 10, 0, 0, 0, time.UTC), out[0].PlannedStart)
	assert.Equal(t, 4*time.Hour, out[0].PlannedEnd.Sub(out[0].PlannedStart))
}
