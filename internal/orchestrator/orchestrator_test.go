package orchestrator

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/pinggolf/aps-scheduler/internal/db"
	"github.com/pinggolf/aps-scheduler/internal/model"
	"github.com/pinggolf/aps-scheduler/internal/refdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	speeds []model.SpeedRule
}

func (f *fakeLoader) ListMachines(ctx context.Context) ([]model.Machine, error) { return nil, nil }
func (f *fakeLoader) ListMachineRelations(ctx context.Context) ([]model.MachineRelation, error) {
	return nil, nil
}
func (f *fakeLoader) ListSpeedRules(ctx context.Context) ([]model.SpeedRule, error) {
	return f.speeds, nil
}
func (f *fakeLoader) ListShiftDefs(ctx context.Context) ([]model.ShiftDef, error) { return nil, nil }
func (f *fakeLoader) ListMaintenanceWindows(ctx context.Context) ([]model.MaintenanceWindow, error) {
	return nil, nil
}

func newTestOrchestrator(t *testing.T, speeds []model.SpeedRule) *Orchestrator {
	t.Helper()
	svc, err := refdata.New(context.Background(), &fakeLoader{speeds: speeds}, time.Hour)
	require.NoError(t, err)
	return &Orchestrator{refdata: svc, idBatchSize: 100, jobContexts: make(map[string]context.CancelFunc)}
}

func TestCapacityFnUsesConfiguredRate(t *testing.T) {
	o := newTestOrchestrator(t, []model.SpeedRule{
		{Machine: "M1", Article: "ABC", RateBoxesPerHour: 100, EfficiencyPct: 0.9},
	})

	capacity := o.capacityFn()
	start := time.Date(2024, 11, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(8 * time.Hour)

	assert.Equal(t, int(100*0.9*8), capacity("M1", "ABC", start, end))
}

func TestCapacityFnZeroForNonPositiveInterval(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	capacity := o.capacityFn()
	start := time.Date(2024, 11, 1, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, capacity("M1", "ABC", start, start))
}

func TestRowToDraftUsesWorkOrderIDWhenPresent(t *testing.T) {
	row := db.PlanRowRow{
		RowIndex:      3,
		WorkOrderID:   "WO-9",
		ArticleCode:   "ABC",
		MakerCodes:    []string{"M1"},
		FeederCodes:   []string{"F1"},
		InputQuantity: 500,
		FinalQuantity: 500,
		PlannedStart:  sql.NullTime{Time: time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC), Valid: true},
		PlannedEnd:    sql.NullTime{Time: time.Date(2024, 11, 1, 23, 59, 0, 0, time.UTC), Valid: true},
		Status:        string(model.StatusValid),
	}

	d := rowToDraft("batch-1", row)
	assert.Equal(t, "WO-9", d.ID)
	assert.Equal(t, []string{"WO-9"}, d.Lineage)
	assert.Equal(t, "M1", d.Maker)
	assert.Equal(t, "F1", d.Feeder)
	assert.Equal(t, "batch-1", d.OriginBatch)
	assert.True(t, d.PlannedStart.Equal(time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)))
}

func TestRowToDraftFallsBackToBatchAndRowIndexWhenNoWorkOrderID(t *testing.T) {
	row := db.PlanRowRow{
		RowIndex: 7,
		Status:   string(model.StatusValid),
	}

	d := rowToDraft("batch-2", row)
	assert.Equal(t, "batch-2-7", d.ID)
	assert.Equal(t, []string{"batch-2-7"}, d.Lineage)
}

func TestRowToDraftLeavesMakerEmptyForMultipleCandidates(t *testing.T) {
	row := db.PlanRowRow{
		RowIndex:   1,
		MakerCodes: []string{"M1", "M2"},
		Status:     string(model.StatusValid),
	}

	d := rowToDraft("batch-3", row)
	assert.Empty(t, d.Maker)
	assert.Equal(t, []string{"M1", "M2"}, d.MakerCodes)
}

func TestNullIfEmpty(t *testing.T) {
	assert.Equal(t, sql.NullString{}, nullIfEmpty(""))
	assert.Equal(t, sql.NullString{String: "x", Valid: true}, nullIfEmpty("x"))
}
