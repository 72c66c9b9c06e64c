package emit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pinggolf/aps-scheduler/internal/idgen"
	"github.com/pinggolf/aps-scheduler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memAllocator struct {
	mu   sync.Mutex
	next int64
}

func (a *memAllocator) Next(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	return a.next, nil
}

func newTestFactory() AllocatorFactory {
	allocs := map[string]*memAllocator{}
	var mu sync.Mutex
	return func(prefix idgen.WorkOrderPrefix, dateKey string) SequenceAllocator {
		mu.Lock()
		defer mu.Unlock()
		key := string(prefix) + dateKey
		if allocs[key] == nil {
			allocs[key] = &memAllocator{}
		}
		return allocs[key]
	}
}

func draft(id, maker, feeder, article string, qty int, start time.Time, durationHours float64) model.WorkOrderDraft {
	return model.WorkOrderDraft{
		ID:      id,
		Lineage: []string{id},
		PlanRow: model.PlanRow{
			ArticleCode:   article,
			InputQuantity: qty,
			FinalQuantity: qty,
			PlannedStart:  start,
			PlannedEnd:    start.Add(time.Duration(durationHours * float64(time.Hour))),
		},
		Maker:  maker,
		Feeder: feeder,
	}
}

func TestRunSingleRowPassthrough(t *testing.T) {
	start := time.Date(2024, 11, 10, 6, 40, 0, 0, time.UTC)
	drafts := []model.WorkOrderDraft{
		draft("row-1", "M1", "F1", "ART-A", 525, start, 8),
	}

	res, err := Run(context.Background(), drafts, newTestFactory())
	require.NoError(t, err)

	require.Len(t, res.Makers, 1)
	assert.Equal(t, "HJB202411100001", res.Makers[0].ID)
	assert.Equal(t, 525, res.Makers[0].FinalQuantity)
	assert.Equal(t, 1, res.Makers[0].SequenceWithinDay)

	require.Len(t, res.Feeders, 1)
	assert.Equal(t, "HWS202411100001", res.Feeders[0].ID)
	assert.Equal(t, 552, res.Feeders[0].Quantity) // ceil(525 * 1.05)
	assert.Equal(t, res.Feeders[0].ID, res.Makers[0].FeederOrderID)
}

func TestRunThreeWaySplitQuantities(t *testing.T) {
	start := time.Date(2024, 11, 10, 6, 40, 0, 0, time.UTC)
	drafts := []model.WorkOrderDraft{
		draft("row-1-01", "M1", "F1", "ART-A", 334, start, 3),
		draft("row-1-02", "M2", "F1", "ART-A", 333, start.Add(3*time.Hour), 3),
		draft("row-1-03", "M3", "F1", "ART-A", 333, start.Add(6*time.Hour), 3),
	}

	res, err := Run(context.Background(), drafts, newTestFactory())
	require.NoError(t, err)

	require.Len(t, res.Makers, 3)
	quantities := map[string]int{}
	for _, m := range res.Makers {
		quantities[m.Maker] = m.FinalQuantity
	}
	assert.Equal(t, 334, quantities["M1"])
	assert.Equal(t, 333, quantities["M2"])
	assert.Equal(t, 333, quantities["M3"])

	require.Len(t, res.Feeders, 1, "all three makers share one feeder on the same day")
	assert.Equal(t, 1050, res.Feeders[0].Quantity) // ceil(1000 * 1.05)
}

func TestRunFeederSafetyStockAggregatesAcrossMakers(t *testing.T) {
	start := time.Date(2024, 11, 10, 6, 40, 0, 0, time.UTC)
	drafts := []model.WorkOrderDraft{
		draft("row-a", "M1", "F1", "ART-A", 100, start, 2),
		draft("row-b", "M2", "F1", "ART-A", 200, start.Add(2*time.Hour), 2),
	}

	res, err := Run(context.Background(), drafts, newTestFactory())
	require.NoError(t, err)

	require.Len(t, res.Feeders, 1)
	assert.Equal(t, 315, res.Feeders[0].Quantity) // ceil(300 * 1.05)
	assert.Len(t, res.Feeders[0].RelatedMakers, 2)
}

func TestRunSequenceNumbersAreOneBasedPerMakerPerDay(t *testing.T) {
	start := time.Date(2024, 11, 10, 6, 40, 0, 0, time.UTC)
	drafts := []model.WorkOrderDraft{
		draft("row-1", "M1", "F1", "ART-A", 100, start, 2),
		draft("row-2", "M1", "F1", "ART-B", 100, start.Add(2*time.Hour), 2),
		draft("row-3", "M1", "F1", "ART-C", 100, start.Add(4*time.Hour), 2),
	}

	res, err := Run(context.Background(), drafts, newTestFactory())
	require.NoError(t, err)

	require.Len(t, res.Makers, 3)
	for i, m := range res.Makers {
		assert.Equal(t, i+1, m.SequenceWithinDay)
	}
}

func TestRunWithoutFeederProducesNoFeederOrder(t *testing.T) {
	start := time.Date(2024, 11, 10, 6, 40, 0, 0, time.UTC)
	drafts := []model.WorkOrderDraft{
		draft("row-1", "M1", "", "ART-A", 100, start, 2),
	}

	res, err := Run(context.Background(), drafts, newTestFactory())
	require.NoError(t, err)

	require.Len(t, res.Makers, 1)
	assert.Empty(t, res.Makers[0].FeederOrderID)
	assert.Empty(t, res.Feeders)
}

func TestRunEmitsBackupForMergedCrossMonthOrder(t *testing.T) {
	start := time.Date(2024, 11, 30, 20, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 1, 4, 0, 0, 0, time.UTC)
	merged := model.WorkOrderDraft{
		ID:      "row-1+row-2",
		Lineage: []string{"row-1", "row-2"},
		PlanRow: model.PlanRow{
			ArticleCode:   "ART-A",
			InputQuantity: 200,
			FinalQuantity: 200,
			PlannedStart:  start,
			PlannedEnd:    end,
		},
		Maker:  "M1",
		Feeder: "F1",
	}

	res, err := Run(context.Background(), []model.WorkOrderDraft{merged}, newTestFactory())
	require.NoError(t, err)

	var primaries, backups int
	for _, m := range res.Makers {
		if m.IsBackup {
			backups++
			assert.NotEmpty(t, m.BackupReason)
			assert.Empty(t, m.FeederOrderID)
		} else {
			primaries++
		}
	}
	assert.Equal(t, 1, primaries)
	assert.Equal(t, 1, backups)
}

func TestRunNoBackupForSingleRowOrder(t *testing.T) {
	start := time.Date(2024, 11, 30, 20, 0, 0, 0, time.UTC)
	drafts := []model.WorkOrderDraft{
		draft("row-1", "M1", "F1", "ART-A", 100, start, 8), // crosses midnight, but no merge lineage
	}

	res, err := Run(context.Background(), drafts, newTestFactory())
	require.NoError(t, err)

	for _, m := range res.Makers {
		assert.False(t, m.IsBackup)
	}
}
