package split

import (
	"testing"
	"time"

	"github.com/pinggolf/aps-scheduler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitThreeMakers_S3(t *testing.T) {
	d := model.WorkOrderDraft{
		ID: "WO1",
		PlanRow: model.PlanRow{
			ArticleCode:   "ABC",
			MakerCodes:    []string{"M1", "M2", "M3"},
			FeederCodes:   []string{"F1"},
			InputQuantity: 1000,
			FinalQuantity: 1000,
			PlannedStart:  time.Date(2024, 11, 1, 8, 0, 0, 0, time.UTC),
			PlannedEnd:    time.Date(2024, 11, 1, 16, 0, 0, 0, time.UTC),
		},
	}

	out, diags := Run([]model.WorkOrderDraft{d}, nil, 24)
	require.Empty(t, diags)
	require.Len(t, out, 3)

	quantities := make([]int, 3)
	for i, c := range out {
		quantities[i] = c.InputQuantity
		assert.Equal(t, d.PlannedStart, c.PlannedStart)
		assert.Equal(t, d.PlannedEnd, c.PlannedEnd)
		assert.Equal(t, "F1", c.Feeder)
	}
	assert.Equal(t, []int{334, 333, 333}, quantities)

	assert.Equal(t, "WO1-01", out[0].ID)
	assert.Equal(t, "WO1-02", out[1].ID)
	assert.Equal(t, "WO1-03", out[2].ID)

	sum := 0
	for _, c := range out {
		sum += c.InputQuantity
	}
	assert.Equal(t, d.InputQuantity, sum)
}

func TestSplitSingleMakerPassesThrough(t *testing.T) {
	d := model.WorkOrderDraft{
		ID: "WO1",
		PlanRow: model.PlanRow{
			MakerCodes:    []string{"M1"},
			FeederCodes:   []string{"F1"},
			InputQuantity: 500,
			FinalQuantity: 500,
			PlannedStart:  time.Date(2024, 11, 1, 8, 0, 0, 0, time.UTC),
			PlannedEnd:    time.Date(2024, 11, 1, 16, 0, 0, 0, time.UTC),
		},
	}

	out, diags := Run([]model.WorkOrderDraft{d}, nil, 24)
	require.Empty(t, diags)
	require.Len(t, out, 1)
	assert.Equal(t, "WO1", out[0].ID)
	assert.Equal(t, "M1", out[0].Maker)
	assert.Equal(t, "F1", out[0].Feeder)
}

func TestSplitTriggeredByCapacity(t *testing.T) {
	d := model.WorkOrderDraft{
		ID: "WO1",
		PlanRow: model.PlanRow{
			MakerCodes:    []string{"M1"},
			FeederCodes:   []string{"F1"},
			InputQuantity: 5000,
			PlannedStart:  time.Date(2024, 11, 1, 8, 0, 0, 0, time.UTC),
			PlannedEnd:    time.Date(2024, 11, 1, 16, 0, 0, 0, time.UTC),
		},
	}
	capacity := func(maker, article string, start, end time.Time) int { return 1000 }

	out, _ := Run([]model.WorkOrderDraft{d}, capacity, 24)
	require.Len(t, out, 1)
	assert.Equal(t, "WO1-01", out[0].ID)
}
