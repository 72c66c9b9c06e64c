package idgen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestImportBatchFormat(t *testing.T) {
	at := time.Date(2024, 11, 1, 8, 30, 15, 0, time.UTC)
	id := ImportBatch("decade", at)

	require.Regexp(t, `^decade_20241101_083015_[0-9A-F]{8}$`, id)
}

func TestImportBatchUnique(t *testing.T) {
	at := time.Date(2024, 11, 1, 8, 30, 15, 0, time.UTC)
	require.NotEqual(t, ImportBatch("decade", at), ImportBatch("decade", at))
}

func TestWorkOrderFormat(t *testing.T) {
	date := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "HJB202411010007", WorkOrder(PrefixMaker, date, 7))
	require.Equal(t, "HWS202411010123", WorkOrder(PrefixFeeder, date, 123))
}

func TestMESPlanIDFormat(t *testing.T) {
	require.Equal(t, "HJB000000007", MESPlanID(PrefixMaker, 7))
}
