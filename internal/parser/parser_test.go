package parser

import (
	"testing"

	"github.com/pinggolf/aps-scheduler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildGrid constructs a grid directly from row data, standing in for a
// decoded workbook so the row-walking logic can be tested independently
// of the xlsx/xls byte formats.
func buildGrid(rows [][]string) *grid {
	cols := 0
	for _, r := range rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	g := newGrid(len(rows), cols)
	for i, r := range rows {
		for j, v := range r {
			g.set(i, j, v)
		}
	}
	return g
}

func TestLocateHeaderByLabel(t *testing.T) {
	g := buildGrid([][]string{
		{"Factory Plan - November"},
		{""},
		{"work order", "article", "feeder", "maker", "input quantity", "final quantity", "date range"},
		{"WO1", "ABC", "F1", "M1", "500", "525", "11.1 - 11.1"},
	})

	header, err := locateHeader(g, maxHeaderScanRows)
	require.NoError(t, err)
	assert.Equal(t, 2, header.Row)
	assert.Equal(t, 0, header.Columns[colWorkOrderID])
	assert.Equal(t, 1, header.Columns[colArticle])
}

func TestLocateHeaderMissingRequiredColumnFails(t *testing.T) {
	g := buildGrid([][]string{
		{"article", "feeder"}, // missing maker/quantities/date range
		{"ABC", "F1"},
	})
	_, err := locateHeader(g, maxHeaderScanRows)
	assert.Error(t, err)
}

func TestParseRowHappyPath(t *testing.T) {
	g := buildGrid([][]string{
		{"work order", "article", "feeder", "maker", "input quantity", "final quantity", "date range"},
		{"WO1", "abc", "F1", "M1", "500", "525", "2024/11/01 - 2024/11/01"},
	})
	header, err := locateHeader(g, maxHeaderScanRows)
	require.NoError(t, err)

	row, diags := parseRow(g, 1, 1, header.Columns, dateRangeDefaults{Cadence: model.CadenceDecade})
	assert.Empty(t, diags)
	assert.Equal(t, model.StatusValid, row.Status)
	assert.Equal(t, "ABC", row.ArticleCode)
	assert.Equal(t, []string{"F1"}, row.FeederCodes)
	assert.Equal(t, []string{"M1"}, row.MakerCodes)
	assert.Equal(t, 500, row.InputQuantity)
	assert.Equal(t, 525, row.FinalQuantity)
}

func TestParseRowMissingMakerIsFatal(t *testing.T) {
	g := buildGrid([][]string{
		{"article", "feeder", "maker", "input quantity", "final quantity", "date range"},
		{"ABC", "F1", "", "500", "525", "2024/11/01 - 2024/11/01"},
	})
	header, err := locateHeader(g, maxHeaderScanRows)
	require.NoError(t, err)

	row, diags := parseRow(g, 1, 1, header.Columns, dateRangeDefaults{})
	require.Len(t, diags, 1)
	assert.True(t, diags[0].Fatal)
	assert.Equal(t, model.StatusError, row.Status)
	assert.False(t, row.Valid())
}

func TestParseRowOutOfRangeQuantityIsWarning(t *testing.T) {
	g := buildGrid([][]string{
		{"article", "feeder", "maker", "input quantity", "final quantity", "date range"},
		{"ABC", "F1", "M1", "500", "100", "2024/11/01 - 2024/11/01"},
	})
	header, err := locateHeader(g, maxHeaderScanRows)
	require.NoError(t, err)

	row, diags := parseRow(g, 1, 1, header.Columns, dateRangeDefaults{})
	require.Len(t, diags, 1)
	assert.False(t, diags[0].Fatal)
	assert.Equal(t, model.StatusWarning, row.Status)
	assert.True(t, row.Valid())
}

func TestGridMergeExpandsValueAcrossRegion(t *testing.T) {
	g := newGrid(3, 3)
	g.set(0, 0, "merged")
	g.applyMerge(0, 0, 1, 1)

	assert.Equal(t, "merged", g.at(0, 0))
	assert.Equal(t, "merged", g.at(0, 1))
	assert.Equal(t, "merged", g.at(1, 0))
	assert.Equal(t, "merged", g.at(1, 1))
	assert.Equal(t, "", g.at(2, 2))
}

func TestBlankRowRunTerminatesTable(t *testing.T) {
	g := buildGrid([][]string{
		{"article", "feeder", "maker", "input quantity", "final quantity", "date range"},
		{"ABC", "F1", "M1", "500", "525", "2024/11/01 - 2024/11/01"},
		{"", "", "", "", "", ""},
		{"", "", "", "", "", ""},
		{"", "", "", "", "", ""},
		{"DEF", "F2", "M2", "300", "315", "2024/11/02 - 2024/11/02"},
	})

	header, err := locateHeader(g, maxHeaderScanRows)
	require.NoError(t, err)

	blankRun := 0
	var seen int
	for r := header.Row + 1; r < g.rowCount(); r++ {
		if g.isBlankRow(r) {
			blankRun++
			if blankRun >= blankRowRunLimit {
				break
			}
			continue
		}
		blankRun = 0
		seen++
	}
	assert.Equal(t, 1, seen, "the row after the 3-blank-row run must not be reached")
}
