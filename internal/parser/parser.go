package parser

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/pinggolf/aps-scheduler/internal/model"
)

// maxHeaderScanRows bounds how many leading rows the header locator will
// inspect before giving up (banners, titles, and blank rows above the
// table are common in source workbooks).
const maxHeaderScanRows = 20

// blankRowRunLimit is how many consecutive blank rows terminate the data
// table.
const blankRowRunLimit = 3

// ParseResult is everything the parser produces for one workbook.
type ParseResult struct {
	Rows        []model.PlanRow
	Diagnostics []model.Diagnostic
}

// Options configures a single Parse invocation.
type Options struct {
	Cadence  model.Cadence
	PlanYear int
	// PlanDecadeStart anchors "missing year" resolution for decade-cadence
	// date ranges (§4.1: "next ten-day period").
	PlanDecadeStart time.Time
}

// Parse extracts PlanRows from workbook bytes. filename's extension
// selects the xlsx or xls decoder. A *StructuralError means the file
// could not be read at all or no header row was found; any other
// anomalies are reported as row-level Diagnostics attached to the
// returned rows.
func Parse(data []byte, filename string, opts Options) (*ParseResult, error) {
	g, err := readGrid(data, filename)
	if err != nil {
		return nil, &StructuralError{Reason: "unreadable workbook", Cause: err}
	}

	header, err := locateHeader(g, maxHeaderScanRows)
	if err != nil {
		return nil, &StructuralError{Reason: "header row not found", Cause: err}
	}

	result := &ParseResult{}
	blankRun := 0
	dateDefaults := dateRangeDefaults{
		Cadence:         opts.Cadence,
		PlanYear:        opts.PlanYear,
		PlanDecadeStart: opts.PlanDecadeStart,
	}

	rowIndex := 0
	for r := header.Row + 1; r < g.rowCount(); r++ {
		if g.isBlankRow(r) {
			blankRun++
			if blankRun >= blankRowRunLimit {
				break
			}
			continue
		}
		blankRun = 0

		rowIndex++
		row, diags := parseRow(g, r, rowIndex, header.Columns, dateDefaults)
		result.Rows = append(result.Rows, row)
		result.Diagnostics = append(result.Diagnostics, diags...)
	}

	return result, nil
}

func readGrid(data []byte, filename string) (*grid, error) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".xlsx"):
		return xlsxReadGrid(bytes.NewReader(data), int64(len(data)))
	case strings.HasSuffix(lower, ".xls"):
		return xlsReadGrid(data)
	default:
		// fall back to sniffing: OOXML files are zips (signature "PK");
		// anything else is assumed legacy BIFF8.
		if len(data) >= 2 && data[0] == 'P' && data[1] == 'K' {
			return xlsxReadGrid(bytes.NewReader(data), int64(len(data)))
		}
		return xlsReadGrid(data)
	}
}

func cellAt(g *grid, row int, cols map[column]int, col column) string {
	idx, ok := cols[col]
	if !ok {
		return ""
	}
	return trimAll(g.at(row, idx))
}

func parseRow(g *grid, r, rowIndex int, cols map[column]int, dateDefaults dateRangeDefaults) (model.PlanRow, []model.Diagnostic) {
	row := model.PlanRow{RowIndex: rowIndex, Status: model.StatusValid}
	var diags []model.Diagnostic

	fatal := func(label string, kind model.DiagnosticKind, original, msg string) {
		diags = append(diags, model.Diagnostic{
			RowNumber: rowIndex, ColumnLabel: label, Kind: kind, OriginalValue: original, Message: msg, Fatal: true,
		})
		row.Status = model.StatusError
	}
	warn := func(label string, kind model.DiagnosticKind, original, msg string) {
		diags = append(diags, model.Diagnostic{
			RowNumber: rowIndex, ColumnLabel: label, Kind: kind, OriginalValue: original, Message: msg, Fatal: false,
		})
		if row.Status == model.StatusValid {
			row.Status = model.StatusWarning
		}
	}

	row.WorkOrderID = cellAt(g, r, cols, colWorkOrderID)
	row.PackageType = cellAt(g, r, cols, colPackageType)
	row.Specification = cellAt(g, r, cols, colSpecification)
	row.ProductionUnit = cellAt(g, r, cols, colProductionUnit)

	articleRaw := cellAt(g, r, cols, colArticle)
	if articleRaw == "" {
		fatal("article", model.DiagMissing, articleRaw, "article code is required")
	} else {
		row.ArticleCode = normalizeArticle(articleRaw)
	}

	feederRaw := cellAt(g, r, cols, colFeeder)
	row.FeederCodes = splitMachineCodes(feederRaw)
	if len(row.FeederCodes) == 0 {
		fatal("feeder", model.DiagMissing, feederRaw, "at least one feeder code is required")
	}

	makerRaw := cellAt(g, r, cols, colMaker)
	row.MakerCodes = splitMachineCodes(makerRaw)
	if len(row.MakerCodes) == 0 {
		fatal("maker", model.DiagMissing, makerRaw, "at least one maker code is required")
	}

	inputRaw := cellAt(g, r, cols, colInputQuantity)
	if q, err := parseQuantity(inputRaw); err != nil {
		fatal("input quantity", model.DiagFormat, inputRaw, err.Error())
	} else {
		row.InputQuantity = q
	}

	finalRaw := cellAt(g, r, cols, colFinalQuantity)
	if q, err := parseQuantity(finalRaw); err != nil {
		fatal("final quantity", model.DiagFormat, finalRaw, err.Error())
	} else {
		row.FinalQuantity = q
	}

	dateRaw := cellAt(g, r, cols, colDateRange)
	row.RawDateRange = dateRaw
	if start, end, err := parseDateRange(dateRaw, dateDefaults); err != nil {
		fatal("date range", model.DiagFormat, dateRaw, err.Error())
	} else {
		row.PlannedStart = start
		row.PlannedEnd = end
	}

	if row.Status != model.StatusError && row.InputQuantity > 0 && !row.QuantityInRange() {
		warn("final quantity", model.DiagOutOfRange, finalRaw,
			fmt.Sprintf("final quantity %d outside [0.8, 1.2] x input quantity %d", row.FinalQuantity, row.InputQuantity))
	}

	if len(diags) > 0 {
		var msgs []string
		for _, d := range diags {
			msgs = append(msgs, d.Message)
		}
		row.Message = strings.Join(msgs, "; ")
	}

	return row, diags
}
