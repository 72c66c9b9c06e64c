package parser

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// xlsxReadGrid decodes the first worksheet of an .xlsx (OOXML zip) file
// into a grid, with merged regions already expanded. There is no
// spreadsheet library in play here: the format is a zip of plain XML
// parts, which the standard library reads directly.
func xlsxReadGrid(r io.ReaderAt, size int64) (*grid, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open xlsx zip: %w", err)
	}

	shared, err := readSharedStrings(zr)
	if err != nil {
		return nil, fmt.Errorf("read shared strings: %w", err)
	}

	sheetFile, err := firstWorksheet(zr)
	if err != nil {
		return nil, err
	}

	rc, err := sheetFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open worksheet: %w", err)
	}
	defer rc.Close()

	return decodeWorksheet(rc, shared)
}

func firstWorksheet(zr *zip.Reader) (*zip.File, error) {
	var candidates []*zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "xl/worksheets/sheet") && strings.HasSuffix(f.Name, ".xml") {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("xlsx contains no worksheet parts")
	}
	// sheet1.xml is the workbook's first tab in the common case; a
	// rigorous reader would follow workbook.xml's sheet ordering and
	// rels, but every source workbook this tool ingests carries its plan
	// table on the first sheet.
	best := candidates[0]
	for _, f := range candidates {
		if f.Name < best.Name {
			best = f
		}
	}
	return best, nil
}

type sstXML struct {
	Items []struct {
		Text  string `xml:"t"`
		Runs  []struct {
			Text string `xml:"t"`
		} `xml:"r"`
	} `xml:"si"`
}

func readSharedStrings(zr *zip.Reader) ([]string, error) {
	for _, f := range zr.File {
		if f.Name != "xl/sharedStrings.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		var sst sstXML
		if err := xml.NewDecoder(rc).Decode(&sst); err != nil {
			return nil, fmt.Errorf("decode sharedStrings.xml: %w", err)
		}

		out := make([]string, len(sst.Items))
		for i, item := range sst.Items {
			if item.Text != "" {
				out[i] = item.Text
				continue
			}
			var b strings.Builder
			for _, run := range item.Runs {
				b.WriteString(run.Text)
			}
			out[i] = b.String()
		}
		return out, nil
	}
	// A workbook with no inline strings has no sharedStrings.xml part.
	return nil, nil
}

type worksheetXML struct {
	SheetData struct {
		Rows []struct {
			R     int `xml:"r,attr"`
			Cells []struct {
				R string `xml:"r,attr"` // cell reference, e.g. "B3"
				T string `xml:"t,attr"` // type: "s" = shared string, "str"/"inlineStr", else numeric
				V string `xml:"v"`
				Is struct {
					Text string `xml:"t"`
				} `xml:"is"`
			} `xml:"c"`
		} `xml:"row"`
	} `xml:"sheetData"`
	MergeCells struct {
		Cells []struct {
			Ref string `xml:"ref,attr"`
		} `xml:"mergeCell"`
	} `xml:"mergeCells"`
}

func decodeWorksheet(r io.Reader, shared []string) (*grid, error) {
	var ws worksheetXML
	if err := xml.NewDecoder(r).Decode(&ws); err != nil {
		return nil, fmt.Errorf("decode worksheet xml: %w", err)
	}

	maxRow, maxCol := 0, 0
	type cellValue struct {
		row, col int
		value    string
	}
	var values []cellValue

	for _, row := range ws.SheetData.Rows {
		for _, c := range row.Cells {
			col, rowFromRef, err := parseCellRef(c.R)
			rowIdx := row.R - 1
			if err == nil && rowFromRef >= 0 {
				rowIdx = rowFromRef
			}
			if rowIdx < 0 {
				continue
			}

			var value string
			switch c.T {
			case "s":
				idx, err := strconv.Atoi(strings.TrimSpace(c.V))
				if err == nil && shared != nil && idx >= 0 && idx < len(shared) {
					value = shared[idx]
				}
			case "str":
				value = c.V
			case "inlineStr":
				value = c.Is.Text
			default:
				value = c.V
			}

			values = append(values, cellValue{row: rowIdx, col: col, value: value})
			if rowIdx > maxRow {
				maxRow = rowIdx
			}
			if col > maxCol {
				maxCol = col
			}
		}
	}

	g := newGrid(maxRow+1, maxCol+1)
	for _, v := range values {
		g.set(v.row, v.col, v.value)
	}

	for _, mc := range ws.MergeCells.Cells {
		topLeft, bottomRight, ok := strings.Cut(mc.Ref, ":")
		if !ok {
			continue
		}
		leftCol, topRow, err1 := parseCellRef(topLeft)
		rightCol, bottomRow, err2 := parseCellRef(bottomRight)
		if err1 != nil || err2 != nil {
			continue
		}
		g.applyMerge(topRow, leftCol, bottomRow, rightCol)
	}

	return g, nil
}

// parseCellRef parses an A1-style cell reference like "C7" into
// zero-based (col, row).
func parseCellRef(ref string) (col, row int, err error) {
	i := 0
	for i < len(ref) && ref[i] >= 'A' && ref[i] <= 'Z' {
		i++
	}
	if i == 0 || i == len(ref) {
		return 0, 0, fmt.Errorf("malformed cell reference %q", ref)
	}
	letters := ref[:i]
	digits := ref[i:]

	col = 0
	for _, ch := range letters {
		col = col*26 + int(ch-'A'+1)
	}
	col--

	rowNum, err := strconv.Atoi(digits)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed cell reference %q", ref)
	}
	return col, rowNum - 1, nil
}
