package parser

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"
)

// BIFF8 record ids used by the legacy .xls reader. Only the subset needed
// to recover a plan table (text and numeric cells, row/merge metadata) is
// handled; formulas, charts, and styles are ignored.
const (
	biffBOF         = 0x0809
	biffEOF         = 0x000A
	biffSST         = 0x00FC
	biffLabel       = 0x0204
	biffLabelSST    = 0x00FD
	biffNumber      = 0x0203
	biffRK          = 0x027E
	biffMulRK       = 0x00BD
	biffBlank       = 0x0201
	biffMergeCells  = 0x00E5
	biffBoundSheet8 = 0x0085
)

const biffDocTypeWorksheet = 0x0010

// xlsReadGrid decodes the first worksheet substream of a legacy .xls
// (compound-file BIFF8) workbook into a grid, merged regions expanded.
func xlsReadGrid(data []byte) (*grid, error) {
	cfb, err := newCFBReader(data)
	if err != nil {
		return nil, fmt.Errorf("open compound file: %w", err)
	}

	stream, err := cfb.findStream("Workbook", "Book")
	if err != nil {
		return nil, fmt.Errorf("locate workbook stream: %w", err)
	}

	return decodeBIFF8(stream)
}

func decodeBIFF8(stream []byte) (*grid, error) {
	var shared []string
	var inWorksheet bool
	maxRow, maxCol := 0, 0

	type cellValue struct {
		row, col int
		value    string
	}
	var values []cellValue
	var merges [][4]int

	pos := 0
	for pos+4 <= len(stream) {
		id := binary.LittleEndian.Uint16(stream[pos : pos+2])
		length := int(binary.LittleEndian.Uint16(stream[pos+2 : pos+4]))
		start := pos + 4
		end := start + length
		if end > len(stream) {
			break
		}
		rec := stream[start:end]
		pos = end

		switch id {
		case biffBOF:
			if len(rec) >= 4 {
				docType := binary.LittleEndian.Uint16(rec[2:4])
				inWorksheet = docType == biffDocTypeWorksheet
			}
		case biffEOF:
			if inWorksheet {
				// first worksheet fully consumed
				goto done
			}
		case biffSST:
			shared = decodeSST(rec, stream, &pos)
		case biffLabel:
			if !inWorksheet || len(rec) < 6 {
				continue
			}
			row := int(binary.LittleEndian.Uint16(rec[0:2]))
			col := int(binary.LittleEndian.Uint16(rec[2:4]))
			str, _ := decodeUnicodeString(rec[6:])
			values = append(values, cellValue{row, col, str})
			maxRow, maxCol = maxInt(maxRow, row), maxInt(maxCol, col)
		case biffLabelSST:
			if !inWorksheet || len(rec) < 10 {
				continue
			}
			row := int(binary.LittleEndian.Uint16(rec[0:2]))
			col := int(binary.LittleEndian.Uint16(rec[2:4]))
			idx := binary.LittleEndian.Uint32(rec[6:10])
			var str string
			if shared != nil && int(idx) < len(shared) {
				str = shared[idx]
			}
			values = append(values, cellValue{row, col, str})
			maxRow, maxCol = maxInt(maxRow, row), maxInt(maxCol, col)
		case biffNumber:
			if !inWorksheet || len(rec) < 14 {
				continue
			}
			row := int(binary.LittleEndian.Uint16(rec[0:2]))
			col := int(binary.LittleEndian.Uint16(rec[2:4]))
			bits := binary.LittleEndian.Uint64(rec[6:14])
			f := math.Float64frombits(bits)
			values = append(values, cellValue{row, col, formatFloat(f)})
			maxRow, maxCol = maxInt(maxRow, row), maxInt(maxCol, col)
		case biffRK:
			if !inWorksheet || len(rec) < 10 {
				continue
			}
			row := int(binary.LittleEndian.Uint16(rec[0:2]))
			col := int(binary.LittleEndian.Uint16(rec[2:4]))
			f := decodeRK(binary.LittleEndian.Uint32(rec[6:10]))
			values = append(values, cellValue{row, col, formatFloat(f)})
			maxRow, maxCol = maxInt(maxRow, row), maxInt(maxCol, col)
		case biffMulRK:
			if !inWorksheet || len(rec) < 6 {
				continue
			}
			row := int(binary.LittleEndian.Uint16(rec[0:2]))
			firstCol := int(binary.LittleEndian.Uint16(rec[2:4]))
			body := rec[4 : len(rec)-2]
			for i := 0; i+6 <= len(body); i += 6 {
				rk := binary.LittleEndian.Uint32(body[i+2 : i+6])
				col := firstCol + i/6
				f := decodeRK(rk)
				values = append(values, cellValue{row, col, formatFloat(f)})
				maxRow, maxCol = maxInt(maxRow, row), maxInt(maxCol, col)
			}
		case biffMergeCells:
			if !inWorksheet || len(rec) < 2 {
				continue
			}
			count := int(binary.LittleEndian.Uint16(rec[0:2]))
			for i := 0; i < count; i++ {
				off := 2 + i*8
				if off+8 > len(rec) {
					break
				}
				rowFirst := int(binary.LittleEndian.Uint16(rec[off : off+2]))
				rowLast := int(binary.LittleEndian.Uint16(rec[off+2 : off+4]))
				colFirst := int(binary.LittleEndian.Uint16(rec[off+4 : off+6]))
				colLast := int(binary.LittleEndian.Uint16(rec[off+6 : off+8]))
				merges = append(merges, [4]int{rowFirst, colFirst, rowLast, colLast})
			}
		}
	}
done:

	g := newGrid(maxRow+1, maxCol+1)
	for _, v := range values {
		g.set(v.row, v.col, v.value)
	}
	for _, m := range merges {
		g.applyMerge(m[0], m[1], m[2], m[3])
	}
	return g, nil
}

// decodeSST decodes the shared string table, following CONTINUE records
// (id 0x003C) when a string's bytes spill past the SST record boundary.
func decodeSST(first []byte, stream []byte, pos *int) []string {
	if len(first) < 8 {
		return nil
	}
	unique := int(binary.LittleEndian.Uint32(first[4:8]))
	buf := first[8:]

	readMore := func(need int) {
		for len(buf) < need && *pos+4 <= len(stream) {
			id := binary.LittleEndian.Uint16(stream[*pos : *pos+2])
			if id != 0x003C {
				return
			}
			length := int(binary.LittleEndian.Uint16(stream[*pos+2 : *pos+4]))
			start := *pos + 4
			end := start + length
			if end > len(stream) {
				return
			}
			buf = append(buf, stream[start:end]...)
			*pos = end
		}
	}

	out := make([]string, 0, unique)
	for len(out) < unique {
		readMore(3)
		if len(buf) < 3 {
			break
		}
		str, consumed := decodeUnicodeString(buf)
		out = append(out, str)
		buf = buf[consumed:]
	}
	return out
}

// decodeUnicodeString decodes a BIFF8 XLUnicodeString (cch + options +
// optional rich/phonetic extras + character data) and returns the string
// plus the number of bytes consumed from the start of b.
func decodeUnicodeString(b []byte) (string, int) {
	if len(b) < 3 {
		return "", len(b)
	}
	cch := int(binary.LittleEndian.Uint16(b[0:2]))
	options := b[2]
	pos := 3

	isUnicode := options&0x1 != 0
	hasRich := options&0x8 != 0
	hasPhonetic := options&0x4 != 0

	var rtCount int
	if hasRich {
		if pos+2 > len(b) {
			return "", len(b)
		}
		rtCount = int(binary.LittleEndian.Uint16(b[pos : pos+2]))
		pos += 2
	}
	var phoneticSize int
	if hasPhonetic {
		if pos+4 > len(b) {
			return "", len(b)
		}
		phoneticSize = int(binary.LittleEndian.Uint32(b[pos : pos+4]))
		pos += 4
	}

	var str string
	if isUnicode {
		need := cch * 2
		if pos+need > len(b) {
			need = len(b) - pos
		}
		units := make([]uint16, need/2)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(b[pos+i*2 : pos+i*2+2])
		}
		str = string(utf16.Decode(units))
		pos += need
	} else {
		need := cch
		if pos+need > len(b) {
			need = len(b) - pos
		}
		str = string(b[pos : pos+need])
		pos += need
	}

	pos += rtCount * 4
	pos += phoneticSize
	return str, pos
}

func decodeRK(rk uint32) float64 {
	if rk&0x2 != 0 {
		// integer RK value, stored in the top 30 bits
		v := int32(rk) >> 2
		f := float64(v)
		if rk&0x1 != 0 {
			f /= 100
		}
		return f
	}
	bits := uint64(rk&0xFFFFFFFC) << 32
	f := math.Float64frombits(bits)
	if rk&0x1 != 0 {
		f /= 100
	}
	return f
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
