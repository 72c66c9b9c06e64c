package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pinggolf/aps-scheduler/internal/model"
)

// trimAll trims ASCII and common full-width whitespace.
func trimAll(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '　'
	})
}

// splitMachineCodes splits a cell holding one or more machine codes
// separated by comma, ideographic comma, whitespace, or semicolon; trims,
// deduplicates preserving order, and drops empty tokens.
func splitMachineCodes(raw string) []string {
	isSep := func(r rune) bool {
		switch r {
		case ',', '、', ';', '；', '，':
			return true
		}
		return unicode.IsSpace(r) || r == '　'
	}
	fields := strings.FieldsFunc(raw, isSep)

	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		code := strings.ToUpper(trimAll(f))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}

// normalizeArticle whitespace-collapses and uppercases an article code.
func normalizeArticle(raw string) string {
	fields := strings.Fields(raw)
	return strings.ToUpper(strings.Join(fields, " "))
}

// parseQuantity parses an integer box count, rejecting non-numeric input.
func parseQuantity(raw string) (int, error) {
	s := trimAll(raw)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not numeric: %q", raw)
	}
	return int(f + 0.5), nil
}

// dateRangeDefaults tells parseDateRange what year/period to assume when
// the source omits it.
type dateRangeDefaults struct {
	Cadence  model.Cadence
	PlanYear int
	// PlanDecadeStart is the first day of the "next ten-day period" used
	// to fill in a missing year for decade cadence workbooks.
	PlanDecadeStart time.Time
}

// parseDateRange parses "M.D - M.D" or "YYYY/MM/DD - YYYY/MM/DD", applying
// dateRangeDefaults.PlanYear (monthly) or the next decade period (decade)
// when the year is omitted. Returns (start at 00:00:00, end at 23:59:59).
func parseDateRange(raw string, d dateRangeDefaults) (time.Time, time.Time, error) {
	s := trimAll(raw)
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("malformed date range: %q", raw)
	}
	left := trimAll(parts[0])
	right := trimAll(parts[1])

	start, err := parseOneDate(left, d)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start date: %w", err)
	}
	end, err := parseOneDate(right, d)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end date: %w", err)
	}

	startTime := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	endTime := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, time.UTC)
	if !startTime.Before(endTime) {
		return time.Time{}, time.Time{}, fmt.Errorf("start must precede end: %q", raw)
	}
	return startTime, endTime, nil
}

func parseOneDate(s string, d dateRangeDefaults) (time.Time, error) {
	if strings.Count(s, "/") == 2 {
		t, err := time.Parse("2006/01/02", s)
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized full date %q", s)
		}
		return t, nil
	}

	sep := "."
	if !strings.Contains(s, sep) {
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	}
	parts := strings.SplitN(s, sep, 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	}
	month, err := strconv.Atoi(trimAll(parts[0]))
	if err != nil {
		return time.Time{}, fmt.Errorf("bad month in %q", s)
	}
	day, err := strconv.Atoi(trimAll(parts[1]))
	if err != nil {
		return time.Time{}, fmt.Errorf("bad day in %q", s)
	}

	year := d.PlanYear
	if d.Cadence == model.CadenceDecade && !d.PlanDecadeStart.IsZero() {
		year = d.PlanDecadeStart.Year()
		if time.Month(month) < d.PlanDecadeStart.Month() {
			year++
		}
	}
	if year == 0 {
		year = time.Now().UTC().Year()
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}
