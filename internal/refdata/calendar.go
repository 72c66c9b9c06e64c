package refdata

import (
	"sort"
	"time"

	"github.com/pinggolf/aps-scheduler/internal/model"
)

// CalendarService resolves shift boundaries for a machine, falling back
// to model.DefaultShifts when no machine-specific configuration exists
// (§4.4 "Shift lookup").
type CalendarService struct {
	snapshotFn func() *Snapshot
}

// NewCalendarService builds a CalendarService reading from the given
// Service.
func NewCalendarService(svc *Service) *CalendarService {
	return &CalendarService{snapshotFn: svc.Current}
}

// ShiftsFor returns the most-specific shift table for machine: configured
// machine-specific shifts if any exist, else configured wildcard shifts,
// else model.DefaultShifts.
func (c *CalendarService) ShiftsFor(machine string) []model.ShiftDef {
	snap := c.snapshotFn()

	var specific, wildcard []model.ShiftDef
	for _, s := range snap.Shifts {
		if s.Machine == machine {
			specific = append(specific, s)
		} else if s.Machine == "*" {
			wildcard = append(wildcard, s)
		}
	}

	switch {
	case len(specific) > 0:
		return sortedByStart(specific)
	case len(wildcard) > 0:
		return sortedByStart(wildcard)
	default:
		return model.DefaultShifts
	}
}

func sortedByStart(shifts []model.ShiftDef) []model.ShiftDef {
	out := append([]model.ShiftDef(nil), shifts...)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// dayStart returns midnight (UTC) of t's calendar day.
func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// InShift reports whether t falls within one of machine's configured
// shifts, returning that shift if so.
func (c *CalendarService) InShift(machine string, t time.Time) (model.ShiftDef, bool) {
	day := dayStart(t)
	offset := t.Sub(day)
	for _, s := range c.ShiftsFor(machine) {
		if offset >= s.Start && offset < s.End {
			return s, true
		}
	}
	return model.ShiftDef{}, false
}

// NextShiftStart returns the start instant of the next shift at or after
// t, projecting t forward when it currently falls in a gap between
// shifts (§4.4 step 2: "project start onto the next shift boundary").
func (c *CalendarService) NextShiftStart(machine string, t time.Time) time.Time {
	if _, ok := c.InShift(machine, t); ok {
		return t
	}

	day := dayStart(t)
	offset := t.Sub(day)
	shifts := c.ShiftsFor(machine)

	for _, s := range shifts {
		if s.Start >= offset {
			return day.Add(s.Start)
		}
	}
	// no shift starts later today; roll to the earliest shift tomorrow
	if len(shifts) == 0 {
		return t
	}
	return day.AddDate(0, 0, 1).Add(shifts[0].Start)
}

// ShiftEnd returns the end instant of the shift containing t, or t itself
// if t falls outside every shift.
func (c *CalendarService) ShiftEnd(machine string, t time.Time) time.Time {
	if s, ok := c.InShift(machine, t); ok {
		return dayStart(t).Add(s.End)
	}
	return t
}
