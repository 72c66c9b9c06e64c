package refdata

import (
	"sort"
	"time"

	"github.com/pinggolf/aps-scheduler/internal/model"
)

// MaintenanceService answers downtime-overlap questions for a machine.
type MaintenanceService struct {
	snapshotFn func() *Snapshot
}

// NewMaintenanceService builds a MaintenanceService reading from the
// given Service.
func NewMaintenanceService(svc *Service) *MaintenanceService {
	return &MaintenanceService{snapshotFn: svc.Current}
}

// WindowsFor returns every maintenance window configured for a machine,
// ordered by start time.
func (m *MaintenanceService) WindowsFor(machine string) []model.MaintenanceWindow {
	snap := m.snapshotFn()
	var out []model.MaintenanceWindow
	for _, w := range snap.Maint {
		if w.Machine == machine {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Overlapping returns the windows for machine that intersect [s, e).
func (m *MaintenanceService) Overlapping(machine string, s, e time.Time) []model.MaintenanceWindow {
	var out []model.MaintenanceWindow
	for _, w := range m.WindowsFor(machine) {
		if w.Overlaps(s, e) {
			out = append(out, w)
		}
	}
	return out
}
