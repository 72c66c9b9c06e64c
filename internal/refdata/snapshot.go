package refdata

import (
	"time"

	"github.com/pinggolf/aps-scheduler/internal/model"
)

// Snapshot is a consistent, read-only view of every reference table the
// pipeline stages consult. A new Snapshot is built wholesale on each
// refresh and swapped in atomically, so readers never observe a partial
// update.
type Snapshot struct {
	FetchedAt time.Time

	Machines  []model.Machine
	Relations []model.MachineRelation
	Speeds    []model.SpeedRule
	Shifts    []model.ShiftDef
	Maint     []model.MaintenanceWindow

	machineByCode map[string]model.Machine
}

func newSnapshot(machines []model.Machine, relations []model.MachineRelation, speeds []model.SpeedRule, shifts []model.ShiftDef, maint []model.MaintenanceWindow) *Snapshot {
	byCode := make(map[string]model.Machine, len(machines))
	for _, m := range machines {
		byCode[m.Code] = m
	}
	return &Snapshot{
		FetchedAt:     time.Now(),
		Machines:      machines,
		Relations:     relations,
		Speeds:        speeds,
		Shifts:        shifts,
		Maint:         maint,
		machineByCode: byCode,
	}
}

// Machine looks up one machine by code.
func (s *Snapshot) Machine(code string) (model.Machine, bool) {
	m, ok := s.machineByCode[code]
	return m, ok
}
