package refdata

import (
	"sort"
	"time"

	"github.com/pinggolf/aps-scheduler/internal/model"
)

// MachineRelationService resolves feeder<->maker relationships.
type MachineRelationService struct {
	snapshotFn func() *Snapshot
}

// NewMachineRelationService builds a MachineRelationService reading from
// the given Service.
func NewMachineRelationService(svc *Service) *MachineRelationService {
	return &MachineRelationService{snapshotFn: svc.Current}
}

// MakersFor returns every maker related to feeder, ordered by priority,
// valid at instant t.
func (m *MachineRelationService) MakersFor(feeder string, t time.Time) []string {
	snap := m.snapshotFn()
	var rels []model.MachineRelation
	for _, r := range snap.Relations {
		if r.Feeder == feeder && r.Valid(t) {
			rels = append(rels, r)
		}
	}
	sort.Slice(rels, func(i, j int) bool { return rels[i].Priority < rels[j].Priority })

	out := make([]string, len(rels))
	for i, r := range rels {
		out[i] = r.Maker
	}
	return out
}

// FeedersFor returns every feeder related to maker, valid at instant t.
// The inverse relation is the canonical "same workorder" grouping rule
// (§3).
func (m *MachineRelationService) FeedersFor(maker string, t time.Time) []string {
	snap := m.snapshotFn()
	var out []string
	seen := make(map[string]bool)
	for _, r := range snap.Relations {
		if r.Maker == maker && r.Valid(t) && !seen[r.Feeder] {
			seen[r.Feeder] = true
			out = append(out, r.Feeder)
		}
	}
	return out
}
