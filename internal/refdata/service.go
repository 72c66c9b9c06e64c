package refdata

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/pinggolf/aps-scheduler/internal/model"
)

// Loader fetches the current contents of every reference table from
// storage. *db.Queries satisfies this interface; tests supply a fake.
type Loader interface {
	ListMachines(ctx context.Context) ([]model.Machine, error)
	ListMachineRelations(ctx context.Context) ([]model.MachineRelation, error)
	ListSpeedRules(ctx context.Context) ([]model.SpeedRule, error)
	ListShiftDefs(ctx context.Context) ([]model.ShiftDef, error)
	ListMaintenanceWindows(ctx context.Context) ([]model.MaintenanceWindow, error)
}

// Service owns the current reference-data Snapshot and refreshes it on a
// fixed interval or on explicit Invalidate. This replaces the pattern of a
// module-level mutable cache with an injected, atomically-swapped value
// (§9 design note): every reader sees one consistent snapshot per call,
// never a partially-updated one.
type Service struct {
	loader Loader
	ttl    time.Duration

	current atomic.Pointer[Snapshot]

	stop chan struct{}
}

// New constructs a Service and performs the first synchronous load so
// that Current never returns nil after New succeeds.
func New(ctx context.Context, loader Loader, ttl time.Duration) (*Service, error) {
	s := &Service{loader: loader, ttl: ttl, stop: make(chan struct{})}
	if err := s.refresh(ctx); err != nil {
		return nil, fmt.Errorf("initial reference-data load: %w", err)
	}
	return s, nil
}

// Current returns the latest loaded Snapshot. Safe for concurrent use.
func (s *Service) Current() *Snapshot {
	return s.current.Load()
}

// Run starts the TTL-driven refresh loop; it blocks until ctx is
// cancelled or Stop is called.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.refresh(ctx); err != nil {
				log.Printf("refdata: refresh failed, keeping stale snapshot: %v", err)
			}
		}
	}
}

// Stop ends the refresh loop started by Run.
func (s *Service) Stop() {
	close(s.stop)
}

// Invalidate forces an immediate synchronous refresh, bypassing the TTL.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.refresh(ctx)
}

func (s *Service) refresh(ctx context.Context) error {
	machines, err := s.loader.ListMachines(ctx)
	if err != nil {
		return fmt.Errorf("load machines: %w", err)
	}
	relations, err := s.loader.ListMachineRelations(ctx)
	if err != nil {
		return fmt.Errorf("load machine relations: %w", err)
	}
	speeds, err := s.loader.ListSpeedRules(ctx)
	if err != nil {
		return fmt.Errorf("load speed rules: %w", err)
	}
	shifts, err := s.loader.ListShiftDefs(ctx)
	if err != nil {
		return fmt.Errorf("load shift defs: %w", err)
	}
	maint, err := s.loader.ListMaintenanceWindows(ctx)
	if err != nil {
		return fmt.Errorf("load maintenance windows: %w", err)
	}

	s.current.Store(newSnapshot(machines, relations, speeds, shifts, maint))
	return nil
}
