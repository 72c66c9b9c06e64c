package db

import (
	"context"
	"fmt"
	"time"

	"github.com/pinggolf/aps-scheduler/internal/model"
)

// ListMachines returns every configured machine.
func (q *Queries) ListMachines(ctx context.Context) ([]model.Machine, error) {
	const query = `SELECT code, kind, status, model FROM aps_machine ORDER BY code`
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	defer rows.Close()

	var out []model.Machine
	for rows.Next() {
		var m model.Machine
		var kind string
		if err := rows.Scan(&m.Code, &kind, &m.Status, &m.Model); err != nil {
			return nil, fmt.Errorf("scan machine: %w", err)
		}
		m.Kind = model.MachineKind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListMachineRelations returns every feeder-to-maker relation.
func (q *Queries) ListMachineRelations(ctx context.Context) ([]model.MachineRelation, error) {
	const query = `
		SELECT feeder, maker, priority, valid_from, valid_to
		FROM aps_machine_relation
		ORDER BY feeder, priority
	`
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list machine relations: %w", err)
	}
	defer rows.Close()

	var out []model.MachineRelation
	for rows.Next() {
		var r model.MachineRelation
		var validFrom, validTo *time.Time
		if err := rows.Scan(&r.Feeder, &r.Maker, &r.Priority, &validFrom, &validTo); err != nil {
			return nil, fmt.Errorf("scan machine relation: %w", err)
		}
		if validFrom != nil {
			r.ValidFrom = *validFrom
		}
		if validTo != nil {
			r.ValidTo = *validTo
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListSpeedRules returns every configured production-speed rule.
func (q *Queries) ListSpeedRules(ctx context.Context) ([]model.SpeedRule, error) {
	const query = `
		SELECT machine, article, rate_boxes_per_hour, efficiency_pct, valid_from, valid_to
		FROM aps_machine_speed
	`
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list speed rules: %w", err)
	}
	defer rows.Close()

	var out []model.SpeedRule
	for rows.Next() {
		var s model.SpeedRule
		var validFrom, validTo *time.Time
		if err := rows.Scan(&s.Machine, &s.Article, &s.RateBoxesPerHour, &s.EfficiencyPct, &validFrom, &validTo); err != nil {
			return nil, fmt.Errorf("scan speed rule: %w", err)
		}
		if validFrom != nil {
			s.ValidFrom = *validFrom
		}
		if validTo != nil {
			s.ValidTo = *validTo
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListShiftDefs returns every configured shift window.
func (q *Queries) ListShiftDefs(ctx context.Context) ([]model.ShiftDef, error) {
	const query = `
		SELECT name, machine, start_offset_seconds, end_offset_seconds, overtime_allowed, max_overtime_seconds
		FROM aps_shift_config
	`
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list shift defs: %w", err)
	}
	defer rows.Close()

	var out []model.ShiftDef
	for rows.Next() {
		var s model.ShiftDef
		var startSec, endSec, maxOTSec int
		if err := rows.Scan(&s.Name, &s.Machine, &startSec, &endSec, &s.OvertimeAllowed, &maxOTSec); err != nil {
			return nil, fmt.Errorf("scan shift def: %w", err)
		}
		s.Start = time.Duration(startSec) * time.Second
		s.End = time.Duration(endSec) * time.Second
		s.MaxOvertime = time.Duration(maxOTSec) * time.Second
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListMaintenanceWindows returns every scheduled downtime window.
func (q *Queries) ListMaintenanceWindows(ctx context.Context) ([]model.MaintenanceWindow, error) {
	const query = `SELECT machine, start_time, end_time, status FROM aps_maintenance_window`
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list maintenance windows: %w", err)
	}
	defer rows.Close()

	var out []model.MaintenanceWindow
	for rows.Next() {
		var w model.MaintenanceWindow
		if err := rows.Scan(&w.Machine, &w.Start, &w.End, &w.Status); err != nil {
			return nil, fmt.Errorf("scan maintenance window: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
