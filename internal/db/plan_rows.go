package db

import (
	"context"
	"fmt"

	"github.com/lib/pq"
)

// InsertPlanRows bulk-inserts parsed rows for a batch inside one
// transaction, matching the teacher's batched-write style.
func (q *Queries) InsertPlanRows(ctx context.Context, batchID string, rows []PlanRowRow) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin plan row insert: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO aps_plan_row
			(batch_id, row_index, work_order_id, article_code, package_type, specification,
			 production_unit, feeder_codes, maker_codes, input_quantity, final_quantity,
			 planned_start, planned_end, raw_date_range, status, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	for _, r := range rows {
		_, err := tx.ExecContext(ctx, query,
			batchID, r.RowIndex, r.WorkOrderID, r.ArticleCode, r.PackageType, r.Specification,
			r.ProductionUnit, pq.Array([]string(r.FeederCodes)), pq.Array([]string(r.MakerCodes)),
			r.InputQuantity, r.FinalQuantity, r.PlannedStart, r.PlannedEnd, r.RawDateRange,
			r.Status, r.Message,
		)
		if err != nil {
			return fmt.Errorf("insert plan row %d: %w", r.RowIndex, err)
		}
	}

	return tx.Commit()
}

// ListPlanRows returns every row for a batch in row-index order.
func (q *Queries) ListPlanRows(ctx context.Context, batchID string) ([]PlanRowRow, error) {
	const query = `
		SELECT id, batch_id, row_index, work_order_id, article_code, package_type, specification,
		       production_unit, feeder_codes, maker_codes, input_quantity, final_quantity,
		       planned_start, planned_end, raw_date_range, status, message
		FROM aps_plan_row
		WHERE batch_id = $1
		ORDER BY row_index
	`
	rows, err := q.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("list plan rows: %w", err)
	}
	defer rows.Close()

	var out []PlanRowRow
	for rows.Next() {
		var r PlanRowRow
		var feeders, makers pq.StringArray
		if err := rows.Scan(
			&r.ID, &r.BatchID, &r.RowIndex, &r.WorkOrderID, &r.ArticleCode, &r.PackageType, &r.Specification,
			&r.ProductionUnit, &feeders, &makers, &r.InputQuantity, &r.FinalQuantity,
			&r.PlannedStart, &r.PlannedEnd, &r.RawDateRange, &r.Status, &r.Message,
		); err != nil {
			return nil, fmt.Errorf("scan plan row: %w", err)
		}
		r.FeederCodes = feeders
		r.MakerCodes = makers
		out = append(out, r)
	}
	return out, rows.Err()
}
