package db

import (
	"context"
	"fmt"

	"github.com/lib/pq"
)

// InsertMakerOrders bulk-inserts finalized maker work orders for a task.
func (q *Queries) InsertMakerOrders(ctx context.Context, rows []MakerOrderRow) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert maker orders: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO aps_work_order_maker
			(id, task_id, maker, article, unit, plan_date, input_quantity, final_quantity,
			 start_time, end_time, sequence_within_day, feeder_order_id, is_backup, backup_reason,
			 split_from, split_index, merged_from, manual_review, review_reasons)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	for _, r := range rows {
		_, err := tx.ExecContext(ctx, query,
			r.ID, r.TaskID, r.Maker, r.Article, r.Unit, r.PlanDate, r.InputQuantity, r.FinalQuantity,
			r.StartTime, r.EndTime, r.SequenceWithinDay, r.FeederOrderID, r.IsBackup, r.BackupReason,
			r.SplitFrom, r.SplitIndex, pq.Array([]string(r.MergedFrom)), r.ManualReview, pq.Array([]string(r.ReviewReasons)),
		)
		if err != nil {
			return fmt.Errorf("insert maker order %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// InsertFeederOrders bulk-inserts finalized feeder work orders along with
// their maker-order join rows for a task.
func (q *Queries) InsertFeederOrders(ctx context.Context, rows []FeederOrderRow, related []FeederRelatedMakerRow) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert feeder orders: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO aps_work_order_feeder
			(id, task_id, feeder, article, quantity, start_time, end_time,
			 sequence_within_day, manual_review, review_reasons)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for _, r := range rows {
		_, err := tx.ExecContext(ctx, query,
			r.ID, r.TaskID, r.Feeder, r.Article, r.Quantity, r.StartTime, r.EndTime,
			r.SequenceWithinDay, r.ManualReview, pq.Array([]string(r.ReviewReasons)),
		)
		if err != nil {
			return fmt.Errorf("insert feeder order %s: %w", r.ID, err)
		}
	}

	const joinQuery = `
		INSERT INTO aps_work_order_feeder_maker (feeder_order_id, maker_order_id, quantity)
		VALUES ($1, $2, $3)
	`
	for _, rel := range related {
		_, err := tx.ExecContext(ctx, joinQuery, rel.FeederOrderID, rel.MakerOrderID, rel.Quantity)
		if err != nil {
			return fmt.Errorf("insert feeder-maker link %s/%s: %w", rel.FeederOrderID, rel.MakerOrderID, err)
		}
	}

	return tx.Commit()
}

// ListMakerOrders returns every maker order emitted by a task.
func (q *Queries) ListMakerOrders(ctx context.Context, taskID string) ([]MakerOrderRow, error) {
	const query = `
		SELECT id, task_id, maker, article, unit, plan_date, input_quantity, final_quantity,
		       start_time, end_time, sequence_within_day, feeder_order_id, is_backup, backup_reason,
		       split_from, split_index, merged_from, manual_review, review_reasons, dispatched_at
		FROM aps_work_order_maker
		WHERE task_id = $1
		ORDER BY plan_date, maker, sequence_within_day
	`
	rows, err := q.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("list maker orders: %w", err)
	}
	defer rows.Close()

	var out []MakerOrderRow
	for rows.Next() {
		var r MakerOrderRow
		var merged, reasons pq.StringArray
		if err := rows.Scan(
			&r.ID, &r.TaskID, &r.Maker, &r.Article, &r.Unit, &r.PlanDate, &r.InputQuantity, &r.FinalQuantity,
			&r.StartTime, &r.EndTime, &r.SequenceWithinDay, &r.FeederOrderID, &r.IsBackup, &r.BackupReason,
			&r.SplitFrom, &r.SplitIndex, &merged, &r.ManualReview, &reasons, &r.DispatchedAt,
		); err != nil {
			return nil, fmt.Errorf("scan maker order: %w", err)
		}
		r.MergedFrom = merged
		r.ReviewReasons = reasons
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkMakerOrdersDispatched stamps the dispatch time after a successful
// MES delivery.
func (q *Queries) MarkMakerOrdersDispatched(ctx context.Context, ids []string) error {
	const query = `
		UPDATE aps_work_order_maker SET dispatched_at = NOW()
		WHERE id = ANY($1)
	`
	_, err := q.db.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark maker orders dispatched: %w", err)
	}
	return nil
}

// ListFeederOrders returns every feeder order emitted by a task.
func (q *Queries) ListFeederOrders(ctx context.Context, taskID string) ([]FeederOrderRow, error) {
	const query = `
		SELECT id, task_id, feeder, article, quantity, start_time, end_time,
		       sequence_within_day, manual_review, review_reasons, dispatched_at
		FROM aps_work_order_feeder
		WHERE task_id = $1
		ORDER BY start_time, feeder, sequence_within_day
	`
	rows, err := q.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("list feeder orders: %w", err)
	}
	defer rows.Close()

	var out []FeederOrderRow
	for rows.Next() {
		var r FeederOrderRow
		var reasons pq.StringArray
		if err := rows.Scan(
			&r.ID, &r.TaskID, &r.Feeder, &r.Article, &r.Quantity, &r.StartTime, &r.EndTime,
			&r.SequenceWithinDay, &r.ManualReview, &reasons, &r.DispatchedAt,
		); err != nil {
			return nil, fmt.Errorf("scan feeder order: %w", err)
		}
		r.ReviewReasons = reasons
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkFeederOrdersDispatched stamps the dispatch time after a successful
// MES delivery.
func (q *Queries) MarkFeederOrdersDispatched(ctx context.Context, ids []string) error {
	const query = `
		UPDATE aps_work_order_feeder SET dispatched_at = NOW()
		WHERE id = ANY($1)
	`
	_, err := q.db.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark feeder orders dispatched: %w", err)
	}
	return nil
}
