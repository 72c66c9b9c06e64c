package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// CreateTask inserts a new task row in state "pending", recording the
// stage-toggle options it was launched with for later inspection.
func (q *Queries) CreateTask(ctx context.Context, id string, batchIDs []string, options interface{}) error {
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("marshal task options: %w", err)
	}
	const query = `
		INSERT INTO aps_task (id, batch_ids, state, progress, options, created_at)
		VALUES ($1, $2, 'pending', 0, $3, NOW())
	`
	_, err = q.db.ExecContext(ctx, query, id, pq.Array(batchIDs), optionsJSON)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask fetches one task by id.
func (q *Queries) GetTask(ctx context.Context, id string) (*TaskRow, error) {
	const query = `
		SELECT id, batch_ids, state, stage_name, progress, counts, created_at, started_at, finished_at, error, checkpoint
		FROM aps_task
		WHERE id = $1
	`
	var t TaskRow
	err := q.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.BatchIDs, &t.State, &t.StageName, &t.Progress, &t.Counts, &t.CreatedAt, &t.StartedAt, &t.FinishedAt, &t.Error, &t.Checkpoint,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &t, nil
}

// MarkTaskRunning transitions a task from pending to running.
func (q *Queries) MarkTaskRunning(ctx context.Context, id string) error {
	const query = `
		UPDATE aps_task SET state = 'running', started_at = NOW()
		WHERE id = $1 AND state = 'pending'
	`
	res, err := q.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark task running: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark task running: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mark task running: task %s not in pending state", id)
	}
	return nil
}

// UpdateTaskProgress updates the current stage name and fractional
// progress (0..1) of a running task, plus an optional resume checkpoint.
func (q *Queries) UpdateTaskProgress(ctx context.Context, id, stage string, progress float64, checkpoint string) error {
	const query = `
		UPDATE aps_task SET stage_name = $2, progress = $3, checkpoint = $4
		WHERE id = $1
	`
	_, err := q.db.ExecContext(ctx, query, id, stage, progress, nullIfEmpty(checkpoint))
	if err != nil {
		return fmt.Errorf("update task progress: %w", err)
	}
	return nil
}

// FinishTask transitions a task to a terminal state (completed, failed, or
// cancelled), recording an error message when present.
func (q *Queries) FinishTask(ctx context.Context, id, state, errMsg string) error {
	const query = `
		UPDATE aps_task SET state = $2, error = $3, finished_at = NOW(), progress = 1
		WHERE id = $1
	`
	_, err := q.db.ExecContext(ctx, query, id, state, nullIfEmpty(errMsg))
	if err != nil {
		return fmt.Errorf("finish task: %w", err)
	}
	return nil
}

// FinishTaskWithResult transitions a task to "completed", recording a
// summary of its output alongside the terminal state.
func (q *Queries) FinishTaskWithResult(ctx context.Context, id string, counts interface{}) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("marshal task counts: %w", err)
	}
	const query = `
		UPDATE aps_task SET state = 'completed', counts = $2, finished_at = NOW(), progress = 1
		WHERE id = $1
	`
	_, err = q.db.ExecContext(ctx, query, id, countsJSON)
	if err != nil {
		return fmt.Errorf("finish task with result: %w", err)
	}
	return nil
}

// RequestTaskCancel flips a running task's state to "cancelling" so the
// worker loop observes it on its next cooperative check point.
func (q *Queries) RequestTaskCancel(ctx context.Context, id string) error {
	const query = `
		UPDATE aps_task SET state = 'cancelling'
		WHERE id = $1 AND state IN ('pending', 'running')
	`
	res, err := q.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("request task cancel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("request task cancel: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("request task cancel: task %s not cancellable", id)
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
