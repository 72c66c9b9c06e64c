package db

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateImportBatch inserts a new batch row in the state given by row.State.
func (q *Queries) CreateImportBatch(ctx context.Context, row ImportBatchRow) error {
	const query = `
		INSERT INTO aps_import_batch
			(id, cadence, source_filename, file_size_bytes, storage_path, uploaded_at, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := q.db.ExecContext(ctx, query,
		row.ID, row.Cadence, row.SourceFilename, row.FileSizeBytes, row.StoragePath, row.UploadedAt, row.State,
	)
	if err != nil {
		return fmt.Errorf("create import batch: %w", err)
	}
	return nil
}

// UpdateImportBatchCounts records row-level totals once parsing completes.
func (q *Queries) UpdateImportBatchCounts(ctx context.Context, id string, total, valid, errs, warnings int, state string) error {
	const query = `
		UPDATE aps_import_batch
		SET total_rows = $2, valid_rows = $3, error_rows = $4, warning_rows = $5, state = $6
		WHERE id = $1
	`
	_, err := q.db.ExecContext(ctx, query, id, total, valid, errs, warnings, state)
	if err != nil {
		return fmt.Errorf("update import batch counts: %w", err)
	}
	return nil
}

// GetImportBatch fetches one batch by id.
func (q *Queries) GetImportBatch(ctx context.Context, id string) (*ImportBatchRow, error) {
	const query = `
		SELECT id, cadence, source_filename, file_size_bytes, storage_path, uploaded_at,
		       total_rows, valid_rows, error_rows, warning_rows, state
		FROM aps_import_batch
		WHERE id = $1
	`
	var row ImportBatchRow
	err := q.db.QueryRowContext(ctx, query, id).Scan(
		&row.ID, &row.Cadence, &row.SourceFilename, &row.FileSizeBytes, &row.StoragePath, &row.UploadedAt,
		&row.TotalRows, &row.ValidRows, &row.ErrorRows, &row.WarningRows, &row.State,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get import batch: %w", err)
	}
	return &row, nil
}
