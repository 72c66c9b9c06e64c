package db

import (
	"context"
	"fmt"
)

// AllocateSequence reserves a contiguous block of `batchSize` sequence
// numbers for (kind, date) and returns the first number in the block. The
// caller hands out batchSize-1 further numbers locally before calling
// again, avoiding one round trip per work order.
func (q *Queries) AllocateSequence(ctx context.Context, kind, dateKey string, batchSize int) (int64, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("allocate sequence: %w", err)
	}
	defer tx.Rollback()

	const upsert = `
		INSERT INTO aps_work_order_sequence (kind, date_key, next_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind, date_key) DO UPDATE
			SET next_value = aps_work_order_sequence.next_value + $3
		RETURNING next_value - $3
	`
	var first int64
	if err := tx.QueryRowContext(ctx, upsert, kind, dateKey, batchSize).Scan(&first); err != nil {
		return 0, fmt.Errorf("allocate sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("allocate sequence: %w", err)
	}
	return first + 1, nil
}

// SequenceAllocator hands out work order sequence numbers in local
// batches so the common path (emitting many orders per task) costs one
// database round trip per batchSize orders instead of one per order.
type SequenceAllocator struct {
	q         *Queries
	batchSize int

	kind    string
	dateKey string
	next    int64
	limit   int64
}

// NewSequenceAllocator constructs an allocator for one (kind, date) pair.
func NewSequenceAllocator(q *Queries, kind, dateKey string, batchSize int) *SequenceAllocator {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &SequenceAllocator{q: q, batchSize: batchSize, kind: kind, dateKey: dateKey}
}

// Next returns the next sequence number, fetching a new block from the
// database whenever the local batch is exhausted.
func (a *SequenceAllocator) Next(ctx context.Context) (int64, error) {
	if a.next >= a.limit {
		first, err := a.q.AllocateSequence(ctx, a.kind, a.dateKey, a.batchSize)
		if err != nil {
			return 0, err
		}
		a.next = first
		a.limit = first + int64(a.batchSize)
	}
	v := a.next
	a.next++
	return v, nil
}
