// Package workerpool provides a bounded fan-out helper (min(cores, 8)
// workers unless configured). The orchestrator uses it to dispatch work
// orders to MES concurrently; the pipeline stages do not use it.
package workerpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Size returns the configured pool size, or min(NumCPU, 8) when size <= 0.
func Size(configured int) int {
	if configured > 0 {
		return configured
	}
	n := runtime.NumCPU()
	if n > 8 {
		return 8
	}
	if n < 1 {
		return 1
	}
	return n
}

// Run applies fn to every item in items, fanned out across at most
// poolSize concurrent workers. It returns the first error encountered;
// ctx cancellation stops dispatch of further items.
func Run[T any](ctx context.Context, poolSize int, items []T, fn func(context.Context, T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Size(poolSize))

	for _, item := range items {
		item := item
		g.Go(func() error {
			return fn(gctx, item)
		})
	}
	return g.Wait()
}

// RunIndexed is Run but also hands the partition index to fn, useful when
// workers must write into a pre-sized results slice without a mutex.
func RunIndexed[T any](ctx context.Context, poolSize int, items []T, fn func(context.Context, int, T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Size(poolSize))

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			return fn(gctx, i, item)
		})
	}
	return g.Wait()
}
