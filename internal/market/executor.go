package market

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Executor runs n indexed tasks and returns once every started task has
// returned. Tasks not yet started when ctx is done are skipped.
type Executor interface {
	Run(ctx context.Context, n int, task func(ctx context.Context, i int))
}

// PoolExecutor runs tasks concurrently, at most Workers at a time.
type PoolExecutor struct {
	Workers int
}

// NewPoolExecutor creates a pool capped at workers.
func NewPoolExecutor(workers int) *PoolExecutor {
	if workers < 1 {
		workers = 1
	}
	return &PoolExecutor{Workers: workers}
}

func (p *PoolExecutor) Run(ctx context.Context, n int, task func(ctx context.Context, i int)) {
	var g errgroup.Group
	g.SetLimit(p.Workers)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() == nil {
				task(ctx, i)
			}
			return nil
		})
	}
	g.Wait()
}

// SyncExecutor runs tasks one after another on the calling goroutine.
type SyncExecutor struct{}

func (SyncExecutor) Run(ctx context.Context, n int, task func(ctx context.Context, i int)) {
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return
		}
		task(ctx, i)
	}
}

// gather runs task for every index under exec and collects results by
// index. It returns when all tasks finish or ctx is done, whichever comes
// first; results of tasks still running at that point are discarded and
// their slots report false in done.
func gather[T any](ctx context.Context, exec Executor, n int, task func(ctx context.Context, i int) T) (out []T, done []bool) {
	type slot struct {
		i int
		v T
	}
	results := make(chan slot, n)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		exec.Run(ctx, n, func(ctx context.Context, i int) {
			results <- slot{i, task(ctx, i)}
		})
	}()

	select {
	case <-finished:
	case <-ctx.Done():
	}

	out = make([]T, n)
	done = make([]bool, n)
	for {
		select {
		case r := <-results:
			out[r.i] = r.v
			done[r.i] = true
		default:
			return out, done
		}
	}
}
