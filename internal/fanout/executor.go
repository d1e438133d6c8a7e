package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"

	"feedworks/pkg/models"
)

// DefaultWorkers bounds concurrent batch calls per event. High-follower
// accounts can produce thousands of chunks; launching one call per chunk
// would hand the store an unbounded burst.
const DefaultWorkers = 4

// TimelineWriter applies one batch of mutations against the timeline store.
type TimelineWriter interface {
	ApplyBatch(ctx context.Context, batch []models.TimelineMutation) error
}

// Executor splits mutation lists into store-sized batches and dispatches
// them through a fixed-size worker pool.
type Executor struct {
	writer    TimelineWriter
	batchSize int
	workers   int
}

// NewExecutor creates an executor. Non-positive sizes fall back to defaults.
func NewExecutor(writer TimelineWriter, batchSize, workers int) *Executor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Executor{
		writer:    writer,
		batchSize: batchSize,
		workers:   workers,
	}
}

// Apply executes all mutations. Any batch failure fails the whole call;
// the caller must treat the originating event as unprocessed so upstream
// redelivery retries it from scratch.
func (x *Executor) Apply(ctx context.Context, muts []models.TimelineMutation) error {
	if len(muts) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.workers)

	for _, batch := range Chunk(muts, x.batchSize) {
		batch := batch
		g.Go(func() error {
			return x.writer.ApplyBatch(gctx, batch)
		})
	}

	return g.Wait()
}
