// Package executor applies groups of row batches concurrently on a worker
// pool, falling back to the calling goroutine when no pool can be started.
package executor

import (
	"context"
	"fmt"

	"github.com/gear6io/scylla-backfill/dbclient"
	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/rs/zerolog"
)

// WriteFunc writes one batch to the target
type WriteFunc func(ctx context.Context, batch []dbclient.Row) error

// PoolFactory builds the pool for one Apply call
type PoolFactory func(workers, queueSize int, logger zerolog.Logger) (Pool, error)

// ApplyResult summarises one Apply call
type ApplyResult struct {
	RowsApplied   int64
	BatchesFailed int
	// Sequential is set when the pool could not be started
	Sequential bool
}

// Executor is the Parallel Batch Executor
type Executor struct {
	maxWorkers int
	newPool    PoolFactory
	logger     zerolog.Logger
}

// New returns an executor running at most maxWorkers writes at once
func New(maxWorkers int, logger zerolog.Logger) *Executor {
	return &Executor{
		maxWorkers: maxWorkers,
		newPool:    defaultPool,
		logger:     logger.With().Str("component", "executor").Logger(),
	}
}

// WithPoolFactory replaces how pools are built
func (e *Executor) WithPoolFactory(f PoolFactory) *Executor {
	e.newPool = f
	return e
}

// MaxWorkers is the configured degree of parallelism
func (e *Executor) MaxWorkers() int { return e.maxWorkers }

func defaultPool(workers, queueSize int, logger zerolog.Logger) (Pool, error) {
	pool, err := NewWorkerPool(workers, queueSize, logger)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// Apply writes every batch exactly once. Failed batches are logged and left
// out of RowsApplied. If the pool cannot be built or started, all batches are
// written sequentially instead and the pool is never used.
func (e *Executor) Apply(ctx context.Context, batches [][]dbclient.Row, write WriteFunc) ApplyResult {
	if len(batches) == 0 {
		return ApplyResult{}
	}

	workers := e.maxWorkers
	if workers > len(batches) {
		workers = len(batches)
	}

	pool, err := e.newPool(workers, len(batches), e.logger)
	if err == nil {
		err = pool.Start(ctx)
	}
	if err != nil {
		e.logger.Warn().Err(err).Int("batches", len(batches)).Msg("Worker pool unavailable, applying batches sequentially")
		return e.applySequential(ctx, batches, write)
	}

	return e.applyParallel(pool, batches, write)
}

func (e *Executor) applyParallel(pool Pool, batches [][]dbclient.Row, write WriteFunc) ApplyResult {
	var result ApplyResult
	sizes := make(map[string]int, len(batches))

	for i, batch := range batches {
		task := &batchTask{id: fmt.Sprintf("batch-%d", i), rows: batch, write: write}
		if err := pool.Submit(task); err != nil {
			result.BatchesFailed++
			e.logger.Error().Err(err).Str("task_id", task.id).Int("rows", len(batch)).Msg("Failed to submit batch")
			continue
		}
		sizes[task.id] = len(batch)
	}

	for received := 0; received < len(sizes); received++ {
		res, ok := <-pool.Results()
		if !ok {
			// the pool went away before reporting every task
			result.BatchesFailed += len(sizes) - received
			e.logger.Error().Int("missing", len(sizes)-received).Msg("Worker pool closed before all batches reported")
			break
		}
		if res.Err != nil {
			result.BatchesFailed++
			e.logger.Error().Err(res.Err).Str("task_id", res.TaskID).Int("rows", sizes[res.TaskID]).Msg("Batch failed")
			continue
		}
		result.RowsApplied += int64(sizes[res.TaskID])
	}

	if err := pool.Stop(); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to stop worker pool")
	}
	if sr, ok := pool.(statsReporter); ok {
		st := sr.GetStats()
		e.logger.Debug().
			Int("workers", st.TotalWorkers).
			Int64("tasks_completed", st.TasksCompleted).
			Int64("tasks_failed", st.TasksFailed).
			Dur("average_work_time", st.AverageWorkTime).
			Msg("Worker pool finished")
	}
	return result
}

func (e *Executor) applySequential(ctx context.Context, batches [][]dbclient.Row, write WriteFunc) ApplyResult {
	result := ApplyResult{Sequential: true}
	for i, batch := range batches {
		task := &batchTask{id: fmt.Sprintf("batch-%d", i), rows: batch, write: write}
		if err := task.run(ctx); err != nil {
			result.BatchesFailed++
			e.logger.Error().Err(err).Str("task_id", task.id).Int("rows", len(batch)).Msg("Batch failed")
			continue
		}
		result.RowsApplied += int64(len(batch))
	}
	return result
}

type batchTask struct {
	id    string
	rows  []dbclient.Row
	write WriteFunc
}

func (t *batchTask) GetID() string { return t.id }

func (t *batchTask) Execute(ctx context.Context) error {
	return t.write(ctx, t.rows)
}

// run executes the task on the calling goroutine, converting a panic into an error
func (t *batchTask) run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(ErrTaskPanicked, fmt.Sprintf("task panicked: %v", r), nil).AddContext("task_id", t.id)
		}
	}()
	return t.Execute(ctx)
}
