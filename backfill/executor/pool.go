package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/rs/zerolog"
)

// Task is one unit of work run by the pool
type Task interface {
	Execute(ctx context.Context) error
	GetID() string
}

// TaskResult reports the outcome of one task, in completion order
type TaskResult struct {
	TaskID   string
	Err      error
	Duration time.Duration
}

// Pool is the subset of WorkerPool the executor depends on
type Pool interface {
	Start(ctx context.Context) error
	Submit(task Task) error
	Results() <-chan TaskResult
	Stop() error
}

// statsReporter is implemented by pools that keep counters
type statsReporter interface {
	GetStats() *PoolStats
}

// WorkerPool runs tasks on a fixed number of goroutines
type WorkerPool struct {
	maxWorkers int
	workers    []*worker
	taskQueue  chan Task
	results    chan TaskResult
	logger     zerolog.Logger
	mu         sync.RWMutex
	running    bool
	wg         sync.WaitGroup
	stats      poolCounters
}

type poolCounters struct {
	queued    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	active    atomic.Int32
	workTime  atomic.Int64
}

// PoolStats tracks worker pool performance metrics
type PoolStats struct {
	TotalWorkers    int           `json:"total_workers"`
	ActiveWorkers   int           `json:"active_workers"`
	TasksQueued     int64         `json:"tasks_queued"`
	TasksCompleted  int64         `json:"tasks_completed"`
	TasksFailed     int64         `json:"tasks_failed"`
	TotalWorkTime   time.Duration `json:"total_work_time"`
	AverageWorkTime time.Duration `json:"average_work_time"`
}

type worker struct {
	id   int
	pool *WorkerPool
}

// NewWorkerPool creates a pool whose queue and result channel hold
// queueSize entries, so a job of that many tasks never blocks on submit
func NewWorkerPool(maxWorkers, queueSize int, logger zerolog.Logger) (*WorkerPool, error) {
	if maxWorkers < 1 {
		return nil, errors.New(ErrPoolStartup, "worker pool needs at least one worker", nil).
			AddContext("max_workers", fmt.Sprintf("%d", maxWorkers))
	}
	if queueSize < 1 {
		queueSize = maxWorkers
	}

	pool := &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan Task, queueSize),
		results:    make(chan TaskResult, queueSize),
		logger:     logger,
	}
	pool.workers = make([]*worker, maxWorkers)
	for i := 0; i < maxWorkers; i++ {
		pool.workers[i] = &worker{id: i, pool: pool}
	}
	return pool, nil
}

// Start launches the workers. Tasks run with ctx.
func (wp *WorkerPool) Start(ctx context.Context) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running {
		return errors.New(ErrPoolAlreadyRunning, "worker pool is already running", nil)
	}

	for _, w := range wp.workers {
		wp.wg.Add(1)
		go w.run(ctx)
	}

	wp.running = true
	wp.logger.Debug().Int("max_workers", wp.maxWorkers).Msg("Worker pool started")
	return nil
}

// Stop closes the queue and waits for the workers to drain it
func (wp *WorkerPool) Stop() error {
	wp.mu.Lock()
	if !wp.running {
		wp.mu.Unlock()
		return errors.New(ErrPoolNotRunning, "worker pool is not running", nil)
	}
	wp.running = false
	close(wp.taskQueue)
	wp.mu.Unlock()

	wp.wg.Wait()
	close(wp.results)
	wp.logger.Debug().Msg("Worker pool stopped")
	return nil
}

// Submit queues a task without blocking
func (wp *WorkerPool) Submit(task Task) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.running {
		return errors.New(ErrPoolNotRunning, "worker pool is not running", nil)
	}

	select {
	case wp.taskQueue <- task:
		wp.stats.queued.Add(1)
		return nil
	default:
		return errors.New(ErrQueueFull, "task queue is full", nil).AddContext("task_id", task.GetID())
	}
}

// Results delivers one TaskResult per executed task
func (wp *WorkerPool) Results() <-chan TaskResult {
	return wp.results
}

// GetStats returns worker pool statistics
func (wp *WorkerPool) GetStats() *PoolStats {
	completed := wp.stats.completed.Load()
	failed := wp.stats.failed.Load()
	stats := &PoolStats{
		TotalWorkers:   wp.maxWorkers,
		ActiveWorkers:  int(wp.stats.active.Load()),
		TasksQueued:    wp.stats.queued.Load(),
		TasksCompleted: completed,
		TasksFailed:    failed,
		TotalWorkTime:  time.Duration(wp.stats.workTime.Load()),
	}
	if done := completed + failed; done > 0 {
		stats.AverageWorkTime = stats.TotalWorkTime / time.Duration(done)
	}
	return stats
}

func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()
	for task := range w.pool.taskQueue {
		w.pool.results <- w.processTask(ctx, task)
	}
}

func (w *worker) processTask(ctx context.Context, task Task) (res TaskResult) {
	start := time.Now()
	stats := &w.pool.stats
	stats.active.Add(1)

	res.TaskID = task.GetID()
	defer func() {
		if r := recover(); r != nil {
			res.Err = errors.New(ErrTaskPanicked, fmt.Sprintf("task panicked: %v", r), nil).
				AddContext("task_id", res.TaskID)
		}
		res.Duration = time.Since(start)
		stats.active.Add(-1)
		stats.workTime.Add(int64(res.Duration))
		if res.Err != nil {
			stats.failed.Add(1)
		} else {
			stats.completed.Add(1)
		}
	}()

	res.Err = task.Execute(ctx)
	return res
}
