package executor

import "github.com/gear6io/scylla-backfill/pkg/errors"

// executor error codes
var (
	ErrPoolAlreadyRunning = errors.MustNewCode("executor.pool_already_running")
	ErrPoolNotRunning     = errors.MustNewCode("executor.pool_not_running")
	ErrPoolStartup        = errors.MustNewCode("executor.pool_startup_failed")
	ErrQueueFull          = errors.MustNewCode("executor.queue_full")
	ErrTaskPanicked       = errors.MustNewCode("executor.task_panicked")
)
