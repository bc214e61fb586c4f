package executor

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcTask struct {
	id string
	fn func(ctx context.Context) error
}

func (t funcTask) Execute(ctx context.Context) error { return t.fn(ctx) }
func (t funcTask) GetID() string { return t.id }

func TestWorkerPoolLifecycle(t *testing.T) {
	pool, err := NewWorkerPool(2, 4, zerolog.Nop())
	require.NoError(t, err)

	err = pool.Submit(funcTask{id: "early", fn: func(context.Context) error { return nil }})
	assert.True(t, errors.HasCode(err, ErrPoolNotRunning))

	require.NoError(t, pool.Start(context.Background()))
	assert.True(t, errors.HasCode(pool.Start(context.Background()), ErrPoolAlreadyRunning))

	require.NoError(t, pool.Submit(funcTask{id: "ok", fn: func(context.Context) error { return nil }}))
	require.NoError(t, pool.Submit(funcTask{id: "bad", fn: func(context.Context) error { return stderrors.New("nope") }}))

	results := map[string]error{}
	for i := 0; i < 2; i++ {
		r := <-pool.Results()
		results[r.TaskID] = r.Err
	}
	assert.NoError(t, results["ok"])
	assert.Error(t, results["bad"])

	require.NoError(t, pool.Stop())
	assert.True(t, errors.HasCode(pool.Stop(), ErrPoolNotRunning))

	stats := pool.GetStats()
	assert.Equal(t, 2, stats.TotalWorkers)
	assert.Equal(t, int64(2), stats.TasksQueued)
	assert.Equal(t, int64(1), stats.TasksCompleted)
	assert.Equal(t, int64(1), stats.TasksFailed)
	assert.Equal(t, 0, stats.ActiveWorkers)
}

func TestWorkerPoolQueueFull(t *testing.T) {
	pool, err := NewWorkerPool(1, 1, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))

	release := make(chan struct{})
	started := make(chan struct{})
	block := funcTask{id: "block", fn: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}
	require.NoError(t, pool.Submit(block))
	<-started

	require.NoError(t, pool.Submit(funcTask{id: "queued", fn: func(context.Context) error { return nil }}))
	err = pool.Submit(funcTask{id: "overflow", fn: func(context.Context) error { return nil }})
	assert.True(t, errors.HasCode(err, ErrQueueFull))

	close(release)
	<-pool.Results()
	<-pool.Results()
	require.NoError(t, pool.Stop())
}

func TestWorkerPoolPanicBecomesFailure(t *testing.T) {
	pool, err := NewWorkerPool(1, 1, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.Submit(funcTask{id: "panic", fn: func(context.Context) error { panic("bad row") }}))
	r := <-pool.Results()
	assert.True(t, errors.HasCode(r.Err, ErrTaskPanicked))
	require.NoError(t, pool.Stop())
}

func TestNewWorkerPoolRejectsZeroWorkers(t *testing.T) {
	_, err := NewWorkerPool(0, 10, zerolog.Nop())
	assert.True(t, errors.HasCode(err, ErrPoolStartup))
}
