package executor

import (
	"bytes"
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gear6io/scylla-backfill/dbclient"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer lets concurrent loggers share one buffer
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func makeBatches(k, b int) [][]dbclient.Row {
	batches := make([][]dbclient.Row, k)
	id := 0
	for i := range batches {
		for j := 0; j < b; j++ {
			batches[i] = append(batches[i], dbclient.Row{id, "value"})
			id++
		}
	}
	return batches
}

func memoryTarget() (*dbclient.MemoryClient, WriteFunc) {
	target := dbclient.NewMemoryClient()
	target.CreateTable(dbclient.Schema{
		Table:      "events",
		Columns:    []dbclient.Column{{Name: "id"}, {Name: "payload"}},
		PrimaryKey: []string{"id"},
	})
	query := target.Dialect().UpsertQuery("events", []string{"id", "payload"}, []string{"id"})
	write := func(ctx context.Context, batch []dbclient.Row) error {
		entries := make([]dbclient.BatchEntry, len(batch))
		for i, row := range batch {
			entries[i] = dbclient.BatchEntry{Query: query, Values: row}
		}
		return target.ExecuteBatch(ctx, entries)
	}
	return target, write
}

func TestApplyAllBatchesSucceed(t *testing.T) {
	target, write := memoryTarget()
	target.SetWriteDelay(5 * time.Millisecond)

	res := New(4, zerolog.Nop()).Apply(context.Background(), makeBatches(8, 25), write)

	assert.Equal(t, int64(200), res.RowsApplied)
	assert.Equal(t, 0, res.BatchesFailed)
	assert.False(t, res.Sequential)
	assert.Len(t, target.TableRows("events"), 200)
	assert.LessOrEqual(t, target.PeakConcurrency(), 4)
	assert.Greater(t, target.PeakConcurrency(), 1, "workers should share the target client concurrently")
}

func TestApplyOneBatchFails(t *testing.T) {
	target, write := memoryTarget()
	target.SetWriteHook(func(table string, row dbclient.Row) error {
		if row[0] == 42 {
			return stderrors.New("write timeout")
		}
		return nil
	})
	logs := &syncBuffer{}

	res := New(3, zerolog.New(logs)).Apply(context.Background(), makeBatches(6, 10), write)

	assert.Equal(t, int64(50), res.RowsApplied)
	assert.Equal(t, 1, res.BatchesFailed)
	assert.False(t, res.Sequential)
	assert.Equal(t, 1, strings.Count(logs.String(), `"message":"Batch failed"`))
	assert.Len(t, target.TableRows("events"), 50)
}

func TestApplyLogsPoolStats(t *testing.T) {
	target, write := memoryTarget()
	target.SetWriteHook(func(table string, row dbclient.Row) error {
		if row[0] == 0 {
			return stderrors.New("write timeout")
		}
		return nil
	})
	logs := &syncBuffer{}

	New(2, zerolog.New(logs)).Apply(context.Background(), makeBatches(4, 5), write)

	out := logs.String()
	assert.Contains(t, out, `"message":"Worker pool finished"`)
	assert.Contains(t, out, `"workers":2`)
	assert.Contains(t, out, `"tasks_completed":3`)
	assert.Contains(t, out, `"tasks_failed":1`)
}

func TestApplyFallsBackWhenPoolCannotBeBuilt(t *testing.T) {
	var calls atomic.Int32
	write := func(ctx context.Context, batch []dbclient.Row) error {
		calls.Add(1)
		return nil
	}
	exec := New(4, zerolog.Nop()).WithPoolFactory(func(int, int, zerolog.Logger) (Pool, error) {
		return nil, stderrors.New("cannot spawn workers")
	})

	res := exec.Apply(context.Background(), makeBatches(5, 7), write)

	assert.True(t, res.Sequential)
	assert.Equal(t, int64(35), res.RowsApplied)
	assert.Equal(t, 0, res.BatchesFailed)
	assert.Equal(t, int32(5), calls.Load(), "each batch must be written exactly once")
}

type startFailPool struct {
	submitted atomic.Int32
}

func (p *startFailPool) Start(context.Context) error { return stderrors.New("no threads") }
func (p *startFailPool) Submit(Task) error { p.submitted.Add(1); return nil }
func (p *startFailPool) Results() <-chan TaskResult { return nil }
func (p *startFailPool) Stop() error { return nil }

func TestApplyFallsBackWhenPoolCannotStart(t *testing.T) {
	pool := &startFailPool{}
	var calls atomic.Int32
	exec := New(2, zerolog.Nop()).WithPoolFactory(func(int, int, zerolog.Logger) (Pool, error) {
		return pool, nil
	})

	res := exec.Apply(context.Background(), makeBatches(3, 4), func(ctx context.Context, batch []dbclient.Row) error {
		calls.Add(1)
		return nil
	})

	assert.True(t, res.Sequential)
	assert.Equal(t, int64(12), res.RowsApplied)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(0), pool.submitted.Load(), "the concurrent path must not be entered")
}

func TestApplyRecoversPanics(t *testing.T) {
	write := func(ctx context.Context, batch []dbclient.Row) error {
		if batch[0][0] == 0 {
			panic("boom")
		}
		return nil
	}

	res := New(2, zerolog.Nop()).Apply(context.Background(), makeBatches(4, 5), write)
	assert.Equal(t, int64(15), res.RowsApplied)
	assert.Equal(t, 1, res.BatchesFailed)

	exec := New(2, zerolog.Nop()).WithPoolFactory(func(int, int, zerolog.Logger) (Pool, error) {
		return nil, stderrors.New("unavailable")
	})
	res = exec.Apply(context.Background(), makeBatches(4, 5), write)
	assert.True(t, res.Sequential)
	assert.Equal(t, int64(15), res.RowsApplied)
	assert.Equal(t, 1, res.BatchesFailed)
}

func TestApplyEmpty(t *testing.T) {
	res := New(4, zerolog.Nop()).Apply(context.Background(), nil, func(context.Context, []dbclient.Row) error {
		t.Fatal("write must not be called")
		return nil
	})
	assert.Equal(t, ApplyResult{}, res)
}

func TestApplyZeroWorkersRunsSequentially(t *testing.T) {
	res := New(0, zerolog.Nop()).Apply(context.Background(), makeBatches(2, 3), func(context.Context, []dbclient.Row) error {
		return nil
	})
	require.True(t, res.Sequential)
	assert.Equal(t, int64(6), res.RowsApplied)
}
