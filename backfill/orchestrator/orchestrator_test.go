package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/gear6io/scylla-backfill/backfill/checkpoint"
	"github.com/gear6io/scylla-backfill/config"
	"github.com/gear6io/scylla-backfill/dbclient"
	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSampler struct{}

func (staticSampler) MemoryPercent(context.Context) (float64, error) { return 10, nil }
func (staticSampler) CPUPercent(context.Context) (float64, error) { return 5, nil }

func tableSchema(name string) dbclient.Schema {
	return dbclient.Schema{
		Table:      name,
		Columns:    []dbclient.Column{{Name: "id", Type: "int"}, {Name: "name", Type: "text"}},
		PrimaryKey: []string{"id"},
	}
}

type env struct {
	source *dbclient.MemoryClient
	target *dbclient.MemoryClient
	store  checkpoint.Store
	cfg    *config.Config
}

// newEnv creates the given tables with rows rows each on the source and
// empty copies on the target
func newEnv(t *testing.T, rows int, tables ...string) *env {
	t.Helper()
	e := &env{
		source: dbclient.NewMemoryClient(),
		target: dbclient.NewMemoryClient(),
		store:  checkpoint.NewFileStore(t.TempDir(), zerolog.Nop()),
		cfg:    config.LoadDefaultConfig(),
	}
	e.cfg.Backfill.BatchSize = 4
	e.cfg.Backfill.EnableParallel = false
	for _, name := range tables {
		data := make([]dbclient.Row, rows)
		for i := range data {
			data[i] = dbclient.Row{i, fmt.Sprintf("%s-%d", name, i)}
		}
		e.source.CreateTable(tableSchema(name), data...)
		e.target.CreateTable(tableSchema(name))
	}
	return e
}

func (e *env) connector() Connector {
	return func(ctx context.Context, role string, cfg config.DatabaseConfig) (dbclient.Client, error) {
		if role == RoleSource {
			return e.source, nil
		}
		return e.target, nil
	}
}

func (e *env) orchestrator(opts ...Option) *Orchestrator {
	opts = append([]Option{
		WithConnector(e.connector()),
		WithStore(e.store),
		WithHostSampler(staticSampler{}),
	}, opts...)
	return New(e.cfg, zerolog.Nop(), opts...)
}

func TestRunCopiesAllTables(t *testing.T) {
	e := newEnv(t, 10, "a", "b", "c")

	stats, err := e.orchestrator().Run(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	assert.Len(t, stats.RunID, 26)
	assert.Equal(t, 3, stats.TablesProcessed)
	assert.Equal(t, 0, stats.TablesSkipped)
	assert.Equal(t, int64(30), stats.RecordsProcessed)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, 0, stats.ValidationFailures)
	assert.Empty(t, stats.FailedTables)
	assert.Len(t, stats.PerTableMetrics, 3)
	assert.Equal(t, int64(10), stats.PerTableMetrics["b"].TotalRecords)
	assert.False(t, stats.EndTime.Before(stats.StartTime))
	assert.False(t, stats.HasFailures())

	for _, table := range []string{"a", "b", "c"} {
		assert.Len(t, e.target.TableRows(table), 10, table)
	}
	assert.True(t, e.source.Closed())
	assert.True(t, e.target.Closed())
}

func TestRunStopsBetweenTables(t *testing.T) {
	e := newEnv(t, 10, "a", "b", "c")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// shutdown arrives while the first table is being written
	e.target.SetWriteHook(func(table string, row dbclient.Row) error {
		cancel()
		return nil
	})

	stats, err := e.orchestrator().Run(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.TablesProcessed)
	assert.Equal(t, int64(10), stats.RecordsProcessed)
	assert.Len(t, e.target.TableRows("a"), 10)
	assert.Nil(t, e.store.Load(context.Background(), "a"), "finished table leaves no checkpoint")
	assert.Empty(t, e.target.TableRows("b"))
	assert.Empty(t, e.target.TableRows("c"))
	assert.True(t, e.source.Closed())
	assert.True(t, e.target.Closed())
}

func TestRunCancelledBeforeStart(t *testing.T) {
	e := newEnv(t, 5, "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := e.orchestrator().Run(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TablesProcessed)
	assert.Empty(t, e.target.TableRows("a"))
}

func TestRunTargetConnectionFailure(t *testing.T) {
	e := newEnv(t, 5, "a")
	boom := stderrors.New("connection refused")
	connect := func(ctx context.Context, role string, cfg config.DatabaseConfig) (dbclient.Client, error) {
		if role == RoleTarget {
			return nil, boom
		}
		return e.source, nil
	}

	stats, err := e.orchestrator(WithConnector(connect)).Run(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrInitFailed))
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, stats)
	assert.Equal(t, 0, stats.TablesProcessed)
	assert.True(t, e.source.Closed())
}

func TestRunSourceConnectionFailure(t *testing.T) {
	e := newEnv(t, 5, "a")
	connected := false
	connect := func(ctx context.Context, role string, cfg config.DatabaseConfig) (dbclient.Client, error) {
		if role == RoleTarget {
			connected = true
			return e.target, nil
		}
		return nil, stderrors.New("no hosts available")
	}

	_, err := e.orchestrator(WithConnector(connect)).Run(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrInitFailed))
	assert.False(t, connected, "target must not be opened when the source fails")
}

func TestRunContinuesAfterTableFailure(t *testing.T) {
	e := newEnv(t, 6, "a", "b", "c")
	e.target.SetWriteHook(func(table string, row dbclient.Row) error {
		if table == "b" {
			return stderrors.New("write timeout")
		}
		return nil
	})

	stats, err := e.orchestrator().Run(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TablesProcessed)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, []string{"b"}, stats.FailedTables)
	assert.Equal(t, int64(12), stats.RecordsProcessed)
	assert.NotContains(t, stats.PerTableMetrics, "b")
	assert.True(t, stats.HasFailures())
	assert.Len(t, e.target.TableRows("c"), 6)
}

func TestRunSkipsMissingTable(t *testing.T) {
	e := newEnv(t, 3, "a")

	stats, err := e.orchestrator().Run(context.Background(), []string{"ghost", "a"})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TablesProcessed)
	assert.Equal(t, 1, stats.TablesSkipped)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, 0, stats.ValidationFailures)
	assert.Equal(t, int64(3), stats.RecordsProcessed)
}

func TestRunCountsValidationMismatch(t *testing.T) {
	e := newEnv(t, 5, "a", "b")
	e.target.SetCountOverride("a", 999)

	stats, err := e.orchestrator().Run(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TablesProcessed)
	assert.Equal(t, 1, stats.ValidationFailures)
	assert.Equal(t, 0, stats.Errors)
	assert.True(t, stats.HasFailures())
}

func TestRunWithoutValidation(t *testing.T) {
	e := newEnv(t, 5, "a")
	e.cfg.Backfill.ValidateAfterCopy = false
	e.target.SetCountOverride("a", 999)

	stats, err := e.orchestrator().Run(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ValidationFailures)
}

func TestStatusDuringRun(t *testing.T) {
	e := newEnv(t, 4, "a")
	o := e.orchestrator()

	var seen Status
	e.target.SetWriteHook(func(table string, row dbclient.Row) error {
		seen = o.Status()
		return nil
	})

	assert.False(t, o.Status().Running)

	stats, err := o.Run(context.Background(), []string{"a"})
	require.NoError(t, err)

	assert.True(t, seen.Running)
	assert.Equal(t, "a", seen.CurrentTable)
	assert.Equal(t, stats.RunID, seen.Stats.RunID)

	after := o.Status()
	assert.False(t, after.Running)
	assert.Empty(t, after.CurrentTable)
	assert.Equal(t, 1, after.Stats.TablesProcessed)
}

func TestRunStatisticsCopyIsIndependent(t *testing.T) {
	s := newRunStatistics("run", time.Time{})
	s.FailedTables = append(s.FailedTables, "a")

	c := s.Copy()
	c.FailedTables[0] = "changed"
	c.PerTableMetrics["x"] = c.PerTableMetrics["y"]

	assert.Equal(t, "a", s.FailedTables[0])
	assert.Empty(t, s.PerTableMetrics)
}
