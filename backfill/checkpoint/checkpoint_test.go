package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gear6io/scylla-backfill/config"
	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories runs every test against both backends
func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"file": func() Store {
			return NewFileStore(filepath.Join(t.TempDir(), "checkpoints"), zerolog.Nop())
		},
		"sqlite": func() Store {
			s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), DefaultSQLiteFile), zerolog.Nop())
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestSaveLoadClear(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()

			require.NoError(t, store.Save(ctx, Checkpoint{
				TableName:      "users",
				ProcessedCount: 5000,
				TotalCount:     12345,
				BatchSize:      5000,
			}))

			cp := store.Load(ctx, "users")
			require.NotNil(t, cp)
			assert.Equal(t, "users", cp.TableName)
			assert.Equal(t, int64(5000), cp.ProcessedCount)
			assert.Equal(t, int64(12345), cp.TotalCount)
			assert.Equal(t, 5000, cp.BatchSize)

			ts, err := cp.Time()
			require.NoError(t, err)
			assert.Equal(t, time.UTC, ts.Location())

			require.NoError(t, store.Clear(ctx, "users"))
			assert.Nil(t, store.Load(ctx, "users"))
		})
	}
}

func TestLoadAbsentAndClearAbsent(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			assert.Nil(t, store.Load(ctx, "never_saved"))
			assert.NoError(t, store.Clear(ctx, "never_saved"))
		})
	}
}

func TestSaveClampsStaleTotal(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			require.NoError(t, store.Save(ctx, Checkpoint{TableName: "t", ProcessedCount: 50, TotalCount: 40, BatchSize: 10}))

			cp := store.Load(ctx, "t")
			require.NotNil(t, cp)
			assert.Equal(t, int64(50), cp.TotalCount)
			assert.LessOrEqual(t, cp.ProcessedCount, cp.TotalCount)
		})
	}
}

func TestTimestampsStrictlyIncrease(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	store := NewFileStore(t.TempDir(), zerolog.Nop()).WithClock(func() time.Time { return fixed })

	var last time.Time
	for i := 1; i <= 3; i++ {
		require.NoError(t, store.Save(ctx, Checkpoint{TableName: "t", ProcessedCount: int64(i), TotalCount: 3, BatchSize: 1}))
		cp := store.Load(ctx, "t")
		require.NotNil(t, cp)
		ts, err := cp.Time()
		require.NoError(t, err)
		assert.True(t, ts.After(last), "save %d: %s not after %s", i, ts, last)
		last = ts
	}
}

func TestFileStoreWritesIndentedJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "checkpoints")
	store := NewFileStore(dir, zerolog.Nop())
	require.NoError(t, store.Save(context.Background(), Checkpoint{TableName: "orders", ProcessedCount: 1, TotalCount: 2, BatchSize: 5}))

	data, err := os.ReadFile(filepath.Join(dir, "orders.json"))
	require.NoError(t, err)
	assert.True(t, bytes.Contains(data, []byte("\n  \"table_name\": \"orders\"")))

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, k := range []string{"table_name", "processed_count", "total_count", "timestamp", "batch_size"} {
		assert.Contains(t, fields, k)
	}

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm()&0755)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStoreMalformedRecords(t *testing.T) {
	dir := t.TempDir()
	var logs bytes.Buffer
	store := NewFileStore(dir, zerolog.New(&logs))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "negative.json"),
		[]byte(`{"table_name":"negative","processed_count":-1,"total_count":0,"timestamp":"2024-01-01T00:00:00Z","batch_size":1}`), 0644))
	require.NoError(t, store.Save(context.Background(), Checkpoint{TableName: "good", ProcessedCount: 1, TotalCount: 1, BatchSize: 1}))

	assert.Nil(t, store.Load(context.Background(), "broken"))
	assert.Nil(t, store.Load(context.Background(), "negative"))
	assert.Contains(t, logs.String(), "Ignoring malformed checkpoint")

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "good", list[0].TableName)
}

func TestListSortedByTable(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			for _, table := range []string{"zeta", "alpha", "mid"} {
				require.NoError(t, store.Save(ctx, Checkpoint{TableName: table, ProcessedCount: 1, TotalCount: 1, BatchSize: 1}))
			}
			list, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, "alpha", list[0].TableName)
			assert.Equal(t, "zeta", list[2].TableName)
		})
	}
}

func TestListMissingDirectory(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent"), zerolog.Nop())
	list, err := store.List(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, list)
}

func TestRejectsUnsafeTableNames(t *testing.T) {
	store := NewFileStore(t.TempDir(), zerolog.Nop())
	for _, table := range []string{"", "..", "../etc/passwd", `a\b`} {
		err := store.Save(context.Background(), Checkpoint{TableName: table, ProcessedCount: 1, TotalCount: 1, BatchSize: 1})
		assert.True(t, errors.HasCode(err, ErrInvalidTableName), "table %q", table)
	}
}

func TestSaveRejectsZeroBatchSize(t *testing.T) {
	store := NewFileStore(t.TempDir(), zerolog.Nop())
	err := store.Save(context.Background(), Checkpoint{TableName: "t", ProcessedCount: 1, TotalCount: 1})
	assert.True(t, errors.HasCode(err, ErrInvalidRecord))
}

func TestProgress(t *testing.T) {
	cp := Checkpoint{ProcessedCount: 25, TotalCount: 100}
	if got := cp.Progress(); got != 25 {
		t.Errorf("Progress() = %v, want 25", got)
	}
	empty := Checkpoint{}
	if got := empty.Progress(); got != 0 {
		t.Errorf("Progress() = %v, want 0", got)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	cfg := config.LoadDefaultConfig().Backfill
	cfg.CheckpointDir = t.TempDir()

	store, err := Open(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	cfg.CheckpointBackend = config.CheckpointBackendSQLite
	store, err = Open(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	cfg.CheckpointBackend = "redis"
	_, err = Open(ctx, cfg, zerolog.Nop())
	assert.True(t, errors.HasCode(err, ErrStoreOpen))
}
