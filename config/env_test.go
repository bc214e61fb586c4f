package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEnvPrefersNewNames(t *testing.T) {
	t.Setenv("SRC_SCYLLA_CONTACT_POINTS", "src1,src2")
	t.Setenv("PRD_SCYLLA_CONTACT_POINTS", "legacy")
	t.Setenv("SRC_SCYLLA_KEYSPACE", "src_ks")
	t.Setenv("STG_SCYLLA_KEYSPACE", "stage_ks")
	t.Setenv("STG_SCYLLA_USERNAME", "stage_user")
	t.Setenv("BATCH_SIZE", "1200")
	t.Setenv("MAX_WORKERS", "8")
	t.Setenv("ENABLE_RESUME", "False")
	t.Setenv("ENABLE_PARALLEL", "TRUE")

	cfg := LoadDefaultConfig()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, []string{"src1", "src2"}, cfg.Source.ContactPoints)
	assert.Equal(t, "src_ks", cfg.Source.Keyspace)
	assert.Equal(t, "stage_ks", cfg.Target.Keyspace, "legacy STG_ name is the fallback")
	assert.Equal(t, "stage_user", cfg.Target.Username)
	assert.Equal(t, 1200, cfg.Backfill.BatchSize)
	assert.Equal(t, 8, cfg.Backfill.MaxWorkers)
	assert.False(t, cfg.Backfill.EnableResume)
	assert.True(t, cfg.Backfill.EnableParallel)
}

func TestApplyEnvRejectsNonInteger(t *testing.T) {
	t.Setenv("BATCH_SIZE", "lots")

	cfg := LoadDefaultConfig()
	err := cfg.ApplyEnv()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrInvalidEnvValue))
	assert.Equal(t, "BATCH_SIZE", errors.GetContext(err)["key"])
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "proto_backfill.env")
	require.NoError(t, os.WriteFile(envFile, []byte("TGT_SCYLLA_KEYSPACE=from_file\n"), 0644))

	// t.Setenv registers cleanup; the file load then sets the real value
	t.Setenv("TGT_SCYLLA_KEYSPACE", "")
	require.NoError(t, os.Unsetenv("TGT_SCYLLA_KEYSPACE"))

	require.NoError(t, LoadEnvFiles(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "from_file", os.Getenv("TGT_SCYLLA_KEYSPACE"))

	cfg := LoadDefaultConfig()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "from_file", cfg.Target.Keyspace)
}
