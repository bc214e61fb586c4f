package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/joho/godotenv"
)

// DefaultEnvFiles are loaded, when present, if no env file is given explicitly
var DefaultEnvFiles = []string{"proto_backfill.env", ".env"}

// LoadEnvFiles loads dotenv files into the process environment. Variables that
// are already set win. Missing files are skipped.
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errors.New(ErrEnvFileLoadFailed, "failed to load env file", err).AddContext("path", f)
		}
	}
	return nil
}

// ApplyEnv overlays environment variables on the configuration. SRC_ and TGT_
// names win over the legacy PRD_ and STG_ names.
func (c *Config) ApplyEnv() error {
	applyDatabaseEnv(&c.Source, "SRC", "PRD")
	applyDatabaseEnv(&c.Target, "TGT", "STG")

	if err := envInt(&c.Backfill.BatchSize, "BATCH_SIZE"); err != nil {
		return err
	}
	if err := envInt(&c.Backfill.MaxRetries, "MAX_RETRIES"); err != nil {
		return err
	}
	if err := envInt(&c.Backfill.MaxWorkers, "MAX_WORKERS"); err != nil {
		return err
	}
	envBool(&c.Backfill.EnableResume, "ENABLE_RESUME")
	envBool(&c.Backfill.EnableParallel, "ENABLE_PARALLEL")

	if v, ok := lookupEnv("CHECKPOINT_DIR"); ok {
		c.Backfill.CheckpointDir = v
	}
	if v, ok := lookupEnv("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}
	return nil
}

func applyDatabaseEnv(d *DatabaseConfig, prefix, legacy string) {
	if v, ok := lookupEnv(prefix+"_SCYLLA_CONTACT_POINTS", legacy+"_SCYLLA_CONTACT_POINTS"); ok {
		d.ContactPoints = SplitContactPoints(v)
	}
	if v, ok := lookupEnv(prefix+"_SCYLLA_USERNAME", legacy+"_SCYLLA_USERNAME"); ok {
		d.Username = v
	}
	if v, ok := lookupEnv(prefix+"_SCYLLA_PASSWORD", legacy+"_SCYLLA_PASSWORD"); ok {
		d.Password = v
	}
	if v, ok := lookupEnv(prefix+"_SCYLLA_KEYSPACE", legacy+"_SCYLLA_KEYSPACE"); ok {
		d.Keyspace = v
	}
	if v, ok := lookupEnv(prefix + "_DRIVER"); ok {
		d.Driver = strings.ToLower(v)
	}
	if v, ok := lookupEnv(prefix + "_DSN"); ok {
		d.DSN = v
	}
}

// lookupEnv returns the first non-empty variable among keys
func lookupEnv(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func envInt(dst *int, key string) error {
	v, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return errors.New(ErrInvalidEnvValue, "environment variable is not an integer", err).AddContext("key", key)
	}
	*dst = n
	return nil
}

// envBool follows the original convention: only "true" (any case) enables
func envBool(dst *bool, key string) {
	if v, ok := lookupEnv(key); ok {
		*dst = strings.EqualFold(strings.TrimSpace(v), "true")
	}
}
