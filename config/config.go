package config

import (
	"os"
	"strings"
	"time"

	"github.com/gear6io/scylla-backfill/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Supported client drivers
const (
	DriverCQL      = "cql"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite3"
	DriverDuckDB   = "duckdb"
)

// Checkpoint backends
const (
	CheckpointBackendFile   = "file"
	CheckpointBackendSQLite = "sqlite"
)

// Config represents the backfill configuration
type Config struct {
	Source     DatabaseConfig `yaml:"source"`
	Target     DatabaseConfig `yaml:"target"`
	Backfill   BackfillConfig `yaml:"backfill"`
	Tables     []string       `yaml:"tables"`
	TablesFile string         `yaml:"tables_file"`
	Log        LogConfig      `yaml:"log"`
	Status     StatusConfig   `yaml:"status"`
}

// DatabaseConfig describes one side of the copy
type DatabaseConfig struct {
	Driver        string        `yaml:"driver"`         // cql, postgres, mysql, sqlite3, duckdb
	ContactPoints []string      `yaml:"contact_points"` // cql only
	Port          int           `yaml:"port"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	Keyspace      string        `yaml:"keyspace"`
	DSN           string        `yaml:"dsn"` // sql drivers only
	Consistency   string        `yaml:"consistency"`
	Timeout       time.Duration `yaml:"timeout"`
	FetchSize     int           `yaml:"fetch_size"`
}

// BackfillConfig holds the copy engine knobs
type BackfillConfig struct {
	BatchSize         int    `yaml:"batch_size"`
	MaxWorkers        int    `yaml:"max_workers"`
	MaxRetries        int    `yaml:"max_retries"`
	EnableResume      bool   `yaml:"enable_resume"`
	EnableParallel    bool   `yaml:"enable_parallel"`
	CheckpointDir     string `yaml:"checkpoint_dir"`
	CheckpointBackend string `yaml:"checkpoint_backend"`
	CheckpointEvery   int    `yaml:"checkpoint_every"`
	WriteBatchSize    int    `yaml:"write_batch_size"`
	SampleSize        int    `yaml:"sample_size"`
	ValidateAfterCopy bool   `yaml:"validate"`
	FailOnTableError  bool   `yaml:"fail_on_table_error"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`      // "json", "console" or "auto"
	FilePath   string `yaml:"file_path"`   // Path to log file
	Console    bool   `yaml:"console"`     // Whether to log to stdout
	MaxSize    int    `yaml:"max_size"`    // Max file size in MB
	MaxBackups int    `yaml:"max_backups"` // Max number of backup files
	MaxAge     int    `yaml:"max_age"`     // Max age in days
}

// StatusConfig configures the live status endpoint. Empty Addr disables it.
type StatusConfig struct {
	Addr string `yaml:"addr"`
}

// LoadDefaultConfig returns a default configuration
func LoadDefaultConfig() *Config {
	return &Config{
		Source: DatabaseConfig{
			Driver:        DriverCQL,
			ContactPoints: []string{"localhost"},
			Port:          9042,
			Username:      "admin",
			Password:      "password",
			Keyspace:      "source_keyspace",
			Consistency:   "LOCAL_QUORUM",
			Timeout:       30 * time.Second,
			FetchSize:     5000,
		},
		Target: DatabaseConfig{
			Driver:        DriverCQL,
			ContactPoints: []string{"localhost"},
			Port:          9042,
			Username:      "admin",
			Password:      "password",
			Keyspace:      "target_keyspace",
			Consistency:   "LOCAL_QUORUM",
			Timeout:       30 * time.Second,
			FetchSize:     5000,
		},
		Backfill: BackfillConfig{
			BatchSize:         5000,
			MaxWorkers:        4,
			MaxRetries:        3,
			EnableResume:      true,
			EnableParallel:    true,
			CheckpointDir:     "checkpoints",
			CheckpointBackend: CheckpointBackendFile,
			CheckpointEvery:   10,
			WriteBatchSize:    50,
			SampleSize:        100,
			ValidateAfterCopy: true,
		},
		TablesFile: "tables.json",
		Log: LogConfig{
			Level:      "info",
			Format:     "auto",
			Console:    true,
			MaxSize:    100, // 100MB
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// LoadConfig loads configuration from a yaml file on top of the defaults.
// Validation is left to the caller because env and flag overlays come later.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(ErrConfigFileNotFound, "config file not found", err).AddContext("path", filename)
		}
		return nil, errors.New(ErrConfigFileReadFailed, "failed to read config file", err).AddContext("path", filename)
	}

	cfg := LoadDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.New(ErrConfigFileParseFailed, "failed to parse config file", err).AddContext("path", filename)
	}

	return cfg, nil
}

// SaveConfig saves configuration to a file
func SaveConfig(cfg *Config, filename string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.New(ErrConfigFileMarshalFailed, "failed to marshal config", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return errors.New(ErrConfigFileWriteFailed, "failed to write config file", err).AddContext("path", filename)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Source.Validate(); err != nil {
		return errors.New(ErrSourceValidationFailed, "source validation failed", err)
	}
	if err := c.Target.Validate(); err != nil {
		return errors.New(ErrTargetValidationFailed, "target validation failed", err)
	}
	if err := c.Backfill.Validate(); err != nil {
		return errors.New(ErrBackfillValidationFailed, "backfill validation failed", err)
	}
	return nil
}

// Validate validates one database side
func (d *DatabaseConfig) Validate() error {
	switch d.Driver {
	case DriverCQL:
		if len(d.ContactPoints) == 0 {
			return errors.New(ErrContactPointsRequired, "at least one contact point is required", nil)
		}
		if d.Keyspace == "" {
			return errors.New(ErrKeyspaceRequired, "keyspace is required", nil)
		}
	case DriverPostgres, DriverMySQL, DriverSQLite, DriverDuckDB:
		if d.DSN == "" {
			return errors.New(ErrDSNRequired, "dsn is required for sql drivers", nil).AddContext("driver", d.Driver)
		}
	default:
		return errors.New(ErrUnsupportedDriver, "unsupported driver", nil).AddContext("driver", d.Driver)
	}
	return nil
}

// Validate validates the engine settings
func (b *BackfillConfig) Validate() error {
	if b.BatchSize <= 0 {
		return errors.Newf(ErrInvalidBatchSize, "batch_size must be positive, got %d", b.BatchSize)
	}
	if b.MaxWorkers <= 0 {
		return errors.Newf(ErrInvalidMaxWorkers, "max_workers must be positive, got %d", b.MaxWorkers)
	}
	if b.MaxRetries < 0 {
		return errors.Newf(ErrInvalidMaxRetries, "max_retries must not be negative, got %d", b.MaxRetries)
	}
	if b.CheckpointEvery <= 0 {
		return errors.Newf(ErrInvalidCheckpointEvery, "checkpoint_every must be positive, got %d", b.CheckpointEvery)
	}
	if b.WriteBatchSize <= 0 {
		return errors.Newf(ErrInvalidWriteBatchSize, "write_batch_size must be positive, got %d", b.WriteBatchSize)
	}
	if b.SampleSize < 0 {
		return errors.Newf(ErrInvalidSampleSize, "sample_size must not be negative, got %d", b.SampleSize)
	}
	switch b.CheckpointBackend {
	case CheckpointBackendFile, CheckpointBackendSQLite:
	default:
		return errors.New(ErrUnsupportedCheckpointBackend, "unsupported checkpoint backend", nil).AddContext("backend", b.CheckpointBackend)
	}
	if b.CheckpointDir == "" {
		return errors.New(ErrCheckpointDirRequired, "checkpoint_dir is required", nil)
	}
	return nil
}

// SplitContactPoints parses a comma separated host list
func SplitContactPoints(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
