package config

import "github.com/gear6io/scylla-backfill/pkg/errors"

// Config-specific error codes
var (
	ErrConfigFileNotFound       = errors.MustNewCode("config.file_not_found")
	ErrConfigFileReadFailed     = errors.MustNewCode("config.file_read_failed")
	ErrConfigFileParseFailed    = errors.MustNewCode("config.file_parse_failed")
	ErrConfigFileMarshalFailed  = errors.MustNewCode("config.file_marshal_failed")
	ErrConfigFileWriteFailed    = errors.MustNewCode("config.file_write_failed")
	ErrSourceValidationFailed   = errors.MustNewCode("config.source_validation_failed")
	ErrTargetValidationFailed   = errors.MustNewCode("config.target_validation_failed")
	ErrBackfillValidationFailed = errors.MustNewCode("config.backfill_validation_failed")
	ErrContactPointsRequired    = errors.MustNewCode("config.contact_points_required")
	ErrKeyspaceRequired         = errors.MustNewCode("config.keyspace_required")
	ErrDSNRequired              = errors.MustNewCode("config.dsn_required")
	ErrUnsupportedDriver        = errors.MustNewCode("config.unsupported_driver")
	ErrInvalidBatchSize         = errors.MustNewCode("config.invalid_batch_size")
	ErrInvalidMaxWorkers        = errors.MustNewCode("config.invalid_max_workers")
	ErrInvalidMaxRetries        = errors.MustNewCode("config.invalid_max_retries")
	ErrInvalidCheckpointEvery   = errors.MustNewCode("config.invalid_checkpoint_every")
	ErrInvalidWriteBatchSize    = errors.MustNewCode("config.invalid_write_batch_size")
	ErrInvalidSampleSize        = errors.MustNewCode("config.invalid_sample_size")
	ErrCheckpointDirRequired    = errors.MustNewCode("config.checkpoint_dir_required")

	ErrUnsupportedCheckpointBackend = errors.MustNewCode("config.unsupported_checkpoint_backend")

	// Environment overlay
	ErrEnvFileLoadFailed = errors.MustNewCode("config.env_file_load_failed")
	ErrInvalidEnvValue   = errors.MustNewCode("config.invalid_env_value")

	// Table list
	ErrTablesFileReadFailed  = errors.MustNewCode("config.tables_file_read_failed")
	ErrTablesFileParseFailed = errors.MustNewCode("config.tables_file_parse_failed")
	ErrNoTablesConfigured    = errors.MustNewCode("config.no_tables_configured")

	// Logging-specific error codes
	ErrLogDirectoryCreationFailed = errors.MustNewCode("config.log_directory_creation_failed")
	ErrLogFileOpenFailed          = errors.MustNewCode("config.log_file_open_failed")
	ErrLogFilePathRequired        = errors.MustNewCode("config.log_file_path_required")
	ErrLogFileStatFailed          = errors.MustNewCode("config.log_file_stat_failed")
	ErrLogRotationFailed          = errors.MustNewCode("config.log_rotation_failed")
	ErrLogBackupReadFailed        = errors.MustNewCode("config.log_backup_read_failed")
	ErrLogBackupRemoveFailed      = errors.MustNewCode("config.log_backup_remove_failed")
	ErrLogFileWriterSetupFailed   = errors.MustNewCode("config.log_file_writer_setup_failed")
)
