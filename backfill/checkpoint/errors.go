package checkpoint

import "github.com/gear6io/scylla-backfill/pkg/errors"

// checkpoint error codes
var (
	ErrCheckpointIO     = errors.MustNewCode("checkpoint.io_failed")
	ErrInvalidRecord    = errors.MustNewCode("checkpoint.invalid_record")
	ErrInvalidTableName = errors.MustNewCode("checkpoint.invalid_table_name")
	ErrStoreOpen        = errors.MustNewCode("checkpoint.store_open_failed")
)
