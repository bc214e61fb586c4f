package copier

import "github.com/gear6io/scylla-backfill/pkg/errors"

// copier error codes
var (
	ErrSchemaUnavailable = errors.MustNewCode("copier.schema_unavailable")
	ErrReadFailed        = errors.MustNewCode("copier.read_failed")
	ErrWriteFailed       = errors.MustNewCode("copier.write_failed")
	ErrInvalidBatchSize  = errors.MustNewCode("copier.invalid_batch_size")
)
