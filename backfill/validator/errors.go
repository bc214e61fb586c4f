package validator

import "github.com/gear6io/scylla-backfill/pkg/errors"

// validator error codes
var (
	ErrMismatch          = errors.MustNewCode("validator.mismatch")
	ErrCountFailed       = errors.MustNewCode("validator.count_failed")
	ErrSampleFailed      = errors.MustNewCode("validator.sample_failed")
	ErrSchemaUnavailable = errors.MustNewCode("validator.schema_unavailable")
)
