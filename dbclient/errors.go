package dbclient

import (
	"github.com/gear6io/scylla-backfill/pkg/errors"

	faster "github.com/go-faster/errors"
)

// dbclient error codes
var (
	ErrConnectionFailed  = errors.MustNewCode("dbclient.connection_failed")
	ErrQueryFailed       = errors.MustNewCode("dbclient.query_failed")
	ErrPrepareFailed     = errors.MustNewCode("dbclient.prepare_failed")
	ErrBatchFailed       = errors.MustNewCode("dbclient.batch_failed")
	ErrSchemaLookup      = errors.MustNewCode("dbclient.schema_lookup_failed")
	ErrUnsupportedDriver = errors.MustNewCode("dbclient.unsupported_driver")
	ErrRetryExhausted    = errors.MustNewCode("dbclient.retry_exhausted")
	ErrCountFailed       = errors.MustNewCode("dbclient.count_failed")
)

// Sentinels callers match with errors.Is
var (
	ErrTableNotFound = faster.New("dbclient: table not found")
	ErrClientClosed  = faster.New("dbclient: client is closed")
)
