// Package dbclient wraps the source and target stores behind the small
// surface the backfill engine needs: cursor queries, prepared statements,
// statement batches and table metadata.
package dbclient

import (
	"context"
	"math"
	"strconv"

	"github.com/gear6io/scylla-backfill/pkg/errors"
)

// Row is one record ordered like the column list of the query that produced it
type Row []any

// Rows is a lazy, one-shot cursor over a result set
type Rows interface {
	Columns() []string
	Next() bool
	// Values returns the current row. The slice is owned by the caller.
	Values() Row
	Err() error
	Close() error
}

// Statement is a prepared statement bound to a client
type Statement interface {
	Exec(ctx context.Context, values ...any) error
}

// BatchEntry is one statement of a batch
type BatchEntry struct {
	Query  string
	Values []any
}

// Column describes a table column
type Column struct {
	Name string
	Type string
}

// Schema is the explicit column descriptor of a table, read from store metadata
type Schema struct {
	Table      string
	Columns    []Column
	PrimaryKey []string
}

// ColumnNames returns the ordered column names
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Client is a connection to one store. Implementations are safe for
// concurrent use by multiple goroutines.
type Client interface {
	Execute(ctx context.Context, query string, params ...any) (Rows, error)
	Prepare(ctx context.Context, query string) (Statement, error)
	ExecuteBatch(ctx context.Context, entries []BatchEntry) error
	Schema(ctx context.Context, table string) (*Schema, error)
	Dialect() Dialect
	Close() error
}

// CountRows runs the dialect's COUNT query for table
func CountRows(ctx context.Context, c Client, table string) (int64, error) {
	rows, err := c.Execute(ctx, c.Dialect().CountQuery(table))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, errors.New(ErrCountFailed, "count query returned no rows", nil).AddContext("table", table)
	}
	values := rows.Values()
	if len(values) == 0 {
		return 0, errors.New(ErrCountFailed, "count query returned no columns", nil).AddContext("table", table)
	}
	n, err := ToInt64(values[0])
	if err != nil {
		return 0, err
	}
	return n, rows.Err()
}

// ToInt64 converts the integer representations drivers return for COUNT(*)
func ToInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, errors.Newf(ErrCountFailed, "count %d overflows int64", n)
		}
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		return parseCount(string(n))
	case string:
		return parseCount(n)
	default:
		return 0, errors.Newf(ErrCountFailed, "unexpected count type %T", v)
	}
}

func parseCount(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.New(ErrCountFailed, "count is not an integer", err).AddContext("value", s)
	}
	return n, nil
}
