package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/rs/zerolog"
)

// SQLClient serves the relational drivers through database/sql
type SQLClient struct {
	db      *sql.DB
	driver  string
	dialect Dialect
	logger  zerolog.Logger
	closed  atomic.Bool
}

// NewSQLClient wraps an open pool. The driver name selects the dialect and
// the metadata queries used by Schema.
func NewSQLClient(db *sql.DB, driver string, logger zerolog.Logger) (*SQLClient, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, errors.New(ErrUnsupportedDriver, "no SQL dialect for driver", err).AddContext("driver", driver)
	}
	return &SQLClient{
		db:      db,
		driver:  driver,
		dialect: dialect,
		logger:  logger.With().Str("component", "sql-client").Str("driver", driver).Logger(),
	}, nil
}

// DB exposes the underlying pool
func (c *SQLClient) DB() *sql.DB { return c.db }

func (c *SQLClient) Execute(ctx context.Context, query string, params ...any) (Rows, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	rows, err := c.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, errors.New(ErrQueryFailed, "query failed", err).AddContext("query", query)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, errors.New(ErrQueryFailed, "failed to read result columns", err).AddContext("query", query)
	}
	return &sqlRows{rows: rows, columns: cols, query: query}, nil
}

func (c *SQLClient) Prepare(ctx context.Context, query string) (Statement, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	stmt, err := c.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, errors.New(ErrPrepareFailed, "failed to prepare statement", err).AddContext("query", query)
	}
	return &sqlStatement{stmt: stmt}, nil
}

// ExecuteBatch applies all entries in one transaction
func (c *SQLClient) ExecuteBatch(ctx context.Context, entries []BatchEntry) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(ErrBatchFailed, "failed to begin batch transaction", err)
	}
	for i, e := range entries {
		if _, err := tx.ExecContext(ctx, e.Query, e.Values...); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				c.logger.Warn().Err(rbErr).Msg("Failed to roll back batch")
			}
			return errors.New(ErrBatchFailed, "batch statement failed", err).
				AddContext("statement", fmt.Sprintf("%d", i))
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.New(ErrBatchFailed, "failed to commit batch", err)
	}
	return nil
}

// Schema reads column order and primary key from the catalog
func (c *SQLClient) Schema(ctx context.Context, table string) (*Schema, error) {
	var (
		schema *Schema
		err    error
	)
	switch c.driver {
	case "postgres":
		schema, err = c.informationSchema(ctx, table, postgresColumnsQuery, postgresKeyQuery)
	case "mysql":
		schema, err = c.informationSchema(ctx, table, mysqlColumnsQuery, mysqlKeyQuery)
	default:
		schema, err = c.pragmaSchema(ctx, table)
	}
	if err != nil {
		return nil, err
	}
	if len(schema.Columns) == 0 {
		return nil, errors.New(ErrSchemaLookup, "table not found", ErrTableNotFound).AddContext("table", table)
	}
	return schema, nil
}

const (
	postgresColumnsQuery = `SELECT column_name, data_type FROM information_schema.columns
WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2
ORDER BY ordinal_position`
	postgresKeyQuery = `SELECT kcu.column_name FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY'
  AND tc.table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND tc.table_name = $2
ORDER BY kcu.ordinal_position`
	mysqlColumnsQuery = `SELECT column_name, data_type FROM information_schema.columns
WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND table_name = ?
ORDER BY ordinal_position`
	mysqlKeyQuery = `SELECT column_name FROM information_schema.key_column_usage
WHERE constraint_name = 'PRIMARY' AND table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND table_name = ?
ORDER BY ordinal_position`
	pragmaQuery = `SELECT name, type, pk FROM pragma_table_info(?) ORDER BY cid`
)

func (c *SQLClient) informationSchema(ctx context.Context, table, columnsQuery, keyQuery string) (*Schema, error) {
	namespace, name := splitQualified(table)
	schema := &Schema{Table: table}

	rows, err := c.db.QueryContext(ctx, columnsQuery, namespace, name)
	if err != nil {
		return nil, errors.New(ErrSchemaLookup, "failed to read table columns", err).AddContext("table", table)
	}
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			rows.Close()
			return nil, errors.New(ErrSchemaLookup, "failed to scan column metadata", err).AddContext("table", table)
		}
		schema.Columns = append(schema.Columns, col)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.New(ErrSchemaLookup, "failed to read table columns", err).AddContext("table", table)
	}
	if len(schema.Columns) == 0 {
		return schema, nil
	}

	keys, err := c.db.QueryContext(ctx, keyQuery, namespace, name)
	if err != nil {
		return nil, errors.New(ErrSchemaLookup, "failed to read primary key", err).AddContext("table", table)
	}
	defer keys.Close()
	for keys.Next() {
		var k string
		if err := keys.Scan(&k); err != nil {
			return nil, errors.New(ErrSchemaLookup, "failed to scan primary key", err).AddContext("table", table)
		}
		schema.PrimaryKey = append(schema.PrimaryKey, k)
	}
	if err := keys.Err(); err != nil {
		return nil, errors.New(ErrSchemaLookup, "failed to read primary key", err).AddContext("table", table)
	}
	return schema, nil
}

func (c *SQLClient) pragmaSchema(ctx context.Context, table string) (*Schema, error) {
	rows, err := c.db.QueryContext(ctx, pragmaQuery, table)
	if err != nil {
		return nil, errors.New(ErrSchemaLookup, "failed to read table info", err).AddContext("table", table)
	}
	defer rows.Close()

	schema := &Schema{Table: table}
	type keyed struct {
		name string
		pos  int
	}
	var keys []keyed
	for rows.Next() {
		var (
			col Column
			pk  int
		)
		if err := rows.Scan(&col.Name, &col.Type, &pk); err != nil {
			return nil, errors.New(ErrSchemaLookup, "failed to scan table info", err).AddContext("table", table)
		}
		schema.Columns = append(schema.Columns, col)
		if pk > 0 {
			keys = append(keys, keyed{name: col.Name, pos: pk})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(ErrSchemaLookup, "failed to read table info", err).AddContext("table", table)
	}

	// pk holds the 1-based position within the key
	schema.PrimaryKey = make([]string, len(keys))
	for _, k := range keys {
		if k.pos <= len(keys) {
			schema.PrimaryKey[k.pos-1] = k.name
		}
	}
	if len(keys) == 0 {
		schema.PrimaryKey = nil
	}
	return schema, nil
}

func splitQualified(table string) (string, string) {
	if i := strings.LastIndexByte(table, '.'); i >= 0 {
		return table[:i], table[i+1:]
	}
	return "", table
}

func (c *SQLClient) Dialect() Dialect { return c.dialect }

func (c *SQLClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.logger.Info().Msg("SQL connection closed")
	return c.db.Close()
}

type sqlStatement struct {
	stmt *sql.Stmt
}

func (s *sqlStatement) Exec(ctx context.Context, values ...any) error {
	if _, err := s.stmt.ExecContext(ctx, values...); err != nil {
		return errors.New(ErrQueryFailed, "failed to execute prepared statement", err)
	}
	return nil
}

type sqlRows struct {
	rows    *sql.Rows
	columns []string
	query   string
	current Row
	err     error
}

func (r *sqlRows) Columns() []string { return r.columns }

func (r *sqlRows) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}
	values := make([]any, len(r.columns))
	ptrs := make([]any, len(r.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		r.err = errors.New(ErrQueryFailed, "failed to scan row", err).AddContext("query", r.query)
		return false
	}
	// drivers may reuse []byte buffers between rows
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = append([]byte(nil), b...)
		}
	}
	r.current = Row(values)
	return true
}

func (r *sqlRows) Values() Row { return r.current }

func (r *sqlRows) Err() error {
	if r.err != nil {
		return r.err
	}
	if err := r.rows.Err(); err != nil {
		return errors.New(ErrQueryFailed, "cursor failed", err).AddContext("query", r.query)
	}
	return nil
}

func (r *sqlRows) Close() error { return r.rows.Close() }

var _ Client = (*SQLClient)(nil)
