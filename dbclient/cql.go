package dbclient

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/gear6io/scylla-backfill/config"
	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/gocql/gocql"
	"github.com/rs/zerolog"
)

// CQLClient talks to ScyllaDB / Cassandra. gocql.Session is safe for
// concurrent use, so one client is shared by all executor workers.
type CQLClient struct {
	session     *gocql.Session
	keyspace    string
	consistency gocql.Consistency
	pageSize    int
	dialect     Dialect
	logger      zerolog.Logger
	closed      atomic.Bool
}

// NewCQLClient connects a session to the configured keyspace
func NewCQLClient(cfg config.DatabaseConfig, logger zerolog.Logger) (*CQLClient, error) {
	consistency, err := ParseConsistency(cfg.Consistency)
	if err != nil {
		return nil, errors.New(ErrConnectionFailed, "invalid consistency level", err).AddContext("consistency", cfg.Consistency)
	}

	cluster := gocql.NewCluster(cfg.ContactPoints...)
	if cfg.Port > 0 {
		cluster.Port = cfg.Port
	}
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = consistency
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
		cluster.ConnectTimeout = cfg.Timeout
	}
	if cfg.FetchSize > 0 {
		cluster.PageSize = cfg.FetchSize
	}
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	clientLogger := logger.With().Str("component", "cql-client").Str("keyspace", cfg.Keyspace).Logger()
	cluster.Logger = gocqlLogger{logger: clientLogger}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, errors.New(ErrConnectionFailed, "failed to create CQL session", err).
			AddContext("contact_points", strings.Join(cfg.ContactPoints, ",")).
			AddContext("keyspace", cfg.Keyspace)
	}

	dialect, _ := DialectFor(config.DriverCQL)
	clientLogger.Info().Strs("contact_points", cfg.ContactPoints).Msg("Connected to CQL keyspace")

	return &CQLClient{
		session:     session,
		keyspace:    cfg.Keyspace,
		consistency: consistency,
		pageSize:    cfg.FetchSize,
		dialect:     dialect,
		logger:      clientLogger,
	}, nil
}

// ParseConsistency maps a consistency name, defaulting to LOCAL_QUORUM
func ParseConsistency(s string) (gocql.Consistency, error) {
	if s == "" {
		return gocql.LocalQuorum, nil
	}
	return gocql.ParseConsistencyWrapper(strings.ToUpper(s))
}

// Execute runs a query and returns a paging cursor over its rows
func (c *CQLClient) Execute(ctx context.Context, query string, params ...any) (Rows, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	q := c.session.Query(query, params...).WithContext(ctx)
	if c.pageSize > 0 {
		q = q.PageSize(c.pageSize)
	}
	return &cqlRows{iter: q.Iter(), query: query}, nil
}

// Prepare returns a statement; gocql prepares and caches it on first use
func (c *CQLClient) Prepare(ctx context.Context, query string) (Statement, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	return &cqlStatement{client: c, query: query}, nil
}

// ExecuteBatch sends the entries as one unlogged batch
func (c *CQLClient) ExecuteBatch(ctx context.Context, entries []BatchEntry) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if len(entries) == 0 {
		return nil
	}

	batch := c.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	batch.SetConsistency(c.consistency)
	for _, e := range entries {
		batch.Query(e.Query, e.Values...)
	}

	if err := c.session.ExecuteBatch(batch); err != nil {
		return errors.New(ErrBatchFailed, "failed to execute CQL batch", err).
			AddContext("statements", fmt.Sprintf("%d", len(entries)))
	}
	return nil
}

// Schema reads the column descriptor from the keyspace metadata
func (c *CQLClient) Schema(ctx context.Context, table string) (*Schema, error) {
	keyspace, name := c.keyspace, table
	if i := strings.IndexByte(table, '.'); i >= 0 {
		keyspace, name = table[:i], table[i+1:]
	}

	meta, err := c.session.KeyspaceMetadata(keyspace)
	if err != nil {
		return nil, errors.New(ErrSchemaLookup, "failed to read keyspace metadata", err).AddContext("keyspace", keyspace)
	}

	tm, ok := meta.Tables[name]
	if !ok {
		tm, ok = meta.Tables[strings.ToLower(name)]
	}
	if !ok {
		return nil, errors.New(ErrSchemaLookup, "table not found in keyspace metadata", ErrTableNotFound).
			AddContext("keyspace", keyspace).
			AddContext("table", name)
	}

	schema := &Schema{Table: table}
	for _, col := range tm.OrderedColumns {
		cm := tm.Columns[col]
		typ := ""
		if cm != nil && cm.Type != nil {
			typ = fmt.Sprint(cm.Type)
		}
		schema.Columns = append(schema.Columns, Column{Name: col, Type: typ})
	}
	for _, pk := range tm.PartitionKey {
		schema.PrimaryKey = append(schema.PrimaryKey, pk.Name)
	}
	for _, ck := range tm.ClusteringColumns {
		schema.PrimaryKey = append(schema.PrimaryKey, ck.Name)
	}
	return schema, nil
}

// Dialect returns the CQL dialect
func (c *CQLClient) Dialect() Dialect { return c.dialect }

// Close shuts the session down; calling it twice is harmless
func (c *CQLClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.session.Close()
	c.logger.Info().Msg("CQL connection closed")
	return nil
}

type cqlStatement struct {
	client *CQLClient
	query  string
}

func (s *cqlStatement) Exec(ctx context.Context, values ...any) error {
	if s.client.closed.Load() {
		return ErrClientClosed
	}
	err := s.client.session.Query(s.query, values...).
		WithContext(ctx).
		Consistency(s.client.consistency).
		Exec()
	if err != nil {
		return errors.New(ErrQueryFailed, "failed to execute CQL statement", err)
	}
	return nil
}

type cqlRows struct {
	iter    *gocql.Iter
	query   string
	dests   []any
	current Row
	err     error
	done    bool
}

func (r *cqlRows) Columns() []string {
	cols := r.iter.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func (r *cqlRows) Next() bool {
	if r.done {
		return false
	}
	if r.dests == nil {
		rd, err := r.iter.RowData()
		if err != nil {
			r.finish(err)
			return false
		}
		r.dests = make([]any, len(rd.Values))
		for i, v := range rd.Values {
			r.dests[i] = nullableDest(v)
		}
	}

	if !r.iter.Scan(r.dests...) {
		r.finish(nil)
		return false
	}

	row := make(Row, len(r.dests))
	for i, dest := range r.dests {
		row[i] = nullableValue(dest)
	}
	r.current = row
	return true
}

// nullableDest turns the *T gocql allocates for a column into a **T, so a
// NULL cell leaves the inner pointer nil instead of unmarshalling to zero
func nullableDest(v any) any {
	return reflect.New(reflect.TypeOf(v)).Interface()
}

// nullableValue dereferences a destination built by nullableDest; NULL is nil
func nullableValue(dest any) any {
	inner := reflect.ValueOf(dest).Elem()
	if inner.IsNil() {
		return nil
	}
	return inner.Elem().Interface()
}

func (r *cqlRows) finish(err error) {
	r.done = true
	closeErr := r.iter.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		r.err = errors.New(ErrQueryFailed, "CQL cursor failed", err).AddContext("query", r.query)
	}
}

func (r *cqlRows) Values() Row { return r.current }

func (r *cqlRows) Err() error { return r.err }

func (r *cqlRows) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	return r.iter.Close()
}

// gocqlLogger routes driver messages into zerolog
type gocqlLogger struct {
	logger zerolog.Logger
}

func (l gocqlLogger) Print(v ...interface{}) {
	l.logger.Debug().Msg(strings.TrimSpace(fmt.Sprint(v...)))
}

func (l gocqlLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gocqlLogger) Println(v ...interface{}) {
	l.logger.Debug().Msg(strings.TrimSpace(fmt.Sprintln(v...)))
}

var _ Client = (*CQLClient)(nil)
