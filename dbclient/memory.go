package dbclient

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gear6io/scylla-backfill/pkg/errors"
)

// MemoryClient is an in-process Client backed by maps. It understands only
// the statements its own dialect produces and is meant for tests and dry runs.
type MemoryClient struct {
	mu      sync.RWMutex
	tables  map[string]*memTable
	dialect Dialect

	writeHook     func(table string, row Row) error
	writeDelay    time.Duration
	countOverride map[string]int64
	readFailures  map[string]readFailure

	inflight atomic.Int32
	peak     atomic.Int32
	batches  atomic.Int64
	closed   atomic.Bool
}

type readFailure struct {
	after int
	err   error
}

type memTable struct {
	schema Schema
	rows   []Row
	index  map[string]int
}

// NewMemoryClient returns an empty in-memory store
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		tables:        make(map[string]*memTable),
		countOverride: make(map[string]int64),
		readFailures:  make(map[string]readFailure),
		dialect:       replaceDialect{baseDialect{name: "memory", quote: `"`, placeholder: questionMark}},
	}
}

// CreateTable registers a table and optionally seeds rows
func (m *MemoryClient) CreateTable(schema Schema, rows ...Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &memTable{schema: schema, index: make(map[string]int)}
	m.tables[schema.Table] = t
	for _, r := range rows {
		t.upsert(append(Row(nil), r...))
	}
}

// TableRows returns a copy of the rows stored in table
func (m *MemoryClient) TableRows(table string) []Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[table]
	if !ok {
		return nil
	}
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = append(Row(nil), r...)
	}
	return out
}

// SetWriteHook installs a function consulted before every row is written.
// A non-nil return fails the statement or batch carrying that row.
func (m *MemoryClient) SetWriteHook(hook func(table string, row Row) error) {
	m.mu.Lock()
	m.writeHook = hook
	m.mu.Unlock()
}

// SetWriteDelay makes every write sleep, widening the window in which
// concurrent writers overlap
func (m *MemoryClient) SetWriteDelay(d time.Duration) {
	m.mu.Lock()
	m.writeDelay = d
	m.mu.Unlock()
}

// SetCountOverride makes COUNT queries for table report n, like a stale
// estimate from a distributed store
func (m *MemoryClient) SetCountOverride(table string, n int64) {
	m.mu.Lock()
	m.countOverride[table] = n
	m.mu.Unlock()
}

// FailReadsAfter makes cursors over table fail with err after n rows
func (m *MemoryClient) FailReadsAfter(table string, n int, err error) {
	m.mu.Lock()
	m.readFailures[table] = readFailure{after: n, err: err}
	m.mu.Unlock()
}

// PeakConcurrency is the largest number of writes observed in flight at once
func (m *MemoryClient) PeakConcurrency() int { return int(m.peak.Load()) }

// BatchCalls counts ExecuteBatch invocations
func (m *MemoryClient) BatchCalls() int64 { return m.batches.Load() }

// Closed reports whether Close was called
func (m *MemoryClient) Closed() bool { return m.closed.Load() }

var (
	memCountRe  = regexp.MustCompile(`^SELECT COUNT\(\*\) FROM (\S+)$`)
	memSelectRe = regexp.MustCompile(`^SELECT (.+) FROM (\S+)(?: LIMIT (\d+))?$`)
	memInsertRe = regexp.MustCompile(`^INSERT(?: OR REPLACE)? INTO (\S+) \((.*)\) VALUES \(.*\)$`)
)

func (m *MemoryClient) Execute(ctx context.Context, query string, params ...any) (Rows, error) {
	if m.closed.Load() {
		return nil, ErrClientClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.New(ErrQueryFailed, "query cancelled", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if sm := memCountRe.FindStringSubmatch(query); sm != nil {
		t, ok := m.tables[sm[1]]
		if !ok {
			return nil, errors.New(ErrQueryFailed, "unknown table", ErrTableNotFound).AddContext("table", sm[1])
		}
		n := int64(len(t.rows))
		if o, ok := m.countOverride[sm[1]]; ok {
			n = o
		}
		return &memRows{columns: []string{"count"}, rows: []Row{{n}}}, nil
	}

	if sm := memSelectRe.FindStringSubmatch(query); sm != nil {
		t, ok := m.tables[sm[2]]
		if !ok {
			return nil, errors.New(ErrQueryFailed, "unknown table", ErrTableNotFound).AddContext("table", sm[2])
		}
		cols := parseColumnList(sm[1])
		positions, err := t.positions(cols)
		if err != nil {
			return nil, errors.New(ErrQueryFailed, "invalid select", err).AddContext("query", query)
		}
		limit := len(t.rows)
		if sm[3] != "" {
			if n, _ := strconv.Atoi(sm[3]); n < limit {
				limit = n
			}
		}
		out := make([]Row, 0, limit)
		for _, r := range t.rows[:limit] {
			row := make(Row, len(positions))
			for i, p := range positions {
				row[i] = r[p]
			}
			out = append(out, row)
		}
		res := &memRows{columns: cols, rows: out, failAfter: -1}
		if f, ok := m.readFailures[sm[2]]; ok {
			res.failAfter = f.after
			res.failErr = f.err
		}
		return res, nil
	}

	return nil, errors.New(ErrQueryFailed, "unsupported query", nil).AddContext("query", query)
}

func (m *MemoryClient) Prepare(ctx context.Context, query string) (Statement, error) {
	if m.closed.Load() {
		return nil, ErrClientClosed
	}
	ins, err := parseInsert(query)
	if err != nil {
		return nil, errors.New(ErrPrepareFailed, "failed to prepare statement", err).AddContext("query", query)
	}
	return &memStatement{client: m, insert: ins}, nil
}

func (m *MemoryClient) ExecuteBatch(ctx context.Context, entries []BatchEntry) error {
	if m.closed.Load() {
		return ErrClientClosed
	}
	m.batches.Add(1)
	done := m.enter()
	defer done()

	inserts := make([]memInsert, len(entries))
	for i, e := range entries {
		ins, err := parseInsert(e.Query)
		if err != nil {
			return errors.New(ErrBatchFailed, "unsupported batch statement", err)
		}
		inserts[i] = ins
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// all or nothing, like a transaction
	rows := make([]Row, len(entries))
	for i, e := range entries {
		row, err := m.buildRow(inserts[i], e.Values)
		if err != nil {
			return errors.New(ErrBatchFailed, "batch statement failed", err).AddContext("statement", strconv.Itoa(i))
		}
		rows[i] = row
	}
	for i, row := range rows {
		m.tables[inserts[i].table].upsert(row)
	}
	return nil
}

func (m *MemoryClient) Schema(ctx context.Context, table string) (*Schema, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[table]
	if !ok {
		return nil, errors.New(ErrSchemaLookup, "table not found", ErrTableNotFound).AddContext("table", table)
	}
	s := Schema{
		Table:      t.schema.Table,
		Columns:    append([]Column(nil), t.schema.Columns...),
		PrimaryKey: append([]string(nil), t.schema.PrimaryKey...),
	}
	return &s, nil
}

func (m *MemoryClient) Dialect() Dialect { return m.dialect }

func (m *MemoryClient) Close() error {
	m.closed.Store(true)
	return nil
}

// enter records an in-flight write and sleeps for the configured delay
func (m *MemoryClient) enter() func() {
	n := m.inflight.Add(1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}
	m.mu.RLock()
	delay := m.writeDelay
	m.mu.RUnlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return func() { m.inflight.Add(-1) }
}

// buildRow maps statement values onto the table's column order. Callers hold mu.
func (m *MemoryClient) buildRow(ins memInsert, values []any) (Row, error) {
	t, ok := m.tables[ins.table]
	if !ok {
		return nil, fmt.Errorf("unknown table %s: %w", ins.table, ErrTableNotFound)
	}
	if len(values) != len(ins.columns) {
		return nil, fmt.Errorf("expected %d values, got %d", len(ins.columns), len(values))
	}
	positions, err := t.positions(ins.columns)
	if err != nil {
		return nil, err
	}
	row := make(Row, len(t.schema.Columns))
	for i, p := range positions {
		row[p] = values[i]
	}
	if m.writeHook != nil {
		if err := m.writeHook(ins.table, row); err != nil {
			return nil, err
		}
	}
	return row, nil
}

type memInsert struct {
	table   string
	columns []string
}

func parseInsert(query string) (memInsert, error) {
	sm := memInsertRe.FindStringSubmatch(query)
	if sm == nil {
		return memInsert{}, fmt.Errorf("not an insert: %s", query)
	}
	return memInsert{table: sm[1], columns: parseColumnList(sm[2])}, nil
}

func parseColumnList(s string) []string {
	parts := strings.Split(s, ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimSuffix(strings.TrimPrefix(p, `"`), `"`)
		cols = append(cols, strings.ReplaceAll(p, `""`, `"`))
	}
	return cols
}

func (t *memTable) positions(cols []string) ([]int, error) {
	byName := make(map[string]int, len(t.schema.Columns))
	for i, c := range t.schema.Columns {
		byName[c.Name] = i
	}
	out := make([]int, len(cols))
	for i, c := range cols {
		p, ok := byName[c]
		if !ok {
			return nil, fmt.Errorf("unknown column %s", c)
		}
		out[i] = p
	}
	return out, nil
}

func (t *memTable) upsert(row Row) {
	if len(t.schema.PrimaryKey) == 0 {
		t.rows = append(t.rows, row)
		return
	}
	positions, err := t.positions(t.schema.PrimaryKey)
	if err != nil {
		t.rows = append(t.rows, row)
		return
	}
	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = fmt.Sprintf("%v", row[p])
	}
	key := strings.Join(parts, "\x00")
	if i, ok := t.index[key]; ok {
		t.rows[i] = row
		return
	}
	t.index[key] = len(t.rows)
	t.rows = append(t.rows, row)
}

type memStatement struct {
	client *MemoryClient
	insert memInsert
}

func (s *memStatement) Exec(ctx context.Context, values ...any) error {
	m := s.client
	if m.closed.Load() {
		return ErrClientClosed
	}
	done := m.enter()
	defer done()

	m.mu.Lock()
	defer m.mu.Unlock()
	row, err := m.buildRow(s.insert, values)
	if err != nil {
		return errors.New(ErrQueryFailed, "failed to execute prepared statement", err)
	}
	m.tables[s.insert.table].upsert(row)
	return nil
}

type memRows struct {
	columns   []string
	rows      []Row
	pos       int
	current   Row
	failAfter int
	failErr   error
	err       error
}

func (r *memRows) Columns() []string { return r.columns }

func (r *memRows) Next() bool {
	if r.err != nil || r.pos >= len(r.rows) {
		return false
	}
	if r.failAfter >= 0 && r.failErr != nil && r.pos >= r.failAfter {
		r.err = errors.New(ErrQueryFailed, "cursor failed", r.failErr)
		return false
	}
	r.current = append(Row(nil), r.rows[r.pos]...)
	r.pos++
	return true
}

func (r *memRows) Values() Row { return r.current }

func (r *memRows) Err() error { return r.err }

func (r *memRows) Close() error { return nil }

var _ Client = (*MemoryClient)(nil)
