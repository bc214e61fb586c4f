// Package checkpoint persists per-table copy progress so an interrupted run
// can report how far the previous attempt got.
package checkpoint

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gear6io/scylla-backfill/pkg/errors"
)

// Checkpoint is the durable progress record of one table
type Checkpoint struct {
	TableName      string `json:"table_name"`
	ProcessedCount int64  `json:"processed_count"`
	TotalCount     int64  `json:"total_count"`
	Timestamp      string `json:"timestamp"`
	BatchSize      int    `json:"batch_size"`
}

// Store saves, loads and clears checkpoints
type Store interface {
	// Save overwrites the record for cp.TableName and stamps it with the current time
	Save(ctx context.Context, cp Checkpoint) error
	// Load returns nil when no valid record exists
	Load(ctx context.Context, table string) *Checkpoint
	// Clear removes the record; clearing an absent record is not an error
	Clear(ctx context.Context, table string) error
	List(ctx context.Context) ([]Checkpoint, error)
	Close() error
}

// Time parses the record timestamp
func (c *Checkpoint) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, c.Timestamp)
}

// Progress is the processed fraction in percent
func (c *Checkpoint) Progress() float64 {
	if c.TotalCount <= 0 {
		return 0
	}
	return float64(c.ProcessedCount) / float64(c.TotalCount) * 100
}

// Validate checks the invariants a stored record must hold
func (c *Checkpoint) Validate() error {
	if err := ValidateTableName(c.TableName); err != nil {
		return err
	}
	if c.ProcessedCount < 0 || c.TotalCount < c.ProcessedCount {
		return errors.New(ErrInvalidRecord, "processed count out of range", nil).
			AddContext("table", c.TableName)
	}
	if c.BatchSize <= 0 {
		return errors.New(ErrInvalidRecord, "batch size must be positive", nil).
			AddContext("table", c.TableName)
	}
	if _, err := c.Time(); err != nil {
		return errors.New(ErrInvalidRecord, "invalid timestamp", err).
			AddContext("table", c.TableName)
	}
	return nil
}

// ValidateTableName rejects names that cannot safely key a record
func ValidateTableName(table string) error {
	if table == "" || table == "." || table == ".." || strings.ContainsAny(table, `/\`) || strings.ContainsRune(table, 0) {
		return errors.New(ErrInvalidTableName, "invalid table name for checkpoint", nil).AddContext("table", table)
	}
	return nil
}

// prepare clamps the advisory total and stamps the record
func prepare(cp Checkpoint, clk *clock) (Checkpoint, error) {
	if err := ValidateTableName(cp.TableName); err != nil {
		return cp, err
	}
	if cp.ProcessedCount < 0 {
		cp.ProcessedCount = 0
	}
	if cp.TotalCount < cp.ProcessedCount {
		cp.TotalCount = cp.ProcessedCount
	}
	if cp.BatchSize <= 0 {
		return cp, errors.New(ErrInvalidRecord, "batch size must be positive", nil).AddContext("table", cp.TableName)
	}
	cp.Timestamp = clk.next().Format(time.RFC3339Nano)
	return cp, nil
}

// clock hands out strictly increasing UTC timestamps
type clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func newClock(now func() time.Time) *clock {
	if now == nil {
		now = time.Now
	}
	return &clock{now: now}
}

func (c *clock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC()
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t
}
