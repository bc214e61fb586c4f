// Package validator compares a copied table against its source.
//
// The comparison is a smoke test: row counts must agree and the first
// sample_size rows read from each side must agree positionally. Neither store
// guarantees the same scan order for a fixed query, so a mismatch in the
// sample is a signal worth investigating rather than proof of divergence, and
// a match does not prove every row was copied.
package validator

import (
	"context"
	"fmt"

	"github.com/gear6io/scylla-backfill/dbclient"
	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultSampleSize bounds the rows compared per table
const DefaultSampleSize = 100

// Report is the outcome of validating one table
type Report struct {
	Table       string `json:"table"`
	Match       bool   `json:"match"`
	SourceCount int64  `json:"source_count"`
	TargetCount int64  `json:"target_count"`
	SampledRows int    `json:"sampled_rows"`
	Reason      string `json:"reason,omitempty"`
}

// Err returns a ValidationError describing a mismatch, or nil
func (r *Report) Err() error {
	if r == nil || r.Match {
		return nil
	}
	return errors.New(ErrMismatch, r.Reason, nil).
		AddContext("table", r.Table).
		AddContext("source_count", fmt.Sprintf("%d", r.SourceCount)).
		AddContext("target_count", fmt.Sprintf("%d", r.TargetCount))
}

// Validator is the Integrity Validator
type Validator struct {
	source     dbclient.Client
	target     dbclient.Client
	sampleSize int
	logger     zerolog.Logger
}

// New returns a validator sampling up to sampleSize rows
func New(source, target dbclient.Client, sampleSize int, logger zerolog.Logger) *Validator {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &Validator{
		source:     source,
		target:     target,
		sampleSize: sampleSize,
		logger:     logger.With().Str("component", "validator").Logger(),
	}
}

// CountOnly compares row counts
func (v *Validator) CountOnly(ctx context.Context, table string) (*Report, error) {
	report := &Report{Table: table}
	if err := v.count(ctx, report); err != nil {
		return nil, err
	}
	report.Match = report.SourceCount == report.TargetCount
	if !report.Match {
		report.Reason = "row count mismatch"
	}
	v.log(report)
	return report, nil
}

// Compare checks counts and then a positional sample of rows
func (v *Validator) Compare(ctx context.Context, table string) (*Report, error) {
	report := &Report{Table: table}
	if err := v.count(ctx, report); err != nil {
		return nil, err
	}
	if report.SourceCount != report.TargetCount {
		report.Reason = "row count mismatch"
		v.log(report)
		return report, nil
	}

	n := v.sampleSize
	if report.SourceCount < int64(n) {
		n = int(report.SourceCount)
	}
	if n == 0 {
		report.Match = true
		v.log(report)
		return report, nil
	}

	schema, err := v.source.Schema(ctx, table)
	if err != nil {
		return nil, errors.New(ErrSchemaUnavailable, "failed to read source schema", err).AddContext("table", table)
	}
	columns := schema.ColumnNames()

	var sourceRows, targetRows []dbclient.Row
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := sample(gctx, v.source, table, columns, n)
		sourceRows = rows
		return err
	})
	g.Go(func() error {
		rows, err := sample(gctx, v.target, table, columns, n)
		targetRows = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, errors.New(ErrSampleFailed, "failed to sample rows", err).AddContext("table", table)
	}

	report.SampledRows = len(sourceRows)
	report.Reason = compareRows(columns, sourceRows, targetRows)
	report.Match = report.Reason == ""
	v.log(report)
	return report, nil
}

func (v *Validator) count(ctx context.Context, report *Report) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := dbclient.CountRows(gctx, v.source, report.Table)
		if err != nil {
			return errors.New(ErrCountFailed, "failed to count source rows", err)
		}
		report.SourceCount = n
		return nil
	})
	g.Go(func() error {
		n, err := dbclient.CountRows(gctx, v.target, report.Table)
		if err != nil {
			return errors.New(ErrCountFailed, "failed to count target rows", err)
		}
		report.TargetCount = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return errors.AsError(err).AddContext("table", report.Table)
	}
	return nil
}

func (v *Validator) log(r *Report) {
	event := v.logger.Info()
	if !r.Match {
		event = v.logger.Warn().Str("reason", r.Reason)
	}
	event.
		Str("table", r.Table).
		Bool("match", r.Match).
		Int64("source_count", r.SourceCount).
		Int64("target_count", r.TargetCount).
		Int("sampled_rows", r.SampledRows).
		Msg("Validation finished")
}

func sample(ctx context.Context, c dbclient.Client, table string, columns []string, limit int) ([]dbclient.Row, error) {
	rows, err := c.Execute(ctx, c.Dialect().SelectQuery(table, columns, limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]dbclient.Row, 0, limit)
	for len(out) < limit && rows.Next() {
		out = append(out, rows.Values())
	}
	return out, rows.Err()
}

// compareRows returns an empty string when both samples agree
func compareRows(columns []string, source, target []dbclient.Row) string {
	if len(source) != len(target) {
		return fmt.Sprintf("sample size mismatch: source=%d target=%d", len(source), len(target))
	}
	for i := range source {
		if len(source[i]) != len(target[i]) {
			return fmt.Sprintf("row %d: field count mismatch: source=%d target=%d", i, len(source[i]), len(target[i]))
		}
		for j := range source[i] {
			if !Equal(source[i][j], target[i][j]) {
				col := fmt.Sprintf("#%d", j)
				if j < len(columns) {
					col = columns[j]
				}
				return fmt.Sprintf("row %d column %s: source=%v target=%v", i, col, source[i][j], target[i][j])
			}
		}
	}
	return ""
}
