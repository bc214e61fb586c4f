package orchestrator

import (
	"time"

	"github.com/gear6io/scylla-backfill/backfill/metrics"
)

// RunStatistics aggregates the outcome of one run
type RunStatistics struct {
	RunID              string                                `json:"run_id"`
	StartTime          time.Time                             `json:"start_time"`
	EndTime            time.Time                             `json:"end_time"`
	DurationSeconds    float64                               `json:"duration_seconds"`
	TablesProcessed    int                                   `json:"tables_processed"`
	TablesSkipped      int                                   `json:"tables_skipped"`
	RecordsProcessed   int64                                 `json:"records_processed"`
	Errors             int                                   `json:"errors"`
	ValidationFailures int                                   `json:"validation_failures"`
	PerTableMetrics    map[string]metrics.PerformanceMetrics `json:"per_table_metrics"`
	FailedTables       []string                              `json:"failed_tables"`
}

func newRunStatistics(runID string, start time.Time) *RunStatistics {
	return &RunStatistics{
		RunID:           runID,
		StartTime:       start,
		PerTableMetrics: make(map[string]metrics.PerformanceMetrics),
		FailedTables:    []string{},
	}
}

// HasFailures reports whether any table failed to copy or validate
func (s *RunStatistics) HasFailures() bool {
	return s.Errors > 0 || s.ValidationFailures > 0
}

// Copy returns a deep copy
func (s *RunStatistics) Copy() *RunStatistics {
	c := *s
	c.PerTableMetrics = make(map[string]metrics.PerformanceMetrics, len(s.PerTableMetrics))
	for k, v := range s.PerTableMetrics {
		c.PerTableMetrics[k] = v
	}
	c.FailedTables = append([]string{}, s.FailedTables...)
	return &c
}
