package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/gear6io/scylla-backfill/backfill/checkpoint"
	"github.com/gear6io/scylla-backfill/backfill/orchestrator"
	"github.com/gear6io/scylla-backfill/backfill/validator"
	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/pterm/pterm"
)

func renderTable(w io.Writer, data pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.New(ErrRenderFailed, "failed to render table", err)
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func renderRunSummary(w io.Writer, stats *orchestrator.RunStatistics) error {
	fmt.Fprintln(w, pterm.Bold.Sprint("Backfill summary"))
	data := pterm.TableData{
		{"Metric", "Value"},
		{"Run ID", stats.RunID},
		{"Tables processed", strconv.Itoa(stats.TablesProcessed)},
		{"Tables skipped", strconv.Itoa(stats.TablesSkipped)},
		{"Records processed", strconv.FormatInt(stats.RecordsProcessed, 10)},
		{"Errors", strconv.Itoa(stats.Errors)},
		{"Validation failures", strconv.Itoa(stats.ValidationFailures)},
		{"Duration", fmt.Sprintf("%.2fs", stats.DurationSeconds)},
	}
	if err := renderTable(w, data); err != nil {
		return err
	}

	if len(stats.PerTableMetrics) > 0 {
		names := make([]string, 0, len(stats.PerTableMetrics))
		for name := range stats.PerTableMetrics {
			names = append(names, name)
		}
		sort.Strings(names)

		perTable := pterm.TableData{{"Table", "Records", "Records/s", "Duration", "Memory %", "CPU %"}}
		for _, name := range names {
			m := stats.PerTableMetrics[name]
			perTable = append(perTable, []string{
				name,
				strconv.FormatInt(m.TotalRecords, 10),
				fmt.Sprintf("%.1f", m.RecordsPerSecond),
				fmt.Sprintf("%.2fs", m.DurationSeconds),
				fmt.Sprintf("%.1f", m.MemoryUsagePercent),
				fmt.Sprintf("%.1f", m.CPUUsagePercent),
			})
		}
		if err := renderTable(w, perTable); err != nil {
			return err
		}
	}

	if len(stats.FailedTables) > 0 {
		fmt.Fprintln(w, pterm.Red("Failed tables: "+strings.Join(stats.FailedTables, ", ")))
	}
	return nil
}

// verifyResult is one row of the verify report
type verifyResult struct {
	table  string
	report *validator.Report
	err    error
}

func renderVerifyReport(w io.Writer, results []verifyResult) error {
	data := pterm.TableData{{"Table", "Source", "Target", "Sampled", "Result", "Reason"}}
	for _, r := range results {
		if r.err != nil {
			data = append(data, []string{r.table, "-", "-", "-", pterm.Red("ERROR"), errors.FormatError(r.err)})
			continue
		}
		result := pterm.Green("OK")
		if !r.report.Match {
			result = pterm.Red("MISMATCH")
		}
		data = append(data, []string{
			r.table,
			strconv.FormatInt(r.report.SourceCount, 10),
			strconv.FormatInt(r.report.TargetCount, 10),
			strconv.Itoa(r.report.SampledRows),
			result,
			r.report.Reason,
		})
	}
	return renderTable(w, data)
}

func renderCheckpoints(w io.Writer, cps []checkpoint.Checkpoint) error {
	data := pterm.TableData{{"Table", "Processed", "Total", "Progress", "Batch size", "Saved at"}}
	for _, cp := range cps {
		data = append(data, []string{
			cp.TableName,
			strconv.FormatInt(cp.ProcessedCount, 10),
			strconv.FormatInt(cp.TotalCount, 10),
			fmt.Sprintf("%.1f%%", cp.Progress()),
			strconv.Itoa(cp.BatchSize),
			cp.Timestamp,
		})
	}
	return renderTable(w, data)
}
