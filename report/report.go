// Package report reduces a run's CallResult sequence into its summary.
//
// Pure reduction, no I/O: the engine is the single writer of the result
// sequence and aggregation happens only after it terminates, so nothing
// here needs locking.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/pageturn-io/pageturn/types"
)

// Aggregate derives the run summary from the ordered result sequence.
// An empty sequence (e.g. after an immediate preflight abort) yields a
// zero-count summary; totals always satisfy attempted = succeeded + failed.
func Aggregate(results []types.CallResult, startedAt, finishedAt time.Time) types.RunSummary {
	summary := types.RunSummary{
		StartedAt:       startedAt,
		FinishedAt:      finishedAt,
		DurationSeconds: finishedAt.Sub(startedAt).Seconds(),
	}

	for _, r := range results {
		summary.TotalAttempted++
		if r.Succeeded {
			summary.TotalSucceeded++
			continue
		}
		summary.TotalFailed++

		e := &types.RunError{Index: r.Index, Kind: r.ErrorKind, Detail: r.ErrorDetail}
		if summary.FirstError == nil {
			summary.FirstError = e
		}
		summary.LastError = e
	}

	return summary
}

// MarkAborted records a run-level abort cause on a summary whose result
// sequence never produced one — the preflight-rejection path, where the
// engine made zero calls.
func MarkAborted(summary *types.RunSummary, kind types.ErrorKind, detail string) {
	e := &types.RunError{Kind: kind, Detail: detail}
	if summary.FirstError == nil {
		summary.FirstError = e
	}
	summary.LastError = e
}

// WriteText renders a human-readable run report, the shape printed after
// a non-quiet run.
func WriteText(w io.Writer, runID string, state types.RunState, summary types.RunSummary) {
	fmt.Fprintf(w, "\n=== Run Result ===\n")
	fmt.Fprintf(w, "Run ID:      %s\n", runID)
	fmt.Fprintf(w, "State:       %s\n", state)
	fmt.Fprintf(w, "Attempted:   %d\n", summary.TotalAttempted)
	fmt.Fprintf(w, "Succeeded:   %d\n", summary.TotalSucceeded)
	fmt.Fprintf(w, "Failed:      %d\n", summary.TotalFailed)
	fmt.Fprintf(w, "Duration:    %s\n", time.Duration(summary.DurationSeconds*float64(time.Second)).Round(time.Millisecond))
	if summary.FirstError != nil {
		fmt.Fprintf(w, "First error: %s\n", formatRunError(summary.FirstError))
	}
	if summary.LastError != nil && summary.LastError != summary.FirstError {
		fmt.Fprintf(w, "Last error:  %s\n", formatRunError(summary.LastError))
	}
}

func formatRunError(e *types.RunError) string {
	if e.Index > 0 {
		return fmt.Sprintf("call %d: %s (%s)", e.Index, e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s (%s)", e.Kind, e.Detail)
}
