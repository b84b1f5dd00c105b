package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/ajxudir/asttest/pkg/constants"
	"github.com/ajxudir/asttest/pkg/output"
	"github.com/ajxudir/asttest/pkg/suite"
)

// reasonWidth caps the REASONS column so long condition messages do not
// wrap the table.
const reasonWidth = 80

// PrintSummary writes the console summary of a run.
//
// It performs the following operations:
//   - Step 1: Size a TEST/STATUS/DURATION/REASONS table to the results
//   - Step 2: Hide REASONS when no test recorded one
//   - Step 3: Write one row per test, status prefixed with its icon
//   - Step 4: Write the failure details and the pass/fail counts
//
// Parameters:
//   - w: Destination writer
//   - result: The suite outcome
func PrintSummary(w io.Writer, result *suite.Result) {
	table := output.NewTable().
		AddColumn("TEST").
		AddColumnWithMinWidth("STATUS", 10).
		AddColumn("DURATION").
		AddClippedColumn("REASONS", reasonWidth)

	const reasonsColumn = 3

	rows := make([][]string, 0, len(result.Tests))
	anyReason := false
	for _, t := range result.Tests {
		row := []string{
			t.Name,
			strings.TrimSpace(constants.StatusIcon(t.Status) + " " + t.Status),
			suite.FormatDuration(t.Duration),
			firstLine(t.Reason()),
		}
		anyReason = anyReason || row[reasonsColumn] != ""
		table.UpdateWidths(row...)
		rows = append(rows, row)
	}
	table.SetColumnVisible(reasonsColumn, anyReason)

	_, _ = fmt.Fprintln(w)
	table.Fprint(w)
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, table.FormatRow(row...))
	}
	_, _ = fmt.Fprintln(w)

	if failures := result.FormatFailures(); failures != "" {
		_, _ = fmt.Fprint(w, failures)
	}
	_, _ = fmt.Fprintf(w, "%s in %s\n", result.Summary(), suite.FormatDuration(result.TotalDuration))
}

// RunResult converts a suite outcome into its structured output form.
func RunResult(result *suite.Result) *output.RunResult {
	out := &output.RunResult{
		Summary: output.RunSummary{
			Total:    len(result.Tests),
			Passed:   result.PassedCount(),
			Failed:   result.FailedCount(),
			Skipped:  result.SkippedCount(),
			Duration: suite.FormatDuration(result.TotalDuration),
			Success:  result.Passed(),
		},
		Tests: make([]output.RunEntry, 0, len(result.Tests)),
	}
	for _, t := range result.Tests {
		entry := output.RunEntry{
			Name:     t.Name,
			Status:   t.Status,
			Duration: suite.FormatDuration(t.Duration),
			Reasons:  t.Reasons,
		}
		for _, c := range t.Conditions {
			entry.Conditions = append(entry.Conditions, output.ConditionEntry{
				Name: c.Name, Typename: c.Typename, Role: c.Role, Status: string(c.Status),
			})
		}
		out.Tests = append(out.Tests, entry)
	}
	return out
}

func firstLine(s string) string {
	return strings.SplitN(s, "\n", 2)[0]
}
