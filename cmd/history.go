package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/ajxudir/asttest/pkg/constants"
	"github.com/ajxudir/asttest/pkg/errors"
	"github.com/ajxudir/asttest/pkg/history"
	"github.com/ajxudir/asttest/pkg/output"
	"github.com/ajxudir/asttest/pkg/suite"
	"github.com/spf13/cobra"
)

var (
	historyDBFlag    string
	historyLimitFlag int
)

var historyCmd = &cobra.Command{
	Use:   "history [test]",
	Short: "Show recorded test results",
	Long: `Show the most recent results from a history database written by
"run --history", for one test or for every test.`,
	Args: cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyDBFlag, "db", "", "History database (required)")
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 20, "Number of results to show")
	_ = historyCmd.MarkFlagRequired("db")
}

// runHistory prints the latest results, newest first.
func runHistory(cmd *cobra.Command, args []string) error {
	name := ""
	if len(args) == 1 {
		name = args[0]
	}

	store, err := history.Open(historyDBFlag)
	if err != nil {
		return errors.NewExitError(errors.ExitSetupError, err)
	}
	defer store.Close()

	entries, err := store.Latest(context.Background(), name, historyLimitFlag)
	if err != nil {
		return errors.NewExitError(errors.ExitSetupError, err)
	}
	if len(entries) == 0 {
		if name == "" {
			fmt.Println("No recorded results")
		} else {
			fmt.Printf("No recorded results for %s\n", name)
		}
		return nil
	}

	table := output.NewTable().
		AddColumn("STARTED").
		AddColumn("RUN").
		AddConditionalColumn("TEST", name == "").
		AddColumnWithMinWidth("STATUS", 10).
		AddColumn("DURATION").
		AddColumn("ASTERISK").
		AddClippedColumn("REASONS", 60)
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		reason := ""
		if len(e.Reasons) > 0 {
			reason = firstLineOf(e.Reasons[0])
		}
		row := []string{
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.RunID,
			e.Name,
			constants.StatusIcon(e.Status) + " " + e.Status,
			suite.FormatDuration(e.Duration),
			orNA(e.AstVersion),
			reason,
		}
		table.UpdateWidths(row...)
		rows = append(rows, row)
	}
	table.Fprint(os.Stdout)
	for _, row := range rows {
		fmt.Println(table.FormatRow(row...))
	}
	return nil
}
