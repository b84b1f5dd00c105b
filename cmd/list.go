package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajxudir/asttest/pkg/config"
	"github.com/ajxudir/asttest/pkg/constants"
	"github.com/ajxudir/asttest/pkg/errors"
	"github.com/ajxudir/asttest/pkg/output"
	"github.com/ajxudir/asttest/pkg/suite"
	"github.com/spf13/cobra"
)

var (
	listTagFlag    []string
	listOutputFlag string
)

var listCmd = &cobra.Command{
	Use:     "list [test...]",
	Aliases: []string{"ls"},
	Short:   "List the tests of the suite",
	Long:    `List the selected tests with their summary, tags and skip reason without running them.`,
	RunE:    runList,
}

func init() {
	listCmd.Flags().StringSliceVarP(&listTagFlag, "tag", "t", nil, "Only list tests carrying one of these tags (comma-separated)")
	listCmd.Flags().StringVarP(&listOutputFlag, "output", "o", "", "Output format: json, csv, xml (default: table)")
}

// runList executes the list command.
//
// It performs the following operations:
//   - Step 1: Load the suite configuration
//   - Step 2: Select the tests from the arguments, the suite list or discovery
//   - Step 3: Load every test configuration and describe it
//   - Step 4: Print a table or the requested structured format
//
// Parameters:
//   - cmd: Cobra command instance
//   - args: Explicit test names; empty for the whole suite
//
// Returns:
//   - error: On config or selection failure; broken tests are listed with their error
func runList(cmd *cobra.Command, args []string) error {
	format := output.ParseFormat(listOutputFlag)
	if err := output.ValidateStructuredOutputFlags(format, verboseFlag); err != nil {
		return err
	}

	cfg, err := loadSuiteConfig(nil)
	if err != nil {
		return err
	}
	runner := suite.NewRunner(suite.Options{SuiteRoot: suiteRootFlag, Global: cfg})
	names, err := runner.Select(args)
	if err != nil {
		return errors.NewExitError(errors.ExitConfigError, err)
	}

	result := buildTestList(runner.TestsDir(), names, cfg)
	if output.IsStructuredFormat(format) {
		return output.WriteTestListResult(os.Stdout, format, result)
	}
	printTestList(result)
	return nil
}

// buildTestList describes every named test. Tests filtered out by --tag are
// omitted.
func buildTestList(testsDir string, names []string, cfg *config.GlobalConfig) *output.TestListResult {
	result := &output.TestListResult{
		Summary: output.TestListSummary{SuiteRoot: suiteRootFlag},
		Tests:   make([]output.TestListEntry, 0, len(names)),
	}
	for _, name := range names {
		entry := output.TestListEntry{Name: name, ExpectPass: true}
		tc, err := config.LoadTest(testsDir, name, cfg)
		if err != nil {
			entry.Error = err.Error()
			result.Tests = append(result.Tests, entry)
			continue
		}
		if !tc.HasTags(listTagFlag) {
			continue
		}
		entry.Summary = tc.Summary()
		entry.Tags = tc.Properties.Tags
		entry.ExpectPass = tc.ExpectPass()
		entry.Skip = tc.SkipReason()
		entry.Legacy = isExecutable(filepath.Join(tc.Dir, suite.RunTestFile))
		if entry.Skip != "" {
			result.Summary.Skipped++
		}
		result.Tests = append(result.Tests, entry)
	}
	result.Summary.Total = len(result.Tests)
	return result
}

func printTestList(result *output.TestListResult) {
	if len(result.Tests) == 0 {
		fmt.Println("No tests found")
		return
	}

	table := output.NewTable().
		AddColumn("TEST").
		AddColumn("TAGS").
		AddColumn("KIND").
		AddClippedColumn("SUMMARY", 60)
	rows := make([][]string, 0, len(result.Tests))
	for _, e := range result.Tests {
		kind := "scenario"
		if e.Legacy {
			kind = "run-test"
		}
		summary := e.Summary
		switch {
		case e.Error != "":
			summary = constants.IconError + " " + e.Error
		case e.Skip != "":
			summary = constants.IconSkipped + " skip: " + e.Skip
		case !e.ExpectPass:
			summary = "(expected to fail) " + summary
		}
		row := []string{e.Name, strings.Join(e.Tags, ","), kind, firstLineOf(summary)}
		table.UpdateWidths(row...)
		rows = append(rows, row)
	}

	table.Fprint(os.Stdout)
	for _, row := range rows {
		fmt.Println(table.FormatRow(row...))
	}
	fmt.Printf("\nTotal: %d tests (%d skipped)\n", result.Summary.Total, result.Summary.Skipped)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Mode()&0o111 != 0
}

func firstLineOf(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
