package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ajxudir/asttest/pkg/buildoptions"
	"github.com/ajxudir/asttest/pkg/condition"
	"github.com/ajxudir/asttest/pkg/errors"
	"github.com/ajxudir/asttest/pkg/history"
	"github.com/ajxudir/asttest/pkg/metrics"
	"github.com/ajxudir/asttest/pkg/output"
	"github.com/ajxudir/asttest/pkg/preflight"
	"github.com/ajxudir/asttest/pkg/report"
	"github.com/ajxudir/asttest/pkg/suite"
	"github.com/ajxudir/asttest/pkg/verbose"
	"github.com/ajxudir/asttest/pkg/warnings"
	"github.com/spf13/cobra"
)

var (
	runTagFlag        []string
	runJUnitFlag      string
	runMetricsFlag    string
	runHistoryFlag    string
	runSkipChecksFlag bool
	runTimeoutFlag    time.Duration
	runAstVersionFlag string
	runOutputFlag     string
	runDirFlag        string
	runModuleDirFlag  string
)

var runCmd = &cobra.Command{
	Use:   "run [test...]",
	Short: "Run tests with their pre- and post-test conditions",
	Long: `Run the selected tests one after the other. Without arguments the tests
listed in the suite configuration run, or every test found under tests/.

Exit codes:
  0  every selected test passed, was skipped or failed as expected
  1  at least one test failed or timed out
  2  configuration error
  3  setup error`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringSliceVarP(&runTagFlag, "tag", "t", nil, "Only run tests carrying one of these tags (comma-separated)")
	f.StringVar(&runJUnitFlag, "junit", "", "Write a JUnit XML report to this file")
	f.StringVar(&runMetricsFlag, "metrics", "", "Write Prometheus metrics in text format to this file")
	f.StringVar(&runHistoryFlag, "history", "", "Record results in this SQLite database")
	f.BoolVar(&runSkipChecksFlag, "skip-checks", false, "Do not check test dependencies before running")
	f.DurationVar(&runTimeoutFlag, "timeout", 0, "Per-test timeout overriding reactor-timeout (e.g. 90s)")
	f.StringVar(&runAstVersionFlag, "ast-version", "", "Version of the Asterisk under test instead of asking asterisk -V")
	f.StringVarP(&runOutputFlag, "output", "o", "", "Output format: json, csv, xml (default: table)")
	f.StringVar(&runDirFlag, "run-dir", suite.DefaultRunDir, "Root of the per-test Asterisk directories")
	f.StringVar(&runModuleDirFlag, "module-dir", "", "Asterisk module directory (default: astmoddir)")
}

// runRun executes the run command.
//
// It performs the following operations:
//   - Step 1: Load and validate the suite configuration against the registry
//   - Step 2: Resolve the Asterisk version and its build options
//   - Step 3: Wire metrics and history into the runner
//   - Step 4: Run the selected tests
//   - Step 5: Print the summary and write the requested reports
//
// Parameters:
//   - cmd: Cobra command instance
//   - args: Explicit test names; empty for the whole suite
//
// Returns:
//   - error: PartialSuccessError or ExitError with ExitTestsFailed when tests
//     fail; ExitConfigError or ExitSetupError when the run cannot start
func runRun(cmd *cobra.Command, args []string) error {
	format := output.ParseFormat(runOutputFlag)
	if err := output.ValidateStructuredOutputFlags(format, verboseFlag); err != nil {
		return errors.NewExitError(errors.ExitConfigError, err)
	}

	reg := newRegistryFunc()
	cfg, err := loadSuiteConfig(reg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	version, err := resolveVersion(ctx, runAstVersionFlag, cfg)
	if err != nil {
		return err
	}

	buildOpts := buildoptions.NewCache(buildOptsFlag)
	if _, err := buildOpts.Options(); err != nil {
		warnings.Warnf("%v; conditions needing build options will be skipped\n", err)
	}
	var deps *preflight.Cache
	if !runSkipChecksFlag {
		deps = preflight.NewCache(buildOpts, runModuleDirFlag, nil)
	}

	opts := suite.Options{
		SuiteRoot: suiteRootFlag,
		Global:    cfg,
		Registry:  reg,
		BuildOpts: buildOpts,
		Deps:      deps,
		Version:   version,
		Binary:    asteriskFlag,
		ModuleDir: runModuleDirFlag,
		RunDir:    runDirFlag,
		Tags:      runTagFlag,
		Timeout:   runTimeoutFlag,
	}
	if output.IsStructuredFormat(format) {
		opts.Progress = os.Stderr
	}

	var collector *metrics.Collector
	if runMetricsFlag != "" {
		collector = metrics.NewCollector()
		opts.Observers = append(opts.Observers, condition.Observer(collector.ObserveCondition))
	}

	var store *history.Store
	if runHistoryFlag != "" {
		store, err = history.Open(runHistoryFlag)
		if err != nil {
			return errors.NewExitError(errors.ExitSetupError, err)
		}
		defer store.Close()
	}
	runID := time.Now().UTC().Format("20060102T150405Z")

	opts.OnResult = func(tr suite.TestResult) {
		if collector != nil {
			collector.ObserveTest(tr)
		}
		if store != nil {
			if _, err := store.Record(context.Background(), history.NewEntry(runID, version.String(), tr)); err != nil {
				warnings.Warnf("Failed to record %s in history: %v\n", tr.Name, err)
			}
		}
	}

	result, err := suite.NewRunner(opts).Run(ctx, args)
	if err != nil {
		return errors.NewExitError(errors.ExitConfigError, err)
	}

	if err := writeRunOutput(os.Stdout, format, result); err != nil {
		return err
	}
	if err := writeRunReports(result, collector); err != nil {
		return err
	}
	return runOutcome(result)
}

// writeRunOutput prints the table summary or the structured result.
func writeRunOutput(w io.Writer, format output.Format, result *suite.Result) error {
	if output.IsStructuredFormat(format) {
		return output.WriteRunResult(w, format, report.RunResult(result))
	}
	report.PrintSummary(w, result)
	return nil
}

// writeRunReports writes the JUnit report and the metrics file when asked.
func writeRunReports(result *suite.Result, collector *metrics.Collector) error {
	if runJUnitFlag != "" {
		if err := report.WriteJUnitFile(runJUnitFlag, result); err != nil {
			return errors.NewExitError(errors.ExitSetupError, err)
		}
		verbose.Infof("Wrote JUnit report %s", runJUnitFlag)
	}
	if collector != nil {
		if err := collector.WriteFile(runMetricsFlag); err != nil {
			return errors.NewExitError(errors.ExitSetupError, err)
		}
		verbose.Infof("Wrote metrics %s", runMetricsFlag)
	}
	return nil
}

// runOutcome maps a finished run to the command error.
//
// Returns:
//   - error: nil when nothing failed; PartialSuccessError when some tests
//     passed; ExitError with ExitTestsFailed when none did
func runOutcome(result *suite.Result) error {
	failed := result.FailedTests()
	if len(failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failed))
	for _, t := range failed {
		errs = append(errs, &errors.TestFailedError{Test: t.Name, Reasons: t.Reasons, TimedOut: t.TimedOut})
	}
	if passed := result.PassedCount(); passed > 0 {
		return errors.NewPartialSuccessError(passed, len(failed), errs)
	}
	return errors.NewExitError(errors.ExitTestsFailed, fmt.Errorf("%d of %d tests failed", len(failed), result.RanCount()))
}
