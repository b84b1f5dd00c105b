// Package cmd implements the asttest command-line interface.
// It runs Asterisk test suites, lists their tests and conditions, and
// inspects build options, captures and run history.
package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/ajxudir/asttest/pkg/errors"
	"github.com/ajxudir/asttest/pkg/verbose"
	"github.com/spf13/cobra"
)

var exitFunc = os.Exit

var (
	verboseFlag         bool
	traceFlag           bool
	versionFlag         bool
	skipBuildChecksFlag bool
	configFlag          string
	suiteRootFlag       string
	buildOptsFlag       string
	asteriskFlag        string
)

var rootCmd = &cobra.Command{
	Use:   "asttest",
	Short: "Asterisk test suite runner with pre- and post-test conditions",
	Long: `Run Asterisk test suites. Every test is bracketed by test conditions
that inspect the running Asterisk instances before and after the scenario
and fail the test when they find leaked locks, channels, threads, file
descriptors, SIP dialogs or task processors.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verboseFlag {
			verbose.Enable()
		}
		if traceFlag {
			verbose.EnableTrace()
		}
		if !skipBuildChecksFlag {
			if warnings := GetBuildWarnings(); warnings != "" {
				fmt.Fprint(os.Stderr, warnings)
				fmt.Fprintln(os.Stderr)
			}
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		if versionFlag {
			printVersionOutput()
			return
		}
		_ = cmd.Help()
	},
}

// Execute runs the root command, prints any error with its hint to stderr
// and exits with the matching code:
//   - 0: Every selected test passed
//   - 1: At least one test failed or timed out
//   - 2: Configuration error
//   - 3: Setup error
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		code := errors.GetExitCode(err)
		errors.PrintErrorWithHints(os.Stderr, []error{err}, verboseFlag)
		if pse, ok := errors.IsPartialSuccess(err); ok {
			verbose.Infof("Exit code %d: %d tests passed, %d failed", code, pse.Succeeded, pse.Failed)
		} else {
			verbose.Infof("Exit code %d: %v", code, err)
		}
		exitFunc(code)
	}
}

// ExecuteTest runs the root command and returns its error instead of exiting.
func ExecuteTest() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&verboseFlag, "verbose", false, "Enable verbose debug output")
	pf.BoolVar(&traceFlag, "trace", false, "Also log every CLI command and its output")
	pf.BoolVar(&skipBuildChecksFlag, "skip-build-checks", false, "Skip build validation warnings (dev build, arch mismatch)")
	pf.StringVarP(&configFlag, "config", "c", "", "Suite configuration file (default: <suite-root>/test-config.yaml)")
	pf.StringVarP(&suiteRootFlag, "suite-root", "d", ".", "Test suite root holding tests/ and configs/")
	pf.StringVar(&buildOptsFlag, "buildopts", "", "Path to buildopts.h of the Asterisk under test")
	pf.StringVar(&asteriskFlag, "asterisk", "", "Asterisk executable (default: asterisk on PATH)")

	rootCmd.Flags().BoolVarP(&versionFlag, "version", "v", false, "Show version information")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(buildOptsCmd)
	rootCmd.AddCommand(conditionsCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(captureCmd)
}

// printVersionOutput prints version, build and runtime information.
func printVersionOutput() {
	buildOS, buildArch := getBuildTarget()
	fmt.Printf("  Build:   %s/%s\n", buildOS, buildArch)
	if buildOS != runtime.GOOS || buildArch != runtime.GOARCH {
		fmt.Printf("  Runtime: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	}
	fmt.Printf("  Go:      %s\n", runtime.Version())
	if BuildTime != "" {
		fmt.Printf("  Date:    %s\n", BuildTime)
	}
	fmt.Println()
	if GitCommit != "" {
		fmt.Printf("  Git:     %s\n", GitCommit)
	}
	fmt.Printf("  Version: %s\n", Version)
}
