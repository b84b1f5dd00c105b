// Package suite selects the tests of an Asterisk test suite, decides which
// of them can run against the Asterisk under test and runs them one after
// the other.
package suite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ajxudir/asttest/pkg/asterisk"
	"github.com/ajxudir/asttest/pkg/cmdexec"
	"github.com/ajxudir/asttest/pkg/condition"
	"github.com/ajxudir/asttest/pkg/config"
	"github.com/ajxudir/asttest/pkg/constants"
	"github.com/ajxudir/asttest/pkg/preflight"
	"github.com/ajxudir/asttest/pkg/testcase"
	"github.com/ajxudir/asttest/pkg/verbose"
	"github.com/ajxudir/asttest/pkg/warnings"
)

// Suite layout and defaults.
const (
	TestsDirName          = "tests"
	ConfigsDirName        = "configs"
	RunTestFile           = "run-test"
	DefaultRunDir         = "/tmp/asterisk-testsuite"
	DefaultRunTestTimeout = 30 * time.Minute
)

// Options configures a Runner.
//
// Fields:
//   - SuiteRoot: Directory holding tests/ and configs/
//   - Global: Suite configuration
//   - Registry: Condition implementations
//   - BuildOpts: Build options of the Asterisk under test; may be nil
//   - Deps: Dependency checker; nil skips dependency checks
//   - Version: Version of the Asterisk under test; zero disables version gating
//   - Binary: Asterisk executable
//   - ModuleDir: Module directory for local instances
//   - RunDir: Root of the per-test instance trees
//   - Tags: Only tests carrying one of these tags run
//   - Timeout: Overrides reactor-timeout and bounds run-test when non-zero
//   - Observers: Passed to every test case
//   - OnResult: Called with every test result as soon as it is known
//   - Progress: Receives the per-test progress lines; defaults to stdout
type Options struct {
	SuiteRoot string
	Global    *config.GlobalConfig
	Registry  *condition.Registry
	BuildOpts condition.BuildOptionChecker
	Deps      *preflight.Cache
	Version   asterisk.Version
	Binary    string
	ModuleDir string
	RunDir    string
	Tags      []string
	Timeout   time.Duration
	Observers []condition.Observer
	OnResult  func(TestResult)
	Progress  io.Writer
}

// Runner runs the tests of one suite.
type Runner struct {
	opts Options
}

// NewRunner creates a runner, filling in defaults.
func NewRunner(opts Options) *Runner {
	if opts.RunDir == "" {
		opts.RunDir = DefaultRunDir
	}
	if opts.Global == nil {
		opts.Global = config.Default()
	}
	return &Runner{opts: opts}
}

// TestsDir returns <suite-root>/tests.
func (r *Runner) TestsDir() string {
	return filepath.Join(r.opts.SuiteRoot, TestsDirName)
}

// Select returns the tests to consider.
//
// Explicit names win; glob patterns among them are expanded against the
// suite. Otherwise the suite list of the global configuration is used, and
// failing that the tests found under the tests directory.
//
// Parameters:
//   - names: Test names given on the command line
//
// Returns:
//   - []string: Test names relative to the tests directory
//   - error: When the tests directory cannot be listed
func (r *Runner) Select(names []string) ([]string, error) {
	if len(names) > 0 {
		out := make([]string, 0, len(names))
		globs := false
		for _, n := range names {
			n = strings.TrimPrefix(filepath.ToSlash(n), TestsDirName+"/")
			out = append(out, strings.TrimSuffix(n, "/"))
			globs = globs || IsPattern(n)
		}
		if !globs {
			return out, nil
		}
		all, err := r.suiteTests()
		if err != nil {
			return nil, err
		}
		return expandPatterns(out, all), nil
	}
	return r.suiteTests()
}

// suiteTests returns the suite list of the global configuration, or the
// tests found under the tests directory.
func (r *Runner) suiteTests() ([]string, error) {
	if len(r.opts.Global.Tests) > 0 {
		return append([]string(nil), r.opts.Global.Tests...), nil
	}
	return config.ListTests(r.TestsDir())
}

// Run runs every selected test in order.
//
// Parameters:
//   - ctx: Context for the whole run; cancelling it stops after the current test
//   - names: Explicit test names, or nil for the whole suite
//
// Returns:
//   - *Result: One result per selected test
//   - error: When the tests cannot be selected
func (r *Runner) Run(ctx context.Context, names []string) (*Result, error) {
	selected, err := r.Select(names)
	if err != nil {
		return nil, err
	}
	verbose.Infof("Running %d tests", len(selected))

	progress := r.opts.Progress
	if progress == nil {
		progress = os.Stdout
	}
	result := &Result{Tests: make([]TestResult, 0, len(selected))}
	start := time.Now()
	for i, name := range selected {
		if ctx.Err() != nil {
			warnings.Warnf("Run cancelled; %d tests not run\n", len(selected)-i)
			break
		}
		_, _ = fmt.Fprintf(progress, "--> Running test '%s' (%d/%d) ...\n", name, i+1, len(selected))
		tr := r.RunTest(ctx, name)
		_, _ = fmt.Fprintf(progress, "    %s %s [%s]\n", constants.StatusIcon(tr.Status), tr.Status, FormatDuration(tr.Duration))
		result.Tests = append(result.Tests, tr)
		if r.opts.OnResult != nil {
			r.opts.OnResult(tr)
		}
	}
	result.TotalDuration = time.Since(start)
	return result, nil
}

// RunTest decides whether one test can run, runs it and applies its
// expected result.
//
// It performs the following operations:
//   - Step 1: Load and validate tests/<name>/test-config.yaml
//   - Step 2: Skip on tags, skip reasons and exclude-tests
//   - Step 3: Mark cannot-run on version range or unmet dependencies
//   - Step 4: Run run-test if present, otherwise the configured scenario
//   - Step 5: Invert the verdict of a test expected to fail
//
// Parameters:
//   - ctx: Context for cancellation
//   - name: Test name relative to the tests directory
//
// Returns:
//   - TestResult: The result; never an error, failures are part of the result
func (r *Runner) RunTest(ctx context.Context, name string) TestResult {
	tr := TestResult{Name: name, ExpectPass: true, StartedAt: time.Now()}

	cfg, err := config.LoadTest(r.TestsDir(), name, r.opts.Global)
	if err != nil {
		return r.failed(tr, err.Error())
	}
	tr.Summary = cfg.Summary()
	tr.ExpectPass = cfg.ExpectPass()

	if v := config.ValidateTest(cfg); v.HasErrors() {
		return r.failed(tr, v.ErrorMessage())
	}
	if reason := r.skipReason(cfg); reason != "" {
		tr.Status = constants.StatusSkipped
		tr.Reasons = []string{reason}
		verbose.Infof("Skipping %s: %s", name, reason)
		return tr
	}
	version, reasons := r.canRun(ctx, cfg)
	if len(reasons) > 0 {
		tr.Status = constants.StatusCannotRun
		tr.Reasons = reasons
		verbose.Infof("Test %s cannot run: %s", name, strings.Join(reasons, "; "))
		return tr
	}

	if path, ok := r.legacyRunTest(cfg); ok {
		r.runLegacy(ctx, cfg, path, version, &tr)
	} else {
		r.runScenario(ctx, cfg, &tr)
	}
	r.applyExpected(&tr)
	return tr
}

func (r *Runner) failed(tr TestResult, reason string) TestResult {
	warnings.Errorf("%s", reason)
	tr.Status = constants.StatusFailed
	tr.Reasons = []string{reason}
	tr.Duration = time.Since(tr.StartedAt)
	return tr
}

// skipReason returns why the test is skipped, or an empty string.
func (r *Runner) skipReason(cfg *config.TestConfig) string {
	if reason := cfg.SkipReason(); reason != "" {
		return reason
	}
	for _, excluded := range r.opts.Global.ExcludedTests() {
		if MatchTest(cfg.Name, excluded) {
			return fmt.Sprintf("excluded by test configuration [%s]", r.opts.Global.Settings.TestConfiguration)
		}
	}
	if !cfg.HasTags(r.opts.Tags) {
		return fmt.Sprintf("Tags not met: requested [%s], test has [%s]",
			strings.Join(r.opts.Tags, ", "), strings.Join(cfg.Properties.Tags, ", "))
	}
	return ""
}

// canRun checks the version range and the dependencies.
//
// Returns:
//   - asterisk.Version: The version the test runs against
//   - []string: Why the test cannot run; empty when it can
func (r *Runner) canRun(ctx context.Context, cfg *config.TestConfig) (asterisk.Version, []string) {
	var reasons []string
	version := r.opts.Version
	if forced := cfg.ForcedVersion(); forced != "" {
		v, err := asterisk.ParseVersion(forced)
		if err != nil {
			return version, []string{fmt.Sprintf("invalid forced version %q: %v", forced, err)}
		}
		version = v
	}

	if version.IsZero() {
		verbose.Debugf("Asterisk version unknown; not checking version range of %s", cfg.Name)
	} else {
		ok, bound, err := version.InRange(cfg.MinVersion(), cfg.Properties.MaxVersion)
		switch {
		case err != nil:
			reasons = append(reasons, fmt.Sprintf("invalid %s: %v", bound, err))
		case !ok && bound == "minversion":
			reasons = append(reasons, fmt.Sprintf("Asterisk %s is older than minversion %s", version, cfg.MinVersion()))
		case !ok:
			reasons = append(reasons, fmt.Sprintf("Asterisk %s is newer than maxversion %s", version, cfg.Properties.MaxVersion))
		}
	}

	if r.opts.Deps != nil {
		results, ok := r.opts.Deps.CheckAll(ctx, cfg.Properties.Dependencies)
		if !ok {
			var missing []string
			for _, res := range results {
				if !res.Met {
					missing = append(missing, fmt.Sprintf("%s (%s)", res.Dependency, res.Reason))
				}
			}
			reasons = append(reasons, "Missing dependencies: "+strings.Join(missing, ", "))
		}
	}
	return version, reasons
}

// legacyRunTest returns the run-test executable of the test, if it has one.
func (r *Runner) legacyRunTest(cfg *config.TestConfig) (string, bool) {
	path := filepath.Join(cfg.Dir, RunTestFile)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		if cfg.TestObject != nil && cfg.TestObject.Type == config.ScenarioRunTest {
			warnings.Warnf("Test %s wants %s but %s is missing\n", cfg.Name, config.ScenarioRunTest, path)
		}
		return "", false
	}
	if info.Mode()&0o111 == 0 {
		verbose.Debugf("%s is not executable; ignoring", path)
		return "", false
	}
	return path, true
}

// runLegacy runs "tests/<name>/run-test -v <version>" and takes its exit
// status as the verdict.
func (r *Runner) runLegacy(ctx context.Context, cfg *config.TestConfig, path string, version asterisk.Version, tr *TestResult) {
	timeout := r.opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRunTestTimeout
	}
	args := []string{}
	if !version.IsZero() {
		args = append(args, "-v", version.String())
	}
	spec := cmdexec.Spec{Path: path, Args: args, Dir: r.opts.SuiteRoot, Timeout: timeout}
	verbose.Infof("Running %s", spec)

	res, err := cmdexec.Run(ctx, spec)
	tr.Duration = time.Since(tr.StartedAt)
	tr.Output = string(res.Stdout) + string(res.Stderr)
	switch {
	case err != nil:
		tr.Passed = false
		tr.Reasons = []string{err.Error()}
		tr.TimedOut = errors.Is(err, cmdexec.ErrTimeout)
	case res.ExitCode != 0:
		tr.Passed = false
		tr.Reasons = []string{fmt.Sprintf("%s exited with status %d", RunTestFile, res.ExitCode)}
	default:
		tr.Passed = true
	}
	tr.Status = statusOf(tr.Passed, tr.TimedOut)
}

// runScenario runs the test through a test case with the configured
// scenario.
func (r *Runner) runScenario(ctx context.Context, cfg *config.TestConfig, tr *TestResult) {
	runDir := filepath.Join(r.opts.RunDir, filepath.FromSlash(cfg.Name))
	if err := os.RemoveAll(runDir); err != nil {
		verbose.Debugf("Could not clear %s: %v", runDir, err)
	}

	var confOptions map[string]string
	if cfg.TestObject != nil {
		confOptions = cfg.TestObject.ConfOptions
	}
	insts, err := testcase.BuildInstances(testcase.InstanceSetup{
		RunDir:       runDir,
		Binary:       r.opts.Binary,
		ModuleDir:    r.opts.ModuleDir,
		SuiteConfigs: filepath.Join(r.opts.SuiteRoot, ConfigsDirName),
		TestDir:      cfg.Dir,
		Hosts:        r.opts.Global.Instances(cfg.TestObject.InstanceCount()),
		Options:      confOptions,
	})
	if err != nil {
		*tr = r.failed(*tr, fmt.Sprintf("failed to set up Asterisk: %v", err))
		return
	}

	timeout := cfg.TestObject.Timeout()
	if r.opts.Timeout > 0 {
		timeout = r.opts.Timeout
	}
	tc := testcase.New(testcase.Options{
		Name:       cfg.Name,
		Instances:  testcase.AsInstances(insts),
		Conditions: cfg.Conditions(),
		Registry:   r.opts.Registry,
		BuildOpts:  r.opts.BuildOpts,
		Timeout:    timeout,
		Observers:  r.opts.Observers,
	})
	res := tc.Run(ctx, testcase.NewCLIScript(cfg.TestObject))

	tr.Passed = res.Passed
	tr.TimedOut = res.TimedOut
	tr.Duration = res.Duration
	tr.Reasons = res.Reasons
	tr.Conditions = res.Conditions
	tr.Status = res.Status()
}

// applyExpected inverts the verdict of a test expected to fail.
func (r *Runner) applyExpected(tr *TestResult) {
	if tr.ExpectPass {
		return
	}
	if tr.Passed {
		tr.Passed = false
		tr.Status = constants.StatusFailed
		tr.Reasons = append(tr.Reasons, "Test passed but was expected to fail")
		return
	}
	verbose.Infof("Test %s failed as expected", tr.Name)
	tr.Passed = true
	tr.Status = constants.StatusExpectedFailure
}

func statusOf(passed, timedOut bool) string {
	switch {
	case timedOut:
		return constants.StatusTimedOut
	case passed:
		return constants.StatusPassed
	default:
		return constants.StatusFailed
	}
}
