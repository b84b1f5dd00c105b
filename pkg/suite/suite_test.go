package suite

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajxudir/asttest/pkg/asterisk"
	"github.com/ajxudir/asttest/pkg/checks"
	"github.com/ajxudir/asttest/pkg/cmdexec"
	"github.com/ajxudir/asttest/pkg/condition"
	"github.com/ajxudir/asttest/pkg/config"
	"github.com/ajxudir/asttest/pkg/constants"
	"github.com/ajxudir/asttest/pkg/preflight"
	"github.com/ajxudir/asttest/pkg/testutil"
	"github.com/ajxudir/asttest/pkg/warnings"
)

const remoteSuiteConfig = `global-settings:
  test-configuration: config-remote
  condition-definitions:
    - name: channels
      post:
        typename: channel.post
  asterisk-instances:
    - host: 127.0.0.1
config-remote:
  properties:
    testconditions:
      - name: channels
`

func quietWarnings(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	restore := warnings.SetWarningWriter(&buf)
	t.Cleanup(restore)
	return &buf
}

// stubExec replaces cmdexec.Run for the duration of the test.
func stubExec(t *testing.T, fn cmdexec.RunFunc) {
	t.Helper()
	old := cmdexec.Run
	cmdexec.Run = fn
	t.Cleanup(func() { cmdexec.Run = old })
}

// cliStub answers "asterisk -rx <command>" from outputs and run-test with exit.
func cliStub(outputs map[string]string, runTestExit int) cmdexec.RunFunc {
	return func(_ context.Context, spec cmdexec.Spec) (cmdexec.Result, error) {
		if filepath.Base(spec.Path) == RunTestFile {
			return cmdexec.Result{Stdout: []byte("legacy output\n"), ExitCode: runTestExit}, nil
		}
		cmd := spec.Args[len(spec.Args)-1]
		if out, ok := outputs[cmd]; ok {
			return cmdexec.Result{Stdout: []byte(out)}, nil
		}
		return cmdexec.Result{Stdout: []byte("No such command '" + cmd + "'\n"), ExitCode: 1}, nil
	}
}

func registry(t *testing.T) *condition.Registry {
	t.Helper()
	reg := condition.NewRegistry()
	require.NoError(t, checks.Register(reg))
	return reg
}

func writeRunTest(t *testing.T, root, name string) {
	t.Helper()
	path := testutil.WriteFile(t, filepath.Join(root, "tests", name), RunTestFile, "#!/bin/sh\nexit 0\n")
	require.NoError(t, os.Chmod(path, 0o755))
}

func newRunner(t *testing.T, root string, opts Options) *Runner {
	t.Helper()
	opts.SuiteRoot = root
	if opts.RunDir == "" {
		opts.RunDir = filepath.Join(root, "run")
	}
	return NewRunner(opts)
}

// TestSelect tests the behavior of Runner.Select.
//
// It verifies:
//   - Explicit names are normalised and win
//   - The global suite list comes next
//   - Discovery under tests/ is the fallback
func TestSelect(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTest(t, root, "b/two", "testinfo:\n  summary: two\n")
	testutil.WriteTest(t, root, "a/one", "testinfo:\n  summary: one\n")

	r := newRunner(t, root, Options{})
	names, err := r.Select([]string{"tests/a/one/", "b/two"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/one", "b/two"}, names)

	names, err = r.Select(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/one", "b/two"}, names)

	g := config.Default()
	g.Tests = []string{"b/two"}
	names, err = newRunner(t, root, Options{Global: g}).Select(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b/two"}, names)
}

// TestRunTest_NotRun tests the reasons a test is skipped or cannot run.
func TestRunTest_NotRun(t *testing.T) {
	quietWarnings(t)

	never := preflight.NewRegistry()
	never.Register("never", func(context.Context, *preflight.Cache) bool { return false })

	tests := []struct {
		name    string
		yaml    string
		opts    Options
		status  string
		contain string
	}{
		{
			name:    "skip reason",
			yaml:    "testinfo:\n  skip: flaky on CI\n",
			status:  constants.StatusSkipped,
			contain: "flaky on CI",
		},
		{
			name:    "skip in properties",
			yaml:    "properties:\n  skip: needs hardware\n",
			status:  constants.StatusSkipped,
			contain: "needs hardware",
		},
		{
			name:    "tags not met",
			yaml:    "properties:\n  tags: [pjsip]\n",
			opts:    Options{Tags: []string{"sip"}},
			status:  constants.StatusSkipped,
			contain: "Tags not met",
		},
		{
			name:    "older than minversion",
			yaml:    "properties:\n  minversion: '13.0.0'\n",
			opts:    Options{Version: asterisk.MustParseVersion("11.25.3")},
			status:  constants.StatusCannotRun,
			contain: "older than minversion 13.0.0",
		},
		{
			name:    "newer than maxversion",
			yaml:    "properties:\n  maxversion: '11.0.0'\n",
			opts:    Options{Version: asterisk.MustParseVersion("13.1.0")},
			status:  constants.StatusCannotRun,
			contain: "newer than maxversion 11.0.0",
		},
		{
			name:    "missing dependency",
			yaml:    "properties:\n  dependencies:\n    - custom: never\n",
			opts:    Options{Deps: preflight.NewCache(nil, "", never)},
			status:  constants.StatusCannotRun,
			contain: "Missing dependencies: custom never",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			testutil.WriteTest(t, root, "demo", tt.yaml)
			tr := newRunner(t, root, tt.opts).RunTest(context.Background(), "demo")

			assert.Equal(t, tt.status, tr.Status)
			assert.False(t, tr.Ran())
			assert.Contains(t, tr.Reason(), tt.contain)
		})
	}
}

// TestRunTest_Excluded tests exclude-tests of the selected global block.
func TestRunTest_Excluded(t *testing.T) {
	quietWarnings(t)
	root := t.TempDir()
	testutil.WriteTest(t, root, "channels/sip/basic", "testinfo:\n  summary: basic\n")

	g := config.Default()
	block := g.Blocks[g.Settings.TestConfiguration]
	block.ExcludeTests = []string{"channels/sip"}
	g.Blocks[g.Settings.TestConfiguration] = block

	tr := newRunner(t, root, Options{Global: g}).RunTest(context.Background(), "channels/sip/basic")
	assert.Equal(t, constants.StatusSkipped, tr.Status)
	assert.Contains(t, tr.Reason(), "excluded by test configuration")
}

// TestRunTest_BadConfig tests that broken test configs fail the test.
func TestRunTest_BadConfig(t *testing.T) {
	quietWarnings(t)
	root := t.TempDir()
	testutil.WriteTest(t, root, "broken", "properties:\n  minversion: '13'\n  maxversion: '11'\n")

	r := newRunner(t, root, Options{})
	tr := r.RunTest(context.Background(), "broken")
	assert.Equal(t, constants.StatusFailed, tr.Status)
	assert.Contains(t, tr.Reason(), "lower than minversion")

	tr = r.RunTest(context.Background(), "missing")
	assert.Equal(t, constants.StatusFailed, tr.Status)
	assert.Contains(t, tr.Reason(), "failed to load configuration for test 'missing'")
}

// TestRunTest_Legacy tests run-test execution and expected-result inversion.
func TestRunTest_Legacy(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		exit     int
		passed   bool
		status   string
		contains string
	}{
		{name: "pass", yaml: "testinfo:\n  summary: ok\n", exit: 0, passed: true, status: constants.StatusPassed},
		{name: "fail", yaml: "testinfo:\n  summary: ok\n", exit: 1, passed: false, status: constants.StatusFailed, contains: "exited with status 1"},
		{name: "expected failure", yaml: "properties:\n  expected-result: fail\n", exit: 1, passed: true, status: constants.StatusExpectedFailure},
		{name: "unexpected pass", yaml: "properties:\n  expected-result: fail\n", exit: 0, passed: false, status: constants.StatusFailed, contains: "expected to fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quietWarnings(t)
			var gotArgs []string
			stub := cliStub(nil, tt.exit)
			stubExec(t, func(ctx context.Context, spec cmdexec.Spec) (cmdexec.Result, error) {
				gotArgs = spec.Args
				return stub(ctx, spec)
			})

			root := t.TempDir()
			testutil.WriteTest(t, root, "legacy", tt.yaml)
			writeRunTest(t, root, "legacy")

			tr := newRunner(t, root, Options{Version: asterisk.MustParseVersion("13.1.0")}).RunTest(context.Background(), "legacy")
			assert.Equal(t, tt.passed, tr.Passed)
			assert.Equal(t, tt.status, tr.Status)
			assert.Equal(t, []string{"-v", "13.1.0"}, gotArgs)
			assert.Equal(t, "legacy output\n", tr.Output)
			if tt.contains != "" {
				assert.Contains(t, tr.Reason(), tt.contains)
			}
		})
	}
}

// TestRunTest_Scenario tests a cli-script test against a remote instance
// with a global channel condition.
func TestRunTest_Scenario(t *testing.T) {
	tests := []struct {
		name     string
		channels string
		passed   bool
	}{
		{name: "clean", channels: "0 active channels\n", passed: true},
		{name: "leftover channel", channels: "1 active channel\n", passed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quietWarnings(t)
			stubExec(t, cliStub(map[string]string{
				"core show version":  "Asterisk 18.20.0 built by root\n",
				"core show channels": tt.channels,
			}, 0))

			root := t.TempDir()
			testutil.WriteFile(t, root, "test-config.yaml", remoteSuiteConfig)
			testutil.WriteTest(t, root, "cli/version", `testinfo:
  summary: version
test-object:
  type: cli-script
  reactor-timeout: 5
  steps:
    - command: core show version
      expect: Asterisk 18
`)
			g, err := config.LoadGlobal("", root)
			require.NoError(t, err)

			var seen []TestResult
			r := newRunner(t, root, Options{
				Global:   g,
				Registry: registry(t),
				OnResult: func(tr TestResult) { seen = append(seen, tr) },
			})
			var res *Result
			testutil.CaptureStdout(t, func() {
				res, err = r.Run(context.Background(), []string{"cli/version"})
			})
			require.NoError(t, err)
			require.Len(t, res.Tests, 1)
			require.Len(t, seen, 1)

			tr := res.Tests[0]
			assert.Equal(t, tt.passed, tr.Passed)
			assert.Equal(t, "version", tr.Summary)
			require.Len(t, tr.Conditions, 1)
			assert.Equal(t, checks.TypeChannelPost, tr.Conditions[0].Typename)
			assert.Equal(t, tt.passed, res.Passed())
		})
	}
}

// TestResultCounts tests the aggregate counters and summaries.
func TestResultCounts(t *testing.T) {
	res := &Result{Tests: []TestResult{
		{Name: "a", Status: constants.StatusPassed, Passed: true},
		{Name: "b", Status: constants.StatusFailed, Reasons: []string{"Test Condition lock.post failed\nmore"}, Duration: 1500 * time.Millisecond},
		{Name: "c", Status: constants.StatusSkipped},
		{Name: "d", Status: constants.StatusExpectedFailure, Passed: true},
		{Name: "e", Status: constants.StatusCannotRun},
	}}

	assert.False(t, res.Passed())
	assert.Equal(t, 2, res.PassedCount())
	assert.Equal(t, 1, res.FailedCount())
	assert.Equal(t, 2, res.SkippedCount())
	assert.Equal(t, 3, res.RanCount())
	assert.Equal(t, "2/3 tests passed (1 failed, 2 skipped)", res.Summary())

	failures := res.FormatFailures()
	assert.Contains(t, failures, "b")
	assert.Contains(t, failures, "[1.5s]")
	assert.Contains(t, failures, "└─ Test Condition lock.post failed\n")
	assert.False(t, strings.Contains(failures, "more"))

	clean := &Result{Tests: []TestResult{{Status: constants.StatusPassed, Passed: true}, {Status: constants.StatusSkipped}}}
	assert.True(t, clean.Passed())
	assert.Equal(t, "All 1 tests passed (1 skipped)", clean.Summary())
	assert.Empty(t, clean.FormatFailures())
}

// TestFormatDuration tests the behavior of FormatDuration.
func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "500ms", FormatDuration(500*time.Millisecond))
	assert.Equal(t, "2.5s", FormatDuration(2500*time.Millisecond))
}
