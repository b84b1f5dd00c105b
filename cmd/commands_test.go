package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajxudir/asttest/pkg/cmdexec"
	"github.com/ajxudir/asttest/pkg/constants"
	"github.com/ajxudir/asttest/pkg/errors"
	"github.com/ajxudir/asttest/pkg/history"
	"github.com/ajxudir/asttest/pkg/output"
	"github.com/ajxudir/asttest/pkg/suite"
	"github.com/ajxudir/asttest/pkg/testutil"
	"github.com/ajxudir/asttest/pkg/warnings"
)

// saveFlags restores every command flag variable after the test and
// silences warnings.
func saveFlags(t *testing.T) *bytes.Buffer {
	t.Helper()
	root := []any{verboseFlag, traceFlag, versionFlag, skipBuildChecksFlag, configFlag, suiteRootFlag, buildOptsFlag, asteriskFlag}
	cfg := []bool{configShowDefaultsFlag, configShowEffectiveFlag, configInitFlag, configValidateFlag}
	list := []any{listTagFlag, listOutputFlag}
	run := []any{runTagFlag, runJUnitFlag, runMetricsFlag, runHistoryFlag, runSkipChecksFlag, runTimeoutFlag, runAstVersionFlag, runOutputFlag, runDirFlag, runModuleDirFlag}
	hist := []any{historyDBFlag, historyLimitFlag}
	t.Cleanup(func() {
		verboseFlag, traceFlag, versionFlag, skipBuildChecksFlag = root[0].(bool), root[1].(bool), root[2].(bool), root[3].(bool)
		configFlag, suiteRootFlag, buildOptsFlag, asteriskFlag = root[4].(string), root[5].(string), root[6].(string), root[7].(string)
		configShowDefaultsFlag, configShowEffectiveFlag, configInitFlag, configValidateFlag = cfg[0], cfg[1], cfg[2], cfg[3]
		listTagFlag, _ = list[0].([]string)
		listOutputFlag = list[1].(string)
		runTagFlag, _ = run[0].([]string)
		runJUnitFlag, runMetricsFlag, runHistoryFlag = run[1].(string), run[2].(string), run[3].(string)
		runSkipChecksFlag = run[4].(bool)
		runTimeoutFlag = run[5].(time.Duration)
		runAstVersionFlag, runOutputFlag, runDirFlag, runModuleDirFlag = run[6].(string), run[7].(string), run[8].(string), run[9].(string)
		historyDBFlag, historyLimitFlag = hist[0].(string), hist[1].(int)
	})

	var buf bytes.Buffer
	t.Cleanup(warnings.SetWarningWriter(&buf))
	return &buf
}

// newSuite creates a suite root with a buildopts.h and points the flags at it.
func newSuite(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	suiteRootFlag = root
	configFlag = ""
	buildOptsFlag = testutil.WriteBuildOpts(t, root, map[string]string{"DEBUG_THREADS": "1", "LOW_MEMORY": "0"})
	return root
}

func writeLegacyTest(t *testing.T, root, name, yaml string) {
	t.Helper()
	dir := testutil.WriteTest(t, root, name, yaml)
	path := testutil.WriteFile(t, dir, suite.RunTestFile, "#!/bin/sh\nexit 0\n")
	require.NoError(t, os.Chmod(path, 0o755))
}

// stubRunTest makes every run-test exit with the code mapped to its test
// directory name.
func stubRunTest(t *testing.T, exits map[string]int) {
	t.Helper()
	old := cmdexec.Run
	cmdexec.Run = func(_ context.Context, spec cmdexec.Spec) (cmdexec.Result, error) {
		return cmdexec.Result{ExitCode: exits[filepath.Base(filepath.Dir(spec.Path))]}, nil
	}
	t.Cleanup(func() { cmdexec.Run = old })
}

// TestRunConfig tests the config command modes.
func TestRunConfig(t *testing.T) {
	saveFlags(t)

	t.Run("show defaults", func(t *testing.T) {
		configShowDefaultsFlag = true
		defer func() { configShowDefaultsFlag = false }()
		out := testutil.CaptureStdout(t, func() { require.NoError(t, runConfig(configCmd, nil)) })
		assert.Contains(t, out, "config-pessimistic")
		assert.Contains(t, out, "thread.pre")
	})

	t.Run("show effective", func(t *testing.T) {
		newSuite(t)
		configShowEffectiveFlag = true
		defer func() { configShowEffectiveFlag = false }()
		out := testutil.CaptureStdout(t, func() { require.NoError(t, runConfig(configCmd, nil)) })
		assert.Contains(t, out, "Source: built-in defaults")
		assert.Contains(t, out, "Test configuration: config-pessimistic")
		assert.Contains(t, out, "lock.post")
		assert.Contains(t, out, "127.0.0.1 (local)")
	})

	t.Run("init then refuse overwrite", func(t *testing.T) {
		root := newSuite(t)
		configInitFlag = true
		defer func() { configInitFlag = false }()
		testutil.CaptureStdout(t, func() { require.NoError(t, runConfig(configCmd, nil)) })
		assert.FileExists(t, filepath.Join(root, "test-config.yaml"))

		err := createConfigTemplate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
	})

	t.Run("validate valid template", func(t *testing.T) {
		root := newSuite(t)
		testutil.WriteFile(t, root, "test-config.yaml", configTemplate)
		out := testutil.CaptureStdout(t, func() { require.NoError(t, validateSuiteConfig()) })
		assert.Contains(t, out, "Configuration valid")
	})

	t.Run("validate unknown typename", func(t *testing.T) {
		root := newSuite(t)
		testutil.WriteFile(t, root, "test-config.yaml", `global-settings:
  condition-definitions:
    - name: bogus
      post:
        typename: bogus.post
`)
		var err error
		out := testutil.CaptureStdout(t, func() { err = validateSuiteConfig() })
		require.Error(t, err)
		assert.Equal(t, errors.ExitConfigError, errors.GetExitCode(err))
		assert.Contains(t, out, "bogus.post")
	})
}

// TestRunList tests the list command in table and JSON form.
func TestRunList(t *testing.T) {
	saveFlags(t)
	root := newSuite(t)
	testutil.WriteTest(t, root, "channels/sip/basic", "testinfo:\n  summary: Basic call\nproperties:\n  tags: [sip]\n")
	testutil.WriteTest(t, root, "manager/login", "testinfo:\n  summary: AMI login\n  skip: broken\nproperties:\n  tags: [ami]\n")
	writeLegacyTest(t, root, "legacy/old", "testinfo:\n  summary: Old test\nproperties:\n  expected-result: false\n")

	t.Run("table", func(t *testing.T) {
		out := testutil.CaptureStdout(t, func() { require.NoError(t, runList(listCmd, nil)) })
		assert.Contains(t, out, "channels/sip/basic")
		assert.Contains(t, out, "run-test")
		assert.Contains(t, out, "skip: broken")
		assert.Contains(t, out, "(expected to fail) Old test")
		assert.Contains(t, out, "Total: 3 tests (1 skipped)")
	})

	t.Run("json filtered by tag", func(t *testing.T) {
		listOutputFlag = "json"
		listTagFlag = []string{"sip"}
		defer func() { listOutputFlag, listTagFlag = "", nil }()

		out := testutil.CaptureStdout(t, func() { require.NoError(t, runList(listCmd, nil)) })
		var res output.TestListResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		require.Len(t, res.Tests, 1)
		assert.Equal(t, "channels/sip/basic", res.Tests[0].Name)
		assert.Equal(t, []string{"sip"}, res.Tests[0].Tags)
	})

	t.Run("broken config is listed with its error", func(t *testing.T) {
		out := testutil.CaptureStdout(t, func() { require.NoError(t, runList(listCmd, []string{"missing/test"})) })
		assert.Contains(t, out, "missing/test")
		assert.Contains(t, out, constants.IconError)
	})
}

// TestRunConditions tests that the registry and definitions are printed.
func TestRunConditions(t *testing.T) {
	saveFlags(t)
	newSuite(t)

	out := testutil.CaptureStdout(t, func() { require.NoError(t, runConditions(conditionsCmd, nil)) })
	assert.Contains(t, out, "thread.pre")
	assert.Contains(t, out, "DEBUG_THREADS=1")
	assert.Contains(t, out, "DEBUG_FD_LEAKS=1 "+constants.IconCross)
	assert.Contains(t, out, "Global conditions [config-pessimistic]")
}

// TestRunBuildOpts tests the buildopts command.
func TestRunBuildOpts(t *testing.T) {
	saveFlags(t)
	newSuite(t)

	out := testutil.CaptureStdout(t, func() {
		require.NoError(t, runBuildOpts(buildOptsCmd, []string{"DEBUG_THREADS", "DEBUG_FD_LEAKS"}))
	})
	assert.Contains(t, out, "DEBUG_THREADS")
	assert.Contains(t, out, "not set")
	assert.NotContains(t, out, "LOW_MEMORY")
}

// TestRunCapture tests the capture command on an empty capture and a
// missing file.
func TestRunCapture(t *testing.T) {
	saveFlags(t)
	path := filepath.Join(t.TempDir(), "empty.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, pcapgo.NewWriter(f).WriteFileHeader(65536, layers.LinkTypeEthernet))
	require.NoError(t, f.Close())

	out := testutil.CaptureStdout(t, func() { require.NoError(t, runCapture(captureCmd, []string{path})) })
	assert.Contains(t, out, "No RTP streams")

	err = runCapture(captureCmd, []string{filepath.Join(t.TempDir(), "missing.pcap")})
	require.Error(t, err)
	assert.Equal(t, errors.ExitSetupError, errors.GetExitCode(err))
}

// TestRunHistory tests listing recorded results of one test and of all tests.
func TestRunHistory(t *testing.T) {
	saveFlags(t)
	historyDBFlag = filepath.Join(t.TempDir(), "history.db")
	historyLimitFlag = 10

	store, err := history.Open(historyDBFlag)
	require.NoError(t, err)
	_, err = store.Record(context.Background(), history.NewEntry("run-1", "18.20.0", suite.TestResult{
		Name:     "channels/sip/basic",
		Status:   constants.StatusFailed,
		Duration: 2 * time.Second,
		Reasons:  []string{"Test Condition lock.post failed"},
	}))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out := testutil.CaptureStdout(t, func() { require.NoError(t, runHistory(historyCmd, []string{"channels/sip/basic"})) })
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "18.20.0")
	assert.Contains(t, out, "lock.post failed")

	out = testutil.CaptureStdout(t, func() { require.NoError(t, runHistory(historyCmd, nil)) })
	assert.Contains(t, out, "TEST")
	assert.Contains(t, out, "channels/sip/basic")

	out = testutil.CaptureStdout(t, func() { require.NoError(t, runHistory(historyCmd, []string{"other"})) })
	assert.Contains(t, out, "No recorded results for other")
}

// TestRunRun tests a full run of legacy tests with every report enabled.
//
// It verifies:
//   - A passing and a failing test yield a PartialSuccessError (exit code 1)
//   - Skipped tests do not count as failures
//   - JUnit, metrics and history files are written
func TestRunRun(t *testing.T) {
	saveFlags(t)
	root := newSuite(t)
	writeLegacyTest(t, root, "good", "testinfo:\n  summary: good\n")
	writeLegacyTest(t, root, "bad", "testinfo:\n  summary: bad\n")
	testutil.WriteTest(t, root, "skipped", "testinfo:\n  summary: skipped\n  skip: not today\n")
	stubRunTest(t, map[string]int{"good": 0, "bad": 1})

	out := t.TempDir()
	runAstVersionFlag = "18.20.0"
	runDirFlag = filepath.Join(out, "run")
	runJUnitFlag = filepath.Join(out, "junit.xml")
	runMetricsFlag = filepath.Join(out, "metrics.prom")
	runHistoryFlag = filepath.Join(out, "history.db")

	var err error
	stdout := testutil.CaptureStdout(t, func() { err = runRun(runCmd, nil) })
	require.Error(t, err)
	pse, ok := errors.IsPartialSuccess(err)
	require.True(t, ok)
	assert.Equal(t, 1, pse.Succeeded)
	assert.Equal(t, 1, pse.Failed)
	assert.Equal(t, errors.ExitTestsFailed, errors.GetExitCode(err))

	assert.Contains(t, stdout, "--> Running test 'bad'")
	assert.Contains(t, stdout, "run-test exited with status 1")

	junit, readErr := os.ReadFile(runJUnitFlag)
	require.NoError(t, readErr)
	assert.Contains(t, string(junit), `name="good"`)
	assert.Contains(t, string(junit), "<skipped")

	metrics, readErr := os.ReadFile(runMetricsFlag)
	require.NoError(t, readErr)
	assert.Contains(t, string(metrics), `asttest_tests_total{result="Failed"} 1`)

	store, openErr := history.Open(runHistoryFlag)
	require.NoError(t, openErr)
	defer store.Close()
	entries, latestErr := store.Latest(context.Background(), "bad", 5)
	require.NoError(t, latestErr)
	require.Len(t, entries, 1)
	assert.Equal(t, "18.20.0", entries[0].AstVersion)
	assert.Equal(t, constants.StatusFailed, entries[0].Status)
}

// TestRunRun_StructuredOutput tests that JSON output keeps stdout parseable.
func TestRunRun_StructuredOutput(t *testing.T) {
	saveFlags(t)
	root := newSuite(t)
	writeLegacyTest(t, root, "good", "testinfo:\n  summary: good\n")
	stubRunTest(t, map[string]int{"good": 0})
	runAstVersionFlag = "18.20.0"
	runDirFlag = filepath.Join(t.TempDir(), "run")
	runOutputFlag = "json"

	var err error
	stdout, _ := testutil.CaptureOutput(t, func() { err = runRun(runCmd, nil) })
	require.NoError(t, err)

	var res output.RunResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.True(t, res.Summary.Success)
	require.Len(t, res.Tests, 1)
	assert.Equal(t, constants.StatusPassed, res.Tests[0].Status)
}

// TestRunOutcome tests the mapping of results to command errors.
func TestRunOutcome(t *testing.T) {
	assert.NoError(t, runOutcome(&suite.Result{Tests: []suite.TestResult{
		{Name: "a", Status: constants.StatusPassed, Passed: true},
		{Name: "b", Status: constants.StatusSkipped},
	}}))

	err := runOutcome(&suite.Result{Tests: []suite.TestResult{
		{Name: "a", Status: constants.StatusTimedOut, TimedOut: true},
	}})
	require.Error(t, err)
	assert.Equal(t, errors.ExitTestsFailed, errors.GetExitCode(err))
	_, partial := errors.IsPartialSuccess(err)
	assert.False(t, partial)
}
