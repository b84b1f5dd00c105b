package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ajxudir/asttest/pkg/condition"
	"github.com/ajxudir/asttest/pkg/constants"
	"github.com/ajxudir/asttest/pkg/suite"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdict struct {
	*condition.Base
}

func (verdict) Evaluate(context.Context, condition.Condition) error { return nil }

func newVerdict(typename, role string, fail bool) condition.Condition {
	v := verdict{condition.NewBase(condition.Config{Name: typename, Typename: typename, Role: role, Enabled: true})}
	if fail {
		v.FailCheck("leaked")
	} else {
		v.PassCheck()
	}
	return v
}

// TestObserveCondition tests that evaluations are labelled by typename, phase and status.
func TestObserveCondition(t *testing.T) {
	c := NewCollector()
	c.ObserveCondition(newVerdict("thread.pre", constants.RolePre, false))
	c.ObserveCondition(newVerdict("thread.post", constants.RolePost, true))
	c.ObserveCondition(newVerdict("thread.post", constants.RolePost, true))

	assert.Equal(t, 1.0, promtest.ToFloat64(c.evaluations.WithLabelValues("thread.pre", "pre", "Passed")))
	assert.Equal(t, 2.0, promtest.ToFloat64(c.evaluations.WithLabelValues("thread.post", "post", "Failed")))
	assert.Equal(t, 2, promtest.CollectAndCount(c.evaluations))
}

// TestObserveTest tests result counting and that only executed tests feed the histogram.
func TestObserveTest(t *testing.T) {
	c := NewCollector()
	c.ObserveTest(suite.TestResult{Name: "a", Status: constants.StatusPassed, Passed: true, Duration: 2 * time.Second})
	c.ObserveTest(suite.TestResult{Name: "b", Status: constants.StatusFailed, Duration: 40 * time.Second})
	c.ObserveTest(suite.TestResult{Name: "c", Status: constants.StatusSkipped})

	assert.Equal(t, 1.0, promtest.ToFloat64(c.tests.WithLabelValues(constants.StatusPassed)))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.tests.WithLabelValues(constants.StatusSkipped)))
	assert.Equal(t, 3, promtest.CollectAndCount(c.tests))

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "asttest_test_duration_seconds" {
			assert.Equal(t, uint64(2), mf.GetMetric()[0].GetHistogram().GetSampleCount())
			assert.InDelta(t, 42.0, mf.GetMetric()[0].GetHistogram().GetSampleSum(), 0.001)
		}
	}
}

// TestWriteFile tests the text exposition output.
func TestWriteFile(t *testing.T) {
	c := NewCollector()
	c.ObserveCondition(newVerdict("channel.post", constants.RolePost, false))
	c.ObserveTest(suite.TestResult{Name: "a", Status: constants.StatusTimedOut, TimedOut: true, Duration: time.Second})

	path := filepath.Join(t.TempDir(), "asttest.prom")
	require.NoError(t, c.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `asttest_condition_evaluations_total{phase="post",status="Passed",typename="channel.post"} 1`)
	assert.Contains(t, out, `asttest_tests_total{result="TimedOut"} 1`)
	assert.Contains(t, out, "asttest_test_duration_seconds_count 1")
}

// TestWriteFile_BadPath tests that an unwritable path is reported.
func TestWriteFile_BadPath(t *testing.T) {
	err := NewCollector().WriteFile(filepath.Join(t.TempDir(), "missing", "x.prom"))
	assert.ErrorContains(t, err, "failed to write metrics")
}
