package testcase

import (
	"time"

	"github.com/ajxudir/asttest/pkg/condition"
	"github.com/ajxudir/asttest/pkg/constants"
)

// ConditionResult is the verdict of one evaluated condition.
type ConditionResult struct {
	Name         string
	Typename     string
	Role         string
	Status       condition.Status
	PassExpected bool
	Reasons      []string
}

// Result is the outcome of one test case run.
//
// Fields:
//   - Name: Test name
//   - Passed: Final verdict
//   - TimedOut: The watchdog ended the test
//   - StartedAt: When Run was entered
//   - Duration: Wall time of Run
//   - Reasons: Why the test failed, in the order they were recorded
//   - Conditions: Every condition that reached a verdict
//   - Err: Error returned by the scenario, if any
type Result struct {
	Name       string
	Passed     bool
	TimedOut   bool
	StartedAt  time.Time
	Duration   time.Duration
	Reasons    []string
	Conditions []ConditionResult
	Err        error
}

// Status maps the verdict onto a report status.
func (r *Result) Status() string {
	switch {
	case r.TimedOut:
		return constants.StatusTimedOut
	case r.Passed:
		return constants.StatusPassed
	default:
		return constants.StatusFailed
	}
}

// FailedConditions returns the conditions that ended Failed.
func (r *Result) FailedConditions() []ConditionResult {
	var out []ConditionResult
	for _, c := range r.Conditions {
		if c.Status == condition.Failed {
			out = append(out, c)
		}
	}
	return out
}

func conditionResult(c condition.Condition) ConditionResult {
	cfg := c.Config()
	return ConditionResult{
		Name:         cfg.Name,
		Typename:     c.Name(),
		Role:         cfg.Role,
		Status:       c.Status(),
		PassExpected: c.PassExpected(),
		Reasons:      c.Reasons(),
	}
}
