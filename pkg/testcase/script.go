package testcase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ajxudir/asttest/pkg/config"
	"github.com/ajxudir/asttest/pkg/verbose"
)

// CLIScript is the built-in cli-script scenario: a list of CLI commands,
// each optionally checked for an expected substring.
type CLIScript struct {
	Steps []config.ScriptStep
}

// NewCLIScript returns the scenario described by obj.
func NewCLIScript(obj *config.TestObject) *CLIScript {
	if obj == nil {
		return &CLIScript{}
	}
	return &CLIScript{Steps: obj.Steps}
}

// Run executes the steps in order.
//
// It performs the following operations:
//   - Waits for the step delay, if any
//   - Sends the command to the step's instance (1 when unset)
//   - Holds a fail token while a step with an expectation is unresolved, so
//     a step whose output lacks the expected text fails the test
//   - Resets the watchdog after every step
//
// Parameters:
//   - ctx: Cancelled when the test is stopped
//   - tc: The running test case
//
// Returns:
//   - error: A CLI transport error or cancellation
func (s *CLIScript) Run(ctx context.Context, tc *TestCase) error {
	for i, step := range s.Steps {
		if d := step.DelayDuration(); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		n := step.Instance
		if n == 0 {
			n = 1
		}
		inst, err := tc.Instance(n)
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}

		var tok *FailToken
		if step.Expect != "" {
			tok = tc.CreateFailToken(fmt.Sprintf("step %d: '%s' on %s did not print %q", i+1, step.Command, inst.Host(), step.Expect))
		}
		res, err := inst.CLIExec(ctx, step.Command)
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if tok != nil && strings.Contains(res.Output, step.Expect) {
			tc.RemoveFailToken(tok)
		}
		verbose.Debugf("Step %d on %s done (exit %d)", i+1, inst.Host(), res.ExitCode)
		tc.ResetTimeout()
	}
	return nil
}
