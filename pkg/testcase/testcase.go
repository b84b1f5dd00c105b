// Package testcase drives one test through its lifecycle: start the Asterisk
// instances, evaluate the pre-test conditions, run the scenario under a
// watchdog, evaluate the post-test conditions and stop the instances.
package testcase

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/ajxudir/asttest/pkg/condition"
	"github.com/ajxudir/asttest/pkg/verbose"
	"github.com/ajxudir/asttest/pkg/warnings"
)

// DefaultTimeout is the watchdog period used when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// scenarioGrace is how long Run waits for a cancelled scenario to return
// before tearing down without it.
var scenarioGrace = 5 * time.Second

// Instance is an Asterisk server the test case starts, checks and stops.
// *asterisk.Instance satisfies it.
type Instance interface {
	condition.Instance
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Scenario is the test body run between the pre- and post-checks.
//
// The context is cancelled when the test is stopped early by a failed
// condition or the watchdog. A returned error fails the test.
type Scenario interface {
	Run(ctx context.Context, tc *TestCase) error
}

// ScenarioFunc adapts a function to Scenario.
type ScenarioFunc func(ctx context.Context, tc *TestCase) error

// Run calls f(ctx, tc).
func (f ScenarioFunc) Run(ctx context.Context, tc *TestCase) error { return f(ctx, tc) }

// Options configures a test case.
//
// Fields:
//   - Name: Test name used in logs and the result
//   - Instances: Asterisk instances, in instance number order
//   - Conditions: Resolved condition configs, pre and post mixed
//   - Registry: Builds conditions from their typename
//   - BuildOpts: Build options of the Asterisk under test; may be nil
//   - Timeout: Watchdog period; zero uses DefaultTimeout, negative disables it
//   - Observers: Called after every condition evaluation, whatever its status
type Options struct {
	Name       string
	Instances  []Instance
	Conditions []condition.Config
	Registry   *condition.Registry
	BuildOpts  condition.BuildOptionChecker
	Timeout    time.Duration
	Observers  []condition.Observer
}

// TestCase is one run of one test. It is not reusable.
type TestCase struct {
	name      string
	instances []Instance
	timeout   time.Duration

	lifecycle  *fsm.FSM
	controller *condition.Controller

	mu         sync.Mutex
	passed     bool
	timedOut   bool
	reasons    []string
	failTokens []*FailToken
	nextToken  int
	watchdog   *time.Timer
	watchGen   uint64
	cancel     context.CancelFunc

	stopRequest chan struct{}
	stopOnce    sync.Once
	stopped     chan struct{}
	stoppedOnce sync.Once
}

// New creates a test case and registers its conditions.
//
// It performs the following operations:
//   - Creates the condition controller with StopTest as its stop callback
//   - Registers every instance on the controller
//   - Builds each condition through the registry; all pre-conditions are
//     registered before any post-condition so related lookups succeed
//   - Registers the failure handler, the log observer and opts.Observers
//
// Parameters:
//   - opts: Test case options
//
// Returns:
//   - *TestCase: A test case in the created state
func New(opts Options) *TestCase {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	tc := &TestCase{
		name:        opts.Name,
		instances:   opts.Instances,
		timeout:     timeout,
		lifecycle:   newLifecycle(opts.Name),
		passed:      true,
		stopRequest: make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	tc.controller = condition.NewController(opts.BuildOpts, tc.StopTest)
	for _, inst := range opts.Instances {
		tc.controller.RegisterInstance(inst)
	}
	tc.registerConditions(opts.Registry, opts.Conditions)

	tc.controller.RegisterObserver(tc.handleConditionFailure, condition.Failed)
	tc.controller.RegisterObserver(condition.LogObserver, "")
	for _, o := range opts.Observers {
		tc.controller.RegisterObserver(o, "")
	}
	return tc
}

func (tc *TestCase) registerConditions(reg *condition.Registry, cfgs []condition.Config) {
	if len(cfgs) == 0 {
		return
	}
	if reg == nil {
		warnings.Errorf("No condition registry; %d test conditions dropped", len(cfgs))
		return
	}
	var posts []condition.Config
	for _, cfg := range cfgs {
		if !cfg.IsPre() {
			posts = append(posts, cfg)
			continue
		}
		cond, err := reg.Create(cfg)
		if err != nil {
			warnings.Errorf("%v", err)
			continue
		}
		tc.controller.RegisterPreTestCondition(cond)
	}
	for _, cfg := range posts {
		cond, err := reg.Create(cfg)
		if err != nil {
			warnings.Errorf("%v", err)
			continue
		}
		tc.controller.RegisterPostTestCondition(cond, cfg.Related)
	}
}

// handleConditionFailure is notified of every Failed condition.
func (tc *TestCase) handleConditionFailure(cond condition.Condition) {
	if cond.PassExpected() {
		warnings.Errorf("Test Condition %s failed; setting passed status to False", cond.Name())
		reason := fmt.Sprintf("Test Condition %s failed", cond.Name())
		if rs := cond.Reasons(); len(rs) > 0 {
			reason += ": " + strings.Join(rs, "; ")
		}
		tc.Fail(reason)
		return
	}
	verbose.Infof("Test Condition %s failed but expected failure was set; test status not modified", cond.Name())
}

// Name returns the test name.
func (tc *TestCase) Name() string { return tc.name }

// State returns the current lifecycle state.
func (tc *TestCase) State() string { return tc.lifecycle.Current() }

// Instances returns the test's Asterisk instances.
func (tc *TestCase) Instances() []Instance {
	return append([]Instance(nil), tc.instances...)
}

// Instance returns instance n, counting from 1.
func (tc *TestCase) Instance(n int) (Instance, error) {
	if n < 1 || n > len(tc.instances) {
		return nil, fmt.Errorf("no Asterisk instance %d (have %d)", n, len(tc.instances))
	}
	return tc.instances[n-1], nil
}

// Controller returns the condition controller.
func (tc *TestCase) Controller() *condition.Controller { return tc.controller }

// Passed reports the current verdict.
func (tc *TestCase) Passed() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.passed
}

// Fail marks the test failed and records reason when non-empty.
func (tc *TestCase) Fail(reason string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.passed = false
	if reason != "" {
		tc.reasons = append(tc.reasons, reason)
	}
}

// StopTest requests the test to stop. The scenario context is cancelled and
// Run moves on to the post-checks. Only the first call has any effect.
func (tc *TestCase) StopTest() {
	tc.stopOnce.Do(func() {
		verbose.Infof("Stopping test %s", tc.name)
		tc.mu.Lock()
		cancel := tc.cancel
		tc.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		close(tc.stopRequest)
	})
}

// stopRequested reports whether StopTest has been called.
func (tc *TestCase) stopRequested() bool {
	select {
	case <-tc.stopRequest:
		return true
	default:
		return false
	}
}

// Stopped is closed once the test has fully stopped.
func (tc *TestCase) Stopped() <-chan struct{} { return tc.stopped }

// ResetTimeout re-arms the watchdog for a full period. It has no effect
// outside the executing state.
func (tc *TestCase) ResetTimeout() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.watchdog != nil {
		tc.watchdog.Reset(tc.timeout)
	}
}

func (tc *TestCase) armWatchdog() {
	if tc.timeout < 0 {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.watchGen++
	gen := tc.watchGen
	tc.watchdog = time.AfterFunc(tc.timeout, func() { tc.onTimeout(gen) })
}

func (tc *TestCase) disarmWatchdog() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.watchdog != nil {
		tc.watchdog.Stop()
		tc.watchdog = nil
	}
	tc.watchGen++
}

// onTimeout handles a watchdog expiry armed as generation gen. Stop cannot
// recall a callback that is already running, so an expiry from a disarmed
// generation is dropped here.
func (tc *TestCase) onTimeout(gen uint64) {
	tc.mu.Lock()
	if gen != tc.watchGen || tc.watchdog == nil {
		tc.mu.Unlock()
		verbose.Debugf("Test %s: stale watchdog expiry ignored", tc.name)
		return
	}
	if tc.stopRequested() {
		tc.mu.Unlock()
		verbose.Infof("Reactor timeout: '%s' (ignored; already stopping)", tc.timeout)
		return
	}
	tc.timedOut = true
	tc.mu.Unlock()

	warnings.Warnf("Reactor timeout: '%s'\n", tc.timeout)
	tc.Fail(fmt.Sprintf("Reactor timeout: '%s'", tc.timeout))
	tc.StopTest()
}

// event fires a lifecycle event. Transition errors are programming errors
// and are only logged.
func (tc *TestCase) event(ctx context.Context, name string) {
	if err := tc.lifecycle.Event(ctx, name); err != nil {
		verbose.Debugf("Test %s: event %s: %v", tc.name, name, err)
	}
}

// Run executes the test and returns its result.
//
// It performs the following operations:
//   - Step 1: Start every instance concurrently; any failure fails the test
//     and jumps to step 6
//   - Step 2: Evaluate the pre-test conditions
//   - Step 3: Unless a stop was requested, arm the watchdog and run the scenario
//   - Step 4: Evaluate the post-test conditions
//   - Step 5: Fail the test for every outstanding fail token
//   - Step 6: Stop every instance and release Stopped
//
// Parameters:
//   - ctx: Context for the whole run
//   - scenario: Test body; nil runs no scenario
//
// Returns:
//   - *Result: The verdict with condition details
func (tc *TestCase) Run(ctx context.Context, scenario Scenario) *Result {
	started := time.Now()
	result := &Result{Name: tc.name, StartedAt: started}

	tc.event(ctx, eventStart)
	if err := tc.startInstances(ctx); err != nil {
		warnings.Errorf("%v", err)
		tc.Fail(err.Error())
	} else {
		tc.event(ctx, eventStarted)
		tc.event(ctx, eventPreChecks)
		tc.controller.EvaluatePreChecks(ctx)

		if !tc.stopRequested() {
			tc.event(ctx, eventExecute)
			result.Err = tc.execute(ctx, scenario)
		}

		tc.event(ctx, eventPostChecks)
		tc.controller.EvaluatePostChecks(ctx)
		tc.checkFailTokens()
	}

	tc.event(ctx, eventStop)
	tc.stopInstances(ctx)
	tc.event(ctx, eventStopped)
	tc.stoppedOnce.Do(func() { close(tc.stopped) })

	tc.mu.Lock()
	result.Passed = tc.passed
	result.TimedOut = tc.timedOut
	result.Reasons = append([]string(nil), tc.reasons...)
	tc.mu.Unlock()
	for _, c := range tc.controller.PreConditions() {
		result.Conditions = append(result.Conditions, conditionResult(c))
	}
	for _, c := range tc.controller.PostConditions() {
		result.Conditions = append(result.Conditions, conditionResult(c))
	}
	result.Duration = time.Since(started)
	verbose.Infof("Test %s finished: passed=%t in %s", tc.name, result.Passed, result.Duration.Round(time.Millisecond))
	return result
}

// execute runs the scenario under the watchdog until it returns or the test
// is stopped.
func (tc *TestCase) execute(ctx context.Context, scenario Scenario) error {
	if scenario == nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	tc.mu.Lock()
	tc.cancel = cancel
	tc.mu.Unlock()

	tc.armWatchdog()
	defer tc.disarmWatchdog()

	done := make(chan error, 1)
	go func() { done <- tc.runScenario(runCtx, scenario) }()

	var err error
	select {
	case err = <-done:
	case <-tc.stopRequest:
		cancel()
		select {
		case err = <-done:
		case <-time.After(scenarioGrace):
			warnings.Warnf("Scenario of %s did not return after stop; continuing teardown\n", tc.name)
		}
	}
	if err == nil {
		return nil
	}
	if tc.stopRequested() && errors.Is(err, context.Canceled) {
		verbose.Debugf("Scenario of %s cancelled by stop", tc.name)
		return nil
	}
	warnings.Errorf("Scenario of %s failed: %v", tc.name, err)
	tc.Fail(err.Error())
	return err
}

// runScenario calls the scenario, turning a panic into an error.
func (tc *TestCase) runScenario(ctx context.Context, scenario Scenario) (err error) {
	defer func() {
		if r := recover(); r != nil {
			warnings.Errorf("Panic in scenario of %s: %v\n%s", tc.name, r, debug.Stack())
			err = fmt.Errorf("scenario panic: %v", r)
		}
	}()
	return scenario.Run(ctx, tc)
}

// startInstances starts every instance concurrently and waits for all.
func (tc *TestCase) startInstances(ctx context.Context) error {
	if len(tc.instances) == 0 {
		return nil
	}
	errs := make([]error, len(tc.instances))
	var wg sync.WaitGroup
	for i, inst := range tc.instances {
		wg.Add(1)
		go func(i int, inst Instance) {
			defer wg.Done()
			verbose.Infof("Starting Asterisk instance %d", i+1)
			errs[i] = inst.Start(ctx)
		}(i, inst)
	}
	wg.Wait()

	var msgs []string
	for i, err := range errs {
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("instance %d: %v", i+1, err))
		}
	}
	if len(msgs) > 0 {
		return fmt.Errorf("failed to start Asterisk: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// stopInstances stops every instance concurrently. Stop errors are logged
// and never change the verdict.
func (tc *TestCase) stopInstances(ctx context.Context) {
	var wg sync.WaitGroup
	for i, inst := range tc.instances {
		wg.Add(1)
		go func(i int, inst Instance) {
			defer wg.Done()
			verbose.Infof("Stopping Asterisk instance %d", i+1)
			if err := inst.Stop(context.WithoutCancel(ctx)); err != nil {
				warnings.Warnf("%v\n", err)
			}
		}(i, inst)
	}
	wg.Wait()
}
