package condition

import (
	"context"
	"fmt"

	"github.com/ajxudir/asttest/pkg/verbose"
	"github.com/ajxudir/asttest/pkg/warnings"
)

// BuildOptionChecker answers build-option requirements.
// *buildoptions.Cache satisfies it.
type BuildOptionChecker interface {
	Check(name, expected string) bool
}

// Observer is notified after a condition has been evaluated.
type Observer func(c Condition)

type observer struct {
	fn     Observer
	filter Status
}

type entry struct {
	cond    Condition
	related Condition
}

// Controller evaluates registered pre- and post-conditions in order.
//
// Instances, conditions and observers are registered during test setup.
// The evaluation methods must not run concurrently with registration.
type Controller struct {
	buildOpts BuildOptionChecker
	stopTest  func()

	instances []Instance
	pre       []entry
	post      []entry
	observers []observer
}

// NewController creates a controller.
//
// Parameters:
//   - opts: Build-option source; nil treats every option as absent
//   - stopTest: Called whenever a condition fails; must be idempotent; may be nil
//
// Returns:
//   - *Controller: An empty controller
func NewController(opts BuildOptionChecker, stopTest func()) *Controller {
	return &Controller{buildOpts: opts, stopTest: stopTest}
}

// RegisterInstance adds an instance that every condition will check.
func (c *Controller) RegisterInstance(inst Instance) {
	c.instances = append(c.instances, inst)
}

// Instances returns the registered instances.
func (c *Controller) Instances() []Instance {
	return append([]Instance(nil), c.instances...)
}

// RegisterObserver adds fn, called after each evaluation whose resulting
// status equals filter. An empty filter matches every status.
func (c *Controller) RegisterObserver(fn Observer, filter Status) {
	c.observers = append(c.observers, observer{fn: fn, filter: filter})
}

// RegisterPreTestCondition appends a pre-condition.
func (c *Controller) RegisterPreTestCondition(cond Condition) {
	verbose.Infof("Registered pre test condition %s", cond.Name())
	c.pre = append(c.pre, entry{cond: cond})
}

// RegisterPostTestCondition appends a post-condition.
//
// When related is non-empty it must name an already registered
// pre-condition; otherwise the post-condition is dropped with an error log.
//
// Returns:
//   - bool: false when the post-condition was dropped
func (c *Controller) RegisterPostTestCondition(cond Condition, related string) bool {
	var match Condition
	if related != "" {
		for _, e := range c.pre {
			if e.cond.Name() == related {
				match = e.cond
				break
			}
		}
		if match == nil {
			warnings.Errorf("No pre condition found matching %s", related)
			return false
		}
	}
	verbose.Infof("Registered post test condition %s", cond.Name())
	c.post = append(c.post, entry{cond: cond, related: match})
	return true
}

// PreConditions returns the registered pre-conditions in order.
func (c *Controller) PreConditions() []Condition {
	return conditions(c.pre)
}

// PostConditions returns the registered post-conditions in order.
func (c *Controller) PostConditions() []Condition {
	return conditions(c.post)
}

func conditions(entries []entry) []Condition {
	out := make([]Condition, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.cond)
	}
	return out
}

// EvaluatePreChecks evaluates every pre-condition and returns once all have
// finished.
func (c *Controller) EvaluatePreChecks(ctx context.Context) {
	if len(c.pre) == 0 {
		return
	}
	verbose.Debugf("Evaluating pre checks")
	c.evaluate(ctx, c.pre)
}

// EvaluatePostChecks evaluates every post-condition and returns once all
// have finished.
func (c *Controller) EvaluatePostChecks(ctx context.Context) {
	if len(c.post) == 0 {
		return
	}
	verbose.Debugf("Evaluating post checks")
	c.evaluate(ctx, c.post)
}

// evaluate runs the entries strictly in order.
//
// It performs the following operations:
//   - Step 1: Skip conditions whose build options are unmet or that are disabled
//   - Step 2: Register every instance on the condition
//   - Step 3: Evaluate, failing the condition with the error text on error
//   - Step 4: Notify observers and stop the test on Failed
func (c *Controller) evaluate(ctx context.Context, entries []entry) {
	for _, e := range entries {
		cond := e.cond
		if !c.buildOptionsMet(cond) {
			continue
		}
		for _, inst := range c.instances {
			cond.RegisterInstance(inst)
		}
		if !cond.Enabled() {
			verbose.Debugf("Condition %s disabled, skipping", cond.Name())
			continue
		}

		verbose.Debugf("Evaluating %s", cond.Name())
		if err := c.evaluateOne(ctx, cond, e.related); err != nil {
			warnings.Warnf("Failed to evaluate condition check %s: %v\n", cond.Name(), err)
			cond.FailCheck(err.Error())
		}
		verbose.ConditionResult(cond.Name(), string(cond.Status()), cond.Reasons())
		c.notify(cond)
	}
}

func (c *Controller) evaluateOne(ctx context.Context, cond, related Condition) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in condition %s: %v", cond.Name(), r)
		}
	}()
	return cond.Evaluate(ctx, related)
}

func (c *Controller) buildOptionsMet(cond Condition) bool {
	met := true
	for _, opt := range cond.BuildOptions() {
		ok := false
		if c.buildOpts != nil {
			ok = c.buildOpts.Check(opt.Name, opt.Expected)
		} else {
			ok = opt.Expected == "0"
		}
		if !ok {
			verbose.Debugf("Build option %s not set to %s; test condition [%s] will not be checked",
				opt.Name, opt.Expected, cond.Name())
			met = false
		}
	}
	return met
}

func (c *Controller) notify(cond Condition) {
	status := cond.Status()
	for _, o := range c.observers {
		if o.filter == "" || o.filter == status {
			o.fn(cond)
		}
	}
	if status == Failed && c.stopTest != nil {
		c.stopTest()
	}
}

// LogObserver logs Failed and Inconclusive verdicts. A failure of a
// condition that was expected to pass is an error; anything else is a
// warning.
func LogObserver(cond Condition) {
	switch cond.Status() {
	case Inconclusive:
		warnings.Warnf("%s\n", cond)
	case Failed:
		if cond.PassExpected() {
			warnings.Errorf("%s", cond)
		} else {
			warnings.Warnf("%s\n", cond)
		}
	}
}
