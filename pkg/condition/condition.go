package condition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ajxudir/asttest/pkg/asterisk"
	"github.com/ajxudir/asttest/pkg/constants"
	"github.com/ajxudir/asttest/pkg/verbose"
	"github.com/ajxudir/asttest/pkg/warnings"
)

// Status is the verdict of a condition.
type Status string

// Condition statuses.
const (
	Inconclusive Status = constants.ConditionInconclusive
	Passed       Status = constants.ConditionPassed
	Failed       Status = constants.ConditionFailed
)

// Instance is the view of an Asterisk server a condition needs.
// *asterisk.Instance satisfies it.
type Instance interface {
	Host() string
	CLIExec(ctx context.Context, command string) (asterisk.Result, error)
}

var _ Instance = (*asterisk.Instance)(nil)

// BuildOption is a compile-time requirement of a condition.
type BuildOption struct {
	Name     string
	Expected string
}

// Condition is a pre- or post-test check.
//
// Evaluate must call PassCheck and/or FailCheck for every registered
// instance it judges. A post-condition receives its already-evaluated
// related pre-condition and must only read from it.
type Condition interface {
	Name() string
	Config() Config
	Enabled() bool
	PassExpected() bool
	Status() Status
	Reasons() []string
	BuildOptions() []BuildOption
	RegisterInstance(inst Instance)
	Instances() []Instance
	PassCheck()
	FailCheck(reason string)
	Evaluate(ctx context.Context, related Condition) error
	String() string
}

// Base implements the bookkeeping shared by every condition.
// Concrete conditions embed *Base and implement Evaluate.
type Base struct {
	cfg Config

	mu           sync.Mutex
	status       Status
	reasons      []string
	instances    []Instance
	buildOptions []BuildOption
}

// NewBase creates the shared state for a condition built from cfg.
func NewBase(cfg Config) *Base {
	return &Base{cfg: cfg.clone(), status: Inconclusive}
}

// Name returns the typename of the condition.
func (b *Base) Name() string { return b.cfg.Typename }

// Config returns the configuration the condition was built from.
func (b *Base) Config() Config { return b.cfg }

// Enabled reports whether the condition should be evaluated.
func (b *Base) Enabled() bool { return b.cfg.Enabled }

// PassExpected reports whether the test expects this condition to pass.
func (b *Base) PassExpected() bool { return b.cfg.PassExpected }

// Status returns the current verdict.
func (b *Base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Reasons returns the recorded failure reasons in order.
func (b *Base) Reasons() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.reasons...)
}

// AddBuildOption declares that the condition only runs when the build
// option name has the expected value. An empty expected value means "1".
func (b *Base) AddBuildOption(name, expected string) {
	if expected == "" {
		expected = "1"
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buildOptions = append(b.buildOptions, BuildOption{Name: name, Expected: expected})
}

// BuildOptions returns the declared build-option requirements.
func (b *Base) BuildOptions() []BuildOption {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]BuildOption(nil), b.buildOptions...)
}

// RegisterInstance adds an instance to be checked. Registering the same
// instance twice has no effect.
func (b *Base) RegisterInstance(inst Instance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.instances {
		if existing == inst {
			return
		}
	}
	b.instances = append(b.instances, inst)
}

// Instances returns the registered instances in registration order.
func (b *Base) Instances() []Instance {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Instance(nil), b.instances...)
}

// PassCheck moves an Inconclusive condition to Passed. It never overrides
// Failed.
func (b *Base) PassCheck() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == Inconclusive {
		b.status = Passed
	}
}

// FailCheck marks the condition Failed and records reason when non-empty.
func (b *Base) FailCheck(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = Failed
	if reason != "" {
		b.reasons = append(b.reasons, reason)
	}
}

// String renders the verdict the way it is logged.
func (b *Base) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Test Condition [%s]: [%s]", b.cfg.Typename, b.status)
	if b.status == Failed {
		for _, r := range b.reasons {
			sb.WriteString("\n\tReason: ")
			sb.WriteString(r)
		}
	}
	return sb.String()
}

// ForEachInstance runs fn for every registered instance concurrently and
// waits for all of them. Errors are joined in instance order.
func (b *Base) ForEachInstance(ctx context.Context, fn func(ctx context.Context, inst Instance) error) error {
	instances := b.Instances()
	errs := make([]error, len(instances))

	var wg sync.WaitGroup
	for idx, inst := range instances {
		wg.Add(1)
		go func(idx int, inst Instance) {
			defer wg.Done()
			errs[idx] = fn(ctx, inst)
		}(idx, inst)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Query runs command on inst.
//
// Returns:
//   - asterisk.Result: The command result
//   - bool: true when the result carries usable data; no-data results are
//     reported as warnings and must not fail the condition
//   - error: When the remote console could not be run at all
func (b *Base) Query(ctx context.Context, inst Instance, command string) (asterisk.Result, bool, error) {
	res, err := inst.CLIExec(ctx, command)
	if err != nil {
		return res, false, err
	}
	if res.NoData() {
		warnings.Warnf("%s: no data from Asterisk %s for %q\n", b.cfg.Typename, inst.Host(), command)
		return res, false, nil
	}
	verbose.Tracef("%s: %s returned %d bytes", b.cfg.Typename, command, len(res.Output))
	return res, true, nil
}
