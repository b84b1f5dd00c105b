package checks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ajxudir/asttest/pkg/condition"
)

// DefaultIgnoredTaskProcessors are name prefixes of task processors that
// are created on demand and legitimately outlive a test.
var DefaultIgnoredTaskProcessors = []string{"pjsip/outsess/"}

// ParseTaskProcessors returns the processor names in "core show
// taskprocessors" output. Data rows have exactly six fields.
func ParseTaskProcessors(output string) []string {
	var names []string
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 6 {
			names = append(names, fields[0])
		}
	}
	return names
}

// taskProcessors captures processor names per host.
type taskProcessors struct {
	ignored []string

	mu   sync.Mutex
	snap snapshot[[]string]
}

func newTaskProcessors(cfg condition.Config) taskProcessors {
	ignored := append([]string(nil), DefaultIgnoredTaskProcessors...)
	ignored = append(ignored, optionList(cfg, "ignoredTaskprocessors", "ignored-taskprocessors")...)
	return taskProcessors{ignored: ignored, snap: newSnapshot[[]string]()}
}

func (t *taskProcessors) collect(ctx context.Context, base *condition.Base, inst condition.Instance) error {
	res, ok, err := base.Query(ctx, inst, "core show taskprocessors")
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !ok {
		t.snap.noData[inst.Host()] = true
		return nil
	}
	var names []string
	for _, name := range ParseTaskProcessors(res.Output) {
		if !hasAnyPrefix(name, t.ignored) {
			names = append(names, name)
		}
	}
	t.snap.data[inst.Host()] = names
	return nil
}

// TaskProcessors returns the processors captured for each host.
func (t *taskProcessors) TaskProcessors() map[string][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string][]string, len(t.snap.data))
	for k, v := range t.snap.data {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func (t *taskProcessors) hadNoData(host string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap.noData[host]
}

// TaskProcessorSnapshot is implemented by checks whose captured task
// processors a post check can compare against.
type TaskProcessorSnapshot interface {
	TaskProcessors() map[string][]string
}

// TaskProcessorPre records the task processors present before the test.
// It always passes.
type TaskProcessorPre struct {
	*condition.Base
	taskProcessors
}

// NewTaskProcessorPre creates the taskprocessor.pre condition.
func NewTaskProcessorPre(cfg condition.Config) condition.Condition {
	return &TaskProcessorPre{Base: condition.NewBase(cfg), taskProcessors: newTaskProcessors(cfg)}
}

// Evaluate implements condition.Condition.
func (c *TaskProcessorPre) Evaluate(ctx context.Context, _ condition.Condition) error {
	err := c.ForEachInstance(ctx, func(ctx context.Context, inst condition.Instance) error {
		return c.collect(ctx, c.Base, inst)
	})
	c.PassCheck()
	return err
}

// TaskProcessorPost fails when a task processor exists after the test that
// did not exist before it. Processors that went away are fine.
type TaskProcessorPost struct {
	*condition.Base
	taskProcessors
}

// NewTaskProcessorPost creates the taskprocessor.post condition.
func NewTaskProcessorPost(cfg condition.Config) condition.Condition {
	return &TaskProcessorPost{Base: condition.NewBase(cfg), taskProcessors: newTaskProcessors(cfg)}
}

// Evaluate implements condition.Condition.
func (c *TaskProcessorPost) Evaluate(ctx context.Context, related condition.Condition) error {
	pre, ok := related.(TaskProcessorSnapshot)
	if related == nil || !ok {
		c.FailCheck("No pre-test condition object provided")
		return nil
	}

	err := c.ForEachInstance(ctx, func(ctx context.Context, inst condition.Instance) error {
		return c.collect(ctx, c.Base, inst)
	})

	before := pre.TaskProcessors()
	after := c.TaskProcessors()
	for _, host := range sortedKeys(before) {
		current, found := after[host]
		if !found {
			if !c.hadNoData(host) {
				c.FailCheck(fmt.Sprintf("Asterisk host in pre-test check [%s] not found in post-test check", host))
			}
			continue
		}
		for _, name := range current {
			if !containsString(before[host], name) {
				c.FailCheck(fmt.Sprintf("Failed to find task processor %s in pre-test check", name))
			}
		}
	}
	c.PassCheck()
	return err
}
