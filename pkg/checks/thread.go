package checks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ajxudir/asttest/pkg/condition"
	"github.com/ajxudir/asttest/pkg/verbose"
)

// Thread is one entry of "core show threads".
type Thread struct {
	ID   string
	Name string
}

// ParseThreads parses "core show threads" output. Each line starts with the
// pthread id, followed by the Asterisk thread id and the thread name.
func ParseThreads(output string, ignored []string) []Thread {
	var threads []Thread
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "threads listed") || strings.Contains(line, "Asterisk ending") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		t := Thread{ID: fields[1], Name: fields[2]}
		if containsString(ignored, t.Name) {
			continue
		}
		verbose.Tracef("Tracking thread %s[%s]", t.Name, t.ID)
		threads = append(threads, t)
	}
	return threads
}

func threadIn(t Thread, list []Thread) bool {
	// netconsole threads come and go with remote consoles, including ours.
	if t.Name == "netconsole" {
		return true
	}
	for _, o := range list {
		if o == t {
			return true
		}
	}
	return false
}

type threads struct {
	ignored []string

	mu   sync.Mutex
	snap snapshot[[]Thread]
}

func newThreads(base *condition.Base, cfg condition.Config) threads {
	// core show threads is compiled out of LOW_MEMORY builds.
	base.AddBuildOption("LOW_MEMORY", "0")
	return threads{ignored: optionList(cfg, "ignoredThreads", "ignored-threads"), snap: newSnapshot[[]Thread]()}
}

func (t *threads) collect(ctx context.Context, base *condition.Base, inst condition.Instance) error {
	res, ok, err := base.Query(ctx, inst, "core show threads")
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !ok {
		t.snap.noData[inst.Host()] = true
		return nil
	}
	t.snap.data[inst.Host()] = ParseThreads(res.Output, t.ignored)
	return nil
}

// Threads returns the threads captured per host.
func (t *threads) Threads() map[string][]Thread {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string][]Thread, len(t.snap.data))
	for k, v := range t.snap.data {
		if len(v) > 0 {
			out[k] = append([]Thread(nil), v...)
		}
	}
	return out
}

// answered returns how many hosts returned data.
func (t *threads) answered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.snap.data)
}

// ThreadSnapshot is implemented by checks whose captured threads a post
// check can compare against.
type ThreadSnapshot interface {
	Threads() map[string][]Thread
}

// ThreadPre records the threads running before the test.
type ThreadPre struct {
	*condition.Base
	threads
}

// NewThreadPre creates the thread.pre condition.
func NewThreadPre(cfg condition.Config) condition.Condition {
	c := &ThreadPre{Base: condition.NewBase(cfg)}
	c.threads = newThreads(c.Base, cfg)
	return c
}

// Evaluate implements condition.Condition.
func (c *ThreadPre) Evaluate(ctx context.Context, _ condition.Condition) error {
	err := c.ForEachInstance(ctx, func(ctx context.Context, inst condition.Instance) error {
		return c.collect(ctx, c.Base, inst)
	})
	if c.answered() > 0 && len(c.Threads()) == 0 {
		c.FailCheck("No threads found")
	}
	c.PassCheck()
	return err
}

// ThreadPost compares the threads running after the test against the
// related pre check, in both directions.
type ThreadPost struct {
	*condition.Base
	threads
}

// NewThreadPost creates the thread.post condition.
func NewThreadPost(cfg condition.Config) condition.Condition {
	c := &ThreadPost{Base: condition.NewBase(cfg)}
	c.threads = newThreads(c.Base, cfg)
	return c
}

// Evaluate implements condition.Condition.
func (c *ThreadPost) Evaluate(ctx context.Context, related condition.Condition) error {
	pre, ok := related.(ThreadSnapshot)
	if !ok {
		c.FailCheck("No pre-test condition provided")
		return nil
	}

	err := c.ForEachInstance(ctx, func(ctx context.Context, inst condition.Instance) error {
		return c.collect(ctx, c.Base, inst)
	})

	before := pre.Threads()
	after := c.Threads()
	for _, host := range sortedKeys(after) {
		preThreads, found := before[host]
		if !found {
			c.FailCheck(fmt.Sprintf("Unable to find Asterisk instance %s in pre-test condition check", host))
			continue
		}
		for _, t := range after[host] {
			if !threadIn(t, preThreads) {
				c.FailCheck(fmt.Sprintf("Failed to find thread %s[%s] on Asterisk instance %s in pre-test check", t.Name, t.ID, host))
			}
		}
		for _, t := range preThreads {
			if !threadIn(t, after[host]) {
				c.FailCheck(fmt.Sprintf("Failed to find thread %s[%s] on Asterisk instance %s in post-test check", t.Name, t.ID, host))
			}
		}
	}
	c.PassCheck()
	return err
}
