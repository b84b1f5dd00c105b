package checks

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/ajxudir/asttest/pkg/condition"
	"github.com/ajxudir/asttest/pkg/verbose"
	"github.com/ajxudir/asttest/pkg/warnings"
)

const (
	threadMarker   = "=== Thread ID:"
	lockMarker     = "=== --->"
	lockedHere     = "=== --- ---> Locked Here:"
	threadBoundary = "=== -------"
)

var (
	threadHeaderRe = regexp.MustCompile(`^=== Thread ID:\s*(\S+)(?:\s+LWP:(\d+))?\s*\((.*)\)\s*$`)
	threadOriginRe = regexp.MustCompile(`^(\S+)\s+started at \[\s*(\d+)\]\s+(\S+)\s+(\S+?)(?:\(\))?$`)
	lockLineRe     = regexp.MustCompile(`^(Waiting for )?Lock #(\d+) \(([^)]*)\):\s+(\S+)\s+(\d+)\s+(\S+)\s+(\S+)\s+(\S+)\s+\((\d+)\)`)
	lockedHereRe   = regexp.MustCompile(`^=== --- ---> Locked Here:\s+(\S+)\s+line\s+(\d+)\s+\((\S+?)\)`)
)

// Lock is one lock held or awaited by a thread.
type Lock struct {
	ID         int
	File       string
	Type       string
	Line       int
	Func       string
	Name       string
	Addr       string
	Count      int
	Held       bool
	Backtrace  []string
	LockedFile string
	LockedLine int
	LockedFunc string
}

func (l Lock) String() string {
	state := "Held"
	if !l.Held {
		state = "Waiting for"
	}
	return fmt.Sprintf("%s %s %s(%d): %s at %s::%s[%d] (locked %d times)",
		state, l.Type, l.Name, l.ID, l.Addr, l.File, l.Func, l.Line, l.Count)
}

// LockSequence is the set of locks reported for one thread.
type LockSequence struct {
	ThreadID   string
	LWP        int
	ThreadName string
	File       string
	Func       string
	Line       int
	Locks      []Lock
}

// Waiting returns the locks the thread is blocked on.
func (s LockSequence) Waiting() []Lock {
	var out []Lock
	for _, l := range s.Locks {
		if !l.Held {
			out = append(out, l)
		}
	}
	return out
}

// ParseLocks parses "core show locks" output into per-thread sequences.
//
// Sections that cannot be parsed are returned as errors alongside whatever
// could be parsed. A lock line that mentions "Waiting for" but cannot be
// parsed is still recorded as a waiting lock.
func ParseLocks(output string) ([]LockSequence, []error) {
	idx := strings.Index(output, threadMarker)
	if idx < 0 {
		return nil, nil
	}

	var seqs []LockSequence
	var errs []error
	for _, section := range splitThreadSections(output[idx:]) {
		if !strings.Contains(section, "Thread ID") {
			continue
		}
		seq, err := parseLockSequence(section)
		if err != nil {
			errs = append(errs, fmt.Errorf("unable to parse lock information into a manageable object: %w:\n%s", err, section))
		}
		if seq != nil {
			seqs = append(seqs, *seq)
		}
	}
	return seqs, errs
}

func splitThreadSections(text string) []string {
	var sections []string
	var cur []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), threadBoundary) {
			sections = append(sections, strings.Join(cur, "\n"))
			cur = nil
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		sections = append(sections, strings.Join(cur, "\n"))
	}
	return sections
}

func parseLockSequence(section string) (*LockSequence, error) {
	parts := strings.Split(section, lockMarker)
	header := strings.TrimSpace(parts[0])
	if i := strings.Index(header, threadMarker); i >= 0 {
		header = header[i:]
	}
	header = strings.SplitN(header, "\n", 2)[0]

	m := threadHeaderRe.FindStringSubmatch(header)
	if m == nil {
		return nil, fmt.Errorf("bad thread header %q", header)
	}
	seq := &LockSequence{ThreadID: m[1], ThreadName: strings.TrimSpace(m[3]), Line: -1}
	if m[2] != "" {
		seq.LWP, _ = strconv.Atoi(m[2])
	}
	if o := threadOriginRe.FindStringSubmatch(seq.ThreadName); o != nil {
		seq.ThreadName = o[1]
		seq.Line, _ = strconv.Atoi(o[2])
		seq.File = o[3]
		seq.Func = o[4]
	}

	var firstErr error
	for _, raw := range parts[1:] {
		lock, err := parseLock(raw)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if lock != nil {
			seq.Locks = append(seq.Locks, *lock)
		}
	}
	return seq, firstErr
}

func parseLock(raw string) (*Lock, error) {
	text := strings.TrimSpace(raw)
	var lockedLine string
	if i := strings.Index(text, lockedHere); i >= 0 {
		lockedLine = strings.SplitN(text[i:], "\n", 2)[0]
		text = strings.TrimSpace(text[:i])
	}

	lines := strings.Split(text, "\n")
	first := strings.TrimSpace(lines[0])
	lock := &Lock{Held: true, ID: -1, Line: -1, Count: -1, LockedLine: -1}
	for _, bt := range lines[1:] {
		if strings.TrimSpace(bt) != "" {
			lock.Backtrace = append(lock.Backtrace, bt)
		}
	}

	m := lockLineRe.FindStringSubmatch(first)
	if m == nil {
		if strings.Contains(first, "Waiting for") {
			lock.Held = false
			return lock, fmt.Errorf("bad lock line %q", first)
		}
		return nil, fmt.Errorf("bad lock line %q", first)
	}
	lock.Held = m[1] == ""
	lock.ID, _ = strconv.Atoi(m[2])
	lock.File = m[3]
	lock.Type = m[4]
	lock.Line, _ = strconv.Atoi(m[5])
	lock.Func = m[6]
	lock.Name = m[7]
	lock.Addr = m[8]
	lock.Count, _ = strconv.Atoi(m[9])

	if lm := lockedHereRe.FindStringSubmatch(lockedLine); lm != nil {
		lock.LockedFile = lm[1]
		lock.LockedLine, _ = strconv.Atoi(lm[2])
		lock.LockedFunc = lm[3]
	}
	return lock, nil
}

// LockCheck fails when any thread is waiting on a lock. Holding a lock at
// the end of a test is common (the logger read lock) and is not a failure.
type LockCheck struct {
	*condition.Base

	mu    sync.Mutex
	locks map[string][]LockSequence
}

// NewLockCheck creates the lock.post condition. "core show locks" only
// exists in DEBUG_THREADS builds.
func NewLockCheck(cfg condition.Config) condition.Condition {
	c := &LockCheck{Base: condition.NewBase(cfg), locks: make(map[string][]LockSequence)}
	c.AddBuildOption("DEBUG_THREADS", "1")
	return c
}

// Locks returns the parsed lock sequences for host.
func (c *LockCheck) Locks(host string) []LockSequence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]LockSequence(nil), c.locks[host]...)
}

// Evaluate implements condition.Condition.
func (c *LockCheck) Evaluate(ctx context.Context, _ condition.Condition) error {
	err := c.ForEachInstance(ctx, func(ctx context.Context, inst condition.Instance) error {
		res, ok, err := c.Query(ctx, inst, "core show locks")
		if err != nil || !ok {
			return err
		}
		seqs, perrs := ParseLocks(res.Output)
		for _, perr := range perrs {
			warnings.Warnf("%v\n", perr)
		}
		c.mu.Lock()
		c.locks[inst.Host()] = seqs
		c.mu.Unlock()
		return nil
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, host := range sortedKeys(c.locks) {
		seqs := c.locks[host]
		if len(seqs) > 0 {
			verbose.Infof("Detected locks on Asterisk instance: %s", host)
		}
		for _, seq := range seqs {
			for _, l := range seq.Waiting() {
				c.FailCheck(fmt.Sprintf("Lock detected in a waiting state: thread %s[%s] on Asterisk %s: %s",
					seq.ThreadName, seq.ThreadID, host, l))
			}
		}
	}
	c.PassCheck()
	return err
}
