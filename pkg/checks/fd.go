package checks

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ajxudir/asttest/pkg/condition"
	"github.com/ajxudir/asttest/pkg/warnings"
)

// FileDescriptor is one entry of "core show fd".
type FileDescriptor struct {
	Number int
	Info   string
}

// ignoredFdMarkers identify descriptors opened on demand by the core.
var ignoredFdMarkers = []string{
	`socket(PF_INET,SOCK_DGRAM,"udp")`,
	"__ast_mm_init",
}

// ParseFileDescriptors parses "core show fd" output. The first line is a
// header and everything from "Asterisk ending" on is dropped.
func ParseFileDescriptors(output string) ([]FileDescriptor, []error) {
	if i := strings.Index(output, "\n"); i >= 0 {
		output = output[i+1:]
	} else {
		return nil, nil
	}
	if i := strings.Index(output, "Asterisk ending"); i >= 0 {
		output = output[:i]
	}

	var fds []FileDescriptor
	var errs []error
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || ignoredFd(line) {
			continue
		}
		num, info, _ := strings.Cut(line, " ")
		n, err := strconv.Atoi(num)
		if err != nil {
			errs = append(errs, fmt.Errorf("unable to parse file descriptor line %q", line))
			continue
		}
		fds = append(fds, FileDescriptor{Number: n, Info: strings.TrimSpace(info)})
	}
	return fds, errs
}

func ignoredFd(line string) bool {
	for _, m := range ignoredFdMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

func fdIn(fd FileDescriptor, list []FileDescriptor) bool {
	for _, o := range list {
		if o.Number == fd.Number {
			return true
		}
	}
	return false
}

type fileDescriptors struct {
	mu   sync.Mutex
	snap snapshot[[]FileDescriptor]
}

func newFileDescriptors(base *condition.Base) fileDescriptors {
	// core show fd only exists in DEBUG_FD_LEAKS builds.
	base.AddBuildOption("DEBUG_FD_LEAKS", "1")
	return fileDescriptors{snap: newSnapshot[[]FileDescriptor]()}
}

func (f *fileDescriptors) collect(ctx context.Context, base *condition.Base, inst condition.Instance) error {
	res, ok, err := base.Query(ctx, inst, "core show fd")
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !ok {
		f.snap.noData[inst.Host()] = true
		return nil
	}
	fds, perrs := ParseFileDescriptors(res.Output)
	for _, perr := range perrs {
		warnings.Warnf("%s: %v\n", inst.Host(), perr)
	}
	f.snap.data[inst.Host()] = fds
	return nil
}

// FileDescriptors returns the descriptors captured per host.
func (f *fileDescriptors) FileDescriptors() map[string][]FileDescriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]FileDescriptor, len(f.snap.data))
	for k, v := range f.snap.data {
		out[k] = append([]FileDescriptor(nil), v...)
	}
	return out
}

func (f *fileDescriptors) hadNoData(host string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap.noData[host]
}

// FdSnapshot is implemented by checks whose captured descriptors a post
// check can compare against.
type FdSnapshot interface {
	FileDescriptors() map[string][]FileDescriptor
}

// FdPre records the open file descriptors before the test. It always passes.
type FdPre struct {
	*condition.Base
	fileDescriptors
}

// NewFdPre creates the fd.pre condition.
func NewFdPre(cfg condition.Config) condition.Condition {
	c := &FdPre{Base: condition.NewBase(cfg)}
	c.fileDescriptors = newFileDescriptors(c.Base)
	return c
}

// Evaluate implements condition.Condition.
func (c *FdPre) Evaluate(ctx context.Context, _ condition.Condition) error {
	err := c.ForEachInstance(ctx, func(ctx context.Context, inst condition.Instance) error {
		return c.collect(ctx, c.Base, inst)
	})
	c.PassCheck()
	return err
}

// FdPost fails when descriptors were leaked or closed by the test.
type FdPost struct {
	*condition.Base
	fileDescriptors
}

// NewFdPost creates the fd.post condition.
func NewFdPost(cfg condition.Config) condition.Condition {
	c := &FdPost{Base: condition.NewBase(cfg)}
	c.fileDescriptors = newFileDescriptors(c.Base)
	return c
}

// Evaluate implements condition.Condition.
func (c *FdPost) Evaluate(ctx context.Context, related condition.Condition) error {
	pre, ok := related.(FdSnapshot)
	if !ok {
		c.FailCheck("No pre-test condition object provided")
		return nil
	}

	err := c.ForEachInstance(ctx, func(ctx context.Context, inst condition.Instance) error {
		return c.collect(ctx, c.Base, inst)
	})

	before := pre.FileDescriptors()
	after := c.FileDescriptors()
	for _, host := range sortedKeys(before) {
		current, found := after[host]
		if !found {
			if !c.hadNoData(host) {
				c.FailCheck(fmt.Sprintf("Asterisk host in pre-test check [%s] not found in post-test check", host))
			}
			continue
		}
		for _, fd := range before[host] {
			if !fdIn(fd, current) {
				c.FailCheck(fmt.Sprintf("Failed to find file descriptor %d [%s] in post-test check", fd.Number, fd.Info))
			}
		}
		for _, fd := range current {
			if !fdIn(fd, before[host]) {
				c.FailCheck(fmt.Sprintf("Failed to find file descriptor %d [%s] in pre-test check", fd.Number, fd.Info))
			}
		}
	}
	c.PassCheck()
	return err
}
