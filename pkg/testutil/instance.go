package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/ajxudir/asttest/pkg/asterisk"
)

// Response is one scripted CLI answer.
type Response struct {
	Output   string
	ExitCode int
	Err      error
}

// FakeInstance is an in-memory Asterisk instance with scripted CLI answers.
//
// Each command has a queue of responses. Calls consume the queue until one
// response is left, which then repeats. Commands with no script answer like
// a build without the command: "No such command" and exit status 1.
type FakeInstance struct {
	host string

	mu        sync.Mutex
	responses map[string][]Response
	calls     []string
	startErr  error
	starts    int
	stops     int
}

// NewFakeInstance returns a fake instance reachable at host.
func NewFakeInstance(host string) *FakeInstance {
	return &FakeInstance{host: host, responses: make(map[string][]Response)}
}

// On scripts a successful answer for command.
func (f *FakeInstance) On(command, output string) *FakeInstance {
	return f.OnResponse(command, Response{Output: output})
}

// OnSequence scripts successive successful answers for command.
func (f *FakeInstance) OnSequence(command string, outputs ...string) *FakeInstance {
	resp := make([]Response, 0, len(outputs))
	for _, o := range outputs {
		resp = append(resp, Response{Output: o})
	}
	return f.OnResponse(command, resp...)
}

// OnResponse appends responses to the queue for command.
func (f *FakeInstance) OnResponse(command string, resp ...Response) *FakeInstance {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[command] = append(f.responses[command], resp...)
	return f
}

// Host returns the configured host.
func (f *FakeInstance) Host() string { return f.host }

// CLIExec returns the next scripted answer for command.
func (f *FakeInstance) CLIExec(ctx context.Context, command string) (asterisk.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, command)

	if err := ctx.Err(); err != nil {
		return asterisk.Result{Host: f.host, Command: command, ExitCode: -1}, err
	}

	queue := f.responses[command]
	if len(queue) == 0 {
		return asterisk.Result{
			Host:     f.host,
			Command:  command,
			Output:   fmt.Sprintf("No such command '%s' (type 'core show help %s' for other possible commands)\n", command, command),
			ExitCode: 1,
		}, nil
	}
	resp := queue[0]
	if len(queue) > 1 {
		f.responses[command] = queue[1:]
	}
	return asterisk.Result{Host: f.host, Command: command, Output: resp.Output, ExitCode: resp.ExitCode}, resp.Err
}

// Calls returns every command received, in order.
func (f *FakeInstance) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns how often command was received.
func (f *FakeInstance) CallCount(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == command {
			n++
		}
	}
	return n
}

// FailStart makes Start return err.
func (f *FakeInstance) FailStart(err error) *FakeInstance {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = err
	return f
}

// Start records the call and returns the error set by FailStart.
func (f *FakeInstance) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

// Stop records the call.
func (f *FakeInstance) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

// Starts returns how often Start was called.
func (f *FakeInstance) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

// Stops returns how often Stop was called.
func (f *FakeInstance) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}
