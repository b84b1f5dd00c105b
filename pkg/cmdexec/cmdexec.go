// Package cmdexec runs external programs for the harness: one-shot commands
// such as "asterisk -rx", long-running processes such as the Asterisk daemon
// itself, and shell snippets used by custom dependency checks.
package cmdexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ajxudir/asttest/pkg/warnings"
)

// getShell returns the user's shell and args to run a command string.
//
// The SHELL environment variable wins; otherwise the platform default is used.
//
// Returns:
//   - shell: The path to the shell executable
//   - args: The shell arguments needed to execute a command string
func getShell() (shell string, args []string) {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh, []string{"-c"}
	}
	return getDefaultShell()
}

// Spec describes a program invocation.
//
// Fields:
//   - Path: Program to run; resolved through PATH when it has no separator
//   - Args: Arguments, not including the program name
//   - Env: Extra environment variables layered over os.Environ()
//   - Dir: Working directory, empty for the current one
//   - Timeout: Maximum run time for Run; zero means no limit
//   - Output: Optional writer that receives a copy of stdout as it arrives
type Spec struct {
	Path    string
	Args    []string
	Env     map[string]string
	Dir     string
	Timeout time.Duration
	Output  io.Writer
}

// String renders the invocation for logs.
func (s Spec) String() string {
	if len(s.Args) == 0 {
		return s.Path
	}
	return s.Path + " " + strings.Join(s.Args, " ")
}

// Result holds the outcome of a finished command.
//
// A non-zero ExitCode is not an error: callers such as the CLI primitive
// interpret it themselves.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// RunFunc is the function signature for one-shot command execution.
//
// Parameters:
//   - ctx: Context for cancellation
//   - spec: The invocation to run
//
// Returns:
//   - Result: Captured output and exit code
//   - error: Spawn failures, timeouts and cancellation; never a plain non-zero exit
type RunFunc func(ctx context.Context, spec Spec) (Result, error)

// Run is the default one-shot execution function.
//
// This variable can be replaced with a mock implementation for testing.
var Run RunFunc = runCommand

// waitDelay bounds how long Run waits for output pipes after the process
// group has been killed.
const waitDelay = 2 * time.Second

// ErrTimeout is wrapped by errors returned when Spec.Timeout elapses.
var ErrTimeout = errors.New("command timed out")

// runCommand executes spec and waits for it to finish.
//
// The command runs in its own process group so that a timeout kills every
// child it spawned.
func runCommand(ctx context.Context, spec Spec) (Result, error) {
	if strings.TrimSpace(spec.Path) == "" {
		return Result{}, fmt.Errorf("empty command")
	}
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Env = buildEnv(spec.Env)
	cmd.Dir = spec.Dir
	setProcGroup(cmd)
	cmd.Cancel = func() error { return killProcGroup(cmd) }
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	if spec.Output != nil {
		cmd.Stdout = io.MultiWriter(&stdout, spec.Output)
	} else {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}

	if ctx.Err() == context.DeadlineExceeded && spec.Timeout > 0 {
		warnings.Warnf("%s timed out after %s\n", spec.Path, spec.Timeout)
		res.ExitCode = -1
		return res, fmt.Errorf("%w after %s: %s", ErrTimeout, spec.Timeout, spec.String())
	}
	if ctx.Err() != nil {
		res.ExitCode = -1
		return res, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("run %s: %w", spec.Path, err)
}

// Shell runs a shell snippet through the user's shell and returns its
// combined stdout. A non-zero exit is reported as an error carrying stderr.
//
// Parameters:
//   - ctx: Context for cancellation
//   - script: The shell command line
//   - dir: Working directory
//   - timeout: Maximum run time, zero for none
func Shell(ctx context.Context, script, dir string, timeout time.Duration) ([]byte, error) {
	if strings.TrimSpace(script) == "" {
		return nil, fmt.Errorf("no commands provided")
	}
	shell, args := getShell()
	res, err := Run(ctx, Spec{
		Path:    shell,
		Args:    append(append([]string{}, args...), script),
		Dir:     dir,
		Timeout: timeout,
	})
	if err != nil {
		return res.Stdout, err
	}
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(string(res.Stderr))
		if msg == "" {
			msg = strings.TrimSpace(string(res.Stdout))
		}
		if msg != "" {
			return res.Stdout, fmt.Errorf("exit status %d: %s", res.ExitCode, msg)
		}
		return res.Stdout, fmt.Errorf("exit status %d", res.ExitCode)
	}
	return res.Stdout, nil
}

// Process is a running long-lived program started by Start.
type Process struct {
	cmd      *exec.Cmd
	done     chan struct{}
	mu       sync.Mutex
	waitErr  error
	exitCode int
}

// StartFunc is the function signature for launching a long-running process.
type StartFunc func(spec Spec) (*Process, error)

// Start is the default process launcher. It can be replaced in tests.
var Start StartFunc = startProcess

// startProcess launches spec in its own process group and returns immediately.
// Stdout and stderr go to spec.Output when set and are discarded otherwise.
func startProcess(spec Spec) (*Process, error) {
	if strings.TrimSpace(spec.Path) == "" {
		return nil, fmt.Errorf("empty command")
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Env = buildEnv(spec.Env)
	cmd.Dir = spec.Dir
	setProcGroup(cmd)
	if spec.Output != nil {
		cmd.Stdout = spec.Output
		cmd.Stderr = spec.Output
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Path, err)
	}

	p := &Process{cmd: cmd, done: make(chan struct{})}
	go p.wait()
	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.waitErr = err
	p.exitCode = -1
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	}
	p.mu.Unlock()
	close(p.done)
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process has already exited.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit code, or -1 while running or when killed by a signal.
func (p *Process) ExitCode() int {
	if !p.Exited() {
		return -1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Err returns the error reported by Wait, once the process has exited.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// Kill sends SIGKILL to the whole process group. Killing an exited process is a no-op.
func (p *Process) Kill() error {
	if p.Exited() {
		return nil
	}
	return killProcGroup(p.cmd)
}

// buildEnv layers extra variables over the current environment.
func buildEnv(extra map[string]string) []string {
	environ := os.Environ()
	for k, v := range extra {
		environ = append(environ, k+"="+v)
	}
	return environ
}
