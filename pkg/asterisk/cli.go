package asterisk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ajxudir/asttest/pkg/cmdexec"
	"github.com/ajxudir/asttest/pkg/constants"
	"github.com/ajxudir/asttest/pkg/verbose"
)

// DefaultCLITimeout bounds a single "asterisk -rx" invocation.
const DefaultCLITimeout = 30 * time.Second

// Result is the outcome of one CLI command against one instance.
//
// Fields:
//   - Host: Host of the instance the command ran against
//   - Command: The CLI command text
//   - Output: Combined stdout and stderr of the remote console
//   - ExitCode: Exit status of the remote console process
type Result struct {
	Host     string
	Command  string
	Output   string
	ExitCode int
}

// NoData reports whether the result carries nothing a condition can judge.
//
// A result has no data when the remote console exited non-zero, could not
// connect, or the command is not available in the running build.
func (r Result) NoData() bool {
	if r.ExitCode != 0 {
		return true
	}
	return strings.Contains(r.Output, constants.MarkerNotConnected) ||
		strings.Contains(r.Output, constants.MarkerNoSuchCommand)
}

// Lines returns the output split into lines with the trailing newline removed.
func (r Result) Lines() []string {
	out := strings.TrimRight(r.Output, "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// CLIExec runs a CLI command through the remote console of this instance.
//
// It performs the following operations:
//   - Builds "asterisk -C <etc>/asterisk.conf -rx <command>"
//   - Runs it through cmdexec.Run with the instance CLI timeout
//   - Merges stdout and stderr into Result.Output
//
// A non-zero exit is reported in Result.ExitCode, not as an error.
//
// Parameters:
//   - ctx: Context for cancellation
//   - command: CLI command text, e.g. "core show locks"
//
// Returns:
//   - Result: Output and exit status of the command
//   - error: Only when the remote console could not be launched or timed out
func (i *Instance) CLIExec(ctx context.Context, command string) (Result, error) {
	verbose.CLIExec(i.host, command)

	spec := cmdexec.Spec{
		Path:    i.binary,
		Args:    []string{"-C", i.ConfPath(), "-rx", command},
		Timeout: i.cliTimeout,
	}
	res, err := cmdexec.Run(ctx, spec)
	out := Result{
		Host:     i.host,
		Command:  command,
		Output:   string(res.Stdout) + string(res.Stderr),
		ExitCode: res.ExitCode,
	}
	if err != nil {
		return out, fmt.Errorf("cli %q on %s: %w", command, i.host, err)
	}
	verbose.CLIResult(i.host, command, out.ExitCode, out.Output)
	return out, nil
}
