package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ajxudir/asttest/pkg/cmdexec"
)

// shellCheckTimeout bounds the login shell used to find aliases.
const shellCheckTimeout = 5 * time.Second

// getShellCommandCheck returns the shell and args for checking if a command exists.
//
// It performs the following operations:
//   - Reads the SHELL environment variable to determine the user's preferred shell
//   - Falls back to "sh" if SHELL is not set
//   - Constructs command arguments for a login shell (-l) executing 'command -v'
//
// Parameters:
//   - cmd: The command name to check for existence
//
// Returns:
//   - shell: The shell executable to use
//   - args: Command arguments for checking command existence using 'command -v'
func getShellCommandCheck(cmd string) (shell string, args []string) {
	shell = os.Getenv("SHELL")
	if shell == "" {
		shell = "sh"
	}
	return shell, []string{"-l", "-c", fmt.Sprintf("command -v %s", cmd)}
}

// commandExistsInShell checks if a command exists through the user's shell,
// which also finds aliases and shell functions.
func commandExistsInShell(ctx context.Context, cmd string) bool {
	shell, args := getShellCommandCheck(cmd)
	res, err := cmdexec.Run(ctx, cmdexec.Spec{Path: shell, Args: args, Timeout: shellCheckTimeout})
	return err == nil && res.ExitCode == 0
}
