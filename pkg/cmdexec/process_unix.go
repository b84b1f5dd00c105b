//go:build unix

package cmdexec

import (
	"os/exec"
	"syscall"
)

// setProcGroup puts the command in a new process group so that Asterisk,
// run-test scripts and whatever they fork can be killed together.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// killProcGroup sends SIGKILL to the process group led by cmd.
//
// Returns:
//   - error: Error if the kill operation fails, nil if successful or never started
func killProcGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
