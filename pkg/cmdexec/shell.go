package cmdexec

// getDefaultShell returns the default shell for the system.
//
// This is the fallback used when the SHELL environment variable is not set.
func getDefaultShell() (shell string, args []string) {
	return "sh", []string{"-c"}
}
