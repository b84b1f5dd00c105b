// Package verbose provides debug and trace logging for the test harness.
//
// Messages are written to stderr by default, one line each, prefixed with
// their level. Continuation lines (CLI output, failure reasons) are indented
// under the message they belong to.
package verbose

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Line prefixes.
const (
	debugPrefix = "[DEBUG] "
	infoPrefix  = "[INFO] "
	tracePrefix = "[TRACE] "
	indent      = "        "
)

// CLI output longer than previewLines is cut to its first previewHead
// lines unless tracing.
const (
	previewLines = 5
	previewHead  = 3
)

var (
	mu      sync.RWMutex
	enabled bool
	tracing bool
	writer  io.Writer = os.Stderr
)

// Enable turns on debug and info messages.
func Enable() {
	mu.Lock()
	enabled = true
	mu.Unlock()
}

// EnableTrace turns on trace logging. Trace implies verbose.
//
// Trace output includes the full text of every CLI response, which is
// usually too noisy for --verbose alone.
func EnableTrace() {
	mu.Lock()
	enabled, tracing = true, true
	mu.Unlock()
}

// Disable turns off verbose and trace logging.
func Disable() {
	mu.Lock()
	enabled, tracing = false, false
	mu.Unlock()
}

// IsEnabled reports whether verbose logging is on.
//
// Returns:
//   - bool: true after Enable or EnableTrace, false after Disable
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// IsTracing reports whether trace logging is on.
func IsTracing() bool {
	mu.RLock()
	defer mu.RUnlock()
	return tracing
}

// SetWriter redirects all messages. A nil writer is ignored.
//
// Parameters:
//   - w: destination for subsequent messages
func SetWriter(w io.Writer) {
	if w == nil {
		return
	}
	mu.Lock()
	writer = w
	mu.Unlock()
}

func out() io.Writer {
	mu.RLock()
	defer mu.RUnlock()
	return writer
}

// emit writes one prefixed line followed by optional indented lines.
func emit(prefix, msg string, extra ...string) {
	w := out()
	_, _ = io.WriteString(w, prefix+msg+"\n")
	for _, line := range extra {
		_, _ = io.WriteString(w, indent+line+"\n")
	}
}

// Printf prints a [DEBUG] message when verbose logging is on.
//
// Parameters:
//   - format: Printf-style format string
//   - args: values for format
func Printf(format string, args ...any) {
	if IsEnabled() {
		emit(debugPrefix, fmt.Sprintf(format, args...))
	}
}

// Debugf is Printf under the name most call sites use.
func Debugf(format string, args ...any) {
	Printf(format, args...)
}

// Info prints msg as an [INFO] message when verbose logging is on.
func Info(msg string) {
	if IsEnabled() {
		emit(infoPrefix, msg)
	}
}

// Infof is the formatting variant of Info.
func Infof(format string, args ...any) {
	if IsEnabled() {
		emit(infoPrefix, fmt.Sprintf(format, args...))
	}
}

// Tracef prints a [TRACE] message when trace logging is on.
func Tracef(format string, args ...any) {
	if IsTracing() {
		emit(tracePrefix, fmt.Sprintf(format, args...))
	}
}

// CLIExec logs a command about to be sent to the instance at host.
func CLIExec(host, command string) {
	if IsEnabled() {
		emit(debugPrefix, fmt.Sprintf("CLI %s: %s", host, command))
	}
}

// CLIResult logs how a CLI command ended and a preview of its output.
//
// It performs the following operations:
//   - Reports success, or failure with the exit code, with the command cut to 60 columns
//   - Lists the output lines under it, each cut to 100 columns
//   - Replaces all but the first lines of long output with a count, unless tracing
//
// Parameters:
//   - host: instance the command ran on
//   - command: CLI command text
//   - exitCode: exit code of the remote console
//   - output: command output
func CLIResult(host, command string, exitCode int, output string) {
	if !IsEnabled() {
		return
	}
	head := fmt.Sprintf("CLI %s succeeded: %s", host, truncate(command, 60))
	if exitCode != 0 {
		head = fmt.Sprintf("CLI %s failed (exit %d): %s", host, exitCode, truncate(command, 60))
	}

	var body []string
	if output = strings.TrimSpace(output); output != "" {
		lines := strings.Split(output, "\n")
		shown := lines
		if len(lines) > previewLines && !IsTracing() {
			shown = lines[:previewHead]
		}
		for _, line := range shown {
			body = append(body, "| "+truncate(line, 100))
		}
		if len(shown) < len(lines) {
			body = append(body, fmt.Sprintf("| ... (%d more lines)", len(lines)-len(shown)))
		}
	}
	emit(debugPrefix, head, body...)
}

// ConditionResult logs a condition verdict and its failure reasons.
func ConditionResult(name, status string, reasons []string) {
	if !IsEnabled() {
		return
	}
	body := make([]string, 0, len(reasons))
	for _, r := range reasons {
		body = append(body, "Reason: "+r)
	}
	emit(debugPrefix, fmt.Sprintf("Condition %s: %s", name, status), body...)
}

// StateChange logs a lifecycle transition of a test case.
func StateChange(test, from, to string) {
	if IsEnabled() {
		emit(debugPrefix, fmt.Sprintf("Test %s: %s -> %s", test, from, to))
	}
}

// ConfigLoaded logs the suite configuration file and the files it extends.
func ConfigLoaded(path string, extended []string) {
	if !IsEnabled() {
		return
	}
	var body []string
	if len(extended) > 0 {
		body = append(body, fmt.Sprintf("Extends: %v", extended))
	}
	emit(debugPrefix, "Config loaded: "+path, body...)
}

// truncate cuts s to maxLen bytes, ending with "..." when cut. maxLen must
// be at least 3.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
