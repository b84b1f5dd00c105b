// Package warnings writes user-facing warnings and errors about dropped
// configuration, unreachable instances and failed conditions.
//
// Nothing written here aborts a run. Output goes to stderr unless a test or
// a structured-output command swaps the writer.
package warnings

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

var (
	mu         sync.RWMutex
	warnWriter io.Writer = os.Stderr

	onceMu sync.Mutex
	seen   = make(map[string]bool)
)

// Warnf writes a formatted warning. The caller supplies the newline.
func Warnf(format string, args ...any) {
	mu.RLock()
	w := warnWriter
	mu.RUnlock()
	_, _ = fmt.Fprintf(w, format, args...)
}

// Errorf writes a formatted line prefixed with "ERROR: ". A trailing
// newline is appended when missing.
//
// Parameters:
//   - format: Printf-style format string
//   - args: Values for format
func Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	Warnf("ERROR: %s", msg)
}

// Oncef writes a warning the first time key is seen and drops every later
// one. Problems that repeat for every test of a suite, such as an unknown
// custom dependency, are reported through it.
//
// Returns:
//   - bool: true when the warning was written
func Oncef(key, format string, args ...any) bool {
	onceMu.Lock()
	if seen[key] {
		onceMu.Unlock()
		return false
	}
	seen[key] = true
	onceMu.Unlock()

	Warnf(format, args...)
	return true
}

// ResetOnce forgets every key passed to Oncef.
func ResetOnce() {
	onceMu.Lock()
	defer onceMu.Unlock()
	seen = make(map[string]bool)
}

// WarningWriter returns the current writer.
func WarningWriter() io.Writer {
	mu.RLock()
	defer mu.RUnlock()
	return warnWriter
}

// SetWarningWriter replaces the writer, nil meaning os.Stderr.
//
// Returns:
//   - func(): Restores the previous writer
func SetWarningWriter(w io.Writer) func() {
	mu.Lock()
	defer mu.Unlock()

	previous := warnWriter
	if w == nil {
		w = os.Stderr
	}
	warnWriter = w
	return func() {
		mu.Lock()
		defer mu.Unlock()
		warnWriter = previous
	}
}
