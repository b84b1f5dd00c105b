// Package testutil provides shared test utilities for asttest packages.
package testutil

import (
	"bytes"
	"io"
	"os"
	"testing"
)

// drain copies r into a buffer on a goroutine so writers never block on a
// full pipe.
func drain(r *os.File) <-chan string {
	ch := make(chan string, 1)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		_ = r.Close()
		ch <- buf.String()
	}()
	return ch
}

// CaptureStdout captures stdout during the execution of fn and returns the output as a string.
//
// The original stdout is restored after the function completes.
//
// Parameters:
//   - t: Testing instance for helper marking
//   - fn: Function to execute while capturing stdout
//
// Returns:
//   - string: All content written to stdout during fn execution
func CaptureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	out := drain(r)
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	fn()

	_ = w.Close()
	return <-out
}

// CaptureStderr captures stderr during the execution of fn and returns the output as a string.
//
// Warnings and verbose output default to stderr, so this is the usual way to
// assert on them from command-level tests.
//
// Parameters:
//   - t: Testing instance for helper marking
//   - fn: Function to execute while capturing stderr
//
// Returns:
//   - string: All content written to stderr during fn execution
func CaptureStderr(t *testing.T, fn func()) string {
	t.Helper()

	oldStderr := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	out := drain(r)
	os.Stderr = w
	defer func() { os.Stderr = oldStderr }()

	fn()

	_ = w.Close()
	return <-out
}

// CaptureOutput captures both stdout and stderr during the execution of fn.
//
// Parameters:
//   - t: Testing instance for helper marking
//   - fn: Function to execute while capturing both streams
//
// Returns:
//   - stdout: All content written to stdout during fn execution
//   - stderr: All content written to stderr during fn execution
func CaptureOutput(t *testing.T, fn func()) (stdout, stderr string) {
	t.Helper()
	stderr = CaptureStderr(t, func() {
		stdout = CaptureStdout(t, fn)
	})
	return stdout, stderr
}
