// Package main is the entry point for the asttest CLI.
//
// asttest runs Asterisk test suites and brackets every test with pre- and
// post-test conditions that catch leaked resources in the instances under
// test.
package main

import "github.com/ajxudir/asttest/cmd"

// main delegates parsing and execution to the cmd package.
func main() {
	cmd.Execute()
}
