// Package errors provides the error types and exit codes used by asttest.
//
// The package groups error handling into a single location:
//   - ExitError: Command exit with a specific exit code
//   - PartialSuccessError: Some tests passed, some failed
//   - ValidationError: Configuration, dependency or condition validation failures
//
// Error Display:
//
// Errors are printed with actionable hints where a known pattern matches:
//
//	errors.PrintErrorWithHints(os.Stderr, errs, verbose)
//
// Exit Codes:
//
// Standard exit codes are defined for scripting integration:
//   - ExitSuccess (0): Every selected test passed
//   - ExitTestsFailed (1): At least one test failed or timed out
//   - ExitConfigError (2): The suite or a test configuration could not be loaded
//   - ExitSetupError (3): The harness could not prepare the run (paths, binaries)
package errors
