package errors

import (
	"fmt"
	"io"
)

// PrintErrorWithHints prints errors with actionable hints to the writer.
//
// Output format:
//
//	Error: <error message>
//	  Hint: <actionable hint if available>
//
// Parameters:
//   - w: Writer to output to (typically os.Stderr)
//   - errs: Errors to display
//   - verbose: If true, validation errors include expected values and hints
func PrintErrorWithHints(w io.Writer, errs []error, verbose bool) {
	for _, err := range errs {
		printSingleError(w, err, verbose)
	}
}

func printSingleError(w io.Writer, err error, verbose bool) {
	if err == nil {
		return
	}

	if ve, ok := IsValidationError(err); ok {
		if verbose {
			_, _ = fmt.Fprintf(w, "Error: %s\n", ve.VerboseError())
		} else {
			_, _ = fmt.Fprintf(w, "Error: %s\n", ve.Error())
		}
		return
	}

	if pse, ok := IsPartialSuccess(err); ok {
		_, _ = fmt.Fprintf(w, "Error: %s\n", pse.Error())
		if verbose {
			for _, e := range pse.Errors {
				_, _ = fmt.Fprintf(w, "  - %s\n", e.Error())
			}
		}
		return
	}

	_, _ = fmt.Fprintf(w, "Error: %s\n", EnhanceErrorWithHint(err))
}
