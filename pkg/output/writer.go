package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteTestListResult writes the list command's result in format.
//
// Parameters:
//   - w: Destination writer
//   - format: FormatJSON, FormatXML or FormatCSV
//   - result: The listed tests
//
// Returns:
//   - error: For an unsupported format or a failed write
func WriteTestListResult(w io.Writer, format Format, result *TestListResult) error {
	f := NewFormatter(format, w)
	switch format {
	case FormatJSON:
		return f.WriteJSON(result)
	case FormatXML:
		return f.WriteXML(result)
	case FormatCSV:
		headers := []string{"TEST", "TAGS", "EXPECT_PASS", "LEGACY", "SKIP", "SUMMARY", "ERROR"}
		rows := make([][]string, 0, len(result.Tests))
		for _, e := range result.Tests {
			rows = append(rows, []string{
				e.Name, strings.Join(e.Tags, " "), strconv.FormatBool(e.ExpectPass),
				strconv.FormatBool(e.Legacy), e.Skip, e.Summary, e.Error,
			})
		}
		return f.WriteCSV(headers, rows)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// WriteRunResult writes a suite run's result in format. CSV has one row per
// test with reasons joined by "; ".
//
// Parameters:
//   - w: Destination writer
//   - format: FormatJSON, FormatXML or FormatCSV
//   - result: The suite outcome
//
// Returns:
//   - error: For an unsupported format or a failed write
func WriteRunResult(w io.Writer, format Format, result *RunResult) error {
	f := NewFormatter(format, w)
	switch format {
	case FormatJSON:
		return f.WriteJSON(result)
	case FormatXML:
		return f.WriteXML(result)
	case FormatCSV:
		headers := []string{"TEST", "STATUS", "DURATION", "REASONS"}
		rows := make([][]string, 0, len(result.Tests))
		for _, e := range result.Tests {
			rows = append(rows, []string{e.Name, e.Status, e.Duration, strings.Join(e.Reasons, "; ")})
		}
		return f.WriteCSV(headers, rows)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}
