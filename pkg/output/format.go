package output

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Format selects how a command prints its result.
type Format string

const (
	// FormatTable is the aligned terminal table.
	FormatTable Format = "table"
	// FormatCSV is comma-separated values with a header row.
	FormatCSV Format = "csv"
	// FormatJSON is a single line of JSON.
	FormatJSON Format = "json"
	// FormatXML is indented XML with a declaration.
	FormatXML Format = "xml"
)

// ParseFormat maps a case-insensitive name to a Format. Unknown names yield
// FormatTable.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV
	case "json":
		return FormatJSON
	case "xml":
		return FormatXML
	default:
		return FormatTable
	}
}

// IsStructuredFormat reports whether f is meant for machines rather than a terminal.
func IsStructuredFormat(f Format) bool {
	return f == FormatCSV || f == FormatJSON || f == FormatXML
}

// Formatter writes values in one structured format.
type Formatter struct {
	format Format
	writer io.Writer
}

// NewFormatter creates a formatter writing format to writer.
func NewFormatter(format Format, writer io.Writer) *Formatter {
	return &Formatter{format: format, writer: writer}
}

// Format returns the formatter's format.
func (f *Formatter) Format() Format {
	return f.format
}

// WriteCSV writes a header row followed by rows.
//
// csv.Writer only reports write errors after Flush, so the individual Write
// results are ignored and the flushed error is returned.
//
// Parameters:
//   - headers: Column names
//   - rows: Data rows with one value per header
//
// Returns:
//   - error: The first write or flush error, if any
func (f *Formatter) WriteCSV(headers []string, rows [][]string) error {
	w := csv.NewWriter(f.writer)
	_ = w.Write(headers)
	for _, row := range rows {
		_ = w.Write(row)
	}
	w.Flush()
	return w.Error()
}

// WriteJSON encodes data as compact JSON followed by a newline.
func (f *Formatter) WriteJSON(data interface{}) error {
	return json.NewEncoder(f.writer).Encode(data)
}

// WriteXML writes the XML declaration and data indented by two spaces.
func (f *Formatter) WriteXML(data interface{}) error {
	_, _ = fmt.Fprint(f.writer, xml.Header)
	encoder := xml.NewEncoder(f.writer)
	encoder.Indent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(f.writer)
	return nil
}

// ValidateStructuredOutputFlags rejects --verbose together with a structured
// format, since verbose lines would corrupt the machine-readable stream.
func ValidateStructuredOutputFlags(format Format, verbose bool) error {
	if IsStructuredFormat(format) && verbose {
		return fmt.Errorf("--verbose is not supported with --output %s", format)
	}
	return nil
}
