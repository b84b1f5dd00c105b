// Package report turns a suite result into the artifacts people and CI
// systems read: the JUnit XML file, the console summary table and the
// structured run result.
package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajxudir/asttest/pkg/suite"
)

// JUnitSuiteName is the testsuite name CI dashboards group results under.
const JUnitSuiteName = "AsteriskTestSuite"

type junitSuite struct {
	XMLName xml.Name    `xml:"testsuite"`
	Errors  int         `xml:"errors,attr"`
	Time    string      `xml:"time,attr"`
	Tests   int         `xml:"tests,attr"`
	Name    string      `xml:"name,attr"`
	Cases   []junitCase `xml:"testcase"`
}

type junitCase struct {
	Time    string        `xml:"time,attr"`
	Name    string        `xml:"name,attr"`
	Failure *junitFailure `xml:"failure,omitempty"`
	Skipped *junitSkipped `xml:"skipped,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr,omitempty"`
	Body    string `xml:",cdata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr"`
}

// WriteJUnit writes result as a single JUnit testsuite.
//
// Every selected test becomes a testcase. Tests that did not run carry a
// skipped element with their reason. Failed tests carry a failure element
// whose body holds the reasons followed by any captured run-test output.
//
// Parameters:
//   - w: Destination writer
//   - result: The suite outcome
//
// Returns:
//   - error: When encoding or writing fails
func WriteJUnit(w io.Writer, result *suite.Result) error {
	doc := junitSuite{
		Time:  seconds(result.TotalDuration.Seconds()),
		Tests: len(result.Tests),
		Name:  JUnitSuiteName,
		Cases: make([]junitCase, 0, len(result.Tests)),
	}
	for _, t := range result.Tests {
		c := junitCase{Time: seconds(t.Duration.Seconds()), Name: t.Name}
		switch {
		case !t.Ran():
			c.Skipped = &junitSkipped{Message: t.Reason()}
		case !t.Passed:
			c.Failure = &junitFailure{Message: t.Status, Body: failureBody(t)}
		}
		doc.Cases = append(doc.Cases, c)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "\t")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode JUnit report: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// WriteJUnitFile writes the JUnit report to path, creating parent directories.
func WriteJUnitFile(path string, result *suite.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create JUnit report: %w", err)
	}
	if err := WriteJUnit(f, result); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func failureBody(t suite.TestResult) string {
	var sb strings.Builder
	sb.WriteString("\n")
	for _, reason := range t.Reasons {
		sb.WriteString(reason)
		sb.WriteString("\n")
	}
	if t.Output != "" {
		sb.WriteString(t.Output)
		if !strings.HasSuffix(t.Output, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func seconds(s float64) string {
	return fmt.Sprintf("%.2f", s)
}
