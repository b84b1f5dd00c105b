package output

import "encoding/xml"

// TestListResult is the structured form of the list command.
type TestListResult struct {
	XMLName xml.Name        `json:"-" xml:"testList"`
	Summary TestListSummary `json:"summary" xml:"summary"`
	Tests   []TestListEntry `json:"tests" xml:"tests>test"`
}

// TestListSummary counts the listed tests.
type TestListSummary struct {
	SuiteRoot string `json:"suite_root" xml:"suiteRoot"`
	Total     int    `json:"total" xml:"total"`
	Skipped   int    `json:"skipped" xml:"skipped"`
}

// TestListEntry describes one test without running it.
//
// Fields:
//   - Name: Test path relative to the tests directory
//   - Summary: testinfo.summary
//   - Tags: properties.tags
//   - ExpectPass: False for tests expected to fail
//   - Skip: The skip reason, empty when the test is not skipped
//   - Legacy: True when the test is driven by a run-test executable
//   - Error: Set when the test configuration could not be loaded
type TestListEntry struct {
	Name       string   `json:"name" xml:"name"`
	Summary    string   `json:"summary,omitempty" xml:"summary,omitempty"`
	Tags       []string `json:"tags,omitempty" xml:"tags>tag,omitempty"`
	ExpectPass bool     `json:"expect_pass" xml:"expectPass"`
	Skip       string   `json:"skip,omitempty" xml:"skip,omitempty"`
	Legacy     bool     `json:"legacy" xml:"legacy"`
	Error      string   `json:"error,omitempty" xml:"error,omitempty"`
}

// RunResult is the structured form of a suite run.
type RunResult struct {
	XMLName xml.Name   `json:"-" xml:"runResult"`
	Summary RunSummary `json:"summary" xml:"summary"`
	Tests   []RunEntry `json:"tests" xml:"tests>test"`
}

// RunSummary counts the outcomes of a suite run.
type RunSummary struct {
	Total    int    `json:"total" xml:"total"`
	Passed   int    `json:"passed" xml:"passed"`
	Failed   int    `json:"failed" xml:"failed"`
	Skipped  int    `json:"skipped" xml:"skipped"`
	Duration string `json:"duration" xml:"duration"`
	Success  bool   `json:"success" xml:"success"`
}

// RunEntry is the outcome of one test.
type RunEntry struct {
	Name       string           `json:"name" xml:"name"`
	Status     string           `json:"status" xml:"status"`
	Duration   string           `json:"duration" xml:"duration"`
	Reasons    []string         `json:"reasons,omitempty" xml:"reasons>reason,omitempty"`
	Conditions []ConditionEntry `json:"conditions,omitempty" xml:"conditions>condition,omitempty"`
}

// ConditionEntry is the verdict of one test condition.
type ConditionEntry struct {
	Name     string `json:"name" xml:"name,attr"`
	Typename string `json:"typename" xml:"typename,attr"`
	Role     string `json:"role" xml:"role,attr"`
	Status   string `json:"status" xml:"status,attr"`
}
