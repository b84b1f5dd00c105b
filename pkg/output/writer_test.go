package output

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRunResult() *RunResult {
	return &RunResult{
		Summary: RunSummary{Total: 2, Passed: 1, Failed: 1, Duration: "3.2s"},
		Tests: []RunEntry{
			{Name: "channels/basic", Status: "Passed", Duration: "1.1s"},
			{
				Name:     "sip/options",
				Status:   "Failed",
				Duration: "2.1s",
				Reasons:  []string{"Test Condition Channel failed", "Fail token present: x"},
				Conditions: []ConditionEntry{
					{Name: "Channel", Typename: "channel.post", Role: "POST", Status: "Failed"},
				},
			},
		},
	}
}

// TestWriteRunResult_JSON tests that the JSON form round-trips.
func TestWriteRunResult_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRunResult(&buf, FormatJSON, sampleRunResult()))

	var decoded RunResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 2, decoded.Summary.Total)
	require.Len(t, decoded.Tests, 2)
	assert.Equal(t, "channel.post", decoded.Tests[1].Conditions[0].Typename)
}

// TestWriteRunResult_XML tests the XML element layout.
func TestWriteRunResult_XML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRunResult(&buf, FormatXML, sampleRunResult()))

	out := buf.String()
	assert.Contains(t, out, "<runResult>")
	assert.Contains(t, out, "<reason>Fail token present: x</reason>")
	assert.Contains(t, out, `<condition name="Channel" typename="channel.post" role="POST" status="Failed"></condition>`)

	var decoded RunResult
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded.Tests, 2)
}

// TestWriteRunResult_CSV tests that reasons share one cell.
func TestWriteRunResult_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRunResult(&buf, FormatCSV, sampleRunResult()))
	assert.Equal(t,
		"TEST,STATUS,DURATION,REASONS\n"+
			"channels/basic,Passed,1.1s,\n"+
			"sip/options,Failed,2.1s,Test Condition Channel failed; Fail token present: x\n",
		buf.String())
}

// TestWriteTestListResult tests every structured format of the list result.
func TestWriteTestListResult(t *testing.T) {
	result := &TestListResult{
		Summary: TestListSummary{SuiteRoot: "/suite", Total: 1},
		Tests: []TestListEntry{
			{Name: "sip/options", Tags: []string{"sip", "chan_sip"}, ExpectPass: true, Summary: "OPTIONS ping"},
		},
	}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteTestListResult(&buf, FormatJSON, result))
		assert.Contains(t, buf.String(), `"tags":["sip","chan_sip"]`)
	})

	t.Run("xml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteTestListResult(&buf, FormatXML, result))
		assert.Contains(t, buf.String(), "<tag>chan_sip</tag>")
		assert.Contains(t, buf.String(), "<suiteRoot>/suite</suiteRoot>")
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteTestListResult(&buf, FormatCSV, result))
		assert.Equal(t,
			"TEST,TAGS,EXPECT_PASS,LEGACY,SKIP,SUMMARY,ERROR\n"+
				"sip/options,sip chan_sip,true,false,,OPTIONS ping,\n",
			buf.String())
	})
}

// TestWriteResult_UnsupportedFormat tests that table is not a structured format.
func TestWriteResult_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.EqualError(t, WriteRunResult(&buf, FormatTable, &RunResult{}), "unsupported format: table")
	assert.EqualError(t, WriteTestListResult(&buf, FormatTable, &TestListResult{}), "unsupported format: table")
}
