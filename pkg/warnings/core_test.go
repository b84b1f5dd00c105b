package warnings

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	t.Cleanup(SetWarningWriter(&buf))
	return &buf
}

// TestSetWarningWriter tests swapping and restoring the writer.
func TestSetWarningWriter(t *testing.T) {
	original := WarningWriter()

	var buf bytes.Buffer
	restore := SetWarningWriter(&buf)
	assert.Equal(t, &buf, WarningWriter())
	Warnf("Asterisk %s stopped prematurely\n", "127.0.0.1")
	restore()

	assert.Equal(t, original, WarningWriter())
	assert.Equal(t, "Asterisk 127.0.0.1 stopped prematurely\n", buf.String())

	restore = SetWarningWriter(nil)
	assert.Equal(t, os.Stderr, WarningWriter())
	restore()
}

// TestErrorf tests the ERROR prefix and newline handling.
func TestErrorf(t *testing.T) {
	buf := capture(t)

	Errorf("No pre condition found matching %s", "thread.pre")
	Errorf("already terminated\n")

	assert.Equal(t, "ERROR: No pre condition found matching thread.pre\nERROR: already terminated\n", buf.String())
}

// TestOncef tests that repeated keys are dropped until ResetOnce.
func TestOncef(t *testing.T) {
	buf := capture(t)
	ResetOnce()
	t.Cleanup(ResetOnce)

	assert.True(t, Oncef("dep:fax", "Unknown custom dependency - '%s'\n", "fax"))
	assert.False(t, Oncef("dep:fax", "Unknown custom dependency - '%s'\n", "fax"))
	assert.True(t, Oncef("dep:ipv7", "Unknown custom dependency - '%s'\n", "ipv7"))
	assert.Equal(t, "Unknown custom dependency - 'fax'\nUnknown custom dependency - 'ipv7'\n", buf.String())

	ResetOnce()
	assert.True(t, Oncef("dep:fax", "again\n"))
}
