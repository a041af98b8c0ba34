package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(prev)
		SetLevel(INFO)
		SetRedactPII(true)
	})
	return &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]string {
	t.Helper()
	var out []map[string]string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]string
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLog_LevelFilter(t *testing.T) {
	buf := capture(t)
	SetLevel(WARN)

	Info("dropped")
	Warn("kept", "list_id", "l-1")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "kept", lines[0]["msg"])
	assert.Equal(t, "l-1", lines[0]["list_id"])
}

func TestLog_RedactsContactDetails(t *testing.T) {
	buf := capture(t)

	Info("lead created",
		"email", "jane.doe@example.com",
		"phone", "(555) 010-1234",
		"error", `duplicate key for "bob.smith@example.org"`,
	)

	line := decodeLines(t, buf)[0]
	assert.Equal(t, "ja***@example.com", line["email"])
	assert.Equal(t, "***1234", line["phone"])
	assert.Equal(t, `duplicate key for "bo***@example.org"`, line["error"])
}

func TestLog_RedactionDisabled(t *testing.T) {
	buf := capture(t)
	SetRedactPII(false)

	Info("raw", "email", "jane@example.com")
	assert.Equal(t, "jane@example.com", decodeLines(t, buf)[0]["email"])
}

func TestLog_OddFieldCount(t *testing.T) {
	buf := capture(t)
	Info("odd", "a", "1", "dangling")
	line := decodeLines(t, buf)[0]
	assert.Equal(t, "1", line["a"])
	assert.Equal(t, "dangling", line["!BADKEY"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" Warning "))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel(""))
	assert.Equal(t, INFO, ParseLevel("verbose"))
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}

func TestRedactPhone(t *testing.T) {
	assert.Equal(t, "***4567", RedactPhone("+1 555-123-4567"))
	assert.Equal(t, "***", RedactPhone("123"))
}
