package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const testScript = `
handlers:
  A: {}
  B: {action: fail}
steps:
  - subscribe: {event: click, handler: A}
  - subscribe: {event: click, handler: B}
  - subscribe: {handler: A}
  - publish: {event: click, data: 42}
  - expect: {calls: [A, B], rejected: 1}
`

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunCommand(t *testing.T) {
	scriptPath := writeFile(t, "script.yaml", testScript)

	stdout, stderr, err := execute(t, "run", scriptPath, "--log-level", "warn")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "A", gjson.Get(lines[0], "handler").String())
	assert.Equal(t, int64(42), gjson.Get(lines[0], "value").Int())
	assert.Equal(t, "B", gjson.Get(lines[1], "handler").String())

	// one validation warning and one handler failure, info is filtered out
	assert.Contains(t, stderr, "subscribe: event is required")
	assert.Contains(t, stderr, "event handler failed")
	assert.NotContains(t, stderr, "script finished")
}

func TestRunCommand_MetricsAndHistory(t *testing.T) {
	scriptPath := writeFile(t, "script.yaml", testScript)
	configPath := writeFile(t, "config.toml", "logFormat = \"json\"\n\n[metrics]\nnamespace = \"test\"\n")
	historyPath := filepath.Join(t.TempDir(), "history.log")

	stdout, _, err := execute(t, "--config", configPath, "run", scriptPath, "--metrics", "--log-history", historyPath)
	require.NoError(t, err)

	assert.Contains(t, stdout, `test_event_publish_total{event="click"} 1`)
	assert.Contains(t, stdout, `test_event_handler_failures_total{event="click"} 1`)
	assert.Contains(t, stdout, `test_event_invalid_arguments_total{op="subscribe"} 1`)

	history, err := os.ReadFile(historyPath)
	require.NoError(t, err)
	assert.Contains(t, string(history), `"message":"script finished"`)
	assert.Contains(t, string(history), `"calls":2`)
}

func TestRunCommand_Errors(t *testing.T) {
	t.Run("failed expectation", func(t *testing.T) {
		scriptPath := writeFile(t, "script.yaml", "handlers:\n  A: {}\nsteps:\n  - expect: {calls: [A]}\n")
		_, _, err := execute(t, "run", scriptPath)
		assert.EqualError(t, err, "step 1: expected calls [A], got []")
	})

	t.Run("missing script", func(t *testing.T) {
		_, _, err := execute(t, "run", filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad config", func(t *testing.T) {
		scriptPath := writeFile(t, "script.yaml", testScript)
		configPath := writeFile(t, "config.yaml", "logFormat: xml\n")
		_, _, err := execute(t, "--config", configPath, "run", scriptPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error loading config")
	})

	t.Run("bad log level flag", func(t *testing.T) {
		scriptPath := writeFile(t, "script.yaml", testScript)
		stdout, stderr, err := execute(t, "run", scriptPath, "--log-level", "loud")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `invalid --log-level "loud"`)
		assert.Empty(t, stdout)
		assert.NotContains(t, stderr, "script finished")
	})

	t.Run("requires a script", func(t *testing.T) {
		_, _, err := execute(t, "run")
		assert.Error(t, err)
	})
}

func TestRunCommand_LogLevelFlagIsCaseInsensitive(t *testing.T) {
	scriptPath := writeFile(t, "script.yaml", testScript)
	_, stderr, err := execute(t, "run", scriptPath, "--log-level", "ERROR")
	require.NoError(t, err)
	assert.Contains(t, stderr, "event handler failed")
	assert.NotContains(t, stderr, "subscribe: event is required")
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "version: 0 (abcd1234), built at unknown\n", stdout)
}
