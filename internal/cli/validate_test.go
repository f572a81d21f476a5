package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodRulesYAML = `
rules:
  - id: r-capacity
    name: Capacity watch
    enabled: true
    trigger:
      type: capacity_shortage
      conditions:
        threshold: 10
    action:
      type: send_notification
      params:
        message: capacity short
        severity: warning
`

const badRulesYAML = `
rules:
  - id: r-bad
    name: Bad kind
    trigger:
      type: weather_alert
      conditions: {}
    action:
      type: create_log
      params:
        message: m
`

func writeRulesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand_Valid(t *testing.T) {
	path := writeRulesFile(t, goodRulesYAML)

	out, err := runCommand(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 rule(s) valid")
}

func TestValidateCommand_Invalid(t *testing.T) {
	path := writeRulesFile(t, badRulesYAML)

	out, err := runCommand(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "weather_alert")
}

func TestValidateCommand_InvalidJSONFormat(t *testing.T) {
	path := writeRulesFile(t, badRulesYAML)

	out, err := runCommand(t, "--format", "json", "validate", path)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status, "a clean run with findings is still a well-formed response")
}

func TestValidateCommand_MissingFile(t *testing.T) {
	_, err := runCommand(t, "validate", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRootCommand_RejectsUnknownFormat(t *testing.T) {
	_, err := runCommand(t, "--format", "xml", "validate", "whatever.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
