package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runValidateCmd(t *testing.T, format string, path string) (string, error) {
	t.Helper()
	cmd := NewValidateCommand(&RootOptions{Format: format})
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{path})
	err := cmd.Execute()
	return out.String(), err
}

func TestValidate_Valid(t *testing.T) {
	path := writeManifest(t, drumsManifest)

	out, err := runValidateCmd(t, "text", path)
	require.NoError(t, err)
	assert.Equal(t, "✓ manifest valid: drums (2 tasks, 2 tables, lifo, 128 Hz)\n", out)
}

func TestValidate_ValidJSON(t *testing.T) {
	path := writeManifest(t, drumsManifest)

	out, err := runValidateCmd(t, "json", path)
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   ValidateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, ValidateResult{
		Valid: true, Manifest: "drums", Order: "lifo", SampleRate: 128, Tables: 2, Tasks: 2,
	}, resp.Data)
}

func TestValidate_InvalidFieldsListed(t *testing.T) {
	path := writeManifest(t, `order: random
tasks:
  - {patch: kick.yaml, duration: -1}
`)

	out, err := runValidateCmd(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ manifest invalid (3 problems)")
	assert.Contains(t, out, "  order: must be lifo or fifo")
	assert.Contains(t, out, "  tasks[0].array: is required")
	assert.Contains(t, out, "  tasks[0].duration: must be a non-negative number")
}

func TestValidate_InvalidJSONDetails(t *testing.T) {
	path := writeManifest(t, `tasks:
  - {array: kick, duration: 1}
`)

	out, err := runValidateCmd(t, "json", path)
	require.Error(t, err)

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string             `json:"code"`
			Details []ValidationDetail `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_INVALID", resp.Error.Code)
	assert.Equal(t, []ValidationDetail{{Field: "tasks[0].patch", Message: "is required"}}, resp.Error.Details)
}

func TestValidate_DecodeErrorIsCommandError(t *testing.T) {
	path := writeManifest(t, "tasks: [\n")

	out, err := runValidateCmd(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E_DECODE]")
}

func TestValidate_NotFound(t *testing.T) {
	out, err := runValidateCmd(t, "text", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E_NOT_FOUND]")
}

func TestValidate_CUEManifest(t *testing.T) {
	out, err := runValidateCmd(t, "text", filepath.Join("..", "manifest", "testdata", "drums.cue"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ manifest valid")
	assert.Contains(t, out, "fifo")
}
