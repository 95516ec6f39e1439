package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"bake", "validate", "history"}, names)
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--format", "xml", "validate", "drums.yaml"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestRootCommand_ValidateThroughRoot(t *testing.T) {
	path := writeManifest(t, drumsManifest)

	root := NewRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"validate", path})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "✓ manifest valid: drums")
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("yaml"))
}

func TestNewLogger_VerboseEnablesDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	newLogger(&RootOptions{Verbose: true}, buf).Debug("hello", "k", 1)
	assert.Contains(t, buf.String(), "level=DEBUG msg=hello k=1")

	buf.Reset()
	newLogger(&RootOptions{}, buf).Debug("quiet")
	assert.Empty(t, buf.String())
}
