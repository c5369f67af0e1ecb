package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandWiring(t *testing.T) {
	root := NewRootCommand(DefaultConfig())

	want := []string{"backup", "restore", "status", "sizes", "rows", "system", "send-test", "version", "completion"}
	var got []string
	for _, c := range root.Commands() {
		got = append(got, c.Name())
	}
	for _, name := range want {
		assert.Contains(t, got, name)
	}
}

func TestVersionCommand(t *testing.T) {
	buf := &bytes.Buffer{}
	root := NewRootCommand(Config{OutputWriter: buf})
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "dbopsctl")
}

func TestVersionCommandJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	root := NewRootCommand(Config{OutputWriter: buf})
	root.SetArgs([]string{"version", "-o", "json"})

	require.NoError(t, root.Execute())
	assert.True(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "{"))
	assert.Contains(t, buf.String(), "\"version\"")
}

func TestCompletionCommand(t *testing.T) {
	buf := &bytes.Buffer{}
	root := NewRootCommand(Config{OutputWriter: buf})
	root.SetArgs([]string{"completion", "bash"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "dbopsctl")
}

func TestCompletionUnsupportedShell(t *testing.T) {
	root := NewRootCommand(Config{OutputWriter: &bytes.Buffer{}})
	root.SetArgs([]string{"completion", "tcsh"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported shell")
}

func TestMissingConfigFails(t *testing.T) {
	root := NewRootCommand(Config{
		ConfigPath:   "/nonexistent/config.yaml",
		OutputWriter: &bytes.Buffer{},
	})
	root.SetArgs([]string{"status"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config")
}
