package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)

	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.Execute()

	return stdout.String(), stderr.String(), err
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := executeCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "dev")
}

func TestServeRejectsUnknownPlatform(t *testing.T) {
	_, _, err := executeCLI(t, t.TempDir(), "serve", "--interface", "carrier-pigeon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown platform")
}

func TestServeMattermostRequiresURL(t *testing.T) {
	_, _, err := executeCLI(t, t.TempDir(), "serve", "--interface", "mattermost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mattermost.url")
}

func TestSendRequiresMessage(t *testing.T) {
	_, _, err := executeCLI(t, t.TempDir(), "send")
	require.Error(t, err)
}

func TestTokenSetRequiresValueFlag(t *testing.T) {
	_, _, err := executeCLI(t, t.TempDir(), "token", "set")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag(s) \"value\" not set")
}
