package gazectl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execRoot runs the root command with args, capturing combined
// stdout/stderr, same shape as dh-cli's unit_tests/cmd_test.go.
func execRoot(t *testing.T, args ...string) (out string, err error) {
	t.Helper()
	c := NewRootCmd()
	buf := new(bytes.Buffer)
	c.SetOut(buf)
	c.SetErr(buf)
	c.SetArgs(args)
	err = c.Execute()
	return buf.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execRoot(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "gazectl v")
}

func TestHelp(t *testing.T) {
	out, err := execRoot(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
}

func TestHelpListsSubcommands(t *testing.T) {
	out, err := execRoot(t, "--help")
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "open") && strings.Contains(out, "inspect") && strings.Contains(out, "view"))
}

func TestUnknownArgs(t *testing.T) {
	_, err := execRoot(t, "nonexistent")
	require.Error(t, err)
}

func TestOpenRequiresExactlyOneArg(t *testing.T) {
	_, err := execRoot(t, "open")
	require.Error(t, err)

	_, err = execRoot(t, "open", "a", "b")
	require.Error(t, err)
}
