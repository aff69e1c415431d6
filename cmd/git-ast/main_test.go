package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCleanSmudge(t *testing.T) {
	t.Chdir(t.TempDir())
	src := "def f(a):\n    return a\n"

	blob, err := execute(t, src, "clean", "m.py")
	require.NoError(t, err)
	assert.NotEqual(t, src, blob)

	text, err := execute(t, blob, "smudge", "m.py")
	require.NoError(t, err)
	assert.Equal(t, src, text)

	_, err = execute(t, "def f(:\n", "clean", "m.py")
	assert.Error(t, err)
}

func TestSetup(t *testing.T) {
	t.Chdir(t.TempDir())
	out, err := execute(t, "", "setup")
	require.NoError(t, err)
	assert.Contains(t, out, "*.py filter=ast diff=ast merge=ast\n")
	assert.Contains(t, out, `git config merge.ast.driver "git-ast merge-driver %O %A %B %L %P"`)
}

func TestConfigErrors(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "", "setup", "--log-format", "xml")
	assert.ErrorContains(t, err, "log.format")
}
