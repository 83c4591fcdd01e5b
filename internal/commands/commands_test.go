package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/glint-ls/internal/version"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writeProgram(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prog.glint")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, version.Name+" "+version.Version+"\n", out)
}

func TestRun(t *testing.T) {
	path := writeProgram(t, "fn twice(x) {\n    return x * 2\n}\nprint(\"result\", twice(21))\n")

	out, _, err := execute(t, "", "run", path)
	require.NoError(t, err)
	assert.Equal(t, "result 42\n", out)
}

func TestRun_RuntimeError(t *testing.T) {
	path := writeProgram(t, "print(\"start\")\nlet xs = [1]\nlet y = xs[3]\n")

	out, _, err := execute(t, "", "run", path)
	require.Error(t, err)
	assert.Equal(t, "start\n", out)
	assert.Contains(t, err.Error(), "line 3")
	assert.Contains(t, err.Error(), "out of range")
}

func TestRun_Errors(t *testing.T) {
	_, _, err := execute(t, "", "run", filepath.Join(t.TempDir(), "missing.glint"))
	assert.ErrorContains(t, err, "failed to load program")

	_, _, err = execute(t, "", "run", writeProgram(t, "let x = (1 +\n"))
	assert.ErrorContains(t, err, "failed to load program")

	_, _, err = execute(t, "", "run")
	assert.Error(t, err)
}

func TestConfigFlag(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "glint.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[engine]\nmax_call_depth = 5\n"), 0o600))
	path := writeProgram(t, "fn down(n) {\n    return down(n + 1)\n}\ndown(0)\n")

	_, _, err := execute(t, "", "--config", cfgPath, "run", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depth")

	_, _, err = execute(t, "", "--config", filepath.Join(t.TempDir(), "nope.json"), "version")
	assert.Error(t, err)
}

func TestLSP_ExitOnEOF(t *testing.T) {
	frame := func(body string) string {
		return "Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body
	}
	in := frame(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`) +
		frame(`{"jsonrpc":"2.0","id":2,"method":"shutdown"}`) +
		frame(`{"jsonrpc":"2.0","method":"exit"}`)

	out, _, err := execute(t, in, "--log-level", "error", "lsp")
	require.NoError(t, err)
	assert.Contains(t, out, `"id":1`)
	assert.Contains(t, out, `"capabilities"`)
	assert.Contains(t, out, `"id":2`)
}
