package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "spindle dev")
}

func TestRunWithConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log: {level: error}
sim:
  ticks: 100000
  processes:
    - name: init
      threads:
        - {priority: normal, entry: 0x401000}
`), 0o644))

	out, err := execute(t, "run", "--config", path, "--ticks", "64")
	require.NoError(t, err)
	require.Contains(t, out, "init")
	require.Contains(t, out, "ticks: 64")
}

func TestRunDefaultWorkload(t *testing.T) {
	out, err := execute(t, "--log-level", "error", "run", "--ticks", "16")
	require.NoError(t, err)
	require.Contains(t, out, "kernel")
	require.Contains(t, out, "ticks: 16")
}

func TestRunRejectsBadConfig(t *testing.T) {
	_, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = execute(t, "run", "--hz", "-3")
	require.Error(t, err)
}
