package main

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI runs main() in a helper subprocess so the exit code can be asserted
func runCLI(t *testing.T, args ...string) (string, int) {
	t.Helper()

	cmd := exec.Command(os.Args[0], append([]string{"-test.run=TestHelperProcess", "--"}, args...)...)
	cmd.Env = append(os.Environ(),
		"GO_WANT_HELPER_PROCESS=1",
		"NO_COLOR=1",
		"TERM=dumb",
		"LOCALSYNC_CONFIG_PATH="+filepath.Join(t.TempDir(), "none.json"),
	)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	if err == nil {
		return buf.String(), 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return buf.String(), ee.ExitCode()
	}
	t.Fatalf("unexpected error running CLI: %v", err)
	return "", 0
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	idx := -1
	for i, a := range os.Args {
		if a == "--" {
			idx = i
			break
		}
	}
	if idx == -1 {
		os.Exit(2)
	}

	os.Args = append([]string{"localsync"}, os.Args[idx+1:]...)
	main()
	os.Exit(0)
}

func TestCLI_ExitCodes(t *testing.T) {
	out, code := runCLI(t, "version")
	assert.Equal(t, 0, code, out)
	assert.Contains(t, out, "LocalSync")

	root := t.TempDir()
	plan := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(plan, []byte("items:\n  - op: remove\n    path: Missing\n    dir: true\n  - op: rename\n    path: nope\n    to: nada\n"), 0o644))

	out, code = runCLI(t, "--dir", root, "--log-level", "error", "apply", plan)
	assert.Equal(t, 1, code, out)
	assert.Contains(t, out, "Error:")
	assert.Contains(t, out, "1 of 2 items")
}
