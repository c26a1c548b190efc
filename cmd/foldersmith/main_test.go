package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getProjectRoot returns the absolute path to the project root.
func getProjectRoot(t *testing.T) string {
	dir, err := os.Getwd()
	require.NoError(t, err)
	// Walk up to find go.mod
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	t.Fatal("go.mod not found")
	return ""
}

// buildBinary compiles the command into a temp dir.
func buildBinary(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping build test in short mode")
	}

	binPath := filepath.Join(t.TempDir(), "foldersmith")
	buildCmd := exec.Command("go", "build", "-o", binPath, ".")
	buildCmd.Dir = filepath.Join(getProjectRoot(t), "cmd", "foldersmith")
	output, err := buildCmd.CombinedOutput()
	require.NoError(t, err, "build failed: %s", string(output))
	return binPath
}

// isolatedEnv keeps the binary away from the developer's own configuration.
func isolatedEnv(t *testing.T) []string {
	home := t.TempDir()
	var env []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "FOLDERSMITH_") || strings.HasPrefix(kv, "SLACK_") ||
			strings.HasPrefix(kv, "QUIP_") || strings.HasPrefix(kv, "GOOGLE_") {
			continue
		}
		env = append(env, kv)
	}
	return append(env, "HOME="+home, "XDG_CONFIG_HOME="+home, "NO_COLOR=1")
}

func TestMainHelpFlag(t *testing.T) {
	bin := buildBinary(t)

	cmd := exec.Command(bin, "--help")
	cmd.Env = isolatedEnv(t)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err)
	assert.Contains(t, string(out), "foldersmith")
	assert.Contains(t, string(out), "clone")
}

func TestMainUnknownCommand(t *testing.T) {
	bin := buildBinary(t)

	cmd := exec.Command(bin, "unknown-command-xyz")
	cmd.Env = isolatedEnv(t)
	out, err := cmd.CombinedOutput()
	assert.Error(t, err)
	assert.Contains(t, strings.ToLower(string(out)), "unknown")
}

// TestMainEntryPoints tests that the main function is properly defined.
func TestMainEntryPoints(t *testing.T) {
	_ = main
}

func TestBinaryCloneLocal(t *testing.T) {
	bin := buildBinary(t)
	work := t.TempDir()
	data := filepath.Join(work, "data")
	require.NoError(t, os.MkdirAll(filepath.Join(data, "ClientA"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(data, "Template", "Design"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(data, "Template", "Brief.md"), []byte("brief"), 0o644))

	cfg := "backends: [local]\nlocal:\n  root: " + data + "\naudit:\n  path: " + filepath.Join(work, "audit.jsonl") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(work, "foldersmith.yaml"), []byte(cfg), 0o600))

	run := func(args ...string) (string, error) {
		cmd := exec.Command(bin, args...)
		cmd.Dir = work
		cmd.Env = isolatedEnv(t)
		out, err := cmd.CombinedOutput()
		return string(out), err
	}

	out, err := run("clone", "ClientA", "Template", "NewProject")
	require.NoError(t, err, out)
	assert.Contains(t, out, "local storage folder structure cloned!")
	assert.FileExists(t, filepath.Join(data, "ClientA", "NewProject", "Brief.md"))
	assert.DirExists(t, filepath.Join(data, "ClientA", "NewProject", "Design"))

	out, err = run("clone", "ClientA", "Template", "NewProject")
	assert.Error(t, err)
	assert.Contains(t, out, "already exists in 'ClientA'")

	out, err = run("--json", "audit", "verify")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"records": 2`)
}
