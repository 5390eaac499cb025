package mcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnServerProcessPipesAndKill(t *testing.T) {
	proc, err := SpawnServerProcess(&ServerConfig{
		ID:      "cat",
		Command: "cat",
	})
	require.NoError(t, err)

	assert.NotZero(t, proc.PID())
	assert.False(t, proc.Exited())

	proc.Kill()
	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after kill")
	}
	assert.True(t, proc.Exited())

	// Killing an already-dead process is a safe no-op.
	proc.Kill()
}

func TestSpawnServerProcessBadCommand(t *testing.T) {
	_, err := SpawnServerProcess(&ServerConfig{
		ID:      "bad",
		Command: "/nonexistent/spyglass-test-binary",
	})
	assert.Error(t, err)
}

func TestSpawnServerProcessValidatesConfig(t *testing.T) {
	_, err := SpawnServerProcess(&ServerConfig{ID: "nocmd"})
	assert.Error(t, err)

	_, err = SpawnServerProcess(&ServerConfig{Command: "cat"})
	assert.Error(t, err)
}

func TestSpawnServerProcessCapturesStderr(t *testing.T) {
	proc, err := SpawnServerProcess(&ServerConfig{
		ID:      "noisy",
		Command: "sh",
		Args:    []string{"-c", "echo boom >&2; sleep 5"},
	})
	require.NoError(t, err)
	defer proc.Kill()

	assert.Eventually(t, func() bool {
		return proc.LastStderrLine() == "boom"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestSpawnServerProcessEnvAndDir(t *testing.T) {
	dir := t.TempDir()
	proc, err := SpawnServerProcess(&ServerConfig{
		ID:         "envy",
		Command:    "sh",
		Args:       []string{"-c", `echo "$SPYGLASS_TEST_VAR $(pwd)" >&2; sleep 5`},
		Env:        map[string]string{"SPYGLASS_TEST_VAR": "wired"},
		WorkingDir: dir,
	})
	require.NoError(t, err)
	defer proc.Kill()

	assert.Eventually(t, func() bool {
		return proc.LastStderrLine() == "wired "+dir
	}, 3*time.Second, 20*time.Millisecond)
}
