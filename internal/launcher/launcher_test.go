//go:build !windows

package launcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsup/opsup/internal/logger"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "fakecli")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755))
	return p
}

func TestFindCLINotFound(t *testing.T) {
	_, _, err := FindCLI("definitely-not-a-real-binary-5f2a", nil)
	assert.True(t, errors.Is(err, ErrCliNotFound))
}

func TestFindCLIFromCandidateFile(t *testing.T) {
	p := writeScript(t, "exit 0\n")
	path, mode, err := FindCLI("fakecli", []string{p})
	require.NoError(t, err)
	assert.Equal(t, p, path)
	assert.Equal(t, ModeConfig, mode)
}

func TestFindCLIFromCandidateDir(t *testing.T) {
	p := writeScript(t, "exit 0\n")
	path, mode, err := FindCLI("fakecli", []string{filepath.Dir(p)})
	require.NoError(t, err)
	assert.Equal(t, p, path)
	assert.Equal(t, ModeConfig, mode)
}

func TestFindCLIFromPath(t *testing.T) {
	// /bin/sh is always on PATH in test environments.
	path, mode, err := FindCLI("sh", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, path)
	assert.Equal(t, ModePath, mode)
}

func TestLaunchStreamsLinesAndExit(t *testing.T) {
	p := writeScript(t, "echo listening on port 9321\necho extra >&2\nexit 3\n")
	l := New(nil, logger.CaptureConfig{})

	h, err := l.Launch(p, t.TempDir(), nil)
	require.NoError(t, err)
	assert.Positive(t, h.PID())

	var lines []string
	for line := range h.Lines() {
		lines = append(lines, line)
	}
	assert.Contains(t, lines, "listening on port 9321")
	assert.Contains(t, lines, "extra")

	select {
	case ev := <-h.Exit():
		assert.Equal(t, 3, ev.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("no exit event")
	}
	code, exited := h.ExitState()
	assert.True(t, exited)
	assert.Equal(t, 3, code)
	assert.False(t, h.Alive())
}

func TestLaunchWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	p := writeScript(t, "pwd\nexit 0\n")
	l := New(nil, logger.CaptureConfig{})

	h, err := l.Launch(p, dir, nil)
	require.NoError(t, err)

	var lines []string
	for line := range h.Lines() {
		lines = append(lines, line)
	}
	require.NotEmpty(t, lines)
	got, err := filepath.EvalSymlinks(lines[0])
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLaunchSpawnFailed(t *testing.T) {
	l := New(nil, logger.CaptureConfig{})
	_, err := l.Launch(filepath.Join(t.TempDir(), "missing"), "", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSpawnFailed))
}

func TestTerminateGraceful(t *testing.T) {
	p := writeScript(t, "trap 'exit 0' TERM\nwhile true; do sleep 0.1; done\n")
	l := New(nil, logger.CaptureConfig{})

	h, err := l.Launch(p, "", nil)
	require.NoError(t, err)
	require.True(t, h.Alive())

	code := l.Terminate(h, 3*time.Second)
	assert.Equal(t, 0, code)
	assert.True(t, h.StopRequested())
	assert.False(t, h.Alive())
}

func TestTerminateEscalatesToKill(t *testing.T) {
	p := writeScript(t, "trap '' TERM\nwhile true; do sleep 0.1; done\n")
	l := New(nil, logger.CaptureConfig{})

	h, err := l.Launch(p, "", nil)
	require.NoError(t, err)

	code := l.Terminate(h, 200*time.Millisecond)
	assert.Equal(t, -1, code) // killed, no normal exit status
	assert.False(t, h.Alive())
}

func TestTerminateIdempotent(t *testing.T) {
	l := New(nil, logger.CaptureConfig{})

	// Nil handle is a no-op.
	assert.Equal(t, 0, l.Terminate(nil, time.Second))

	// Already-exited handle returns the recorded code without signalling.
	p := writeScript(t, "exit 7\n")
	h, err := l.Launch(p, "", nil)
	require.NoError(t, err)
	<-h.Exit()
	assert.Equal(t, 7, l.Terminate(h, time.Second))
	assert.Equal(t, 7, l.Terminate(h, time.Second))
}
