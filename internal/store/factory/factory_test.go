package factory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsup/opsup/internal/store"
)

func TestNewDefaultsToMemory(t *testing.T) {
	s, err := New(store.Config{})
	require.NoError(t, err)
	assert.IsType(t, &store.Memory{}, s)
}

func TestNewMemoryExplicit(t *testing.T) {
	s, err := New(store.Config{Type: " Memory "})
	require.NoError(t, err)
	assert.IsType(t, &store.Memory{}, s)
}

func TestNewSqlite(t *testing.T) {
	s, err := New(store.Config{Type: "sqlite", Path: filepath.Join(t.TempDir(), "kv.db")})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestNewSqliteMissingPath(t *testing.T) {
	_, err := New(store.Config{Type: "sqlite"})
	require.Error(t, err)
}

func TestNewPostgresMissingDSN(t *testing.T) {
	_, err := New(store.Config{Type: "postgresql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dsn")
}

func TestNewUnsupported(t *testing.T) {
	_, err := New(store.Config{Type: "redis"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store type")
}
