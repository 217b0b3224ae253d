package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRootCommands(t *testing.T) {
	root := buildRoot()
	assert.Equal(t, "opsup", root.Use)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "start", "stop", "restart", "status", "doctor"} {
		assert.Contains(t, names, want)
	}
}

func TestServeFlags(t *testing.T) {
	root := buildRoot()
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	for _, name := range []string{"config", "workdir", "no-start"} {
		assert.NotNil(t, serve.Flags().Lookup(name), "missing flag %s", name)
	}
}

func TestClientFlagsDefaults(t *testing.T) {
	root := buildRoot()
	status, _, err := root.Find([]string{"status"})
	require.NoError(t, err)
	f := status.Flags().Lookup("api-url")
	require.NotNil(t, f)
	assert.Equal(t, "http://127.0.0.1:7654", f.DefValue)
}

func TestOrNone(t *testing.T) {
	assert.Equal(t, "(none)", orNone(""))
	assert.Equal(t, "/usr/bin/opencode", orNone("/usr/bin/opencode"))
}
