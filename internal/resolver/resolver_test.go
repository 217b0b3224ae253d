package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsup/opsup/internal/probe"
)

func TestParseLine(t *testing.T) {
	cases := []struct {
		line   string
		port   int
		prefix string
		ok     bool
	}{
		{"opencode server listening on http://127.0.0.1:9321", 9321, "", true},
		{"listening on http://localhost:4096/api", 4096, "/api", true},
		{"serving at https://0.0.0.0:8080/", 8080, "", true},
		{"listening on port 9321", 9321, "", true},
		{"Listening: 5000", 5000, "", true},
		{"ready in 230ms", 0, "", false},
		{"some unrelated line", 0, "", false},
		{"", 0, "", false},
	}
	for _, tc := range cases {
		port, prefix, ok := ParseLine(tc.line)
		assert.Equal(t, tc.ok, ok, "line %q", tc.line)
		if tc.ok {
			assert.Equal(t, tc.port, port, "line %q", tc.line)
			assert.Equal(t, tc.prefix, prefix, "line %q", tc.line)
		}
	}
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "http://localhost:9321/", Endpoint{Port: 9321}.URL())
	assert.Equal(t, "http://localhost:4096/api/", Endpoint{Port: 4096, Prefix: "/api"}.URL())
}

func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return port
}

func newResolver(cfg Config) *Resolver {
	return New(nil, probe.New(nil), cfg)
}

func TestResolveFromOutputLineRootPrefix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()
	port := serverPort(t, srv)

	lines := make(chan string, 4)
	lines <- "booting"
	lines <- fmt.Sprintf("listening on http://127.0.0.1:%d", port)

	r := newResolver(Config{Deadline: 3 * time.Second})
	ep, err := r.Resolve(context.Background(), lines)
	require.NoError(t, err)
	assert.Equal(t, port, ep.Port)
	assert.Equal(t, "", ep.Prefix)
	assert.Equal(t, fmt.Sprintf("http://localhost:%d/", port), ep.URL())
}

func TestResolvePrefixDiscovery(t *testing.T) {
	// Root serves HTML, /api serves JSON: the /api prefix must win.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/" {
			_, _ = w.Write([]byte(`{"ok":true}`))
			return
		}
		_, _ = w.Write([]byte(`<html></html>`))
	}))
	defer srv.Close()
	port := serverPort(t, srv)

	lines := make(chan string, 1)
	lines <- fmt.Sprintf("listening on port %d", port)

	r := newResolver(Config{Deadline: 3 * time.Second, PrefixCandidates: []string{"/api"}})
	ep, err := r.Resolve(context.Background(), lines)
	require.NoError(t, err)
	assert.Equal(t, "/api", ep.Prefix)
}

func TestResolveFallbackPorts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()
	port := serverPort(t, srv)

	// No line ever matches; the stream closes as if the CLI printed nothing.
	lines := make(chan string)
	close(lines)

	r := newResolver(Config{
		Deadline:      3 * time.Second,
		FallbackPorts: []int{1, port}, // port 1 refuses, then the real one
		ProbeTimeout:  300 * time.Millisecond,
	})
	ep, err := r.Resolve(context.Background(), lines)
	require.NoError(t, err)
	assert.Equal(t, port, ep.Port)
}

func TestResolveDetectionFailed(t *testing.T) {
	lines := make(chan string)
	close(lines)

	r := newResolver(Config{Deadline: 300 * time.Millisecond, ProbeTimeout: 50 * time.Millisecond})
	_, err := r.Resolve(context.Background(), lines)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDetectionFailed))
}

func TestResolveDeadline(t *testing.T) {
	lines := make(chan string) // never delivers, never closes

	r := newResolver(Config{Deadline: 200 * time.Millisecond})
	start := time.Now()
	_, err := r.Resolve(context.Background(), lines)
	assert.True(t, errors.Is(err, ErrDetectionFailed))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestResolveCancelled(t *testing.T) {
	lines := make(chan string)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	r := newResolver(Config{Deadline: 10 * time.Second})
	_, err := r.Resolve(ctx, lines)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNormalizePrefix(t *testing.T) {
	assert.Equal(t, "", normalizePrefix(""))
	assert.Equal(t, "", normalizePrefix("/"))
	assert.Equal(t, "/api", normalizePrefix("api"))
	assert.Equal(t, "/api", normalizePrefix("/api/"))
}
