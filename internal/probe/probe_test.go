package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","version":"1.2.3"}`))
	}))
	defer srv.Close()

	p := New(nil)
	res := p.Probe(context.Background(), srv.URL, time.Second)
	assert.True(t, res.OK)
	assert.Equal(t, http.StatusOK, res.HTTPStatus)
	assert.Equal(t, "object{2}", res.Shape)
	assert.Contains(t, res.Summary, "HTTP 200")
}

func TestProbeNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res := New(nil).Probe(context.Background(), srv.URL, time.Second)
	assert.False(t, res.OK)
	assert.Equal(t, http.StatusInternalServerError, res.HTTPStatus)
	assert.Equal(t, "HTTP 500", res.Summary)
}

func TestProbeTimeoutSummary(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	timeout := 50 * time.Millisecond
	start := time.Now()
	res := New(nil).Probe(context.Background(), srv.URL, timeout)
	elapsed := time.Since(start)

	assert.False(t, res.OK)
	assert.Equal(t, fmt.Sprintf("timeout after %dms", timeout.Milliseconds()), res.Summary)
	// resolves within t + epsilon, not hanging on the server
	assert.Less(t, elapsed, timeout+500*time.Millisecond)
}

func TestProbeConnectionRefused(t *testing.T) {
	// Grab a port that nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := New(nil).Probe(context.Background(), url, time.Second)
	assert.False(t, res.OK)
	assert.Contains(t, res.Summary, "connection failed")
	assert.NotContains(t, res.Summary, "timeout after")
}

func TestProbeCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	res := New(nil).Probe(ctx, srv.URL, 5*time.Second)
	assert.False(t, res.OK)
	assert.Equal(t, "cancelled", res.Summary)
}

func TestIsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`<html></html>`))
	}))
	defer srv.Close()

	p := New(nil)
	assert.True(t, p.IsJSON(context.Background(), srv.URL+"/api/", time.Second))
	assert.False(t, p.IsJSON(context.Background(), srv.URL+"/", time.Second))
}

func TestDescribeJSON(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`[]`, "array[0]"},
		{`[1,2,3]`, "array[3]"},
		{`{"a":1}`, "object{1}"},
		{`"hello"`, ShapeScalar},
		{`42`, ShapeScalar},
		{``, ShapeEmpty},
		{`   `, ShapeEmpty},
		{`{broken`, ShapeParseError},
		{`[1,2`, ShapeParseError},
		{`<html>`, ShapeParseError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DescribeJSON([]byte(tc.body)), "body %q", tc.body)
	}
}

func TestBuildURL(t *testing.T) {
	spec := EndpointSpec{Name: "project", Path: "/project/current", IncludeWorkDir: true}
	got := BuildURL("http://localhost:9321/", spec, "/work/my project")
	assert.Equal(t, "http://localhost:9321/project/current?directory=%2Fwork%2Fmy+project", got)

	spec.IncludeWorkDir = false
	assert.Equal(t, "http://localhost:9321/project/current", BuildURL("http://localhost:9321/", spec, "/work"))
}

func TestDiagnoseRunsConcurrently(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			<-block
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	defer close(block)

	specs := []EndpointSpec{
		{Name: "a", Path: "/a", Timeout: time.Second},
		{Name: "b", Path: "/b", Timeout: time.Second},
		{Name: "c", Path: "/c", Timeout: time.Second},
		{Name: "slow", Path: "/slow", Timeout: 200 * time.Millisecond},
	}

	start := time.Now()
	results := New(nil).Diagnose(context.Background(), srv.URL, "", specs)
	elapsed := time.Since(start)

	// max of per-endpoint timeouts, not their sum
	assert.Less(t, elapsed, time.Second)
	require.Len(t, results, 4)

	byName := map[string]EndpointResult{}
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.True(t, byName["a"].OK)
	assert.True(t, byName["b"].OK)
	assert.True(t, byName["c"].OK)
	assert.False(t, byName["slow"].OK)
	assert.Contains(t, byName["slow"].Summary, "timeout after 200ms")

	// results are sorted by name
	for i := 1; i < len(results); i++ {
		assert.Less(t, results[i-1].Name, results[i].Name)
	}
}

func TestDefaultEndpointsTable(t *testing.T) {
	specs := DefaultEndpoints()
	names := map[string]EndpointSpec{}
	for _, s := range specs {
		names[s.Name] = s
	}
	require.Contains(t, names, "providers")
	assert.Equal(t, "/config/providers", names["providers"].Path)
	require.Contains(t, names, "agents")
	assert.Greater(t, names["agents"].Timeout, DefaultTimeout)
	require.Contains(t, names, "sessionStatus")
	assert.Equal(t, "/session/status", names["sessionStatus"].Path)
}
