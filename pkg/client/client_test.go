package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeDaemon(t *testing.T, handlers map[string]http.HandlerFunc) *Client {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, h := range handlers {
		mux.HandleFunc(pattern, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL})
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestIsReachable(t *testing.T) {
	c := newFakeDaemon(t, map[string]http.HandlerFunc{
		"GET /status": jsonHandler(`{"status":"idle","cli_available":true}`),
	})
	assert.True(t, c.IsReachable(context.Background()))

	down := New(Config{BaseURL: "http://127.0.0.1:1"})
	assert.False(t, down.IsReachable(context.Background()))
}

func TestStatus(t *testing.T) {
	c := newFakeDaemon(t, map[string]http.HandlerFunc{
		"GET /status": jsonHandler(`{"status":"connected","api_url":"http://localhost:9321/","cli_available":true}`),
	})
	sum, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "connected", sum.Status)
	assert.Equal(t, "http://localhost:9321/", sum.APIURL)
	assert.True(t, sum.CliAvailable)
}

func TestDebug(t *testing.T) {
	c := newFakeDaemon(t, map[string]http.HandlerFunc{
		"GET /debug": jsonHandler(`{"status":"connected","mode":"path","pid":4242,"start_count":2,"restart_count":1}`),
	})
	dbg, err := c.Debug(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "connected", dbg.Status)
	assert.Equal(t, "path", dbg.Mode)
	assert.Equal(t, 4242, dbg.PID)
	assert.Equal(t, 2, dbg.StartCount)
	assert.Equal(t, 1, dbg.RestartCount)
}

func TestDoctor(t *testing.T) {
	c := newFakeDaemon(t, map[string]http.HandlerFunc{
		"GET /doctor": jsonHandler(`[{"name":"agents","url":"http://localhost:9321/agent","ok":true,"summary":"HTTP 200 array[3]","elapsed_ms":12}]`),
	})
	outcomes, err := c.Doctor(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "agents", outcomes[0].Name)
	assert.True(t, outcomes[0].OK)
	assert.Equal(t, "HTTP 200 array[3]", outcomes[0].Summary)
}

func TestDoctorConflict(t *testing.T) {
	c := newFakeDaemon(t, map[string]http.HandlerFunc{
		"GET /doctor": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"no api address resolved; is the cli connected?"}`))
		},
	})
	_, err := c.Doctor(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no api address resolved")
}

func TestStartStopRestart(t *testing.T) {
	var calls []string
	record := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			calls = append(calls, name)
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}
	c := newFakeDaemon(t, map[string]http.HandlerFunc{
		"POST /start":   record("start"),
		"POST /stop":    record("stop"),
		"POST /restart": record("restart"),
	})

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Restart(ctx))
	assert.Equal(t, []string{"start", "stop", "restart"}, calls)
}

func TestNonOKWithoutErrorBody(t *testing.T) {
	c := newFakeDaemon(t, map[string]http.HandlerFunc{
		"GET /status": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
	})
	_, err := c.Status(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}
