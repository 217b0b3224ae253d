// Package opsup supervises an externally-installed CLI that serves a local
// HTTP/JSON API on an address it only announces at runtime. It locates or
// launches the CLI, discovers the port and path prefix it actually bound to,
// confirms the API is serving, and keeps a stable status and API URL
// available to consumers across crashes and restarts.
package opsup

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opsup/opsup/internal/metrics"
	"github.com/opsup/opsup/internal/probe"
	iapi "github.com/opsup/opsup/internal/server"
	"github.com/opsup/opsup/internal/state"
	"github.com/opsup/opsup/internal/store"
	storefactory "github.com/opsup/opsup/internal/store/factory"
	"github.com/opsup/opsup/internal/supervisor"
)

// Re-export core types for external consumers. These are aliases so
// conversions are zero-cost.

type Config = supervisor.Config

type Options = supervisor.Options

type Status = state.Status

type Snapshot = state.Snapshot

type DebugInfo = supervisor.DebugInfo

type ProbeResult = probe.Result

type EndpointResult = probe.EndpointResult

type StoreConfig = store.Config

const (
	StatusIdle       = state.StatusIdle
	StatusStarting   = state.StatusStarting
	StatusDetecting  = state.StatusDetecting
	StatusConnecting = state.StatusConnecting
	StatusConnected  = state.StatusConnected
	StatusError      = state.StatusError
	StatusStopped    = state.StatusStopped
)

// Supervisor is a thin facade over internal/supervisor.Supervisor. It
// provides a stable public API for embedding.
type Supervisor struct{ inner *supervisor.Supervisor }

// New constructs the Supervisor composition root. Construct it once, inject
// it into consumers, and own its teardown via Shutdown.
func New(cfg Config, opts Options) *Supervisor {
	return &Supervisor{inner: supervisor.New(cfg, opts)}
}

func (s *Supervisor) Start() error    { return s.inner.Start() }
func (s *Supervisor) Stop() error     { return s.inner.Stop() }
func (s *Supervisor) Restart() error  { return s.inner.Restart() }
func (s *Supervisor) Shutdown() error { return s.inner.Shutdown() }

func (s *Supervisor) Status() Status           { return s.inner.Status() }
func (s *Supervisor) Snapshot() Snapshot       { return s.inner.Snapshot() }
func (s *Supervisor) APIURL() string           { return s.inner.APIURL() }
func (s *Supervisor) WorkingDirectory() string { return s.inner.WorkingDirectory() }
func (s *Supervisor) CliAvailable() bool       { return s.inner.CliAvailable() }
func (s *Supervisor) DebugInfo() DebugInfo     { return s.inner.DebugInfo() }

func (s *Supervisor) Subscribe(fn func(Status, string)) func() {
	return s.inner.Subscribe(fn)
}

func (s *Supervisor) Diagnose(ctx context.Context) []EndpointResult {
	return s.inner.Diagnose(ctx)
}

// NewHTTPServer starts the local control API for this supervisor.
func NewHTTPServer(addr, basePath string, s *Supervisor) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, s.inner)
}

// NewStore opens the cross-session key-value store described by cfg.
func NewStore(cfg StoreConfig) (store.Store, error) { return storefactory.New(cfg) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
