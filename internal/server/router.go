package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opsup/opsup/internal/metrics"
	"github.com/opsup/opsup/internal/supervisor"
)

// Router exposes the supervisor to local tooling over HTTP.
// Endpoints:
//
//	GET  {basePath}/status   current status + manager state snapshot
//	GET  {basePath}/debug    full debug snapshot (mode, pid, counters)
//	GET  {basePath}/doctor   concurrent diagnostic probes of all endpoints
//	POST {basePath}/start    enqueue the start sequence (returns immediately)
//	POST {basePath}/stop     stop the CLI and settle in stopped
//	POST {basePath}/restart  stop then start
//	GET  {basePath}/metrics  Prometheus metrics
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sup      *supervisor.Supervisor
	basePath string
}

// NewRouter constructs a Router with a configurable basePath.
func NewRouter(sup *supervisor.Supervisor, basePath string) *Router {
	return &Router{sup: sup, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/debug", r.handleDebug)
	group.GET("/doctor", r.handleDoctor)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/restart", r.handleRestart)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, sup *supervisor.Supervisor) (*http.Server, error) {
	r := NewRouter(sup, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type statusResp struct {
	Status       string `json:"status"`
	APIURL       string `json:"api_url,omitempty"`
	CliAvailable bool   `json:"cli_available"`
	LastError    string `json:"last_error,omitempty"`
}

func (r *Router) handleStatus(c *gin.Context) {
	snap := r.sup.Snapshot()
	writeJSON(c, http.StatusOK, statusResp{
		Status:       snap.Status.String(),
		APIURL:       r.sup.APIURL(),
		CliAvailable: r.sup.CliAvailable(),
		LastError:    snap.LastError,
	})
}

func (r *Router) handleDebug(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.DebugInfo())
}

func (r *Router) handleDoctor(c *gin.Context) {
	results := r.sup.Diagnose(c.Request.Context())
	if results == nil {
		writeJSON(c, http.StatusConflict, errorResp{Error: "no api address resolved; is the cli connected?"})
		return
	}
	writeJSON(c, http.StatusOK, results)
}

func (r *Router) handleStart(c *gin.Context) {
	if err := r.sup.Start(); err != nil {
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	if err := r.sup.Stop(); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRestart(c *gin.Context) {
	if err := r.sup.Restart(); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
