package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opsup/opsup/internal/launcher"
	"github.com/opsup/opsup/internal/logger"
	"github.com/opsup/opsup/internal/probe"
	"github.com/opsup/opsup/internal/resolver"
	"github.com/opsup/opsup/internal/state"
)

// Config bounds every suspension point of the supervisor. Zero values get
// defaults from applyDefaults.
type Config struct {
	CliName          string               `mapstructure:"cli_name"`
	CliPaths         []string             `mapstructure:"cli_paths"`
	Args             []string             `mapstructure:"args"`
	WorkingDirectory string               `mapstructure:"working_directory"`
	TerminateGrace   time.Duration        `mapstructure:"terminate_grace"`
	Detection        resolver.Config      `mapstructure:"detection"`
	ConnectAttempts  int                  `mapstructure:"connect_attempts"`
	ConnectInterval  time.Duration        `mapstructure:"connect_interval"`
	ConnectTimeout   time.Duration        `mapstructure:"connect_timeout"`
	HealthInterval   time.Duration        `mapstructure:"health_interval"`
	HealthThreshold  int                  `mapstructure:"health_threshold"`
	Endpoints        []probe.EndpointSpec `mapstructure:"endpoints"`
	Capture          logger.CaptureConfig `mapstructure:"capture"`
}

func (c *Config) applyDefaults() {
	if c.CliName == "" {
		c.CliName = "opencode"
	}
	if len(c.Args) == 0 {
		c.Args = []string{"serve"}
	}
	if c.TerminateGrace <= 0 {
		c.TerminateGrace = 5 * time.Second
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = 5
	}
	if c.ConnectInterval <= 0 {
		c.ConnectInterval = 500 * time.Millisecond
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 2 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 5 * time.Second
	}
	if c.HealthThreshold <= 0 {
		c.HealthThreshold = 3
	}
	if len(c.Endpoints) == 0 {
		c.Endpoints = probe.DefaultEndpoints()
	}
}

// DebugInfo mirrors the manager state for human diagnosis, plus how the CLI
// was located and the live process id.
type DebugInfo struct {
	state.Snapshot
	Mode   string `json:"mode,omitempty"`
	APIURL string `json:"api_url,omitempty"`
	PID    int    `json:"pid,omitempty"`
}

// Supervisor is the composition root: it owns the launcher, resolver, prober
// and state store, and serializes every lifecycle action through a single
// state-machine goroutine so observers never see a torn state.
//
// Start is fire-and-forget: it enqueues the start sequence and returns;
// progress is observable only through status subscriptions. Stop and Restart
// block until their sequence has settled. A restart arriving while a start
// or stop is in flight queues behind it, never races it.
type Supervisor struct {
	cfg      Config
	logger   *slog.Logger
	launcher *launcher.Launcher
	resolver *resolver.Resolver
	prober   *probe.Prober
	store    *state.Store

	cmdChan  chan command
	doneChan chan struct{}

	// mu guards the fields below, shared between the state-machine
	// goroutine and snapshot readers.
	mu        sync.Mutex
	mode      string
	handle    *launcher.Handle
	runCancel context.CancelFunc
	runDone   chan struct{}
}

type commandAction int

const (
	actionStart commandAction = iota
	actionStop
	actionRestart
	actionShutdown
)

type command struct {
	action commandAction
	reply  chan error
}

// Options are the injectable collaborators. Nil fields are constructed from
// cfg.
type Options struct {
	Logger   *slog.Logger
	Launcher *launcher.Launcher
	Prober   *probe.Prober
}

// New builds a Supervisor and starts its state machine. The CLI path is
// resolved eagerly so CliAvailable is meaningful before the first start.
func New(cfg Config, opts Options) *Supervisor {
	cfg.applyDefaults()
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	pr := opts.Prober
	if pr == nil {
		pr = probe.New(log)
	}
	ln := opts.Launcher
	if ln == nil {
		ln = launcher.New(log, cfg.Capture)
	}

	s := &Supervisor{
		cfg:      cfg,
		logger:   log,
		launcher: ln,
		resolver: resolver.New(log, pr, cfg.Detection),
		prober:   pr,
		store:    state.NewStore(),
		cmdChan:  make(chan command, 16),
		doneChan: make(chan struct{}),
	}
	s.store.Update(func(ms *state.Snapshot) {
		ms.WorkingDirectory = cfg.WorkingDirectory
	})
	if path, mode, err := launcher.FindCLI(cfg.CliName, cfg.CliPaths); err == nil {
		s.store.Update(func(ms *state.Snapshot) { ms.CliPath = path })
		s.setMode(mode)
	}

	go s.runStateMachine()
	return s
}

// --- Public contract ---

// Start enqueues the start sequence and returns immediately; it never waits
// for the CLI to come up so a dependent UI can render right away.
func (s *Supervisor) Start() error { return s.send(actionStart) }

// Stop terminates the CLI (if any) and settles in status stopped. It is
// idempotent and also interrupts an in-flight start sequence cleanly.
func (s *Supervisor) Stop() error { return s.send(actionStop) }

// Restart performs stop then start, incrementing the restart counter exactly
// once. Concurrent restarts queue behind any in-progress sequence.
func (s *Supervisor) Restart() error { return s.send(actionRestart) }

// Shutdown stops the CLI and tears down the state machine.
func (s *Supervisor) Shutdown() error { return s.send(actionShutdown) }

func (s *Supervisor) send(a commandAction) error {
	reply := make(chan error, 1)
	select {
	case <-s.doneChan:
		return fmt.Errorf("supervisor shut down")
	default:
	}
	select {
	case s.cmdChan <- command{action: a, reply: reply}:
	case <-s.doneChan:
		return fmt.Errorf("supervisor shut down")
	}
	select {
	case err := <-reply:
		return err
	case <-s.doneChan:
		return fmt.Errorf("supervisor shut down")
	}
}

// Status returns the current lifecycle status. Pure read, never blocks on
// I/O.
func (s *Supervisor) Status() state.Status { return s.store.Status() }

// Snapshot returns a copy of the full manager state.
func (s *Supervisor) Snapshot() state.Snapshot { return s.store.Snapshot() }

// APIURL returns the base URL of the detected API, or "" while no address
// is resolved.
func (s *Supervisor) APIURL() string {
	snap := s.store.Snapshot()
	if snap.DetectedPort == 0 {
		return ""
	}
	return resolver.Endpoint{Port: snap.DetectedPort, Prefix: snap.APIPrefix}.URL()
}

// WorkingDirectory returns the project path this instance is scoped to.
func (s *Supervisor) WorkingDirectory() string {
	return s.store.Snapshot().WorkingDirectory
}

// CliAvailable reports whether a CLI binary has been resolved.
func (s *Supervisor) CliAvailable() bool {
	return s.store.Snapshot().CliPath != ""
}

// Subscribe registers a status observer; the returned function removes it.
func (s *Supervisor) Subscribe(fn state.Observer) func() {
	return s.store.Subscribe(fn)
}

// DebugInfo returns the read-only debug snapshot.
func (s *Supervisor) DebugInfo() DebugInfo {
	snap := s.store.Snapshot()
	info := DebugInfo{
		Snapshot: snap,
		Mode:     s.getMode(),
		APIURL:   s.APIURL(),
	}
	if h := s.currentHandle(); h != nil && h.Alive() {
		info.PID = h.PID()
	}
	return info
}

// Diagnose probes the configured named endpoints concurrently against the
// current API URL. With no resolved address it returns nil.
func (s *Supervisor) Diagnose(ctx context.Context) []probe.EndpointResult {
	base := s.APIURL()
	if base == "" {
		return nil
	}
	return s.prober.Diagnose(ctx, base, s.WorkingDirectory(), s.cfg.Endpoints)
}

func (s *Supervisor) setMode(mode string) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
}

func (s *Supervisor) getMode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Supervisor) currentHandle() *launcher.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}
