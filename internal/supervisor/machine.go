package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/opsup/opsup/internal/launcher"
	"github.com/opsup/opsup/internal/metrics"
	"github.com/opsup/opsup/internal/state"
)

// runStateMachine serializes all lifecycle actions. Commands are handled one
// at a time, so a restart arriving mid-sequence waits for the in-flight
// stop/start to settle and two spawns can never overlap for the same
// working directory.
func (s *Supervisor) runStateMachine() {
	defer close(s.doneChan)

	for cmd := range s.cmdChan {
		var err error
		switch cmd.action {
		case actionStart:
			err = s.handleStart()
		case actionStop:
			err = s.handleStop()
		case actionRestart:
			err = s.handleRestart()
		case actionShutdown:
			err = s.handleStop()
			if cmd.reply != nil {
				cmd.reply <- err
			}
			return
		}
		if cmd.reply != nil {
			cmd.reply <- err
		}
	}
}

// handleStart begins the start sequence. Failures during the sequence are
// reported through status transitions, not through the returned error; only
// a start colliding with an in-flight sequence is rejected here.
func (s *Supervisor) handleStart() error {
	s.mu.Lock()
	runDone := s.runDone
	h := s.handle
	s.mu.Unlock()

	if runDone != nil {
		select {
		case <-runDone:
		default:
			return fmt.Errorf("start already in progress")
		}
	}
	if h != nil && h.Alive() {
		return fmt.Errorf("cli already running (pid %d)", h.PID())
	}

	s.store.Transition(state.StatusStarting, func(ms *state.Snapshot) {
		ms.StartCount++
		ms.LastStartAt = time.Now()
		ms.LastExitCode = nil
		// A previous run's address must not survive into this one;
		// APIURL stays empty until detection succeeds again.
		ms.DetectedPort = 0
		ms.APIPrefix = ""
	})
	metrics.IncStart()

	path, mode, err := launcher.FindCLI(s.cfg.CliName, s.cfg.CliPaths)
	if err != nil {
		s.store.Transition(state.StatusError, func(ms *state.Snapshot) {
			ms.CliPath = ""
			ms.LastError = "cli not found"
		})
		return nil
	}
	s.setMode(mode)
	s.store.Update(func(ms *state.Snapshot) { ms.CliPath = path })

	handle, err := s.launcher.Launch(path, s.cfg.WorkingDirectory, s.cfg.Args)
	if err != nil {
		s.store.Transition(state.StatusError, func(ms *state.Snapshot) {
			ms.LastError = err.Error()
		})
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.handle = handle
	s.runCancel = cancel
	s.runDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.run(runCtx, handle)
	}()
	return nil
}

// run drives one process lifetime: detect the address, confirm it serves the
// API, then monitor. Cancellation of ctx (by stop) short-circuits every
// phase; run never transitions state after its context is cancelled, the
// stop sequence owns the final transition.
func (s *Supervisor) run(ctx context.Context, h *launcher.Handle) {
	s.store.Transition(state.StatusDetecting, nil)

	ep, err := s.resolver.Resolve(ctx, h.Lines())
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.failRun(h, err.Error())
		return
	}
	s.logger.Info("api address detected", "port", ep.Port, "prefix", ep.Prefix)

	s.store.Transition(state.StatusConnecting, func(ms *state.Snapshot) {
		ms.DetectedPort = ep.Port
		ms.APIPrefix = ep.Prefix
	})

	url := ep.URL()
	if ok := s.confirm(ctx, h, url); !ok {
		return
	}
	if ctx.Err() != nil {
		return
	}

	s.store.Transition(state.StatusConnected, nil)
	s.logger.Info("cli connected", "url", url)

	s.monitor(ctx, h, url)
}

// confirm probes the resolved address until it answers, bounded by the
// configured attempt count. A process exit during confirmation fails the
// run immediately.
func (s *Supervisor) confirm(ctx context.Context, h *launcher.Handle, url string) bool {
	var lastSummary string
	for attempt := 0; attempt < s.cfg.ConnectAttempts; attempt++ {
		if ctx.Err() != nil {
			return false
		}
		if _, exited := h.ExitState(); exited {
			s.failRun(h, "cli exited before the api came up")
			return false
		}
		res := s.prober.Probe(ctx, url, s.cfg.ConnectTimeout)
		metrics.ObserveProbeDuration("health", float64(res.ElapsedMS)/1000)
		if res.OK {
			return true
		}
		metrics.IncProbeFailure("health")
		lastSummary = res.Summary
		select {
		case <-time.After(s.cfg.ConnectInterval):
		case <-ctx.Done():
			return false
		}
	}
	if ctx.Err() != nil {
		return false
	}
	s.failRun(h, "health check failed: "+lastSummary)
	return false
}

// failRun transitions to error, folding in the exit code when the process
// already terminated so a crash is distinguishable from an unresponsive API.
func (s *Supervisor) failRun(h *launcher.Handle, msg string) {
	code, exited := h.ExitState()
	s.store.Transition(state.StatusError, func(ms *state.Snapshot) {
		if exited {
			ms.LastExitCode = &code
			ms.LastError = fmt.Sprintf("%s (cli exited with code %d)", msg, code)
		} else {
			ms.LastError = msg
		}
	})
	if exited && !h.StopRequested() {
		metrics.IncUnexpectedExit()
	}
	s.logger.Warn("start sequence failed", "error", msg, "exited", exited)
}

// monitor watches the running CLI: an unexpected exit or a run of failed
// health probes demotes the status to error. An error caused only by probes
// leaves the process running; monitoring continues so a crash afterwards is
// still recorded.
func (s *Supervisor) monitor(ctx context.Context, h *launcher.Handle, url string) {
	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-h.Exit():
			if ctx.Err() != nil || h.StopRequested() {
				return
			}
			metrics.IncUnexpectedExit()
			code := ev.Code
			s.store.Transition(state.StatusError, func(ms *state.Snapshot) {
				ms.LastExitCode = &code
				ms.LastError = fmt.Sprintf("cli exited unexpectedly with code %d", code)
			})
			s.logger.Error("cli exited unexpectedly", "code", code)
			return

		case <-ticker.C:
			if s.store.Status() != state.StatusConnected {
				continue
			}
			res := s.prober.Probe(ctx, url, s.cfg.ConnectTimeout)
			metrics.ObserveProbeDuration("health", float64(res.ElapsedMS)/1000)
			if res.OK {
				failures = 0
				continue
			}
			metrics.IncProbeFailure("health")
			failures++
			s.logger.Warn("health probe failed", "summary", res.Summary, "failures", failures)
			if failures >= s.cfg.HealthThreshold {
				summary := res.Summary
				s.store.Transition(state.StatusError, func(ms *state.Snapshot) {
					ms.LastError = "health check failed: " + summary
				})
			}
		}
	}
}

// handleStop interrupts any in-flight sequence, terminates the process and
// settles in stopped. Idempotent: stopping a never-started or already
// stopped supervisor only re-affirms the stopped status.
func (s *Supervisor) handleStop() error {
	s.mu.Lock()
	h := s.handle
	cancel := s.runCancel
	done := s.runDone
	s.handle = nil
	s.runCancel = nil
	s.runDone = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var exitCode *int
	if h != nil {
		code := s.launcher.Terminate(h, s.cfg.TerminateGrace)
		if _, exited := h.ExitState(); exited {
			exitCode = &code
		}
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(s.cfg.TerminateGrace + time.Second):
			s.logger.Warn("run sequence did not settle before stop timeout")
		}
	}

	s.store.Transition(state.StatusStopped, func(ms *state.Snapshot) {
		if exitCode != nil {
			ms.LastExitCode = exitCode
		}
	})
	metrics.IncStop()
	return nil
}

// handleRestart composes stop then start, counting the restart exactly once
// no matter how many internal retries the start performs.
func (s *Supervisor) handleRestart() error {
	s.store.Update(func(ms *state.Snapshot) { ms.RestartCount++ })
	metrics.IncRestart()
	if err := s.handleStop(); err != nil {
		return err
	}
	return s.handleStart()
}
