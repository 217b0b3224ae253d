package launcher

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/opsup/opsup/internal/logger"
)

var (
	// ErrCliNotFound means no configured location resolved to the CLI
	// binary; no process was spawned.
	ErrCliNotFound = errors.New("cli not found")
	// ErrSpawnFailed wraps an OS-level launch failure.
	ErrSpawnFailed = errors.New("spawn failed")
)

// Modes describing how the CLI binary was located.
const (
	ModePath   = "path"   // found on $PATH
	ModeConfig = "config" // explicit path from configuration
)

// ExitEvent is emitted exactly once when the child terminates. Code is the
// process exit code, or -1 when it could not be determined.
type ExitEvent struct {
	Code int
	Err  error
}

// Handle owns one spawned CLI process. The OS process is driven exclusively
// through Launch/Terminate; no other component signals it directly.
type Handle struct {
	cmd      *exec.Cmd
	lines    chan string
	exitCh   chan ExitEvent
	waitDone chan struct{}

	mu            sync.Mutex
	exited        bool
	exitCode      int
	stopRequested bool
	outCloser     io.WriteCloser
	errCloser     io.WriteCloser
}

// PID returns the child's process id, or 0 if it never started.
func (h *Handle) PID() int {
	if h == nil || h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Lines streams merged stdout/stderr of the child, one line per receive.
// The channel closes after the process exits and output drains.
func (h *Handle) Lines() <-chan string { return h.lines }

// Exit delivers the single exit event for this handle.
func (h *Handle) Exit() <-chan ExitEvent { return h.exitCh }

// Alive reports whether the child has not yet been reaped.
func (h *Handle) Alive() bool {
	if h == nil || h.cmd == nil || h.cmd.Process == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.exited
}

// ExitState reports whether the child has been reaped and, if so, its exit
// code.
func (h *Handle) ExitState() (code int, exited bool) {
	if h == nil {
		return 0, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode, h.exited
}

// StopRequested reports whether Terminate has been called for this handle,
// which distinguishes an orderly shutdown from a crash.
func (h *Handle) StopRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopRequested
}

func (h *Handle) setStopRequested() {
	h.mu.Lock()
	h.stopRequested = true
	h.mu.Unlock()
}

func (h *Handle) markExited(code int) {
	h.mu.Lock()
	h.exited = true
	h.exitCode = code
	h.mu.Unlock()
}

func (h *Handle) closeWriters() {
	h.mu.Lock()
	if h.outCloser != nil {
		_ = h.outCloser.Close()
		h.outCloser = nil
	}
	if h.errCloser != nil {
		_ = h.errCloser.Close()
		h.errCloser = nil
	}
	h.mu.Unlock()
}

// Launcher spawns and terminates CLI processes, capturing their output.
type Launcher struct {
	logger  *slog.Logger
	capture logger.CaptureConfig
}

func New(log *slog.Logger, capture logger.CaptureConfig) *Launcher {
	if log == nil {
		log = slog.Default()
	}
	return &Launcher{logger: log, capture: capture}
}

// FindCLI resolves the CLI binary. Explicit candidate paths from
// configuration win over a $PATH lookup of name. A candidate that is a
// directory is searched for name inside it.
func FindCLI(name string, candidates []string) (path string, mode string, err error) {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if info, statErr := os.Stat(c); statErr == nil {
			if info.IsDir() {
				p := filepath.Join(c, name)
				if isExecutable(p) {
					return p, ModeConfig, nil
				}
				continue
			}
			if isExecutable(c) {
				return c, ModeConfig, nil
			}
		}
	}
	if p, lookErr := exec.LookPath(name); lookErr == nil {
		return p, ModePath, nil
	}
	return "", "", ErrCliNotFound
}

func isExecutable(p string) bool {
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

// Launch spawns cliPath with the working directory and args, returning a
// Handle whose Lines channel carries merged stdout/stderr and whose Exit
// channel delivers the exit code once. Cancellation is driven through
// Terminate, never by signalling the process directly.
func (l *Launcher) Launch(cliPath, workDir string, args []string) (*Handle, error) {
	// ok: cliPath comes from FindCLI or explicit configuration
	// #nosec G204
	cmd := exec.Command(cliPath, args...)
	if workDir != "" {
		cmd.Dir = workDir
	}
	cmd.Env = os.Environ()
	setProcGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	h := &Handle{
		cmd:      cmd,
		lines:    make(chan string, 64),
		exitCh:   make(chan ExitEvent, 1),
		waitDone: make(chan struct{}),
	}
	outW, errW, _ := l.capture.Writers(filepath.Base(cliPath))
	h.outCloser = outW
	h.errCloser = errW

	if err := cmd.Start(); err != nil {
		h.closeWriters()
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	l.logger.Info("cli started", "path", cliPath, "pid", cmd.Process.Pid, "work_dir", workDir)

	var scanners sync.WaitGroup
	scanners.Add(2)
	go h.scan(stdout, outW, &scanners)
	go h.scan(stderr, errW, &scanners)

	go func() {
		scanners.Wait()
		err := cmd.Wait()
		code := exitCode(err)
		h.markExited(code)
		h.closeWriters()
		close(h.lines)
		h.exitCh <- ExitEvent{Code: code, Err: err}
		close(h.waitDone)
		l.logger.Info("cli exited", "pid", cmd.Process.Pid, "code", code)
	}()

	return h, nil
}

// scan forwards lines from r to the shared line channel, teeing raw output
// to the capture writer when configured. Consumers that fall behind drop
// lines rather than block the child's pipes.
func (h *Handle) scan(r io.Reader, tee io.Writer, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if tee != nil {
			_, _ = tee.Write(append([]byte(line), '\n'))
		}
		select {
		case h.lines <- line:
		default:
		}
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

// Terminate sends a graceful stop signal to the child's process group, waits
// up to grace, then force-kills. It is idempotent: terminating a nil,
// never-started or already-exited handle is a no-op. It returns the exit
// code once the process has been reaped, or -1 if reaping timed out.
func (l *Launcher) Terminate(h *Handle, grace time.Duration) int {
	if h == nil || h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	h.setStopRequested()
	h.mu.Lock()
	exited := h.exited
	code := h.exitCode
	h.mu.Unlock()
	if exited {
		return code
	}

	pid := h.cmd.Process.Pid
	terminateGroup(pid)
	select {
	case <-h.waitDone:
	case <-time.After(grace):
		l.logger.Warn("cli did not stop within grace period, killing", "pid", pid, "grace", grace)
		killGroup(pid)
		select {
		case <-h.waitDone:
		case <-time.After(500 * time.Millisecond):
			return -1
		}
	}
	h.mu.Lock()
	code = h.exitCode
	h.mu.Unlock()
	return code
}
