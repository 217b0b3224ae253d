package state

import (
	"sync"
	"time"

	"github.com/opsup/opsup/internal/metrics"
)

// Status is the supervisor lifecycle state.
//
// State Machine:
// Idle -> Starting -> Detecting -> Connecting -> Connected
// Error is reachable from Starting/Detecting/Connecting/Connected.
// Stopped is reachable from any state via an explicit stop.
type Status int

const (
	StatusIdle Status = iota
	StatusStarting
	StatusDetecting
	StatusConnecting
	StatusConnected
	StatusError
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusStarting:
		return "starting"
	case StatusDetecting:
		return "detecting"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the status as its lowercase name.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Snapshot is a copy of the manager state at one point in time. DetectedPort
// zero means no detection has succeeded; APIPrefix empty with a nonzero port
// means the API is served at the root. LastExitCode is nil until the CLI
// process has terminated at least once in the current run.
type Snapshot struct {
	Status           Status    `json:"status"`
	CliPath          string    `json:"cli_path,omitempty"`
	DetectedPort     int       `json:"detected_port,omitempty"`
	APIPrefix        string    `json:"api_prefix,omitempty"`
	WorkingDirectory string    `json:"working_directory,omitempty"`
	StartCount       int       `json:"start_count"`
	RestartCount     int       `json:"restart_count"`
	LastStartAt      time.Time `json:"last_start_at,omitzero"`
	LastConnectedAt  time.Time `json:"last_connected_at,omitzero"`
	LastExitCode     *int      `json:"last_exit_code,omitempty"`
	LastError        string    `json:"last_error,omitempty"`
}

// Store owns the single authoritative manager state. All mutation goes
// through Update/Transition so no reader ever observes a torn record, and
// every status change is broadcast to subscribers in the order it occurred.
type Store struct {
	mu  sync.Mutex
	s   Snapshot
	bus *Broadcaster

	// notifyMu is held across a transition's mutation and its broadcast,
	// so observers see transitions in store order even when Transition is
	// called from multiple goroutines. Observers may read the Store (only
	// mu is needed for that) but must not transition it.
	notifyMu sync.Mutex
}

func NewStore() *Store {
	return &Store{
		s:   Snapshot{Status: StatusIdle},
		bus: NewBroadcaster(),
	}
}

// Snapshot returns a copy of the current state.
func (st *Store) Snapshot() Snapshot {
	st.mu.Lock()
	s := st.s
	st.mu.Unlock()
	return s
}

// Status returns the current lifecycle status.
func (st *Store) Status() Status {
	st.mu.Lock()
	s := st.s.Status
	st.mu.Unlock()
	return s
}

// Update applies fn to the state under lock without changing status.
// Observers are not notified; status changes must go through Transition.
func (st *Store) Update(fn func(*Snapshot)) {
	st.mu.Lock()
	status := st.s.Status
	fn(&st.s)
	st.s.Status = status
	st.mu.Unlock()
}

// Transition mutates state via fn (may be nil) and moves to the given
// status. Entering Connected stamps LastConnectedAt and clears LastError;
// entering Stopped clears the detected port and prefix. The resulting
// snapshot is broadcast synchronously to all subscribers.
func (st *Store) Transition(to Status, fn func(*Snapshot)) Snapshot {
	st.notifyMu.Lock()
	defer st.notifyMu.Unlock()

	st.mu.Lock()
	from := st.s.Status
	if fn != nil {
		fn(&st.s)
	}
	st.s.Status = to
	switch to {
	case StatusConnected:
		st.s.LastConnectedAt = time.Now()
		st.s.LastError = ""
	case StatusStopped:
		st.s.DetectedPort = 0
		st.s.APIPrefix = ""
	}
	snap := st.s
	st.mu.Unlock()

	metrics.RecordStateTransition(from.String(), to.String())
	metrics.SetCurrentState(from.String(), false)
	metrics.SetCurrentState(to.String(), true)

	st.bus.Notify(snap.Status, snap.LastError)
	return snap
}

// Subscribe registers an observer for status transitions. The returned
// function removes the observer; it is safe to call more than once.
func (st *Store) Subscribe(fn Observer) func() {
	return st.bus.Subscribe(fn)
}
