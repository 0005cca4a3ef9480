package worker

import (
	"errors"
)

var (
	ErrNotChild          = errors.New("process was not spawned by a supervisor")
	ErrNoListener        = errors.New("no shared listener inherited")
	ErrInvalidControlFD  = errors.New("invalid control file descriptor")
	ErrMissingCommand    = errors.New("missing worker command")
	ErrMissingListenAddr = errors.New("missing listen address")
	ErrSpawnerClosed     = errors.New("spawner closed")
	ErrProcessNotRunning = errors.New("process not running")
)

const (
	// EnvChild marks a process as spawned by a supervisor.
	EnvChild = "HELLOJOE_CHILD"

	// EnvChildFD holds the file descriptor number of the control socket.
	EnvChildFD = "HELLOJOE_CHILD_FD"

	// EnvListenFDs follows the systemd socket activation convention:
	// LISTEN_FDS=1 means fd 3 is the shared listening socket.
	EnvListenFDs = "LISTEN_FDS"

	// listenFD is the first inherited file descriptor.
	listenFD = 3
)

// Event is a lifecycle notification emitted by a worker handle.
type Event interface {
	event()
}

// OnlineEvent is emitted once the worker process is up and running.
type OnlineEvent struct{}

// ListeningEvent is emitted once a shared-socket worker accepts
// connections on the inherited listener.
type ListeningEvent struct {
	// Address is the host part of the bound address
	Address string

	// Port is the bound port, 0 for non-tcp listeners
	Port int
}

// ExitEvent is the last event emitted by a worker handle.
type ExitEvent struct {
	// Code is the exit code of the process
	Code *int

	// Signal is the signal that caused the process to exit
	Signal *int

	// Voluntary is set if the worker requested its own shutdown,
	// or if the supervisor stopped it deliberately
	Voluntary bool
}

func (OnlineEvent) event()    {}
func (ListeningEvent) event() {}
func (ExitEvent) event()      {}
