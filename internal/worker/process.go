package worker

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Handle is a spawned worker process, as seen by the supervisor.
type Handle interface {
	// ID returns the identifier of the worker, i.e. its process id.
	ID() int

	// Events returns the lifecycle notifications of the worker. The
	// channel delivers exactly one ExitEvent and is closed afterwards.
	Events() <-chan Event

	// Stop marks the exit of the worker as voluntary and sends a
	// SIGTERM signal to it. The method returns immediately, without
	// waiting for the process to stop.
	Stop() error

	// Kill marks the exit of the worker as voluntary and sends a
	// SIGKILL signal to it.
	Kill() error
}

// eventBuffer holds online, listening and exit without blocking the sender.
const eventBuffer = 4

type startConfig struct {
	// Cmd is the path or name of the binary to execute
	Cmd string

	// Args is the list of arguments to pass to the command
	Args []string

	// Env is a list of additional KEY=value pairs
	Env []string

	// ExtraFiles are inherited by the child starting at fd 3,
	// the control socket is appended after them
	ExtraFiles []*os.File

	// OnlineAtStart emits the online event as soon as the process
	// has been started, instead of waiting for the child to report
	OnlineAtStart bool
}

type process struct {
	pid int
	cmd *exec.Cmd

	events    chan Event
	eventLock sync.Mutex
	closed    bool

	online    sync.Once
	voluntary atomic.Bool
	done      chan struct{}

	control *rpc.Server
	conn    net.Conn

	log *zap.Logger
}

var _ Handle = (*process)(nil)

func startProcess(config startConfig, log *zap.Logger) (*process, error) {
	if config.Cmd == "" {
		return nil, ErrMissingCommand
	}

	conn, childEnd, err := controlPair()
	if err != nil {
		return nil, err
	}

	// the child owns its end after start
	defer childEnd.Close()

	extraFiles := append(append([]*os.File{}, config.ExtraFiles...), childEnd)
	controlFD := listenFD + len(extraFiles) - 1

	cmd := exec.Command(config.Cmd, config.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = extraFiles
	cmd.Env = childEnv(append(
		config.Env,
		EnvChild+"=1",
		EnvChildFD+"="+strconv.Itoa(controlFD),
	)...)

	initCmd(cmd)

	p := &process{
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		conn:   conn,
	}

	control, err := serveControl(conn, p)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		control.Stop()
		conn.Close()
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	p.pid = cmd.Process.Pid
	p.cmd = cmd
	p.control = control
	p.log = log.Named("proc").With(zap.Int("pid", p.pid))

	if config.OnlineAtStart {
		p.markOnline()
	}

	go p.wait()

	return p, nil
}

func (p *process) ID() int {
	return p.pid
}

func (p *process) Events() <-chan Event {
	return p.events
}

func (p *process) Stop() error {
	return p.signal(unix.SIGTERM)
}

func (p *process) Kill() error {
	return p.signal(unix.SIGKILL)
}

func (p *process) signal(signal unix.Signal) error {
	p.voluntary.Store(true)

	// signalling should report success if the process terminated
	// by the time the request is made
	select {
	case <-p.done:
		p.log.Debug("process already terminated")
		return nil
	default:
	}

	p.log.Debug("sending signal", zap.Stringer("signal", signal))

	if err := sendSignal(p.pid, signal); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("failed to send %s: %w", signal, err)
	}

	return nil
}

func (p *process) wait() {
	// block until the process exits
	err := p.cmd.Wait()

	// the child cannot talk to us anymore
	p.control.Stop()
	p.conn.Close()

	evt := getExitEvent(err, p.voluntary.Load())

	p.eventLock.Lock()
	p.events <- evt
	p.closed = true
	close(p.events)
	p.eventLock.Unlock()

	close(p.done)
}

func (p *process) markOnline() {
	p.online.Do(func() {
		p.emit(OnlineEvent{})
	})
}

func (p *process) emit(evt Event) {
	p.eventLock.Lock()
	defer p.eventLock.Unlock()

	if p.closed {
		return
	}

	p.events <- evt
}

// childEnv returns the environment of the current process, stripped of
// variables describing inherited descriptors, plus the given pairs.
func childEnv(extra ...string) []string {
	inherited := os.Environ()
	env := make([]string, 0, len(inherited)+len(extra))

	for _, kv := range inherited {
		key, _, _ := strings.Cut(kv, "=")
		switch key {
		case EnvChild, EnvChildFD, EnvListenFDs, "LISTEN_PID", "LISTEN_FDNAMES":
			continue
		}
		env = append(env, kv)
	}

	return append(env, extra...)
}
