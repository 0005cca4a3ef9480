package worker

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Spawner creates new worker processes.
type Spawner interface {
	Spawn(ctx context.Context) (Handle, error)
}

// SpawnConfig selects and configures the spawn strategy.
type SpawnConfig struct {
	// Command is the executable of independent workers. If empty,
	// workers re-execute the current program and share a socket.
	Command string

	// Args are the arguments for Command
	Args []string

	// Listen is the address shared-socket workers accept on
	Listen string

	// Executable overrides the program shared-socket workers run.
	// Defaults to the current executable.
	Executable string

	// ExecutableArgs overrides the arguments of Executable.
	// Defaults to the arguments of the current process.
	ExecutableArgs []string

	// Env are additional KEY=value pairs passed to every worker
	Env []string
}

// NewSpawner selects the spawn strategy once, based on whether
// an independent worker command is configured.
func NewSpawner(config SpawnConfig, log *zap.Logger) (Spawner, error) {
	if config.Command != "" {
		return NewIndependentSpawner(config, log), nil
	}

	return NewSharedSocketSpawner(config, log)
}

// IndependentSpawner launches an arbitrary executable per worker.
// No socket is shared, the child establishes its own listeners.
type IndependentSpawner struct {
	command string
	args    []string
	env     []string

	log *zap.Logger
}

var _ Spawner = (*IndependentSpawner)(nil)

func NewIndependentSpawner(config SpawnConfig, log *zap.Logger) *IndependentSpawner {
	return &IndependentSpawner{
		command: config.Command,
		args:    config.Args,
		env:     config.Env,
		log:     log.Named("spawner_independent"),
	}
}

func (s *IndependentSpawner) Spawn(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to spawn worker: %w", err)
	}

	p, err := startProcess(startConfig{
		Cmd:  s.command,
		Args: s.args,
		Env:  append([]string{}, s.env...),
		// an external executable may not speak the control protocol
		OnlineAtStart: true,
	}, s.log)
	if err != nil {
		return nil, err
	}

	s.log.Debug("spawned worker as child process",
		zap.Int("pid", p.ID()),
		zap.String("command", s.command),
		zap.Strings("args", s.args),
	)

	return p, nil
}

// SharedSocketSpawner re-executes the current program for every worker
// and hands each one the same listening socket, so that all workers
// accept connections on the same address.
type SharedSocketSpawner struct {
	executable string
	args       []string
	env        []string

	lock     sync.Mutex
	listener net.Listener
	file     *os.File

	log *zap.Logger
}

var _ Spawner = (*SharedSocketSpawner)(nil)

// NewSharedSocketSpawner binds the listen address and returns a spawner
// that passes the socket to each worker.
func NewSharedSocketSpawner(config SpawnConfig, log *zap.Logger) (*SharedSocketSpawner, error) {
	if config.Listen == "" {
		return nil, ErrMissingListenAddr
	}

	executable := config.Executable
	args := config.ExecutableArgs

	if executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve executable: %w", err)
		}
		executable = exe
		args = os.Args[1:]
	}

	listener, err := net.Listen("tcp", config.Listen)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	file, err := listener.(*net.TCPListener).File()
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to obtain listener file: %w", err)
	}

	log = log.Named("spawner_shared")
	log.Info("bound shared socket", zap.Stringer("address", listener.Addr()))

	return &SharedSocketSpawner{
		executable: executable,
		args:       args,
		env:        config.Env,
		listener:   listener,
		file:       file,
		log:        log,
	}, nil
}

// Addr returns the address of the shared socket.
func (s *SharedSocketSpawner) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *SharedSocketSpawner) Spawn(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to spawn worker: %w", err)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.file == nil {
		return nil, ErrSpawnerClosed
	}

	p, err := startProcess(startConfig{
		Cmd:        s.executable,
		Args:       s.args,
		Env:        append([]string{EnvListenFDs + "=1"}, s.env...),
		ExtraFiles: []*os.File{s.file},
	}, s.log)
	if err != nil {
		return nil, err
	}

	s.log.Debug("spawned worker sharing socket",
		zap.Int("pid", p.ID()),
		zap.String("executable", s.executable),
	)

	return p, nil
}

// Close releases the shared socket. Running workers keep their copy.
func (s *SharedSocketSpawner) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.file == nil {
		return nil
	}

	fileErr := s.file.Close()
	listenErr := s.listener.Close()
	s.file = nil

	if fileErr != nil {
		return fileErr
	}

	return listenErr
}
