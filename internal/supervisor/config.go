package supervisor

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

var (
	ErrInvalidPoolSize      = errors.New("pool size must be positive")
	ErrInvalidThreshold     = errors.New("thresholds and delays must not be negative")
	ErrMissingWorkerArgs    = errors.New("worker args are required when a worker command is set")
	ErrMissingWorkerCommand = errors.New("worker args are set but the worker command is missing")
	ErrMissingListenAddress = errors.New("listen address is required for shared-socket workers")
	ErrAlreadyStarted       = errors.New("supervisor already started")
	ErrMissingSpawner       = errors.New("no spawner provided")
)

const (
	DefaultRetryThreshold   = 23
	DefaultRetryDelay       = 10 * time.Second
	DefaultFailureThreshold = 5 * time.Second
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultListen           = "localhost:8080"
)

// Config describes the worker pool. It is supplied once, before the
// supervisor starts, and never changes afterwards.
type Config struct {
	// Cores is the number of workers to maintain
	Cores int `conf:"cores"`

	// RetryThreshold is the number of consecutive short-lived
	// failures tolerated before respawns are delayed
	RetryThreshold int `conf:"retry_threshold"`

	// RetryDelay is the pause before respawning a worker once
	// RetryThreshold is exceeded
	RetryDelay time.Duration `conf:"retry_delay"`

	// FailureThreshold classifies a worker exiting before this
	// lifetime as a failure
	FailureThreshold time.Duration `conf:"failure_threshold"`

	// Worker is the path of an independent worker executable. If
	// empty, workers re-execute the current program and share the
	// listening socket bound at Listen.
	Worker string `conf:"worker"`

	// WorkerArgs are the arguments for Worker
	WorkerArgs []string `conf:"worker_args"`

	// Listen is the address shared-socket workers accept on
	Listen string `conf:"listen"`

	// ShutdownTimeout is the grace period for workers to exit after
	// SIGTERM during shutdown, before they are killed
	ShutdownTimeout time.Duration `conf:"shutdown_timeout"`
}

// DefaultConfig returns the config used for options left unset.
func DefaultConfig() Config {
	return Config{
		Cores:            runtime.NumCPU(),
		RetryThreshold:   DefaultRetryThreshold,
		RetryDelay:       DefaultRetryDelay,
		FailureThreshold: DefaultFailureThreshold,
		Listen:           DefaultListen,
		ShutdownTimeout:  DefaultShutdownTimeout,
	}
}

// Independent reports whether workers are independent processes.
func (c Config) Independent() bool {
	return c.Worker != ""
}

// Validate checks the config for errors that would otherwise only show
// up as a crash loop after spawning.
func (c Config) Validate() error {
	if c.Cores < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidPoolSize, c.Cores)
	}

	if c.RetryThreshold < 0 || c.RetryDelay < 0 || c.FailureThreshold < 0 || c.ShutdownTimeout < 0 {
		return ErrInvalidThreshold
	}

	if c.Worker != "" && len(c.WorkerArgs) == 0 {
		return ErrMissingWorkerArgs
	}

	if c.Worker == "" && len(c.WorkerArgs) > 0 {
		return ErrMissingWorkerCommand
	}

	if c.Worker == "" && c.Listen == "" {
		return ErrMissingListenAddress
	}

	return nil
}

// Policy returns the backoff policy described by the config.
func (c Config) Policy() Policy {
	return Policy{
		RetryThreshold:   c.RetryThreshold,
		RetryDelay:       c.RetryDelay,
		FailureThreshold: c.FailureThreshold,
	}
}
