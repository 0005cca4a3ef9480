package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/lambda-feedback/hellojoe/internal/supervisor"
	"github.com/lambda-feedback/hellojoe/internal/worker"
	"go.uber.org/zap"
)

var (
	ErrMissingApp = errors.New("no app to run in worker")
	ErrTerminated = errors.New("worker terminated")
)

// App is the entry point of a shared-socket worker. It should serve on
// the listener of the child until ctx is done. Returning nil before ctx
// is done ends the worker voluntarily. Returning an error, or returning
// after ctx is done, makes the supervisor replace it.
type App func(ctx context.Context, child *worker.Child) error

type Params struct {
	// Config is the config of the pool
	Config supervisor.Config

	// App is run by shared-socket workers
	App App

	// Log is the logger to use. Defaults to a nop logger.
	Log *zap.Logger

	// Spawner overrides the spawner derived from Config
	Spawner worker.Spawner

	// Now overrides the clock of the supervisor
	Now func() time.Time
}

// disconnectTimeout bounds the goodbye to the supervisor after the app ends
const disconnectTimeout = 2 * time.Second

// Serve is the single entry point for both sides of a cluster.
//
// In the supervising process, it validates the config, spawns the pool
// and returns the running supervisor.
//
// In a worker, it connects to the supervisor, reports the worker online
// and runs the app until it returns. The returned supervisor is nil.
func Serve(ctx context.Context, params Params) (*supervisor.Supervisor, error) {
	if params.Log == nil {
		params.Log = zap.NewNop()
	}

	if worker.IsChild() {
		return nil, serveWorker(ctx, params)
	}

	return serveSupervisor(ctx, params)
}

func serveSupervisor(ctx context.Context, params Params) (*supervisor.Supervisor, error) {
	// validate before the spawner binds the shared socket
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	spawner := params.Spawner
	if spawner == nil {
		s, err := worker.NewSpawner(worker.SpawnConfig{
			Command: params.Config.Worker,
			Args:    params.Config.WorkerArgs,
			Listen:  params.Config.Listen,
		}, params.Log.Named("worker"))
		if err != nil {
			return nil, fmt.Errorf("failed to create spawner: %w", err)
		}
		spawner = s
	}

	sup, err := supervisor.New(supervisor.Params{
		Config:  params.Config,
		Spawner: spawner,
		Log:     supervisor.NewLogger(params.Log.Named("supervisor")),
		Now:     params.Now,
	})
	if err != nil {
		return nil, err
	}

	if err := sup.Start(ctx); err != nil {
		// release the socket the spawner may hold
		sup.Shutdown(ctx)
		return nil, err
	}

	return sup, nil
}

func serveWorker(ctx context.Context, params Params) error {
	log := supervisor.NewLogger(params.Log)
	log.HandleExceptions()

	if params.Config.Independent() {
		// the worker command was run directly by the supervisor, there
		// is nothing for this program to do
		return nil
	}

	if params.App == nil {
		return ErrMissingApp
	}

	child, err := worker.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to supervisor: %w", err)
	}
	defer child.Close()

	if err := child.Online(ctx); err != nil {
		return fmt.Errorf("failed to report online: %w", err)
	}

	if listener, err := child.Listener(); err == nil {
		if err := child.Listening(ctx, listener.Addr()); err != nil {
			return fmt.Errorf("failed to report listening: %w", err)
		}
	} else if !errors.Is(err, worker.ErrNoListener) {
		return err
	}

	if err := guard(params.Log, func() error { return params.App(ctx, child) }); err != nil {
		return err
	}

	// a signal ended the app. Unless the supervisor sent it, the worker
	// has to be replaced, so it must not disconnect.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTerminated, err)
	}

	// the app ended on its own accord, make sure it is not replaced
	disconnectCtx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	if err := child.Disconnect(disconnectCtx); err != nil {
		params.Log.Warn("failed to disconnect from supervisor", zap.Error(err))
	}

	return nil
}

// guard reports a panic of fn to sentry and the log, then re-panics so
// the worker dies and gets replaced.
func guard(log *zap.Logger, fn func() error) error {
	defer func() {
		if r := recover(); r != nil {
			sentry.CurrentHub().Recover(r)
			sentry.Flush(2 * time.Second)

			log.Error("uncaught panic in worker", zap.Any("panic", r))
			log.Sync()

			panic(r)
		}
	}()

	return fn()
}
