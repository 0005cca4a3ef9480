package cluster

import (
	"context"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/lambda-feedback/hellojoe/internal/supervisor"
	"github.com/lambda-feedback/hellojoe/internal/worker"
	"github.com/lambda-feedback/hellojoe/util/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ModuleParams struct {
	fx.In

	Context context.Context

	Config supervisor.Config
	App    App `optional:"true"`

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Logger     *zap.Logger
}

// Module runs the cluster inside the fx application. The supervising
// process spawns the pool on start and shuts it down on stop. A worker
// runs the App and stops the fx application once the App returns.
func Module() fx.Option {
	return fx.Module("cluster",
		// name the logger
		logging.DecorateLogger("cluster"),
		// register lifecycle hooks
		fx.Invoke(register),
	)
}

func register(params ModuleParams) {
	if worker.IsChild() {
		registerWorker(params)
	} else {
		registerSupervisor(params)
	}
}

func registerSupervisor(params ModuleParams) {
	var sup *supervisor.Supervisor

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s, err := Serve(ctx, Params{
				Config: params.Config,
				App:    params.App,
				Log:    params.Logger,
			})
			if err != nil {
				return err
			}

			sup = s
			notify(params.Logger, daemon.SdNotifyReady)

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if sup == nil {
				return nil
			}

			notify(params.Logger, daemon.SdNotifyStopping)

			return sup.Shutdown(ctx)
		},
	})
}

func registerWorker(params ModuleParams) {
	ctx, cancel := context.WithCancel(params.Context)
	done := make(chan struct{})

	// serveErr is written before done is closed
	var serveErr error

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)

				exitCode := 0
				if _, err := Serve(ctx, Params{
					Config: params.Config,
					App:    params.App,
					Log:    params.Logger,
				}); err != nil {
					params.Logger.Error("worker failed", zap.Error(err))
					serveErr = err
					exitCode = 1
				}

				if err := params.Shutdowner.Shutdown(fx.ExitCode(exitCode)); err != nil {
					params.Logger.Warn("failed to request shutdown", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()

			select {
			case <-done:
				// a failed worker must not exit with code 0, even if a
				// signal started the shutdown
				return serveErr
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

// notify reports the service state to systemd, if the process runs
// as a notify service.
func notify(log *zap.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("failed to notify service manager", zap.Error(err))
		return
	}

	if sent {
		log.Debug("notified service manager", zap.String("state", state))
	}
}
