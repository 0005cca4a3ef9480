package cmd

import (
	"github.com/lambda-feedback/hellojoe/app"
	"github.com/lambda-feedback/hellojoe/internal/cluster"
	"github.com/lambda-feedback/hellojoe/internal/server"
	"github.com/lambda-feedback/hellojoe/util/conf"
	"github.com/lambda-feedback/hellojoe/util/logging"
	"github.com/urfave/cli/v2"
)

var (
	serveCmdDescription = `The serve command starts the supervisor, which spawns the
configured number of workers and keeps the pool at that size.

Unless a worker command is configured, every worker re-executes
this program and serves the built-in http app on the listen
address, which all workers share. With a worker command, the
command is run as is, and has to bind its own sockets.

The command blocks until it receives SIGINT or SIGTERM, then
stops all workers.`
	serveCmd = &cli.Command{
		Name:        "serve",
		Usage:       "Start the supervisor and keep the worker pool alive.",
		Description: serveCmdDescription,
		Action:      serveAction,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:     "h2c",
				Usage:    "Enable HTTP/2 cleartext upgrade in the built-in http app.",
				Value:    false,
				Category: "http",
			},
		},
	}
)

func serveAction(ctx *cli.Context) error {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return err
	}

	// parse again, now including the flags of the command
	cfg, err := parseConfig(ctx, log)
	if err != nil {
		return err
	}

	ctx.Context = conf.ContextWithConfig(ctx.Context, cfg)

	app, err := app.New(ctx)
	if err != nil {
		return err
	}

	return app.Run(ctx.Context,
		server.Module(cfg.Http),
		cluster.Module(),
	)
}

func init() {
	rootApp.Commands = append(rootApp.Commands, serveCmd)
}
