package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lambda-feedback/hellojoe/config"
	"github.com/lambda-feedback/hellojoe/internal/shell"
	"github.com/lambda-feedback/hellojoe/internal/worker"
	"github.com/lambda-feedback/hellojoe/util/conf"
	"github.com/lambda-feedback/hellojoe/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	appName  = "hellojoe"
	appUsage = `A process supervisor that keeps a pool of workers alive,
replacing every worker that dies and backing off when the
workers keep crashing right after they start.`
	rootApp = &cli.App{
		Name:            appName,
		Usage:           appUsage,
		HideHelpCommand: true,
		Flags: []cli.Flag{
			// general flags
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "set the log level. Options: debug, info, warn, error, panic, fatal.",
				EnvVars: []string{"HELLOJOE_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "set the log format. Options: production, development.",
				EnvVars: []string{"HELLOJOE_LOG_FORMAT"},
			},
			&cli.PathFlag{
				Name:    "config",
				Usage:   "load the config from a json or .env file.",
				EnvVars: []string{"HELLOJOE_CONFIG"},
			},
			// pool flags
			&cli.IntFlag{
				Name:     "cores",
				Usage:    "the number of workers to keep alive. Defaults to the number of CPUs.",
				Aliases:  []string{"n"},
				Category: "pool",
			},
			&cli.IntFlag{
				Name:     "retry-threshold",
				Usage:    "the number of consecutive failures before respawns are delayed.",
				Category: "pool",
			},
			&cli.DurationFlag{
				Name:     "retry-delay",
				Usage:    "the delay before respawning a worker once the retry threshold is exceeded.",
				Category: "pool",
			},
			&cli.DurationFlag{
				Name:     "failure-threshold",
				Usage:    "workers exiting earlier than this after their start count as failures.",
				Category: "pool",
			},
			&cli.DurationFlag{
				Name:     "shutdown-timeout",
				Usage:    "the grace period for workers to exit on shutdown before they are killed.",
				Category: "pool",
			},
			// worker flags
			&cli.StringFlag{
				Name:     "worker",
				Usage:    "run this command as the worker process, instead of the built-in http app.",
				Aliases:  []string{"w"},
				Category: "worker",
			},
			&cli.StringSliceFlag{
				Name:     "worker-args",
				Usage:    "the arguments for the worker command.",
				Aliases:  []string{"a"},
				Category: "worker",
			},
			&cli.StringFlag{
				Name:     "listen",
				Usage:    "the address the workers of the built-in http app share.",
				Aliases:  []string{"l"},
				Category: "worker",
			},
		},
		Before: func(ctx *cli.Context) error {
			// create the logger
			log, err := createLogger(ctx)
			if err != nil {
				return err
			}

			// inject logger into cli context
			ctx.Context = logging.ContextWithLogger(ctx.Context, log)

			// parse config using defaults, file, env and flags
			cfg, err := parseConfig(ctx, log)
			if err != nil {
				return err
			}

			// inject the config into the cli context
			ctx.Context = conf.ContextWithConfig(ctx.Context, cfg)

			return nil
		},
		After: func(ctx *cli.Context) error {
			log, err := logging.LoggerFromContext(ctx.Context)
			if err != nil {
				return err
			}

			log.Sync()

			return nil
		},
	}
)

// cliMap maps flags to config keys that differ from the flag name
var cliMap = map[string]string{
	"config": "config_file",
	"h2c":    "http.h2c",
}

func parseConfig(ctx *cli.Context, log *zap.Logger) (config.Config, error) {
	return conf.Parse[config.Config](conf.ParseOptions{
		Cli:       ctx,
		CliMap:    cliMap,
		Defaults:  config.DefaultConfig,
		EnvPrefix: config.EnvPrefix,
		FileName:  ctx.Path("config"),
		Schema:    config.Schema,
		Log:       log,
	})
}

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:               "version",
		Usage:              "print the version",
		DisableDefaultText: true,
	}
}

type ExecuteParams struct {
	Version  string
	Compiled time.Time
}

func Execute(params ExecuteParams) {
	rootApp.Version = params.Version
	rootApp.Compiled = params.Compiled

	run(context.Background(), os.Args)
}

func run(ctx context.Context, args []string) {
	err := rootApp.RunContext(ctx, args)

	// if app exited without error, return
	if err == nil {
		return
	}

	// if app exited with ExitError, exit with given exit code
	if code, ok := shell.ExitCodeOf(err); ok {
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "exit error: %s\n", err.Error())

	// otherwise, exit with exit code 1
	os.Exit(1)
}

func createLogger(ctx *cli.Context) (*zap.Logger, error) {
	level := getLogLevelFromCLI(ctx)
	format := getLogFormatFromCLI(ctx)

	var config zap.Config
	if format == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	config.InitialFields = map[string]any{
		"app": appName,
	}

	if worker.IsChild() {
		config.InitialFields["role"] = "worker"
	}

	config.Level = level

	return config.Build()
}

func getLogFormatFromCLI(ctx *cli.Context) string {
	format := ctx.String("log-format")
	if format != "" {
		return format
	}

	return "production"
}

func getLogLevelFromCLI(ctx *cli.Context) zap.AtomicLevel {
	lvl := ctx.String("log-level")

	if atom, err := zap.ParseAtomicLevel(lvl); err == nil {
		return atom
	}

	return zap.NewAtomicLevelAt(zap.InfoLevel)
}
