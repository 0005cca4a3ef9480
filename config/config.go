package config

import (
	_ "embed"
	"runtime"
	"time"

	"github.com/lambda-feedback/hellojoe/internal/server"
	"github.com/lambda-feedback/hellojoe/internal/supervisor"
	"github.com/lambda-feedback/hellojoe/util"
	"github.com/lambda-feedback/hellojoe/util/conf"
	"github.com/xeipuuv/gojsonschema"
)

// EnvPrefix is the prefix of env vars read into the config
const EnvPrefix = "HELLOJOE_"

type Config struct {
	// LogLevel is the log level for the application
	LogLevel string `conf:"log_level"`

	// LogFormat is the log format for the application
	LogFormat string `conf:"log_format"`

	// Supervisor is the configuration of the worker pool
	Supervisor supervisor.Config `conf:",squash"`

	// Http is the configuration of the built-in http app
	Http server.HttpConfig `conf:"http"`
}

var DefaultConfig = conf.MergeDefaults("",
	conf.DefaultConfig{
		"log_level":         "info",
		"log_format":        "production",
		"cores":             runtime.NumCPU(),
		"retry_threshold":   supervisor.DefaultRetryThreshold,
		"retry_delay":       supervisor.DefaultRetryDelay,
		"failure_threshold": supervisor.DefaultFailureThreshold,
		"listen":            supervisor.DefaultListen,
		"shutdown_timeout":  supervisor.DefaultShutdownTimeout,
	},
	conf.MergeDefaults("http", conf.DefaultConfig{
		"h2c":              false,
		"shutdown_timeout": 5 * time.Second,
	}),
)

//go:embed schema.json
var schema []byte

// Schema validates json config files
var Schema = util.Must(gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema)))
