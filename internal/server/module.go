package server

import (
	"github.com/lambda-feedback/hellojoe/util/logging"
	"go.uber.org/fx"
)

// Module provides the http server as the app run by shared-socket workers.
func Module(config HttpConfig) fx.Option {
	return fx.Module("server",
		// rename logger for module
		logging.DecorateLogger("server"),
		// provide config
		fx.Supply(config),
		// provide the worker app
		fx.Provide(NewApp),
	)
}
