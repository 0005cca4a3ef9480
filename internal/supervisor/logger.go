package supervisor

import (
	"go.uber.org/zap"
)

// Logger is the sink the supervisor reports pool events to.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)

	// HandleExceptions installs a process-wide guard that routes
	// otherwise unhandled failures to the logger. Called once on the
	// worker side.
	HandleExceptions()
}

type zapLogger struct {
	*zap.Logger
}

var _ Logger = (*zapLogger)(nil)

// NewLogger adapts a zap logger to the Logger interface.
func NewLogger(log *zap.Logger) Logger {
	return &zapLogger{Logger: log}
}

// DefaultLogger writes human readable logs to stderr.
func DefaultLogger() Logger {
	log, err := zap.NewDevelopment()
	if err != nil {
		return NewLogger(zap.NewNop())
	}

	return NewLogger(log)
}

func (l *zapLogger) HandleExceptions() {
	// the std library logger and zap's global loggers are where
	// libraries report errors they cannot return
	zap.ReplaceGlobals(l.Logger)
	zap.RedirectStdLog(l.Logger)
}
