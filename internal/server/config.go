package server

import "time"

type HttpConfig struct {
	// H2c enables HTTP/2 cleartext upgrades
	H2c bool `conf:"h2c"`

	// ShutdownTimeout bounds the graceful shutdown of a worker's server
	ShutdownTimeout time.Duration `conf:"shutdown_timeout"`
}

const defaultShutdownTimeout = 5 * time.Second
