package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/lambda-feedback/hellojoe/internal/cluster"
	"github.com/lambda-feedback/hellojoe/internal/worker"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type HttpServerParams struct {
	Config HttpConfig

	Handlers []*HttpHandler
	Logger   *zap.Logger
}

type HttpServer struct {
	server          *http.Server
	shutdownTimeout time.Duration
	log             *zap.Logger
}

func NewHttpServer(params HttpServerParams) *HttpServer {
	mux := http.NewServeMux()

	for _, handler := range params.Handlers {
		mux.Handle(handler.Name, handler.Handler)
	}

	var handler http.Handler = mux
	if params.Config.H2c {
		handler = h2c.NewHandler(mux, &http2.Server{})
	}

	shutdownTimeout := params.Config.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	return &HttpServer{
		server:          &http.Server{Handler: handler},
		shutdownTimeout: shutdownTimeout,
		log:             params.Logger,
	}
}

type AppParams struct {
	fx.In

	Config HttpConfig
	Logger *zap.Logger
}

// NewApp returns the worker app serving http on the shared socket.
func NewApp(params AppParams) cluster.App {
	return func(ctx context.Context, child *worker.Child) error {
		listener, err := child.Listener()
		if err != nil {
			return err
		}

		log := params.Logger.With(zap.Int("pid", child.ID()))

		server := NewHttpServer(HttpServerParams{
			Config: params.Config,
			Handlers: []*HttpHandler{
				{Name: "/", Handler: NewPidHandler(child.ID(), log)},
			},
			Logger: log,
		})

		return server.Serve(ctx, listener)
	}
}

// Serve serves on the listener until ctx is done, then shuts down
// gracefully. It returns nil after a graceful shutdown.
func (s *HttpServer) Serve(ctx context.Context, listener net.Listener) error {
	errs := make(chan error, 1)

	go func() {
		errs <- s.server.Serve(listener)
	}()

	s.log.Info("listening", zap.Stringer("address", listener.Addr()))

	select {
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("failed to serve", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	return s.Shutdown(shutdownCtx)
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Error("failed to shutdown", zap.Error(err))
		return err
	}

	return nil
}
