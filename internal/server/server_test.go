package server_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lambda-feedback/hellojoe/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPidHandler(t *testing.T) {
	h := server.NewPidHandler(4242, zap.NewNop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4242\n", rec.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestHttpServer_Serve(t *testing.T) {
	tests := []struct {
		name string
		h2c  bool
	}{
		{name: "http/1.1", h2c: false},
		{name: "h2c", h2c: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listener, err := net.Listen("tcp", "127.0.0.1:0")
			require.NoError(t, err)

			s := server.NewHttpServer(server.HttpServerParams{
				Config: server.HttpConfig{H2c: tt.h2c},
				Handlers: []*server.HttpHandler{
					{Name: "/", Handler: server.NewPidHandler(7, zap.NewNop())},
				},
				Logger: zap.NewNop(),
			})

			ctx, cancel := context.WithCancel(context.Background())
			errs := make(chan error, 1)
			go func() {
				errs <- s.Serve(ctx, listener)
			}()

			res, err := http.Get("http://" + listener.Addr().String() + "/")
			require.NoError(t, err)
			body, err := io.ReadAll(res.Body)
			res.Body.Close()
			require.NoError(t, err)

			assert.Equal(t, "7\n", string(body))

			cancel()

			select {
			case err := <-errs:
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("server did not shut down")
			}
		})
	}
}

func TestHttpServer_Serve_ClosedListener(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	listener.Close()

	s := server.NewHttpServer(server.HttpServerParams{Logger: zap.NewNop()})

	assert.Error(t, s.Serve(context.Background(), listener))
}
