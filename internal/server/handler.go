package server

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

type HttpHandler struct {
	Name    string
	Handler http.Handler
}

// PidHandler answers every request with the pid of the serving worker,
// which makes the load distribution across the pool observable.
type PidHandler struct {
	pid int
	log *zap.Logger
}

func NewPidHandler(pid int, log *zap.Logger) *PidHandler {
	return &PidHandler{
		pid: pid,
		log: log,
	}
}

func (h *PidHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.log.Debug("handling request",
		zap.String("path", r.URL.Path),
		zap.String("method", r.Method),
	)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%d\n", h.pid)
}
