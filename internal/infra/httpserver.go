package infra

import (
	"context"
	"net/http"
	"time"
)

// shutdownGrace bounds how long in-flight requests may keep running once a
// stop signal arrives.
const shutdownGrace = 15 * time.Second

// HTTPServer wraps http.Server with this service's timeouts and a bounded
// graceful stop, so the mains do not each carry their own shutdown context.
type HTTPServer struct {
	server *http.Server
	grace  time.Duration
}

func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           handler,
			ReadTimeout:       cfg.HTTPReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.HTTPWriteTimeout,
			IdleTimeout:       cfg.HTTPIdleTimeout,
		},
		grace: shutdownGrace,
	}
}

// Start blocks serving requests until Stop is called or the listener fails.
func (s *HTTPServer) Start() error {
	return s.server.ListenAndServe()
}

// Stop drains in-flight requests, waiting at most the shutdown grace period.
func (s *HTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()
	return s.server.Shutdown(ctx)
}
