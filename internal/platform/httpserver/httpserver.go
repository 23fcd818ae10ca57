package httpserver

import (
	"log/slog"
	"net/http"
	"time"
)

// WriteTimeout stays above the router's request timeout so handlers that
// hit it can still write their 504.
const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	WriteTimeout      = 35 * time.Second
	idleTimeout       = 60 * time.Second
)

type Option func(*http.Server)

// WithErrorLog routes net/http's internal errors (TLS handshakes, panics in
// hijacked connections) through the structured logger.
func WithErrorLog(logger *slog.Logger) Option {
	return func(s *http.Server) {
		if logger != nil {
			s.ErrorLog = slog.NewLogLogger(logger.Handler(), slog.LevelError)
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *http.Server) {
		if d > 0 {
			s.WriteTimeout = d
		}
	}
}

// New builds the warden HTTP server.
func New(addr string, handler http.Handler, opts ...Option) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       idleTimeout,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}
