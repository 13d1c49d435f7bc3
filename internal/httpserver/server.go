package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Timeouts of the server. Zero values fall back to the defaults.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Idle     time.Duration
	Shutdown time.Duration
}

var DefaultTimeouts = Timeouts{
	Read:     15 * time.Second,
	Write:    15 * time.Second,
	Idle:     60 * time.Second,
	Shutdown: 5 * time.Second,
}

type Option func(*Server)

func WithTimeouts(t Timeouts) Option {
	return func(s *Server) {
		if t.Read > 0 {
			s.server.ReadTimeout = t.Read
		}
		if t.Write > 0 {
			s.server.WriteTimeout = t.Write
		}
		if t.Idle > 0 {
			s.server.IdleTimeout = t.Idle
		}
		if t.Shutdown > 0 {
			s.shutdownTimeout = t.Shutdown
		}
	}
}

// Server wraps http.Server with validation and graceful shutdown.
type Server struct {
	server          *http.Server
	shutdownTimeout time.Duration
}

// New creates a new HTTP server with the given address and handler.
// The address is validated before creating the server.
func New(addr string, handler http.Handler, opts ...Option) (*Server, error) {
	if err := validateHost(addr); err != nil {
		return nil, err
	}

	srv := &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  DefaultTimeouts.Read,
			WriteTimeout: DefaultTimeouts.Write,
			IdleTimeout:  DefaultTimeouts.Idle,
		},
		shutdownTimeout: DefaultTimeouts.Shutdown,
	}
	for _, opt := range opts {
		opt(srv)
	}

	return srv, nil
}

// Start begins listening for HTTP requests.
// Returns an error unless the server is shut down cleanly.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown gracefully shuts down the server within the shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) Addr() string {
	return s.server.Addr
}

func validateHost(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)

	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cant be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}
