package healthcheck

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/angeloszaimis/adaptive-balancer/internal/backend"
)

// ChangeFunc is called after a backend's health status flips.
type ChangeFunc func(b *backend.Backend, healthy bool)

type Option func(*Checker)

// WithOnChange registers a callback for health flips.
func WithOnChange(fn ChangeFunc) Option {
	return func(c *Checker) { c.onChange = fn }
}

// WithPath overrides the probed path, "/health" by default.
func WithPath(path string) Option {
	return func(c *Checker) { c.path = path }
}

// Checker periodically checks if backends are healthy by sending HTTP GET
// requests to their health endpoint. Any status other than 200 or a
// transport error marks the backend unhealthy.
type Checker struct {
	client   *http.Client
	interval time.Duration
	path     string
	onChange ChangeFunc
	logger   *slog.Logger
}

func NewChecker(interval, timeout time.Duration, logger *slog.Logger, opts ...Option) *Checker {
	c := &Checker{
		client:   &http.Client{Timeout: timeout},
		interval: interval,
		path:     "/health",
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start runs one probe loop per backend of pool until ctx is done.
func (c *Checker) Start(ctx context.Context, pool *backend.Pool) {
	for _, b := range pool.Backends() {
		go c.Run(ctx, b)
	}
}

// Run probes b every interval until ctx is done.
func (c *Checker) Run(ctx context.Context, b *backend.Backend) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Health check stopped",
				slog.String("server", b.URL().String()))
			return

		case <-ticker.C:
			c.Check(ctx, b)
		}
	}
}

// Check probes b once, updates its status and returns it.
func (c *Checker) Check(ctx context.Context, b *backend.Backend) bool {
	healthy := c.probe(ctx, b)
	if ctx.Err() != nil {
		return b.IsHealthy()
	}

	if !b.SetHealthy(healthy) {
		return healthy
	}

	if healthy {
		c.logger.Info("Server is back up",
			slog.String("server", b.URL().String()))
	} else {
		c.logger.Warn("Server is down",
			slog.String("server", b.URL().String()))
	}

	if c.onChange != nil {
		c.onChange(b, healthy)
	}

	return healthy
}

func (c *Checker) probe(ctx context.Context, b *backend.Backend) bool {
	healthURL := b.URL().ResolveReference(&url.URL{Path: c.path})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL.String(), nil)
	if err != nil {
		return false
	}

	res, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	return res.StatusCode == http.StatusOK
}
