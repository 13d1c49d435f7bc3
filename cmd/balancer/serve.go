package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/angeloszaimis/adaptive-balancer/config"
	"github.com/angeloszaimis/adaptive-balancer/internal/backend"
	"github.com/angeloszaimis/adaptive-balancer/internal/handler"
	"github.com/angeloszaimis/adaptive-balancer/internal/healthcheck"
	"github.com/angeloszaimis/adaptive-balancer/internal/httpserver"
	"github.com/angeloszaimis/adaptive-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/adaptive-balancer/internal/metrics"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Proxy HTTP traffic to the configured backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), a.cfg, a.logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	pool, err := buildPool(cfg.Backends)
	if err != nil {
		return err
	}

	var collector *metrics.Collector
	opts := []loadbalancer.Option{loadbalancer.WithHealthSource(pool)}

	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.BufferSize, log)
		collector.Start(ctx)
		opts = append(opts, loadbalancer.WithObserver(collector.Observer()))

		for _, b := range pool.Backends() {
			collector.Emit(metrics.MetricEvent{
				Type:    metrics.EventHealthChanged,
				Replica: string(b.Replica()),
				Healthy: b.IsHealthy(),
			})
		}
	}

	lb, err := loadbalancer.NewLoadBalancer(cfg.LoadBalancerSettings(), log, opts...)
	if err != nil {
		return fmt.Errorf("failed to create load balancer: %w", err)
	}

	checker := healthcheck.NewChecker(cfg.HealthCheck.Interval, cfg.HealthCheck.Timeout, log,
		healthcheck.WithPath(cfg.HealthCheck.Path),
		healthcheck.WithOnChange(func(b *backend.Backend, healthy bool) {
			if collector == nil {
				return
			}
			collector.Emit(metrics.MetricEvent{
				Type:    metrics.EventHealthChanged,
				Replica: string(b.Replica()),
				Healthy: healthy,
			})
		}))
	checker.Start(ctx, pool)

	loadBalancerHandler := handler.NewLoadBalancerHandler(log, lb, pool, cfg.ClusterKey(), collector, cfg.Proxy.MaxAttempts)
	stateHandler := handler.NewStateHandler(lb, pool, cfg.ClusterKey(), collector)
	mux := setupRouter(loadBalancerHandler, stateHandler, collector, cfg.Metrics, cfg.Strategy.Type)

	srv, err := httpserver.New(cfg.Server.Address, mux, httpserver.WithTimeouts(httpserver.Timeouts{
		Read:     cfg.Server.ReadTimeout,
		Write:    cfg.Server.WriteTimeout,
		Idle:     cfg.Server.IdleTimeout,
		Shutdown: cfg.Server.ShutdownTimeout,
	}))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Info("Starting load balancer",
		slog.String("address", cfg.Server.Address),
		slog.String("cluster", cfg.ClusterKey().String()),
		slog.Int("backends", len(pool.Backends())))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
			return err
		}
		return nil
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting load balancer", slog.Any("err", err))
		}
		return err
	}
}

// buildPool lists each backend once per unit of its weight.
func buildPool(backends []config.BackendConfig) (*backend.Pool, error) {
	var list []*backend.Backend

	for _, bc := range backends {
		u, err := url.Parse(bc.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse backend URL %q: %w", bc.URL, err)
		}

		b := backend.New(u)
		for range max(bc.Weight, 1) {
			list = append(list, b)
		}
	}

	if len(list) == 0 {
		return nil, fmt.Errorf("no backends configured")
	}

	return backend.NewPool(list...), nil
}
