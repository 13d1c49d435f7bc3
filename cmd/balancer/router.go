package main

import (
	"net/http"

	"github.com/angeloszaimis/adaptive-balancer/config"
	"github.com/angeloszaimis/adaptive-balancer/internal/metrics"
)

// setupRouter serves the metrics and state endpoints, when a collector is
// given, and proxies everything else.
func setupRouter(proxy, state http.Handler, collector *metrics.Collector, cfg config.MetricsConfig, strategy string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/", proxy)
	if collector != nil {
		mux.HandleFunc(cfg.Path, collector.Handler(strategy))
		mux.HandleFunc(cfg.PrometheusPath, collector.PrometheusHandler())
		mux.Handle(cfg.StatePath, state)
	}

	return mux
}
