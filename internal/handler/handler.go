package handler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/angeloszaimis/adaptive-balancer/internal/backend"
	"github.com/angeloszaimis/adaptive-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/adaptive-balancer/internal/metrics"
	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

// LoadBalancerHandler proxies each request to the replicas of one cluster in
// the order the balancer picks, failing over on transport errors.
type LoadBalancerHandler struct {
	logger           *slog.Logger
	balancer         *loadbalancer.LoadBalancer
	pool             *backend.Pool
	cluster          replica.Cluster
	maxAttempts      int
	metricsCollector *metrics.Collector
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func NewLoadBalancerHandler(
	logger *slog.Logger,
	lb *loadbalancer.LoadBalancer,
	pool *backend.Pool,
	cluster replica.Cluster,
	collector *metrics.Collector,
	maxAttempts int,
) *LoadBalancerHandler {
	return &LoadBalancerHandler{
		logger:           logger,
		balancer:         lb,
		pool:             pool,
		cluster:          cluster,
		maxAttempts:      max(maxAttempts, 1),
		metricsCollector: collector,
	}
}

func (lb *LoadBalancerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)

	lb.logger.Debug("Received request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("proto", r.Proto),
		slog.String("host", r.Host),
		slog.String("user_agent", r.UserAgent()))

	lb.emitEvent(metrics.MetricEvent{
		Type:    metrics.EventRequestReceived,
		Cluster: lb.cluster.String(),
	})

	if lb.pool.HealthyCount() == 0 {
		lb.logger.Warn("No healthy backends available", slog.String("client", clientIP))
		http.Error(w, "No healthy server available", http.StatusServiceUnavailable)
		return
	}

	// A consumed body cannot be replayed to the next replica.
	attempts := lb.maxAttempts
	if r.Body != nil && r.Body != http.NoBody {
		attempts = 1
	}

	// Weighted backends appear more than once in the candidate list.
	tried := make([]replica.Replica, 0, attempts)
	for candidate := range lb.balancer.Order(lb.cluster, lb.pool.Replicas()) {
		if len(tried) >= attempts {
			break
		}
		if slices.Contains(tried, candidate) {
			continue
		}

		server, ok := lb.pool.Get(candidate)
		if !ok {
			continue
		}

		attempt := len(tried)
		tried = append(tried, candidate)

		err := lb.forward(w, r, server, attempt)
		if err == nil {
			return
		}

		lb.logger.Warn("Backend attempt failed",
			slog.String("client", clientIP),
			slog.String("backend", server.URL().String()),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))

		if r.Context().Err() != nil {
			return
		}
	}

	http.Error(w, "All backends failed", http.StatusBadGateway)
}

// forward runs one attempt against server and reports its outcome.
func (lb *LoadBalancerHandler) forward(w http.ResponseWriter, r *http.Request, server *backend.Backend, attempt int) error {
	lb.emitEvent(metrics.MetricEvent{
		Type:    metrics.EventReplicaSelected,
		Cluster: lb.cluster.String(),
		Replica: server.Replica().String(),
		Attempt: attempt,
	})

	server.IncrementConn()
	defer server.DecrementConn()

	w.Header().Set("X-Backend-Server", server.URL().String())
	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

	start := time.Now()
	err := server.Forward(wrapped, r)
	elapsed := time.Since(start)

	if err != nil {
		wrapped.statusCode = 0
	}

	outcome := replica.Outcome{
		Cluster: lb.cluster,
		Replica: server.Replica(),
		Verdict: verdict(r.Context(), err, wrapped.statusCode),
		Elapsed: elapsed,
	}
	lb.balancer.Learn(outcome)

	lb.emitEvent(metrics.MetricEvent{
		Type:       metrics.EventAttemptCompleted,
		Cluster:    lb.cluster.String(),
		Replica:    server.Replica().String(),
		Attempt:    attempt,
		Verdict:    outcome.Verdict,
		Duration:   elapsed,
		StatusCode: wrapped.statusCode,
	})

	return err
}

// verdict classifies an attempt. An attempt cut short by the client says
// nothing about the replica.
func verdict(ctx context.Context, err error, statusCode int) replica.Verdict {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return replica.DontKnow
	case err != nil:
		return replica.Reject
	case statusCode >= http.StatusInternalServerError:
		return replica.Reject
	default:
		return replica.Accept
	}
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func (lb *LoadBalancerHandler) emitEvent(event metrics.MetricEvent) {
	if lb.metricsCollector == nil {
		return
	}
	lb.metricsCollector.Emit(event)
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
