package handler

import (
	"encoding/json"
	"math"
	"net/http"
	"slices"
	"strings"

	"github.com/angeloszaimis/adaptive-balancer/internal/backend"
	"github.com/angeloszaimis/adaptive-balancer/internal/circuitbreaker"
	"github.com/angeloszaimis/adaptive-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/adaptive-balancer/internal/metrics"
	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

// BalancerState is what the balancer currently knows about its clusters.
type BalancerState struct {
	DroppedEvents int64          `json:"dropped_events"`
	Clusters      []ClusterState `json:"clusters"`
}

type ClusterState struct {
	Cluster      string                  `json:"cluster"`
	PendingCalls int64                   `json:"pending_calls"`
	Replicas     map[string]ReplicaState `json:"replicas"`
}

// ReplicaState carries the final weight of the chain. Pinned replicas have
// an infinite weight, reported as Pinned with no Weight.
type ReplicaState struct {
	Weight            *float64 `json:"weight,omitempty"`
	Pinned            bool     `json:"pinned,omitempty"`
	StoredWeight      *float64 `json:"stored_weight,omitempty"`
	Circuit           string   `json:"circuit"`
	Healthy           bool     `json:"healthy"`
	ActiveConnections int      `json:"active_connections"`
}

// StateHandler serves BalancerState as JSON.
type StateHandler struct {
	balancer  *loadbalancer.LoadBalancer
	pool      *backend.Pool
	cluster   replica.Cluster
	collector *metrics.Collector
}

func NewStateHandler(lb *loadbalancer.LoadBalancer, pool *backend.Pool, cluster replica.Cluster, collector *metrics.Collector) *StateHandler {
	return &StateHandler{
		balancer:  lb,
		pool:      pool,
		cluster:   cluster,
		collector: collector,
	}
}

func (h *StateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.State()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// State evaluates the weight chain for every pool replica of every known
// cluster. The served cluster is always listed, even before any traffic.
func (h *StateHandler) State() BalancerState {
	clusters := h.balancer.Clusters()
	if !slices.Contains(clusters, h.cluster) {
		clusters = append(clusters, h.cluster)
	}
	slices.SortFunc(clusters, func(a, b replica.Cluster) int {
		return strings.Compare(a.String(), b.String())
	})

	state := BalancerState{Clusters: make([]ClusterState, 0, len(clusters))}
	if h.collector != nil {
		state.DroppedEvents = h.collector.Dropped()
	}

	for _, cluster := range clusters {
		state.Clusters = append(state.Clusters, h.clusterState(cluster))
	}

	return state
}

func (h *StateHandler) clusterState(cluster replica.Cluster) ClusterState {
	backends := h.pool.Backends()
	replicas := make([]replica.Replica, 0, len(backends))
	for _, b := range backends {
		replicas = append(replicas, b.Replica())
	}

	final := h.balancer.Evaluate(cluster, replicas)
	stored := h.balancer.Weights(cluster)
	circuits := h.balancer.CircuitStates(cluster)

	cs := ClusterState{
		Cluster:      cluster.String(),
		PendingCalls: h.balancer.Pending(cluster).TotalCount,
		Replicas:     make(map[string]ReplicaState, len(backends)),
	}

	for _, b := range backends {
		r := b.Replica()
		rs := ReplicaState{
			Circuit:           circuitbreaker.StateClosed.String(),
			Healthy:           b.IsHealthy(),
			ActiveConnections: b.ActiveConnections(),
		}

		if value := final[r]; math.IsInf(value, 1) {
			rs.Pinned = true
		} else {
			rs.Weight = &value
		}
		if w, ok := stored[r]; ok {
			rs.StoredWeight = &w.Value
		}
		if circuit, ok := circuits[r]; ok {
			rs.Circuit = circuit.String()
		}

		cs.Replicas[r.String()] = rs
	}

	return cs
}
