package metrics

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	vm "github.com/VictoriaMetrics/metrics"

	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

const maxResponseSamples = 1000

const (
	requestsMetric   = "balancer_requests_total"
	selectionsMetric = "balancer_selections_total"
	attemptsMetric   = "balancer_attempts_total"
	latencyMetric    = "balancer_attempt_duration_seconds"
	healthyMetric    = "balancer_replica_healthy"
	weightMetric     = "balancer_replica_weight"
	droppedMetric    = "balancer_metric_events_dropped_total"
)

// Metrics keeps an in-memory view for the JSON snapshot and mirrors every
// update into a Prometheus-compatible set.
type Metrics struct {
	mutex         sync.RWMutex
	requests      map[string]int64
	selections    map[string]int64
	firstChoices  map[string]int64
	verdicts      map[string]map[replica.Verdict]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	healthStatus  map[string]bool
	weights       map[string]float64
	startTime     time.Time

	set *vm.Set
}

type Snapshot struct {
	TotalRequests int64                     `json:"total_requests"`
	Uptime        time.Duration             `json:"uptime"`
	Replicas      map[string]ReplicaMetrics `json:"replicas"`
	Strategy      string                    `json:"strategy"`
}

type ReplicaMetrics struct {
	Selections   int64         `json:"selections"`
	FirstChoices int64         `json:"first_choices"`
	Accepted     int64         `json:"accepted"`
	Rejected     int64         `json:"rejected"`
	Unknown      int64         `json:"unknown"`
	Healthy      bool          `json:"healthy"`
	Weight       float64       `json:"weight"`
	AvgResponse  time.Duration `json:"avg_response"`
	P50Response  time.Duration `json:"p50_response"`
	P95Response  time.Duration `json:"p95_response"`
	P99Response  time.Duration `json:"p99_response"`
	StatusCodes  map[int]int64 `json:"status_codes"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:      make(map[string]int64),
		selections:    make(map[string]int64),
		firstChoices:  make(map[string]int64),
		verdicts:      make(map[string]map[replica.Verdict]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		healthStatus:  make(map[string]bool),
		weights:       make(map[string]float64),
		startTime:     time.Now(),
		set:           vm.NewSet(),
	}
}

func (m *Metrics) IncrementRequests(cluster string) {
	m.mutex.Lock()
	m.requests[cluster]++
	m.mutex.Unlock()

	m.set.GetOrCreateCounter(fmt.Sprintf(`%s{cluster=%q}`, requestsMetric, cluster)).Inc()
}

// RecordSelection counts a replica handed out for an attempt. Attempt 0 is
// the first choice of a request.
func (m *Metrics) RecordSelection(r string, attempt int) {
	m.mutex.Lock()
	m.selections[r]++
	if attempt == 0 {
		m.firstChoices[r]++
	}
	m.mutex.Unlock()

	m.set.GetOrCreateCounter(fmt.Sprintf(`%s{replica=%q,first="%t"}`, selectionsMetric, r, attempt == 0)).Inc()
}

func (m *Metrics) RecordAttempt(r string, verdict replica.Verdict, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	m.responseTimes[r] = append(m.responseTimes[r], duration)
	if len(m.responseTimes[r]) > maxResponseSamples {
		m.responseTimes[r] = m.responseTimes[r][1:]
	}

	if m.verdicts[r] == nil {
		m.verdicts[r] = make(map[replica.Verdict]int64)
	}
	m.verdicts[r][verdict]++

	if statusCode > 0 {
		if m.statusCodes[r] == nil {
			m.statusCodes[r] = make(map[int]int64)
		}
		m.statusCodes[r][statusCode]++
	}
	m.mutex.Unlock()

	m.set.GetOrCreateCounter(fmt.Sprintf(`%s{replica=%q,verdict=%q}`, attemptsMetric, r, verdict)).Inc()
	m.set.GetOrCreateHistogram(fmt.Sprintf(`%s{replica=%q}`, latencyMetric, r)).Update(duration.Seconds())
}

func (m *Metrics) UpdateHealthStatus(r string, healthy bool) {
	m.mutex.Lock()
	m.healthStatus[r] = healthy
	m.mutex.Unlock()

	value := 0.0
	if healthy {
		value = 1
	}
	m.set.GetOrCreateGauge(fmt.Sprintf(`%s{replica=%q}`, healthyMetric, r), nil).Set(value)
}

func (m *Metrics) UpdateWeight(cluster, r string, value float64) {
	m.mutex.Lock()
	m.weights[r] = value
	m.mutex.Unlock()

	m.set.GetOrCreateGauge(fmt.Sprintf(`%s{cluster=%q,replica=%q}`, weightMetric, cluster, r), nil).Set(value)
}

func (m *Metrics) IncrementDropped() {
	m.set.GetOrCreateCounter(droppedMetric).Inc()
}

// WritePrometheus writes every metric in Prometheus text exposition format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}

func (m *Metrics) Snapshot(strategy string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:   time.Since(m.startTime),
		Replicas: make(map[string]ReplicaMetrics),
		Strategy: strategy,
	}

	for _, count := range m.requests {
		snap.TotalRequests += count
	}

	// Collect all replicas seen by any event
	all := make(map[string]bool)
	for r := range m.selections {
		all[r] = true
	}
	for r := range m.verdicts {
		all[r] = true
	}
	for r := range m.healthStatus {
		all[r] = true
	}
	for r := range m.weights {
		all[r] = true
	}

	for r := range all {
		rm := ReplicaMetrics{
			Selections:   m.selections[r],
			FirstChoices: m.firstChoices[r],
			Accepted:     m.verdicts[r][replica.Accept],
			Rejected:     m.verdicts[r][replica.Reject],
			Unknown:      m.verdicts[r][replica.DontKnow],
			Healthy:      m.healthStatus[r],
			Weight:       m.weights[r],
			StatusCodes:  m.statusCodes[r],
		}

		durations := m.responseTimes[r]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			rm.AvgResponse = average(sorted)
			rm.P50Response = percentile(sorted, 0.50)
			rm.P95Response = percentile(sorted, 0.95)
			rm.P99Response = percentile(sorted, 0.99)
		}

		snap.Replicas[r] = rm
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
