package simulation

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/angeloszaimis/adaptive-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

// clock is the virtual time every component of a run reads.
type clock struct {
	mutex sync.RWMutex
	now   time.Time
}

func (c *clock) Now() time.Time {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.now
}

func (c *clock) set(t time.Time) {
	c.mutex.Lock()
	c.now = t
	c.mutex.Unlock()
}

// Runner drives a scenario through a load balancer on a virtual clock, so a
// ten minute scenario completes in well under a second.
type Runner struct {
	scenario *Scenario
	settings loadbalancer.Settings
	options  []loadbalancer.Option
	logger   *slog.Logger
	start    time.Time
}

// NewRunner prepares a run. Options are passed to the load balancer; its
// clock is always the virtual one.
func NewRunner(scenario *Scenario, settings loadbalancer.Settings, logger *slog.Logger, opts ...loadbalancer.Option) *Runner {
	return &Runner{
		scenario: scenario,
		settings: settings,
		options:  opts,
		logger:   logger,
		start:    time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Run replays the scenario until its duration elapses or ctx is done.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	virtual := &clock{now: r.start}

	lb, err := loadbalancer.NewLoadBalancer(r.settings, r.logger,
		append(r.options, loadbalancer.WithClock(virtual.Now))...)
	if err != nil {
		return nil, err
	}

	s := r.scenario
	cluster := s.Cluster()
	rng := rand.New(rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15))
	limiter := rate.NewLimiter(rate.Limit(s.Rate), s.Burst)

	profiles := make(map[replica.Replica]ReplicaProfile, len(s.Replicas))
	replicas := make([]replica.Replica, 0, len(s.Replicas))
	reports := make(map[replica.Replica]*ReplicaReport, len(s.Replicas))
	for _, p := range s.Replicas {
		addr := replica.Replica(p.Address)
		profiles[addr] = p
		replicas = append(replicas, addr)
		if _, ok := reports[addr]; !ok {
			reports[addr] = &ReplicaReport{Replica: addr}
		}
	}

	report := &Report{Scenario: s.Name, Strategy: r.settings.Strategy}
	started := time.Now()
	end := r.start.Add(s.Duration)
	now := r.start

	var window *Window

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		now = now.Add(limiter.ReserveN(now, 1).DelayFrom(now))
		if !now.Before(end) {
			break
		}
		virtual.set(now)

		offset := now.Sub(r.start)
		if window == nil || offset >= window.Start+s.ReportInterval {
			report.Windows = append(report.Windows, Window{
				Start:        offset - offset%s.ReportInterval,
				FirstChoices: make(map[replica.Replica]int),
			})
			window = &report.Windows[len(report.Windows)-1]
		}

		report.Requests++
		window.Requests++

		attempt := 0
		succeeded := false
		for candidate := range lb.Order(cluster, replicas) {
			if attempt >= s.MaxAttempts {
				break
			}

			latency, errorRate := profiles[candidate].at(offset)
			elapsed := sample(rng, latency, profiles[candidate].Jitter)
			verdict := replica.Accept
			if rng.Float64() < errorRate {
				verdict = replica.Reject
			}

			lb.Learn(replica.Outcome{Cluster: cluster, Replica: candidate, Verdict: verdict, Elapsed: elapsed})

			rr := reports[candidate]
			if attempt == 0 {
				rr.FirstChoices++
				window.FirstChoices[candidate]++
			}
			rr.Attempts++
			rr.TotalLatency += elapsed
			report.Attempts++

			attempt++
			if verdict == replica.Accept {
				rr.Accepted++
				succeeded = true
				break
			}
			rr.Rejected++
		}

		if succeeded {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}

	for _, addr := range replicas {
		if rr, ok := reports[addr]; ok {
			report.Replicas = append(report.Replicas, *rr)
			delete(reports, addr)
		}
	}
	report.Weights = lb.Weights(cluster)
	report.Snapshot = lb.Snapshot(cluster)
	report.Elapsed = time.Since(started)

	r.logger.Info("Simulation finished",
		slog.String("scenario", s.Name),
		slog.Int("requests", report.Requests),
		slog.Int("failed", report.Failed),
		slog.Duration("took", report.Elapsed))

	return report, nil
}

// sample draws a latency around mean with a normal jitter, never negative.
func sample(rng *rand.Rand, mean, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return mean
	}
	d := mean + time.Duration(rng.NormFloat64()*float64(jitter))
	return max(d, 0)
}
