package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/angeloszaimis/adaptive-balancer/internal/httpserver"
)

// demoBackend is an upstream with a configurable latency and error rate, for
// trying the balancer locally.
type demoBackend struct {
	name      string
	latency   time.Duration
	jitter    time.Duration
	errorRate float64

	mutex sync.Mutex
	rng   *rand.Rand
}

func newDemoBackend(name string, latency, jitter time.Duration, errorRate float64, seed uint64) *demoBackend {
	return &demoBackend{
		name:      name,
		latency:   latency,
		jitter:    jitter,
		errorRate: errorRate,
		rng:       rand.New(rand.NewPCG(seed, seed)),
	}
}

func (d *demoBackend) draw() (time.Duration, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	delay := d.latency + time.Duration(d.rng.NormFloat64()*float64(d.jitter))
	return max(delay, 0), d.rng.Float64() < d.errorRate
}

func (d *demoBackend) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		delay, fail := d.draw()

		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}

		if fail {
			http.Error(w, "injected failure", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"backend":  d.name,
			"path":     r.URL.Path,
			"delay_ms": delay.Milliseconds(),
		})
	})

	return mux
}

func newBackendCmd() *cobra.Command {
	var (
		addr      string
		latency   time.Duration
		jitter    time.Duration
		errorRate float64
		seed      uint64
	)

	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Run a demo upstream with a configurable latency and error rate",
		Args:  cobra.NoArgs,
		// The demo upstream needs no balancer configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			log := slog.New(slog.NewTextHandler(os.Stdout, nil)).With(slog.String("backend", addr))

			demo := newDemoBackend(addr, latency, jitter, errorRate, seed)
			srv, err := httpserver.New(addr, demo.routes())
			if err != nil {
				return err
			}

			srvErrCh := make(chan error, 1)
			go func() {
				srvErrCh <- srv.Start()
			}()

			log.Info("Demo backend started",
				slog.Duration("latency", latency),
				slog.Float64("error_rate", errorRate))

			select {
			case <-cmd.Context().Done():
				return srv.Shutdown(context.Background())
			case err := <-srvErrCh:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8081", "listen address")
	cmd.Flags().DurationVar(&latency, "latency", 20*time.Millisecond, "mean response latency")
	cmd.Flags().DurationVar(&jitter, "jitter", 5*time.Millisecond, "standard deviation of the latency")
	cmd.Flags().Float64Var(&errorRate, "error-rate", 0, "fraction of requests answered with 500")
	cmd.Flags().Uint64Var(&seed, "seed", uint64(time.Now().UnixNano()), "random seed")

	return cmd
}
