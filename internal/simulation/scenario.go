package simulation

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

// Scenario describes simulated traffic against a set of replica profiles.
type Scenario struct {
	Name           string           `yaml:"name" json:"name"`
	Service        string           `yaml:"service" json:"service"`
	Environment    string           `yaml:"environment" json:"environment"`
	Duration       time.Duration    `yaml:"duration" json:"duration"`
	Rate           float64          `yaml:"rate" json:"rate"`   // requests per second
	Burst          int              `yaml:"burst" json:"burst"` // requests allowed at once
	MaxAttempts    int              `yaml:"max_attempts" json:"max_attempts"`
	Seed           uint64           `yaml:"seed" json:"seed"`
	ReportInterval time.Duration    `yaml:"report_interval" json:"report_interval"`
	Replicas       []ReplicaProfile `yaml:"replicas" json:"replicas"`
}

// ReplicaProfile is how one replica behaves over the scenario.
type ReplicaProfile struct {
	Address      string        `yaml:"address" json:"address"`
	Latency      time.Duration `yaml:"latency" json:"latency"`
	Jitter       time.Duration `yaml:"jitter" json:"jitter"`
	ErrorRate    float64       `yaml:"error_rate" json:"error_rate"`
	Degradations []Degradation `yaml:"degradations" json:"degradations"`
}

// Degradation replaces a profile's latency and error rate between From and
// To, both measured from the scenario start.
type Degradation struct {
	From      time.Duration `yaml:"from" json:"from"`
	To        time.Duration `yaml:"to" json:"to"`
	Latency   time.Duration `yaml:"latency" json:"latency"`
	ErrorRate float64       `yaml:"error_rate" json:"error_rate"`
}

// LoadScenario reads a YAML scenario file, fills defaults and validates it.
func LoadScenario(path string) (*Scenario, error) {
	path, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scenario path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}

	var s Scenario
	if err = yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario %s: %w", path, err)
	}

	s.applyDefaults()
	if err = s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}

	return &s, nil
}

func (s *Scenario) applyDefaults() {
	if s.Name == "" {
		s.Name = "scenario"
	}
	if s.Service == "" {
		s.Service = "simulated"
	}
	if s.Environment == "" {
		s.Environment = "sim"
	}
	if s.Burst == 0 {
		s.Burst = 1
	}
	if s.MaxAttempts == 0 {
		s.MaxAttempts = 1
	}
	if s.ReportInterval == 0 {
		s.ReportInterval = s.Duration
	}
}

func (s *Scenario) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Duration, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&s.Rate, validation.Required, validation.Min(0.001)),
		validation.Field(&s.Burst, validation.Min(1)),
		validation.Field(&s.MaxAttempts, validation.Min(1)),
		validation.Field(&s.ReportInterval, validation.Min(time.Millisecond)),
		validation.Field(&s.Replicas, validation.Required, validation.Length(1, 0)),
	)
}

func (p ReplicaProfile) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Address, validation.Required),
		validation.Field(&p.Latency, validation.Min(time.Duration(0))),
		validation.Field(&p.Jitter, validation.Min(time.Duration(0))),
		validation.Field(&p.ErrorRate, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&p.Degradations),
	)
}

func (d Degradation) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.From, validation.Min(time.Duration(0))),
		validation.Field(&d.To, validation.Required, validation.Min(d.From)),
		validation.Field(&d.Latency, validation.Min(time.Duration(0))),
		validation.Field(&d.ErrorRate, validation.Min(0.0), validation.Max(1.0)),
	)
}

// Cluster is the key the simulated replicas are balanced under.
func (s *Scenario) Cluster() replica.Cluster {
	return replica.Cluster{Service: s.Service, Environment: s.Environment}
}

// at returns the latency and error rate of p at offset into the scenario.
func (p ReplicaProfile) at(offset time.Duration) (time.Duration, float64) {
	for _, d := range p.Degradations {
		if offset >= d.From && offset < d.To {
			return d.Latency, d.ErrorRate
		}
	}
	return p.Latency, p.ErrorRate
}
