package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/adaptive-balancer/internal/calculator"
	"github.com/angeloszaimis/adaptive-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/adaptive-balancer/internal/modifier"
	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
	"github.com/angeloszaimis/adaptive-balancer/internal/strategy"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	Environment     string        `mapstructure:"environment"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	AddSource bool   `mapstructure:"add_source"`
}

// ClusterConfig names the cluster every proxied request is balanced within.
type ClusterConfig struct {
	Service     string `mapstructure:"service"`
	Environment string `mapstructure:"environment"`
}

type StrategyConfig struct {
	Type string `mapstructure:"type"`
}

type WeightsConfig struct {
	MinWeight     float64 `mapstructure:"min_weight"`
	MaxWeight     float64 `mapstructure:"max_weight"`
	InitialWeight float64 `mapstructure:"initial_weight"`
}

type AdaptiveConfig struct {
	Enabled                       bool          `mapstructure:"enabled"`
	UpdatePeriod                  time.Duration `mapstructure:"update_period"`
	PenaltyMultiplier             float64       `mapstructure:"penalty_multiplier"`
	StatisticSmoothingConstant    time.Duration `mapstructure:"statistic_smoothing_constant"`
	WeightsRaiseSmoothingConstant time.Duration `mapstructure:"weights_raise_smoothing_constant"`
	WeightsDownSmoothingConstant  time.Duration `mapstructure:"weights_down_smoothing_constant"`
	WeightsTTL                    time.Duration `mapstructure:"weights_ttl"`
	StatisticTTL                  time.Duration `mapstructure:"statistic_ttl"`
	MinWeight                     float64       `mapstructure:"min_weight"`
	MaxWeight                     float64       `mapstructure:"max_weight"`
	InitialWeight                 float64       `mapstructure:"initial_weight"`
	Sensitivity                   float64       `mapstructure:"sensitivity"`
	StatusRpsThreshold            float64       `mapstructure:"status_rps_threshold"`
}

type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
	DownMultiplier   float64       `mapstructure:"down_multiplier"`
}

// PinConfig lists replica addresses (host:port) preferred over the rest.
type PinConfig struct {
	Replicas   []string `mapstructure:"replicas"`
	Multiplier float64  `mapstructure:"multiplier"`
}

type HealthCheckConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Path     string        `mapstructure:"path"`
}

type ProxyConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

type MetricsConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BufferSize     int    `mapstructure:"buffer_size"`
	Path           string `mapstructure:"path"`
	PrometheusPath string `mapstructure:"prometheus_path"`
	StatePath      string `mapstructure:"state_path"`
}

// BackendConfig is one upstream. A weight above 1 lists the backend that
// many times among the candidates of each call.
type BackendConfig struct {
	URL    string `mapstructure:"url"`
	Weight int    `mapstructure:"weight"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Cluster     ClusterConfig     `mapstructure:"cluster"`
	Strategy    StrategyConfig    `mapstructure:"strategy"`
	Weights     WeightsConfig     `mapstructure:"weights"`
	Adaptive    AdaptiveConfig    `mapstructure:"adaptive"`
	Breaker     BreakerConfig     `mapstructure:"breaker"`
	Pin         PinConfig         `mapstructure:"pin"`
	HealthCheck HealthCheckConfig `mapstructure:"health_check"`
	Proxy       ProxyConfig       `mapstructure:"proxy"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Backends    []BackendConfig   `mapstructure:"backends"`
}

func setDefaults(v *viper.Viper) {
	adaptive := modifier.DefaultAdaptiveSettings()

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("logging.add_source", false)

	v.SetDefault("cluster.service", "default")
	v.SetDefault("cluster.environment", EnvDev)

	v.SetDefault("strategy.type", strategy.TypeWeighted)

	// A zero minimum keeps unhealthy replicas in the last group.
	v.SetDefault("weights.min_weight", 0.0)
	v.SetDefault("weights.max_weight", 1.0)
	v.SetDefault("weights.initial_weight", 1.0)

	v.SetDefault("adaptive.enabled", true)
	v.SetDefault("adaptive.update_period", adaptive.UpdatePeriod)
	v.SetDefault("adaptive.penalty_multiplier", adaptive.PenaltyMultiplier)
	v.SetDefault("adaptive.statistic_smoothing_constant", adaptive.StatisticSmoothingConstant)
	v.SetDefault("adaptive.weights_raise_smoothing_constant", adaptive.WeightsRaiseSmoothingConstant)
	v.SetDefault("adaptive.weights_down_smoothing_constant", adaptive.WeightsDownSmoothingConstant)
	v.SetDefault("adaptive.weights_ttl", adaptive.WeightsTTL)
	v.SetDefault("adaptive.statistic_ttl", adaptive.StatisticTTL)
	v.SetDefault("adaptive.min_weight", adaptive.MinWeight)
	v.SetDefault("adaptive.max_weight", adaptive.MaxWeight)
	v.SetDefault("adaptive.initial_weight", adaptive.InitialWeight)
	v.SetDefault("adaptive.sensitivity", adaptive.Sensitivity)
	v.SetDefault("adaptive.status_rps_threshold", adaptive.StatusRpsThreshold)

	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout", "30s")
	v.SetDefault("breaker.down_multiplier", 0.1)

	v.SetDefault("pin.replicas", []string{})
	v.SetDefault("pin.multiplier", 10.0)

	v.SetDefault("health_check.interval", "2s")
	v.SetDefault("health_check.timeout", "1s")
	v.SetDefault("health_check.path", "/health")

	v.SetDefault("proxy.max_attempts", 3)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.buffer_size", 1024)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.prometheus_path", "/metrics/prometheus")
	v.SetDefault("metrics.state_path", "/metrics/state")
}

// Load reads an optional .env file, then configFile when set or config.yaml
// from ./config or the working directory. Environment variables override file
// values, with dots in keys replaced by underscores.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to read .env file", slog.String("error", err.Error()))
		return nil, err
	}

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
					validation.Field(&sc.ReadTimeout, validation.Min(time.Duration(0))),
					validation.Field(&sc.WriteTimeout, validation.Min(time.Duration(0))),
					validation.Field(&sc.IdleTimeout, validation.Min(time.Duration(0))),
					validation.Field(&sc.ShutdownTimeout, validation.Required, validation.Min(time.Millisecond)),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Cluster,
			validation.Required,
			validation.By(func(value interface{}) error {
				cc, ok := value.(ClusterConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ClusterConfig")
				}
				return validation.ValidateStruct(&cc,
					validation.Field(&cc.Service, validation.Required),
					validation.Field(&cc.Environment, validation.Required),
				)
			}),
		),
		validation.Field(&c.Strategy,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(StrategyConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a StrategyConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Type,
						validation.Required,
						validation.In(strategy.TypeWeighted, strategy.TypeRandom, strategy.TypeRoundRobin),
					),
				)
			}),
		),
		validation.Field(&c.Weights, validation.By(func(value interface{}) error {
			return c.calculatorSettings().Validate()
		})),
		validation.Field(&c.Adaptive, validation.By(func(value interface{}) error {
			if !c.Adaptive.Enabled {
				return nil
			}
			return c.AdaptiveSettings().Validate()
		})),
		validation.Field(&c.Breaker, validation.By(func(value interface{}) error {
			if !c.Breaker.Enabled {
				return nil
			}
			return c.breakerSettings().Validate()
		})),
		validation.Field(&c.Pin, validation.By(func(value interface{}) error {
			pc, ok := value.(PinConfig)
			if !ok {
				return validation.NewError("validation_invalid_type", "must be a PinConfig")
			}
			if len(pc.Replicas) == 0 {
				return nil
			}
			// The calculator clamps every stage to max_weight.
			if !(c.Weights.MaxWeight > 1) {
				return validation.NewError("validation_pin_ceiling", "requires weights.max_weight above 1")
			}
			return validation.ValidateStruct(&pc,
				validation.Field(&pc.Replicas, validation.Each(validation.Required, validation.By(validateHostPort))),
				validation.Field(&pc.Multiplier, validation.By(func(value interface{}) error {
					m, _ := value.(float64)
					if !(m > 1) {
						return validation.NewError("validation_invalid_multiplier", "must be greater than 1")
					}
					return nil
				})),
			)
		})),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval, validation.Required, validation.Min(time.Millisecond)),
					validation.Field(&hc.Timeout, validation.Required, validation.Min(time.Millisecond)),
					validation.Field(&hc.Path, validation.Required, validation.By(validatePath)),
				)
			}),
		),
		validation.Field(&c.Proxy, validation.By(func(value interface{}) error {
			pc, ok := value.(ProxyConfig)
			if !ok {
				return validation.NewError("validation_invalid_type", "must be a ProxyConfig")
			}
			return validation.ValidateStruct(&pc,
				validation.Field(&pc.MaxAttempts, validation.Required, validation.Min(1)),
			)
		})),
		validation.Field(&c.Metrics, validation.By(func(value interface{}) error {
			mc, ok := value.(MetricsConfig)
			if !ok {
				return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
			}
			if !mc.Enabled {
				return nil
			}
			return validation.ValidateStruct(&mc,
				validation.Field(&mc.BufferSize, validation.Required, validation.Min(1)),
				validation.Field(&mc.Path, validation.Required, validation.By(validatePath)),
				validation.Field(&mc.PrometheusPath, validation.Required, validation.By(validatePath)),
				validation.Field(&mc.StatePath, validation.Required, validation.By(validatePath)),
			)
		})),
		validation.Field(&c.Backends,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateBackendConfig)),
		),
	)
}

func (c *Config) calculatorSettings() calculator.Settings {
	return calculator.Settings{
		MinWeight:     c.Weights.MinWeight,
		MaxWeight:     c.Weights.MaxWeight,
		InitialWeight: c.Weights.InitialWeight,
	}
}

func (c *Config) breakerSettings() modifier.BreakerSettings {
	return modifier.BreakerSettings{
		FailureThreshold: c.Breaker.FailureThreshold,
		ResetTimeout:     c.Breaker.ResetTimeout,
		DownMultiplier:   c.Breaker.DownMultiplier,
	}
}

// AdaptiveSettings maps the adaptive section onto the modifier's settings.
func (c *Config) AdaptiveSettings() modifier.AdaptiveSettings {
	a := c.Adaptive
	return modifier.AdaptiveSettings{
		UpdatePeriod:                  a.UpdatePeriod,
		PenaltyMultiplier:             a.PenaltyMultiplier,
		StatisticSmoothingConstant:    a.StatisticSmoothingConstant,
		WeightsRaiseSmoothingConstant: a.WeightsRaiseSmoothingConstant,
		WeightsDownSmoothingConstant:  a.WeightsDownSmoothingConstant,
		WeightsTTL:                    a.WeightsTTL,
		StatisticTTL:                  a.StatisticTTL,
		MinWeight:                     a.MinWeight,
		MaxWeight:                     a.MaxWeight,
		InitialWeight:                 a.InitialWeight,
		Sensitivity:                   a.Sensitivity,
		StatusRpsThreshold:            a.StatusRpsThreshold,
	}
}

// LoadBalancerSettings assembles the balancer's modifier chain. Disabled
// sections are left nil.
func (c *Config) LoadBalancerSettings() loadbalancer.Settings {
	settings := loadbalancer.Settings{
		Strategy: c.Strategy.Type,
		Weights:  c.calculatorSettings(),
	}

	if c.Adaptive.Enabled {
		adaptive := c.AdaptiveSettings()
		settings.Adaptive = &adaptive
	}

	if c.Breaker.Enabled {
		breaker := c.breakerSettings()
		settings.Breaker = &breaker
	}

	if len(c.Pin.Replicas) > 0 {
		pinned := make([]replica.Replica, 0, len(c.Pin.Replicas))
		for _, addr := range c.Pin.Replicas {
			pinned = append(pinned, replica.Replica(addr))
		}
		settings.Pin = &loadbalancer.PinSettings{
			Multiplier: c.Pin.Multiplier,
			Replicas:   pinned,
		}
	}

	return settings
}

// ClusterKey is the cluster requests are balanced within.
func (c *Config) ClusterKey() replica.Cluster {
	return replica.Cluster{Service: c.Cluster.Service, Environment: c.Cluster.Environment}
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validatePath(value interface{}) error {
	path, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if !strings.HasPrefix(path, "/") {
		return validation.NewError("validation_invalid_path", "must start with /")
	}

	return nil
}

func validateBackendConfig(value interface{}) error {
	backend, ok := value.(BackendConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a BackendConfig")
	}

	if backend.URL == "" {
		return validation.NewError("validation_empty_url", "backend URL cannot be empty")
	}

	parsedURL, err := url.Parse(backend.URL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	if backend.Weight < 1 {
		return validation.NewError("validation_invalid_weight", "weight must be at least 1")
	}

	return nil
}
