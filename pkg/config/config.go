// Package config loads the dispatch pipeline configuration from a YAML
// file and DISPATCH_* environment variables via viper. Scheduling knobs
// (sweep intervals, grace period, escalation window, retry budget) live
// here; nothing else in the pipeline reads the environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/grassrootza/grassroot-dispatch/pkg/observability"
)

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	// Path is the database file; ":memory:" is ephemeral.
	Path string `mapstructure:"path" yaml:"path"`
}

// RedisConfig connects the idempotency guard and sweep leases. An empty
// address selects the in-process implementations.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// BrokerConfig controls the async bundle store path.
type BrokerConfig struct {
	QueueCapacity   int           `mapstructure:"queue_capacity" yaml:"queue_capacity"`
	Workers         int           `mapstructure:"workers" yaml:"workers"`
	StoreRetries    int           `mapstructure:"store_retries" yaml:"store_retries"`
	StoreRetryDelay time.Duration `mapstructure:"store_retry_delay" yaml:"store_retry_delay"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DispatchConfig controls individual delivery attempts.
type DispatchConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	ClaimWindow time.Duration `mapstructure:"claim_window" yaml:"claim_window"`
	SendTimeout time.Duration `mapstructure:"send_timeout" yaml:"send_timeout"`
}

// SweepConfig controls the scheduled batch passes.
type SweepConfig struct {
	PendingInterval    time.Duration `mapstructure:"pending_interval" yaml:"pending_interval"`
	EscalationInterval time.Duration `mapstructure:"escalation_interval" yaml:"escalation_interval"`
	RetryInterval      time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`
	GracePeriod        time.Duration `mapstructure:"grace_period" yaml:"grace_period"`
	EscalationWindow   time.Duration `mapstructure:"escalation_window" yaml:"escalation_window"`
	BackoffBase        time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	BatchSize          int           `mapstructure:"batch_size" yaml:"batch_size"`
	LeaseTTL           time.Duration `mapstructure:"lease_ttl" yaml:"lease_ttl"`
}

// Config is the top-level pipeline configuration.
type Config struct {
	LogLevel  string               `mapstructure:"log_level" yaml:"log_level"`
	Database  DatabaseConfig       `mapstructure:"database" yaml:"database"`
	Redis     RedisConfig          `mapstructure:"redis" yaml:"redis"`
	Broker    BrokerConfig         `mapstructure:"broker" yaml:"broker"`
	Dispatch  DispatchConfig       `mapstructure:"dispatch" yaml:"dispatch"`
	Sweeps    SweepConfig          `mapstructure:"sweeps" yaml:"sweeps"`
	Telemetry observability.Config `mapstructure:"telemetry" yaml:"telemetry"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		LogLevel: "info",
		Database: DatabaseConfig{Path: "dispatch.db"},
		Broker: BrokerConfig{
			QueueCapacity:   256,
			Workers:         4,
			StoreRetries:    3,
			StoreRetryDelay: 250 * time.Millisecond,
			ShutdownTimeout: 10 * time.Second,
		},
		Dispatch: DispatchConfig{
			MaxAttempts: 3,
			ClaimWindow: 30 * time.Second,
			SendTimeout: 10 * time.Second,
		},
		Sweeps: SweepConfig{
			PendingInterval:    2 * time.Minute,
			EscalationInterval: 5 * time.Minute,
			RetryInterval:      5 * time.Minute,
			GracePeriod:        2 * time.Minute,
			EscalationWindow:   30 * time.Minute,
			BackoffBase:        5 * time.Minute,
			BatchSize:          100,
			LeaseTTL:           10 * time.Minute,
		},
		Telemetry: observability.DefaultConfig(),
	}
}

// Load reads configuration from path (optional) merged over Default and
// DISPATCH_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("DISPATCH")
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("dispatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return cfg, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("broker.queue_capacity", cfg.Broker.QueueCapacity)
	v.SetDefault("broker.workers", cfg.Broker.Workers)
	v.SetDefault("broker.store_retries", cfg.Broker.StoreRetries)
	v.SetDefault("broker.store_retry_delay", cfg.Broker.StoreRetryDelay)
	v.SetDefault("broker.shutdown_timeout", cfg.Broker.ShutdownTimeout)
	v.SetDefault("dispatch.max_attempts", cfg.Dispatch.MaxAttempts)
	v.SetDefault("dispatch.claim_window", cfg.Dispatch.ClaimWindow)
	v.SetDefault("dispatch.send_timeout", cfg.Dispatch.SendTimeout)
	v.SetDefault("sweeps.pending_interval", cfg.Sweeps.PendingInterval)
	v.SetDefault("sweeps.escalation_interval", cfg.Sweeps.EscalationInterval)
	v.SetDefault("sweeps.retry_interval", cfg.Sweeps.RetryInterval)
	v.SetDefault("sweeps.grace_period", cfg.Sweeps.GracePeriod)
	v.SetDefault("sweeps.escalation_window", cfg.Sweeps.EscalationWindow)
	v.SetDefault("sweeps.backoff_base", cfg.Sweeps.BackoffBase)
	v.SetDefault("sweeps.batch_size", cfg.Sweeps.BatchSize)
	v.SetDefault("sweeps.lease_ttl", cfg.Sweeps.LeaseTTL)
	v.SetDefault("telemetry.enabled", cfg.Telemetry.Enabled)
	v.SetDefault("telemetry.service_name", cfg.Telemetry.ServiceName)
	v.SetDefault("telemetry.service_version", cfg.Telemetry.ServiceVersion)
	v.SetDefault("telemetry.environment", cfg.Telemetry.Environment)
	v.SetDefault("telemetry.otlp_endpoint", cfg.Telemetry.OTLPEndpoint)
	v.SetDefault("telemetry.sample_rate", cfg.Telemetry.SampleRate)
}
