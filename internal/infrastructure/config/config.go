package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server   ServerConfig    `koanf:"server"`
	Olap     OlapConfig      `koanf:"olap"`
	Redis    RedisConfig     `koanf:"redis"`
	Analysis AnalysisConfig  `koanf:"analysis"`
	Cost     CostConfig      `koanf:"cost"`
	Cache    CacheConfig     `koanf:"cache"`
	Circuit  CircuitConfig   `koanf:"circuit"`
	Retry    RetryConfig     `koanf:"retry"`
	Limits   RateLimitConfig `koanf:"limits"`
}

type ServerConfig struct {
	MetricsPort     int           `koanf:"metrics_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type OlapConfig struct {
	URL             string        `koanf:"url"`
	TelemetryTable  string        `koanf:"telemetry_table"`
	CostTable       string        `koanf:"cost_table"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MinIdleConns    int           `koanf:"min_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	QueryTimeout    time.Duration `koanf:"query_timeout"`
}

type RedisConfig struct {
	URL          string        `koanf:"url"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// AnalysisConfig tunes the validator and the statistics engine
type AnalysisConfig struct {
	MinDataPoints     int     `koanf:"min_data_points"`
	MaxNullPercentage float64 `koanf:"max_null_percentage"`
	MinTimeSpanHours  float64 `koanf:"min_time_span_hours"`
	OutlierZThreshold float64 `koanf:"outlier_z_threshold"`
	AnomalyZThreshold float64 `koanf:"anomaly_z_threshold"`
}

// CostConfig tunes the cost optimizer
type CostConfig struct {
	HighCostPerRequestCents float64 `koanf:"high_cost_per_request_cents"`
	MinSavingsPercentage    float64 `koanf:"min_savings_percentage"`
	TargetSavingsPercentage float64 `koanf:"target_savings_percentage"`
}

// CacheConfig controls schema and query-result caching
type CacheConfig struct {
	SchemaTTL time.Duration `koanf:"schema_ttl"`
	ResultTTL time.Duration `koanf:"result_ttl"`
	// Per-kind TTL overrides, keyed by analysis kind
	ResultTTLByKind map[string]time.Duration `koanf:"result_ttl_by_kind"`
}

// CircuitConfig controls the per-operation circuit breakers.
// Thresholds carries per-operation overrides of the default.
type CircuitConfig struct {
	FailureThreshold int            `koanf:"failure_threshold"`
	RecoveryTimeout  time.Duration  `koanf:"recovery_timeout"`
	Thresholds       map[string]int `koanf:"thresholds"`
}

type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	BurstSize         int     `koanf:"burst_size"`
}

// ResultTTLFor returns the result-cache TTL for an analysis kind,
// falling back to the package-wide default
func (c *CacheConfig) ResultTTLFor(kind string) time.Duration {
	if ttl, ok := c.ResultTTLByKind[kind]; ok && ttl > 0 {
		return ttl
	}
	return c.ResultTTL
}

// FailureThresholdFor returns the breaker threshold for an operation name,
// falling back to the default
func (c *CircuitConfig) FailureThresholdFor(op string) int {
	if t, ok := c.Thresholds[op]; ok && t > 0 {
		return t
	}
	return c.FailureThreshold
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load defaults
	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			MetricsPort:     9090,
			ShutdownTimeout: 30 * time.Second,
		},
		Olap: OlapConfig{
			TelemetryTable:  "telemetry_events",
			CostTable:       "workload_costs",
			MaxOpenConns:    25,
			MinIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			QueryTimeout:    30 * time.Second,
		},
		Redis: RedisConfig{
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Analysis: AnalysisConfig{
			MinDataPoints:     10,
			MaxNullPercentage: 20.0,
			MinTimeSpanHours:  1.0,
			OutlierZThreshold: 2.0,
			AnomalyZThreshold: 3.0,
		},
		Cost: CostConfig{
			HighCostPerRequestCents: 5.0,
			MinSavingsPercentage:    10.0,
			TargetSavingsPercentage: 25.0,
		},
		Cache: CacheConfig{
			SchemaTTL: time.Hour,
			ResultTTL: 15 * time.Minute,
			ResultTTLByKind: map[string]time.Duration{
				"cost_optimization": time.Hour,
				"anomaly":           5 * time.Minute,
			},
		},
		Circuit: CircuitConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			Thresholds: map[string]int{
				"cost_optimization": 3,
			},
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    5 * time.Second,
		},
		Limits: RateLimitConfig{
			RequestsPerSecond: 50,
			BurstSize:         100,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Load from config file if exists
	if err := k.Load(file.Provider("configs/config.yaml"), yaml.Parser()); err != nil {
		// Config file is optional
	}

	// Override with environment variables
	if err := k.Load(env.Provider("TAB_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "TAB_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
