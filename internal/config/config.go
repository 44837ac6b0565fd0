// Package config loads service configuration from the environment (optionally
// seeded from a .env file) and approval policies from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-p2p-workflow/internal/reasoning"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
)

// Config is the full service configuration.
type Config struct {
	Service   ServiceConfig
	Server    ServerConfig
	Database  DatabaseConfig
	NATS      NATSConfig
	Redis     RedisConfig
	Policies  PolicyConfig
	Scheduler SchedulerConfig
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
}

type ServerConfig struct {
	Port            int
	GRPCPort        int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig points at the Postgres audit log. An empty URL disables it.
type DatabaseConfig struct {
	URL      string
	MaxConns int32
}

// NATSConfig points at the event broker. An empty URL disables publishing.
type NATSConfig struct {
	URL string
}

// RedisConfig points at the report cache. An empty Addr disables caching.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// PolicyConfig locates the approval policy file. An empty File selects the
// built-in defaults.
type PolicyConfig struct {
	File string
}

type SchedulerConfig struct {
	OverdueSpec string
}

// Load reads .env (when present) and the environment.
func Load() (*Config, error) {
	// a missing .env file is normal outside development
	_ = godotenv.Load()

	cfg := &Config{
		Service: ServiceConfig{
			Name:        getEnv("SERVICE_NAME", "p2p-workflow"),
			Version:     getEnv("SERVICE_VERSION", "dev"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port:            getEnvInt("HTTP_PORT", 8080),
			GRPCPort:        getEnvInt("GRPC_PORT", 9090),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
			AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: int32(getEnvInt("DATABASE_MAX_CONNS", 10)),
		},
		NATS: NATSConfig{
			URL: getEnv("NATS_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("REPORT_CACHE_TTL", 15*time.Minute),
		},
		Policies: PolicyConfig{
			File: getEnv("POLICY_FILE", ""),
		},
		Scheduler: SchedulerConfig{
			OverdueSpec: getEnv("OVERDUE_SCHEDULE", "@hourly"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid HTTP_PORT %d", c.Server.Port)
	}
	if c.Server.GRPCPort <= 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid GRPC_PORT %d", c.Server.GRPCPort)
	}
	if c.Server.Port == c.Server.GRPCPort {
		return fmt.Errorf("HTTP_PORT and GRPC_PORT must differ")
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("invalid DATABASE_MAX_CONNS %d", c.Database.MaxConns)
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as int or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

// getEnvDuration parses values like "30s" or "5m", falling back on error.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty elements.
func getEnvList(key string, defaultValue []string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// ── Policy file ──────────────────────────────────────────────────────────────

// PolicyFile is the YAML document holding approval policies and, optionally,
// analysis thresholds. Amounts are in cents.
//
//	policies:
//	  - name: Low Value Purchase Policy
//	    target: purchase_order
//	    min_amount: 0
//	    max_amount: 100000
//	    required_approvers: ["John Smith (Dept Manager)"]
//	thresholds:
//	  unusual_amount_ratio: 3.0
//	  split_invoice_window: 720h
type PolicyFile struct {
	Policies   []repository.ApprovalPolicy `yaml:"policies"`
	Thresholds *reasoning.Thresholds       `yaml:"thresholds,omitempty"`
}

// LoadPolicyFile reads and decodes path. Bracket consistency is checked by
// the approval resolver, not here.
func LoadPolicyFile(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicyFile(data)
}

// ParsePolicyFile decodes a policy document. Unset thresholds keep their
// defaults.
func ParsePolicyFile(data []byte) (*PolicyFile, error) {
	file := &PolicyFile{}
	var raw struct {
		Policies   []repository.ApprovalPolicy `yaml:"policies"`
		Thresholds *yaml.Node                  `yaml:"thresholds"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if len(raw.Policies) == 0 {
		return nil, fmt.Errorf("policy file defines no policies")
	}
	file.Policies = raw.Policies

	if raw.Thresholds != nil {
		t := reasoning.DefaultThresholds()
		if err := raw.Thresholds.Decode(&t); err != nil {
			return nil, fmt.Errorf("failed to parse thresholds: %w", err)
		}
		file.Thresholds = &t
	}
	return file, nil
}
