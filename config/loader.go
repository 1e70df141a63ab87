package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultWalkSpeed      = 1.5
	DefaultWorkers        = 4
	DefaultTimeoutSeconds = 60
	DefaultMaxSizeMB      = 800

	EnvDatabaseURL = "CSA_DATABASE_URL"
	EnvNATSURL     = "CSA_NATS_URL"
	EnvMetricsAddr = "CSA_METRICS_ADDR"
)

// Load reads and validates a YAML configuration file. Variables in a
// .env file in the working directory, if any, are loaded into the
// environment first, and CSA_* variables override the file.
func Load(path string) (*Config, error) {
	// Ignore if missing
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return Parse(data)
}

// Parse decodes, defaults, applies env overrides and validates a
// YAML configuration.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	applyDefaults(cfg)
	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Defaults returns a configuration with defaults and env overrides
// applied, for callers that fill in the rest from flags. It is not
// validated.
func Defaults() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg
}

func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Routing.WalkSpeed == 0 {
		cfg.Routing.WalkSpeed = DefaultWalkSpeed
	}
	if cfg.Routing.Workers == 0 {
		cfg.Routing.Workers = DefaultWorkers
	}
	if cfg.Network.TimeoutSeconds == 0 {
		cfg.Network.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if cfg.Network.MaxSizeMB == 0 {
		cfg.Network.MaxSizeMB = DefaultMaxSizeMB
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func applyEnv(cfg *Config) {
	if dsn := getenvTrimmed(EnvDatabaseURL); dsn != "" {
		cfg.Storage.DatabaseURL = dsn
		if cfg.Storage.Backend == "memory" {
			cfg.Storage.Backend = "postgres"
		}
	}
	if url := getenvTrimmed(EnvNATSURL); url != "" {
		cfg.Publish.NATSURL = url
	}
	if addr := getenvTrimmed(EnvMetricsAddr); addr != "" {
		cfg.Metrics.Addr = addr
	}
}

func getenvTrimmed(k string) string {
	return strings.TrimSpace(os.Getenv(k))
}
