// Package config loads the server configuration from an optional YAML file
// and the environment. Environment variables win over file values.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config aggregates every setting of the service.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// AllowedOrigins enables CORS when non-empty. "*" allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// StoreConfig describes where the user collection is persisted.
type StoreConfig struct {
	Backend  string `yaml:"backend"`
	DataFile string `yaml:"data_file"`
}

// LogConfig sets the minimum level of the default slog logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level name onto a slog.Level.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	return level, nil
}

// MetricsConfig describes the optional Prometheus listener. An empty address
// disables it.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 3000,
		},
		Store: StoreConfig{
			Backend: "json",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_FILE (if set), then environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if file := strings.TrimSpace(os.Getenv("CONFIG_FILE")); file != "" {
		if err := loadConfigFile(cfg, file); err != nil {
			return nil, fmt.Errorf("failed to load config from yaml: %w", err)
		}
	}

	if err := loadEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.Store.DataFile == "" {
		cfg.Store.DataFile = defaultDataFile(cfg.Store.Backend)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFile(cfg any, filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	return decoder.Decode(cfg)
}

func loadEnv(cfg *Config) error {
	cfg.Server.Host = getEnvOrDefault("HOST", cfg.Server.Host)

	port, err := parseOptionalIntEnv("PORT")
	if err != nil {
		return err
	}
	if port != nil {
		cfg.Server.Port = *port
	}

	if origins := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); origins != "" {
		cfg.Server.AllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, o)
			}
		}
	}

	cfg.Store.Backend = getEnvOrDefault("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.DataFile = getEnvOrDefault("DATA_FILE", cfg.Store.DataFile)

	cfg.Log.Level = getEnvOrDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Metrics.Address = getEnvOrDefault("METRICS_ADDR", cfg.Metrics.Address)
	return nil
}

func defaultDataFile(backend string) string {
	if backend == "sqlite" {
		return "users.db"
	}
	return "users.json"
}

func (c *Config) validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid PORT value: %d", c.Server.Port)
	}
	switch c.Store.Backend {
	case "json", "sqlite", "memory":
	default:
		return fmt.Errorf("invalid STORE_BACKEND value %q (supported: json, sqlite, memory)", c.Store.Backend)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
