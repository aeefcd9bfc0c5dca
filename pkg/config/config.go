package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultAddr            = ":8080"
	defaultLogLevel        = "debug"
	defaultLogFormat       = "json"
	defaultShutdownTimeout = 5 * time.Second
	defaultJobWorkers      = 4
	defaultJobQueueSize    = 64
	defaultJobMaxAttempts  = 4
	defaultJobBaseDelay    = 500 * time.Millisecond
	defaultJobMaxDelay     = 30 * time.Second
	defaultHTTPTimeout     = 30 * time.Second
	defaultMaxConns        = 10
	defaultConnMaxLifetime = time.Hour
)

// Config holds everything the server needs at startup.
type Config struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
	LogLevel        string        `yaml:"logLevel"`
	LogFormat       string        `yaml:"logFormat"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	Database        Database      `yaml:"database"`
	NATSURL         string        `yaml:"natsUrl"`
	Jobs            Jobs          `yaml:"jobs"`
	HTTPTimeout     time.Duration `yaml:"httpTimeout"`
}

// Database configures the PostgreSQL connection pool.
type Database struct {
	URL             string        `yaml:"url"`
	MaxConns        int           `yaml:"maxConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// Jobs configures the background job runner.
type Jobs struct {
	Workers     int           `yaml:"workers"`
	QueueSize   int           `yaml:"queueSize"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseDelay   time.Duration `yaml:"baseDelay"`
	MaxDelay    time.Duration `yaml:"maxDelay"`
}

// Default returns a Config populated with built-in defaults.
func Default() Config {
	return Config{
		Addr:            defaultAddr,
		AllowedOrigins:  []string{"http://localhost:3000"},
		LogLevel:        defaultLogLevel,
		LogFormat:       defaultLogFormat,
		ShutdownTimeout: defaultShutdownTimeout,
		Database: Database{
			MaxConns:        defaultMaxConns,
			ConnMaxLifetime: defaultConnMaxLifetime,
		},
		Jobs: Jobs{
			Workers:     defaultJobWorkers,
			QueueSize:   defaultJobQueueSize,
			MaxAttempts: defaultJobMaxAttempts,
			BaseDelay:   defaultJobBaseDelay,
			MaxDelay:    defaultJobMaxDelay,
		},
		HTTPTimeout: defaultHTTPTimeout,
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by NODEFLOW_CONFIG, and environment overrides, in that order.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("NODEFLOW_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Addr = getEnv("NODEFLOW_ADDR", c.Addr)
	c.LogLevel = getEnv("NODEFLOW_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("NODEFLOW_LOG_FORMAT", c.LogFormat)
	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	if origins := os.Getenv("NODEFLOW_ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = splitList(origins)
	}

	var err error
	if c.Jobs.Workers, err = parseEnvInt("NODEFLOW_JOB_WORKERS", c.Jobs.Workers); err != nil {
		return err
	}
	if c.Jobs.MaxAttempts, err = parseEnvInt("NODEFLOW_JOB_MAX_ATTEMPTS", c.Jobs.MaxAttempts); err != nil {
		return err
	}
	if c.Database.MaxConns, err = parseEnvInt("NODEFLOW_DB_MAX_CONNS", c.Database.MaxConns); err != nil {
		return err
	}
	if c.HTTPTimeout, err = parseEnvSeconds("NODEFLOW_HTTP_TIMEOUT_SECONDS", c.HTTPTimeout); err != nil {
		return err
	}
	if c.ShutdownTimeout, err = parseEnvSeconds("NODEFLOW_SHUTDOWN_TIMEOUT_SECONDS", c.ShutdownTimeout); err != nil {
		return err
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	if c.Addr == "" {
		return errors.New("listen address cannot be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}
	if c.Jobs.Workers <= 0 {
		return errors.New("job workers must be positive")
	}
	if c.Jobs.QueueSize <= 0 {
		return errors.New("job queue size must be positive")
	}
	if c.Jobs.MaxAttempts <= 0 {
		return errors.New("job max attempts must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("http timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func parseEnvInt(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseEnvSeconds(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return time.Duration(n) * time.Second, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
