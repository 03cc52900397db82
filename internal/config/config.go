// Package config loads and validates application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is stripped from environment variables; "__" nests keys, e.g.
// NOTIFIER_SMTP__PASSWORD overrides smtp.password.
const envPrefix = "NOTIFIER_"

// Config is the full application configuration.
type Config struct {
	Log       LogConfig       `koanf:"log"`
	Database  DatabaseConfig  `koanf:"database"`
	Server    ServerConfig    `koanf:"server"`
	SMTP      SMTPConfig      `koanf:"smtp"`
	Worker    WorkerConfig    `koanf:"worker"`
	Reminders RemindersConfig `koanf:"reminders"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// DatabaseConfig contains PostgreSQL configuration.
type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts" validate:"min=1"`
}

// ServerConfig contains the ops HTTP server configuration.
type ServerConfig struct {
	Host        string `koanf:"host"`
	MetricsPort string `koanf:"metrics_port" validate:"required"`
}

// SMTPConfig contains email gateway configuration. Host and from address are
// required: the process refuses to start without working delivery settings.
type SMTPConfig struct {
	Host        string  `koanf:"host" validate:"required"`
	Port        int     `koanf:"port" validate:"min=1,max=65535"`
	User        string  `koanf:"user"`
	Password    string  `koanf:"password"`
	FromAddress string  `koanf:"from_address" validate:"required"`
	RateLimit   float64 `koanf:"rate_limit" validate:"min=0"`
}

// WorkerConfig contains dispatch loop policy values.
type WorkerConfig struct {
	BatchSize      int           `koanf:"batch_size" validate:"min=1"`
	PollInterval   time.Duration `koanf:"poll_interval" validate:"min=1"`
	ScanInterval   time.Duration `koanf:"scan_interval" validate:"min=1"`
	DefaultSubject string        `koanf:"default_subject"`
}

// RemindersConfig contains reminder scheduler policy values.
type RemindersConfig struct {
	WindowStart time.Duration `koanf:"window_start" validate:"min=0"`
	WindowEnd   time.Duration `koanf:"window_end" validate:"min=0"`
	DedupKey    string        `koanf:"dedup_key" validate:"oneof=run_date class_date"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    5,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			MetricsPort: "9090",
		},
		SMTP: SMTPConfig{
			Port:      587,
			RateLimit: 1,
		},
		Worker: WorkerConfig{
			BatchSize:      5,
			PollInterval:   5 * time.Second,
			ScanInterval:   30 * time.Minute,
			DefaultSubject: "Guitar Lesson Update",
		},
		Reminders: RemindersConfig{
			WindowStart: 3*time.Hour + 30*time.Minute,
			WindowEnd:   4*time.Hour + 30*time.Minute,
			DedupKey:    "run_date",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for consistency.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	if cfg.Reminders.WindowEnd <= cfg.Reminders.WindowStart {
		return fmt.Errorf("validate config: reminder window end (%s) must be after window start (%s)",
			cfg.Reminders.WindowEnd, cfg.Reminders.WindowStart)
	}

	return nil
}
