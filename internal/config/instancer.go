package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/instancer/internal/game/instance"
)

// Template sources.
const (
	SourceFiles    = "files"
	SourceDatabase = "database"
)

// DefaultPath is where the instancer looks for its config.
// Overridden by the INSTANCER_CONFIG environment variable.
const DefaultPath = "config/instancer.yaml"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Instancer holds all configuration for the instancing engine.
type Instancer struct {
	LogLevel string `yaml:"log_level"` // debug, info, warn, error

	// Where templates and regions come from
	TemplateSource string `yaml:"template_source"` // files | database
	DataDir        string `yaml:"data_dir"`
	ScriptsDir     string `yaml:"scripts_dir"`

	// Prometheus /metrics listener, empty disables it
	MetricsAddr string `yaml:"metrics_addr"`

	// Database
	Database DatabaseConfig `yaml:"database"`

	Instances InstancesConfig `yaml:"instances"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// InstancesConfig holds lifecycle defaults for new instances.
type InstancesConfig struct {
	EmptyDelay     time.Duration `yaml:"empty_delay"`  // default: 5m
	GracePeriod    time.Duration `yaml:"grace_period"` // default: 10m, 0 disables
	TrackOwnership bool          `yaml:"track_ownership"`
}

// DefaultInstancer returns Instancer config with sensible defaults.
func DefaultInstancer() Instancer {
	return Instancer{
		LogLevel:       "info",
		TemplateSource: SourceFiles,
		DataDir:        "data/templates",
		ScriptsDir:     "data/scripts",
		MetricsAddr:    ":9108",
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "instancer",
			Password: "instancer",
			DBName:   "instancer",
			SSLMode:  "disable",
		},
		Instances: InstancesConfig{
			EmptyDelay:     instance.DefaultEmptyDelay,
			GracePeriod:    instance.DefaultGracePeriod,
			TrackOwnership: true,
		},
	}
}

// LoadInstancer loads instancer config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadInstancer(path string) (Instancer, error) {
	cfg := DefaultInstancer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// Path returns the config path: INSTANCER_CONFIG if set, DefaultPath otherwise.
func Path() string {
	if p := os.Getenv("INSTANCER_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Validate rejects negative durations, unknown sources and log levels.
func (c Instancer) Validate() error {
	switch c.TemplateSource {
	case SourceFiles, SourceDatabase:
	default:
		return fmt.Errorf("%w: template_source %q (want %s or %s)",
			ErrInvalidConfig, c.TemplateSource, SourceFiles, SourceDatabase)
	}
	if c.Instances.EmptyDelay < 0 {
		return fmt.Errorf("%w: negative instances.empty_delay %v", ErrInvalidConfig, c.Instances.EmptyDelay)
	}
	if c.Instances.GracePeriod < 0 {
		return fmt.Errorf("%w: negative instances.grace_period %v", ErrInvalidConfig, c.Instances.GracePeriod)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c Instancer) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return lvl, nil
}

// InstanceConfig converts the instances section for instance.NewManager.
func (c Instancer) InstanceConfig() instance.Config {
	return instance.Config{
		EmptyDelay:     c.Instances.EmptyDelay,
		GracePeriod:    c.Instances.GracePeriod,
		TrackOwnership: c.Instances.TrackOwnership,
	}
}
