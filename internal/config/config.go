package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a loaded value fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config defines server configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Transport   TransportConfig   `yaml:"transport"`
	Auth        AuthConfig        `yaml:"auth"`
	DB          DBConfig          `yaml:"db"`
	Log         LogConfig         `yaml:"log"`
	Search      SearchConfig      `yaml:"search"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// TransportConfig selects how the MCP server is reached.
type TransportConfig struct {
	Mode string `yaml:"mode"`
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

type DBConfig struct {
	Path           string   `yaml:"path"`
	MaxOpenConns   int      `yaml:"max_open_conns"`
	MaxIdleConns   int      `yaml:"max_idle_conns"`
	AcquireTimeout Duration `yaml:"acquire_timeout"`
	BusyTimeout    Duration `yaml:"busy_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

type SearchConfig struct {
	Engine       string `yaml:"engine"`
	DefaultLimit int    `yaml:"default_limit"`
	CandidateCap int    `yaml:"candidate_cap"`
}

// MaintenanceConfig schedules background index upkeep. An empty schedule
// disables it.
type MaintenanceConfig struct {
	OptimizeSchedule string `yaml:"optimize_schedule"`
}

// Duration reads YAML strings such as "5s" or "250ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Default returns the configuration used before any file or env override.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Transport: TransportConfig{Mode: TransportHTTP},
		Auth:      AuthConfig{Enabled: true},
		DB: DBConfig{
			Path:           "mailscope.db",
			MaxOpenConns:   8,
			MaxIdleConns:   4,
			AcquireTimeout: Duration(5 * time.Second),
			BusyTimeout:    Duration(5 * time.Second),
		},
		Log: LogConfig{
			Level: "info",
		},
		Search: SearchConfig{
			Engine:       "legacy",
			DefaultLimit: 50,
			CandidateCap: 1000,
		},
		Maintenance: MaintenanceConfig{
			OptimizeSchedule: "@every 1h",
		},
	}
}

// Load reads a .env file if present, then configuration from an optional
// YAML file and environment variables.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv("MAILSCOPE_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if host := os.Getenv("MAILSCOPE_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("MAILSCOPE_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("%w: MAILSCOPE_SERVER_PORT: %v", ErrInvalidConfig, err)
		}
		cfg.Server.Port = port
	}
	if mode := os.Getenv("MAILSCOPE_TRANSPORT"); mode != "" {
		cfg.Transport.Mode = strings.ToLower(mode)
	}
	if v := os.Getenv("MAILSCOPE_AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: MAILSCOPE_AUTH_ENABLED: %v", ErrInvalidConfig, err)
		}
		cfg.Auth.Enabled = enabled
	}
	if dbPath := os.Getenv("MAILSCOPE_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if v := os.Getenv("MAILSCOPE_DB_MAX_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: MAILSCOPE_DB_MAX_CONNS: %v", ErrInvalidConfig, err)
		}
		cfg.DB.MaxOpenConns = n
	}
	if level := os.Getenv("MAILSCOPE_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if path := os.Getenv("MAILSCOPE_LOG_PATH"); path != "" {
		cfg.Log.Path = path
	}
	if engine := os.Getenv("MAILSCOPE_SEARCH_ENGINE"); engine != "" {
		cfg.Search.Engine = strings.ToLower(engine)
	}
	return nil
}

// Validate checks values that have a fixed domain.
func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	switch c.Transport.Mode {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport.Mode)
	}
	switch c.Search.Engine {
	case "legacy", "lexical", "hybrid":
	default:
		return fmt.Errorf("%w: unknown search engine %q", ErrInvalidConfig, c.Search.Engine)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Log.Level)
	}
	if c.DB.Path == "" {
		return fmt.Errorf("%w: db path is required", ErrInvalidConfig)
	}
	if c.DB.MaxOpenConns < 1 {
		return fmt.Errorf("%w: db max_open_conns must be at least 1", ErrInvalidConfig)
	}
	if c.DB.AcquireTimeout < 0 || c.DB.BusyTimeout < 0 {
		return fmt.Errorf("%w: db timeouts must not be negative", ErrInvalidConfig)
	}
	if c.Search.DefaultLimit < 0 || c.Search.CandidateCap < 0 {
		return fmt.Errorf("%w: search limits must not be negative", ErrInvalidConfig)
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
