package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/SmitUplenchwar2687/Tapedeck/internal/history"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/proxy"
)

// Config is the top-level configuration for a Tapedeck proxy.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	History  HistoryConfig  `yaml:"history"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// UpstreamConfig selects the server requests are forwarded to.
type UpstreamConfig struct {
	URL string `yaml:"url"`
	// Timeout bounds each upstream call. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// HistoryConfig selects and configures the durable history log.
type HistoryConfig struct {
	Backend string       `yaml:"backend"`
	File    FileConfig   `yaml:"file"`
	SQLite  SQLiteConfig `yaml:"sqlite"`
	Redis   RedisConfig  `yaml:"redis"`
}

// FileConfig holds settings for the newline-delimited JSON log.
type FileConfig struct {
	Path string `yaml:"path"`
}

// SQLiteConfig holds settings for the sqlite log.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig holds settings for the redis list log.
type RedisConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Cluster      bool          `yaml:"cluster"`
	ClusterNodes []string      `yaml:"cluster_nodes"`
	PoolSize     int           `yaml:"pool_size"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	Key          string        `yaml:"key"`
}

// LogConfig controls process logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Log output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Default returns a Config with sensible defaults. The upstream URL has no
// default and must be supplied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr: ":5000",
		},
		History: HistoryConfig{
			Backend: history.BackendFile,
			File:    FileConfig{Path: "request_history.jsonl"},
			SQLite:  SQLiteConfig{Path: "request_history.db"},
			Redis: RedisConfig{
				Host:        "localhost",
				Port:        6379,
				PoolSize:    20,
				MaxRetries:  3,
				DialTimeout: 5 * time.Second,
				Key:         history.DefaultRedisKey,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: FormatConsole,
		},
	}
}

// Validate checks that the config is valid.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Upstream.URL == "" {
		errs = append(errs, errors.New("upstream.url is required"))
	} else if _, err := proxy.ParseBaseURL(c.Upstream.URL); err != nil {
		errs = append(errs, fmt.Errorf("upstream.url: %w", err))
	}
	if c.Upstream.Timeout < 0 {
		errs = append(errs, fmt.Errorf("upstream.timeout must not be negative, got %s", c.Upstream.Timeout))
	}

	switch c.History.Backend {
	case history.BackendFile:
		if c.History.File.Path == "" {
			errs = append(errs, errors.New("history.file.path is required for the file backend"))
		}
	case history.BackendSQLite:
		if c.History.SQLite.Path == "" {
			errs = append(errs, errors.New("history.sqlite.path is required for the sqlite backend"))
		}
	case history.BackendRedis:
		r := c.History.Redis
		if r.Cluster {
			if len(r.ClusterNodes) == 0 {
				errs = append(errs, errors.New("history.redis.cluster_nodes is required in cluster mode"))
			}
		} else {
			if r.Host == "" {
				errs = append(errs, errors.New("history.redis.host is required"))
			}
			if r.Port <= 0 {
				errs = append(errs, fmt.Errorf("history.redis.port must be positive, got %d", r.Port))
			}
		}
		if r.DialTimeout < 0 {
			errs = append(errs, fmt.Errorf("history.redis.dial_timeout must not be negative, got %s", r.DialTimeout))
		}
	case history.BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown history backend %q, must be one of: file, sqlite, redis, memory", c.History.Backend))
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case FormatConsole, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q, must be console or json", c.Log.Format))
	}

	return errors.Join(errs...)
}

// LoadFile reads a YAML config file and merges it with defaults.
// Fields not specified in the file retain their default values.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data over the defaults. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Default(), fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// WriteExample writes an example config file to the given path.
func WriteExample(path string) error {
	example := `# Tapedeck configuration.
server:
  addr: ":5000"

upstream:
  url: "http://localhost:8080"
  # Zero disables the timeout; a hung upstream then blocks its request.
  timeout: 0s

history:
  # file, sqlite, redis or memory
  backend: file
  file:
    path: request_history.jsonl
  sqlite:
    path: request_history.db
  redis:
    host: localhost
    port: 6379
    db: 0
    pool_size: 20
    max_retries: 3
    dial_timeout: 5s
    key: tapedeck:history

log:
  level: info
  # console or json
  format: console
`
	return os.WriteFile(path, []byte(example), 0o644)
}
