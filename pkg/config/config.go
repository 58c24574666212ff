package config

import internalconfig "github.com/SmitUplenchwar2687/Tapedeck/internal/config"

// Config is the top-level configuration for a Tapedeck proxy.
type Config = internalconfig.Config

// ServerConfig holds HTTP server settings.
type ServerConfig = internalconfig.ServerConfig

// UpstreamConfig selects the server requests are forwarded to.
type UpstreamConfig = internalconfig.UpstreamConfig

// HistoryConfig selects and configures the durable history log.
type HistoryConfig = internalconfig.HistoryConfig

// RedisConfig holds settings for the redis list log.
type RedisConfig = internalconfig.RedisConfig

// LogConfig controls process logging.
type LogConfig = internalconfig.LogConfig

// Default returns a Config with sensible defaults.
func Default() Config {
	return internalconfig.Default()
}

// LoadFile reads a YAML config file and merges it with defaults.
func LoadFile(path string) (Config, error) {
	return internalconfig.LoadFile(path)
}

// Parse decodes YAML config data over the defaults.
func Parse(data []byte) (Config, error) {
	return internalconfig.Parse(data)
}

// WriteExample writes an example config file to the given path.
func WriteExample(path string) error {
	return internalconfig.WriteExample(path)
}
