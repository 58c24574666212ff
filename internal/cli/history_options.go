package cli

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Tapedeck/internal/config"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/history"
)

type historyOptions struct {
	backend           string
	filePath          string
	sqlitePath        string
	redisHost         string
	redisPort         int
	redisPassword     string
	redisDB           int
	redisCluster      bool
	redisClusterNodes []string
	redisPoolSize     int
	redisMaxRetries   int
	redisDialTimeout  time.Duration
	redisKey          string
}

func defaultHistoryOptions() historyOptions {
	d := config.Default().History
	return historyOptions{
		backend:          d.Backend,
		filePath:         d.File.Path,
		sqlitePath:       d.SQLite.Path,
		redisHost:        d.Redis.Host,
		redisPort:        d.Redis.Port,
		redisPoolSize:    d.Redis.PoolSize,
		redisMaxRetries:  d.Redis.MaxRetries,
		redisDialTimeout: d.Redis.DialTimeout,
		redisKey:         d.Redis.Key,
	}
}

func (o *historyOptions) addFlags(cmd *cobra.Command) {
	d := defaultHistoryOptions()
	cmd.Flags().StringVar(&o.backend, "history", d.backend, "history backend (file, sqlite, redis, memory)")
	cmd.Flags().StringVar(&o.filePath, "history-file", d.filePath, "path of the JSON lines history file")
	cmd.Flags().StringVar(&o.sqlitePath, "history-sqlite", d.sqlitePath, "path of the sqlite history database")
	cmd.Flags().StringVar(&o.redisHost, "redis-host", d.redisHost, "redis host (or host:port)")
	cmd.Flags().IntVar(&o.redisPort, "redis-port", d.redisPort, "redis port")
	cmd.Flags().StringVar(&o.redisPassword, "redis-password", "", "redis password")
	cmd.Flags().IntVar(&o.redisDB, "redis-db", 0, "redis database index")
	cmd.Flags().BoolVar(&o.redisCluster, "redis-cluster", false, "enable redis cluster mode")
	cmd.Flags().StringSliceVar(&o.redisClusterNodes, "redis-cluster-nodes", nil, "redis cluster nodes host:port list")
	cmd.Flags().IntVar(&o.redisPoolSize, "redis-pool-size", d.redisPoolSize, "redis connection pool size")
	cmd.Flags().IntVar(&o.redisMaxRetries, "redis-max-retries", d.redisMaxRetries, "redis max retries")
	cmd.Flags().DurationVar(&o.redisDialTimeout, "redis-dial-timeout", d.redisDialTimeout, "redis dial timeout")
	cmd.Flags().StringVar(&o.redisKey, "redis-key", d.redisKey, "redis list holding the history")
}

// applyConfigIfUnset takes values from cfg for every flag the user did not
// set explicitly.
func (o *historyOptions) applyConfigIfUnset(cmd *cobra.Command, cfg *config.HistoryConfig) {
	if cfg == nil {
		return
	}

	if !cmd.Flags().Changed("history") {
		o.backend = cfg.Backend
	}
	if !cmd.Flags().Changed("history-file") {
		o.filePath = cfg.File.Path
	}
	if !cmd.Flags().Changed("history-sqlite") {
		o.sqlitePath = cfg.SQLite.Path
	}
	if !cmd.Flags().Changed("redis-host") {
		o.redisHost = cfg.Redis.Host
	}
	if !cmd.Flags().Changed("redis-port") {
		o.redisPort = cfg.Redis.Port
	}
	if !cmd.Flags().Changed("redis-password") {
		o.redisPassword = cfg.Redis.Password
	}
	if !cmd.Flags().Changed("redis-db") {
		o.redisDB = cfg.Redis.DB
	}
	if !cmd.Flags().Changed("redis-cluster") {
		o.redisCluster = cfg.Redis.Cluster
	}
	if !cmd.Flags().Changed("redis-cluster-nodes") {
		o.redisClusterNodes = cfg.Redis.ClusterNodes
	}
	if !cmd.Flags().Changed("redis-pool-size") {
		o.redisPoolSize = cfg.Redis.PoolSize
	}
	if !cmd.Flags().Changed("redis-max-retries") {
		o.redisMaxRetries = cfg.Redis.MaxRetries
	}
	if !cmd.Flags().Changed("redis-dial-timeout") {
		o.redisDialTimeout = cfg.Redis.DialTimeout
	}
	if !cmd.Flags().Changed("redis-key") {
		o.redisKey = cfg.Redis.Key
	}
}

func (o *historyOptions) normalize() error {
	if o.backend != history.BackendRedis || o.redisCluster {
		return nil
	}

	host, port, err := normalizeRedisHostPort(o.redisHost, o.redisPort)
	if err != nil {
		return err
	}
	o.redisHost = host
	o.redisPort = port
	return nil
}

func (o *historyOptions) toConfig() config.HistoryConfig {
	return config.HistoryConfig{
		Backend: o.backend,
		File:    config.FileConfig{Path: o.filePath},
		SQLite:  config.SQLiteConfig{Path: o.sqlitePath},
		Redis: config.RedisConfig{
			Host:         o.redisHost,
			Port:         o.redisPort,
			Password:     o.redisPassword,
			DB:           o.redisDB,
			Cluster:      o.redisCluster,
			ClusterNodes: append([]string(nil), o.redisClusterNodes...),
			PoolSize:     o.redisPoolSize,
			MaxRetries:   o.redisMaxRetries,
			DialTimeout:  o.redisDialTimeout,
			Key:          o.redisKey,
		},
	}
}

// openHistoryLog opens the durable log selected by cfg.
func openHistoryLog(ctx context.Context, cfg config.HistoryConfig) (history.Log, error) {
	switch cfg.Backend {
	case history.BackendFile:
		return history.NewFileLog(cfg.File.Path), nil
	case history.BackendSQLite:
		return history.NewSQLiteLog(cfg.SQLite.Path)
	case history.BackendRedis:
		return history.NewRedisLog(ctx, &history.RedisConfig{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			Cluster:      cfg.Redis.Cluster,
			ClusterNodes: cfg.Redis.ClusterNodes,
			PoolSize:     cfg.Redis.PoolSize,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			Key:          cfg.Redis.Key,
		})
	case history.BackendMemory:
		return history.NewMemoryLog(), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}

func normalizeRedisHostPort(host string, port int) (string, int, error) {
	if strings.Contains(host, ":") {
		h, p, err := net.SplitHostPort(host)
		if err != nil {
			return "", 0, fmt.Errorf("invalid --redis-host value %q: %w", host, err)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("invalid redis port in --redis-host %q: %w", host, err)
		}
		host = h
		port = n
	}

	if host == "" {
		return "", 0, fmt.Errorf("redis host cannot be empty")
	}
	if port <= 0 {
		return "", 0, fmt.Errorf("redis port must be positive, got %d", port)
	}

	return host, port, nil
}
