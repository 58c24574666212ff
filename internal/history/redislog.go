package history

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPoolSize    = 20
	defaultRedisMaxRetries  = 3
	defaultRedisDialTimeout = 5 * time.Second

	// DefaultRedisKey is the list holding the history when no key is configured.
	DefaultRedisKey = "tapedeck:history"
)

// RedisConfig configures a RedisLog.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	Cluster      bool
	ClusterNodes []string
	PoolSize     int
	MaxRetries   int
	DialTimeout  time.Duration
	Key          string
}

// RedisLog persists entries as JSON elements of a Redis list.
type RedisLog struct {
	client redis.UniversalClient
	key    string

	closeOnce sync.Once
	closeErr  error
}

// NewRedisLog connects to Redis and verifies the connection.
func NewRedisLog(ctx context.Context, cfg *RedisConfig) (*RedisLog, error) {
	conf, err := normalizeRedisConfig(cfg)
	if err != nil {
		return nil, err
	}

	l := &RedisLog{
		client: newRedisClient(conf),
		key:    conf.Key,
	}

	if err := l.pingWithRetry(ctx, conf.MaxRetries); err != nil {
		_ = l.client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return l, nil
}

// Load reads the whole list. A list holding an undecodable element is
// renamed to <key>:corrupt:<unix> and the decode error is returned.
func (l *RedisLog) Load(ctx context.Context) ([]Entry, error) {
	items, err := l.client.LRange(ctx, l.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading redis history: %w", err)
	}

	entries := make([]Entry, 0, len(items))
	for i, item := range items {
		e, err := Decode([]byte(item))
		if err != nil {
			err = fmt.Errorf("redis history element %d: %w", i, err)
			aside := l.key + ":corrupt:" + strconv.FormatInt(time.Now().Unix(), 10)
			if rerr := l.client.Rename(ctx, l.key, aside).Err(); rerr != nil {
				return nil, errors.Join(err, fmt.Errorf("moving corrupt redis history: %w", rerr))
			}
			return nil, fmt.Errorf("%w (moved to %s)", err, aside)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (l *RedisLog) Append(ctx context.Context, e Entry) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	if err := l.client.RPush(ctx, l.key, data).Err(); err != nil {
		return fmt.Errorf("appending redis history: %w", err)
	}
	return nil
}

// Close releases Redis resources. It is idempotent.
func (l *RedisLog) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.client.Close()
	})
	return l.closeErr
}

func (l *RedisLog) pingWithRetry(ctx context.Context, maxRetries int) error {
	attempts := maxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	backoff := 100 * time.Millisecond
	var lastErr error
	for i := 0; i < attempts; i++ {
		err := l.client.Ping(ctx).Err()
		if err == nil {
			return nil
		}
		lastErr = err

		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}

func normalizeRedisConfig(cfg *RedisConfig) (*RedisConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	conf := *cfg
	if conf.PoolSize <= 0 {
		conf.PoolSize = defaultRedisPoolSize
	}
	if conf.MaxRetries <= 0 {
		conf.MaxRetries = defaultRedisMaxRetries
	}
	if conf.DialTimeout <= 0 {
		conf.DialTimeout = defaultRedisDialTimeout
	}
	if conf.Key == "" {
		conf.Key = DefaultRedisKey
	}

	if conf.Cluster {
		if len(conf.ClusterNodes) == 0 {
			return nil, fmt.Errorf("cluster_nodes is required when cluster=true")
		}
	} else {
		if conf.Host == "" {
			return nil, fmt.Errorf("host is required when cluster=false")
		}
		if conf.Port <= 0 {
			return nil, fmt.Errorf("port must be positive when cluster=false, got %d", conf.Port)
		}
	}
	return &conf, nil
}

func newRedisClient(cfg *RedisConfig) redis.UniversalClient {
	if cfg.Cluster {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:       cfg.ClusterNodes,
			Password:    cfg.Password,
			PoolSize:    cfg.PoolSize,
			MaxRetries:  cfg.MaxRetries,
			DialTimeout: cfg.DialTimeout,
		})
	}

	return redis.NewClient(&redis.Options{
		Addr:        cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
	})
}
