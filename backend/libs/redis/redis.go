package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultDialTimeout = 5 * time.Second
	defaultIOTimeout   = 3 * time.Second
	defaultPoolSize    = 10
)

// ClientOptions describes one redis server. Addr is either host:port or a redis:// or
// rediss:// URL; a URL carries its own credentials and database, which Password and DB
// then override when set.
type ClientOptions struct {
	Addr     string
	Password string
	DB       int
}

// ClientConfig translates options into go-redis options with the worker's timeouts.
func ClientConfig(opts ClientOptions) (*redis.Options, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, errors.New("redis: addr is empty")
	}
	if opts.DB < 0 {
		return nil, fmt.Errorf("redis: negative db %d", opts.DB)
	}

	cfg := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		cfg = parsed
	}
	if opts.Password != "" {
		cfg.Password = opts.Password
	}
	if opts.DB != 0 {
		cfg.DB = opts.DB
	}

	cfg.DialTimeout = defaultDialTimeout
	cfg.ReadTimeout = defaultIOTimeout
	cfg.WriteTimeout = defaultIOTimeout
	cfg.PoolSize = defaultPoolSize
	return cfg, nil
}

// NewClient connects and checks the server with PING before handing the client out.
func NewClient(ctx context.Context, opts ClientOptions) (*redis.Client, error) {
	cfg, err := ClientConfig(opts)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(cfg)

	pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}
