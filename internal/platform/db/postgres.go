package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const pingTimeout = 5 * time.Second

// Option tunes the pool before it is opened.
type Option func(*pgxpool.Config)

// WithMaxConns caps the pool size. Non-positive values keep the pgx default.
func WithMaxConns(n int32) Option {
	return func(c *pgxpool.Config) {
		if n > 0 {
			c.MaxConns = n
		}
	}
}

// WithMaxConnIdleTime closes connections idle for longer than d.
func WithMaxConnIdleTime(d time.Duration) Option {
	return func(c *pgxpool.Config) {
		if d > 0 {
			c.MaxConnIdleTime = d
		}
	}
}

// WithApplicationName tags sessions in pg_stat_activity.
func WithApplicationName(name string) Option {
	return func(c *pgxpool.Config) {
		if name != "" {
			c.ConnConfig.RuntimeParams["application_name"] = name
		}
	}
}

// PoolConfig parses dsn and applies opts without connecting.
func PoolConfig(dsn string, opts ...Option) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}
	for _, opt := range opts {
		opt(config)
	}
	return config, nil
}

// New opens a pool and verifies it with a ping. The pool is closed again
// when the ping fails.
func New(ctx context.Context, dsn string, opts ...Option) (*pgxpool.Pool, error) {
	config, err := PoolConfig(dsn, opts...)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}
	return pool, nil
}
