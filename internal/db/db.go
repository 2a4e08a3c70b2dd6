// Package db opens the Postgres pool that backs the product catalog.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions sizes the catalog pool. Zero fields keep the defaults below.
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
	MaxConnLifetime time.Duration
	// PingTimeout bounds the connectivity check in Connect.
	PingTimeout time.Duration
	// AppName is reported as application_name unless the DSN sets one.
	AppName string
}

const (
	defaultIdleTime    = 5 * time.Minute
	defaultLifetime    = 30 * time.Minute
	defaultPingTimeout = 5 * time.Second
	defaultAppName     = "chowfast"
)

// Connect opens the catalog pool and verifies connectivity with a ping.
func Connect(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := PoolConfig(dsn, opts)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// PoolConfig parses dsn and applies opts without dialing.
func PoolConfig(dsn string, opts PoolOptions) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	if opts.MinConns < 0 || opts.MaxConns < 0 {
		return nil, errors.New("db: pool sizes must not be negative")
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if cfg.MinConns > cfg.MaxConns {
		return nil, errors.New("db: min conns exceeds max conns")
	}

	cfg.MaxConnIdleTime = defaultIdleTime
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	cfg.MaxConnLifetime = defaultLifetime
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}

	if cfg.ConnConfig.RuntimeParams["application_name"] == "" {
		name := opts.AppName
		if name == "" {
			name = defaultAppName
		}
		cfg.ConnConfig.RuntimeParams["application_name"] = name
	}
	return cfg, nil
}
