package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// RetryConfig управляет повторными попытками подключения.
type RetryConfig struct {
	MaxRetries     int
	Delay          time.Duration
	ConnectTimeout time.Duration
	PingTimeout    time.Duration
	// MaxConns is applied when > 0.
	MaxConns int32
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 50
	}
	if c.Delay <= 0 {
		c.Delay = 3 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 2 * time.Second
	}
	return c
}

// Connect создает пул и пингует базу, повторяя попытки, пока она не поднимется
// или не отменят ctx.
func Connect(ctx context.Context, url string, cfg RetryConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	cfg = cfg.withDefaults()
	log := logger.Named("PgConnect")

	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}

	log.Info("Attempting to connect to PostgreSQL", zap.Int("max_retries", cfg.MaxRetries), zap.Duration("retry_delay", cfg.Delay))
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		pool, err := tryConnect(ctx, poolConfig, cfg)
		if err == nil {
			log.Info("Successfully connected and pinged PostgreSQL", zap.Int("attempt", attempt))
			return pool, nil
		}
		lastErr = fmt.Errorf("attempt %d/%d: %w", attempt, cfg.MaxRetries, err)
		log.Warn("PostgreSQL not ready, retrying...", zap.Int("attempt", attempt), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.Delay):
		}
	}
	return nil, fmt.Errorf("failed to connect to postgres after %d attempts: %w", cfg.MaxRetries, lastErr)
}

func tryConnect(ctx context.Context, poolConfig *pgxpool.Config, cfg RetryConfig) (*pgxpool.Pool, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	err = pool.Ping(pingCtx)
	cancel()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}
