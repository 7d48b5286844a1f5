package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	DSN      string
	MaxConns int32

	// ConnectAttempts bounds how often New pings a database that is not yet
	// accepting connections. Defaults to 5.
	ConnectAttempts int
	Logger          *slog.Logger
}

// New opens a pool and waits until the database answers a ping, backing off
// between attempts.
func New(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	const op = "postgres.New"

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 5
	}

	backoff := 500 * time.Millisecond
	for i := 1; ; i++ {
		err = ping(ctx, pool)
		if err == nil {
			return pool, nil
		}

		if i == attempts {
			break
		}

		if cfg.Logger != nil {
			cfg.Logger.Warn("postgres not ready, retrying",
				slog.Int("attempt", i),
				slog.Duration("backoff", backoff),
				slog.Any("error", err),
			)
		}

		select {
		case <-ctx.Done():
			pool.Close()
			return nil, fmt.Errorf("%s:%w", op, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	pool.Close()
	return nil, fmt.Errorf("%s:%w", op, err)
}

func ping(ctx context.Context, pool *pgxpool.Pool) error {
	ctxPing, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return pool.Ping(ctxPing)
}
