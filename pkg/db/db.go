// pkg/db/db.go
package db

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"repairshop/pkg/config"
)

const defaultConnectTimeout = 10 * time.Second

// Postgres opens a pool and pings it within timeout. maxConns <= 0 keeps the pool default.
func Postgres(ctx context.Context, dsn string, maxConns int32, timeout time.Duration) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("db: parse dsn: %w", err)
	}
	if maxConns > 0 {
		pc.MaxConns = maxConns
	}
	ctx, cancel := context.WithTimeout(ctx, orDefault(timeout))
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("db: connect %s: %w", redactDSN(dsn), err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping %s: %w", redactDSN(dsn), err)
	}
	return pool, nil
}

// Redis parses a redis:// URL and pings the server within timeout.
func Redis(ctx context.Context, rawURL string, timeout time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("db: parse redis url: %w", err)
	}
	cli := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, orDefault(timeout))
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("db: ping redis %s: %w", opts.Addr, err)
	}
	return cli, nil
}

// MustConnect returns nil when DATABASE_URL is unset so callers fall back to memory stores.
func MustConnect(cfg config.Config, log *zap.SugaredLogger) *pgxpool.Pool {
	if cfg.DatabaseURL == "" {
		return nil
	}
	pool, err := Postgres(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBConnectTimeout)
	if err != nil {
		log.Fatalw("postgres unavailable", "err", err)
	}
	log.Infow("postgres ready", "host", redactDSN(cfg.DatabaseURL), "max_conns", pool.Config().MaxConns)
	return pool
}

func MustRedis(cfg config.Config, log *zap.SugaredLogger) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	cli, err := Redis(context.Background(), cfg.RedisURL, cfg.DBConnectTimeout)
	if err != nil {
		log.Fatalw("redis unavailable", "err", err)
	}
	log.Infow("redis ready", "addr", cli.Options().Addr)
	return cli
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultConnectTimeout
	}
	return d
}

// redactDSN drops credentials from URL and key=value DSNs.
func redactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.Host != "" {
		u.User = nil
		return u.Host + u.Path
	}
	if i := strings.Index(dsn, "@"); i > 0 {
		return "***@" + dsn[i+1:]
	}
	var kept []string
	for _, kv := range strings.Fields(dsn) {
		if !strings.HasPrefix(kv, "password=") {
			kept = append(kept, kv)
		}
	}
	return strings.Join(kept, " ")
}
