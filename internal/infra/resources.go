package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vip-club/vip_club/internal/config"
)

const (
	pingTimeout     = 5 * time.Second
	maxConnIdleTime = 5 * time.Minute
)

// Resources holds the external connections shared by the server. Either
// field may be nil in development when the matching URL is unset.
type Resources struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
}

// Connect opens the configured Postgres pool and Redis client.
func Connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Resources, error) {
	res := &Resources{}
	if cfg.DatabaseURL != "" {
		db, err := openPostgres(ctx, cfg.DatabaseURL, cfg.AppName)
		if err != nil {
			return nil, err
		}
		res.DB = db
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory backend")
	}

	if cfg.RedisURL != "" {
		cache, err := openRedis(ctx, cfg.RedisURL, cfg.AppName)
		if err != nil {
			res.Close(logger)
			return nil, err
		}
		res.Cache = cache
	} else {
		logger.Warn("REDIS_URL not set, using in-memory stores")
	}
	return res, nil
}

// Close releases every opened connection.
func (r *Resources) Close(logger *slog.Logger) {
	if r.DB != nil {
		r.DB.Close()
	}
	if r.Cache != nil {
		if err := r.Cache.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}
}

// openPostgres tags connections with the app name so they show up in
// pg_stat_activity.
func openPostgres(ctx context.Context, url, appName string) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if appName != "" {
		pcfg.ConnConfig.RuntimeParams["application_name"] = appName
	}
	if pcfg.MaxConnIdleTime == 0 {
		pcfg.MaxConnIdleTime = maxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}
	return pool, nil
}

func openRedis(ctx context.Context, url, appName string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	if opt.ClientName == "" {
		opt.ClientName = appName
	}

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return client, nil
}
