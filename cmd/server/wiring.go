package main

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/online-cinema/internal/config"
	"github.com/iliyamo/online-cinema/internal/middleware"
)

// authLimiter is the stricter bucket in front of the account endpoints.
func authLimiter(rdb *redis.Client, lg *zap.Logger) echo.MiddlewareFunc {
	if rdb == nil {
		return nil
	}
	return middleware.NewTokenBucket(config.AuthRateLimitConfig(), rdb, lg)
}

func catalogCache(rdb *redis.Client) echo.MiddlewareFunc {
	if rdb == nil {
		return nil
	}
	cfg := config.LoadCacheConfig()
	if !cfg.Enabled {
		return nil
	}
	return middleware.NewRedisCache(cfg, rdb)
}

// readiness lists the dependencies /readyz pings.
func readiness(pingDB func(context.Context) error, rdb *redis.Client) map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{"database": pingDB}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}
