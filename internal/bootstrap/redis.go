package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/alem-hub/levelup/config"
	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/levelup/pkg/logger"
)

// ErrRedisDisabled is returned by OpenRedis when REDIS_DISABLED is set.
var ErrRedisDisabled = errors.New("redis disabled")

// Redis is the optional cache layer.
type Redis struct {
	Cache       *redis.Cache
	Leaderboard *redis.LeaderboardCache
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.Cache.Close()
}

// OpenRedis connects the leaderboard cache for guildID.
func OpenRedis(cfg config.RedisConfig, guildID leveling.Snowflake) (*Redis, error) {
	if cfg.Disabled {
		return nil, ErrRedisDisabled
	}
	cache, err := redis.NewCache(redis.Config{
		URL:          cfg.URL,
		Host:         cfg.Host,
		Port:         cfg.Port,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &Redis{
		Cache:       cache,
		Leaderboard: redis.NewLeaderboardCache(cache, guildID, 0),
	}, nil
}

// OpenRedisOptional logs and returns nil when Redis is disabled or
// unreachable; every reader falls back to storage.
func OpenRedisOptional(cfg config.RedisConfig, guildID leveling.Snowflake, log *slog.Logger) *Redis {
	r, err := OpenRedis(cfg, guildID)
	switch {
	case errors.Is(err, ErrRedisDisabled):
		log.Info("redis disabled, leaderboard reads go to storage")
		return nil
	case err != nil:
		log.Warn("redis unavailable, leaderboard reads go to storage", logger.Err(err))
		return nil
	}
	return r
}
