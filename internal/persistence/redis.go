package persistence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/memo-service/internal/config"
)

// Redis wraps the go-redis client used for the directory cache. The cache
// is optional: a server that does not answer at startup leaves it disabled.
type Redis struct {
	Client  *redis.Client
	enabled bool
}

// NewRedis connects to Redis using the provided configuration.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis; directory cache disabled", zap.String("addr", cfg.Addr), zap.Error(err))
		return &Redis{Client: client}
	}
	logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	return &Redis{Client: client, enabled: true}
}

// Enabled reports whether Redis answered at startup.
func (r *Redis) Enabled() bool {
	return r != nil && r.Client != nil && r.enabled
}

// Cache returns the client when enabled, nil otherwise.
func (r *Redis) Cache() *redis.Client {
	if !r.Enabled() {
		return nil
	}
	return r.Client
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}
