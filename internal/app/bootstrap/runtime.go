package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-desk/internal/clinic"
	appconfig "github.com/wolfman30/clinic-desk/internal/config"
	"github.com/wolfman30/clinic-desk/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// DefaultClinicConfig returns the clinic defaults from the environment.
func DefaultClinicConfig(cfg *appconfig.Config) *clinic.Config {
	return clinic.DefaultConfig(cfg.ClinicName, cfg.ClinicTimezone)
}

// BuildClinicStore returns the clinic settings store when Redis is available.
func BuildClinicStore(redisClient *redis.Client, cfg *appconfig.Config) *clinic.Store {
	if redisClient == nil {
		return nil
	}
	return clinic.NewStore(redisClient, DefaultClinicConfig(cfg))
}
