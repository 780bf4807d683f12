package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const settingsKey = "clinic:settings"

// Store persists clinic settings in Redis. Missing settings resolve to the
// store's defaults.
type Store struct {
	redis    *redis.Client
	defaults Config
}

func NewStore(redisClient *redis.Client, defaults *Config) *Store {
	if redisClient == nil {
		panic("clinic: redis client cannot be nil")
	}
	if defaults == nil {
		defaults = DefaultConfig("", "")
	}
	return &Store{redis: redisClient, defaults: *defaults}
}

// Get returns the stored settings or the defaults when none were saved.
func (s *Store) Get(ctx context.Context) (*Config, error) {
	data, err := s.redis.Get(ctx, settingsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		cfg := s.defaults
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get settings: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal settings: %w", err)
	}
	return &cfg, nil
}

// Set validates and stores the settings.
func (s *Store) Set(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("clinic: marshal settings: %w", err)
	}
	if err := s.redis.Set(ctx, settingsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("clinic: set settings: %w", err)
	}
	return nil
}
