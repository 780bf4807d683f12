package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/clinic-desk/internal/config"
	"github.com/wolfman30/clinic-desk/internal/persistence"
	"github.com/wolfman30/clinic-desk/pkg/logging"
)

// Storage backends accepted by STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendDynamo   = "dynamodb"
	BackendS3       = "s3"
	BackendPostgres = "postgres"
)

// Bridge bundles the selected persistence bridge with its cleanup.
type Bridge struct {
	persistence.Bridge
	Backend string
	close   func()
}

// Close releases any connection pool opened for the bridge.
func (b *Bridge) Close() {
	if b != nil && b.close != nil {
		b.close()
	}
}

// BuildBridge selects the persistence backend named by cfg.StoreBackend.
// The Redis client is only consulted for the redis backend and must be non-nil there.
func BuildBridge(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, redisClient *redis.Client, logger *logging.Logger) (*Bridge, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	if backend == "" {
		backend = BackendMemory
	}
	result := &Bridge{Backend: backend}

	switch backend {
	case BackendMemory:
		result.Bridge = persistence.NewMemoryBridge()
	case BackendFile:
		result.Bridge = persistence.NewFileBridge(cfg.StoreFileDir)
	case BackendRedis:
		if redisClient == nil {
			return nil, errors.New("bootstrap: redis backend requires REDIS_ADDR")
		}
		result.Bridge = persistence.NewRedisBridge(redisClient, cfg.StoreKeyPrefix)
	case BackendDynamo:
		if strings.TrimSpace(cfg.StoreDynamoTable) == "" {
			return nil, errors.New("bootstrap: dynamodb backend requires STORE_DYNAMO_TABLE")
		}
		result.Bridge = persistence.NewDynamoBridge(dynamodb.NewFromConfig(awsCfg), cfg.StoreDynamoTable)
	case BackendS3:
		if strings.TrimSpace(cfg.StoreS3Bucket) == "" {
			return nil, errors.New("bootstrap: s3 backend requires STORE_S3_BUCKET")
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			// LocalStack serves buckets by path, not by virtual host.
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		})
		result.Bridge = persistence.NewS3Bridge(client, cfg.StoreS3Bucket, cfg.StoreKeyPrefix)
	case BackendPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, errors.New("bootstrap: postgres backend requires DATABASE_URL")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}
		result.Bridge = persistence.NewPostgresBridge(pool)
		result.close = pool.Close
	default:
		return nil, fmt.Errorf("bootstrap: unknown store backend %q", cfg.StoreBackend)
	}

	logger.Info("persistence bridge configured", "backend", backend)
	return result, nil
}
