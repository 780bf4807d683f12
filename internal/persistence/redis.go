package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RedisBridge stores each collection as a JSON string at <prefix>:collection:<name>.
type RedisBridge struct {
	redis  *redis.Client
	prefix string
	tracer trace.Tracer
}

// NewRedisBridge creates a bridge backed by the provided Redis client.
func NewRedisBridge(client *redis.Client, prefix string) *RedisBridge {
	if client == nil {
		panic("persistence: redis client cannot be nil")
	}
	if prefix == "" {
		prefix = "clinic"
	}
	return &RedisBridge{
		redis:  client,
		prefix: prefix,
		tracer: otel.Tracer("clinic.internal.persistence.redis"),
	}
}

func (b *RedisBridge) key(collection string) string {
	return fmt.Sprintf("%s:collection:%s", b.prefix, collection)
}

// Load fetches the collection document; redis.Nil means absent.
func (b *RedisBridge) Load(ctx context.Context, collection string) ([]json.RawMessage, bool, error) {
	if err := checkCollection(collection); err != nil {
		return nil, false, err
	}
	ctx, span := b.tracer.Start(ctx, "persistence.redis.load",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	data, err := b.redis.Get(ctx, b.key(collection)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("persistence: redis get %s: %w", collection, err)
	}
	records, err := DecodeDocument(data)
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	return records, true, nil
}

// Save overwrites the collection document without expiry.
func (b *RedisBridge) Save(ctx context.Context, collection string, records []json.RawMessage) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	data, err := EncodeDocument(records)
	if err != nil {
		return err
	}
	ctx, span := b.tracer.Start(ctx, "persistence.redis.save",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("record_count", len(records)),
		))
	defer span.End()

	if err := b.redis.Set(ctx, b.key(collection), data, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("persistence: redis set %s: %w", collection, err)
	}
	return nil
}

var _ Bridge = (*RedisBridge)(nil)
