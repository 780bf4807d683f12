package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// collectionsDB is the subset of pgxpool.Pool used by PostgresBridge.
type collectionsDB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresBridge stores collections in the collections table (see migrations/).
type PostgresBridge struct {
	db collectionsDB
}

// NewPostgresBridge initializes a bridge backed by pgxpool.
func NewPostgresBridge(pool *pgxpool.Pool) *PostgresBridge {
	if pool == nil {
		panic("persistence: pgx pool required")
	}
	return &PostgresBridge{db: pool}
}

// NewPostgresBridgeWithDB allows injecting a mock database for testing.
func NewPostgresBridgeWithDB(db collectionsDB) *PostgresBridge {
	return &PostgresBridge{db: db}
}

// Load selects the collection row; no row means absent.
func (b *PostgresBridge) Load(ctx context.Context, collection string) ([]json.RawMessage, bool, error) {
	if err := checkCollection(collection); err != nil {
		return nil, false, err
	}
	var data []byte
	err := b.db.QueryRow(ctx, `SELECT records FROM collections WHERE name = $1`, collection).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("persistence: select %s: %w", collection, err)
	}
	records, err := DecodeDocument(data)
	if err != nil {
		return nil, false, err
	}
	return records, true, nil
}

// Save upserts the collection row.
func (b *PostgresBridge) Save(ctx context.Context, collection string, records []json.RawMessage) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	data, err := EncodeDocument(records)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO collections (name, records, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET records = EXCLUDED.records, updated_at = EXCLUDED.updated_at
	`
	if _, err := b.db.Exec(ctx, query, collection, string(data)); err != nil {
		return fmt.Errorf("persistence: upsert %s: %w", collection, err)
	}
	return nil
}

var _ Bridge = (*PostgresBridge)(nil)
