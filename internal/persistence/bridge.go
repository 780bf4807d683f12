// Package persistence provides the durable key-value substrate the clinic
// store saves its collections to, plus the ordered write queue in front of it.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Collection names persisted by the clinic store.
const (
	CollectionPatients     = "patients"
	CollectionAppointments = "appointments"
)

var (
	// ErrCollectionRequired is returned when a bridge call omits the collection name.
	ErrCollectionRequired = errors.New("persistence: collection name is required")

	// ErrQueueClosed is reported by receipts for writes enqueued after Close.
	ErrQueueClosed = errors.New("persistence: write queue closed")
)

// Bridge loads and saves whole collections. Each collection is stored as a
// single JSON array of field-named records.
type Bridge interface {
	// Load returns the stored records. found is false when nothing was ever saved.
	Load(ctx context.Context, collection string) (records []json.RawMessage, found bool, err error)
	// Save replaces the stored collection with records.
	Save(ctx context.Context, collection string, records []json.RawMessage) error
}

// SaveError reports a failed collection write. The in-memory state that
// produced the snapshot is unaffected.
type SaveError struct {
	Collection string
	Err        error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("persistence: save %s: %v", e.Collection, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// IsSaveError reports whether err carries a SaveError.
func IsSaveError(err error) bool {
	var saveErr *SaveError
	return errors.As(err, &saveErr)
}

// EncodeDocument renders records as the JSON array stored by every backend.
func EncodeDocument(records []json.RawMessage) ([]byte, error) {
	if records == nil {
		records = []json.RawMessage{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("persistence: encode document: %w", err)
	}
	return data, nil
}

// DecodeDocument splits a stored JSON array back into records.
func DecodeDocument(data []byte) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("persistence: decode document: %w", err)
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	return records, nil
}

func checkCollection(collection string) error {
	if strings.TrimSpace(collection) == "" {
		return ErrCollectionRequired
	}
	return nil
}
