package persistence

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryBridge keeps encoded collections in process memory.
type MemoryBridge struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryBridge creates an empty in-memory bridge.
func NewMemoryBridge() *MemoryBridge {
	return &MemoryBridge{docs: make(map[string][]byte)}
}

// Load returns a decoded copy of the stored collection.
func (b *MemoryBridge) Load(_ context.Context, collection string) ([]json.RawMessage, bool, error) {
	if err := checkCollection(collection); err != nil {
		return nil, false, err
	}
	b.mu.RLock()
	data, ok := b.docs[collection]
	b.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	records, err := DecodeDocument(data)
	if err != nil {
		return nil, false, err
	}
	return records, true, nil
}

// Save stores an encoded copy so later caller mutations do not leak in.
func (b *MemoryBridge) Save(_ context.Context, collection string, records []json.RawMessage) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	data, err := EncodeDocument(records)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.docs[collection] = data
	b.mu.Unlock()
	return nil
}

var _ Bridge = (*MemoryBridge)(nil)
