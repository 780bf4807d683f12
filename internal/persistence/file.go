package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileBridge stores each collection as <dir>/<collection>.json.
type FileBridge struct {
	dir string
}

// NewFileBridge creates a bridge rooted at dir. The directory is created on first save.
func NewFileBridge(dir string) *FileBridge {
	if dir == "" {
		dir = "."
	}
	return &FileBridge{dir: dir}
}

func (b *FileBridge) path(collection string) string {
	return filepath.Join(b.dir, collection+".json")
}

// Load reads the collection file; a missing file means the collection is absent.
func (b *FileBridge) Load(_ context.Context, collection string) ([]json.RawMessage, bool, error) {
	if err := checkCollection(collection); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(b.path(collection))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("persistence: read %s: %w", collection, err)
	}
	records, err := DecodeDocument(data)
	if err != nil {
		return nil, false, err
	}
	return records, true, nil
}

// Save writes to a temp file and renames it over the collection file.
func (b *FileBridge) Save(_ context.Context, collection string, records []json.RawMessage) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	data, err := EncodeDocument(records)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("persistence: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(b.dir, collection+"-*.json.tmp")
	if err != nil {
		return fmt.Errorf("persistence: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("persistence: write %s: %w", collection, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("persistence: sync %s: %w", collection, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persistence: close %s: %w", collection, err)
	}
	if err := os.Rename(tmpName, b.path(collection)); err != nil {
		return fmt.Errorf("persistence: replace %s: %w", collection, err)
	}
	return nil
}

var _ Bridge = (*FileBridge)(nil)
