// Package storage persists the catalog (vectors plus documents) and restores it on startup.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/vecstore/internal/models"
)

var (
	// ErrNotFound is returned by Load when nothing has been saved yet.
	ErrNotFound = errors.New("storage: no persisted catalog")
	// ErrCorrupt is returned by Load when persisted state exists but is inconsistent or unreadable.
	ErrCorrupt = errors.New("storage: persisted catalog is corrupt")
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Snapshot is the complete persisted state. Vectors is row-major: vector i occupies
// Vectors[i*Dimensions:(i+1)*Dimensions] and pairs with Documents[i].
type Snapshot struct {
	Dimensions int
	Vectors    []float32
	Documents  []models.Document
}

// Count returns the number of entries.
func (s *Snapshot) Count() int {
	return len(s.Documents)
}

// Validate checks that vectors and documents are aligned.
func (s *Snapshot) Validate() error {
	if s.Dimensions <= 0 {
		return fmt.Errorf("snapshot dimension must be positive, got %d", s.Dimensions)
	}
	if len(s.Vectors) != len(s.Documents)*s.Dimensions {
		return fmt.Errorf("snapshot holds %d floats for %d documents of dimension %d",
			len(s.Vectors), len(s.Documents), s.Dimensions)
	}
	return nil
}

// Storage saves and loads snapshots. Save must be atomic: after a crash, Load returns
// either the previous snapshot or the new one, never a mix.
type Storage interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	// Location is the directory or file the backend writes to.
	Location() string
	// DiskUsage returns the bytes currently used on disk.
	DiskUsage() (int64, error)
	Close() error
}

// Options configures Open.
type Options struct {
	Backend string // "file" (default) or "sqlite"
	Path    string // storage directory
	// Compression applies to the file backend's vector artifact: "none" (default) or "zstd".
	Compression string
}

// Open creates the configured backend.
func Open(opts Options) (Storage, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileStorage(opts.Path, opts.Compression)
	case BackendSQLite:
		return NewSQLiteStorage(opts.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: file, sqlite)", opts.Backend)
	}
}
