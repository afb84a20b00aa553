package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hyperjump/vecstore/internal/models"
)

const (
	manifestName   = "MANIFEST"
	manifestFormat = 1
	vectorsPrefix  = "vectors-"
	docsPrefix     = "documents-"
)

// manifest names the artifacts of the last committed save. Renaming a new manifest into
// place is the commit point of Save.
type manifest struct {
	Format      int    `json:"format"`
	Generation  uint64 `json:"generation"`
	Dimension   int    `json:"dimension"`
	Count       int    `json:"count"`
	Vectors     string `json:"vectors"`
	Documents   string `json:"documents"`
	Compression string `json:"compression"`
}

// FileStorage keeps the catalog as two co-located artifacts in a directory: a binary
// vector file and a JSON array of documents in position order, tied together by a
// manifest.
type FileStorage struct {
	dir         string
	compression string

	mu         sync.Mutex
	generation uint64
	known      bool // generation has been read from disk

	syncDir func(dir string) error
}

// NewFileStorage prepares dir (created if missing) for file persistence.
func NewFileStorage(dir, compression string) (*FileStorage, error) {
	if dir == "" {
		return nil, errors.New("storage: path is required")
	}
	switch compression {
	case "", CompressionNone, CompressionZstd:
	default:
		return nil, fmt.Errorf("unknown compression: %s (supported: none, zstd)", compression)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStorage{dir: dir, compression: compression, syncDir: syncDir}, nil
}

// Location returns the storage directory.
func (s *FileStorage) Location() string {
	return s.dir
}

// DiskUsage returns the bytes used by the storage directory.
func (s *FileStorage) DiskUsage() (int64, error) {
	return DiskUsageBytes(s.dir)
}

// Close is a no-op for FileStorage.
func (s *FileStorage) Close() error {
	return nil
}

// Load reads the artifacts named by the manifest. Without a manifest it returns
// ErrNotFound; artifacts present without a manifest belong to a save that never
// committed, and the returned error names them.
func (s *FileStorage) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, err := s.readManifest()
	if errors.Is(err, os.ErrNotExist) {
		stray, globErr := s.artifacts()
		if globErr != nil {
			return nil, globErr
		}
		s.generation, s.known = 0, true
		if len(stray) > 0 {
			return nil, fmt.Errorf("%w: ignoring uncommitted artifacts %v", ErrNotFound, stray)
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	dim, flat, err := s.readVectors(m.Vectors)
	if err != nil {
		return nil, err
	}
	docs, err := s.readDocuments(m.Documents)
	if err != nil {
		return nil, err
	}
	if dim != m.Dimension {
		return nil, fmt.Errorf("%w: vectors have dimension %d, manifest says %d", ErrCorrupt, dim, m.Dimension)
	}
	snap := &Snapshot{Dimensions: dim, Vectors: flat, Documents: docs}
	if snap.Count() != m.Count || len(flat) != m.Count*dim {
		return nil, fmt.Errorf("%w: manifest count %d, %d vectors, %d documents",
			ErrCorrupt, m.Count, len(flat)/dim, len(docs))
	}
	s.generation, s.known = m.Generation, true
	return snap, nil
}

// Save writes both artifacts under a new generation, then commits by replacing the
// manifest. Artifacts of older generations are removed afterwards.
func (s *FileStorage) Save(ctx context.Context, snap *Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.known {
		m, err := s.readManifest()
		switch {
		case err == nil:
			s.generation = m.Generation
		case errors.Is(err, os.ErrNotExist):
			s.generation = 0
		default:
			return err
		}
		s.known = true
	}

	gen := s.generation + 1
	m := manifest{
		Format:      manifestFormat,
		Generation:  gen,
		Dimension:   snap.Dimensions,
		Count:       snap.Count(),
		Vectors:     fmt.Sprintf("%s%06d.bin", vectorsPrefix, gen),
		Documents:   fmt.Sprintf("%s%06d.json", docsPrefix, gen),
		Compression: s.compression,
	}
	if m.Compression == "" {
		m.Compression = CompressionNone
	}

	err := writeFileAtomic(filepath.Join(s.dir, m.Vectors), func(w io.Writer) error {
		return encodeVectors(w, snap.Dimensions, snap.Vectors, m.Compression)
	})
	if err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}
	err = writeFileAtomic(filepath.Join(s.dir, m.Documents), func(w io.Writer) error {
		docs := snap.Documents
		if docs == nil {
			docs = []models.Document{}
		}
		return json.NewEncoder(w).Encode(docs)
	})
	if err != nil {
		return fmt.Errorf("write documents: %w", err)
	}
	if err := s.syncDir(s.dir); err != nil {
		return fmt.Errorf("sync storage dir: %w", err)
	}
	err = writeFileAtomic(filepath.Join(s.dir, manifestName), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	})
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	// The manifest is in place: gen is committed even if the directory sync fails, and
	// the next save must not reuse its artifact names.
	s.generation = gen
	if err := s.syncDir(s.dir); err != nil {
		return fmt.Errorf("sync storage dir: %w", err)
	}
	s.removeStale(m)
	return nil
}

func (s *FileStorage) readManifest() (*manifest, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, manifestName))
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrCorrupt, manifestName, err)
	}
	if m.Format != manifestFormat {
		return nil, fmt.Errorf("%w: unsupported manifest format %d", ErrCorrupt, m.Format)
	}
	if m.Vectors == "" || m.Documents == "" || m.Dimension <= 0 || m.Count < 0 {
		return nil, fmt.Errorf("%w: incomplete manifest", ErrCorrupt)
	}
	if filepath.Base(m.Vectors) != m.Vectors || filepath.Base(m.Documents) != m.Documents {
		return nil, fmt.Errorf("%w: manifest artifact names must be plain file names", ErrCorrupt)
	}
	return &m, nil
}

func (s *FileStorage) readVectors(name string) (int, []float32, error) {
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil, fmt.Errorf("%w: vectors artifact %s missing", ErrCorrupt, name)
		}
		return 0, nil, fmt.Errorf("open vectors: %w", err)
	}
	defer f.Close()
	return decodeVectors(f)
}

func (s *FileStorage) readDocuments(name string) ([]models.Document, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: documents artifact %s missing", ErrCorrupt, name)
		}
		return nil, fmt.Errorf("read documents: %w", err)
	}
	var docs []models.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("%w: decode documents: %v", ErrCorrupt, err)
	}
	return docs, nil
}

// artifacts lists vector and document files in the directory.
func (s *FileStorage) artifacts() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read storage dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if isArtifact(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// removeStale deletes artifacts and temp files not referenced by m. Failures are ignored;
// leftovers are retried on the next save.
func (s *FileStorage) removeStale(m manifest) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if name == m.Vectors || name == m.Documents {
			continue
		}
		if isArtifact(name) || strings.Contains(name, ".tmp-") {
			_ = os.Remove(filepath.Join(s.dir, name))
		}
	}
}

func isArtifact(name string) bool {
	return (strings.HasPrefix(name, vectorsPrefix) && strings.HasSuffix(name, ".bin")) ||
		(strings.HasPrefix(name, docsPrefix) && strings.HasSuffix(name, ".json"))
}
