package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/vecstore/internal/models"
)

// SQLiteFileName is the database file created inside the storage directory.
const SQLiteFileName = "catalog.db"

// SQLiteStorage keeps vectors and documents in one SQLite database, so a save is a
// single transaction.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens or creates the database inside dir and initializes the schema.
func NewSQLiteStorage(dir string) (*SQLiteStorage, error) {
	if dir == "" {
		return nil, errors.New("storage: path is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	dbPath := filepath.Join(dir, SQLiteFileName)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Writers are serialized by the catalog; one connection keeps transactions simple.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=FULL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set synchronous: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS catalog_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		dimension INTEGER NOT NULL,
		count INTEGER NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS vectors (
		position INTEGER PRIMARY KEY,
		embedding BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		position INTEGER PRIMARY KEY,
		doc_id TEXT NOT NULL,
		body TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_doc_id ON documents(doc_id);
	`
	_, err := db.Exec(schema)
	return err
}

// Location returns the database file path.
func (s *SQLiteStorage) Location() string {
	return s.path
}

// DiskUsage returns the size of the database and its WAL files.
func (s *SQLiteStorage) DiskUsage() (int64, error) {
	return DiskUsageBytes(s.path, s.path+"-wal", s.path+"-shm")
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Load reads the catalog. Positions must be dense and every blob must match the
// recorded dimension.
func (s *SQLiteStorage) Load(ctx context.Context) (*Snapshot, error) {
	var dim, count int
	err := s.db.QueryRowContext(ctx, `SELECT dimension, count FROM catalog_meta WHERE id = 1`).Scan(&dim, &count)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog meta: %w", err)
	}
	if dim <= 0 || count < 0 {
		return nil, fmt.Errorf("%w: meta dimension %d count %d", ErrCorrupt, dim, count)
	}

	snap := &Snapshot{
		Dimensions: dim,
		Vectors:    make([]float32, 0, count*dim),
		Documents:  make([]models.Document, 0, count),
	}
	if err := s.loadVectors(ctx, snap); err != nil {
		return nil, err
	}
	if err := s.loadDocuments(ctx, snap); err != nil {
		return nil, err
	}
	if snap.Count() != count || len(snap.Vectors) != count*dim {
		return nil, fmt.Errorf("%w: meta count %d, %d vectors, %d documents",
			ErrCorrupt, count, len(snap.Vectors)/dim, snap.Count())
	}
	return snap, nil
}

func (s *SQLiteStorage) loadVectors(ctx context.Context, snap *Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `SELECT position, embedding FROM vectors ORDER BY position`)
	if err != nil {
		return fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()
	next := 0
	for rows.Next() {
		var pos int
		var blob []byte
		if err := rows.Scan(&pos, &blob); err != nil {
			return fmt.Errorf("scan vector: %w", err)
		}
		if pos != next {
			return fmt.Errorf("%w: vector position %d, expected %d", ErrCorrupt, pos, next)
		}
		if len(blob)%4 != 0 {
			return fmt.Errorf("%w: vector %d: %v", ErrCorrupt, pos, errBlobLength)
		}
		if len(blob) != snap.Dimensions*4 {
			return fmt.Errorf("%w: vector %d has %d components, expected %d", ErrCorrupt, pos, len(blob)/4, snap.Dimensions)
		}
		snap.Vectors = append(snap.Vectors, bytesToFloat32Slice(blob)...)
		next++
	}
	return rows.Err()
}

func (s *SQLiteStorage) loadDocuments(ctx context.Context, snap *Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `SELECT position, body FROM documents ORDER BY position`)
	if err != nil {
		return fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()
	next := 0
	for rows.Next() {
		var pos int
		var body string
		if err := rows.Scan(&pos, &body); err != nil {
			return fmt.Errorf("scan document: %w", err)
		}
		if pos != next {
			return fmt.Errorf("%w: document position %d, expected %d", ErrCorrupt, pos, next)
		}
		var doc models.Document
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return fmt.Errorf("%w: document %d: %v", ErrCorrupt, pos, err)
		}
		snap.Documents = append(snap.Documents, doc)
		next++
	}
	return rows.Err()
}

// Save brings the database in line with snap inside one transaction. The catalog is
// append-only, so only positions past the persisted count are written; rows past the
// snapshot's count are deleted.
func (s *SQLiteStorage) Save(ctx context.Context, snap *Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	persisted := 0
	var dim int
	err = tx.QueryRowContext(ctx, `SELECT dimension, count FROM catalog_meta WHERE id = 1`).Scan(&dim, &persisted)
	switch {
	case err == sql.ErrNoRows:
		persisted = 0
	case err != nil:
		return fmt.Errorf("read catalog meta: %w", err)
	case dim != snap.Dimensions:
		return fmt.Errorf("persisted dimension %d differs from %d", dim, snap.Dimensions)
	}

	count := snap.Count()
	if count < persisted {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE position >= ?`, count); err != nil {
			return fmt.Errorf("trim vectors: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE position >= ?`, count); err != nil {
			return fmt.Errorf("trim documents: %w", err)
		}
	}

	vecStmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO vectors (position, embedding) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare vector insert: %w", err)
	}
	defer vecStmt.Close()
	docStmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO documents (position, doc_id, body) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare document insert: %w", err)
	}
	defer docStmt.Close()

	for pos := persisted; pos < count; pos++ {
		vec := snap.Vectors[pos*snap.Dimensions : (pos+1)*snap.Dimensions]
		if _, err := vecStmt.ExecContext(ctx, pos, float32SliceToBytes(vec)); err != nil {
			return fmt.Errorf("insert vector %d: %w", pos, err)
		}
		body, err := json.Marshal(snap.Documents[pos])
		if err != nil {
			return fmt.Errorf("marshal document %d: %w", pos, err)
		}
		if _, err := docStmt.ExecContext(ctx, pos, snap.Documents[pos].ID, string(body)); err != nil {
			return fmt.Errorf("insert document %d: %w", pos, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO catalog_meta (id, dimension, count, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET dimension = excluded.dimension, count = excluded.count, updated_at = excluded.updated_at`,
		snap.Dimensions, count, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("write catalog meta: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
