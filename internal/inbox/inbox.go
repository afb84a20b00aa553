// Package inbox ingests files dropped into a directory: JSON batches are indexed as-is
// and other supported files become one document each.
package inbox

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/vecstore/internal/extract"
	"github.com/hyperjump/vecstore/internal/models"
)

// Suffixes appended to a file's name once it has been handled.
const (
	DoneSuffix   = ".done"
	FailedSuffix = ".failed"
)

// MetaSourcePath is the metadata key holding the original path of an extracted file.
const MetaSourcePath = "source_path"

// Indexer accepts document batches.
type Indexer interface {
	AddDocuments(ctx context.Context, docs []models.DocumentInput) (*models.IndexResult, error)
}

// Ingester turns inbox files into batches for an Indexer.
type Ingester struct {
	indexer   Indexer
	extractor *extract.Extractor
	logger    *zap.Logger
}

// New returns an Ingester feeding idx.
func New(idx Indexer, logger *zap.Logger) *Ingester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{indexer: idx, extractor: extract.NewExtractor(), logger: logger}
}

// HandleFile ingests path and renames it with DoneSuffix on success or FailedSuffix on
// failure, so it is never picked up twice. Its signature matches the watcher callback.
func (in *Ingester) HandleFile(ctx context.Context, path string) {
	res, err := in.Ingest(ctx, path)
	suffix := DoneSuffix
	if err != nil {
		suffix = FailedSuffix
		in.logger.Warn("inbox file failed", zap.String("path", path), zap.Error(err))
	} else {
		in.logger.Info("inbox file indexed",
			zap.String("path", path),
			zap.Int("indexed", res.IndexedCount),
			zap.Int("total", res.TotalCount),
		)
	}
	if err := os.Rename(path, path+suffix); err != nil {
		in.logger.Error("inbox rename failed", zap.String("path", path), zap.Error(err))
	}
}

// Ingest indexes path without renaming it.
func (in *Ingester) Ingest(ctx context.Context, path string) (*models.IndexResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	var docs []models.DocumentInput
	if strings.EqualFold(filepath.Ext(abs), ".json") {
		docs, err = ReadBatchFile(abs)
	} else {
		docs, err = in.fileDocument(abs)
	}
	if err != nil {
		return nil, err
	}
	return in.indexer.AddDocuments(ctx, docs)
}

func (in *Ingester) fileDocument(abs string) ([]models.DocumentInput, error) {
	text, err := in.extractor.Extract(abs)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, fmt.Errorf("%s: no text extracted", filepath.Base(abs))
	}
	return []models.DocumentInput{
		models.NewDocumentInput(FileDocID(abs), text, map[string]interface{}{MetaSourcePath: abs}),
	}, nil
}

// FileDocID returns a stable document ID for the given absolute path.
func FileDocID(absolutePath string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(absolutePath)))
	return "file:" + hex.EncodeToString(hash[:])
}

// ReadBatchFile reads a JSON batch from path. See DecodeBatch.
func ReadBatchFile(path string) ([]models.DocumentInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	docs, err := DecodeBatch(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return docs, nil
}

// DecodeBatch reads either a JSON array of documents or an object with a "documents"
// array, the same body POST /index accepts.
func DecodeBatch(r io.Reader) ([]models.DocumentInput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty batch file")
	}
	if data[0] == '[' {
		var docs []models.DocumentInput
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("decode documents: %w", err)
		}
		return docs, nil
	}
	var wrapped struct {
		Documents *[]models.DocumentInput `json:"documents"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	if wrapped.Documents == nil {
		return nil, errors.New(`batch object has no "documents" array`)
	}
	return *wrapped.Documents, nil
}
