// Package catalog owns the vector index and document store, keeps them aligned, and
// persists every accepted batch before acknowledging it.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/vecstore/internal/docstore"
	"github.com/hyperjump/vecstore/internal/embedding"
	"github.com/hyperjump/vecstore/internal/models"
	"github.com/hyperjump/vecstore/internal/storage"
	"github.com/hyperjump/vecstore/internal/vector"
)

// DefaultTopK is used by Query when topK is zero and Options.DefaultTopK is unset.
const DefaultTopK = 5

// Options configures a Catalog.
type Options struct {
	Dimensions  int
	ModelName   string
	DefaultTopK int
}

// Catalog serves adds and queries over one index and its documents. Queries run in
// parallel under a read lock; an add holds the write lock only while appending and
// persisting. Embedding always happens outside the lock.
type Catalog struct {
	opts     Options
	embedder embedding.Embedder
	storage  storage.Storage
	logger   *zap.Logger

	mu    sync.RWMutex
	index *vector.Index
	docs  *docstore.Store
}

// New restores persisted state from store, or starts empty when nothing was saved.
// Any other load failure is returned and the catalog must not be used.
func New(ctx context.Context, opts Options, emb embedding.Embedder, store storage.Storage, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", ErrInvalidArgument, opts.Dimensions)
	}
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = DefaultTopK
	}
	if got := emb.Dimensions(); got != opts.Dimensions {
		return nil, fmt.Errorf("%w: embedder produces %d-dimensional vectors, catalog expects %d",
			ErrDimensionMismatch, got, opts.Dimensions)
	}

	c := &Catalog{opts: opts, embedder: emb, storage: store, logger: logger}

	snap, err := store.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		logger.Info("no persisted catalog, starting empty",
			zap.String("location", store.Location()),
			zap.String("reason", err.Error()),
		)
		c.index, _ = vector.New(opts.Dimensions)
		c.docs = docstore.New()
		return c, nil
	case err != nil:
		return nil, fmt.Errorf("load catalog from %s: %w", store.Location(), err)
	}

	if snap.Dimensions != opts.Dimensions {
		return nil, fmt.Errorf("%w: persisted catalog has dimension %d, configured %d",
			ErrDimensionMismatch, snap.Dimensions, opts.Dimensions)
	}
	if c.index, err = vector.FromFlat(snap.Dimensions, snap.Vectors); err != nil {
		return nil, fmt.Errorf("restore index: %w", err)
	}
	c.docs = docstore.FromDocuments(snap.Documents)
	if c.index.Len() != c.docs.Len() {
		return nil, fmt.Errorf("restore catalog: %d vectors but %d documents", c.index.Len(), c.docs.Len())
	}
	logger.Info("catalog restored",
		zap.String("location", store.Location()),
		zap.Int("count", c.index.Len()),
		zap.Int("dimension", snap.Dimensions),
	)
	return c, nil
}

// AddDocuments embeds and appends a batch. The batch is accepted whole or not at all:
// on any failure, including a failed save, the catalog is left as it was.
func (c *Catalog) AddDocuments(ctx context.Context, inputs []models.DocumentInput) (*models.IndexResult, error) {
	if len(inputs) == 0 {
		return &models.IndexResult{TotalCount: c.Len(), Message: "No new documents to index."}, nil
	}

	docs := make([]models.Document, len(inputs))
	texts := make([]string, len(inputs))
	for i, in := range inputs {
		if in.Content == nil {
			return nil, fmt.Errorf("%w: document at offset %d has no content", ErrMissingField, i)
		}
		id := in.ID
		if id == "" {
			id = uuid.New().String()
		}
		docs[i] = models.Document{ID: id, Content: *in.Content, Metadata: in.Metadata}.Clone()
		texts[i] = *in.Content
	}

	vecs, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d documents", len(vecs), len(docs))
	}
	for i, v := range vecs {
		if len(v) != c.opts.Dimensions {
			return nil, fmt.Errorf("embedding provider returned %d dimensions for document at offset %d, expected %d",
				len(v), i, c.opts.Dimensions)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.index.Len()
	if _, err := c.index.Add(vecs); err != nil {
		return nil, translate(err)
	}
	c.docs.Append(docs)
	if c.index.Len() != c.docs.Len() {
		c.rollback(prev)
		return nil, fmt.Errorf("catalog diverged: %d vectors, %d documents", c.index.Len(), c.docs.Len())
	}

	snap := &storage.Snapshot{Dimensions: c.opts.Dimensions, Vectors: c.index.Flat(), Documents: c.docs.All()}
	if err := c.storage.Save(context.WithoutCancel(ctx), snap); err != nil {
		c.rollback(prev)
		c.logger.Error("persist failed, batch rolled back",
			zap.Int("batch", len(docs)),
			zap.Int("count", prev),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	total := c.index.Len()
	c.logger.Debug("documents indexed", zap.Int("batch", len(docs)), zap.Int("count", total))
	return &models.IndexResult{IndexedCount: len(docs), TotalCount: total}, nil
}

// Query returns up to topK documents nearest to text, nearest first. topK 0 selects the
// default.
func (c *Catalog) Query(ctx context.Context, text string, topK int) ([]models.Hit, error) {
	if topK < 0 {
		return nil, fmt.Errorf("%w: top_k must be at least 1, got %d", ErrInvalidArgument, topK)
	}
	if topK == 0 {
		topK = c.opts.DefaultTopK
	}
	if c.Len() == 0 {
		return nil, ErrNotReady
	}

	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vec) != c.opts.Dimensions {
		return nil, fmt.Errorf("embedding provider returned %d dimensions for the query, expected %d",
			len(vec), c.opts.Dimensions)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	neighbors, err := c.index.Search(vec, topK)
	if err != nil {
		return nil, translate(err)
	}
	hits := make([]models.Hit, len(neighbors))
	for i, n := range neighbors {
		doc, err := c.docs.Get(n.Position)
		if err != nil {
			return nil, fmt.Errorf("position %d: %w", n.Position, err)
		}
		hits[i] = models.Hit{Position: n.Position, Distance: n.Distance, Document: doc}
	}
	return hits, nil
}

// Document returns the document stored at pos.
func (c *Catalog) Document(pos int) (models.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, err := c.docs.Get(pos)
	if err != nil {
		return models.Document{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return doc, nil
}

// Status reports the current size of the catalog. A constructed catalog is always ready;
// an empty one is reported through TotalCount.
func (c *Catalog) Status() models.Status {
	n := c.Len()
	return models.Status{
		Ready:      true,
		TotalCount: n,
		Dimensions: c.opts.Dimensions,
		ModelName:  c.opts.ModelName,
	}
}

// Len returns the number of stored documents.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.Len()
}

// Storage returns the backend the catalog persists to.
func (c *Catalog) Storage() storage.Storage {
	return c.storage
}

// rollback truncates both structures to n. Caller holds the write lock.
func (c *Catalog) rollback(n int) {
	c.index.Truncate(n)
	c.docs.Truncate(n)
}

func translate(err error) error {
	var dim *vector.DimensionMismatchError
	switch {
	case errors.As(err, &dim):
		return fmt.Errorf("%w: %w", ErrDimensionMismatch, err)
	case errors.Is(err, vector.ErrNotReady):
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	case errors.Is(err, vector.ErrInvalidK), errors.Is(err, vector.ErrNonFinite):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	default:
		return err
	}
}
