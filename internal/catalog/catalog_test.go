package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/vecstore/internal/docstore"
	"github.com/hyperjump/vecstore/internal/embedding"
	"github.com/hyperjump/vecstore/internal/models"
	"github.com/hyperjump/vecstore/internal/storage"
)

const testDims = 64

// fakeEmbedder maps each text to a vector through vecFn and can be told to fail.
type fakeEmbedder struct {
	dims  int
	vecFn func(text string) []float32
	err   error
	// extra appends this many surplus vectors to every batch.
	extra int
	calls int
	mu    sync.Mutex
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts)+f.extra)
	for _, t := range texts {
		out = append(out, f.vecFn(t))
	}
	for i := 0; i < f.extra; i++ {
		out = append(out, make([]float32, f.dims))
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }
func (f *fakeEmbedder) Close() error    { return nil }

// memStorage keeps the last saved snapshot in memory.
type memStorage struct {
	mu      sync.Mutex
	snap    *storage.Snapshot
	loadErr error
	saveErr error
	saves   int
}

func (m *memStorage) Load(context.Context) (*storage.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.snap == nil {
		return nil, storage.ErrNotFound
	}
	return m.snap, nil
}

func (m *memStorage) Save(ctx context.Context, snap *storage.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.snap = snap
	return nil
}

func (m *memStorage) Location() string           { return "memory" }
func (m *memStorage) DiskUsage() (int64, error) { return 0, nil }
func (m *memStorage) Close() error              { return nil }

func hashEmbedder(t *testing.T) embedding.Embedder {
	t.Helper()
	e, err := embedding.NewHashEmbedder(testDims)
	require.NoError(t, err)
	return e
}

func newCatalog(t *testing.T, emb embedding.Embedder, store storage.Storage) *Catalog {
	t.Helper()
	c, err := New(context.Background(), Options{Dimensions: emb.Dimensions(), ModelName: "test-model"}, emb, store, nil)
	require.NoError(t, err)
	return c
}

func inputs(contents ...string) []models.DocumentInput {
	out := make([]models.DocumentInput, len(contents))
	for i, c := range contents {
		out[i] = models.NewDocumentInput(fmt.Sprintf("doc%02d", i), c, nil)
	}
	return out
}

func TestSkyScenario(t *testing.T) {
	c := newCatalog(t, hashEmbedder(t), &memStorage{})
	ctx := context.Background()

	res, err := c.AddDocuments(ctx, []models.DocumentInput{
		models.NewDocumentInput("test01", "The sky is blue and the grass is green.", nil),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.IndexedCount)
	assert.Equal(t, 1, res.TotalCount)

	hits, err := c.Query(ctx, "What color is the sky?", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "test01", hits[0].Document.ID)
}

func TestAddDocuments_CountArithmetic(t *testing.T) {
	store := &memStorage{}
	c := newCatalog(t, hashEmbedder(t), store)
	ctx := context.Background()

	total := 0
	for _, batch := range [][]models.DocumentInput{
		inputs("alpha"),
		inputs("beta", "gamma", "delta"),
		inputs("epsilon", "zeta"),
	} {
		res, err := c.AddDocuments(ctx, batch)
		require.NoError(t, err)
		total += len(batch)
		assert.Equal(t, len(batch), res.IndexedCount)
		assert.Equal(t, total, res.TotalCount)
		assert.Equal(t, c.index.Len(), c.docs.Len())
		assert.Equal(t, total, store.snap.Count())
	}
	assert.Equal(t, 3, store.saves)
}

func TestAddDocuments_EmptyBatch(t *testing.T) {
	emb := &fakeEmbedder{dims: 2, vecFn: func(string) []float32 { return []float32{1, 1} }}
	store := &memStorage{}
	c := newCatalog(t, emb, store)
	ctx := context.Background()

	_, err := c.AddDocuments(ctx, inputs("x"))
	require.NoError(t, err)

	res, err := c.AddDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.IndexedCount)
	assert.Equal(t, 1, res.TotalCount)
	assert.NotEmpty(t, res.Message)
	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, 1, store.saves)
}

func TestAddDocuments_MissingContent(t *testing.T) {
	emb := &fakeEmbedder{dims: testDims, vecFn: func(string) []float32 { return make([]float32, testDims) }}
	store := &memStorage{}
	c := newCatalog(t, emb, store)

	batch := inputs("a", "b")
	batch = append(batch, models.DocumentInput{ID: "nocontent"})

	_, err := c.AddDocuments(context.Background(), batch)
	require.ErrorIs(t, err, ErrMissingField)
	assert.Contains(t, err.Error(), "offset 2")
	assert.True(t, IsClientError(err))
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, emb.calls)
	assert.Equal(t, 0, store.saves)
}

func TestAddDocuments_GeneratesIDs(t *testing.T) {
	c := newCatalog(t, hashEmbedder(t), &memStorage{})
	content := "no id here"
	_, err := c.AddDocuments(context.Background(), []models.DocumentInput{{Content: &content}})
	require.NoError(t, err)

	doc, err := c.Document(0)
	require.NoError(t, err)
	assert.Len(t, doc.ID, 36)
}

func TestAddDocuments_KeepsMetadata(t *testing.T) {
	c := newCatalog(t, hashEmbedder(t), &memStorage{})
	meta := map[string]interface{}{"source": "unit", "tags": []interface{}{"a"}}
	_, err := c.AddDocuments(context.Background(), []models.DocumentInput{
		models.NewDocumentInput("m1", "metadata survives", meta),
	})
	require.NoError(t, err)

	meta["source"] = "mutated"
	doc, err := c.Document(0)
	require.NoError(t, err)
	assert.Equal(t, "unit", doc.Metadata["source"])
}

func TestAddDocuments_ProviderFailure(t *testing.T) {
	boom := errors.New("provider down")
	emb := &fakeEmbedder{dims: 4, err: boom}
	store := &memStorage{}
	c := newCatalog(t, emb, store)

	_, err := c.AddDocuments(context.Background(), inputs("a"))
	require.ErrorIs(t, err, boom)
	assert.False(t, IsClientError(err))
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, store.saves)
}

func TestAddDocuments_ProviderWrongCount(t *testing.T) {
	emb := &fakeEmbedder{dims: 2, extra: 1, vecFn: func(string) []float32 { return []float32{0, 1} }}
	c := newCatalog(t, emb, &memStorage{})

	_, err := c.AddDocuments(context.Background(), inputs("a", "b"))
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestAddDocuments_ProviderWrongDimension(t *testing.T) {
	emb := &fakeEmbedder{dims: 3, vecFn: func(text string) []float32 {
		if text == "bad" {
			return []float32{1, 2}
		}
		return []float32{1, 2, 3}
	}}
	store := &memStorage{}
	c := newCatalog(t, emb, store)

	_, err := c.AddDocuments(context.Background(), inputs("good", "bad"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDimensionMismatch)
	assert.False(t, IsClientError(err))
	assert.Contains(t, err.Error(), "offset 1")
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, store.saves)
}

func TestAddDocuments_RollbackOnSaveFailure(t *testing.T) {
	store := &memStorage{}
	c := newCatalog(t, hashEmbedder(t), store)
	ctx := context.Background()

	_, err := c.AddDocuments(ctx, inputs("first", "second"))
	require.NoError(t, err)

	diskFull := errors.New("no space left on device")
	store.saveErr = diskFull
	_, err = c.AddDocuments(ctx, inputs("third", "fourth", "fifth"))
	require.ErrorIs(t, err, ErrIOFailure)
	require.ErrorIs(t, err, diskFull)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 2, c.docs.Len())
	_, err = c.docs.Get(2)
	assert.ErrorIs(t, err, docstore.ErrOutOfRange)

	store.saveErr = nil
	res, err := c.AddDocuments(ctx, inputs("third"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalCount)
	doc, err := c.Document(2)
	require.NoError(t, err)
	assert.Equal(t, "third", doc.Content)
}

func TestAddDocuments_PersistsDespiteCanceledContext(t *testing.T) {
	emb := &fakeEmbedder{dims: 2, vecFn: func(string) []float32 { return []float32{1, 2} }}
	store := &memStorage{}
	c := newCatalog(t, emb, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := c.AddDocuments(ctx, inputs("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalCount)
	assert.Equal(t, 1, store.saves)
}

func TestQuery_EmptyIndexIsNotReady(t *testing.T) {
	emb := &fakeEmbedder{dims: 2, vecFn: func(string) []float32 { return []float32{0, 0} }}
	store := &memStorage{}
	c := newCatalog(t, emb, store)

	_, err := c.Query(context.Background(), "anything", 3)
	require.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, 0, emb.calls)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, store.saves)
	assert.True(t, c.Status().Ready)
	assert.Zero(t, c.Status().TotalCount)
}

func TestQuery_TopKLargerThanCount(t *testing.T) {
	c := newCatalog(t, hashEmbedder(t), &memStorage{})
	ctx := context.Background()
	k := 4
	_, err := c.AddDocuments(ctx, inputs("red apples", "green pears", "yellow bananas", "purple grapes"))
	require.NoError(t, err)

	hits, err := c.Query(ctx, "fruit", k+5)
	require.NoError(t, err)
	assert.Len(t, hits, k)
}

func TestQuery_OrderedByDistance(t *testing.T) {
	points := map[string][]float32{
		"far":    {10, 0},
		"near":   {1, 0},
		"middle": {4, 0},
		"tie-a":  {0, 3},
		"origin": {0, 0},
	}
	emb := &fakeEmbedder{dims: 2, vecFn: func(text string) []float32 { return points[text] }}
	c := newCatalog(t, emb, &memStorage{})
	ctx := context.Background()

	_, err := c.AddDocuments(ctx, inputs("far", "near", "middle", "tie-a"))
	require.NoError(t, err)

	hits, err := c.Query(ctx, "origin", 0)
	require.NoError(t, err)
	require.Len(t, hits, 4)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
	}
	assert.Equal(t, "near", hits[0].Document.Content)
	assert.Equal(t, 1, hits[0].Position)

	one, err := c.Query(ctx, "origin", 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "near", one[0].Document.Content)
}

func TestQuery_DefaultTopK(t *testing.T) {
	c := newCatalog(t, hashEmbedder(t), &memStorage{})
	ctx := context.Background()
	_, err := c.AddDocuments(ctx, inputs("a", "b", "c", "d", "e", "f", "g"))
	require.NoError(t, err)

	hits, err := c.Query(ctx, "a", 0)
	require.NoError(t, err)
	assert.Len(t, hits, DefaultTopK)
}

func TestQuery_NegativeTopK(t *testing.T) {
	c := newCatalog(t, hashEmbedder(t), &memStorage{})
	_, err := c.Query(context.Background(), "a", -1)
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.True(t, IsClientError(err))
}

func TestQuery_ProviderWrongDimension(t *testing.T) {
	emb := &fakeEmbedder{dims: 2, vecFn: func(text string) []float32 {
		if text == "odd" {
			return []float32{1, 0, 0}
		}
		return []float32{1, 0}
	}}
	c := newCatalog(t, emb, &memStorage{})
	_, err := c.AddDocuments(context.Background(), inputs("a"))
	require.NoError(t, err)

	_, err = c.Query(context.Background(), "odd", 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDimensionMismatch)
	assert.False(t, IsClientError(err))
}

func TestQuery_ProviderFailure(t *testing.T) {
	emb := &fakeEmbedder{dims: 2, vecFn: func(string) []float32 { return []float32{1, 0} }}
	c := newCatalog(t, emb, &memStorage{})
	_, err := c.AddDocuments(context.Background(), inputs("a"))
	require.NoError(t, err)

	boom := errors.New("timeout")
	emb.err = boom
	_, err = c.Query(context.Background(), "a", 1)
	require.ErrorIs(t, err, boom)
}

func TestNew_RestoresPersistedState(t *testing.T) {
	dir := t.TempDir()
	fs, err := storage.NewFileStorage(dir, storage.CompressionNone)
	require.NoError(t, err)
	ctx := context.Background()

	c := newCatalog(t, hashEmbedder(t), fs)
	_, err = c.AddDocuments(ctx, []models.DocumentInput{
		models.NewDocumentInput("test01", "The sky is blue and the grass is green.", map[string]interface{}{"lang": "en"}),
		models.NewDocumentInput("test02", "Roses are red.", nil),
	})
	require.NoError(t, err)
	before, err := c.Query(ctx, "What color is the sky?", 2)
	require.NoError(t, err)

	fs2, err := storage.NewFileStorage(dir, storage.CompressionNone)
	require.NoError(t, err)
	restored := newCatalog(t, hashEmbedder(t), fs2)
	assert.Equal(t, 2, restored.Len())
	assert.Equal(t, c.index.Flat(), restored.index.Flat())
	assert.Equal(t, c.docs.All(), restored.docs.All())

	after, err := restored.Query(ctx, "What color is the sky?", 2)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestNew_CorruptStateIsFatal(t *testing.T) {
	store := &memStorage{loadErr: fmt.Errorf("%w: checksum mismatch", storage.ErrCorrupt)}
	_, err := New(context.Background(), Options{Dimensions: testDims}, hashEmbedder(t), store, nil)
	require.ErrorIs(t, err, storage.ErrCorrupt)
}

func TestNew_DimensionChangedSinceSave(t *testing.T) {
	store := &memStorage{snap: &storage.Snapshot{
		Dimensions: 2,
		Vectors:    []float32{1, 2},
		Documents:  []models.Document{{ID: "a", Content: "a"}},
	}}
	_, err := New(context.Background(), Options{Dimensions: testDims}, hashEmbedder(t), store, nil)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestNew_EmbedderDimensionDisagrees(t *testing.T) {
	_, err := New(context.Background(), Options{Dimensions: 8}, hashEmbedder(t), &memStorage{}, nil)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestStatus(t *testing.T) {
	c := newCatalog(t, hashEmbedder(t), &memStorage{})
	st := c.Status()
	assert.True(t, st.Ready)
	assert.Zero(t, st.TotalCount)
	assert.Equal(t, testDims, st.Dimensions)
	assert.Equal(t, "test-model", st.ModelName)

	_, err := c.AddDocuments(context.Background(), inputs("a", "b"))
	require.NoError(t, err)
	st = c.Status()
	assert.True(t, st.Ready)
	assert.Equal(t, 2, st.TotalCount)
}

func TestDocument_OutOfRange(t *testing.T) {
	c := newCatalog(t, hashEmbedder(t), &memStorage{})
	_, err := c.Document(0)
	require.ErrorIs(t, err, docstore.ErrOutOfRange)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestConcurrentAddAndQuery(t *testing.T) {
	c := newCatalog(t, hashEmbedder(t), &memStorage{})
	ctx := context.Background()
	_, err := c.AddDocuments(ctx, inputs("seed"))
	require.NoError(t, err)

	const writers, perWriter = 4, 10
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := c.AddDocuments(ctx, inputs(fmt.Sprintf("writer %d doc %d", w, i)))
				assert.NoError(t, err)
			}
		}(w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				hits, err := c.Query(ctx, "doc", 3)
				assert.NoError(t, err)
				assert.NotEmpty(t, hits)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1+writers*perWriter, c.Len())
	assert.Equal(t, c.index.Len(), c.docs.Len())
}
