package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
)

// HashEmbedder maps text to a vector by feature hashing: every word and every pair of
// adjacent words adds ±1 to a bucket chosen by its FNV-1a hash, and the result is scaled
// to unit length. Texts sharing words land near each other. It needs no model files and
// is fully deterministic.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hashing embedder of the given dimension.
func NewHashEmbedder(dimensions int) (*HashEmbedder, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("embedding: dimensions must be positive, got %d", dimensions)
	}
	return &HashEmbedder{dimensions: dimensions}, nil
}

// Embed returns the embedding of text. Text without words maps to the zero vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)
	words := Words(text)
	for i, w := range words {
		e.addFeature(vec, w, 1)
		if i > 0 {
			e.addFeature(vec, words[i-1]+" "+w, 0.5)
		}
	}
	NormalizeL2(vec)
	return vec, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}

func (e *HashEmbedder) addFeature(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := sum % uint64(e.dimensions)
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}

// NormalizeL2 scales x in place to unit L2 norm. A zero vector is left unchanged.
func NormalizeL2(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := 1 / math.Sqrt(sum)
	for i := range x {
		x[i] = float32(float64(x[i]) * norm)
	}
}
