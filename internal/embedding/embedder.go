// Package embedding turns text into fixed-dimension vectors. Providers: a deterministic
// feature-hashing embedder, ONNX Runtime (cgo), and an Ollama HTTP endpoint.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/vecstore/internal/config"
)

// Embedder produces vector embeddings for text. EmbedBatch returns one vector per input,
// in input order, each of length Dimensions().
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Provider names accepted in configuration.
const (
	ProviderHash   = "hash"
	ProviderONNX   = "onnx"
	ProviderOllama = "ollama"
)

// NewFromConfig builds the configured provider, wrapped in an LRU cache when
// cfg.CacheSize is positive.
func NewFromConfig(cfg *config.EmbeddingConfig) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)
	switch cfg.Provider {
	case ProviderHash, "":
		inner, err = NewHashEmbedder(cfg.Dimensions)
	case ProviderONNX:
		inner, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	case ProviderOllama:
		inner, err = NewOllamaEmbedder(OllamaOptions{
			URL:               cfg.Ollama.URL,
			Model:             cfg.Ollama.Model,
			Dimensions:        cfg.Dimensions,
			Timeout:           cfg.Ollama.Timeout,
			RequestsPerSecond: cfg.Ollama.RequestsPerSecond,
			Concurrency:       cfg.Ollama.Concurrency,
			BatchSize:         cfg.Ollama.BatchSize,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: hash, onnx, ollama)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(inner, cfg.CacheSize), nil
	}
	return inner, nil
}

// embedEach embeds texts one at a time through embed.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
