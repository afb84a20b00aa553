package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// OllamaOptions configures an OllamaEmbedder. Zero values take the defaults below.
type OllamaOptions struct {
	URL               string
	Model             string
	Dimensions        int
	Timeout           time.Duration
	RequestsPerSecond float64
	Concurrency       int
	BatchSize         int
	Client            *http.Client
}

const (
	defaultOllamaURL       = "http://localhost:11434"
	defaultOllamaModel     = "all-minilm"
	defaultOllamaTimeout   = 30 * time.Second
	defaultOllamaBatchSize = 32
)

// OllamaEmbedder calls the /api/embed endpoint of an Ollama server. Batches are split
// into chunks sent concurrently, bounded by Concurrency and paced by a token bucket.
type OllamaEmbedder struct {
	endpoint    string
	model       string
	dimensions  int
	client      *http.Client
	limiter     *rate.Limiter
	concurrency int
	batchSize   int
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// NewOllamaEmbedder returns an embedder for the server at opts.URL.
func NewOllamaEmbedder(opts OllamaOptions) (*OllamaEmbedder, error) {
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding: dimensions must be positive, got %d", opts.Dimensions)
	}
	if opts.URL == "" {
		opts.URL = defaultOllamaURL
	}
	if opts.Model == "" {
		opts.Model = defaultOllamaModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultOllamaTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultOllamaBatchSize
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &OllamaEmbedder{
		endpoint:    strings.TrimRight(opts.URL, "/") + "/api/embed",
		model:       opts.Model,
		dimensions:  opts.Dimensions,
		client:      client,
		limiter:     rate.NewLimiter(limit, opts.Concurrency),
		concurrency: opts.Concurrency,
		batchSize:   opts.BatchSize,
	}, nil
}

// Embed returns the embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in chunks of BatchSize. Results keep input order.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := e.request(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases idle connections.
func (e *OllamaEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

func (e *OllamaEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("ollama read response: %w", err)
	}
	var parsed ollamaEmbedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("ollama: status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("ollama decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, parsed.Error)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(parsed.Embeddings), len(texts))
	}
	for i, v := range parsed.Embeddings {
		if len(v) != e.dimensions {
			return nil, fmt.Errorf("ollama embedding %d has dimension %d, expected %d", i, len(v), e.dimensions)
		}
	}
	return parsed.Embeddings, nil
}
