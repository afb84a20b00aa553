// Package cli provides the HTTP client and output formatting behind the vecstore commands.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/vecstore/internal/models"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Detail)
}

// Client talks to a running vecstore server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the server at baseURL (e.g. http://localhost:8000).
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Index submits one batch.
func (c *Client) Index(ctx context.Context, docs []models.DocumentInput) (*models.IndexResponse, error) {
	var out models.IndexResponse
	if err := c.do(ctx, http.MethodPost, "/index", models.IndexRequest{Documents: &docs}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Query runs a similarity query. topK 0 leaves the choice to the server.
func (c *Client) Query(ctx context.Context, text string, topK int) (*models.QueryResponse, error) {
	req := models.QueryRequest{Query: &text}
	if topK != 0 {
		req.TopK = &topK
	}
	var out models.QueryResponse
	if err := c.do(ctx, http.MethodPost, "/query", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches the server status.
func (c *Client) Status(ctx context.Context) (*models.StatusResponse, error) {
	var out models.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e models.ErrorResponse
		_ = json.Unmarshal(raw, &e)
		return &APIError{Status: resp.StatusCode, Detail: e.Detail}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
