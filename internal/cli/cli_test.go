package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/vecstore/internal/models"
)

func newFakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/index":
			var req models.IndexRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Documents == nil {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(models.ErrorResponse{Detail: "documents is required"})
				return
			}
			n := len(*req.Documents)
			_ = json.NewEncoder(w).Encode(models.IndexResponse{OK: true, IndexedCount: n, TotalVectors: n})
		case "/query":
			var req models.QueryRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.TopK != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(models.ErrorResponse{Detail: "Index is not ready or is empty."})
				return
			}
			_ = json.NewEncoder(w).Encode(models.QueryResponse{
				OK:        true,
				Results:   []models.Document{{ID: "a", Content: *req.Query}},
				Distances: []float64{0.5},
			})
		case "/status":
			_ = json.NewEncoder(w).Encode(models.StatusResponse{OK: true, ModelName: "m", VectorCount: 3})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Index(t *testing.T) {
	c := NewClient(newFakeServer(t).URL+"/", time.Second)
	resp, err := c.Index(context.Background(), []models.DocumentInput{
		models.NewDocumentInput("a", "x", nil),
		models.NewDocumentInput("b", "y", nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.IndexedCount != 2 {
		t.Errorf("indexed_count: got %d", resp.IndexedCount)
	}
}

func TestClient_Query(t *testing.T) {
	c := NewClient(newFakeServer(t).URL, time.Second)
	resp, err := c.Query(context.Background(), "hello", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Content != "hello" {
		t.Errorf("results: %+v", resp.Results)
	}

	_, err = c.Query(context.Background(), "hello", 3)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusServiceUnavailable || !strings.Contains(apiErr.Error(), "not ready") {
		t.Errorf("api error: %v", apiErr)
	}
}

func TestClient_Status(t *testing.T) {
	c := NewClient(newFakeServer(t).URL, time.Second)
	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.ModelName != "m" || st.VectorCount != 3 {
		t.Errorf("status: %+v", st)
	}
}

func TestClient_Unreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	if _, err := c.Status(context.Background()); err == nil {
		t.Error("expected error for unreachable server")
	}
}

func TestWriteQueryResults_Text(t *testing.T) {
	resp := &models.QueryResponse{
		OK: true,
		Results: []models.Document{
			{ID: "doc-1", Content: strings.Repeat("x", 300), Metadata: map[string]interface{}{"source_path": "/in/a.txt"}},
		},
		Distances: []float64{0.25},
	}
	var buf bytes.Buffer
	if err := WriteQueryResults(&buf, "q", resp, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"1 results", "Distance: 0.2500", "ID: doc-1", "Source: /in/a.txt", "..."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteQueryResults_JSON(t *testing.T) {
	resp := &models.QueryResponse{OK: true, Results: []models.Document{{ID: "doc-1", Content: "c"}}, Distances: []float64{1}}
	var buf bytes.Buffer
	if err := WriteQueryResults(&buf, "q", resp, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.QueryResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded.Results) != 1 || decoded.Results[0].ID != "doc-1" {
		t.Errorf("decoded: %+v", decoded)
	}
}

func TestWriteStatus(t *testing.T) {
	n := int64(2048)
	st := &models.StatusResponse{ModelName: "m", IndexReady: true, VectorCount: 4, Dimension: 384, DiskUsageBytes: &n}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, st, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Vectors:    4") || !strings.Contains(out, "2.0 KiB") {
		t.Errorf("status output:\n%s", out)
	}
}

func TestWriteIndexResult(t *testing.T) {
	var buf bytes.Buffer
	WriteIndexResult(&buf, &models.IndexResponse{OK: true, IndexedCount: 2, TotalVectors: 5})
	if !strings.Contains(buf.String(), "Indexed 2 documents (total: 5)") {
		t.Errorf("got %q", buf.String())
	}
	buf.Reset()
	WriteIndexResult(&buf, &models.IndexResponse{OK: true, TotalVectors: 5, Message: "No new documents to index."})
	if !strings.Contains(buf.String(), "No new documents") {
		t.Errorf("got %q", buf.String())
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{0: "0 B", 1023: "1023 B", 1024: "1.0 KiB", 5 << 20: "5.0 MiB"}
	for in, want := range tests {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
