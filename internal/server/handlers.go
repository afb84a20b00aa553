package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/vecstore/internal/catalog"
	"github.com/hyperjump/vecstore/internal/docstore"
	"github.com/hyperjump/vecstore/internal/models"
)

const (
	msgNotLoaded = "Model not loaded yet."
	msgNotReady  = "Index is not ready or is empty."

	maxBodyBytes = 64 << 20
)

// ready returns the published catalog, or writes 503 and returns nil.
func (s *Server) ready(w http.ResponseWriter) *catalog.Catalog {
	c := s.catalog.Load()
	if c == nil {
		s.respondError(w, http.StatusServiceUnavailable, msgNotLoaded)
	}
	return c
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	c := s.ready(w)
	if c == nil {
		return
	}
	var req models.IndexRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Documents == nil {
		s.respondError(w, http.StatusBadRequest, "documents is required")
		return
	}
	s.logger.Debug("index request", zap.Int("documents", len(*req.Documents)))
	res, err := c.AddDocuments(r.Context(), *req.Documents)
	if err != nil {
		s.respondCatalogError(w, "indexing failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.IndexResponse{
		OK:           true,
		IndexedCount: res.IndexedCount,
		TotalVectors: res.TotalCount,
		Message:      res.Message,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	c := s.ready(w)
	if c == nil {
		return
	}
	var req models.QueryRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Query == nil {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	topK := 0
	if req.TopK != nil {
		if *req.TopK < 1 {
			s.respondError(w, http.StatusBadRequest, "top_k must be at least 1")
			return
		}
		topK = *req.TopK
	}
	s.logger.Debug("query request", zap.String("query", *req.Query), zap.Int("top_k", topK))
	hits, err := c.Query(r.Context(), *req.Query, topK)
	if err != nil {
		s.respondCatalogError(w, "query failed", err)
		return
	}
	resp := models.QueryResponse{
		OK:        true,
		Results:   make([]models.Document, len(hits)),
		Distances: make([]float64, len(hits)),
	}
	for i, h := range hits {
		resp.Results[i] = h.Document
		resp.Distances[i] = h.Distance
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := models.StatusResponse{OK: true, ModelName: s.modelName, Dimension: s.dimensions}
	if c := s.catalog.Load(); c != nil {
		st := c.Status()
		resp.ModelName = st.ModelName
		resp.IndexReady = st.Ready
		resp.IndexedDocuments = st.TotalCount
		resp.VectorCount = st.TotalCount
		resp.Dimension = st.Dimensions
		resp.Storage = c.Storage().Location()
		if n, err := c.Storage().DiskUsage(); err == nil {
			resp.DiskUsageBytes = &n
		} else {
			s.logger.Warn("status: disk usage failed", zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	c := s.ready(w)
	if c == nil {
		return
	}
	pos, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "position must be an integer")
		return
	}
	doc, err := c.Document(pos)
	if errors.Is(err, docstore.ErrOutOfRange) {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.respondCatalogError(w, "get document failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondCatalogError(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotReady):
		s.respondError(w, http.StatusServiceUnavailable, msgNotReady)
	case catalog.IsClientError(err):
		s.logger.Debug(what, zap.Error(err))
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(what, zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, models.ErrorResponse{OK: false, Detail: message})
}
