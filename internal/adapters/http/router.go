package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/akarpov/ragindex/internal/core/domain"
	"github.com/akarpov/ragindex/internal/core/ports"
	"github.com/akarpov/ragindex/internal/observability/metrics"
)

type Router struct {
	ingestor ports.DocumentIngestor
	reader   ports.DocumentReader
	searcher ports.SearchService
	remover  ports.DocumentRemover
	stats    ports.CollectionReader
	metrics  *metrics.HTTPServerMetrics
	service  string
}

func NewRouter(
	ingestor ports.DocumentIngestor,
	reader ports.DocumentReader,
	searcher ports.SearchService,
	remover ports.DocumentRemover,
	stats ports.CollectionReader,
	m *metrics.HTTPServerMetrics,
	service string,
) *Router {
	return &Router{
		ingestor: ingestor,
		reader:   reader,
		searcher: searcher,
		remover:  remover,
		stats:    stats,
		metrics:  m,
		service:  service,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/documents", rt.ingestDocument)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocumentState)
	mux.HandleFunc("GET /v1/documents/{id}/chunks", rt.listDocumentChunks)
	mux.HandleFunc("GET /v1/documents/{id}/download", rt.downloadDocument)
	mux.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	mux.HandleFunc("POST /v1/documents/{id}/reprocess", rt.reprocessDocument)
	mux.HandleFunc("POST /v1/search", rt.search)
	mux.HandleFunc("GET /v1/collections/{id}/stats", rt.collectionStats)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
		return requestIDMiddleware(accessLogMiddleware(rt.metrics.Middleware(rt.service, mux)))
	}
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ingestPayload struct {
	DocumentID   string                   `json:"document_id"`
	CollectionID string                   `json:"collection_id"`
	Filename     string                   `json:"filename"`
	MimeType     string                   `json:"mime_type"`
	Content      string                   `json:"content"`
	Strategy     *domain.ChunkingStrategy `json:"strategy,omitempty"`
	StrategyText string                   `json:"strategy_text,omitempty"`
}

func (rt *Router) ingestDocument(w http.ResponseWriter, r *http.Request) {
	var payload ingestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	doc, err := rt.ingestor.Ingest(r.Context(), ports.IngestRequest{
		DocumentID:   payload.DocumentID,
		CollectionID: payload.CollectionID,
		Filename:     payload.Filename,
		MimeType:     payload.MimeType,
		Content:      []byte(payload.Content),
		Strategy:     payload.Strategy,
		StrategyText: payload.StrategyText,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordIngest(rt.service, "ingest")
	}
	writeJSON(w, http.StatusAccepted, doc)
}

type reprocessPayload struct {
	Strategy     *domain.ChunkingStrategy `json:"strategy,omitempty"`
	StrategyText string                   `json:"strategy_text,omitempty"`
}

func (rt *Router) reprocessDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var payload reprocessPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	doc, err := rt.ingestor.Reprocess(r.Context(), id, payload.Strategy, payload.StrategyText)
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordIngest(rt.service, "reprocess")
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentState(w http.ResponseWriter, r *http.Request) {
	state, err := rt.reader.GetState(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (rt *Router) listDocumentChunks(w http.ResponseWriter, r *http.Request) {
	chunks, err := rt.reader.ListChunks(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if chunks == nil {
		chunks = []domain.Chunk{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks})
}

func (rt *Router) downloadDocument(w http.ResponseWriter, r *http.Request) {
	doc, reader, err := rt.reader.OpenOriginal(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer reader.Close()

	contentType := doc.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if doc.Filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	}
	_, _ = io.Copy(w, reader)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := rt.remover.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	var req domain.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.QueryText) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query_text is required"})
		return
	}

	start := time.Now()
	results, err := rt.searcher.Search(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		searchType := string(req.Type)
		if searchType == "" {
			searchType = string(domain.SearchHybrid)
		}
		rt.metrics.RecordSearch(rt.service, searchType, len(results), time.Since(start))
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (rt *Router) collectionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.stats.GetStats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
