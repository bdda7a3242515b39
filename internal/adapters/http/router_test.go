package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/akarpov/ragindex/internal/core/domain"
	"github.com/akarpov/ragindex/internal/core/ports"
)

type fakeIngestor struct {
	lastReq     ports.IngestRequest
	ingestErr   error
	reprocessID string
}

func (f *fakeIngestor) Ingest(_ context.Context, req ports.IngestRequest) (*domain.Document, error) {
	f.lastReq = req
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	return &domain.Document{ID: "doc-1", CollectionID: req.CollectionID, Status: domain.StatusPending}, nil
}

func (f *fakeIngestor) Reprocess(_ context.Context, documentID string, _ *domain.ChunkingStrategy, _ string) (*domain.Document, error) {
	f.reprocessID = documentID
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	return &domain.Document{ID: documentID, Status: domain.StatusPending}, nil
}

type fakeReader struct {
	state    *domain.DocumentState
	chunks   []domain.Chunk
	doc      *domain.Document
	original string
	err      error
}

func (f *fakeReader) GetState(context.Context, string) (*domain.DocumentState, error) {
	return f.state, f.err
}

func (f *fakeReader) ListChunks(context.Context, string) ([]domain.Chunk, error) {
	return f.chunks, f.err
}

func (f *fakeReader) OpenOriginal(context.Context, string) (*domain.Document, io.ReadCloser, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.doc, io.NopCloser(strings.NewReader(f.original)), nil
}

type fakeSearcher struct {
	results []domain.SearchResult
	err     error
	lastReq domain.SearchRequest
}

func (f *fakeSearcher) Search(_ context.Context, req domain.SearchRequest) ([]domain.SearchResult, error) {
	f.lastReq = req
	return f.results, f.err
}

type fakeRemover struct {
	deletedID string
	err       error
}

func (f *fakeRemover) Delete(_ context.Context, id string) error {
	f.deletedID = id
	return f.err
}

type fakeStats struct {
	stats  *domain.CollectionStats
	err    error
	lastID string
}

func (f *fakeStats) GetStats(_ context.Context, collectionID string) (*domain.CollectionStats, error) {
	f.lastID = collectionID
	return f.stats, f.err
}

func newTestRouter(ingestor *fakeIngestor, reader *fakeReader, searcher *fakeSearcher, remover *fakeRemover) http.Handler {
	return newTestRouterWithStats(ingestor, reader, searcher, remover, nil)
}

func newTestRouterWithStats(ingestor *fakeIngestor, reader *fakeReader, searcher *fakeSearcher, remover *fakeRemover, stats *fakeStats) http.Handler {
	if ingestor == nil {
		ingestor = &fakeIngestor{}
	}
	if reader == nil {
		reader = &fakeReader{}
	}
	if searcher == nil {
		searcher = &fakeSearcher{}
	}
	if remover == nil {
		remover = &fakeRemover{}
	}
	if stats == nil {
		stats = &fakeStats{}
	}
	return NewRouter(ingestor, reader, searcher, remover, stats, nil, "api").Handler()
}

func TestIngestAccepted(t *testing.T) {
	ingestor := &fakeIngestor{}
	handler := newTestRouter(ingestor, nil, nil, nil)

	body := `{"collection_id": "col-1", "filename": "notes.md", "mime_type": "text/markdown", "content": "hello", "strategy_text": "split by paragraphs"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if ingestor.lastReq.CollectionID != "col-1" {
		t.Fatalf("collection not forwarded: %+v", ingestor.lastReq)
	}
	if ingestor.lastReq.StrategyText != "split by paragraphs" {
		t.Fatalf("strategy text not forwarded: %+v", ingestor.lastReq)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("request id header missing")
	}
}

func TestIngestValidationMapsTo400(t *testing.T) {
	ingestor := &fakeIngestor{
		ingestErr: domain.WrapError(domain.ErrValidation, "ingest", errors.New("collection_id is required")),
	}
	handler := newTestRouter(ingestor, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", strings.NewReader(`{"content": "x"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["error_code"] != "validation_error" {
		t.Fatalf("expected machine error code, got %q", payload["error_code"])
	}
}

func TestReprocessConflictMapsTo409(t *testing.T) {
	ingestor := &fakeIngestor{
		ingestErr: domain.WrapError(domain.ErrConflict, "reprocess", errors.New("document doc-1 is already processing")),
	}
	handler := newTestRouter(ingestor, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/doc-1/reprocess", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if ingestor.reprocessID != "doc-1" {
		t.Fatalf("path id not forwarded, got %q", ingestor.reprocessID)
	}
}

func TestGetDocumentStateNotFound(t *testing.T) {
	reader := &fakeReader{
		err: domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New("document not found: missing")),
	}
	handler := newTestRouter(nil, reader, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetDocumentStateIncludesProgress(t *testing.T) {
	reader := &fakeReader{
		state: &domain.DocumentState{
			ID:       "doc-1",
			Status:   domain.StatusProcessing,
			Progress: domain.Progress{ChunksTotal: 10, ChunksDone: 4},
		},
	}
	handler := newTestRouter(nil, reader, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var state domain.DocumentState
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if state.Progress.ChunksDone != 4 {
		t.Fatalf("progress not serialized: %+v", state)
	}
}

func TestListDocumentChunks(t *testing.T) {
	reader := &fakeReader{chunks: []domain.Chunk{
		{ID: "chunk-1", DocumentID: "doc-1", SequenceIndex: 0, Content: "first"},
		{ID: "chunk-2", DocumentID: "doc-1", SequenceIndex: 1, Content: "second"},
	}}
	handler := newTestRouter(nil, reader, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/chunks", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Chunks []domain.Chunk `json:"chunks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(payload.Chunks) != 2 || payload.Chunks[1].ID != "chunk-2" {
		t.Fatalf("unexpected chunks: %+v", payload.Chunks)
	}
}

func TestListDocumentChunksEmptyIsArray(t *testing.T) {
	handler := newTestRouter(nil, &fakeReader{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/chunks", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"chunks":[]`) {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestDownloadDocumentStreamsOriginal(t *testing.T) {
	reader := &fakeReader{
		doc:      &domain.Document{ID: "doc-1", Filename: "notes.md", MimeType: "text/markdown"},
		original: "# original upload",
	}
	handler := newTestRouter(nil, reader, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/download", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "text/markdown" {
		t.Fatalf("mime type not forwarded: %q", rec.Header().Get("Content-Type"))
	}
	if rec.Header().Get("Content-Disposition") != `attachment; filename="notes.md"` {
		t.Fatalf("unexpected disposition: %q", rec.Header().Get("Content-Disposition"))
	}
	if rec.Body.String() != "# original upload" {
		t.Fatalf("body not streamed: %q", rec.Body.String())
	}
}

func TestDownloadDocumentDisabledArchiveMapsTo400(t *testing.T) {
	reader := &fakeReader{
		err: domain.WrapError(domain.ErrValidation, "open original", errors.New("upload archive is disabled")),
	}
	handler := newTestRouter(nil, reader, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/download", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSearchRequiresQueryText(t *testing.T) {
	handler := newTestRouter(nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"collections": ["col-1"]}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSearchReturnsResults(t *testing.T) {
	vr, fr := 1, 2
	searcher := &fakeSearcher{
		results: []domain.SearchResult{
			{ChunkID: "chunk-1", FusedScore: 0.016, VectorRank: &vr, FulltextRank: &fr},
		},
	}
	handler := newTestRouter(nil, nil, searcher, nil)

	body := `{"query_text": "how to install", "collections": ["col-1"], "search_type": "hybrid"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if searcher.lastReq.Type != domain.SearchHybrid {
		t.Fatalf("search type not forwarded: %+v", searcher.lastReq)
	}
	var payload struct {
		Results []domain.SearchResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(payload.Results) != 1 || payload.Results[0].ChunkID != "chunk-1" {
		t.Fatalf("unexpected results: %+v", payload.Results)
	}
	if payload.Results[0].VectorRank == nil || *payload.Results[0].VectorRank != 1 {
		t.Fatalf("vector rank lost in serialization: %+v", payload.Results[0])
	}
}

func TestSearchProviderOutageMapsTo503(t *testing.T) {
	searcher := &fakeSearcher{
		err: domain.WrapError(domain.ErrProviderTransient, "embed query", errors.New("connection refused")),
	}
	handler := newTestRouter(nil, nil, searcher, nil)

	body := `{"query_text": "anything", "collections": ["col-1"]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestCollectionStats(t *testing.T) {
	stats := &fakeStats{stats: &domain.CollectionStats{CollectionID: "col-1", Points: 42}}
	handler := newTestRouterWithStats(nil, nil, nil, nil, stats)

	req := httptest.NewRequest(http.MethodGet, "/v1/collections/col-1/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if stats.lastID != "col-1" {
		t.Fatalf("collection id not forwarded, got %q", stats.lastID)
	}
	var payload domain.CollectionStats
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload.Points != 42 || payload.CollectionID != "col-1" {
		t.Fatalf("unexpected stats payload: %+v", payload)
	}
}

func TestDeleteDocument(t *testing.T) {
	remover := &fakeRemover{}
	handler := newTestRouter(nil, nil, nil, remover)

	req := httptest.NewRequest(http.MethodDelete, "/v1/documents/doc-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if remover.deletedID != "doc-1" {
		t.Fatalf("expected delete of doc-1, got %q", remover.deletedID)
	}
}
