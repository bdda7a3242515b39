package ports

import (
	"context"
	"io"

	"github.com/akarpov/ragindex/internal/core/domain"
)

// IngestRequest carries everything needed to register a document. Strategy
// and StrategyText are mutually exclusive; StrategyText is resolved through
// the strategy resolver before the document is accepted.
type IngestRequest struct {
	DocumentID   string
	CollectionID string
	Filename     string
	MimeType     string
	Content      []byte
	Strategy     *domain.ChunkingStrategy
	StrategyText string
}

// DocumentIngestor is the inbound contract for registering and reprocessing
// documents. Both calls return immediately; completion is observed via
// DocumentReader.
type DocumentIngestor interface {
	Ingest(ctx context.Context, req IngestRequest) (*domain.Document, error)
	Reprocess(ctx context.Context, documentID string, strategy *domain.ChunkingStrategy, strategyText string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document
// processing, driven by the work queue.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentReader is the inbound read model for document state, chunk listings
// and archived originals. OpenOriginal's reader must be closed by the caller.
type DocumentReader interface {
	GetState(ctx context.Context, documentID string) (*domain.DocumentState, error)
	ListChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)
	OpenOriginal(ctx context.Context, documentID string) (*domain.Document, io.ReadCloser, error)
}

// SearchService answers vector, fulltext and hybrid queries.
type SearchService interface {
	Search(ctx context.Context, req domain.SearchRequest) ([]domain.SearchResult, error)
}

// DocumentRemover deletes a document together with its chunks and vectors.
type DocumentRemover interface {
	Delete(ctx context.Context, documentID string) error
}

// CollectionReader reports storage statistics for a logical collection.
type CollectionReader interface {
	GetStats(ctx context.Context, collectionID string) (*domain.CollectionStats, error)
}
