package ports

import (
	"context"
	"io"
	"time"

	"github.com/akarpov/ragindex/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	// Transition moves a document from one of the given states to the target
	// state. It reports false when the document exists but is not in an
	// allowed state, which callers surface as a concurrency conflict.
	Transition(ctx context.Context, id string, from []domain.DocumentStatus, to domain.DocumentStatus, errMessage, errCode string) (bool, error)
	UpdateStrategy(ctx context.Context, id string, strategy domain.ChunkingStrategy) error
	UpdateProgress(ctx context.Context, id string, total, done int) error
	Delete(ctx context.Context, id string) error
}

// ChunkRepository persists chunk records. Vector payloads live in the vector
// index; rows here are the authoritative chunk identities.
type ChunkRepository interface {
	InsertBatch(ctx context.Context, chunks []domain.Chunk) error
	ListByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

// DedupStore is the persistent hash -> chunk lookup, scoped per embedding
// model. Record is an insert-if-absent: the first recorded chunk wins.
type DedupStore interface {
	Lookup(ctx context.Context, contentHash, embeddingModel string) (chunkID string, ok bool, err error)
	Record(ctx context.Context, contentHash, embeddingModel, chunkID string) error
}

// DedupTicket coordinates concurrent embedding of identical content. Exactly
// one caller per (hash, model) key holds the leader ticket; followers wait for
// the leader's outcome instead of issuing a duplicate provider call. The
// leader must resolve as soon as its vector exists, before any persistence,
// so a holder of one key never blocks behind a holder of another.
type DedupTicket interface {
	Leader() bool
	// Wait blocks until the leader resolves and returns the vector that now
	// represents the content. Follower-only.
	Wait(ctx context.Context) ([]float32, error)
	// Resolve publishes the leader's outcome to all waiting followers.
	// Leader-only.
	Resolve(vector []float32, err error)
}

// DedupCache combines the persistent store with in-flight coordination.
type DedupCache interface {
	Lookup(ctx context.Context, contentHash, embeddingModel string) (string, bool, error)
	Acquire(contentHash, embeddingModel string) DedupTicket
	Record(ctx context.Context, contentHash, embeddingModel, chunkID string) error
}

// ProcessJob is the unit of work carried by the queue. EnqueuedAt is stamped
// by the publisher; consumers use it to measure queue lag.
type ProcessJob struct {
	DocumentID string    `json:"document_id"`
	Reprocess  bool      `json:"reprocess"`
	EnqueuedAt time.Time `json:"enqueued_at,omitempty"`
}

// MessageQueue publishes and consumes document processing jobs.
type MessageQueue interface {
	PublishProcessJob(ctx context.Context, job ProcessJob) error
	SubscribeProcessJobs(ctx context.Context, handler func(context.Context, ProcessJob) error) error
}

// ObjectStorage archives original uploads keyed by document id, so the source
// bytes outlive any normalization applied during parsing.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// Parser turns raw bytes into normalized text. Format internals live behind
// this boundary.
type Parser interface {
	Parse(ctx context.Context, raw []byte, mimeType string) (string, error)
}

// Embedder maps texts to fixed-length vectors. Model names embeddings;
// Dimensions is the expected vector length used to detect provider/model
// mismatches.
type Embedder interface {
	Model() string
	Dimensions() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbedOutcome is the per-text result of a pipeline run: a vector or a
// terminal error, never both.
type EmbedOutcome struct {
	Vector []float32
	Err    error
}

// EmbeddingPipeline batches texts, applies retry/backoff and bounded
// concurrency, and returns one outcome per input text in input order.
// The progress callback reports the cumulative number of finished texts.
type EmbeddingPipeline interface {
	Model() string
	EmbedAll(ctx context.Context, texts []string, progress func(done int)) []EmbedOutcome
}

// CompletionProvider is a language-model collaborator producing structured
// JSON text. Output is untrusted and always schema-validated by callers.
type CompletionProvider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// StrategyResolver validates a structured strategy or interprets free-form
// text through the completion providers.
type StrategyResolver interface {
	Resolve(ctx context.Context, structured *domain.ChunkingStrategy, text string) (domain.ChunkingStrategy, error)
}

// Chunker splits normalized text into ordered chunk candidates according to a
// strategy. Deterministic for identical input and strategy.
type Chunker interface {
	Split(ctx context.Context, text string, strategy domain.ChunkingStrategy) ([]domain.ChunkCandidate, error)
}

// VectorIndex is the vector-capable storage backend. Collections provide
// per-tenant scoping; filters are applied inside the backend before ranking.
type VectorIndex interface {
	IndexChunks(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	DeleteByDocument(ctx context.Context, collectionID, documentID string) error
	FetchVectors(ctx context.Context, collectionID string, chunkIDs []string) (map[string][]float32, error)
	Search(ctx context.Context, collections []string, queryVector []float32, limit int, threshold float64, filter domain.SearchFilter) ([]domain.ScoredChunk, error)
	SearchLexical(ctx context.Context, collections []string, queryText string, limit int, filter domain.SearchFilter) ([]domain.ScoredChunk, error)
	CountByCollection(ctx context.Context, collectionID string) (int, error)
}
