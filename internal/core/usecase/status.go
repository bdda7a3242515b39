package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/akarpov/ragindex/internal/core/domain"
	"github.com/akarpov/ragindex/internal/core/ports"
)

// DocumentStatusUseCase is the read model for document state, progress, chunk
// listings and archived originals.
type DocumentStatusUseCase struct {
	repo    ports.DocumentRepository
	chunks  ports.ChunkRepository
	archive ports.ObjectStorage
}

// NewDocumentStatusUseCase wires the document read model. archive may be nil
// when upload retention is disabled; OpenOriginal then rejects all requests.
func NewDocumentStatusUseCase(repo ports.DocumentRepository, chunks ports.ChunkRepository, archive ports.ObjectStorage) *DocumentStatusUseCase {
	return &DocumentStatusUseCase{repo: repo, chunks: chunks, archive: archive}
}

func (uc *DocumentStatusUseCase) GetState(ctx context.Context, documentID string) (*domain.DocumentState, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	state := doc.State()
	return &state, nil
}

// ListChunks returns a document's chunks in sequence order. The document is
// looked up first so an unknown id maps to not-found rather than an empty list.
func (uc *DocumentStatusUseCase) ListChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	if _, err := uc.repo.GetByID(ctx, documentID); err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	chunks, err := uc.chunks.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return chunks, nil
}

// OpenOriginal streams the archived upload for a document. The caller owns the
// returned reader.
func (uc *DocumentStatusUseCase) OpenOriginal(ctx context.Context, documentID string) (*domain.Document, io.ReadCloser, error) {
	if uc.archive == nil {
		return nil, nil, domain.WrapError(domain.ErrValidation, "open original",
			errors.New("upload archive is disabled"))
	}
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch document: %w", err)
	}
	reader, err := uc.archive.Open(ctx, doc.ID)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, domain.WrapError(domain.ErrDocumentNotFound, "open original",
				fmt.Errorf("no archived upload for document %s", doc.ID))
		}
		return nil, nil, fmt.Errorf("open archived upload: %w", err)
	}
	return doc, reader, nil
}

// CollectionStatsUseCase reports how many vectors a logical collection holds.
type CollectionStatsUseCase struct {
	index ports.VectorIndex
}

func NewCollectionStatsUseCase(index ports.VectorIndex) *CollectionStatsUseCase {
	return &CollectionStatsUseCase{index: index}
}

func (uc *CollectionStatsUseCase) GetStats(ctx context.Context, collectionID string) (*domain.CollectionStats, error) {
	if strings.TrimSpace(collectionID) == "" {
		return nil, domain.WrapError(domain.ErrValidation, "collection stats",
			errors.New("collection id is required"))
	}
	points, err := uc.index.CountByCollection(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("count collection points: %w", err)
	}
	return &domain.CollectionStats{CollectionID: collectionID, Points: points}, nil
}
