package usecase

import (
	"context"
	"fmt"

	"github.com/akarpov/ragindex/internal/core/ports"
)

// DeleteDocumentUseCase removes a document and everything it owns: chunk rows
// (dedup entries cascade with them), vector points and the archived upload.
type DeleteDocumentUseCase struct {
	repo    ports.DocumentRepository
	chunks  ports.ChunkRepository
	index   ports.VectorIndex
	archive ports.ObjectStorage
}

func NewDeleteDocumentUseCase(
	repo ports.DocumentRepository,
	chunks ports.ChunkRepository,
	index ports.VectorIndex,
	archive ports.ObjectStorage,
) *DeleteDocumentUseCase {
	return &DeleteDocumentUseCase{
		repo:    repo,
		chunks:  chunks,
		index:   index,
		archive: archive,
	}
}

func (uc *DeleteDocumentUseCase) Delete(ctx context.Context, documentID string) error {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}
	if err := uc.index.DeleteByDocument(ctx, doc.CollectionID, doc.ID); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	if err := uc.chunks.DeleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := uc.repo.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if uc.archive != nil {
		if err := uc.archive.Remove(ctx, doc.ID); err != nil {
			return fmt.Errorf("remove archived upload: %w", err)
		}
	}
	return nil
}
