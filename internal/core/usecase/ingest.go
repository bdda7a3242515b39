package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akarpov/ragindex/internal/core/domain"
	"github.com/akarpov/ragindex/internal/core/ports"
)

// IngestDocumentUseCase registers a document and hands it to the work queue.
// The call returns as soon as the document row exists in "pending"; the worker
// drives the rest.
type IngestDocumentUseCase struct {
	repo     ports.DocumentRepository
	parser   ports.Parser
	resolver ports.StrategyResolver
	queue    ports.MessageQueue
	archive  ports.ObjectStorage
}

// NewIngestDocumentUseCase wires the ingest flow. archive may be nil; original
// uploads are then not retained.
func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	parser ports.Parser,
	resolver ports.StrategyResolver,
	queue ports.MessageQueue,
	archive ports.ObjectStorage,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:     repo,
		parser:   parser,
		resolver: resolver,
		queue:    queue,
		archive:  archive,
	}
}

func (uc *IngestDocumentUseCase) Ingest(ctx context.Context, req ports.IngestRequest) (*domain.Document, error) {
	if strings.TrimSpace(req.CollectionID) == "" {
		return nil, domain.WrapError(domain.ErrValidation, "ingest document", errors.New("collection_id is required"))
	}
	if len(req.Content) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "ingest document", errors.New("content is required"))
	}

	strategy, err := uc.resolver.Resolve(ctx, req.Strategy, req.StrategyText)
	if err != nil {
		return nil, fmt.Errorf("resolve strategy: %w", err)
	}

	text, err := uc.parser.Parse(ctx, req.Content, req.MimeType)
	if err != nil {
		return nil, domain.WrapError(domain.ErrParse, "parse document", err)
	}

	id := req.DocumentID
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()

	doc := &domain.Document{
		ID:           id,
		CollectionID: req.CollectionID,
		Filename:     req.Filename,
		MimeType:     req.MimeType,
		Content:      text,
		Strategy:     strategy,
		Status:       domain.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	if uc.archive != nil {
		if err := uc.archive.Save(ctx, doc.ID, bytes.NewReader(req.Content)); err != nil {
			return nil, fmt.Errorf("archive upload: %w", err)
		}
	}

	if err := uc.queue.PublishProcessJob(ctx, ports.ProcessJob{DocumentID: doc.ID}); err != nil {
		return nil, fmt.Errorf("publish process job: %w", err)
	}

	return doc, nil
}

// Reprocess re-enters a completed or failed document with a new strategy. The
// previous chunk set is discarded during processing; the dedup cache keeps
// re-embedding cost down. A document currently processing rejects the request.
func (uc *IngestDocumentUseCase) Reprocess(
	ctx context.Context,
	documentID string,
	structured *domain.ChunkingStrategy,
	strategyText string,
) (*domain.Document, error) {
	strategy, err := uc.resolver.Resolve(ctx, structured, strategyText)
	if err != nil {
		return nil, fmt.Errorf("resolve strategy: %w", err)
	}

	moved, err := uc.repo.Transition(
		ctx,
		documentID,
		[]domain.DocumentStatus{domain.StatusPending, domain.StatusCompleted, domain.StatusFailed},
		domain.StatusPending,
		"", "",
	)
	if err != nil {
		return nil, fmt.Errorf("reset document for reprocess: %w", err)
	}
	if !moved {
		return nil, domain.WrapError(domain.ErrConflict, "reprocess document",
			fmt.Errorf("document %s is already processing", documentID))
	}

	if err := uc.repo.UpdateStrategy(ctx, documentID, strategy); err != nil {
		return nil, fmt.Errorf("update strategy: %w", err)
	}

	if err := uc.queue.PublishProcessJob(ctx, ports.ProcessJob{DocumentID: documentID, Reprocess: true}); err != nil {
		return nil, fmt.Errorf("publish reprocess job: %w", err)
	}

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	return doc, nil
}
