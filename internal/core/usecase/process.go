package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/akarpov/ragindex/internal/core/domain"
	"github.com/akarpov/ragindex/internal/core/ports"
)

// ProcessDocumentUseCase owns the per-document state machine:
// pending -> processing -> {completed | failed}. Within processing it runs
// split -> dedup-check -> embed -> persist in order, keeping the progress
// counter observable along the way.
type ProcessDocumentUseCase struct {
	repo     ports.DocumentRepository
	chunks   ports.ChunkRepository
	chunker  ports.Chunker
	dedup    ports.DedupCache
	pipeline ports.EmbeddingPipeline
	index    ports.VectorIndex
	log      *slog.Logger
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	chunks ports.ChunkRepository,
	chunker ports.Chunker,
	dedup ports.DedupCache,
	pipeline ports.EmbeddingPipeline,
	index ports.VectorIndex,
	log *slog.Logger,
) *ProcessDocumentUseCase {
	if log == nil {
		log = slog.Default()
	}
	return &ProcessDocumentUseCase{
		repo:     repo,
		chunks:   chunks,
		chunker:  chunker,
		dedup:    dedup,
		pipeline: pipeline,
		index:    index,
		log:      log,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	moved, err := uc.repo.Transition(
		ctx,
		documentID,
		[]domain.DocumentStatus{domain.StatusPending},
		domain.StatusProcessing,
		"", "",
	)
	if err != nil {
		return fmt.Errorf("enter processing: %w", err)
	}
	if !moved {
		// Stale or duplicate job; another worker owns the document.
		uc.log.Warn("process_skip_not_pending", "document_id", documentID)
		return nil
	}

	start := time.Now()
	if err := uc.run(ctx, documentID); err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %w", err, failErr)
		}
		uc.log.Error("process_failed",
			"document_id", documentID,
			"error", err,
			"error_code", domain.ErrorCode(err),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}

	uc.log.Info("process_completed",
		"document_id", documentID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (uc *ProcessDocumentUseCase) run(ctx context.Context, documentID string) error {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}

	candidates, err := uc.chunker.Split(ctx, doc.Content, doc.Strategy)
	if err != nil {
		return fmt.Errorf("split document: %w", err)
	}

	// Whitespace-only documents legitimately produce zero chunks.
	if len(candidates) == 0 {
		return uc.finishEmpty(ctx, doc)
	}

	if err := uc.repo.UpdateProgress(ctx, doc.ID, len(candidates), 0); err != nil {
		return fmt.Errorf("init progress: %w", err)
	}

	plan := uc.buildChunks(doc, candidates)
	// Leader tickets must always be resolved, or concurrent workers waiting
	// on the same content hang until their context expires. The normal path
	// resolves them right after embedding; this covers earlier exits.
	defer plan.releaseLeaders(errors.New("processing aborted"))

	if err := uc.resolveVectors(ctx, doc, plan); err != nil {
		return err
	}

	// Cancellation leaves in-flight provider work to finish and discards its
	// results rather than persisting into a cancelled document.
	if cancelled, err := uc.discardIfCancelled(ctx, doc.ID); err != nil || cancelled {
		return err
	}

	if err := uc.replaceChunkSet(ctx, doc, plan); err != nil {
		return err
	}

	uc.recordDedup(ctx, plan)

	succeeded := plan.successCount()
	if err := uc.repo.UpdateProgress(ctx, doc.ID, len(plan.chunks), succeeded); err != nil {
		return fmt.Errorf("final progress: %w", err)
	}

	if firstErr := plan.firstError(); firstErr != nil {
		// Persisted chunks stay queryable; the document as a whole failed.
		return fmt.Errorf("embed %d of %d chunks failed: %w", len(plan.chunks)-succeeded, len(plan.chunks), firstErr)
	}

	if _, err := uc.repo.Transition(
		ctx, doc.ID,
		[]domain.DocumentStatus{domain.StatusProcessing},
		domain.StatusCompleted,
		"", "",
	); err != nil {
		return fmt.Errorf("set status=completed: %w", err)
	}
	return nil
}

// chunkPlan tracks every derived chunk through dedup and embedding. Exactly
// one of vector/err is set per chunk once resolveVectors returns.
type chunkPlan struct {
	chunks  []domain.Chunk
	vectors [][]float32
	errs    []error

	// aliasOf maps a chunk to an earlier in-document chunk with identical
	// content; it shares that chunk's vector instead of re-embedding.
	aliasOf []int

	leaders map[int]ports.DedupTicket
}

func (p *chunkPlan) successCount() int {
	n := 0
	for i := range p.chunks {
		if p.errs[i] == nil && p.vectors[i] != nil {
			n++
		}
	}
	return n
}

func (p *chunkPlan) releaseLeaders(reason error) {
	for i, ticket := range p.leaders {
		ticket.Resolve(nil, reason)
		delete(p.leaders, i)
	}
}

func (p *chunkPlan) firstError() error {
	for _, err := range p.errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (uc *ProcessDocumentUseCase) buildChunks(doc *domain.Document, candidates []domain.ChunkCandidate) *chunkPlan {
	now := time.Now().UTC()
	model := uc.pipeline.Model()

	plan := &chunkPlan{
		chunks:  make([]domain.Chunk, len(candidates)),
		vectors: make([][]float32, len(candidates)),
		errs:    make([]error, len(candidates)),
		aliasOf: make([]int, len(candidates)),
		leaders: make(map[int]ports.DedupTicket),
	}

	ids := make([]string, len(candidates))
	for i := range candidates {
		ids[i] = uuid.NewString()
	}

	for i, cand := range candidates {
		parentID := ""
		if cand.ParentIndex >= 0 && cand.ParentIndex < len(ids) {
			parentID = ids[cand.ParentIndex]
		}
		plan.chunks[i] = domain.Chunk{
			ID:             ids[i],
			DocumentID:     doc.ID,
			CollectionID:   doc.CollectionID,
			DocumentType:   doc.MimeType,
			SequenceIndex:  i,
			Content:        cand.Content,
			ContentHash:    domain.HashContent(cand.Content),
			EmbeddingModel: model,
			Metadata:       cand.Metadata,
			ParentChunkID:  parentID,
			CreatedAt:      now,
		}
		plan.aliasOf[i] = -1
	}
	return plan
}

// resolveVectors obtains a vector (or terminal error) for every chunk: reuse
// for dedup hits and in-document duplicates, provider calls for the rest.
func (uc *ProcessDocumentUseCase) resolveVectors(ctx context.Context, doc *domain.Document, plan *chunkPlan) error {
	model := uc.pipeline.Model()

	type hit struct {
		chunkIdx int
		sourceID string
	}
	var (
		hits      []hit
		toEmbed   []int
		followers = make(map[int]ports.DedupTicket)
		seenLocal = make(map[string]int)
	)

	for i := range plan.chunks {
		key := plan.chunks[i].ContentHash
		if prev, ok := seenLocal[key]; ok {
			plan.aliasOf[i] = prev
			continue
		}
		seenLocal[key] = i

		sourceID, ok, err := uc.dedup.Lookup(ctx, key, model)
		if err != nil {
			return fmt.Errorf("dedup lookup: %w", err)
		}
		if ok {
			hits = append(hits, hit{chunkIdx: i, sourceID: sourceID})
			continue
		}

		ticket := uc.dedup.Acquire(key, model)
		if ticket.Leader() {
			plan.leaders[i] = ticket
			toEmbed = append(toEmbed, i)
			continue
		}
		followers[i] = ticket
	}

	uc.log.Info("dedup_classified",
		"document_id", doc.ID,
		"chunks", len(plan.chunks),
		"hits", len(hits),
		"misses", len(toEmbed),
		"followers", len(followers),
	)

	// Provider calls for genuine misses, batched and bounded by the pipeline.
	// Leader tickets resolve the moment their vector exists, before any
	// persistence: two documents holding crossed leaderships would otherwise
	// wait on each other forever.
	if len(toEmbed) > 0 {
		texts := make([]string, len(toEmbed))
		for j, i := range toEmbed {
			texts[j] = plan.chunks[i].Content
		}
		hitCount := len(hits)
		outcomes := uc.pipeline.EmbedAll(ctx, texts, func(done int) {
			_ = uc.repo.UpdateProgress(ctx, doc.ID, len(plan.chunks), hitCount+done)
		})
		for j, i := range toEmbed {
			plan.vectors[i] = outcomes[j].Vector
			plan.errs[i] = outcomes[j].Err
			if ticket, ok := plan.leaders[i]; ok {
				ticket.Resolve(outcomes[j].Vector, outcomes[j].Err)
				delete(plan.leaders, i)
			}
		}
	}

	// Reuse vectors for dedup hits without touching the provider.
	if len(hits) > 0 {
		sourceIDs := make([]string, 0, len(hits))
		for _, h := range hits {
			sourceIDs = append(sourceIDs, h.sourceID)
		}
		fetched, err := uc.index.FetchVectors(ctx, doc.CollectionID, sourceIDs)
		if err != nil {
			return fmt.Errorf("fetch dedup vectors: %w", err)
		}
		for _, h := range hits {
			vec, ok := fetched[h.sourceID]
			if !ok {
				// Dangling dedup entry; fall back to a provider call for just
				// this chunk.
				outcomes := uc.pipeline.EmbedAll(ctx, []string{plan.chunks[h.chunkIdx].Content}, nil)
				plan.vectors[h.chunkIdx] = outcomes[0].Vector
				plan.errs[h.chunkIdx] = outcomes[0].Err
				continue
			}
			plan.vectors[h.chunkIdx] = vec
		}
	}

	// Followers reuse the concurrent leader's vector straight from the ticket.
	for i, ticket := range followers {
		vec, err := ticket.Wait(ctx)
		if err != nil {
			plan.errs[i] = err
			continue
		}
		plan.vectors[i] = vec
	}

	// In-document duplicates share the vector of their first occurrence.
	for i, src := range plan.aliasOf {
		if src < 0 {
			continue
		}
		plan.vectors[i] = plan.vectors[src]
		plan.errs[i] = plan.errs[src]
	}

	return nil
}

// replaceChunkSet atomically swaps the document's chunk set: the previous
// chunks (and their vectors) are discarded only after the new vectors exist,
// so dedup lookups against the old set stayed valid throughout.
func (uc *ProcessDocumentUseCase) replaceChunkSet(ctx context.Context, doc *domain.Document, plan *chunkPlan) error {
	if err := uc.chunks.DeleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete previous chunks: %w", err)
	}
	if err := uc.index.DeleteByDocument(ctx, doc.CollectionID, doc.ID); err != nil {
		return fmt.Errorf("delete previous vectors: %w", err)
	}

	persist := make([]domain.Chunk, 0, len(plan.chunks))
	vectors := make([][]float32, 0, len(plan.chunks))
	for i := range plan.chunks {
		if plan.errs[i] != nil || plan.vectors[i] == nil {
			continue
		}
		persist = append(persist, plan.chunks[i])
		vectors = append(vectors, plan.vectors[i])
	}
	if len(persist) == 0 {
		return nil
	}

	if err := uc.chunks.InsertBatch(ctx, persist); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	if err := uc.index.IndexChunks(ctx, persist, vectors); err != nil {
		return fmt.Errorf("index chunk vectors: %w", err)
	}
	return nil
}

// recordDedup publishes successful embeddings to the dedup store.
// Insert-if-absent keeps the first recorded chunk as owner.
func (uc *ProcessDocumentUseCase) recordDedup(ctx context.Context, plan *chunkPlan) {
	model := uc.pipeline.Model()
	for i := range plan.chunks {
		if plan.errs[i] != nil || plan.vectors[i] == nil {
			continue
		}
		if err := uc.dedup.Record(ctx, plan.chunks[i].ContentHash, model, plan.chunks[i].ID); err != nil {
			uc.log.Warn("dedup_record_failed", "chunk_id", plan.chunks[i].ID, "error", err)
		}
	}
}

func (uc *ProcessDocumentUseCase) finishEmpty(ctx context.Context, doc *domain.Document) error {
	if err := uc.chunks.DeleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete previous chunks: %w", err)
	}
	if err := uc.index.DeleteByDocument(ctx, doc.CollectionID, doc.ID); err != nil {
		return fmt.Errorf("delete previous vectors: %w", err)
	}
	if err := uc.repo.UpdateProgress(ctx, doc.ID, 0, 0); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	_, err := uc.repo.Transition(
		ctx, doc.ID,
		[]domain.DocumentStatus{domain.StatusProcessing},
		domain.StatusCompleted,
		"", "",
	)
	if err != nil {
		return fmt.Errorf("set status=completed: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) discardIfCancelled(ctx context.Context, documentID string) (bool, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return false, fmt.Errorf("re-check document status: %w", err)
	}
	if doc.Status == domain.StatusProcessing {
		return false, nil
	}
	uc.log.Warn("process_results_discarded", "document_id", documentID, "status", string(doc.Status))
	return true, nil
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	_, err := uc.repo.Transition(
		ctx,
		documentID,
		[]domain.DocumentStatus{domain.StatusProcessing},
		domain.StatusFailed,
		processErr.Error(),
		domain.ErrorCode(processErr),
	)
	return err
}
