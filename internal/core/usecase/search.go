package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/akarpov/ragindex/internal/core/domain"
	"github.com/akarpov/ragindex/internal/core/ports"
)

// SearchOptions tunes ranking. Zero values fall back to the defaults below.
type SearchOptions struct {
	DefaultTopK int
	// CandidateMultiplier scales top_k when fetching per-list candidates for
	// hybrid fusion.
	CandidateMultiplier int
	RRFK                int
	VectorWeight        float64
	FulltextWeight      float64
	// MinListMembership drops fused chunks that appear in fewer than this many
	// result lists. 1 keeps single-list chunks (RRF default); 2 requires both
	// lexical and vector relevance.
	MinListMembership int
}

func (o SearchOptions) normalize() SearchOptions {
	if o.DefaultTopK <= 0 {
		o.DefaultTopK = 10
	}
	if o.CandidateMultiplier <= 0 {
		o.CandidateMultiplier = 2
	}
	if o.RRFK <= 0 {
		o.RRFK = 60
	}
	if o.VectorWeight <= 0 {
		o.VectorWeight = 0.7
	}
	if o.FulltextWeight <= 0 {
		o.FulltextWeight = 0.3
	}
	if o.MinListMembership < 1 || o.MinListMembership > 2 {
		o.MinListMembership = 1
	}
	return o
}

// filterableFields are the indexed payload keys a custom field filter may
// match against. Anything else would silently return zero hits.
var filterableFields = map[string]struct{}{
	"document_id":   {},
	"document_type": {},
	"section_title": {},
}

// SearchUseCase executes vector, fulltext and hybrid retrieval. It is
// read-only with respect to chunk state; consistency comes from the backend.
type SearchUseCase struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	opts     SearchOptions
}

func NewSearchUseCase(embedder ports.Embedder, index ports.VectorIndex, opts SearchOptions) *SearchUseCase {
	return &SearchUseCase{
		embedder: embedder,
		index:    index,
		opts:     opts.normalize(),
	}
}

func (uc *SearchUseCase) Search(ctx context.Context, req domain.SearchRequest) ([]domain.SearchResult, error) {
	if strings.TrimSpace(req.QueryText) == "" {
		return nil, domain.WrapError(domain.ErrValidation, "search", errors.New("query_text is required"))
	}
	if len(req.Collections) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "search", errors.New("at least one collection is required"))
	}
	for key := range req.Filter.Fields {
		if _, ok := filterableFields[key]; !ok {
			return nil, domain.WrapError(domain.ErrValidation, "search",
				fmt.Errorf("unknown filter field %q", key))
		}
	}
	if req.TopK <= 0 {
		req.TopK = uc.opts.DefaultTopK
	}
	if req.Type == "" {
		req.Type = domain.SearchHybrid
	}

	switch req.Type {
	case domain.SearchVector:
		hits, err := uc.vectorSearch(ctx, req, req.TopK)
		if err != nil {
			return nil, err
		}
		return resultsFromSingleList(hits, req.TopK, listVector), nil
	case domain.SearchFulltext:
		hits, err := uc.index.SearchLexical(ctx, req.Collections, req.QueryText, req.TopK, req.Filter)
		if err != nil {
			return nil, fmt.Errorf("lexical search: %w", err)
		}
		return resultsFromSingleList(hits, req.TopK, listFulltext), nil
	case domain.SearchHybrid:
		return uc.hybridSearch(ctx, req)
	default:
		return nil, domain.WrapError(domain.ErrValidation, "search",
			fmt.Errorf("unknown search_type %q", req.Type))
	}
}

func (uc *SearchUseCase) vectorSearch(ctx context.Context, req domain.SearchRequest, limit int) ([]domain.ScoredChunk, error) {
	queryVector, err := uc.embedder.EmbedQuery(ctx, req.QueryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := uc.index.Search(ctx, req.Collections, queryVector, limit, req.SimilarityThreshold, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return hits, nil
}

// hybridSearch runs both lists independently over 2x top_k candidates, then
// fuses them with weighted Reciprocal Rank Fusion.
func (uc *SearchUseCase) hybridSearch(ctx context.Context, req domain.SearchRequest) ([]domain.SearchResult, error) {
	candidates := req.TopK * uc.opts.CandidateMultiplier

	var vectorHits, lexicalHits []domain.ScoredChunk
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		hits, err := uc.vectorSearch(groupCtx, req, candidates)
		if err != nil {
			return err
		}
		vectorHits = hits
		return nil
	})
	group.Go(func() error {
		hits, err := uc.index.SearchLexical(groupCtx, req.Collections, req.QueryText, candidates, req.Filter)
		if err != nil {
			return fmt.Errorf("lexical search: %w", err)
		}
		lexicalHits = hits
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	fused := fuseRRF(vectorHits, lexicalHits, fusionParams{
		K:                 uc.opts.RRFK,
		VectorWeight:      uc.opts.VectorWeight,
		FulltextWeight:    uc.opts.FulltextWeight,
		MinListMembership: uc.opts.MinListMembership,
	})
	if len(fused) > req.TopK {
		fused = fused[:req.TopK]
	}
	return fused, nil
}

type resultList int

const (
	listVector resultList = iota
	listFulltext
)

func resultsFromSingleList(hits []domain.ScoredChunk, topK int, list resultList) []domain.SearchResult {
	if len(hits) > topK {
		hits = hits[:topK]
	}
	out := make([]domain.SearchResult, 0, len(hits))
	for rank, hit := range hits {
		r := rank + 1
		result := domain.SearchResult{
			ChunkID:       hit.ChunkID,
			DocumentID:    hit.DocumentID,
			CollectionID:  hit.CollectionID,
			SequenceIndex: hit.SequenceIndex,
			Content:       hit.Content,
			FusedScore:    hit.Score,
		}
		if list == listVector {
			result.VectorRank = &r
		} else {
			result.FulltextRank = &r
		}
		out = append(out, result)
	}
	return out
}
