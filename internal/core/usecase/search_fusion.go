package usecase

import (
	"sort"

	"github.com/akarpov/ragindex/internal/core/domain"
)

type fusionParams struct {
	K                 int
	VectorWeight      float64
	FulltextWeight    float64
	MinListMembership int
}

type fusedCandidate struct {
	chunk        domain.ScoredChunk
	score        float64
	vectorRank   int
	fulltextRank int
	vectorScore  float64
	lists        int
}

// fuseRRF merges the vector and fulltext ranked lists by weighted Reciprocal
// Rank Fusion: score = sum over lists of weight_L / (k + rank_L), rank 1-based.
// A chunk present in one list only is scored by that list's term alone.
// Ordering is fully deterministic: fused score desc, raw vector similarity
// desc, sequence index asc, chunk id asc.
func fuseRRF(vector, fulltext []domain.ScoredChunk, params fusionParams) []domain.SearchResult {
	if params.K <= 0 {
		params.K = 60
	}

	acc := make(map[string]*fusedCandidate, len(vector)+len(fulltext))

	for rank, chunk := range vector {
		c := accumulate(acc, chunk)
		c.vectorRank = rank + 1
		c.vectorScore = chunk.Score
		c.score += params.VectorWeight / float64(params.K+rank+1)
		c.lists++
	}
	for rank, chunk := range fulltext {
		c := accumulate(acc, chunk)
		c.fulltextRank = rank + 1
		c.score += params.FulltextWeight / float64(params.K+rank+1)
		c.lists++
	}

	out := make([]*fusedCandidate, 0, len(acc))
	for _, c := range acc {
		if c.lists < params.MinListMembership {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].vectorScore != out[j].vectorScore {
			return out[i].vectorScore > out[j].vectorScore
		}
		if out[i].chunk.SequenceIndex != out[j].chunk.SequenceIndex {
			return out[i].chunk.SequenceIndex < out[j].chunk.SequenceIndex
		}
		return out[i].chunk.ChunkID < out[j].chunk.ChunkID
	})

	results := make([]domain.SearchResult, 0, len(out))
	for _, c := range out {
		result := domain.SearchResult{
			ChunkID:       c.chunk.ChunkID,
			DocumentID:    c.chunk.DocumentID,
			CollectionID:  c.chunk.CollectionID,
			SequenceIndex: c.chunk.SequenceIndex,
			Content:       c.chunk.Content,
			FusedScore:    c.score,
		}
		if c.vectorRank > 0 {
			rank := c.vectorRank
			result.VectorRank = &rank
		}
		if c.fulltextRank > 0 {
			rank := c.fulltextRank
			result.FulltextRank = &rank
		}
		results = append(results, result)
	}
	return results
}

func accumulate(acc map[string]*fusedCandidate, chunk domain.ScoredChunk) *fusedCandidate {
	c, ok := acc[chunk.ChunkID]
	if !ok {
		c = &fusedCandidate{chunk: chunk}
		acc[chunk.ChunkID] = c
		return c
	}
	if c.chunk.Content == "" && chunk.Content != "" {
		c.chunk.Content = chunk.Content
	}
	return c
}
