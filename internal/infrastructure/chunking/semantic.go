package chunking

import (
	"context"
	"fmt"
	"math"

	"github.com/akarpov/ragindex/internal/core/domain"
)

type semanticConfig struct {
	similarityThreshold float64
	minChunkSize        int
	maxChunkSize        int
	windowSentences     int
}

func semanticParams(strategy domain.ChunkingStrategy) semanticConfig {
	cfg := semanticConfig{
		similarityThreshold: strategy.FloatParam("similarity_threshold", 0.75),
		minChunkSize:        strategy.IntParam("min_chunk_size", 200),
		maxChunkSize:        strategy.IntParam("max_chunk_size", 2000),
		windowSentences:     strategy.IntParam("window_sentences", 3),
	}
	if cfg.maxChunkSize <= 0 {
		cfg.maxChunkSize = 2000
	}
	if cfg.minChunkSize < 0 {
		cfg.minChunkSize = 0
	}
	if cfg.windowSentences <= 0 {
		cfg.windowSentences = 3
	}
	return cfg
}

// splitSemantic embeds every sentence, slides a window over the sequence and
// starts a new chunk when the cosine similarity between the window mean and
// the next sentence drops below the threshold, clamped by min/max sizes.
func (s *Splitter) splitSemantic(ctx context.Context, runes []rune, cfg semanticConfig) ([]domain.ChunkCandidate, error) {
	if s.embed == nil {
		return nil, domain.WrapError(domain.ErrValidation, "semantic split", errNoEmbedder)
	}

	sentences := splitSentenceSegments(runes)
	if len(sentences) == 0 {
		return nil, nil
	}
	if len(sentences) == 1 {
		return []domain.ChunkCandidate{candidateFromSegment(runes, sentences[0], 0)}, nil
	}

	texts := make([]string, len(sentences))
	for i, seg := range sentences {
		texts[i] = seg.text(runes)
	}
	vectors, err := s.embed(ctx, texts)
	if err != nil {
		return nil, domain.WrapError(domain.ErrProviderTransient, "embed sentences", err)
	}
	if len(vectors) != len(sentences) {
		return nil, domain.WrapError(domain.ErrProviderFatal, "embed sentences",
			fmt.Errorf("vectors/sentences mismatch: %d/%d", len(vectors), len(sentences)))
	}

	var out []domain.ChunkCandidate
	chunkStart := sentences[0].start
	chunkEnd := sentences[0].end
	windowFrom := 0

	flush := func() {
		out = append(out, candidateFromSegment(runes, trimSegment(runes, segment{start: chunkStart, end: chunkEnd}), 0))
	}

	for i := 1; i < len(sentences); i++ {
		next := sentences[i]
		size := chunkEnd - chunkStart

		boundary := false
		if size >= cfg.maxChunkSize {
			boundary = true
		} else if size >= cfg.minChunkSize {
			window := meanVector(vectors[windowFrom:i], cfg.windowSentences)
			if cosineSimilarity(window, vectors[i]) < cfg.similarityThreshold {
				boundary = true
			}
		}

		if boundary {
			flush()
			chunkStart = next.start
			windowFrom = i
		}
		chunkEnd = next.end
	}
	flush()

	return dropBlank(out), nil
}

// meanVector averages the trailing window of sentence vectors.
func meanVector(vectors [][]float32, window int) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	if len(vectors) > window {
		vectors = vectors[len(vectors)-window:]
	}
	dims := len(vectors[0])
	mean := make([]float32, dims)
	for _, v := range vectors {
		for d := 0; d < dims && d < len(v); d++ {
			mean[d] += v[d]
		}
	}
	inv := 1.0 / float32(len(vectors))
	for d := range mean {
		mean[d] *= inv
	}
	return mean
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
