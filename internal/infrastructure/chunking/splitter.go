package chunking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/akarpov/ragindex/internal/core/domain"
)

// EmbedFunc embeds a batch of sentences for semantic boundary detection.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Splitter turns normalized text into ordered chunk candidates. Splitting is
// deterministic for identical input and strategy; only the semantic strategy
// reaches out to the embedder, every other strategy is pure computation.
type Splitter struct {
	embed EmbedFunc
}

func NewSplitter(embed EmbedFunc) *Splitter {
	return &Splitter{embed: embed}
}

func (s *Splitter) Split(ctx context.Context, text string, strategy domain.ChunkingStrategy) ([]domain.ChunkCandidate, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	runes := []rune(text)

	switch strategy.Type {
	case domain.StrategyFixed:
		return splitFixed(runes, fixedParams(strategy)), nil
	case domain.StrategyParagraph:
		return splitParagraph(runes, paragraphParams(strategy)), nil
	case domain.StrategySemantic:
		return s.splitSemantic(ctx, runes, semanticParams(strategy))
	case domain.StrategySlidingWindow:
		return splitSliding(runes, slidingParams(strategy)), nil
	case domain.StrategyCustom:
		return splitCustom(runes, customParams(strategy))
	default:
		return nil, domain.WrapError(domain.ErrValidation, "split",
			fmt.Errorf("unknown strategy type %q", strategy.Type))
	}
}

var errNoEmbedder = errors.New("semantic strategy requires an embedder")

// segment is a contiguous region of the source text. Spans are rune offsets.
type segment struct {
	start int
	end   int
	title string
}

func (seg segment) text(runes []rune) string {
	return string(runes[seg.start:seg.end])
}

func candidateFromSegment(runes []rune, seg segment, overlapPrev int) domain.ChunkCandidate {
	return domain.ChunkCandidate{
		Content: seg.text(runes),
		Metadata: domain.ChunkMetadata{
			SpanStart:    seg.start,
			SpanEnd:      seg.end,
			OverlapPrev:  overlapPrev,
			SectionTitle: seg.title,
		},
		ParentIndex: -1,
	}
}

// dropBlank removes candidates whose content is whitespace-only while keeping
// the remaining order intact.
func dropBlank(candidates []domain.ChunkCandidate) []domain.ChunkCandidate {
	out := candidates[:0]
	for _, c := range candidates {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
