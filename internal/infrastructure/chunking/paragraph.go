package chunking

import (
	"unicode"

	"github.com/akarpov/ragindex/internal/core/domain"
)

type paragraphConfig struct {
	maxChunkSize int
	minChunkSize int
	mergeShort   bool
}

func paragraphParams(strategy domain.ChunkingStrategy) paragraphConfig {
	cfg := paragraphConfig{
		maxChunkSize: strategy.IntParam("max_chunk_size", 2000),
		minChunkSize: strategy.IntParam("min_chunk_size", 200),
		mergeShort:   strategy.BoolParam("merge_short_paragraphs", true),
	}
	if cfg.maxChunkSize <= 0 {
		cfg.maxChunkSize = 2000
	}
	if cfg.minChunkSize < 0 {
		cfg.minChunkSize = 0
	}
	return cfg
}

// splitParagraph groups consecutive paragraphs until the next one would push
// the group past maxChunkSize. A single paragraph is never split unless it
// alone exceeds maxChunkSize, in which case fixed splitting applies to that
// paragraph only.
func splitParagraph(runes []rune, cfg paragraphConfig) []domain.ChunkCandidate {
	paragraphs := splitParagraphSegments(runes)
	if len(paragraphs) == 0 {
		return nil
	}

	groups := groupParagraphs(paragraphs, cfg)
	if cfg.mergeShort {
		groups = mergeShortGroups(groups, cfg)
	}

	var out []domain.ChunkCandidate
	for _, group := range groups {
		size := group.end - group.start
		if size <= cfg.maxChunkSize {
			out = append(out, candidateFromSegment(runes, group, 0))
			continue
		}
		// Oversized single paragraph: fixed behavior for this region only.
		sub := splitFixed(runes[group.start:group.end], fixedConfig{chunkSize: cfg.maxChunkSize, overlap: 0})
		for _, c := range sub {
			c.Metadata.SpanStart += group.start
			c.Metadata.SpanEnd += group.start
			out = append(out, c)
		}
	}
	return dropBlank(out)
}

func groupParagraphs(paragraphs []segment, cfg paragraphConfig) []segment {
	var groups []segment
	current := paragraphs[0]
	for _, p := range paragraphs[1:] {
		merged := p.end - current.start
		if merged <= cfg.maxChunkSize {
			current.end = p.end
			continue
		}
		groups = append(groups, current)
		current = p
	}
	return append(groups, current)
}

// mergeShortGroups folds groups below minChunkSize into a neighbor when the
// combined size still fits.
func mergeShortGroups(groups []segment, cfg paragraphConfig) []segment {
	if len(groups) < 2 || cfg.minChunkSize <= 0 {
		return groups
	}
	out := make([]segment, 0, len(groups))
	for _, g := range groups {
		size := g.end - g.start
		if len(out) > 0 && size < cfg.minChunkSize {
			prev := &out[len(out)-1]
			if g.end-prev.start <= cfg.maxChunkSize {
				prev.end = g.end
				continue
			}
		}
		out = append(out, g)
	}
	return out
}

// splitParagraphSegments finds paragraph boundaries: one or more newlines with
// only horizontal whitespace between them.
func splitParagraphSegments(runes []rune) []segment {
	var out []segment
	start := -1
	i := 0
	for i < len(runes) {
		if isParagraphBreak(runes, i) {
			if start >= 0 {
				out = append(out, trimSegment(runes, segment{start: start, end: i}))
				start = -1
			}
			i = skipParagraphBreak(runes, i)
			continue
		}
		if start < 0 {
			start = i
		}
		i++
	}
	if start >= 0 {
		out = append(out, trimSegment(runes, segment{start: start, end: len(runes)}))
	}

	kept := out[:0]
	for _, seg := range out {
		if seg.end > seg.start {
			kept = append(kept, seg)
		}
	}
	return kept
}

func isParagraphBreak(runes []rune, i int) bool {
	if runes[i] != '\n' {
		return false
	}
	j := i + 1
	for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t') {
		j++
	}
	return j < len(runes) && runes[j] == '\n'
}

func skipParagraphBreak(runes []rune, i int) int {
	for i < len(runes) && (runes[i] == '\n' || runes[i] == ' ' || runes[i] == '\t') {
		i++
	}
	return i
}

func trimSegment(runes []rune, seg segment) segment {
	for seg.start < seg.end && unicode.IsSpace(runes[seg.start]) {
		seg.start++
	}
	for seg.end > seg.start && unicode.IsSpace(runes[seg.end-1]) {
		seg.end--
	}
	return seg
}
