package chunking

import (
	"strings"

	"github.com/akarpov/ragindex/internal/core/domain"
)

type fixedConfig struct {
	chunkSize int
	overlap   int
}

func fixedParams(strategy domain.ChunkingStrategy) fixedConfig {
	cfg := fixedConfig{
		chunkSize: strategy.IntParam("chunk_size", 900),
		overlap:   strategy.IntParam("chunk_overlap", 150),
	}
	if cfg.chunkSize <= 0 {
		cfg.chunkSize = 900
	}
	if cfg.overlap < 0 || cfg.overlap >= cfg.chunkSize {
		cfg.overlap = cfg.chunkSize / 4
	}
	return cfg
}

// separators in back-off priority order: paragraph break, line break,
// sentence terminators.
var fixedSeparators = []string{"\n\n", "\n", ". ", "! ", "? "}

// splitFixed cuts the text every chunkSize runes, backing off to the nearest
// preceding separator when one exists within the look-back window, and starts
// the next chunk overlap runes before the cut.
func splitFixed(runes []rune, cfg fixedConfig) []domain.ChunkCandidate {
	if len(runes) == 0 {
		return nil
	}

	lookback := cfg.chunkSize / 5
	if lookback > 200 {
		lookback = 200
	}

	var out []domain.ChunkCandidate
	prevEnd := 0
	start := 0
	for start < len(runes) {
		end := start + cfg.chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = backOffToSeparator(runes, start, end, lookback)
		}

		overlap := 0
		if len(out) > 0 && prevEnd > start {
			overlap = prevEnd - start
		}
		out = append(out, candidateFromSegment(runes, segment{start: start, end: end}, overlap))

		if end == len(runes) {
			break
		}
		prevEnd = end
		next := end - cfg.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return dropBlank(out)
}

// backOffToSeparator searches the look-back window for the highest-priority
// separator and cuts just after it. Without a match the hard cut stands.
func backOffToSeparator(runes []rune, start, end, lookback int) int {
	windowStart := end - lookback
	if windowStart <= start {
		windowStart = start + 1
	}
	window := string(runes[windowStart:end])

	for _, sep := range fixedSeparators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		cut := windowStart + len([]rune(window[:idx])) + len([]rune(sep))
		if cut > start && cut <= end {
			return cut
		}
	}
	return end
}
