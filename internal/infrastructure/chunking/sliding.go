package chunking

import "github.com/akarpov/ragindex/internal/core/domain"

type slidingConfig struct {
	windowSize int
	stepSize   int
}

func slidingParams(strategy domain.ChunkingStrategy) slidingConfig {
	cfg := slidingConfig{
		windowSize: strategy.IntParam("window_size", 500),
		stepSize:   strategy.IntParam("step_size", 250),
	}
	if cfg.windowSize <= 0 {
		cfg.windowSize = 500
	}
	if cfg.stepSize <= 0 || cfg.stepSize > cfg.windowSize {
		cfg.stepSize = cfg.windowSize / 2
		if cfg.stepSize == 0 {
			cfg.stepSize = 1
		}
	}
	return cfg
}

// splitSliding produces overlapping windows of windowSize runes advancing by
// stepSize. The redundancy is deliberate; recall-oriented indexes want it.
func splitSliding(runes []rune, cfg slidingConfig) []domain.ChunkCandidate {
	if len(runes) == 0 {
		return nil
	}

	var out []domain.ChunkCandidate
	prevEnd := 0
	for start := 0; start < len(runes); start += cfg.stepSize {
		end := start + cfg.windowSize
		if end > len(runes) {
			end = len(runes)
		}
		overlap := 0
		if len(out) > 0 && prevEnd > start {
			overlap = prevEnd - start
		}
		out = append(out, candidateFromSegment(runes, segment{start: start, end: end}, overlap))
		prevEnd = end
		if end == len(runes) {
			break
		}
	}
	return dropBlank(out)
}
