package strategy

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a document chunking configurator. Map the user's description of how a document should be split into a JSON object. Answer with JSON only, no prose.

Response shape:
{"strategy_type": "<type>", "parameters": {...}, "reasoning": "<one sentence>"}

Available strategy types and their parameters:
- "fixed": chunk_size (int, required), chunk_overlap (int, must be < chunk_size)
- "paragraph": max_chunk_size (int, required), min_chunk_size (int), merge_short_paragraphs (bool)
- "semantic": similarity_threshold (number 0..1, required), min_chunk_size (int), max_chunk_size (int), window_sentences (int)
- "sliding_window": window_size (int, required), step_size (int, required, <= window_size)
- "custom": rules (array, required) of {"kind": "split_by_heading"|"max_size"|"merge_small", "heading_level": int, "max_size": int, "min_size": int}, hierarchical (bool)

Pick the closest type. Sizes are in characters. When the description names no numbers, choose sensible defaults.`

func buildResolvePrompt(text string) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nDescription:\n")
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\n\nJSON:")
	return b.String()
}

func retryPrompt(text string, lastErr error) string {
	return fmt.Sprintf("%s\n\nYour previous answer was rejected: %v\nAnswer again with valid JSON only.", buildResolvePrompt(text), lastErr)
}
