package chunking

import (
	"fmt"
	"strings"

	"github.com/akarpov/ragindex/internal/core/domain"
)

type customConfig struct {
	rules        []domain.CustomRule
	hierarchical bool
}

func customParams(strategy domain.ChunkingStrategy) customConfig {
	return customConfig{
		rules:        decodeRules(strategy.Parameters["rules"]),
		hierarchical: strategy.BoolParam("hierarchical", false),
	}
}

func decodeRules(raw any) []domain.CustomRule {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]domain.CustomRule, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rule := domain.CustomRule{}
		if kind, ok := m["kind"].(string); ok {
			rule.Kind = kind
		}
		rule.HeadingLevel = intFromAny(m["heading_level"])
		rule.MaxSize = intFromAny(m["max_size"])
		rule.MinSize = intFromAny(m["min_size"])
		out = append(out, rule)
	}
	return out
}

func intFromAny(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// cnode is a working segment flowing through the rule pipeline. sectionIdx
// points at the heading section the node came from, -1 when none.
type cnode struct {
	seg        segment
	sectionIdx int
}

// splitCustom applies the configured rules left to right; each rule consumes
// the output of the previous one. With hierarchical set, heading sections that
// later rules split further are emitted as parent chunks with their pieces as
// children.
func splitCustom(runes []rune, cfg customConfig) ([]domain.ChunkCandidate, error) {
	if len(cfg.rules) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "custom split",
			fmt.Errorf("custom strategy requires a non-empty rules list"))
	}

	nodes := []cnode{{seg: trimSegment(runes, segment{start: 0, end: len(runes)}), sectionIdx: -1}}
	var sections []segment

	for _, rule := range cfg.rules {
		switch rule.Kind {
		case domain.RuleSplitByHeading:
			nodes, sections = applyHeadingRule(runes, nodes, rule)
		case domain.RuleMaxSize:
			nodes = applyMaxSizeRule(runes, nodes, rule)
		case domain.RuleMergeSmall:
			nodes = applyMergeSmallRule(nodes, rule)
		default:
			return nil, domain.WrapError(domain.ErrValidation, "custom split",
				fmt.Errorf("unknown custom rule %q", rule.Kind))
		}
	}

	return assembleCustom(runes, nodes, sections, cfg.hierarchical), nil
}

// applyHeadingRule splits every node at markdown headings of the given level.
// The heading line names the section and stays with its body.
func applyHeadingRule(runes []rune, nodes []cnode, rule domain.CustomRule) ([]cnode, []segment) {
	level := rule.HeadingLevel
	if level <= 0 {
		level = 1
	}
	marker := strings.Repeat("#", level) + " "

	var out []cnode
	var sections []segment
	for _, node := range nodes {
		lines := splitLines(runes, node.seg)
		sectionStart := node.seg.start
		title := node.seg.title
		flush := func(end int) {
			seg := trimSegment(runes, segment{start: sectionStart, end: end, title: title})
			if seg.end <= seg.start {
				return
			}
			sections = append(sections, seg)
			out = append(out, cnode{seg: seg, sectionIdx: len(sections) - 1})
		}
		for _, line := range lines {
			text := line.text(runes)
			if strings.HasPrefix(text, marker) && !strings.HasPrefix(text, marker+"#") {
				flush(line.start)
				sectionStart = line.start
				title = strings.TrimSpace(strings.TrimPrefix(text, marker))
			}
		}
		flush(node.seg.end)
	}
	return out, sections
}

func applyMaxSizeRule(runes []rune, nodes []cnode, rule domain.CustomRule) []cnode {
	maxSize := rule.MaxSize
	if maxSize <= 0 {
		return nodes
	}
	var out []cnode
	for _, node := range nodes {
		if node.seg.end-node.seg.start <= maxSize {
			out = append(out, node)
			continue
		}
		pieces := splitFixed(runes[node.seg.start:node.seg.end], fixedConfig{chunkSize: maxSize, overlap: 0})
		for _, piece := range pieces {
			out = append(out, cnode{
				seg: segment{
					start: node.seg.start + piece.Metadata.SpanStart,
					end:   node.seg.start + piece.Metadata.SpanEnd,
					title: node.seg.title,
				},
				sectionIdx: node.sectionIdx,
			})
		}
	}
	return out
}

// applyMergeSmallRule folds undersized nodes into the preceding node of the
// same section.
func applyMergeSmallRule(nodes []cnode, rule domain.CustomRule) []cnode {
	minSize := rule.MinSize
	if minSize <= 0 || len(nodes) < 2 {
		return nodes
	}
	out := make([]cnode, 0, len(nodes))
	for _, node := range nodes {
		size := node.seg.end - node.seg.start
		if len(out) > 0 && size < minSize {
			prev := &out[len(out)-1]
			if prev.sectionIdx == node.sectionIdx {
				prev.seg.end = node.seg.end
				continue
			}
		}
		out = append(out, node)
	}
	return out
}

func assembleCustom(runes []rune, nodes []cnode, sections []segment, hierarchical bool) []domain.ChunkCandidate {
	kept := nodes[:0]
	for _, node := range nodes {
		if strings.TrimSpace(node.seg.text(runes)) == "" {
			continue
		}
		kept = append(kept, node)
	}
	nodes = kept

	var out []domain.ChunkCandidate

	if !hierarchical {
		for _, node := range nodes {
			out = append(out, candidateFromSegment(runes, node.seg, 0))
		}
		return dropBlank(out)
	}

	// Count pieces per section; only multi-piece sections gain a parent.
	pieceCount := make(map[int]int, len(sections))
	for _, node := range nodes {
		if node.sectionIdx >= 0 {
			pieceCount[node.sectionIdx]++
		}
	}

	parentPos := make(map[int]int, len(sections))
	for _, node := range nodes {
		idx := node.sectionIdx
		if idx >= 0 && pieceCount[idx] > 1 {
			if _, ok := parentPos[idx]; !ok {
				out = append(out, candidateFromSegment(runes, sections[idx], 0))
				parentPos[idx] = len(out) - 1
			}
			child := candidateFromSegment(runes, node.seg, 0)
			child.ParentIndex = parentPos[idx]
			out = append(out, child)
			continue
		}
		out = append(out, candidateFromSegment(runes, node.seg, 0))
	}
	return out
}

// splitLines yields line segments including position info; the trailing
// newline is excluded from each line.
func splitLines(runes []rune, seg segment) []segment {
	var out []segment
	start := seg.start
	for i := seg.start; i < seg.end; i++ {
		if runes[i] == '\n' {
			out = append(out, segment{start: start, end: i})
			start = i + 1
		}
	}
	if start < seg.end {
		out = append(out, segment{start: start, end: seg.end})
	}
	return out
}
