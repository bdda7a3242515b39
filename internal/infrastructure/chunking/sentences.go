package chunking

import "unicode"

// splitSentenceSegments finds sentence boundaries: a terminator run followed
// by whitespace, or a line break. Spans are rune offsets into the source.
func splitSentenceSegments(runes []rune) []segment {
	var out []segment
	start := 0
	i := 0
	for i < len(runes) {
		if isSentenceTerminator(runes[i]) {
			// Consume the whole terminator run ("...", "?!").
			for i < len(runes) && isSentenceTerminator(runes[i]) {
				i++
			}
			if i >= len(runes) || unicode.IsSpace(runes[i]) {
				seg := trimSegment(runes, segment{start: start, end: i})
				if seg.end > seg.start {
					out = append(out, seg)
				}
				for i < len(runes) && unicode.IsSpace(runes[i]) {
					i++
				}
				start = i
			}
			continue
		}
		if runes[i] == '\n' {
			seg := trimSegment(runes, segment{start: start, end: i})
			if seg.end > seg.start {
				out = append(out, seg)
			}
			i++
			start = i
			continue
		}
		i++
	}
	if start < len(runes) {
		seg := trimSegment(runes, segment{start: start, end: len(runes)})
		if seg.end > seg.start {
			out = append(out, seg)
		}
	}
	return out
}

func isSentenceTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
