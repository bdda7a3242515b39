package chunking

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/akarpov/ragindex/internal/core/domain"
)

func strategyOf(t domain.StrategyType, params map[string]any) domain.ChunkingStrategy {
	return domain.ChunkingStrategy{Type: t, Parameters: params}
}

func contents(candidates []domain.ChunkCandidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Content
	}
	return out
}

func TestSplitWhitespaceOnlyYieldsNothing(t *testing.T) {
	s := NewSplitter(nil)
	got, err := s.Split(context.Background(), "   \n\n\t  ", strategyOf(domain.StrategyFixed, nil))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no candidates, got %v", got)
	}
}

func TestSplitUnknownStrategyRejected(t *testing.T) {
	s := NewSplitter(nil)
	_, err := s.Split(context.Background(), "text", strategyOf("recursive", nil))
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFixedHardCutsAndOverlap(t *testing.T) {
	s := NewSplitter(nil)
	got, err := s.Split(context.Background(), "abcdefghij",
		strategyOf(domain.StrategyFixed, map[string]any{"chunk_size": 4, "chunk_overlap": 1}))
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	want := []string{"abcd", "defg", "ghij"}
	if !reflect.DeepEqual(contents(got), want) {
		t.Fatalf("want %v, got %v", want, contents(got))
	}
	if got[0].Metadata.OverlapPrev != 0 {
		t.Fatalf("first chunk has no overlap, got %d", got[0].Metadata.OverlapPrev)
	}
	if got[1].Metadata.OverlapPrev != 1 || got[2].Metadata.OverlapPrev != 1 {
		t.Fatalf("overlap metadata wrong: %d, %d",
			got[1].Metadata.OverlapPrev, got[2].Metadata.OverlapPrev)
	}
	if got[1].Metadata.SpanStart != 3 || got[1].Metadata.SpanEnd != 7 {
		t.Fatalf("span wrong: %+v", got[1].Metadata)
	}
}

func TestFixedBacksOffToSentenceBoundary(t *testing.T) {
	s := NewSplitter(nil)
	text := "Alpha beta gamma delta. Epsilon zeta eta theta"
	got, err := s.Split(context.Background(), text,
		strategyOf(domain.StrategyFixed, map[string]any{"chunk_size": 25, "chunk_overlap": 0}))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %v", contents(got))
	}
	if strings.TrimSpace(got[0].Content) != "Alpha beta gamma delta." {
		t.Fatalf("cut did not back off to the sentence end: %q", got[0].Content)
	}
	if got[1].Content != "Epsilon zeta eta theta" {
		t.Fatalf("second chunk wrong: %q", got[1].Content)
	}
}

func TestFixedDeterministic(t *testing.T) {
	s := NewSplitter(nil)
	text := strings.Repeat("Lorem ipsum dolor sit amet. ", 40)
	strategy := strategyOf(domain.StrategyFixed, map[string]any{"chunk_size": 120})

	first, err := s.Split(context.Background(), text, strategy)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := s.Split(context.Background(), text, strategy)
		if err != nil {
			t.Fatalf("split: %v", err)
		}
		if !reflect.DeepEqual(contents(first), contents(again)) {
			t.Fatal("fixed splitting is not deterministic")
		}
	}
}

func TestParagraphGroupsUnderMaxSize(t *testing.T) {
	s := NewSplitter(nil)
	text := "Para one.\n\nPara two.\n\nPara three."
	got, err := s.Split(context.Background(), text,
		strategyOf(domain.StrategyParagraph, map[string]any{"max_chunk_size": 25}))
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	want := []string{"Para one.\n\nPara two.", "Para three."}
	if !reflect.DeepEqual(contents(got), want) {
		t.Fatalf("want %v, got %v", want, contents(got))
	}
}

func TestParagraphOversizedFallsBackToFixed(t *testing.T) {
	s := NewSplitter(nil)
	text := strings.Repeat("x", 100)
	got, err := s.Split(context.Background(), text,
		strategyOf(domain.StrategyParagraph, map[string]any{"max_chunk_size": 40}))
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	want := []string{strings.Repeat("x", 40), strings.Repeat("x", 40), strings.Repeat("x", 20)}
	if !reflect.DeepEqual(contents(got), want) {
		t.Fatalf("want %v, got %v", want, contents(got))
	}
	if got[1].Metadata.SpanStart != 40 {
		t.Fatalf("sub-chunk spans must be absolute, got %+v", got[1].Metadata)
	}
}

func TestSlidingWindowsAdvanceByStep(t *testing.T) {
	s := NewSplitter(nil)
	got, err := s.Split(context.Background(), "0123456789",
		strategyOf(domain.StrategySlidingWindow, map[string]any{"window_size": 4, "step_size": 2}))
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	want := []string{"0123", "2345", "4567", "6789"}
	if !reflect.DeepEqual(contents(got), want) {
		t.Fatalf("want %v, got %v", want, contents(got))
	}
	for i, c := range got {
		wantOverlap := 2
		if i == 0 {
			wantOverlap = 0
		}
		if c.Metadata.OverlapPrev != wantOverlap {
			t.Fatalf("chunk %d overlap: want %d, got %d", i, wantOverlap, c.Metadata.OverlapPrev)
		}
	}
}

func TestSemanticBreaksAtTopicShift(t *testing.T) {
	embed := func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			if strings.Contains(text, "Stocks") || strings.Contains(text, "Bonds") {
				out[i] = []float32{0, 1}
			} else {
				out[i] = []float32{1, 0}
			}
		}
		return out, nil
	}
	s := NewSplitter(embed)

	got, err := s.Split(context.Background(),
		"Cats purr. Dogs bark. Stocks fell. Bonds rose.",
		strategyOf(domain.StrategySemantic, map[string]any{
			"similarity_threshold": 0.75,
			"min_chunk_size":       1,
		}))
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	want := []string{"Cats purr. Dogs bark.", "Stocks fell. Bonds rose."}
	if !reflect.DeepEqual(contents(got), want) {
		t.Fatalf("want %v, got %v", want, contents(got))
	}
}

func TestSemanticSingleSentencePassesThrough(t *testing.T) {
	embedCalls := 0
	embed := func(_ context.Context, texts []string) ([][]float32, error) {
		embedCalls++
		return make([][]float32, len(texts)), nil
	}
	s := NewSplitter(embed)

	got, err := s.Split(context.Background(), "Just one sentence",
		strategyOf(domain.StrategySemantic, nil))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(got) != 1 || got[0].Content != "Just one sentence" {
		t.Fatalf("unexpected candidates: %v", contents(got))
	}
	if embedCalls != 0 {
		t.Fatal("single sentence must not hit the embedder")
	}
}

func TestSemanticWithoutEmbedderRejected(t *testing.T) {
	s := NewSplitter(nil)
	_, err := s.Split(context.Background(), "One. Two.",
		strategyOf(domain.StrategySemantic, nil))
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSemanticEmbedErrorIsTransient(t *testing.T) {
	embed := func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("connection refused")
	}
	s := NewSplitter(embed)

	_, err := s.Split(context.Background(), "One one. Two two.",
		strategyOf(domain.StrategySemantic, nil))
	if !domain.IsKind(err, domain.ErrProviderTransient) {
		t.Fatalf("expected transient provider error, got %v", err)
	}
}

func TestSemanticVectorCountMismatchIsFatal(t *testing.T) {
	embed := func(_ context.Context, texts []string) ([][]float32, error) {
		return make([][]float32, len(texts)-1), nil
	}
	s := NewSplitter(embed)

	_, err := s.Split(context.Background(), "One one. Two two.",
		strategyOf(domain.StrategySemantic, nil))
	if !domain.IsKind(err, domain.ErrProviderFatal) {
		t.Fatalf("expected fatal provider error, got %v", err)
	}
}

func TestCustomHeadingRuleSplitsSections(t *testing.T) {
	s := NewSplitter(nil)
	text := "# Doc\nintro line\n## First\nbody one\nbody two\n## Second\nshort"
	got, err := s.Split(context.Background(), text,
		strategyOf(domain.StrategyCustom, map[string]any{
			"rules": []any{
				map[string]any{"kind": domain.RuleSplitByHeading, "heading_level": 2},
			},
		}))
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	want := []string{
		"# Doc\nintro line",
		"## First\nbody one\nbody two",
		"## Second\nshort",
	}
	if !reflect.DeepEqual(contents(got), want) {
		t.Fatalf("want %v, got %v", want, contents(got))
	}
	if got[1].Metadata.SectionTitle != "First" || got[2].Metadata.SectionTitle != "Second" {
		t.Fatalf("section titles wrong: %q, %q",
			got[1].Metadata.SectionTitle, got[2].Metadata.SectionTitle)
	}
}

func TestCustomHierarchicalEmitsParents(t *testing.T) {
	s := NewSplitter(nil)
	body := strings.Repeat("content line here ", 6)
	text := "## Section\n" + body
	got, err := s.Split(context.Background(), text,
		strategyOf(domain.StrategyCustom, map[string]any{
			"hierarchical": true,
			"rules": []any{
				map[string]any{"kind": domain.RuleSplitByHeading, "heading_level": 2},
				map[string]any{"kind": domain.RuleMaxSize, "max_size": 40},
			},
		}))
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	if len(got) < 3 {
		t.Fatalf("expected a parent and at least two children, got %v", contents(got))
	}
	if got[0].ParentIndex != -1 {
		t.Fatalf("parent must not have a parent itself: %d", got[0].ParentIndex)
	}
	if !strings.HasPrefix(got[0].Content, "## Section") {
		t.Fatalf("parent must hold the whole section, got %q", got[0].Content)
	}
	for i, child := range got[1:] {
		if child.ParentIndex != 0 {
			t.Fatalf("child %d not linked to parent: %d", i+1, child.ParentIndex)
		}
	}
}

func TestCustomWithoutRulesRejected(t *testing.T) {
	s := NewSplitter(nil)
	_, err := s.Split(context.Background(), "text",
		strategyOf(domain.StrategyCustom, map[string]any{"rules": []any{}}))
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCustomUnknownRuleRejected(t *testing.T) {
	s := NewSplitter(nil)
	_, err := s.Split(context.Background(), "text",
		strategyOf(domain.StrategyCustom, map[string]any{
			"rules": []any{map[string]any{"kind": "split_by_regex"}},
		}))
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSpansReconstructSourceRegions(t *testing.T) {
	s := NewSplitter(nil)
	text := "Привет мир. Вторая фраза тут. Третья часть текста."
	got, err := s.Split(context.Background(), text,
		strategyOf(domain.StrategyFixed, map[string]any{"chunk_size": 20, "chunk_overlap": 0}))
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	runes := []rune(text)
	for i, c := range got {
		region := string(runes[c.Metadata.SpanStart:c.Metadata.SpanEnd])
		if region != c.Content {
			t.Fatalf("chunk %d span does not match content: %q vs %q", i, region, c.Content)
		}
	}
}
