package domain

type StrategyType string

const (
	StrategyFixed         StrategyType = "fixed"
	StrategyParagraph     StrategyType = "paragraph"
	StrategySemantic      StrategyType = "semantic"
	StrategySlidingWindow StrategyType = "sliding_window"
	StrategyCustom        StrategyType = "custom"
)

type StrategySource string

const (
	SourceManual          StrategySource = "manual"
	SourceNaturalLanguage StrategySource = "natural_language"
)

// StrategyProvenance records where a strategy configuration came from. For
// natural-language resolutions it keeps the original request text, the model
// that produced the configuration and its stated reasoning.
type StrategyProvenance struct {
	Source              StrategySource `json:"source"`
	NaturalLanguageText string         `json:"natural_language_text,omitempty"`
	GeneratingModel     string         `json:"generating_model,omitempty"`
	Reasoning           string         `json:"reasoning,omitempty"`
}

// ChunkingStrategy is immutable once attached to a processing run. Parameters
// carry the type-specific options; their shape is validated against the schema
// for Type before the strategy is accepted.
type ChunkingStrategy struct {
	Type       StrategyType       `json:"strategy_type"`
	Parameters map[string]any     `json:"parameters"`
	Provenance StrategyProvenance `json:"provenance"`
}

// IntParam reads a numeric parameter. JSON decoding yields float64 for all
// numbers, so both int and float64 are accepted.
func (s ChunkingStrategy) IntParam(name string, fallback int) int {
	v, ok := s.Parameters[name]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}

func (s ChunkingStrategy) FloatParam(name string, fallback float64) float64 {
	v, ok := s.Parameters[name]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return fallback
	}
}

func (s ChunkingStrategy) StringParam(name, fallback string) string {
	v, ok := s.Parameters[name]
	if !ok {
		return fallback
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fallback
}

func (s ChunkingStrategy) BoolParam(name string, fallback bool) bool {
	v, ok := s.Parameters[name]
	if !ok {
		return fallback
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}

// CustomRule is one step of a custom strategy. Rules are applied left to
// right; each rule consumes the output of the previous one.
type CustomRule struct {
	Kind         string `json:"kind" yaml:"kind"`
	HeadingLevel int    `json:"heading_level,omitempty" yaml:"heading_level,omitempty"`
	MaxSize      int    `json:"max_size,omitempty" yaml:"max_size,omitempty"`
	MinSize      int    `json:"min_size,omitempty" yaml:"min_size,omitempty"`
}

const (
	RuleSplitByHeading = "split_by_heading"
	RuleMaxSize        = "max_size"
	RuleMergeSmall     = "merge_small"
)
