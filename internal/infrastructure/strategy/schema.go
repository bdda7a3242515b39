package strategy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/akarpov/ragindex/internal/core/domain"
)

// Parameter schemas per strategy type. The same schemas validate structured
// user input and language-model output; a model response is never trusted
// blindly.
var parameterSchemas = map[domain.StrategyType]string{
	domain.StrategyFixed: `{
		"type": "object",
		"properties": {
			"chunk_size":    {"type": "integer", "minimum": 1},
			"chunk_overlap": {"type": "integer", "minimum": 0}
		},
		"required": ["chunk_size"],
		"additionalProperties": false
	}`,
	domain.StrategyParagraph: `{
		"type": "object",
		"properties": {
			"max_chunk_size":         {"type": "integer", "minimum": 1},
			"min_chunk_size":         {"type": "integer", "minimum": 0},
			"merge_short_paragraphs": {"type": "boolean"}
		},
		"required": ["max_chunk_size"],
		"additionalProperties": false
	}`,
	domain.StrategySemantic: `{
		"type": "object",
		"properties": {
			"similarity_threshold": {"type": "number", "minimum": 0, "maximum": 1},
			"min_chunk_size":       {"type": "integer", "minimum": 0},
			"max_chunk_size":       {"type": "integer", "minimum": 1},
			"window_sentences":     {"type": "integer", "minimum": 1}
		},
		"required": ["similarity_threshold"],
		"additionalProperties": false
	}`,
	domain.StrategySlidingWindow: `{
		"type": "object",
		"properties": {
			"window_size": {"type": "integer", "minimum": 1},
			"step_size":   {"type": "integer", "minimum": 1}
		},
		"required": ["window_size", "step_size"],
		"additionalProperties": false
	}`,
	domain.StrategyCustom: `{
		"type": "object",
		"properties": {
			"hierarchical": {"type": "boolean"},
			"rules": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"properties": {
						"kind":          {"type": "string", "enum": ["split_by_heading", "max_size", "merge_small"]},
						"heading_level": {"type": "integer", "minimum": 1, "maximum": 6},
						"max_size":      {"type": "integer", "minimum": 1},
						"min_size":      {"type": "integer", "minimum": 1}
					},
					"required": ["kind"],
					"additionalProperties": false
				}
			}
		},
		"required": ["rules"],
		"additionalProperties": false
	}`,
}

// Validate checks a strategy's parameters against the schema for its type
// plus the cross-field invariants a JSON schema cannot express.
func Validate(s domain.ChunkingStrategy) error {
	schemaJSON, ok := parameterSchemas[s.Type]
	if !ok {
		return domain.WrapError(domain.ErrValidation, "validate strategy",
			fmt.Errorf("unknown strategy_type %q", s.Type))
	}

	params := s.Parameters
	if params == nil {
		params = map[string]any{}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewGoLoader(params),
	)
	if err != nil {
		return domain.WrapError(domain.ErrValidation, "validate strategy", err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return domain.WrapError(domain.ErrValidation, "validate strategy",
			fmt.Errorf("parameters for %q: %s", s.Type, strings.Join(details, "; ")))
	}

	return validateCrossField(s)
}

func validateCrossField(s domain.ChunkingStrategy) error {
	switch s.Type {
	case domain.StrategyFixed:
		size := s.IntParam("chunk_size", 0)
		overlap := s.IntParam("chunk_overlap", 0)
		if overlap >= size {
			return domain.WrapError(domain.ErrValidation, "validate strategy",
				fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)", overlap, size))
		}
	case domain.StrategyParagraph:
		if min, max := s.IntParam("min_chunk_size", 0), s.IntParam("max_chunk_size", 0); min > max {
			return domain.WrapError(domain.ErrValidation, "validate strategy",
				fmt.Errorf("min_chunk_size (%d) must not exceed max_chunk_size (%d)", min, max))
		}
	case domain.StrategySemantic:
		min := s.IntParam("min_chunk_size", 0)
		max := s.IntParam("max_chunk_size", 2000)
		if min > max {
			return domain.WrapError(domain.ErrValidation, "validate strategy",
				fmt.Errorf("min_chunk_size (%d) must not exceed max_chunk_size (%d)", min, max))
		}
	case domain.StrategySlidingWindow:
		if step, window := s.IntParam("step_size", 0), s.IntParam("window_size", 0); step > window {
			return domain.WrapError(domain.ErrValidation, "validate strategy",
				fmt.Errorf("step_size (%d) must not exceed window_size (%d)", step, window))
		}
	}
	return nil
}

// resolvedPayload is the shape a language model must answer with.
type resolvedPayload struct {
	StrategyType string         `json:"strategy_type"`
	Parameters   map[string]any `json:"parameters"`
	Reasoning    string         `json:"reasoning"`
}

func parseModelResponse(raw string) (resolvedPayload, error) {
	var payload resolvedPayload
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &payload); err != nil {
		return resolvedPayload{}, fmt.Errorf("parse strategy json: %w", err)
	}
	if strings.TrimSpace(payload.StrategyType) == "" {
		return resolvedPayload{}, fmt.Errorf("strategy json missing strategy_type")
	}
	return payload, nil
}

// extractJSONObject strips prose a model may wrap around the JSON object.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
