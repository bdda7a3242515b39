package strategy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/akarpov/ragindex/internal/core/domain"
)

// defaultsFile is the YAML shape of a deployment-provided default strategy,
// applied to documents ingested without an explicit strategy or strategy text.
type defaultsFile struct {
	StrategyType string         `yaml:"strategy_type"`
	Parameters   map[string]any `yaml:"parameters"`
}

// LoadDefaults reads the default chunking strategy from a YAML file. An empty
// path selects the built-in paragraph default. The loaded strategy passes the
// same schema validation as API-supplied ones, so a bad file fails startup
// instead of every later document.
func LoadDefaults(path string) (domain.ChunkingStrategy, error) {
	if path == "" {
		return DefaultStrategy(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.ChunkingStrategy{}, fmt.Errorf("read strategy defaults: %w", err)
	}

	var file defaultsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return domain.ChunkingStrategy{}, fmt.Errorf("parse strategy defaults: %w", err)
	}

	strategy := domain.ChunkingStrategy{
		Type:       domain.StrategyType(file.StrategyType),
		Parameters: file.Parameters,
		Provenance: domain.StrategyProvenance{Source: domain.SourceManual},
	}
	if err := Validate(strategy); err != nil {
		return domain.ChunkingStrategy{}, fmt.Errorf("strategy defaults %s: %w", path, err)
	}
	return strategy, nil
}
