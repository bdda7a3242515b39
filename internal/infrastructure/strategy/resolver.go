package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/akarpov/ragindex/internal/core/domain"
	"github.com/akarpov/ragindex/internal/core/ports"
	"github.com/akarpov/ragindex/internal/observability/metrics"
)

// Resolver turns an ingest request's strategy input into a validated
// ChunkingStrategy. Structured input is validated as-is; free-text input is
// handed to a chain of completion providers, first valid answer wins. With
// neither, the configured default applies.
type Resolver struct {
	providers []ports.CompletionProvider
	fallback  domain.ChunkingStrategy
	attempts  int
	metrics   *metrics.HTTPServerMetrics
	service   string
	log       *slog.Logger
}

const defaultAttemptsPerProvider = 2

func NewResolver(providers []ports.CompletionProvider, fallback domain.ChunkingStrategy, m *metrics.HTTPServerMetrics, service string, log *slog.Logger) *Resolver {
	return &Resolver{
		providers: providers,
		fallback:  fallback,
		attempts:  defaultAttemptsPerProvider,
		metrics:   m,
		service:   service,
		log:       log,
	}
}

func (r *Resolver) recordResolution(source, outcome string) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordStrategyResolution(r.service, source, outcome)
}

// DefaultStrategy is used when a request names neither a structured strategy
// nor a description.
func DefaultStrategy() domain.ChunkingStrategy {
	return domain.ChunkingStrategy{
		Type: domain.StrategyParagraph,
		Parameters: map[string]any{
			"max_chunk_size":         2000,
			"min_chunk_size":         200,
			"merge_short_paragraphs": true,
		},
		Provenance: domain.StrategyProvenance{Source: domain.SourceManual},
	}
}

func (r *Resolver) Resolve(ctx context.Context, structured *domain.ChunkingStrategy, text string) (domain.ChunkingStrategy, error) {
	if structured != nil {
		s := *structured
		if err := Validate(s); err != nil {
			r.recordResolution(string(domain.SourceManual), "rejected")
			return domain.ChunkingStrategy{}, err
		}
		s.Provenance = domain.StrategyProvenance{Source: domain.SourceManual}
		r.recordResolution(string(domain.SourceManual), "accepted")
		return s, nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		r.recordResolution("default", "accepted")
		return r.fallback, nil
	}
	return r.resolveFromText(ctx, text)
}

func (r *Resolver) resolveFromText(ctx context.Context, text string) (domain.ChunkingStrategy, error) {
	if len(r.providers) == 0 {
		return domain.ChunkingStrategy{}, domain.WrapError(domain.ErrStrategyResolution, "resolve strategy",
			errors.New("no completion provider configured"))
	}

	var lastErr error
	for _, provider := range r.providers {
		for attempt := 0; attempt < r.attempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return domain.ChunkingStrategy{}, err
			}

			prompt := buildResolvePrompt(text)
			if attempt > 0 && lastErr != nil {
				prompt = retryPrompt(text, lastErr)
			}

			raw, err := provider.Complete(ctx, prompt)
			if err != nil {
				lastErr = fmt.Errorf("provider %s: %w", provider.Name(), err)
				r.log.Warn("strategy completion failed",
					slog.String("provider", provider.Name()),
					slog.Int("attempt", attempt+1),
					slog.String("error", err.Error()))
				break // provider unreachable, try the next one
			}

			resolved, err := r.acceptResponse(provider.Name(), text, raw)
			if err != nil {
				lastErr = err
				r.log.Warn("strategy response rejected",
					slog.String("provider", provider.Name()),
					slog.Int("attempt", attempt+1),
					slog.String("error", err.Error()))
				continue
			}
			r.recordResolution(string(domain.SourceNaturalLanguage), "accepted")
			return resolved, nil
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no provider produced a strategy")
	}
	r.recordResolution(string(domain.SourceNaturalLanguage), "rejected")
	return domain.ChunkingStrategy{}, domain.WrapError(domain.ErrStrategyResolution, "resolve strategy", lastErr)
}

func (r *Resolver) acceptResponse(providerName, text, raw string) (domain.ChunkingStrategy, error) {
	payload, err := parseModelResponse(raw)
	if err != nil {
		return domain.ChunkingStrategy{}, err
	}

	resolved := domain.ChunkingStrategy{
		Type:       domain.StrategyType(payload.StrategyType),
		Parameters: payload.Parameters,
		Provenance: domain.StrategyProvenance{
			Source:              domain.SourceNaturalLanguage,
			NaturalLanguageText: text,
			GeneratingModel:     providerName,
			Reasoning:           payload.Reasoning,
		},
	}
	if err := Validate(resolved); err != nil {
		return domain.ChunkingStrategy{}, err
	}
	return resolved, nil
}
