package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/akarpov/ragindex/internal/core/domain"
	"github.com/akarpov/ragindex/internal/core/ports"
)

// Fallback chains embedders that serve the same model behind different
// endpoints, e.g. a local Ollama with a hosted replica behind it. It sticks
// with the active endpoint and advances on transient failure. Chaining
// different models is refused: cached vectors are keyed by model name and
// mixing models would poison the dedup cache.
type Fallback struct {
	embedders []ports.Embedder
	log       *slog.Logger

	mu     sync.Mutex
	active int
}

func NewFallback(embedders []ports.Embedder, log *slog.Logger) (*Fallback, error) {
	if len(embedders) == 0 {
		return nil, fmt.Errorf("embedding: at least one embedder is required")
	}
	model, dims := embedders[0].Model(), embedders[0].Dimensions()
	for _, e := range embedders[1:] {
		if e.Model() != model || e.Dimensions() != dims {
			return nil, fmt.Errorf("embedding: fallback endpoints must serve the same model, got %s/%d and %s/%d",
				model, dims, e.Model(), e.Dimensions())
		}
	}
	return &Fallback{embedders: embedders, log: log}, nil
}

func (f *Fallback) Model() string   { return f.embedders[0].Model() }
func (f *Fallback) Dimensions() int { return f.embedders[0].Dimensions() }

func (f *Fallback) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f.call(ctx, func(ctx context.Context, e ports.Embedder) ([][]float32, error) {
		return e.Embed(ctx, texts)
	})
}

func (f *Fallback) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.call(ctx, func(ctx context.Context, e ports.Embedder) ([][]float32, error) {
		v, err := e.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		return [][]float32{v}, nil
	})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *Fallback) call(ctx context.Context, fn func(context.Context, ports.Embedder) ([][]float32, error)) ([][]float32, error) {
	start := f.current()
	var lastErr error

	for i := 0; i < len(f.embedders); i++ {
		idx := (start + i) % len(f.embedders)
		out, err := fn(ctx, f.embedders[idx])
		if err == nil {
			f.setActive(idx)
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil || domain.IsKind(err, domain.ErrProviderFatal) {
			return nil, err
		}
		f.log.Warn("embedding endpoint failed, trying next",
			slog.Int("endpoint", idx),
			slog.String("error", err.Error()))
	}
	return nil, lastErr
}

func (f *Fallback) current() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *Fallback) setActive(idx int) {
	f.mu.Lock()
	f.active = idx
	f.mu.Unlock()
}
