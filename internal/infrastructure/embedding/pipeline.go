package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/akarpov/ragindex/internal/core/domain"
	"github.com/akarpov/ragindex/internal/core/ports"
	"github.com/akarpov/ragindex/internal/infrastructure/resilience"
	"github.com/akarpov/ragindex/internal/observability/metrics"
)

type PipelineConfig struct {
	BatchSize   int
	MaxInFlight int
	// RequestsPerSecond caps calls to the provider; zero disables the limiter.
	RequestsPerSecond float64
	// Metrics counts batch outcomes when set.
	Metrics *metrics.WorkerMetrics
	Service string
}

func (c PipelineConfig) normalize() PipelineConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 3
	}
	return c
}

// Pipeline batches texts and embeds the batches with bounded parallelism. A
// failed batch marks only its own texts; sibling batches run to completion, so
// a partial provider outage degrades a document instead of voiding it.
type Pipeline struct {
	embedder ports.Embedder
	exec     *resilience.Executor
	limiter  *rate.Limiter
	cfg      PipelineConfig
	log      *slog.Logger
}

func NewPipeline(embedder ports.Embedder, exec *resilience.Executor, cfg PipelineConfig, log *slog.Logger) *Pipeline {
	cfg = cfg.normalize()
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Pipeline{
		embedder: embedder,
		exec:     exec,
		limiter:  limiter,
		cfg:      cfg,
		log:      log,
	}
}

func (p *Pipeline) Model() string { return p.embedder.Model() }

// EmbedAll returns one outcome per input text, in input order. progress is
// called after every finished batch with the running count of embedded texts;
// nil is allowed.
func (p *Pipeline) EmbedAll(ctx context.Context, texts []string, progress func(done int)) []ports.EmbedOutcome {
	outcomes := make([]ports.EmbedOutcome, len(texts))
	if len(texts) == 0 {
		return outcomes
	}

	var mu sync.Mutex
	done := 0

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxInFlight)

	for start := 0; start < len(texts); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end

		g.Go(func() error {
			vectors, err := p.embedBatch(ctx, texts[start:end])
			if p.cfg.Metrics != nil {
				p.cfg.Metrics.RecordEmbedBatch(p.cfg.Service, err)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				for i := start; i < end; i++ {
					outcomes[i] = ports.EmbedOutcome{Err: err}
				}
				p.log.Warn("embedding batch failed",
					slog.Int("batch_start", start),
					slog.Int("batch_len", end-start),
					slog.String("model", p.embedder.Model()),
					slog.String("error", err.Error()))
			} else {
				for i := start; i < end; i++ {
					outcomes[i] = ports.EmbedOutcome{Vector: vectors[i-start]}
				}
				done += end - start
				if progress != nil {
					progress(done)
				}
			}
			// Failures are reported per text, never through the group.
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (p *Pipeline) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var vectors [][]float32

	err := p.exec.Execute(ctx, "embed_batch", func(ctx context.Context) error {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		out, err := p.embedder.Embed(ctx, batch)
		if err != nil {
			return err
		}
		if len(out) != len(batch) {
			return domain.WrapError(domain.ErrProviderFatal, "embed batch",
				fmt.Errorf("provider returned %d vectors for %d texts", len(out), len(batch)))
		}
		if dims := p.embedder.Dimensions(); dims > 0 {
			for _, v := range out {
				if len(v) != dims {
					return domain.WrapError(domain.ErrProviderFatal, "embed batch",
						fmt.Errorf("vector has %d dimensions, model %s declares %d", len(v), p.embedder.Model(), dims))
				}
			}
		}
		vectors = out
		return nil
	}, classifyEmbedError)
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// classifyEmbedError retries transient provider failures and gives up
// immediately on fatal ones such as dimension mismatches or rejected input.
func classifyEmbedError(err error) resilience.ErrorClassification {
	switch {
	case domain.IsKind(err, domain.ErrProviderFatal), domain.IsKind(err, domain.ErrValidation):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	default:
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
}
