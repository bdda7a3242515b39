package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/akarpov/ragindex/internal/config"
	"github.com/akarpov/ragindex/internal/core/ports"
	"github.com/akarpov/ragindex/internal/core/usecase"
	"github.com/akarpov/ragindex/internal/infrastructure/chunking"
	"github.com/akarpov/ragindex/internal/infrastructure/dedup"
	"github.com/akarpov/ragindex/internal/infrastructure/embedding"
	"github.com/akarpov/ragindex/internal/infrastructure/extractor/plaintext"
	"github.com/akarpov/ragindex/internal/infrastructure/llm/ollama"
	"github.com/akarpov/ragindex/internal/infrastructure/llm/openaicompat"
	"github.com/akarpov/ragindex/internal/infrastructure/queue/nats"
	"github.com/akarpov/ragindex/internal/infrastructure/repository/postgres"
	"github.com/akarpov/ragindex/internal/infrastructure/resilience"
	"github.com/akarpov/ragindex/internal/infrastructure/storage/localfs"
	"github.com/akarpov/ragindex/internal/infrastructure/strategy"
	"github.com/akarpov/ragindex/internal/infrastructure/vector/qdrant"
	"github.com/akarpov/ragindex/internal/observability/metrics"
)

// Instruments carries the per-binary metric collectors into the object graph.
// Either collector may be nil; components then skip recording.
type Instruments struct {
	Service string
	HTTP    *metrics.HTTPServerMetrics
	Worker  *metrics.WorkerMetrics
}

// App holds the wired object graph shared by the api and worker binaries.
type App struct {
	Config config.Config
	Log    *slog.Logger

	Queue    ports.MessageQueue
	Embedder ports.Embedder

	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor
	StatusUC  ports.DocumentReader
	SearchUC  ports.SearchService
	DeleteUC  ports.DocumentRemover
	StatsUC   ports.CollectionReader

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger, instr Instruments) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	docRepo := postgres.NewDocumentRepository(db)
	chunkRepo := postgres.NewChunkRepository(db, instr.Worker, instr.Service)
	dedupCache := dedup.NewCache(postgres.NewDedupStore(db), instr.Worker, instr.Service)

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, cfg.EmbedDimensions)
	embedders := []ports.Embedder{ollama.NewEmbedder(ollamaClient)}
	providers := []ports.CompletionProvider{ollama.NewCompletion(ollamaClient)}
	if cfg.OpenAICompatURL != "" {
		compat := openaicompat.New(
			cfg.OpenAICompatURL,
			cfg.OpenAICompatAPIKey,
			cfg.OpenAICompatGenModel,
			cfg.OpenAICompatEmbedModel,
			cfg.EmbedDimensions,
		)
		embedders = append(embedders, openaicompat.NewEmbedder(compat))
		providers = append(providers, openaicompat.NewCompletion(compat))
	}

	embedder, err := embedding.NewFallback(embedders, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("build embedder chain: %w", err)
	}

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts: cfg.EmbedRetryMaxAttempts,
	})
	pipeline := embedding.NewPipeline(embedder, executor, embedding.PipelineConfig{
		BatchSize:         cfg.EmbedBatchSize,
		MaxInFlight:       cfg.EmbedMaxInFlight,
		RequestsPerSecond: cfg.EmbedRequestsPerSecond,
		Metrics:           instr.Worker,
		Service:           instr.Service,
	}, log)

	fallbackStrategy, err := strategy.LoadDefaults(cfg.DefaultStrategyFile)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load default strategy: %w", err)
	}
	resolver := strategy.NewResolver(providers, fallbackStrategy, instr.HTTP, instr.Service, log)
	splitter := chunking.NewSplitter(embedder.Embed)
	parser := plaintext.NewParser()
	index := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Metrics: instr.Worker,
		Service: instr.Service,
		Logger:  log,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	var archive ports.ObjectStorage
	if cfg.UploadArchiveEnabled {
		store, err := localfs.New(cfg.UploadArchivePath)
		if err != nil {
			queue.Close()
			_ = db.Close()
			return nil, fmt.Errorf("init upload archive: %w", err)
		}
		archive = store
	}

	searchOpts := usecase.SearchOptions{
		DefaultTopK:         cfg.SearchTopK,
		CandidateMultiplier: cfg.SearchCandidateMultiplier,
		RRFK:                cfg.SearchRRFK,
		VectorWeight:        cfg.SearchVectorWeight,
		FulltextWeight:      cfg.SearchFulltextWeight,
		MinListMembership:   cfg.SearchMinListMembership,
	}

	return &App{
		Config: cfg,
		Log:    log,

		Queue:    queue,
		Embedder: embedder,

		IngestUC:  usecase.NewIngestDocumentUseCase(docRepo, parser, resolver, queue, archive),
		ProcessUC: usecase.NewProcessDocumentUseCase(docRepo, chunkRepo, splitter, dedupCache, pipeline, index, log),
		StatusUC:  usecase.NewDocumentStatusUseCase(docRepo, chunkRepo, archive),
		SearchUC:  usecase.NewSearchUseCase(embedder, index, searchOpts),
		DeleteUC:  usecase.NewDeleteDocumentUseCase(docRepo, chunkRepo, index, archive),
		StatsUC:   usecase.NewCollectionStatsUseCase(index),

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
