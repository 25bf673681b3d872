package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brlaw-ai/evidence-pipeline/internal/config"
	"github.com/brlaw-ai/evidence-pipeline/internal/core/ports"
	"github.com/brlaw-ai/evidence-pipeline/internal/core/usecase"
	"github.com/brlaw-ai/evidence-pipeline/internal/infrastructure/graph/neo4j"
	"github.com/brlaw-ai/evidence-pipeline/internal/infrastructure/llm/ollama"
	"github.com/brlaw-ai/evidence-pipeline/internal/infrastructure/queue/nats"
	"github.com/brlaw-ai/evidence-pipeline/internal/infrastructure/repository/postgres"
	"github.com/brlaw-ai/evidence-pipeline/internal/infrastructure/resilience"
	"github.com/brlaw-ai/evidence-pipeline/internal/infrastructure/search/opensearch"
	"github.com/brlaw-ai/evidence-pipeline/internal/infrastructure/vector/qdrant"
	"github.com/brlaw-ai/evidence-pipeline/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.PipelineMetrics

	Queue  *nats.Queue
	Runner ports.PassService

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	audit := postgres.NewPassRepository(db)
	if err := audit.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storeExecutor := resilience.NewExecutor(resilience.EvidenceStoreConfig(), logger)
	modelExecutor := resilience.NewExecutor(resilience.ModelConfig(), logger)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSRequestSubject, cfg.NATSResultSubject, nats.Options{
		ResilienceExecutor: storeExecutor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	graphStore, err := neo4j.New(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
	if err != nil {
		return nil, fmt.Errorf("init graph store: %w", err)
	}

	heuristics, err := config.LoadHeuristics(cfg.HeuristicsPath)
	if err != nil {
		return nil, fmt.Errorf("load heuristics: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, modelExecutor)
	embedder := ollama.NewEmbedder(ollamaClient)
	judge := ollama.NewJudge(ollamaClient)
	reasoner := ollama.NewReasoner(ollamaClient)

	lexical := opensearch.New(cfg.OpenSearchURL)
	vector := qdrant.New(cfg.QdrantURL)

	m := metrics.NewPipelineMetrics("evidence-pipeline")

	themes := usecase.NewThemeActivator(graphStore, m, logger)
	retriever := usecase.NewDualRetriever(graphStore, lexical, vector, embedder, usecase.RetrieverConfig{
		LocalLimit:       cfg.RetrievalTopK,
		PathHops:         cfg.GraphPathHops,
		LexicalLimit:     cfg.RetrievalTopK,
		SemanticLimit:    cfg.RetrievalTopK,
		GraphEvidenceCap: cfg.GraphEvidenceCap,
		LocalCollection:  cfg.QdrantLocalCollection,
	}, m, logger)
	verifier := usecase.NewVerifier(judge, usecase.VerifierConfig{
		Heuristics:          usecase.CitationHeuristics{AbstentionPhrases: heuristics.AbstentionPhrases},
		JudgeTimeout:        time.Duration(cfg.JudgeTimeoutSeconds) * time.Second,
		MaxConcurrentJudges: int64(cfg.JudgeMaxConcurrent),
	}, m, logger)
	rewriter := usecase.NewRewriter(usecase.RewriterConfig{
		StopWords: heuristics.RewriteStopWords,
	}, m, logger)

	runner := usecase.NewPassRunner(themes, retriever, reasoner, verifier, rewriter, audit, usecase.RunnerConfig{
		MaxRethink:           cfg.MaxRethink,
		ThemeEnabled:         cfg.ThemeRetrievalEnabled,
		GraphEvidenceEnabled: cfg.GraphEvidenceEnabled,
		VerificationEnabled:  cfg.VerificationEnabled,
	}, m, logger)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
		Queue:   queue,
		Runner:  runner,

		closeFn: func() {
			queue.Close()
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = graphStore.Close(closeCtx)
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
