package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/brlaw-ai/evidence-pipeline/internal/core/domain"
	"github.com/brlaw-ai/evidence-pipeline/internal/core/ports"
	"github.com/brlaw-ai/evidence-pipeline/internal/observability/metrics"
)

type RunnerConfig struct {
	MaxRethink           int
	ThemeEnabled         bool
	GraphEvidenceEnabled bool
	VerificationEnabled  bool
}

func (c RunnerConfig) normalize() RunnerConfig {
	out := c
	if out.MaxRethink < 0 {
		out.MaxRethink = 0
	}
	if out.MaxRethink == 0 {
		out.MaxRethink = 2
	}
	return out
}

// PassRunner wires the stages into one bounded pass: theme activation, dual
// retrieval, generation through the external reasoner, verification, and the
// rewrite/re-retrieve cycle while the verdict is rejected and budget remains.
// It terminates in at most MaxRethink+1 verification attempts.
type PassRunner struct {
	themes    *ThemeActivator
	retriever *DualRetriever
	reasoner  ports.Reasoner
	verifier  *Verifier
	rewriter  *Rewriter
	audit     ports.PassAuditStore
	cfg       RunnerConfig
	metrics   *metrics.PipelineMetrics
	logger    *slog.Logger
}

func NewPassRunner(
	themes *ThemeActivator,
	retriever *DualRetriever,
	reasoner ports.Reasoner,
	verifier *Verifier,
	rewriter *Rewriter,
	audit ports.PassAuditStore,
	cfg RunnerConfig,
	m *metrics.PipelineMetrics,
	logger *slog.Logger,
) *PassRunner {
	return &PassRunner{
		themes:    themes,
		retriever: retriever,
		reasoner:  reasoner,
		verifier:  verifier,
		rewriter:  rewriter,
		audit:     audit,
		cfg:       cfg.normalize(),
		metrics:   m,
		logger:    logger,
	}
}

func (r *PassRunner) RunPass(ctx context.Context, req domain.PassRequest) (*domain.PassResult, error) {
	if len(req.SubQuestions) == 0 {
		// Nothing to do is not a failure.
		return &domain.PassResult{
			RunID:   req.RunID,
			Outcome: domain.VerificationOutcome{Status: domain.StatusApproved},
		}, nil
	}

	start := time.Now()
	maxRethink := req.MaxRethink
	if maxRethink <= 0 {
		maxRethink = r.cfg.MaxRethink
	}
	rethink := domain.RethinkState{MaxRethink: maxRethink}

	themeResult := r.themes.Activate(ctx, domain.ThemeInput{
		Themes:   req.Themes,
		TenantID: req.TenantID,
		Enabled:  r.cfg.ThemeEnabled,
	})

	subQuestions := req.SubQuestions
	var (
		retrieved domain.RetrieveResult
		answers   []domain.SubAnswer
		outcome   domain.VerificationOutcome
	)

	for {
		retrieved = r.retriever.Retrieve(ctx, domain.RetrieveInput{
			SubQuestions:         subQuestions,
			TenantID:             req.TenantID,
			Scope:                req.Scope,
			CaseID:               req.CaseID,
			UserID:               req.UserID,
			GroupIDs:             req.GroupIDs,
			Indices:              req.Indices,
			Collections:          req.Collections,
			GraphEvidenceEnabled: r.cfg.GraphEvidenceEnabled,
		})

		answers = r.generate(ctx, subQuestions, retrieved.EvidenceMap)

		outcome = r.verifier.Verify(ctx, domain.VerifyInput{
			SubAnswers:  answers,
			EvidenceMap: retrieved.EvidenceMap,
			Rethink:     rethink,
			Enabled:     r.cfg.VerificationEnabled,
		})
		if outcome.Status != domain.StatusRejected {
			break
		}

		rewriteResult := r.rewriter.Rewrite(domain.RewriteInput{
			Query:        req.Query,
			SubQuestions: subQuestions,
			Issues:       outcome.Issues,
			Rethink:      rethink,
		})
		subQuestions = rewriteResult.SubQuestions
		rethink = rewriteResult.Rethink
		r.logger.Info("pass rejected, refining search",
			"run_id", req.RunID,
			"rethink_count", rethink.RethinkCount,
			"rewritten", rewriteResult.Rewritten,
			"issues", len(outcome.Issues))
	}

	elapsed := time.Since(start)
	r.metrics.ObserveStage(metrics.StagePass, elapsed)

	r.recordPass(ctx, req, outcome, rethink, len(subQuestions), elapsed)

	return &domain.PassResult{
		RunID:        req.RunID,
		Outcome:      outcome,
		SubAnswers:   answers,
		EvidenceMap:  retrieved.EvidenceMap,
		TextChunks:   retrieved.TextChunks,
		GraphPaths:   retrieved.GraphPaths,
		GraphTriples: retrieved.GraphTriples,
		ThemeNodes:   themeResult.Nodes,
		Rethink:      rethink,
	}, nil
}

// generate asks the external reasoner for one grounded answer per
// sub-question. A failed generation degrades to an explicit abstention so
// verification still sees every node.
func (r *PassRunner) generate(ctx context.Context, questions []domain.SubQuestion, evidence domain.EvidenceMap) []domain.SubAnswer {
	answers := make([]domain.SubAnswer, 0, len(questions))
	for _, question := range questions {
		ev, ok := evidence[question.NodeID]
		if !ok {
			ev = domain.Evidence{NodeID: question.NodeID, Question: question.Text}
		}
		answer, err := r.reasoner.Answer(ctx, question, ev)
		if err != nil {
			r.logger.Warn("reasoner failed for sub-question, recording abstention",
				"node_id", question.NodeID, "error", err)
			answer = domain.SubAnswer{
				NodeID:   question.NodeID,
				Question: question.Text,
				Answer:   "Não há elementos suficientes nas evidências recuperadas para responder.",
			}
		}
		answers = append(answers, answer)
	}
	return answers
}

func (r *PassRunner) recordPass(
	ctx context.Context,
	req domain.PassRequest,
	outcome domain.VerificationOutcome,
	rethink domain.RethinkState,
	subQuestions int,
	elapsed time.Duration,
) {
	if r.audit == nil {
		return
	}
	rejected := 0
	for _, verdict := range outcome.Verdicts {
		if !verdict.Consistent {
			rejected++
		}
	}
	rec := domain.PassRecord{
		ID:            uuid.NewString(),
		RunID:         req.RunID,
		TenantID:      req.TenantID,
		Query:         req.Query,
		Status:        outcome.Status,
		SubQuestions:  subQuestions,
		RejectedCount: rejected,
		RethinkCount:  rethink.RethinkCount,
		IssueCount:    len(outcome.Issues),
		Elapsed:       elapsed,
		CreatedAt:     time.Now().UTC(),
	}
	if err := r.audit.RecordPass(ctx, rec); err != nil {
		r.logger.Warn("pass audit record failed", "run_id", req.RunID, "error", fmt.Errorf("record pass: %w", err))
	}
}
