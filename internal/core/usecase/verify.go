package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/brlaw-ai/evidence-pipeline/internal/core/domain"
	"github.com/brlaw-ai/evidence-pipeline/internal/core/ports"
	"github.com/brlaw-ai/evidence-pipeline/internal/observability/metrics"
)

type VerifierConfig struct {
	Heuristics          CitationHeuristics
	JudgeTimeout        time.Duration
	MaxConcurrentJudges int64
}

func (c VerifierConfig) normalize() VerifierConfig {
	out := c
	if len(out.Heuristics.AbstentionPhrases) == 0 {
		out.Heuristics = DefaultCitationHeuristics()
	}
	if out.JudgeTimeout <= 0 {
		out.JudgeTimeout = 30 * time.Second
	}
	if out.MaxConcurrentJudges <= 0 {
		out.MaxConcurrentJudges = 3
	}
	return out
}

// Verifier checks generated sub-answers against their evidence. The
// deterministic citation-integrity gate always runs first and is conclusive
// when it fails; the LLM judge only sees answers that passed the gate.
type Verifier struct {
	judge   ports.JudgeModel
	cfg     VerifierConfig
	limiter *semaphore.Weighted
	metrics *metrics.PipelineMetrics
	logger  *slog.Logger
}

func NewVerifier(judge ports.JudgeModel, cfg VerifierConfig, m *metrics.PipelineMetrics, logger *slog.Logger) *Verifier {
	cfg = cfg.normalize()
	return &Verifier{
		judge:   judge,
		cfg:     cfg,
		limiter: semaphore.NewWeighted(cfg.MaxConcurrentJudges),
		metrics: m,
		logger:  logger,
	}
}

func (v *Verifier) Verify(ctx context.Context, in domain.VerifyInput) domain.VerificationOutcome {
	start := time.Now()
	defer func() {
		v.metrics.ObserveStage(metrics.StageVerify, time.Since(start))
	}()

	// An upstream abstention is a policy decision; it is never upgraded.
	if in.PriorStatus == domain.StatusAbstain {
		return domain.VerificationOutcome{Status: domain.StatusAbstain}
	}
	if !in.Enabled || len(in.SubAnswers) == 0 {
		return domain.VerificationOutcome{Status: domain.StatusApproved}
	}

	verdicts := make([]domain.AnswerVerdict, len(in.SubAnswers))
	var wg sync.WaitGroup
	for i, answer := range in.SubAnswers {
		wg.Add(1)
		go func(i int, answer domain.SubAnswer) {
			defer wg.Done()
			verdicts[i] = v.verifyAnswer(ctx, answer, in.EvidenceMap[answer.NodeID])
		}(i, answer)
	}
	wg.Wait()

	return v.aggregate(in.Rethink, verdicts)
}

func (v *Verifier) verifyAnswer(ctx context.Context, answer domain.SubAnswer, ev domain.Evidence) domain.AnswerVerdict {
	verdict := runDeterministicGate(answer, ev, v.cfg.Heuristics)
	if !verdict.Consistent {
		// A failed deterministic check is conclusive; the probabilistic
		// judge never overrides it.
		v.metrics.ObserveVerdict(false, verdict.DecidedBy)
		return verdict
	}

	verdict = v.runJudge(ctx, answer, ev)
	v.metrics.ObserveVerdict(verdict.Consistent, verdict.DecidedBy)
	return verdict
}

// runDeterministicGate checks reference markers and legal citation presence.
// It is cheap, auditable and LLM-free.
func runDeterministicGate(answer domain.SubAnswer, ev domain.Evidence, heur CitationHeuristics) domain.AnswerVerdict {
	var issues []string

	refs := ParseRefMarkers(answer.Answer)
	refs = append(refs, answer.EvidenceRefs...)
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		if !ev.HasChunk(ref) {
			issues = append(issues, fmt.Sprintf("[%s] referência [ref:%s] não corresponde a nenhuma evidência recuperada", answer.NodeID, ref))
		}
	}

	for _, uid := range ParsePathMarkers(answer.Answer) {
		if !ev.HasPath(uid) {
			issues = append(issues, fmt.Sprintf("[%s] referência [path:%s] não corresponde a nenhum caminho do grafo", answer.NodeID, uid))
		}
	}

	for _, issue := range checkCitationPresence(answer.Answer, flattenEvidenceText(ev), heur) {
		issues = append(issues, fmt.Sprintf("[%s] %s", answer.NodeID, issue))
	}

	if len(issues) > 0 {
		return domain.AnswerVerdict{
			NodeID:            answer.NodeID,
			Consistent:        false,
			Issues:            issues,
			RequiresNewSearch: true,
			DecidedBy:         "gate",
		}
	}
	return domain.AnswerVerdict{NodeID: answer.NodeID, Consistent: true, DecidedBy: "gate"}
}

// judgeVerdict mirrors the JSON schema the judge model is asked to return.
type judgeVerdict struct {
	IsConsistent      *bool    `json:"is_consistent"`
	Confidence        float64  `json:"confidence"`
	Issues            []string `json:"issues"`
	RequiresNewSearch bool     `json:"requires_new_search"`
	Suggestion        string   `json:"suggestion"`
}

func (v *Verifier) runJudge(ctx context.Context, answer domain.SubAnswer, ev domain.Evidence) domain.AnswerVerdict {
	gatePassed := domain.AnswerVerdict{NodeID: answer.NodeID, Consistent: true, DecidedBy: "gate"}
	if v.judge == nil {
		return gatePassed
	}

	if err := v.limiter.Acquire(ctx, 1); err != nil {
		v.metrics.JudgeFallback()
		gatePassed.Suggestion = "juiz de consistência indisponível; aprovado pelo gate determinístico"
		return gatePassed
	}
	defer v.limiter.Release(1)

	judgeCtx, cancel := context.WithTimeout(ctx, v.cfg.JudgeTimeout)
	defer cancel()

	raw, err := v.judge.CompleteJSON(judgeCtx, BuildJudgePrompt(answer.Question, answer.Answer, ev))
	if err != nil {
		// Judge errors and timeouts degrade to the gate-only result.
		v.metrics.JudgeFallback()
		v.logger.Warn("consistency judge unavailable, using gate-only result",
			"node_id", answer.NodeID, "error", err)
		gatePassed.Suggestion = "juiz de consistência indisponível; aprovado pelo gate determinístico"
		return gatePassed
	}

	parsed, parseErr := parseJudgeVerdict(raw)
	if parseErr != nil {
		v.metrics.JudgeFallback()
		return keywordFallbackVerdict(answer.NodeID, raw)
	}

	verdict := domain.AnswerVerdict{
		NodeID:            answer.NodeID,
		Consistent:        parsed.IsConsistent == nil || *parsed.IsConsistent,
		Confidence:        parsed.Confidence,
		RequiresNewSearch: parsed.RequiresNewSearch,
		Suggestion:        strings.TrimSpace(parsed.Suggestion),
		DecidedBy:         "judge",
	}
	for _, issue := range parsed.Issues {
		issue = strings.TrimSpace(issue)
		if issue == "" {
			continue
		}
		verdict.Issues = append(verdict.Issues, fmt.Sprintf("[%s] %s", answer.NodeID, issue))
	}
	if !verdict.Consistent && len(verdict.Issues) == 0 {
		verdict.Issues = append(verdict.Issues, fmt.Sprintf("[%s] resposta considerada inconsistente com as evidências", answer.NodeID))
	}
	return verdict
}

func parseJudgeVerdict(raw string) (judgeVerdict, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return judgeVerdict{}, fmt.Errorf("empty judge response")
	}
	var parsed judgeVerdict
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return judgeVerdict{}, fmt.Errorf("unmarshal judge json: %w", err)
	}
	return parsed, nil
}

// keywordFallbackVerdict scans an unparsable judge response for words that
// indicate inconsistency. An entirely uninformative response defaults to
// consistent with a note rather than crashing the pass.
func keywordFallbackVerdict(nodeID, raw string) domain.AnswerVerdict {
	lower := strings.ToLower(raw)
	negative := []string{"inconsistent", "inconsistente", "hallucin", "alucina", "incorrect", "incorreto", "incorreta", "contradi"}
	for _, word := range negative {
		if strings.Contains(lower, word) {
			return domain.AnswerVerdict{
				NodeID:            nodeID,
				Consistent:        false,
				Issues:            []string{fmt.Sprintf("[%s] juiz sinalizou inconsistência (resposta não estruturada)", nodeID)},
				RequiresNewSearch: true,
				DecidedBy:         "judge_keywords",
			}
		}
	}
	return domain.AnswerVerdict{
		NodeID:     nodeID,
		Consistent: true,
		Suggestion: "resposta do juiz não estruturada; assumida consistente",
		DecidedBy:  "judge_keywords",
	}
}

func (v *Verifier) aggregate(rethink domain.RethinkState, verdicts []domain.AnswerVerdict) domain.VerificationOutcome {
	outcome := domain.VerificationOutcome{Verdicts: verdicts}
	rejected := 0
	for _, verdict := range verdicts {
		if !verdict.Consistent {
			rejected++
		}
		outcome.Issues = append(outcome.Issues, verdict.Issues...)
		if verdict.RequiresNewSearch {
			outcome.RequiresNewSearch = true
		}
	}

	switch {
	case rejected == 0:
		outcome.Status = domain.StatusApproved
		outcome.RequiresNewSearch = false
	case rethink.Exhausted():
		// Budget spent: accept the partial result unless most answers
		// failed.
		if rejected*2 > len(verdicts) {
			outcome.Status = domain.StatusAbstain
		} else {
			outcome.Status = domain.StatusApproved
		}
	default:
		outcome.Status = domain.StatusRejected
	}
	return outcome
}

func flattenEvidenceText(ev domain.Evidence) string {
	var b strings.Builder
	for _, chunk := range ev.LocalResults {
		b.WriteString(chunk.Text)
		b.WriteString("\n")
	}
	for _, chunk := range ev.ChunkResults {
		b.WriteString(chunk.Text)
		b.WriteString("\n")
	}
	for _, triple := range ev.GraphTriples {
		b.WriteString(triple.Text)
		b.WriteString("\n")
	}
	for _, path := range ev.GraphPaths {
		b.WriteString(path.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
