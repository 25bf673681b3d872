package usecase

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/brlaw-ai/evidence-pipeline/internal/core/domain"
	"github.com/brlaw-ai/evidence-pipeline/internal/observability/metrics"
)

type RewriterConfig struct {
	MinTermLength int
	MaxTerms      int
	StopWords     []string
}

func (c RewriterConfig) normalize() RewriterConfig {
	out := c
	if out.MinTermLength <= 0 {
		out.MinTermLength = 4
	}
	if out.MaxTerms <= 0 {
		out.MaxTerms = 8
	}
	if len(out.StopWords) == 0 {
		out.StopWords = defaultStopWords
	}
	return out
}

var defaultStopWords = []string{
	"para", "como", "qual", "quais", "quando", "onde", "porque", "sobre",
	"entre", "pela", "pelo", "pelas", "pelos", "esta", "este", "essa", "esse",
	"aparecem", "aparece", "citada", "citadas", "citado", "citados",
	"evidência", "evidências", "referência", "referências", "resposta",
	"corresponde", "nenhuma", "nenhum", "recuperada", "grafo", "caminho",
	"with", "that", "this", "from", "missing", "citation", "evidence",
}

// Rewriter deterministically augments rejected sub-questions with salient
// terms from their verification issues. No LLM call is involved, and a
// question already carrying the rewrite marker passes through unchanged, so
// repeated rewrites cannot grow text without bound.
type Rewriter struct {
	cfg       RewriterConfig
	stopWords map[string]struct{}
	metrics   *metrics.PipelineMetrics
	logger    *slog.Logger
}

func NewRewriter(cfg RewriterConfig, m *metrics.PipelineMetrics, logger *slog.Logger) *Rewriter {
	cfg = cfg.normalize()
	stopWords := make(map[string]struct{}, len(cfg.StopWords))
	for _, word := range cfg.StopWords {
		stopWords[strings.ToLower(word)] = struct{}{}
	}
	return &Rewriter{cfg: cfg, stopWords: stopWords, metrics: m, logger: logger}
}

func (r *Rewriter) Rewrite(in domain.RewriteInput) domain.RewriteResult {
	start := time.Now()

	issuesByPrefix := groupIssuesByPrefix(in.Issues)

	out := make([]domain.SubQuestion, len(in.SubQuestions))
	copy(out, in.SubQuestions)
	rewritten := 0

	for i, question := range out {
		bodies := matchingIssueBodies(issuesByPrefix, question.NodeID)
		if len(bodies) == 0 || HasRewriteMarker(question.Text) {
			continue
		}
		terms := r.extractTerms(bodies)
		if len(terms) == 0 {
			continue
		}
		out[i].Text = fmt.Sprintf("%s %s %s]", question.Text, rewriteMarkerPrefix, strings.Join(terms, " "))
		rewritten++
		r.logger.Debug("sub-question rewritten",
			"node_id", question.NodeID, "terms", strings.Join(terms, " "))
	}

	r.metrics.Rethink()
	r.metrics.AddRewritten(rewritten)
	r.metrics.ObserveStage(metrics.StageRewrite, time.Since(start))

	return domain.RewriteResult{
		SubQuestions: out,
		Rethink: domain.RethinkState{
			RethinkCount: in.Rethink.RethinkCount + 1,
			MaxRethink:   in.Rethink.MaxRethink,
		},
		Rewritten: rewritten,
	}
}

func groupIssuesByPrefix(issues []string) map[string][]string {
	grouped := make(map[string][]string, len(issues))
	for _, issue := range issues {
		prefix, body, ok := SplitIssuePrefix(issue)
		if !ok {
			continue
		}
		grouped[prefix] = append(grouped[prefix], body)
	}
	return grouped
}

// matchingIssueBodies matches issue id prefixes against the node id, so a
// truncated "[abc12345]" prefix still reaches its sub-question.
func matchingIssueBodies(grouped map[string][]string, nodeID string) []string {
	var bodies []string
	for prefix, group := range grouped {
		if strings.HasPrefix(nodeID, prefix) {
			bodies = append(bodies, group...)
		}
	}
	return bodies
}

func (r *Rewriter) extractTerms(bodies []string) []string {
	terms := make([]string, 0, r.cfg.MaxTerms)
	seen := make(map[string]struct{})
	for _, body := range bodies {
		for _, token := range splitLetterDigitLower(body) {
			if len([]rune(token)) < r.cfg.MinTermLength {
				continue
			}
			if isAllDigits(token) {
				continue
			}
			if _, stop := r.stopWords[token]; stop {
				continue
			}
			if _, dup := seen[token]; dup {
				continue
			}
			seen[token] = struct{}{}
			terms = append(terms, token)
			if len(terms) >= r.cfg.MaxTerms {
				return terms
			}
		}
	}
	return terms
}

func splitLetterDigitLower(s string) []string {
	if s == "" {
		return nil
	}
	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
