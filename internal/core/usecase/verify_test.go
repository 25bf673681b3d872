package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/brlaw-ai/evidence-pipeline/internal/core/domain"
)

type fakeJudge struct {
	response string
	err      error
	calls    atomic.Int32
}

func (f *fakeJudge) CompleteJSON(context.Context, string) (string, error) {
	f.calls.Add(1)
	return f.response, f.err
}

func consistentJudge() *fakeJudge {
	return &fakeJudge{response: `{"is_consistent":true,"confidence":0.9,"issues":[],"requires_new_search":false,"suggestion":""}`}
}

func evidenceWithChunk(nodeID, uid, text string) domain.EvidenceMap {
	return domain.EvidenceMap{
		nodeID: {
			NodeID:       nodeID,
			ChunkResults: []domain.EvidenceChunk{{ChunkUID: uid, Text: text}},
		},
	}
}

func TestVerifyDanglingRefRejectsRegardlessOfJudge(t *testing.T) {
	judge := consistentJudge()
	verifier := NewVerifier(judge, VerifierConfig{}, nil, testLogger())

	outcome := verifier.Verify(context.Background(), domain.VerifyInput{
		Enabled: true,
		SubAnswers: []domain.SubAnswer{
			{NodeID: "q1", Answer: "O prazo é de 15 dias [ref:inexistente]."},
		},
		EvidenceMap: evidenceWithChunk("q1", "c-1", "prazo de 15 dias"),
		Rethink:     domain.RethinkState{MaxRethink: 2},
	})

	if outcome.Status != domain.StatusRejected {
		t.Fatalf("status = %q, want rejected", outcome.Status)
	}
	if !outcome.RequiresNewSearch {
		t.Fatalf("dangling ref must set requires_new_search")
	}
	if judge.calls.Load() != 0 {
		t.Fatalf("judge must not run after gate failure, got %d calls", judge.calls.Load())
	}
	if len(outcome.Issues) != 1 || !strings.Contains(outcome.Issues[0], "[q1]") {
		t.Fatalf("issue must carry the node id prefix, got %v", outcome.Issues)
	}
}

func TestVerifyDanglingPathMarkerRejects(t *testing.T) {
	verifier := NewVerifier(consistentJudge(), VerifierConfig{}, nil, testLogger())

	outcome := verifier.Verify(context.Background(), domain.VerifyInput{
		Enabled: true,
		SubAnswers: []domain.SubAnswer{
			{NodeID: "q1", Answer: "A relação consta no grafo [path:deadbeef]."},
		},
		EvidenceMap: evidenceWithChunk("q1", "c-1", "texto"),
		Rethink:     domain.RethinkState{MaxRethink: 2},
	})
	if outcome.Status != domain.StatusRejected {
		t.Fatalf("status = %q, want rejected", outcome.Status)
	}
}

func TestVerifyMissingLawCitationRejectsWithExactIssue(t *testing.T) {
	verifier := NewVerifier(consistentJudge(), VerifierConfig{}, nil, testLogger())

	outcome := verifier.Verify(context.Background(), domain.VerifyInput{
		Enabled: true,
		SubAnswers: []domain.SubAnswer{
			{NodeID: "q1", Answer: "A estabilidade é regida pela Lei 8.112/90 [ref:c-1]."},
		},
		EvidenceMap: evidenceWithChunk("q1", "c-1", "Art. 41 da Constituição trata da estabilidade."),
		Rethink:     domain.RethinkState{MaxRethink: 2},
	})

	if outcome.Status != domain.StatusRejected {
		t.Fatalf("status = %q, want rejected", outcome.Status)
	}
	want := "[q1] Lei(s) citada(s) não aparecem nas evidências: 8.112/90"
	if len(outcome.Issues) != 1 || outcome.Issues[0] != want {
		t.Fatalf("issues = %v, want [%q]", outcome.Issues, want)
	}
}

func TestVerifyAbstentionNotRejectedForMissingCitations(t *testing.T) {
	verifier := NewVerifier(consistentJudge(), VerifierConfig{}, nil, testLogger())

	outcome := verifier.Verify(context.Background(), domain.VerifyInput{
		Enabled: true,
		SubAnswers: []domain.SubAnswer{
			{NodeID: "q1", Answer: "Não há elementos suficientes nas evidências recuperadas para responder."},
		},
		EvidenceMap: domain.EvidenceMap{"q1": {NodeID: "q1"}},
	})
	if outcome.Status != domain.StatusApproved {
		t.Fatalf("status = %q, want approved", outcome.Status)
	}
}

func TestVerifyDisabledApproves(t *testing.T) {
	verifier := NewVerifier(nil, VerifierConfig{}, nil, testLogger())

	outcome := verifier.Verify(context.Background(), domain.VerifyInput{
		Enabled: false,
		SubAnswers: []domain.SubAnswer{
			{NodeID: "q1", Answer: "qualquer coisa [ref:inexistente]"},
		},
	})
	if outcome.Status != domain.StatusApproved {
		t.Fatalf("status = %q, want approved", outcome.Status)
	}
}

func TestVerifyPriorAbstainPreserved(t *testing.T) {
	verifier := NewVerifier(consistentJudge(), VerifierConfig{}, nil, testLogger())

	outcome := verifier.Verify(context.Background(), domain.VerifyInput{
		Enabled:     true,
		PriorStatus: domain.StatusAbstain,
		SubAnswers: []domain.SubAnswer{
			{NodeID: "q1", Answer: "resposta perfeitamente consistente"},
		},
		EvidenceMap: domain.EvidenceMap{"q1": {NodeID: "q1"}},
	})
	if outcome.Status != domain.StatusAbstain {
		t.Fatalf("status = %q, abstention must never be upgraded", outcome.Status)
	}
}

func TestVerifyBudgetExhaustedMinorityRejectedApproves(t *testing.T) {
	verifier := NewVerifier(consistentJudge(), VerifierConfig{}, nil, testLogger())

	answers := []domain.SubAnswer{
		{NodeID: "q1", Answer: "ok"},
		{NodeID: "q2", Answer: "ok"},
		{NodeID: "q3", Answer: "ok"},
		{NodeID: "q4", Answer: "falha [ref:inexistente]"},
	}
	outcome := verifier.Verify(context.Background(), domain.VerifyInput{
		Enabled:     true,
		SubAnswers:  answers,
		EvidenceMap: domain.EvidenceMap{},
		Rethink:     domain.RethinkState{RethinkCount: 2, MaxRethink: 2},
	})
	if outcome.Status != domain.StatusApproved {
		t.Fatalf("status = %q, want approved with 1 of 4 rejected at exhaustion", outcome.Status)
	}
	// The flagged answer still demands a new search even though the pass
	// settled.
	if !outcome.RequiresNewSearch {
		t.Fatalf("requires_new_search must survive exhaustion")
	}
}

func TestVerifyBudgetExhaustedMajorityRejectedAbstains(t *testing.T) {
	verifier := NewVerifier(consistentJudge(), VerifierConfig{}, nil, testLogger())

	answers := []domain.SubAnswer{
		{NodeID: "q1", Answer: "ok"},
		{NodeID: "q2", Answer: "falha [ref:x1]"},
		{NodeID: "q3", Answer: "falha [ref:x2]"},
		{NodeID: "q4", Answer: "falha [ref:x3]"},
	}
	outcome := verifier.Verify(context.Background(), domain.VerifyInput{
		Enabled:     true,
		SubAnswers:  answers,
		EvidenceMap: domain.EvidenceMap{},
		Rethink:     domain.RethinkState{RethinkCount: 2, MaxRethink: 2},
	})
	if outcome.Status != domain.StatusAbstain {
		t.Fatalf("status = %q, want abstain with 3 of 4 rejected at exhaustion", outcome.Status)
	}
}

func TestVerifyJudgeErrorDegradesToGateResult(t *testing.T) {
	judge := &fakeJudge{err: fmt.Errorf("model overloaded")}
	verifier := NewVerifier(judge, VerifierConfig{}, nil, testLogger())

	outcome := verifier.Verify(context.Background(), domain.VerifyInput{
		Enabled: true,
		SubAnswers: []domain.SubAnswer{
			{NodeID: "q1", Answer: "resposta sem citações problemáticas"},
		},
		EvidenceMap: domain.EvidenceMap{"q1": {NodeID: "q1"}},
	})
	if outcome.Status != domain.StatusApproved {
		t.Fatalf("status = %q, judge failure must degrade to gate approval", outcome.Status)
	}
	if outcome.Verdicts[0].Suggestion == "" {
		t.Fatalf("expected degradation note in suggestion")
	}
}

func TestVerifyJudgeKeywordFallbackDetectsInconsistency(t *testing.T) {
	judge := &fakeJudge{response: "A resposta é claramente inconsistente com as evidências."}
	verifier := NewVerifier(judge, VerifierConfig{}, nil, testLogger())

	outcome := verifier.Verify(context.Background(), domain.VerifyInput{
		Enabled: true,
		SubAnswers: []domain.SubAnswer{
			{NodeID: "q1", Answer: "resposta qualquer"},
		},
		EvidenceMap: domain.EvidenceMap{"q1": {NodeID: "q1"}},
		Rethink:     domain.RethinkState{MaxRethink: 2},
	})
	if outcome.Status != domain.StatusRejected {
		t.Fatalf("status = %q, want rejected via keyword fallback", outcome.Status)
	}
	if outcome.Verdicts[0].DecidedBy != "judge_keywords" {
		t.Fatalf("decided_by = %q, want judge_keywords", outcome.Verdicts[0].DecidedBy)
	}
}

func TestVerifyJudgeStructuredRejection(t *testing.T) {
	judge := &fakeJudge{response: `{"is_consistent":false,"confidence":0.8,"issues":["afirmação sem suporte"],"requires_new_search":true,"suggestion":"buscar jurisprudência"}`}
	verifier := NewVerifier(judge, VerifierConfig{}, nil, testLogger())

	outcome := verifier.Verify(context.Background(), domain.VerifyInput{
		Enabled: true,
		SubAnswers: []domain.SubAnswer{
			{NodeID: "q1", Answer: "resposta"},
		},
		EvidenceMap: domain.EvidenceMap{"q1": {NodeID: "q1"}},
		Rethink:     domain.RethinkState{MaxRethink: 2},
	})
	if outcome.Status != domain.StatusRejected {
		t.Fatalf("status = %q, want rejected", outcome.Status)
	}
	if len(outcome.Issues) != 1 || outcome.Issues[0] != "[q1] afirmação sem suporte" {
		t.Fatalf("issues = %v", outcome.Issues)
	}
	if !outcome.RequiresNewSearch {
		t.Fatalf("expected requires_new_search from judge verdict")
	}
}

func TestVerifyEvidenceRefsCheckedLikeInlineMarkers(t *testing.T) {
	verifier := NewVerifier(consistentJudge(), VerifierConfig{}, nil, testLogger())

	outcome := verifier.Verify(context.Background(), domain.VerifyInput{
		Enabled: true,
		SubAnswers: []domain.SubAnswer{
			{NodeID: "q1", Answer: "resposta sem marcador inline", EvidenceRefs: []string{"fantasma"}},
		},
		EvidenceMap: evidenceWithChunk("q1", "c-1", "texto"),
		Rethink:     domain.RethinkState{MaxRethink: 2},
	})
	if outcome.Status != domain.StatusRejected {
		t.Fatalf("status = %q, structured refs must be validated too", outcome.Status)
	}
}
