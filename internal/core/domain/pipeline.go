package domain

import "time"

// ThemeInput is the typed stage context for theme activation.
type ThemeInput struct {
	Themes   []string
	TenantID string
	Enabled  bool

	// PreviousNodes are passed through unchanged on the disabled fast path.
	PreviousNodes []ThemeNode
}

type ThemeResult struct {
	Nodes   []ThemeNode
	Elapsed time.Duration
}

// RetrieveInput carries the tenant/scope/case context for one retrieval pass.
type RetrieveInput struct {
	SubQuestions []SubQuestion
	TenantID     string
	Scope        string
	CaseID       string
	UserID       string
	GroupIDs     []string
	Indices      []string
	Collections  []string

	GraphEvidenceEnabled bool
}

// RetrieveResult is the fan-in output: per-question evidence plus the
// pass-wide deduplicated pools.
type RetrieveResult struct {
	EvidenceMap  EvidenceMap
	TextChunks   []EvidenceChunk
	GraphPaths   []GraphPath
	GraphTriples []GraphTriple
}

// VerifyInput carries the answers of one pass together with the evidence
// they must be grounded in.
type VerifyInput struct {
	SubAnswers  []SubAnswer
	EvidenceMap EvidenceMap
	Rethink     RethinkState
	Enabled     bool

	// PriorStatus preserves an abstention decided upstream; the verifier
	// never upgrades it.
	PriorStatus VerificationStatus
}

// RewriteInput carries a rejected pass into the deterministic rewriter.
type RewriteInput struct {
	Query        string
	SubQuestions []SubQuestion
	Issues       []string
	Rethink      RethinkState
}

type RewriteResult struct {
	SubQuestions []SubQuestion
	Rethink      RethinkState
	Rewritten    int
}

// PassRequest is what the external orchestrator submits for one full
// evidence pass.
type PassRequest struct {
	RunID        string        `json:"run_id"`
	Query        string        `json:"query"`
	SubQuestions []SubQuestion `json:"sub_questions"`
	Themes       []string      `json:"themes,omitempty"`
	TenantID     string        `json:"tenant_id"`
	Scope        string        `json:"scope,omitempty"`
	CaseID       string        `json:"case_id,omitempty"`
	UserID       string        `json:"user_id,omitempty"`
	GroupIDs     []string      `json:"group_ids,omitempty"`
	Indices      []string      `json:"indices,omitempty"`
	Collections  []string      `json:"collections,omitempty"`
	MaxRethink   int           `json:"max_rethink,omitempty"`
}

// PassResult is returned to the orchestrator once the pass settles.
type PassResult struct {
	RunID        string              `json:"run_id"`
	Outcome      VerificationOutcome `json:"outcome"`
	SubAnswers   []SubAnswer         `json:"sub_answers"`
	EvidenceMap  EvidenceMap         `json:"evidence_map"`
	TextChunks   []EvidenceChunk     `json:"text_chunks"`
	GraphPaths   []GraphPath         `json:"graph_paths"`
	GraphTriples []GraphTriple       `json:"graph_triples"`
	ThemeNodes   []ThemeNode         `json:"theme_nodes,omitempty"`
	Rethink      RethinkState        `json:"rethink"`
}

// PassRecord is the audit row persisted per verification pass.
type PassRecord struct {
	ID            string
	RunID         string
	TenantID      string
	Query         string
	Status        VerificationStatus
	SubQuestions  int
	RejectedCount int
	RethinkCount  int
	IssueCount    int
	Elapsed       time.Duration
	CreatedAt     time.Time
}
