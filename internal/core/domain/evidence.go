package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SubQuestion is one leaf unit of a decomposed user query. NodeID is the
// immutable identity; Text may be extended once by the query rewriter.
type SubQuestion struct {
	NodeID string `json:"node_id"`
	Text   string `json:"question_text"`
}

// EntityKey is an extracted mention used only as a lookup key. It is not
// owned by any store.
type EntityKey struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EvidenceChunk is the atomic retrieval unit. Uniqueness across a pass is
// enforced by ChunkUID when present, otherwise by a content hash of Text.
type EvidenceChunk struct {
	ChunkUID   string            `json:"chunk_uid,omitempty"`
	Text       string            `json:"text"`
	Score      float64           `json:"score"`
	Source     string            `json:"source"`
	SourceType string            `json:"source_type"`
	DocID      string            `json:"doc_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`

	// FirstNodeID records which sub-question first produced the chunk.
	// Filled during the fan-in merge.
	FirstNodeID string `json:"first_node_id,omitempty"`
}

// Key returns the dedup key for the chunk.
func (c EvidenceChunk) Key() string {
	if c.ChunkUID != "" {
		return c.ChunkUID
	}
	return ContentHash(c.Text)
}

// ContentHash hashes chunk text for dedup when no stable UID exists.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:12])
}

// GraphPath is multi-hop relational evidence rendered as a prompt-ready
// (node)-[relation]->(node) string.
type GraphPath struct {
	PathUID string `json:"path_uid"`
	Text    string `json:"path_text"`
}

// PathUID derives a stable identifier from node ids and typed edges only.
// Re-traversal of the same structure yields the same UID even when label
// text or scores differ.
func PathUID(nodeIDs, relTypes []string) string {
	var b strings.Builder
	for i, id := range nodeIDs {
		if i > 0 && i-1 < len(relTypes) {
			b.WriteString("|" + relTypes[i-1] + "|")
		}
		b.WriteString(id)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:10])
}

// GraphTriple is a single-hop relation, deduplicated by (FromID, Relation, ToID).
type GraphTriple struct {
	FromID   string `json:"from_id"`
	From     string `json:"from"`
	Relation string `json:"rel"`
	ToID     string `json:"to_id"`
	To       string `json:"to"`
	Text     string `json:"text"`
}

// Key returns the dedup tuple for the triple.
func (t GraphTriple) Key() string {
	return t.FromID + "\x00" + t.Relation + "\x00" + t.ToID
}

// Evidence is everything gathered for one sub-question during a pass.
type Evidence struct {
	NodeID       string          `json:"node_id"`
	Question     string          `json:"question"`
	EntityKeys   []EntityKey     `json:"entity_keys"`
	LocalResults []EvidenceChunk `json:"local_results"`
	ChunkResults []EvidenceChunk `json:"chunk_results"`
	GraphPaths   []GraphPath     `json:"graph_paths"`
	GraphTriples []GraphTriple   `json:"graph_triples"`
}

// EvidenceMap holds per-sub-question evidence keyed by node id.
type EvidenceMap map[string]Evidence

// HasPath reports whether the sub-question's graph evidence contains the uid.
func (e Evidence) HasPath(uid string) bool {
	for _, p := range e.GraphPaths {
		if p.PathUID == uid {
			return true
		}
	}
	return false
}

// HasChunk reports whether the sub-question's evidence contains a chunk with
// the given uid or content hash.
func (e Evidence) HasChunk(key string) bool {
	for _, c := range e.LocalResults {
		if c.ChunkUID == key || c.Key() == key {
			return true
		}
	}
	for _, c := range e.ChunkResults {
		if c.ChunkUID == key || c.Key() == key {
			return true
		}
	}
	return false
}

// SubAnswer is produced by the external reasoner and consumed by the verifier.
type SubAnswer struct {
	NodeID       string   `json:"node_id"`
	Question     string   `json:"question"`
	Answer       string   `json:"answer"`
	EvidenceRefs []string `json:"evidence_refs,omitempty"`
}

// ThemeNode is a macro-theme anchor in the graph. Placeholder nodes are
// emitted when the graph store is unavailable.
type ThemeNode struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	RelatedCount int    `json:"related_count"`
	Placeholder  bool   `json:"placeholder,omitempty"`
}

type VerificationStatus string

const (
	StatusApproved VerificationStatus = "approved"
	StatusRejected VerificationStatus = "rejected"
	StatusAbstain  VerificationStatus = "abstain"
)

// AnswerVerdict is the per-answer verification result. GateSource tells
// whether the deterministic gate or the LLM judge decided it.
type AnswerVerdict struct {
	NodeID            string   `json:"node_id"`
	Consistent        bool     `json:"consistent"`
	Confidence        float64  `json:"confidence"`
	Issues            []string `json:"issues,omitempty"`
	RequiresNewSearch bool     `json:"requires_new_search"`
	Suggestion        string   `json:"suggestion,omitempty"`
	DecidedBy         string   `json:"decided_by"`
}

// VerificationOutcome is the pass-wide verdict computed once per pass.
type VerificationOutcome struct {
	Status            VerificationStatus `json:"status"`
	Issues            []string           `json:"issues,omitempty"`
	RequiresNewSearch bool               `json:"requires_new_search"`
	Verdicts          []AnswerVerdict    `json:"verdicts,omitempty"`
}

// RethinkState bounds the rewrite/re-retrieve loop. The counter only
// increases within a pipeline invocation.
type RethinkState struct {
	RethinkCount int `json:"rethink_count"`
	MaxRethink   int `json:"max_rethink"`
}

// Exhausted reports whether the retry budget is spent.
func (r RethinkState) Exhausted() bool {
	return r.RethinkCount >= r.MaxRethink
}
