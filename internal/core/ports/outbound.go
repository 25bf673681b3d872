package ports

import (
	"context"

	"github.com/brlaw-ai/evidence-pipeline/internal/core/domain"
)

// GraphStore exposes read access to the legal knowledge graph.
type GraphStore interface {
	// MatchThemeNodes resolves a macro theme into theme nodes by
	// case-insensitive bidirectional substring match.
	MatchThemeNodes(ctx context.Context, tenantID, theme string, limit int) ([]domain.ThemeNode, error)
	// ChunksByEntities returns chunks linked to the given entity ids.
	ChunksByEntities(ctx context.Context, tenantID string, entityIDs []string, limit int) ([]domain.EvidenceChunk, error)
	// TraversePaths walks up to maxHops from each entity, returning
	// structural path and triple evidence.
	TraversePaths(ctx context.Context, tenantID string, entityIDs []string, maxHops, limit int) ([]domain.GraphPath, []domain.GraphTriple, error)
	// SearchFulltext queries the graph store's own text index, used as a
	// fallback when entity-linked lookup returns nothing.
	SearchFulltext(ctx context.Context, tenantID, query string, limit int) ([]domain.EvidenceChunk, error)
}

// LexicalVisibility restricts lexical hits to documents the caller may see:
// own tenant, the shared "global" tenant, or documents with no tenant tag.
type LexicalVisibility struct {
	TenantID string
}

// LexicalIndex exposes BM25-style scored full text search.
type LexicalIndex interface {
	Search(ctx context.Context, query string, indices []string, vis LexicalVisibility, limit int) ([]domain.EvidenceChunk, error)
}

// CollectionScope filters global-scope semantic search.
type CollectionScope struct {
	TenantID string
	Scope    string
}

// CaseScope restricts local-scope semantic search to documents the user is
// authorized to see.
type CaseScope struct {
	CaseID   string
	UserID   string
	GroupIDs []string
}

// VectorIndex exposes nearest-neighbor search over embeddings.
type VectorIndex interface {
	SearchCollections(ctx context.Context, queryVector []float32, collections []string, scope CollectionScope, limit int) ([]domain.EvidenceChunk, error)
	SearchCaseCollection(ctx context.Context, queryVector []float32, collection string, scope CaseScope, limit int) ([]domain.EvidenceChunk, error)
}

// Embedder builds the query vector for semantic search.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// JudgeModel is the low-temperature consistency judge. It returns the raw
// model output; parsing and fallback heuristics belong to the verifier.
type JudgeModel interface {
	CompleteJSON(ctx context.Context, prompt string) (string, error)
}

// Reasoner generates one grounded sub-answer. Generation is an external
// collaborator; the pipeline only consumes its output.
type Reasoner interface {
	Answer(ctx context.Context, question domain.SubQuestion, evidence domain.Evidence) (domain.SubAnswer, error)
}

// PassAuditStore records settled passes for offline inspection. Recording
// failures are logged by callers, never propagated.
type PassAuditStore interface {
	RecordPass(ctx context.Context, rec domain.PassRecord) error
}

// ResultPublisher pushes settled pass results back to the orchestrator.
type ResultPublisher interface {
	PublishPassResult(ctx context.Context, result domain.PassResult) error
}
