package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brlaw-ai/evidence-pipeline/internal/core/domain"
	"github.com/brlaw-ai/evidence-pipeline/internal/core/ports"
	"github.com/brlaw-ai/evidence-pipeline/internal/observability/metrics"
)

const (
	sourceGraphLocal    = "graph_local"
	sourceGraphFulltext = "graph_fulltext"
	sourceLexical       = "lexical"
	sourceSemantic      = "semantic"
)

type RetrieverConfig struct {
	LocalLimit       int
	PathHops         int
	PathLimit        int
	TopEntities      int
	LexicalLimit     int
	SemanticLimit    int
	GraphEvidenceCap int
	// LocalCollection is the case-scoped vector collection searched when
	// case and user ids are present.
	LocalCollection string
}

func (c RetrieverConfig) normalize() RetrieverConfig {
	out := c
	if out.LocalLimit <= 0 {
		out.LocalLimit = 10
	}
	if out.PathHops <= 0 {
		out.PathHops = 2
	}
	if out.PathLimit <= 0 {
		out.PathLimit = 20
	}
	if out.TopEntities <= 0 {
		out.TopEntities = 3
	}
	if out.LexicalLimit <= 0 {
		out.LexicalLimit = 10
	}
	if out.SemanticLimit <= 0 {
		out.SemanticLimit = 10
	}
	if out.GraphEvidenceCap <= 0 {
		out.GraphEvidenceCap = 200
	}
	return out
}

// DualRetriever is the bottom-up pass: per-sub-question fan-out across the
// graph, lexical and vector backends, fan-in with pass-wide dedup. A failing
// source contributes empty results; a failing sub-question is excluded and
// the pass continues.
type DualRetriever struct {
	graph    ports.GraphStore
	lexical  ports.LexicalIndex
	vector   ports.VectorIndex
	embedder ports.Embedder
	cfg      RetrieverConfig
	metrics  *metrics.PipelineMetrics
	logger   *slog.Logger
}

func NewDualRetriever(
	graph ports.GraphStore,
	lexical ports.LexicalIndex,
	vector ports.VectorIndex,
	embedder ports.Embedder,
	cfg RetrieverConfig,
	m *metrics.PipelineMetrics,
	logger *slog.Logger,
) *DualRetriever {
	return &DualRetriever{
		graph:    graph,
		lexical:  lexical,
		vector:   vector,
		embedder: embedder,
		cfg:      cfg.normalize(),
		metrics:  m,
		logger:   logger,
	}
}

type retrievalSlot struct {
	evidence domain.Evidence
	err      error
}

func (r *DualRetriever) Retrieve(ctx context.Context, in domain.RetrieveInput) domain.RetrieveResult {
	start := time.Now()

	slots := make([]retrievalSlot, len(in.SubQuestions))
	var wg sync.WaitGroup
	for i, question := range in.SubQuestions {
		wg.Add(1)
		go func(i int, q domain.SubQuestion) {
			defer wg.Done()
			slots[i].evidence, slots[i].err = r.gather(ctx, in, q)
		}(i, question)
	}
	wg.Wait()

	// Merge strictly in input order so the pool is independent of task
	// completion order.
	ordered := make([]domain.Evidence, 0, len(slots))
	for i, slot := range slots {
		if slot.err != nil {
			r.logger.Error("sub-question retrieval failed, excluding from evidence map",
				"node_id", in.SubQuestions[i].NodeID, "error", slot.err)
			continue
		}
		ordered = append(ordered, slot.evidence)
	}

	result := mergeEvidence(ordered, r.cfg.GraphEvidenceCap)

	r.metrics.ObserveStage(metrics.StageRetrieve, time.Since(start))
	r.metrics.AddGraphEvidence("path", len(result.GraphPaths))
	r.metrics.AddGraphEvidence("triple", len(result.GraphTriples))
	for _, chunk := range result.TextChunks {
		r.metrics.AddChunks(chunk.Source, 1)
	}
	return result
}

// gather runs the fixed per-sub-question sequence: entities, local graph
// lookup, path traversal, fulltext fallback, lexical search, semantic
// search. Later steps consume outputs of earlier ones.
func (r *DualRetriever) gather(ctx context.Context, in domain.RetrieveInput, q domain.SubQuestion) (domain.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return domain.Evidence{}, fmt.Errorf("gather evidence: %w", err)
	}

	ev := domain.Evidence{
		NodeID:     q.NodeID,
		Question:   q.Text,
		EntityKeys: ExtractEntities(q.Text),
	}

	r.gatherLocal(ctx, in, &ev)
	r.gatherGraphEvidence(ctx, in, &ev)
	r.gatherFulltextFallback(ctx, in, &ev)
	r.gatherLexical(ctx, in, &ev)
	r.gatherSemantic(ctx, in, &ev)

	return ev, nil
}

func (r *DualRetriever) gatherLocal(ctx context.Context, in domain.RetrieveInput, ev *domain.Evidence) {
	if r.graph == nil || len(ev.EntityKeys) == 0 {
		return
	}
	chunks, err := r.graph.ChunksByEntities(ctx, in.TenantID, entityIDs(ev.EntityKeys, 0), r.cfg.LocalLimit)
	if err != nil {
		r.degrade(sourceGraphLocal, ev.NodeID, err)
		return
	}
	ev.LocalResults = append(ev.LocalResults, tagSource(chunks, sourceGraphLocal)...)
}

func (r *DualRetriever) gatherGraphEvidence(ctx context.Context, in domain.RetrieveInput, ev *domain.Evidence) {
	if !in.GraphEvidenceEnabled || r.graph == nil || len(ev.EntityKeys) == 0 {
		return
	}
	ids := entityIDs(ev.EntityKeys, r.cfg.TopEntities)
	paths, triples, err := r.graph.TraversePaths(ctx, in.TenantID, ids, r.cfg.PathHops, r.cfg.PathLimit)
	if err != nil {
		r.degrade("graph_paths", ev.NodeID, err)
		return
	}
	ev.GraphPaths = append(ev.GraphPaths, paths...)
	ev.GraphTriples = append(ev.GraphTriples, triples...)
}

func (r *DualRetriever) gatherFulltextFallback(ctx context.Context, in domain.RetrieveInput, ev *domain.Evidence) {
	// Fires only when the entity-linked lookup produced nothing.
	if r.graph == nil || len(ev.LocalResults) > 0 {
		return
	}
	chunks, err := r.graph.SearchFulltext(ctx, in.TenantID, ev.Question, r.cfg.LocalLimit)
	if err != nil {
		r.degrade(sourceGraphFulltext, ev.NodeID, err)
		return
	}
	ev.LocalResults = append(ev.LocalResults, tagSource(chunks, sourceGraphFulltext)...)
}

func (r *DualRetriever) gatherLexical(ctx context.Context, in domain.RetrieveInput, ev *domain.Evidence) {
	if r.lexical == nil {
		return
	}
	vis := ports.LexicalVisibility{TenantID: in.TenantID}
	chunks, err := r.lexical.Search(ctx, ev.Question, in.Indices, vis, r.cfg.LexicalLimit)
	if err != nil {
		r.degrade(sourceLexical, ev.NodeID, err)
		return
	}
	normalizeScores(chunks)
	ev.ChunkResults = append(ev.ChunkResults, tagSource(chunks, sourceLexical)...)
}

func (r *DualRetriever) gatherSemantic(ctx context.Context, in domain.RetrieveInput, ev *domain.Evidence) {
	if r.vector == nil || r.embedder == nil {
		return
	}
	// One embedding per sub-question, shared by every collection search.
	queryVector, err := r.embedder.EmbedQuery(ctx, ev.Question)
	if err == nil && len(queryVector) == 0 {
		err = fmt.Errorf("empty embedding result")
	}
	if err != nil {
		r.degrade(sourceSemantic, ev.NodeID, err)
		return
	}

	scope := ports.CollectionScope{TenantID: in.TenantID, Scope: in.Scope}
	chunks, err := r.vector.SearchCollections(ctx, queryVector, in.Collections, scope, r.cfg.SemanticLimit)
	if err != nil {
		r.degrade(sourceSemantic, ev.NodeID, err)
	} else {
		clampScores(chunks)
		ev.ChunkResults = append(ev.ChunkResults, tagSource(chunks, sourceSemantic)...)
	}

	if in.CaseID == "" || in.UserID == "" {
		return
	}
	caseScope := ports.CaseScope{CaseID: in.CaseID, UserID: in.UserID, GroupIDs: in.GroupIDs}
	local, err := r.vector.SearchCaseCollection(ctx, queryVector, r.cfg.LocalCollection, caseScope, r.cfg.SemanticLimit)
	if err != nil {
		r.degrade(sourceSemantic, ev.NodeID, err)
		return
	}
	clampScores(local)
	ev.ChunkResults = append(ev.ChunkResults, tagSource(local, sourceSemantic)...)
}

func (r *DualRetriever) degrade(source, nodeID string, err error) {
	r.metrics.SourceFailure(source)
	r.logger.Warn("retrieval source degraded to empty result",
		"source", source, "node_id", nodeID, "error", err)
}

func entityIDs(keys []domain.EntityKey, limit int) []string {
	if limit <= 0 || limit > len(keys) {
		limit = len(keys)
	}
	out := make([]string, 0, limit)
	for _, key := range keys[:limit] {
		out = append(out, key.ID)
	}
	return out
}

func tagSource(chunks []domain.EvidenceChunk, source string) []domain.EvidenceChunk {
	for i := range chunks {
		if chunks[i].Source == "" {
			chunks[i].Source = source
		}
	}
	return chunks
}

// normalizeScores rescales to [0,1] relative to the top hit of the query.
func normalizeScores(chunks []domain.EvidenceChunk) {
	if len(chunks) == 0 {
		return
	}
	top := chunks[0].Score
	for _, c := range chunks[1:] {
		if c.Score > top {
			top = c.Score
		}
	}
	if top <= 0 {
		return
	}
	for i := range chunks {
		chunks[i].Score = chunks[i].Score / top
	}
}

func clampScores(chunks []domain.EvidenceChunk) {
	for i := range chunks {
		if chunks[i].Score < 0 {
			chunks[i].Score = 0
		}
		if chunks[i].Score > 1 {
			chunks[i].Score = 1
		}
	}
}
