package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/brlaw-ai/evidence-pipeline/internal/core/domain"
	"github.com/brlaw-ai/evidence-pipeline/internal/core/ports"
)

type fakeLexical struct {
	chunks []domain.EvidenceChunk
	err    error
}

func (f *fakeLexical) Search(context.Context, string, []string, ports.LexicalVisibility, int) ([]domain.EvidenceChunk, error) {
	// Copy so parallel sub-question goroutines never share backing arrays.
	return append([]domain.EvidenceChunk(nil), f.chunks...), f.err
}

type fakeVector struct {
	global    []domain.EvidenceChunk
	local     []domain.EvidenceChunk
	err       error
	caseCalls int
}

func (f *fakeVector) SearchCollections(context.Context, []float32, []string, ports.CollectionScope, int) ([]domain.EvidenceChunk, error) {
	return append([]domain.EvidenceChunk(nil), f.global...), f.err
}

func (f *fakeVector) SearchCaseCollection(context.Context, []float32, string, ports.CaseScope, int) ([]domain.EvidenceChunk, error) {
	f.caseCalls++
	return append([]domain.EvidenceChunk(nil), f.local...), f.err
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return f.vector, f.err
}

func TestRetrieveAllBackendsDownStillReturnsEvidencePerQuestion(t *testing.T) {
	down := fmt.Errorf("connection refused")
	retriever := NewDualRetriever(
		&fakeGraphStore{chunksErr: down, pathsErr: down, fulltextErr: down},
		&fakeLexical{err: down},
		&fakeVector{err: down},
		&fakeEmbedder{vector: []float32{0.1}},
		RetrieverConfig{},
		nil,
		testLogger(),
	)

	result := retriever.Retrieve(context.Background(), domain.RetrieveInput{
		SubQuestions: []domain.SubQuestion{
			{NodeID: "q1", Text: "qual o prazo do art. 1009?"},
			{NodeID: "q2", Text: "o que diz a Lei 8.112/90?"},
		},
		TenantID:             "tenant-a",
		GraphEvidenceEnabled: true,
	})

	if len(result.EvidenceMap) != 2 {
		t.Fatalf("expected evidence entry per question, got %d", len(result.EvidenceMap))
	}
	for _, nodeID := range []string{"q1", "q2"} {
		ev, ok := result.EvidenceMap[nodeID]
		if !ok {
			t.Fatalf("missing evidence for %s", nodeID)
		}
		if len(ev.LocalResults) != 0 || len(ev.ChunkResults) != 0 {
			t.Fatalf("expected empty results for %s, got %+v", nodeID, ev)
		}
	}
	if len(result.TextChunks) != 0 {
		t.Fatalf("expected empty pool, got %d chunks", len(result.TextChunks))
	}
}

func TestRetrieveMergesInInputOrder(t *testing.T) {
	retriever := NewDualRetriever(
		&fakeGraphStore{},
		&fakeLexical{chunks: []domain.EvidenceChunk{{ChunkUID: "c-shared", Text: "t", Score: 2}}},
		nil,
		nil,
		RetrieverConfig{},
		nil,
		testLogger(),
	)

	result := retriever.Retrieve(context.Background(), domain.RetrieveInput{
		SubQuestions: []domain.SubQuestion{
			{NodeID: "q1", Text: "primeira"},
			{NodeID: "q2", Text: "segunda"},
		},
	})

	if len(result.TextChunks) != 1 {
		t.Fatalf("expected shared chunk deduplicated, got %d", len(result.TextChunks))
	}
	if result.TextChunks[0].FirstNodeID != "q1" {
		t.Fatalf("first producer = %q, want q1 regardless of completion order", result.TextChunks[0].FirstNodeID)
	}
}

func TestRetrieveFulltextFallbackOnlyWhenLocalEmpty(t *testing.T) {
	graph := &fakeGraphStore{
		chunks:   []domain.EvidenceChunk{{ChunkUID: "local-1", Text: "via entidade"}},
		fulltext: []domain.EvidenceChunk{{ChunkUID: "ft-1", Text: "via fulltext"}},
	}
	retriever := NewDualRetriever(graph, nil, nil, nil, RetrieverConfig{}, nil, testLogger())

	// A question with entities: local lookup succeeds, fallback must not fire.
	result := retriever.Retrieve(context.Background(), domain.RetrieveInput{
		SubQuestions: []domain.SubQuestion{{NodeID: "q1", Text: "o que diz o art. 5?"}},
	})
	ev := result.EvidenceMap["q1"]
	for _, chunk := range ev.LocalResults {
		if chunk.Source == "graph_fulltext" {
			t.Fatalf("fallback fired despite local results: %+v", ev.LocalResults)
		}
	}

	// A question without entities: local lookup is skipped, fallback fires.
	result = retriever.Retrieve(context.Background(), domain.RetrieveInput{
		SubQuestions: []domain.SubQuestion{{NodeID: "q2", Text: "como funciona a estabilidade?"}},
	})
	ev = result.EvidenceMap["q2"]
	if len(ev.LocalResults) != 1 || ev.LocalResults[0].Source != "graph_fulltext" {
		t.Fatalf("expected fulltext fallback results, got %+v", ev.LocalResults)
	}
}

func TestRetrieveCaseCollectionRequiresCaseAndUser(t *testing.T) {
	vector := &fakeVector{local: []domain.EvidenceChunk{{ChunkUID: "case-1", Text: "peça"}}}
	retriever := NewDualRetriever(
		&fakeGraphStore{},
		nil,
		vector,
		&fakeEmbedder{vector: []float32{0.5}},
		RetrieverConfig{LocalCollection: "case_documents"},
		nil,
		testLogger(),
	)

	retriever.Retrieve(context.Background(), domain.RetrieveInput{
		SubQuestions: []domain.SubQuestion{{NodeID: "q1", Text: "pergunta"}},
		CaseID:       "case-9",
	})
	if vector.caseCalls != 0 {
		t.Fatalf("case search must not run without user id")
	}

	retriever.Retrieve(context.Background(), domain.RetrieveInput{
		SubQuestions: []domain.SubQuestion{{NodeID: "q1", Text: "pergunta"}},
		CaseID:       "case-9",
		UserID:       "user-1",
	})
	if vector.caseCalls != 1 {
		t.Fatalf("expected one case-scoped search, got %d", vector.caseCalls)
	}
}

func TestRetrieveNormalizesLexicalScores(t *testing.T) {
	retriever := NewDualRetriever(
		&fakeGraphStore{},
		&fakeLexical{chunks: []domain.EvidenceChunk{
			{ChunkUID: "a", Text: "a", Score: 8},
			{ChunkUID: "b", Text: "b", Score: 4},
		}},
		nil,
		nil,
		RetrieverConfig{},
		nil,
		testLogger(),
	)

	result := retriever.Retrieve(context.Background(), domain.RetrieveInput{
		SubQuestions: []domain.SubQuestion{{NodeID: "q1", Text: "pergunta"}},
	})
	chunks := result.EvidenceMap["q1"].ChunkResults
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Score != 1.0 || chunks[1].Score != 0.5 {
		t.Fatalf("scores = %v, %v; want 1.0, 0.5", chunks[0].Score, chunks[1].Score)
	}
}
