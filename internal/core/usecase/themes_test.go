package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/brlaw-ai/evidence-pipeline/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGraphStore struct {
	themeNodes  map[string][]domain.ThemeNode
	themeErr    error
	chunks      []domain.EvidenceChunk
	chunksErr   error
	paths       []domain.GraphPath
	triples     []domain.GraphTriple
	pathsErr    error
	fulltext    []domain.EvidenceChunk
	fulltextErr error
}

func (f *fakeGraphStore) MatchThemeNodes(_ context.Context, _, theme string, _ int) ([]domain.ThemeNode, error) {
	if f.themeErr != nil {
		return nil, f.themeErr
	}
	return f.themeNodes[theme], nil
}

func (f *fakeGraphStore) ChunksByEntities(context.Context, string, []string, int) ([]domain.EvidenceChunk, error) {
	return append([]domain.EvidenceChunk(nil), f.chunks...), f.chunksErr
}

func (f *fakeGraphStore) TraversePaths(context.Context, string, []string, int, int) ([]domain.GraphPath, []domain.GraphTriple, error) {
	return append([]domain.GraphPath(nil), f.paths...), append([]domain.GraphTriple(nil), f.triples...), f.pathsErr
}

func (f *fakeGraphStore) SearchFulltext(context.Context, string, string, int) ([]domain.EvidenceChunk, error) {
	return append([]domain.EvidenceChunk(nil), f.fulltext...), f.fulltextErr
}

func TestThemeActivatorDisabledPassesThroughPreviousNodes(t *testing.T) {
	previous := []domain.ThemeNode{{ID: "t-1", Name: "tributário"}}
	activator := NewThemeActivator(&fakeGraphStore{}, nil, testLogger())

	result := activator.Activate(context.Background(), domain.ThemeInput{
		Themes:        []string{"tributário"},
		Enabled:       false,
		PreviousNodes: previous,
	})
	if len(result.Nodes) != 1 || result.Nodes[0].ID != "t-1" {
		t.Fatalf("expected pass-through of previous nodes, got %+v", result.Nodes)
	}
}

func TestThemeActivatorMatchesNodes(t *testing.T) {
	graph := &fakeGraphStore{themeNodes: map[string][]domain.ThemeNode{
		"servidor público": {
			{ID: "t-1", Name: "Servidor Público", RelatedCount: 12},
			{ID: "t-2", Name: "Regime Jurídico", RelatedCount: 4},
		},
	}}
	activator := NewThemeActivator(graph, nil, testLogger())

	result := activator.Activate(context.Background(), domain.ThemeInput{
		Themes:   []string{"servidor público"},
		TenantID: "tenant-a",
		Enabled:  true,
	})
	if len(result.Nodes) != 2 {
		t.Fatalf("expected 2 theme nodes, got %+v", result.Nodes)
	}
}

func TestThemeActivatorDegradesToPlaceholder(t *testing.T) {
	graph := &fakeGraphStore{themeErr: fmt.Errorf("connection refused")}
	activator := NewThemeActivator(graph, nil, testLogger())

	result := activator.Activate(context.Background(), domain.ThemeInput{
		Themes:  []string{"trabalhista"},
		Enabled: true,
	})
	if len(result.Nodes) != 1 {
		t.Fatalf("expected 1 placeholder node, got %+v", result.Nodes)
	}
	node := result.Nodes[0]
	if !node.Placeholder || node.Name != "trabalhista" || node.RelatedCount != 0 {
		t.Fatalf("unexpected placeholder node: %+v", node)
	}
}
