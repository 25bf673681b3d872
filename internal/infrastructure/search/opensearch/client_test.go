package opensearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brlaw-ai/evidence-pipeline/internal/core/ports"
)

func TestSearchBuildsTenantVisibilityFilter(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acordaos,sumulas/_search" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_id":"h-1","_score":12.5,"_source":{"chunk_uid":"c-1","text":"trecho","doc_id":"d-1","source_type":"acordao"}},
			{"_id":"h-2","_score":7.0,"_source":{"text":"sem uid"}}
		]}}`))
	}))
	defer server.Close()

	client := New(server.URL)
	chunks, err := client.Search(context.Background(), "prazo de apelação", []string{"acordaos", "sumulas"},
		ports.LexicalVisibility{TenantID: "tenant-a"}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].ChunkUID != "c-1" || chunks[0].Score != 12.5 {
		t.Fatalf("unexpected first chunk: %+v", chunks[0])
	}
	// Hits without a chunk uid fall back to the document id.
	if chunks[1].ChunkUID != "h-2" {
		t.Fatalf("expected _id fallback, got %q", chunks[1].ChunkUID)
	}

	raw, _ := json.Marshal(captured)
	body := string(raw)
	for _, fragment := range []string{
		`"tenant_id":"tenant-a"`,
		`"tenant_id":"global"`,
		`"must_not"`,
		`"minimum_should_match":1`,
	} {
		if !strings.Contains(body, fragment) {
			t.Fatalf("request body missing %s: %s", fragment, body)
		}
	}
}

func TestSearchEmptyIndicesSkipsRequest(t *testing.T) {
	client := New("http://localhost:1")
	chunks, err := client.Search(context.Background(), "q", nil, ports.LexicalVisibility{}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if chunks != nil {
		t.Fatalf("expected nil result, got %+v", chunks)
	}
}

func TestSearchConnectionErrorIsStoreUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := New(server.URL)
	_, err := client.Search(context.Background(), "q", []string{"idx"}, ports.LexicalVisibility{}, 10)
	if err == nil {
		t.Fatalf("expected error")
	}
}
