package usecase

import (
	"reflect"
	"testing"
)

func TestParseRefMarkersOrderAndDedup(t *testing.T) {
	refs := ParseRefMarkers("Veja [ref:abc] e [ref:def], de novo [ref:abc].")
	if !reflect.DeepEqual(refs, []string{"abc", "def"}) {
		t.Fatalf("refs = %v, want [abc def]", refs)
	}
}

func TestParseRefMarkersIgnoresMalformed(t *testing.T) {
	refs := ParseRefMarkers("[ref:] [ref:with space] [ref:ok]")
	if !reflect.DeepEqual(refs, []string{"ok"}) {
		t.Fatalf("refs = %v, want [ok]", refs)
	}
}

func TestParsePathMarkers(t *testing.T) {
	uids := ParsePathMarkers("caminho [path:a1b2c3] confirma")
	if !reflect.DeepEqual(uids, []string{"a1b2c3"}) {
		t.Fatalf("uids = %v, want [a1b2c3]", uids)
	}
}

func TestSplitIssuePrefix(t *testing.T) {
	nodeID, body, ok := SplitIssuePrefix("[abc12345] Lei(s) citada(s) não aparecem nas evidências: 8.112/90")
	if !ok {
		t.Fatalf("expected prefix match")
	}
	if nodeID != "abc12345" {
		t.Fatalf("nodeID = %q", nodeID)
	}
	if body != "Lei(s) citada(s) não aparecem nas evidências: 8.112/90" {
		t.Fatalf("body = %q", body)
	}
}

func TestSplitIssuePrefixNoPrefix(t *testing.T) {
	if _, _, ok := SplitIssuePrefix("sem prefixo nenhum"); ok {
		t.Fatalf("expected no match")
	}
}

func TestHasRewriteMarker(t *testing.T) {
	if HasRewriteMarker("qual o prazo de apelação?") {
		t.Fatalf("unexpected marker")
	}
	if !HasRewriteMarker("qual o prazo de apelação? [busca-refinada: prazo recurso]") {
		t.Fatalf("expected marker")
	}
}
