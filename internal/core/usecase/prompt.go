package usecase

import (
	"fmt"
	"strings"

	"github.com/brlaw-ai/evidence-pipeline/internal/core/domain"
)

const (
	maxPromptChunks     = 12
	maxPromptChunkChars = 600
	maxPromptPaths      = 20
	maxPromptTriples    = 30
)

// RenderEvidence produces the compact evidence listing shared by the judge
// prompt and the reasoner: each chunk carries its [ref:ID], each path its
// [path:ID], so answers can cite them with the marker protocol.
func RenderEvidence(ev domain.Evidence) string {
	var b strings.Builder

	chunks := make([]domain.EvidenceChunk, 0, len(ev.LocalResults)+len(ev.ChunkResults))
	chunks = append(chunks, ev.LocalResults...)
	chunks = append(chunks, ev.ChunkResults...)
	if len(chunks) > maxPromptChunks {
		chunks = chunks[:maxPromptChunks]
	}
	if len(chunks) > 0 {
		b.WriteString("Trechos:\n")
		for _, chunk := range chunks {
			text := truncateRunes(strings.TrimSpace(chunk.Text), maxPromptChunkChars)
			fmt.Fprintf(&b, "- [ref:%s] (%s) %s\n", chunk.Key(), chunk.Source, text)
		}
	}

	paths := ev.GraphPaths
	if len(paths) > maxPromptPaths {
		paths = paths[:maxPromptPaths]
	}
	if len(paths) > 0 {
		b.WriteString("Caminhos do grafo:\n")
		for _, path := range paths {
			fmt.Fprintf(&b, "- [path:%s] %s\n", path.PathUID, strings.TrimSpace(path.Text))
		}
	}

	triples := ev.GraphTriples
	if len(triples) > maxPromptTriples {
		triples = triples[:maxPromptTriples]
	}
	if len(triples) > 0 {
		b.WriteString("Relações:\n")
		for _, triple := range triples {
			text := triple.Text
			if text == "" {
				text = fmt.Sprintf("(%s)-[%s]->(%s)", triple.From, triple.Relation, triple.To)
			}
			fmt.Fprintf(&b, "- %s\n", text)
		}
	}

	if b.Len() == 0 {
		return "(nenhuma evidência recuperada)"
	}
	return b.String()
}

// truncateRunes cuts on a rune boundary so accented text stays valid UTF-8.
func truncateRunes(text string, max int) string {
	if len(text) <= max {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

// BuildJudgePrompt asks the low-temperature judge for a structured verdict.
func BuildJudgePrompt(question, answer string, ev domain.Evidence) string {
	return fmt.Sprintf(`Você é um verificador de consistência para respostas jurídicas.
Compare a resposta com as evidências e retorne APENAS um objeto JSON válido:
{"is_consistent":true|false,"confidence":0.0,"issues":["..."],"requires_new_search":true|false,"suggestion":"..."}

Regras:
- "is_consistent" é false se a resposta afirma algo sem apoio nas evidências.
- "issues" descreve cada afirmação sem suporte, uma por item.
- "requires_new_search" é true se novas evidências resolveriam os problemas.

Pergunta:
%s

Resposta:
%s

Evidências:
%s`, question, answer, RenderEvidence(ev))
}
