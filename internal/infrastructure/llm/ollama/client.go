package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/brlaw-ai/evidence-pipeline/internal/core/domain"
	"github.com/brlaw-ai/evidence-pipeline/internal/core/usecase"
	"github.com/brlaw-ai/evidence-pipeline/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// Embedder builds query vectors for semantic search.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return response.Embeddings[0], nil
}

// Judge is the low-temperature consistency judge. It returns the raw model
// output; the verifier owns parsing and fallbacks.
type Judge struct {
	client *Client
}

func NewJudge(client *Client) *Judge {
	return &Judge{client: client}
}

func (j *Judge) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  j.client.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"temperature": 0.0,
		},
	}
	return j.client.generate(ctx, reqBody)
}

// Reasoner generates one grounded sub-answer citing evidence through the
// [ref:ID]/[path:ID] marker protocol.
type Reasoner struct {
	client *Client
}

func NewReasoner(client *Client) *Reasoner {
	return &Reasoner{client: client}
}

func (r *Reasoner) Answer(ctx context.Context, question domain.SubQuestion, evidence domain.Evidence) (domain.SubAnswer, error) {
	reqBody := map[string]any{
		"model":  r.client.genModel,
		"prompt": buildAnswerPrompt(question.Text, evidence),
		"stream": false,
		"options": map[string]any{
			"temperature": 0.2,
		},
	}
	text, err := r.client.generate(ctx, reqBody)
	if err != nil {
		return domain.SubAnswer{}, err
	}
	return domain.SubAnswer{
		NodeID:       question.NodeID,
		Question:     question.Text,
		Answer:       text,
		EvidenceRefs: usecase.ParseRefMarkers(text),
	}, nil
}

func buildAnswerPrompt(question string, evidence domain.Evidence) string {
	return fmt.Sprintf(`Você é um assistente jurídico. Responda à pergunta usando SOMENTE as evidências abaixo.
Cite cada trecho usado com o marcador [ref:ID] correspondente e cada caminho do grafo com [path:ID].
Se as evidências não bastarem, responda exatamente: "Não há elementos suficientes nas evidências recuperadas para responder."

Pergunta:
%s

Evidências:
%s`, question, usecase.RenderEvidence(evidence))
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
