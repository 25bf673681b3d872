package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/brlaw-ai/evidence-pipeline/internal/core/domain"
	"github.com/brlaw-ai/evidence-pipeline/internal/core/ports"
)

// Client is a minimal OpenSearch search client for BM25 lexical retrieval.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Search runs a BM25 match query against the configured indices. The
// visibility rule: a document is visible when it belongs to the caller's
// tenant, is tagged "global", or carries no tenant tag at all.
func (c *Client) Search(
	ctx context.Context,
	query string,
	indices []string,
	vis ports.LexicalVisibility,
	limit int,
) ([]domain.EvidenceChunk, error) {
	if len(indices) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	reqBody := map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"must": []map[string]any{
					{"match": map[string]any{"text": query}},
				},
				"filter": []map[string]any{
					{"bool": map[string]any{
						"should": []map[string]any{
							{"term": map[string]any{"tenant_id": vis.TenantID}},
							{"term": map[string]any{"tenant_id": "global"}},
							{"bool": map[string]any{
								"must_not": []map[string]any{
									{"exists": map[string]any{"field": "tenant_id"}},
								},
							}},
						},
						"minimum_should_match": 1,
					}},
				},
			},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/%s/_search", c.baseURL, strings.Join(indices, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreUnavailable, "opensearch search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("opensearch search status: %s", resp.Status)
	}

	var searchResp struct {
		Hits struct {
			Hits []struct {
				ID     string          `json:"_id"`
				Score  float64         `json:"_score"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.EvidenceChunk, 0, len(searchResp.Hits.Hits))
	for _, hit := range searchResp.Hits.Hits {
		var source struct {
			ChunkUID   string `json:"chunk_uid"`
			Text       string `json:"text"`
			DocID      string `json:"doc_id"`
			SourceType string `json:"source_type"`
		}
		if err := json.Unmarshal(hit.Source, &source); err != nil {
			continue
		}
		uid := source.ChunkUID
		if uid == "" {
			uid = hit.ID
		}
		out = append(out, domain.EvidenceChunk{
			ChunkUID:   uid,
			Text:       source.Text,
			DocID:      source.DocID,
			SourceType: source.SourceType,
			Score:      hit.Score,
		})
	}
	return out, nil
}
