package qdrant

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

// globalTenant is the shared tenant searched alongside the caller's own
// collections in global scope.
const globalTenant = "global"

// Client is a read-only Qdrant search client for the semantic leg of the
// dual retriever.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// SearchCollections searches the global-scope collections: every configured
// collection is queried for the caller's tenant and for the shared "global"
// tenant, and the hits are concatenated.
func (c *Client) SearchCollections(
	ctx context.Context,
	queryVector []float32,
	collections []string,
	scope ports.CollectionScope,
	limit int,
) ([]domain.EvidenceChunk, error) {
	var out []domain.EvidenceChunk
	for _, collection := range collections {
		for _, tenant := range tenantsFor(scope.TenantID) {
			filter := map[string]any{
				"must": []map[string]any{
					{"key": "tenant_id", "match": map[string]any{"value": tenant}},
				},
			}
			if scope.Scope != "" {
				filter["must"] = append(filter["must"].([]map[string]any),
					map[string]any{"key": "scope", "match": map[string]any{"value": scope.Scope}})
			}
			hits, err := c.search(ctx, collection, queryVector, filter, limit)
			if err != nil {
				return nil, err
			}
			out = append(out, hits...)
		}
	}
	return out, nil
}

// SearchCaseCollection searches the local-scope collection, restricted to
// documents of the case that the user (directly or via groups) may see.
func (c *Client) SearchCaseCollection(
	ctx context.Context,
	queryVector []float32,
	collection string,
	scope ports.CaseScope,
	limit int,
) ([]domain.EvidenceChunk, error) {
	if collection == "" {
		return nil, nil
	}

	authorized := []map[string]any{
		{"key": "allowed_users", "match": map[string]any{"any": []string{scope.UserID}}},
	}
	if len(scope.GroupIDs) > 0 {
		authorized = append(authorized,
			map[string]any{"key": "allowed_groups", "match": map[string]any{"any": scope.GroupIDs}})
	}

	filter := map[string]any{
		"must": []map[string]any{
			{"key": "case_id", "match": map[string]any{"value": scope.CaseID}},
			{"bool": map[string]any{"should": authorized}},
		},
	}
	return c.search(ctx, collection, queryVector, filter, limit)
}

func (c *Client) search(
	ctx context.Context,
	collection string,
	queryVector []float32,
	filter map[string]any,
	limit int,
) ([]domain.EvidenceChunk, error) {
	if limit <= 0 {
		limit = 10
	}
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if filter != nil {
		reqBody["filter"] = filter
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreUnavailable, "qdrant search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant search status: %s", resp.Status)
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.EvidenceChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.EvidenceChunk{
			ChunkUID:   getStringPayload(r.Payload, "chunk_uid"),
			Text:       getStringPayload(r.Payload, "text"),
			DocID:      getStringPayload(r.Payload, "doc_id"),
			SourceType: getStringPayload(r.Payload, "source_type"),
			Score:      r.Score,
		})
	}
	return out, nil
}

func tenantsFor(tenantID string) []string {
	if tenantID == "" || tenantID == globalTenant {
		return []string{globalTenant}
	}
	return []string{tenantID, globalTenant}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
