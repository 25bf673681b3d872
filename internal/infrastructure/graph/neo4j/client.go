package neo4j

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/brlaw-ai/evidence-pipeline/internal/core/domain"
)

// Client reads the legal knowledge graph: theme nodes, entity-linked chunks,
// bounded multi-hop paths and the fulltext fallback index. All methods are
// read-only and safe for concurrent use.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
}

func New(ctx context.Context, uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Client{driver: driver, database: database}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) MatchThemeNodes(ctx context.Context, tenantID, theme string, limit int) ([]domain.ThemeNode, error) {
	const query = `
MATCH (t:Theme)
WHERE t.tenant_id = $tenant_id
  AND (toLower(t.name) CONTAINS toLower($theme) OR toLower($theme) CONTAINS toLower(t.name))
OPTIONAL MATCH (t)-[:COVERS]->(n)
RETURN t.id AS id, t.name AS name, count(n) AS related_count
ORDER BY related_count DESC
LIMIT $limit`

	result, err := c.run(ctx, query, map[string]any{
		"tenant_id": tenantID,
		"theme":     theme,
		"limit":     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("match theme nodes: %w", err)
	}

	nodes := make([]domain.ThemeNode, 0, len(result.Records))
	for _, record := range result.Records {
		nodes = append(nodes, domain.ThemeNode{
			ID:           recordString(record, "id"),
			Name:         recordString(record, "name"),
			RelatedCount: int(recordInt(record, "related_count")),
		})
	}
	return nodes, nil
}

func (c *Client) ChunksByEntities(ctx context.Context, tenantID string, entityIDs []string, limit int) ([]domain.EvidenceChunk, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	const query = `
MATCH (e:Entity)-[:MENTIONED_IN]->(c:Chunk)
WHERE e.id IN $entity_ids AND c.tenant_id = $tenant_id
RETURN DISTINCT c.uid AS uid, c.text AS text, c.doc_id AS doc_id, c.source_type AS source_type
LIMIT $limit`

	result, err := c.run(ctx, query, map[string]any{
		"entity_ids": entityIDs,
		"tenant_id":  tenantID,
		"limit":      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("chunks by entities: %w", err)
	}
	return chunksFromRecords(result.Records, 1.0), nil
}

func (c *Client) TraversePaths(ctx context.Context, tenantID string, entityIDs []string, maxHops, limit int) ([]domain.GraphPath, []domain.GraphTriple, error) {
	if len(entityIDs) == 0 {
		return nil, nil, nil
	}
	if maxHops < 1 {
		maxHops = 1
	}
	if maxHops > 4 {
		maxHops = 4
	}

	// Variable-length bounds cannot be parameterized in Cypher; maxHops is
	// clamped above before interpolation.
	query := fmt.Sprintf(`
MATCH p = (e:Entity)-[*1..%d]-(n)
WHERE e.id IN $entity_ids AND e.tenant_id = $tenant_id
RETURN
  [node IN nodes(p) | node.id] AS node_ids,
  [node IN nodes(p) | coalesce(node.name, node.id)] AS node_names,
  [rel IN relationships(p) | type(rel)] AS rel_types
LIMIT $limit`, maxHops)

	result, err := c.run(ctx, query, map[string]any{
		"entity_ids": entityIDs,
		"tenant_id":  tenantID,
		"limit":      limit,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("traverse paths: %w", err)
	}

	paths := make([]domain.GraphPath, 0, len(result.Records))
	triples := make([]domain.GraphTriple, 0, len(result.Records))
	for _, record := range result.Records {
		nodeIDs := recordStringList(record, "node_ids")
		nodeNames := recordStringList(record, "node_names")
		relTypes := recordStringList(record, "rel_types")
		if len(nodeIDs) < 2 || len(relTypes) == 0 {
			continue
		}

		paths = append(paths, domain.GraphPath{
			PathUID: domain.PathUID(nodeIDs, relTypes),
			Text:    renderPathText(nodeNames, relTypes),
		})

		for i := 0; i < len(relTypes) && i+1 < len(nodeIDs); i++ {
			triples = append(triples, domain.GraphTriple{
				FromID:   nodeIDs[i],
				From:     nodeNames[i],
				Relation: relTypes[i],
				ToID:     nodeIDs[i+1],
				To:       nodeNames[i+1],
				Text:     fmt.Sprintf("(%s)-[%s]->(%s)", nodeNames[i], relTypes[i], nodeNames[i+1]),
			})
		}
	}
	return paths, triples, nil
}

func (c *Client) SearchFulltext(ctx context.Context, tenantID, query string, limit int) ([]domain.EvidenceChunk, error) {
	const cypher = `
CALL db.index.fulltext.queryNodes('chunk_text', $query) YIELD node, score
WHERE node.tenant_id = $tenant_id
RETURN node.uid AS uid, node.text AS text, node.doc_id AS doc_id, node.source_type AS source_type, score
LIMIT $limit`

	result, err := c.run(ctx, cypher, map[string]any{
		"query":     sanitizeFulltextQuery(query),
		"tenant_id": tenantID,
		"limit":     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("graph fulltext search: %w", err)
	}

	chunks := make([]domain.EvidenceChunk, 0, len(result.Records))
	for _, record := range result.Records {
		chunk := chunkFromRecord(record, 0)
		if score, ok := record.Get("score"); ok {
			if f, ok := score.(float64); ok {
				chunk.Score = f
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (c *Client) run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(ctx, c.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(c.database),
		neo4j.ExecuteQueryWithReadersRouting(),
	)
}

func chunksFromRecords(records []*neo4j.Record, score float64) []domain.EvidenceChunk {
	chunks := make([]domain.EvidenceChunk, 0, len(records))
	for _, record := range records {
		chunks = append(chunks, chunkFromRecord(record, score))
	}
	return chunks
}

func chunkFromRecord(record *neo4j.Record, score float64) domain.EvidenceChunk {
	return domain.EvidenceChunk{
		ChunkUID:   recordString(record, "uid"),
		Text:       recordString(record, "text"),
		DocID:      recordString(record, "doc_id"),
		SourceType: recordString(record, "source_type"),
		Score:      score,
	}
}

func renderPathText(nodeNames, relTypes []string) string {
	var b strings.Builder
	for i, name := range nodeNames {
		if i > 0 && i-1 < len(relTypes) {
			fmt.Fprintf(&b, "-[%s]->", relTypes[i-1])
		}
		fmt.Fprintf(&b, "(%s)", name)
	}
	return b.String()
}

// sanitizeFulltextQuery strips Lucene operators so raw question text cannot
// break the fulltext parser.
func sanitizeFulltextQuery(query string) string {
	replacer := strings.NewReplacer(
		`+`, " ", `-`, " ", `&`, " ", `|`, " ", `!`, " ", `(`, " ", `)`, " ",
		`{`, " ", `}`, " ", `[`, " ", `]`, " ", `^`, " ", `"`, " ", `~`, " ",
		`*`, " ", `?`, " ", `:`, " ", `\`, " ", `/`, " ",
	)
	return strings.Join(strings.Fields(replacer.Replace(query)), " ")
}

func recordString(record *neo4j.Record, key string) string {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

func recordInt(record *neo4j.Record, key string) int64 {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return 0
	}
	if n, ok := value.(int64); ok {
		return n
	}
	return 0
}

func recordStringList(record *neo4j.Record, key string) []string {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return nil
	}
	raw, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		} else {
			out = append(out, fmt.Sprintf("%v", item))
		}
	}
	return out
}
