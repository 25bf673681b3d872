package usecase

import (
	"github.com/brlaw-ai/evidence-pipeline/internal/core/domain"
)

// mergeEvidence is the fan-in: per-question evidence keeps its own results,
// while the pass-wide pools are deduplicated across the entire question set.
// Chunks collapse on ChunkUID (content hash when absent), triples on the
// (from, relation, to) tuple, paths on PathUID. The first sub-question to
// produce a chunk is recorded on it; graph evidence is capped to bound
// downstream prompt size.
func mergeEvidence(ordered []domain.Evidence, graphCap int) domain.RetrieveResult {
	result := domain.RetrieveResult{
		EvidenceMap: make(domain.EvidenceMap, len(ordered)),
	}

	seenChunks := make(map[string]struct{})
	seenPaths := make(map[string]struct{})
	seenTriples := make(map[string]struct{})

	appendChunks := func(nodeID string, chunks []domain.EvidenceChunk) {
		for _, chunk := range chunks {
			key := chunk.Key()
			if _, ok := seenChunks[key]; ok {
				continue
			}
			seenChunks[key] = struct{}{}
			chunk.FirstNodeID = nodeID
			result.TextChunks = append(result.TextChunks, chunk)
		}
	}

	for _, ev := range ordered {
		result.EvidenceMap[ev.NodeID] = ev

		appendChunks(ev.NodeID, ev.LocalResults)
		appendChunks(ev.NodeID, ev.ChunkResults)

		for _, path := range ev.GraphPaths {
			if _, ok := seenPaths[path.PathUID]; ok {
				continue
			}
			seenPaths[path.PathUID] = struct{}{}
			if len(result.GraphPaths) < graphCap {
				result.GraphPaths = append(result.GraphPaths, path)
			}
		}
		for _, triple := range ev.GraphTriples {
			if _, ok := seenTriples[triple.Key()]; ok {
				continue
			}
			seenTriples[triple.Key()] = struct{}{}
			if len(result.GraphTriples) < graphCap {
				result.GraphTriples = append(result.GraphTriples, triple)
			}
		}
	}

	return result
}
