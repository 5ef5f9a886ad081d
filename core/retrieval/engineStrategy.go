package retrieval

import (
	"bytes"
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/counsel/model"
)

// Retrieve performs hybrid retrieval: both access paths are queried with
// the configured pool size, scores are fused linearly with the configured
// weights, candidates below the threshold are discarded, documents are
// deduplicated down to MaxChunksPerDocument chunks and the top K results
// are returned. Ties break by document popularity, then document RID.
//
// An access path with a zero weight or an empty input is skipped, so a
// missing query embedding degrades to lexical-only retrieval. An empty
// result means nothing scored above the threshold, not an error.
func (e *Engine) Retrieve(ctx context.Context, embedding []float32, query string, config model.RetrievalConfig) ([]*model.RetrievalResult, error) {
	var vectorResults []*model.RetrievalResult
	var lexicalResults []*model.RetrievalResult
	var err error

	if config.VectorWeight > 0 && len(embedding) > 0 {
		vectorResults, err = e.vector.SelectChunksBySimilarity(embedding, config.PoolSize, config.Filters)
		if err != nil {
			return nil, err
		}
	}

	if config.LexicalWeight > 0 && strings.TrimSpace(query) != "" {
		lexicalResults, err = e.lexical.SelectChunksByText(query, config.PoolSize, config.Filters)
		if err != nil {
			return nil, err
		}
	}

	results := e.fuseResults(vectorResults, lexicalResults, config)
	e.rankResults(results)
	results = e.dedupeByDocument(results, config.MaxChunksPerDocument)

	// Limit to top-k
	if config.TopK > 0 && len(results) > config.TopK {
		results = results[:config.TopK]
	}

	return results, nil
}

// fuseResults merges the two candidate pools on chunk RID and computes
// the fused score. Chunks found by both paths become hybrid results,
// chunks below the threshold are dropped.
func (e *Engine) fuseResults(vectorResults []*model.RetrievalResult, lexicalResults []*model.RetrievalResult, config model.RetrievalConfig) []*model.RetrievalResult {
	resultMap := make(map[uuid.UUID]*model.RetrievalResult)
	var order []uuid.UUID

	for _, result := range vectorResults {
		resultMap[result.Chunk.RID] = result
		order = append(order, result.Chunk.RID)
	}

	for _, result := range lexicalResults {
		if existing, exists := resultMap[result.Chunk.RID]; exists {
			existing.Lexical = result.Lexical
			existing.Method = model.RetrievalMethodHybrid
		} else {
			resultMap[result.Chunk.RID] = result
			order = append(order, result.Chunk.RID)
		}
	}

	var results []*model.RetrievalResult
	for _, rid := range order {
		result := resultMap[rid]
		result.Score = config.VectorWeight*result.Similarity + config.LexicalWeight*result.Lexical
		result.Chunk.Score = result.Score
		result.Chunk.LexicalRank = result.Lexical
		result.Chunk.Method = result.Method

		if result.Score < config.Threshold {
			continue
		}
		results = append(results, result)
	}

	return results
}

// rankResults sorts by fused score, breaking ties by document popularity
// and finally by document RID for a deterministic order.
func (e *Engine) rankResults(results []*model.RetrievalResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Popularity != results[j].Popularity {
			return results[i].Popularity > results[j].Popularity
		}
		a, b := results[i].Chunk.DocumentRID, results[j].Chunk.DocumentRID
		return bytes.Compare(a[:], b[:]) < 0
	})
}

// dedupeByDocument keeps at most maxPerDocument chunks per document.
// Results must already be ranked so the kept chunks are the best ones.
func (e *Engine) dedupeByDocument(results []*model.RetrievalResult, maxPerDocument int) []*model.RetrievalResult {
	if maxPerDocument <= 0 {
		maxPerDocument = 1
	}

	counts := make(map[uuid.UUID]int)
	var deduped []*model.RetrievalResult
	for _, result := range results {
		if counts[result.Chunk.DocumentRID] >= maxPerDocument {
			continue
		}
		counts[result.Chunk.DocumentRID]++
		deduped = append(deduped, result)
	}

	return deduped
}
