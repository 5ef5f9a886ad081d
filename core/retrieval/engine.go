package retrieval

import (
	"context"

	"github.com/siherrmann/counsel/model"
)

// VectorIndex is the vector access path of the hybrid retriever,
// satisfied by database.ChunksDBHandler. Results carry the similarity
// as 1 - cosine distance in [0,1], closest first.
type VectorIndex interface {
	SelectChunksBySimilarity(embedding []float32, limit int, filters model.Filters) ([]*model.RetrievalResult, error)
}

// LexicalIndex is the full text access path of the hybrid retriever,
// satisfied by database.ChunksDBHandler. Results carry the normalized
// ts_rank_cd in [0,1), best rank first.
type LexicalIndex interface {
	SelectChunksByText(query string, limit int, filters model.Filters) ([]*model.RetrievalResult, error)
}

// Engine provides hybrid retrieval over the vector and lexical access
// paths. Both paths only see ready chunks with a non-null embedding, so
// retrieval never observes a partially indexed document.
type Engine struct {
	vector  VectorIndex
	lexical LexicalIndex
}

// NewEngine creates a new retrieval engine
func NewEngine(vector VectorIndex, lexical LexicalIndex) *Engine {
	return &Engine{
		vector:  vector,
		lexical: lexical,
	}
}

// VectorRetrieve performs pure vector similarity search. Results below
// the configured threshold are discarded.
func (e *Engine) VectorRetrieve(ctx context.Context, embedding []float32, config model.RetrievalConfig) ([]*model.RetrievalResult, error) {
	candidates, err := e.vector.SelectChunksBySimilarity(embedding, config.TopK, config.Filters)
	if err != nil {
		return nil, err
	}

	var results []*model.RetrievalResult
	for _, result := range candidates {
		result.Score = result.Similarity
		result.Chunk.Score = result.Score
		if result.Score < config.Threshold {
			continue
		}
		results = append(results, result)
	}

	return results, nil
}

// LexicalRetrieve performs pure full text search. Results below the
// configured threshold are discarded.
func (e *Engine) LexicalRetrieve(ctx context.Context, query string, config model.RetrievalConfig) ([]*model.RetrievalResult, error) {
	candidates, err := e.lexical.SelectChunksByText(query, config.TopK, config.Filters)
	if err != nil {
		return nil, err
	}

	var results []*model.RetrievalResult
	for _, result := range candidates {
		result.Score = result.Lexical
		result.Chunk.Score = result.Score
		if result.Score < config.Threshold {
			continue
		}
		results = append(results, result)
	}

	return results, nil
}
