package assembler

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/siherrmann/counsel/core/graph"
	"github.com/siherrmann/counsel/model"
)

// ChunkSource supplies the best chunk of a document for a query
// embedding. It is satisfied by retrieval.Engine.
type ChunkSource interface {
	VectorRetrieve(ctx context.Context, embedding []float32, config model.RetrievalConfig) ([]*model.RetrievalResult, error)
}

// Options bounds a single context assembly.
type Options struct {
	Budget           int // packed content bytes, <= 0 packs without a bound
	ExpansionDepth   int // relation hops from packed documents, 0 disables expansion
	ExpansionBreadth int // relations followed per document, <= 0 follows all
}

// Assembler packs retrieval candidates into a bounded generation
// context and fixes the citation universe for the turn.
type Assembler struct {
	chunks    ChunkSource
	relations graph.RelationSource
}

// NewAssembler creates a new context assembler. A nil relation source
// disables relation expansion.
func NewAssembler(chunks ChunkSource, relations graph.RelationSource) *Assembler {
	return &Assembler{
		chunks:    chunks,
		relations: relations,
	}
}

// Assemble greedily packs candidates by descending fused score. Chunks
// are packed whole, a chunk over the remaining budget is skipped and
// never truncated. With ExpansionDepth > 0 the relation graph around
// the packed documents is walked strongest first and every related
// document contributes its best chunk for the query embedding, budget
// permitting. The citation universe lists the packed documents in
// first appearance order.
func (a *Assembler) Assemble(ctx context.Context, candidates []*model.RetrievalResult, embedding []float32, options Options) (*model.AssembledContext, error) {
	assembled := &model.AssembledContext{Budget: options.Budget}

	ordered := make([]*model.RetrievalResult, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	packed := make(map[uuid.UUID]bool)
	universe := make(map[uuid.UUID]bool)

	for _, candidate := range ordered {
		if candidate.Chunk == nil || packed[candidate.Chunk.RID] {
			continue
		}
		if !a.fits(assembled, len(candidate.Chunk.Content)) {
			continue
		}

		packed[candidate.Chunk.RID] = true
		assembled.Used += len(candidate.Chunk.Content)
		assembled.Passages = append(assembled.Passages, model.ContextPassage{
			Chunk:         candidate.Chunk,
			DocumentRID:   candidate.Chunk.DocumentRID,
			DocumentTitle: candidate.DocumentTitle,
			Score:         candidate.Score,
			Method:        candidate.Method,
		})
		if !universe[candidate.Chunk.DocumentRID] {
			universe[candidate.Chunk.DocumentRID] = true
			assembled.Universe = append(assembled.Universe, candidate.Chunk.DocumentRID)
		}
	}

	if options.ExpansionDepth <= 0 || a.relations == nil || len(embedding) == 0 || len(assembled.Universe) == 0 {
		return assembled, nil
	}

	expansions, err := graph.Expand(ctx, a.relations, assembled.Universe, graph.ExpandOptions{
		Depth:   options.ExpansionDepth,
		Breadth: options.ExpansionBreadth,
	})
	if err != nil {
		return nil, err
	}

	for _, expansion := range expansions {
		if universe[expansion.DocumentRID] {
			continue
		}

		result, err := a.topChunk(ctx, embedding, expansion.DocumentRID)
		if err != nil {
			return nil, err
		}
		if result == nil || packed[result.Chunk.RID] {
			continue
		}
		if !a.fits(assembled, len(result.Chunk.Content)) {
			continue
		}

		packed[result.Chunk.RID] = true
		universe[expansion.DocumentRID] = true
		result.Chunk.Method = model.RetrievalMethodRelated
		assembled.Used += len(result.Chunk.Content)
		assembled.Passages = append(assembled.Passages, model.ContextPassage{
			Chunk:         result.Chunk,
			DocumentRID:   expansion.DocumentRID,
			DocumentTitle: result.DocumentTitle,
			Score:         result.Score,
			Method:        model.RetrievalMethodRelated,
		})
		assembled.Universe = append(assembled.Universe, expansion.DocumentRID)
	}

	return assembled, nil
}

// topChunk fetches the highest similarity chunk of a single document.
// Documents without ready chunks yield nil.
func (a *Assembler) topChunk(ctx context.Context, embedding []float32, documentRID uuid.UUID) (*model.RetrievalResult, error) {
	results, err := a.chunks.VectorRetrieve(ctx, embedding, model.RetrievalConfig{
		TopK:    1,
		Filters: model.Filters{DocumentRIDs: []uuid.UUID{documentRID}},
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 || results[0].Chunk == nil {
		return nil, nil
	}
	return results[0], nil
}

// fits reports whether size more bytes stay within the budget.
func (a *Assembler) fits(assembled *model.AssembledContext, size int) bool {
	return assembled.Budget <= 0 || assembled.Used+size <= assembled.Budget
}
