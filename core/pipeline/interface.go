package pipeline

import (
	"context"
	"fmt"

	"github.com/siherrmann/counsel/model"
)

// ChunkFunc is a function that deterministically splits document content
// into fragments. Identical (text, configuration) pairs must produce
// byte-identical fragment boundaries.
type ChunkFunc func(text string) ([]Fragment, error)

// EmbedFunc is a function that generates embeddings for a batch of
// texts. The result holds one vector per input, in input order.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// KeywordFunc extracts the most significant terms of a text for the
// document-level search metadata.
type KeywordFunc func(text string, limit int) []string

// ReferenceFunc detects legal cross references (sections, articles,
// named acts) in text.
type ReferenceFunc func(text string) []Reference

// Fragment represents one chunk boundary produced by a ChunkFunc.
// StartPos and EndPos are byte offsets into the original text and
// Content is exactly text[StartPos:EndPos].
type Fragment struct {
	Content    string
	StartPos   int
	EndPos     int
	ChunkIndex int
}

// Reference is a detected legal cross reference. Key is the normalized
// form used to match against document titles and legal_refs attributes.
type Reference struct {
	Text string
	Kind string
	Key  string
}

// Pipeline combines the chunking, embedding and extraction functions of
// the indexing path. Keywords and References are optional.
type Pipeline struct {
	Chunker      ChunkFunc
	Embedder     EmbedFunc
	EmbeddingDim int
	Keywords     KeywordFunc
	References   ReferenceFunc
}

// NewPipeline creates a new processing pipeline.
func NewPipeline(chunker ChunkFunc, embedder EmbedFunc, embeddingDim int) *Pipeline {
	return &Pipeline{
		Chunker:      chunker,
		Embedder:     embedder,
		EmbeddingDim: embeddingDim,
	}
}

// SetKeywordExtractor sets the keyword extraction function.
func (p *Pipeline) SetKeywordExtractor(extractor KeywordFunc) {
	p.Keywords = extractor
}

// SetReferenceExtractor sets the legal reference detection function.
func (p *Pipeline) SetReferenceExtractor(extractor ReferenceFunc) {
	p.References = extractor
}

// Chunk splits text into model chunks without embeddings. The indexer
// uses this directly so it can batch and rate limit the embedding calls
// itself.
func (p *Pipeline) Chunk(text string) ([]*model.Chunk, error) {
	fragments, err := p.Chunker(text)
	if err != nil {
		return nil, err
	}

	chunks := make([]*model.Chunk, 0, len(fragments))
	for _, fragment := range fragments {
		chunks = append(chunks, &model.Chunk{
			ChunkIndex: fragment.ChunkIndex,
			StartPos:   fragment.StartPos,
			EndPos:     fragment.EndPos,
			Content:    fragment.Content,
		})
	}
	return chunks, nil
}

// Process splits text into chunks and embeds every chunk in a single
// batch. Used by the synchronous indexing path and by tests.
func (p *Pipeline) Process(ctx context.Context, text string) ([]*model.Chunk, error) {
	chunks, err := p.Chunk(text)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return chunks, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	embeddings, err := p.Embedder(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: got %d embeddings for %d chunks", len(embeddings), len(chunks))
	}

	for i, embedding := range embeddings {
		if p.EmbeddingDim > 0 && len(embedding) != p.EmbeddingDim {
			return nil, fmt.Errorf("%w: got %d, want %d", model.ErrEmbeddingDimension, len(embedding), p.EmbeddingDim)
		}
		chunks[i].Embedding = embedding
	}

	return chunks, nil
}
