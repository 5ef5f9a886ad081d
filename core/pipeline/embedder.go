package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/counsel/helper"
)

// DefaultEmbedderDim is the output dimension of the default local model.
const DefaultEmbedderDim = 384

// DefaultEmbedder creates an embedder backed by a local sentence
// transformer model. Uses all-MiniLM-L6-v2, which produces
// 384-dimensional embeddings, downloading it on first use.
func DefaultEmbedder() (EmbedFunc, error) {
	// Prepare model (download if needed)
	modelName := "sentence-transformers/all-MiniLM-L6-v2"
	modelPath, err := helper.PrepareModel(modelName, "")
	if err != nil {
		return nil, err
	}

	// Initialize hugot session with Go backend
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	return func(ctx context.Context, texts []string) ([][]float32, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(texts) == 0 {
			return [][]float32{}, nil
		}

		result, err := sentencePipeline.RunPipeline(texts)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(result.Embeddings) != len(texts) {
			return nil, fmt.Errorf("embedding count mismatch: got %d embeddings for %d texts", len(result.Embeddings), len(texts))
		}

		return result.Embeddings, nil
	}, nil
}

// CosineSimilarity calculates the cosine similarity between two
// embedding vectors.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float32
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
