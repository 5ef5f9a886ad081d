package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAIConfig configures the remote embedding client. Zero values fall
// back to the OpenAI API with the small embedding model.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// OpenAIEmbedder creates an embedder backed by an OpenAI-compatible
// embeddings endpoint. Failures surface as errors without internal
// retries, the indexer owns the retry and backoff policy.
func OpenAIEmbedder(config OpenAIConfig) EmbedFunc {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com"
	}
	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}
	if config.Client == nil {
		config.Client = &http.Client{Timeout: 60 * time.Second}
	}

	return func(ctx context.Context, texts []string) ([][]float32, error) {
		if len(texts) == 0 {
			return [][]float32{}, nil
		}

		data, err := json.Marshal(embeddingRequest{Model: config.Model, Input: texts})
		if err != nil {
			return nil, err
		}

		url := config.BaseURL + "/v1/embeddings"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+config.APIKey)
		}

		resp, err := config.Client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("embedding request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading embedding response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("embedding API error %d: %s", resp.StatusCode, string(respBody))
		}

		var parsed embeddingResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, fmt.Errorf("decoding embedding response: %w", err)
		}

		// Sort by index to ensure correct ordering
		embeddings := make([][]float32, len(texts))
		for _, d := range parsed.Data {
			if d.Index >= 0 && d.Index < len(embeddings) {
				embeddings[d.Index] = d.Embedding
			}
		}
		for i, embedding := range embeddings {
			if embedding == nil {
				return nil, fmt.Errorf("missing embedding for input %d", i)
			}
		}
		return embeddings, nil
	}
}
