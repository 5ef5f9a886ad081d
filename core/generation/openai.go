package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIClient talks to an OpenAI compatible chat and embedding API.
// It works against OpenAI itself and against local gateways exposing
// the same surface (Ollama, LM Studio, vLLM).
type OpenAIClient struct {
	config Config
	client *http.Client
}

// NewOpenAIClient creates a new client. The HTTP timeout is generous
// because local providers may load a model on the first request;
// request level deadlines come from the caller's context.
func NewOpenAIClient(config Config) (*OpenAIClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	return &OpenAIClient{
		config: config,
		client: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Chat sends a single chat completion request. An empty request model
// falls back to the configured one.
func (c *OpenAIClient) Chat(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
	chatModel := request.Model
	if chatModel == "" {
		chatModel = c.config.Model
	}

	body := chatCompletionRequest{
		Model:       chatModel,
		Messages:    request.Messages,
		Temperature: request.Temperature,
		MaxTokens:   request.MaxTokens,
	}

	responseBody, err := c.doPost(ctx, "/v1/chat/completions", body)
	if err != nil {
		return nil, err
	}

	response := &chatCompletionResponse{}
	err = json.Unmarshal(responseBody, response)
	if err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no choices in chat response")
	}

	return &ChatResponse{
		Content:          response.Choices[0].Message.Content,
		Model:            response.Model,
		FinishReason:     response.Choices[0].FinishReason,
		PromptTokens:     response.Usage.PromptTokens,
		CompletionTokens: response.Usage.CompletionTokens,
		TotalTokens:      response.Usage.TotalTokens,
	}, nil
}

func (c *OpenAIClient) doPost(ctx context.Context, path string, body interface{}) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + path
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		request.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	response, err := c.client.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generation api error %d: %s", response.StatusCode, string(responseBody))
	}

	return responseBody, nil
}
