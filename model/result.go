package model

import "github.com/google/uuid"

// Markers used in place of generated prose when the engine cannot or
// will not answer from the corpus.
const (
	AnswerUnavailableMarker = "answer unavailable, showing sources"
	CannotAnswerMarker      = "cannot answer from corpus"
)

// RetrievalResult represents a chunk retrieved by a query
type RetrievalResult struct {
	Chunk         *Chunk          `json:"chunk"`
	DocumentTitle string          `json:"document_title"`
	Score         float64         `json:"score"`      // Fused score used for ranking
	Similarity    float64         `json:"similarity"` // Vector component in [0,1]
	Lexical       float64         `json:"lexical"`    // Full-text component in [0,1)
	Popularity    float64         `json:"popularity"` // Tie-break signal
	Method        RetrievalMethod `json:"retrieval_method"`
}

// ContextPassage is one packed entry of an assembled context.
type ContextPassage struct {
	Chunk         *Chunk          `json:"chunk"`
	DocumentRID   uuid.UUID       `json:"document_rid"`
	DocumentTitle string          `json:"document_title"`
	Score         float64         `json:"score"`
	Method        RetrievalMethod `json:"retrieval_method"`
}

// AssembledContext is the ordered context list handed to generation,
// plus the citation universe it draws from.
type AssembledContext struct {
	Passages []ContextPassage `json:"passages"`
	Universe []uuid.UUID      `json:"universe"` // Document RIDs, in first-appearance order
	Budget   int              `json:"budget"`
	Used     int              `json:"used"`
}

// ContainsDocument reports whether rid is part of the citation universe.
func (c *AssembledContext) ContainsDocument(rid uuid.UUID) bool {
	for _, u := range c.Universe {
		if u == rid {
			return true
		}
	}
	return false
}

// Source is a document reference shown when an answer degrades to a
// source list, and alongside regular answers.
type Source struct {
	DocumentRID uuid.UUID `json:"document_rid"`
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet,omitempty"`
	Score       float64   `json:"score"`
}

// Answer is the result of a single ask turn.
type Answer struct {
	ConversationRID  uuid.UUID   `json:"conversation_rid"`
	MessageRID       *uuid.UUID  `json:"message_rid,omitempty"`
	Content          string      `json:"content"`
	Degraded         bool        `json:"degraded"`
	Citations        []uuid.UUID `json:"citations"`
	UsedContext      []uuid.UUID `json:"used_context"`
	Sources          []Source    `json:"sources,omitempty"`
	Model            string      `json:"model,omitempty"`
	PromptTokens     int         `json:"prompt_tokens,omitempty"`
	CompletionTokens int         `json:"completion_tokens,omitempty"`
	Confidence       float64     `json:"confidence"`
}
