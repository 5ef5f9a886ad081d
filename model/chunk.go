package model

import (
	"time"

	"github.com/google/uuid"
)

// ChunkStatus is the embedding lifecycle state of a chunk.
// Only ready chunks are eligible for retrieval.
type ChunkStatus string

const (
	ChunkStatusPending ChunkStatus = "pending"
	ChunkStatusReady   ChunkStatus = "ready"
	ChunkStatusError   ChunkStatus = "error"
)

// RetrievalMethod records how a chunk entered a result set.
type RetrievalMethod string

const (
	RetrievalMethodVector  RetrievalMethod = "vector"
	RetrievalMethodLexical RetrievalMethod = "lexical"
	RetrievalMethodHybrid  RetrievalMethod = "hybrid"
	RetrievalMethodRelated RetrievalMethod = "related"
)

// Chunk represents a bounded text segment of a document, the unit of
// embedding and retrieval. StartPos/EndPos are byte offsets into the
// owning document's content; adjacent chunks share an overlap window.
type Chunk struct {
	ID              int64       `json:"id"`
	RID             uuid.UUID   `json:"rid"`
	DocumentID      int64       `json:"document_id"`
	DocumentRID     uuid.UUID   `json:"document_rid"`
	DocumentVersion int         `json:"document_version"`
	ChunkIndex      int         `json:"chunk_index"`
	StartPos        int         `json:"start_pos"`
	EndPos          int         `json:"end_pos"`
	Content         string      `json:"content"`
	Embedding       []float32   `json:"embedding,omitempty"`
	Status          ChunkStatus `json:"status"`
	Attempts        int         `json:"attempts"`
	NextRetryAt     *time.Time  `json:"next_retry_at,omitempty"`
	LastError       string      `json:"last_error,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	// Results
	Similarity  float64         `json:"similarity,omitempty"`
	LexicalRank float64         `json:"lexical_rank,omitempty"`
	Score       float64         `json:"score,omitempty"`
	Method      RetrievalMethod `json:"retrieval_method,omitempty"`
}
