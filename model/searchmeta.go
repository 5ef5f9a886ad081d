package model

import (
	"time"

	"github.com/google/uuid"
)

// SearchMetadata holds per-document derived ranking signals.
// It is written only by asynchronous aggregation (access tracking and
// feedback), never on the retrieval read path. RelevanceScore and
// PopularityScore are tie-breakers in [0,1].
type SearchMetadata struct {
	DocumentID      int64      `json:"document_id"`
	DocumentRID     uuid.UUID  `json:"document_rid"`
	Keywords        []string   `json:"keywords,omitempty"`
	ClickCount      int        `json:"click_count"`
	LastAccessedAt  *time.Time `json:"last_accessed_at,omitempty"`
	RelevanceScore  float64    `json:"relevance_score"`
	PopularityScore float64    `json:"popularity_score"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
