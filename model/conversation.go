package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConversationStatus is the conversation lifecycle state.
// Archived is terminal and read-only.
type ConversationStatus string

const (
	ConversationStatusOpen     ConversationStatus = "open"
	ConversationStatusArchived ConversationStatus = "archived"
)

// DefaultOwner is assigned to conversations started without an
// explicit owner.
const DefaultOwner = "anonymous"

// MessageRole is the closed enumeration of message roles.
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Valid reports whether r is a member of the closed role enumeration.
func (r MessageRole) Valid() bool {
	switch r {
	case MessageRoleSystem, MessageRoleUser, MessageRoleAssistant:
		return true
	}
	return false
}

// Conversation represents a multi-turn session owned by a requesting
// principal, optionally scoped to a set of context documents.
type Conversation struct {
	ID                  int64              `json:"id"`
	RID                 uuid.UUID          `json:"rid"`
	Owner               string             `json:"owner,omitempty"`
	Title               string             `json:"title,omitempty"`
	Status              ConversationStatus `json:"status"`
	ContextDocumentRIDs []uuid.UUID        `json:"context_document_rids,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
	ArchivedAt          *time.Time         `json:"archived_at,omitempty"`
}

// Message is an append-only conversation entry, strictly ordered by
// creation within its conversation. Assistant messages carry the exact
// document set used to ground the reply plus generation metadata.
type Message struct {
	ID               int64       `json:"id"`
	RID              uuid.UUID   `json:"rid"`
	ConversationID   int64       `json:"conversation_id"`
	Role             MessageRole `json:"role"`
	Content          string      `json:"content"`
	GroundingRIDs    []uuid.UUID `json:"grounding_rids,omitempty"`
	Model            string      `json:"model,omitempty"`
	PromptTokens     int         `json:"prompt_tokens,omitempty"`
	CompletionTokens int         `json:"completion_tokens,omitempty"`
	Confidence       float64     `json:"confidence,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// FeedbackType is the closed enumeration of feedback kinds.
type FeedbackType string

const (
	FeedbackTypeRating     FeedbackType = "rating"
	FeedbackTypeHelpful    FeedbackType = "helpful"
	FeedbackTypeUnhelpful  FeedbackType = "unhelpful"
	FeedbackTypeCorrection FeedbackType = "correction"
)

// Valid reports whether t is a member of the closed feedback enumeration.
func (t FeedbackType) Valid() bool {
	switch t {
	case FeedbackTypeRating, FeedbackTypeHelpful, FeedbackTypeUnhelpful, FeedbackTypeCorrection:
		return true
	}
	return false
}

// Feedback attaches a rating or comment to a message and/or document.
// It never mutates history; the async aggregator folds it into
// SearchMetadata relevance scores.
type Feedback struct {
	ID          int64        `json:"id"`
	RID         uuid.UUID    `json:"rid"`
	MessageRID  *uuid.UUID   `json:"message_rid,omitempty"`
	DocumentRID *uuid.UUID   `json:"document_rid,omitempty"`
	Type        FeedbackType `json:"type"`
	Rating      *int         `json:"rating,omitempty"`
	Comment     string       `json:"comment,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Validate checks the feedback before any database write.
func (f *Feedback) Validate() error {
	if f.MessageRID == nil && f.DocumentRID == nil {
		return fmt.Errorf("%w: message or document target required", ErrInvalidFeedback)
	}
	if !f.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidFeedback, f.Type)
	}
	if f.Type == FeedbackTypeRating {
		if f.Rating == nil {
			return fmt.Errorf("%w: rating feedback needs a rating value", ErrInvalidFeedback)
		}
		if *f.Rating < 1 || *f.Rating > 5 {
			return fmt.Errorf("%w: rating %d outside 1..5", ErrInvalidFeedback, *f.Rating)
		}
	}
	return nil
}

// RelevanceDelta maps the feedback to the relevance score shift applied
// to every grounding document of the rated answer. A rating of 3 is
// neutral, corrections count mildly negative.
func (f *Feedback) RelevanceDelta() float64 {
	switch f.Type {
	case FeedbackTypeHelpful:
		return 0.05
	case FeedbackTypeUnhelpful:
		return -0.05
	case FeedbackTypeCorrection:
		return -0.025
	case FeedbackTypeRating:
		if f.Rating == nil {
			return 0
		}
		return float64(*f.Rating-3) * 0.025
	}
	return 0
}

// ClaimedFeedback is an unprocessed feedback row claimed by the
// aggregator, carrying the grounding documents of the rated message so
// relevance changes can be attributed.
type ClaimedFeedback struct {
	Feedback
	GroundingRIDs []uuid.UUID `json:"grounding_rids,omitempty"`
}
