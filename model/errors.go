package model

import "errors"

// Sentinel errors returned by the store and engine.
// Database handlers map SQL-level violations onto these so callers can
// test with errors.Is instead of string matching.
var (
	ErrNotFound             = errors.New("counsel: not found")
	ErrVersionConflict      = errors.New("counsel: document version conflict")
	ErrCategoryCycle        = errors.New("counsel: category move would create a cycle")
	ErrSlugExists           = errors.New("counsel: category slug already exists")
	ErrCategoryNotEmpty     = errors.New("counsel: category has children or documents")
	ErrSelfRelation         = errors.New("counsel: relation source and target are the same document")
	ErrRelationExists       = errors.New("counsel: relation already exists for (source, target, type)")
	ErrRoleSequence         = errors.New("counsel: message role sequence violation")
	ErrConversationArchived = errors.New("counsel: conversation is archived")
	ErrOwnerRequired        = errors.New("counsel: conversation owner required")
	ErrInvalidDocumentType  = errors.New("counsel: invalid document type")
	ErrInvalidRelationType  = errors.New("counsel: invalid relation type")
	ErrInvalidRole          = errors.New("counsel: invalid message role")
	ErrInvalidFeedback      = errors.New("counsel: feedback needs a message or document target")
	ErrEmbeddingDimension   = errors.New("counsel: embedding dimension mismatch")
	ErrPipelineNotSet       = errors.New("counsel: pipeline not set")
	ErrProviderNotSet       = errors.New("counsel: generation provider not set")
)
