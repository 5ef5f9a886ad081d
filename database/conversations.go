package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/siherrmann/counsel/helper"
	"github.com/siherrmann/counsel/model"
	loadSql "github.com/siherrmann/counsel/sql"
)

// ConversationsDBHandlerFunctions defines the interface for Conversations database operations.
type ConversationsDBHandlerFunctions interface {
	InsertConversation(conversation *model.Conversation) error
	SelectConversation(rid uuid.UUID) (*model.Conversation, error)
	SelectConversationsByOwner(owner string, limit int, offset int) ([]*model.Conversation, error)
	ArchiveConversation(rid uuid.UUID) (*model.Conversation, error)
	UpdateConversationContext(rid uuid.UUID, documentRIDs []uuid.UUID) (*model.Conversation, error)
	AppendMessage(conversationRID uuid.UUID, message *model.Message) error
	SelectMessages(conversationRID uuid.UUID, limit int) ([]*model.Message, error)
	SelectMessage(rid uuid.UUID) (*model.Message, error)
	InsertFeedback(feedback *model.Feedback) error
	SelectFeedbackForMessage(messageRID uuid.UUID) ([]*model.Feedback, error)
	ClaimUnprocessedFeedback(limit int) ([]*model.ClaimedFeedback, error)
}

// ConversationsDBHandler handles conversation-related database operations
type ConversationsDBHandler struct {
	db *helper.Database
}

// NewConversationsDBHandler creates a new conversations database handler.
// It initializes the database connection and loads conversation-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewConversationsDBHandler(db *helper.Database, force bool) (*ConversationsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	conversationsDbHandler := &ConversationsDBHandler{
		db: db,
	}

	err := loadSql.LoadConversationsSql(conversationsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load conversations sql", err)
	}

	err = conversationsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ConversationsDBHandler")

	return conversationsDbHandler, nil
}

// CreateTable creates the conversations, conversation_messages and
// feedback tables in the database.
// If the tables already exist, it does not create them again.
func (h *ConversationsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_conversations();`)
	if err != nil {
		log.Panicf("error initializing conversations tables: %#v", err)
	}

	h.db.Logger.Info("Checked/created tables conversations, conversation_messages, feedback")

	return nil
}

// InsertConversation inserts a new conversation for an owner, optionally
// scoped to a set of context documents.
func (h *ConversationsDBHandler) InsertConversation(conversation *model.Conversation) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_conversation($1, $2, $3)`,
		conversation.Owner,
		conversation.Title,
		pq.Array(conversation.ContextDocumentRIDs),
	)

	err := h.scanConversation(row, conversation)
	if err != nil {
		return helper.NewError("scan", mapError(err))
	}

	return nil
}

// SelectConversation retrieves a conversation by RID
func (h *ConversationsDBHandler) SelectConversation(rid uuid.UUID) (*model.Conversation, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_conversation($1)`,
		rid,
	)

	conversation := &model.Conversation{}
	err := h.scanConversation(row, conversation)
	if err != nil {
		return nil, helper.NewError("scan", mapError(err))
	}

	return conversation, nil
}

// SelectConversationsByOwner retrieves the conversations of an owner,
// most recently active first
func (h *ConversationsDBHandler) SelectConversationsByOwner(owner string, limit int, offset int) ([]*model.Conversation, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_conversations_by_owner($1, $2, $3)`,
		owner,
		limit,
		offset,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	var conversations []*model.Conversation
	for rows.Next() {
		conversation := &model.Conversation{}
		err := h.scanConversation(rows, conversation)
		if err != nil {
			return nil, helper.NewError("scan", mapError(err))
		}

		conversations = append(conversations, conversation)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", mapError(err))
	}

	return conversations, nil
}

// ArchiveConversation archives a conversation, making it read-only.
// Archiving is idempotent; archiving an archived conversation returns
// the archived row unchanged.
func (h *ConversationsDBHandler) ArchiveConversation(rid uuid.UUID) (*model.Conversation, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM archive_conversation($1)`,
		rid,
	)

	conversation := &model.Conversation{}
	err := h.scanConversation(row, conversation)
	if err != nil {
		return nil, helper.NewError("scan", mapError(err))
	}

	return conversation, nil
}

// UpdateConversationContext merges additional context documents into an
// open conversation. The stored set is deduplicated.
func (h *ConversationsDBHandler) UpdateConversationContext(rid uuid.UUID, documentRIDs []uuid.UUID) (*model.Conversation, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM update_conversation_context($1, $2)`,
		rid,
		pq.Array(documentRIDs),
	)

	conversation := &model.Conversation{}
	err := h.scanConversation(row, conversation)
	if err != nil {
		return nil, helper.NewError("scan", mapError(err))
	}

	return conversation, nil
}

// AppendMessage appends a message to an open conversation. The role
// sequence is validated: system only as opening message, no consecutive
// messages with the same role, assistant only directly after user.
// The first user message titles the conversation.
func (h *ConversationsDBHandler) AppendMessage(conversationRID uuid.UUID, message *model.Message) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM append_message($1, $2, $3, $4, $5, $6, $7, $8)`,
		conversationRID,
		message.Role,
		message.Content,
		pq.Array(message.GroundingRIDs),
		message.Model,
		message.PromptTokens,
		message.CompletionTokens,
		message.Confidence,
	)

	err := h.scanMessage(row, message)
	if err != nil {
		return helper.NewError("scan", mapError(err))
	}

	return nil
}

// SelectMessages retrieves the most recent limit messages of a
// conversation in chronological order. A non-positive limit returns the
// full history.
func (h *ConversationsDBHandler) SelectMessages(conversationRID uuid.UUID, limit int) ([]*model.Message, error) {
	var limitParam interface{}
	if limit > 0 {
		limitParam = limit
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_messages($1, $2)`,
		conversationRID,
		limitParam,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		message := &model.Message{}
		err := h.scanMessage(rows, message)
		if err != nil {
			return nil, helper.NewError("scan", mapError(err))
		}

		messages = append(messages, message)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", mapError(err))
	}

	return messages, nil
}

// SelectMessage retrieves a message by RID
func (h *ConversationsDBHandler) SelectMessage(rid uuid.UUID) (*model.Message, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_message($1)`,
		rid,
	)

	message := &model.Message{}
	err := h.scanMessage(row, message)
	if err != nil {
		return nil, helper.NewError("scan", mapError(err))
	}

	return message, nil
}

// InsertFeedback inserts feedback targeting a message and/or a document
func (h *ConversationsDBHandler) InsertFeedback(feedback *model.Feedback) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_feedback($1, $2, $3, $4, $5)`,
		feedback.MessageRID,
		feedback.DocumentRID,
		feedback.Type,
		feedback.Rating,
		feedback.Comment,
	)

	err := h.scanFeedback(row, feedback)
	if err != nil {
		return helper.NewError("scan", mapError(err))
	}

	return nil
}

// SelectFeedbackForMessage retrieves all feedback attached to a message
func (h *ConversationsDBHandler) SelectFeedbackForMessage(messageRID uuid.UUID) ([]*model.Feedback, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_feedback_for_message($1)`,
		messageRID,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	var feedbacks []*model.Feedback
	for rows.Next() {
		feedback := &model.Feedback{}
		err := h.scanFeedback(rows, feedback)
		if err != nil {
			return nil, helper.NewError("scan", mapError(err))
		}

		feedbacks = append(feedbacks, feedback)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", mapError(err))
	}

	return feedbacks, nil
}

// ClaimUnprocessedFeedback claims up to limit unprocessed feedback rows
// for the aggregator, marking them processed. Concurrent aggregators
// skip locked rows.
func (h *ConversationsDBHandler) ClaimUnprocessedFeedback(limit int) ([]*model.ClaimedFeedback, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM claim_unprocessed_feedback($1)`,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	var claimed []*model.ClaimedFeedback
	for rows.Next() {
		feedback := &model.ClaimedFeedback{}
		var messageRID, documentRID uuid.NullUUID
		err := rows.Scan(
			&feedback.ID,
			&feedback.RID,
			&messageRID,
			&documentRID,
			&feedback.Type,
			&feedback.Rating,
			&feedback.Comment,
			&feedback.CreatedAt,
			pq.Array(&feedback.GroundingRIDs),
		)
		if err != nil {
			return nil, helper.NewError("scan", mapError(err))
		}

		if messageRID.Valid {
			feedback.MessageRID = &messageRID.UUID
		}
		if documentRID.Valid {
			feedback.DocumentRID = &documentRID.UUID
		}
		claimed = append(claimed, feedback)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", mapError(err))
	}

	return claimed, nil
}

// scanConversation scans one full conversation row.
func (h *ConversationsDBHandler) scanConversation(row rowScanner, conversation *model.Conversation) error {
	return row.Scan(
		&conversation.ID,
		&conversation.RID,
		&conversation.Owner,
		&conversation.Title,
		&conversation.Status,
		pq.Array(&conversation.ContextDocumentRIDs),
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
		&conversation.ArchivedAt,
	)
}

// scanMessage scans one full message row.
func (h *ConversationsDBHandler) scanMessage(row rowScanner, message *model.Message) error {
	return row.Scan(
		&message.ID,
		&message.RID,
		&message.ConversationID,
		&message.Role,
		&message.Content,
		pq.Array(&message.GroundingRIDs),
		&message.Model,
		&message.PromptTokens,
		&message.CompletionTokens,
		&message.Confidence,
		&message.CreatedAt,
	)
}

// scanFeedback scans one full feedback row with nullable targets.
func (h *ConversationsDBHandler) scanFeedback(row rowScanner, feedback *model.Feedback) error {
	var messageRID, documentRID uuid.NullUUID
	err := row.Scan(
		&feedback.ID,
		&feedback.RID,
		&messageRID,
		&documentRID,
		&feedback.Type,
		&feedback.Rating,
		&feedback.Comment,
		&feedback.CreatedAt,
	)
	if err != nil {
		return err
	}

	if messageRID.Valid {
		feedback.MessageRID = &messageRID.UUID
	}
	if documentRID.Valid {
		feedback.DocumentRID = &documentRID.UUID
	}
	return nil
}
