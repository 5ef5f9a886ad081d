package database

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/counsel/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedConversation(t *testing.T, conversations *ConversationsDBHandler, owner string) *model.Conversation {
	conversation := &model.Conversation{Owner: owner}
	err := conversations.InsertConversation(conversation)
	require.NoError(t, err, "Expected InsertConversation to not return an error")
	return conversation
}

func TestConversationsNewConversationsDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewConversationsDBHandler", func(t *testing.T) {
		// Create categories and documents handlers first to ensure the
		// referenced tables exist (needed for foreign keys)
		_, err := NewCategoriesDBHandler(database, true)
		require.NoError(t, err, "Expected NewCategoriesDBHandler to not return an error")
		_, err = NewDocumentsDBHandler(database, "english", true)
		require.NoError(t, err, "Expected NewDocumentsDBHandler to not return an error")

		conversationsDbHandler, err := NewConversationsDBHandler(database, true)
		assert.NoError(t, err, "Expected NewConversationsDBHandler to not return an error")
		require.NotNil(t, conversationsDbHandler, "Expected NewConversationsDBHandler to return a non-nil instance")
		require.NotNil(t, conversationsDbHandler.db, "Expected NewConversationsDBHandler to have a non-nil database instance")
	})

	t.Run("Invalid call NewConversationsDBHandler with nil database", func(t *testing.T) {
		_, err := NewConversationsDBHandler(nil, false)
		assert.Error(t, err, "Expected error when creating ConversationsDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestConversationsInsert(t *testing.T) {
	database := initDB(t)

	categoriesDbHandler, err := NewCategoriesDBHandler(database, true)
	require.NoError(t, err)
	documentsDbHandler, err := NewDocumentsDBHandler(database, "english", true)
	require.NoError(t, err)
	conversationsDbHandler, err := NewConversationsDBHandler(database, true)
	require.NoError(t, err)

	doc := seedDocument(t, categoriesDbHandler, documentsDbHandler, "Context Document")

	t.Run("Insert conversation", func(t *testing.T) {
		conversation := &model.Conversation{
			Owner: "user_1",
			Title: "Notice periods",
		}

		err := conversationsDbHandler.InsertConversation(conversation)
		assert.NoError(t, err, "Expected Insert to not return an error")
		assert.NotEmpty(t, conversation.RID, "Expected inserted conversation to have a RID")
		assert.Equal(t, model.ConversationStatusOpen, conversation.Status, "Expected a new conversation to be open")
		assert.Empty(t, conversation.ContextDocumentRIDs, "Expected no context documents")
		assert.Nil(t, conversation.ArchivedAt, "Expected no archive time")
	})

	t.Run("Insert conversation with context documents", func(t *testing.T) {
		conversation := &model.Conversation{
			Owner:               "user_1",
			ContextDocumentRIDs: []uuid.UUID{doc.RID, doc.RID},
		}

		err := conversationsDbHandler.InsertConversation(conversation)
		assert.NoError(t, err, "Expected Insert to not return an error")
		assert.Equal(t, []uuid.UUID{doc.RID}, conversation.ContextDocumentRIDs, "Expected duplicate context documents to be collapsed")
	})

	t.Run("Insert conversation without owner", func(t *testing.T) {
		conversation := &model.Conversation{}
		err := conversationsDbHandler.InsertConversation(conversation)
		assert.Error(t, err, "Expected error for missing owner")
		assert.ErrorIs(t, err, model.ErrOwnerRequired, "Expected owner required error")
	})

	t.Run("Insert conversation with unknown context document", func(t *testing.T) {
		conversation := &model.Conversation{
			Owner:               "user_1",
			ContextDocumentRIDs: []uuid.UUID{uuid.New()},
		}
		err := conversationsDbHandler.InsertConversation(conversation)
		assert.Error(t, err, "Expected error for unknown context document")
		assert.ErrorIs(t, err, model.ErrNotFound, "Expected not found error")
	})

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestConversationsGet(t *testing.T) {
	database := initDB(t)

	_, err := NewCategoriesDBHandler(database, true)
	require.NoError(t, err)
	_, err = NewDocumentsDBHandler(database, "english", true)
	require.NoError(t, err)
	conversationsDbHandler, err := NewConversationsDBHandler(database, true)
	require.NoError(t, err)

	owner := "owner_" + uuid.NewString()[:8]
	first := seedConversation(t, conversationsDbHandler, owner)
	second := seedConversation(t, conversationsDbHandler, owner)

	t.Run("Get conversation by RID", func(t *testing.T) {
		retrieved, err := conversationsDbHandler.SelectConversation(first.RID)
		assert.NoError(t, err, "Expected Get to not return an error")
		require.NotNil(t, retrieved, "Expected Get to return a non-nil conversation")
		assert.Equal(t, first.RID, retrieved.RID, "Expected conversation RIDs to match")
		assert.Equal(t, owner, retrieved.Owner, "Expected the owner to match")
	})

	t.Run("Get missing conversation", func(t *testing.T) {
		_, err := conversationsDbHandler.SelectConversation(uuid.New())
		assert.Error(t, err, "Expected Get to return an error for missing conversation")
		assert.ErrorIs(t, err, model.ErrNotFound, "Expected not found error")
	})

	t.Run("Get conversations by owner", func(t *testing.T) {
		conversations, err := conversationsDbHandler.SelectConversationsByOwner(owner, 10, 0)
		assert.NoError(t, err, "Expected SelectConversationsByOwner to not return an error")
		require.Len(t, conversations, 2, "Expected both conversations of the owner")
		assert.Equal(t, second.RID, conversations[0].RID, "Expected the most recently updated conversation first")
		assert.Equal(t, first.RID, conversations[1].RID, "Expected the older conversation second")
	})

	t.Run("Get conversations by owner with paging", func(t *testing.T) {
		page, err := conversationsDbHandler.SelectConversationsByOwner(owner, 1, 1)
		assert.NoError(t, err, "Expected SelectConversationsByOwner to not return an error")
		require.Len(t, page, 1, "Expected a single conversation on the page")
		assert.Equal(t, first.RID, page[0].RID, "Expected the second page to hold the older conversation")
	})

	t.Run("Get conversations for unknown owner", func(t *testing.T) {
		conversations, err := conversationsDbHandler.SelectConversationsByOwner("nobody_"+uuid.NewString()[:8], 10, 0)
		assert.NoError(t, err, "Expected SelectConversationsByOwner to not return an error")
		assert.Empty(t, conversations, "Expected no conversations for an unknown owner")
	})
}

func TestConversationsArchiveAndContext(t *testing.T) {
	database := initDB(t)

	categoriesDbHandler, err := NewCategoriesDBHandler(database, true)
	require.NoError(t, err)
	documentsDbHandler, err := NewDocumentsDBHandler(database, "english", true)
	require.NoError(t, err)
	conversationsDbHandler, err := NewConversationsDBHandler(database, true)
	require.NoError(t, err)

	doc := seedDocument(t, categoriesDbHandler, documentsDbHandler, "Merged Context")
	other := seedDocument(t, categoriesDbHandler, documentsDbHandler, "Merged Context Other")

	conversation := seedConversation(t, conversationsDbHandler, "user_2")

	t.Run("Merge context documents", func(t *testing.T) {
		updated, err := conversationsDbHandler.UpdateConversationContext(conversation.RID, []uuid.UUID{doc.RID})
		assert.NoError(t, err, "Expected UpdateConversationContext to not return an error")
		require.NotNil(t, updated, "Expected the updated conversation")
		assert.Equal(t, []uuid.UUID{doc.RID}, updated.ContextDocumentRIDs, "Expected the context document to be added")

		updated, err = conversationsDbHandler.UpdateConversationContext(conversation.RID, []uuid.UUID{other.RID, doc.RID})
		assert.NoError(t, err, "Expected UpdateConversationContext to not return an error")
		assert.Len(t, updated.ContextDocumentRIDs, 2, "Expected the context to be merged without duplicates")
		assert.Contains(t, updated.ContextDocumentRIDs, doc.RID, "Expected the existing context document to remain")
		assert.Contains(t, updated.ContextDocumentRIDs, other.RID, "Expected the new context document to be merged")
	})

	t.Run("Merge context with unknown document", func(t *testing.T) {
		_, err := conversationsDbHandler.UpdateConversationContext(conversation.RID, []uuid.UUID{uuid.New()})
		assert.Error(t, err, "Expected error for unknown context document")
		assert.ErrorIs(t, err, model.ErrNotFound, "Expected not found error")
	})

	t.Run("Archive conversation", func(t *testing.T) {
		archived, err := conversationsDbHandler.ArchiveConversation(conversation.RID)
		assert.NoError(t, err, "Expected ArchiveConversation to not return an error")
		require.NotNil(t, archived, "Expected the archived conversation")
		assert.Equal(t, model.ConversationStatusArchived, archived.Status, "Expected the conversation to be archived")
		require.NotNil(t, archived.ArchivedAt, "Expected the archive time to be set")

		// Archiving twice is a no-op and keeps the original archive time
		again, err := conversationsDbHandler.ArchiveConversation(conversation.RID)
		assert.NoError(t, err, "Expected ArchiveConversation to be idempotent")
		assert.Equal(t, model.ConversationStatusArchived, again.Status, "Expected the conversation to stay archived")
		assert.Equal(t, archived.ArchivedAt.UnixMicro(), again.ArchivedAt.UnixMicro(), "Expected the archive time to be unchanged")
	})

	t.Run("Merge context into archived conversation", func(t *testing.T) {
		_, err := conversationsDbHandler.UpdateConversationContext(conversation.RID, []uuid.UUID{other.RID})
		assert.Error(t, err, "Expected error for archived conversation")
		assert.ErrorIs(t, err, model.ErrConversationArchived, "Expected conversation archived error")
	})

	t.Run("Archive missing conversation", func(t *testing.T) {
		_, err := conversationsDbHandler.ArchiveConversation(uuid.New())
		assert.Error(t, err, "Expected error for missing conversation")
		assert.ErrorIs(t, err, model.ErrNotFound, "Expected not found error")
	})

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
	documentsDbHandler.DeleteDocument(other.RID)
}

func TestConversationsAppendMessage(t *testing.T) {
	database := initDB(t)

	categoriesDbHandler, err := NewCategoriesDBHandler(database, true)
	require.NoError(t, err)
	documentsDbHandler, err := NewDocumentsDBHandler(database, "english", true)
	require.NoError(t, err)
	conversationsDbHandler, err := NewConversationsDBHandler(database, true)
	require.NoError(t, err)

	doc := seedDocument(t, categoriesDbHandler, documentsDbHandler, "Grounding Document")
	conversation := seedConversation(t, conversationsDbHandler, "user_3")

	t.Run("System message opens the conversation", func(t *testing.T) {
		message := &model.Message{
			Role:    model.MessageRoleSystem,
			Content: "You answer strictly from the provided documents.",
		}
		err := conversationsDbHandler.AppendMessage(conversation.RID, message)
		assert.NoError(t, err, "Expected AppendMessage to not return an error")
		assert.NotEmpty(t, message.RID, "Expected the appended message to have a RID")
	})

	t.Run("First user message sets the conversation title", func(t *testing.T) {
		message := &model.Message{
			Role:    model.MessageRoleUser,
			Content: "What is the statutory notice period for terminations?",
		}
		err := conversationsDbHandler.AppendMessage(conversation.RID, message)
		assert.NoError(t, err, "Expected AppendMessage to not return an error")

		retrieved, err := conversationsDbHandler.SelectConversation(conversation.RID)
		require.NoError(t, err)
		assert.Equal(t, message.Content, retrieved.Title, "Expected the first user message to become the title")
	})

	t.Run("Assistant reply carries grounding and usage", func(t *testing.T) {
		message := &model.Message{
			Role:             model.MessageRoleAssistant,
			Content:          "The statutory notice period is four weeks.",
			GroundingRIDs:    []uuid.UUID{doc.RID},
			Model:            "gpt-4o-mini",
			PromptTokens:     820,
			CompletionTokens: 64,
			Confidence:       0.83,
		}
		err := conversationsDbHandler.AppendMessage(conversation.RID, message)
		assert.NoError(t, err, "Expected AppendMessage to not return an error")

		retrieved, err := conversationsDbHandler.SelectMessage(message.RID)
		assert.NoError(t, err, "Expected SelectMessage to not return an error")
		require.NotNil(t, retrieved, "Expected the stored message")
		assert.Equal(t, []uuid.UUID{doc.RID}, retrieved.GroundingRIDs, "Expected the grounding documents to be stored")
		assert.Equal(t, "gpt-4o-mini", retrieved.Model, "Expected the model name to be stored")
		assert.Equal(t, 820, retrieved.PromptTokens, "Expected the prompt tokens to be stored")
		assert.Equal(t, 0.83, retrieved.Confidence, "Expected the confidence to be stored")
	})

	t.Run("System message after the opening", func(t *testing.T) {
		message := &model.Message{Role: model.MessageRoleSystem, Content: "New instructions."}
		err := conversationsDbHandler.AppendMessage(conversation.RID, message)
		assert.Error(t, err, "Expected error for a late system message")
		assert.ErrorIs(t, err, model.ErrRoleSequence, "Expected role sequence error")
	})

	t.Run("Consecutive messages of the same role", func(t *testing.T) {
		first := &model.Message{Role: model.MessageRoleUser, Content: "And for probation?"}
		err := conversationsDbHandler.AppendMessage(conversation.RID, first)
		require.NoError(t, err)

		second := &model.Message{Role: model.MessageRoleUser, Content: "Any exceptions?"}
		err = conversationsDbHandler.AppendMessage(conversation.RID, second)
		assert.Error(t, err, "Expected error for consecutive user messages")
		assert.ErrorIs(t, err, model.ErrRoleSequence, "Expected role sequence error")
	})

	t.Run("Assistant message without a preceding user message", func(t *testing.T) {
		fresh := seedConversation(t, conversationsDbHandler, "user_3")
		message := &model.Message{Role: model.MessageRoleAssistant, Content: "Hello."}
		err := conversationsDbHandler.AppendMessage(fresh.RID, message)
		assert.Error(t, err, "Expected error for an assistant message opening a conversation")
		assert.ErrorIs(t, err, model.ErrRoleSequence, "Expected role sequence error")
	})

	t.Run("Message with invalid role", func(t *testing.T) {
		message := &model.Message{Role: model.MessageRole("tool"), Content: "Lookup result."}
		err := conversationsDbHandler.AppendMessage(conversation.RID, message)
		assert.Error(t, err, "Expected error for invalid role")
		assert.ErrorIs(t, err, model.ErrInvalidRole, "Expected invalid role error")
	})

	t.Run("Message without content", func(t *testing.T) {
		message := &model.Message{Role: model.MessageRoleAssistant}
		err := conversationsDbHandler.AppendMessage(conversation.RID, message)
		assert.Error(t, err, "Expected error for empty content")
		assert.Contains(t, err.Error(), "content required", "Expected content required error message")
	})

	t.Run("Message to archived conversation", func(t *testing.T) {
		_, err := conversationsDbHandler.ArchiveConversation(conversation.RID)
		require.NoError(t, err)

		message := &model.Message{Role: model.MessageRoleAssistant, Content: "Too late."}
		err = conversationsDbHandler.AppendMessage(conversation.RID, message)
		assert.Error(t, err, "Expected error for archived conversation")
		assert.ErrorIs(t, err, model.ErrConversationArchived, "Expected conversation archived error")
	})

	t.Run("Message to missing conversation", func(t *testing.T) {
		message := &model.Message{Role: model.MessageRoleUser, Content: "Anyone there?"}
		err := conversationsDbHandler.AppendMessage(uuid.New(), message)
		assert.Error(t, err, "Expected error for missing conversation")
		assert.ErrorIs(t, err, model.ErrNotFound, "Expected not found error")
	})

	t.Run("Long first user message is truncated in the title", func(t *testing.T) {
		fresh := seedConversation(t, conversationsDbHandler, "user_3")
		message := &model.Message{
			Role:    model.MessageRoleUser,
			Content: strings.Repeat("severance ", 30),
		}
		err := conversationsDbHandler.AppendMessage(fresh.RID, message)
		require.NoError(t, err)

		retrieved, err := conversationsDbHandler.SelectConversation(fresh.RID)
		require.NoError(t, err)
		assert.Len(t, retrieved.Title, 100, "Expected the title to be cut to 100 characters")
	})

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestConversationsSelectMessages(t *testing.T) {
	database := initDB(t)

	_, err := NewCategoriesDBHandler(database, true)
	require.NoError(t, err)
	_, err = NewDocumentsDBHandler(database, "english", true)
	require.NoError(t, err)
	conversationsDbHandler, err := NewConversationsDBHandler(database, true)
	require.NoError(t, err)

	conversation := seedConversation(t, conversationsDbHandler, "user_4")

	contents := []string{"First question", "First answer", "Second question", "Second answer"}
	roles := []model.MessageRole{model.MessageRoleUser, model.MessageRoleAssistant, model.MessageRoleUser, model.MessageRoleAssistant}
	for i := range contents {
		err = conversationsDbHandler.AppendMessage(conversation.RID, &model.Message{Role: roles[i], Content: contents[i]})
		require.NoError(t, err)
	}

	t.Run("Get full history in order", func(t *testing.T) {
		messages, err := conversationsDbHandler.SelectMessages(conversation.RID, 0)
		assert.NoError(t, err, "Expected SelectMessages to not return an error")
		require.Len(t, messages, 4, "Expected the full history")
		for i, message := range messages {
			assert.Equal(t, contents[i], message.Content, "Expected messages in chronological order")
		}
	})

	t.Run("Get the most recent messages", func(t *testing.T) {
		messages, err := conversationsDbHandler.SelectMessages(conversation.RID, 2)
		assert.NoError(t, err, "Expected SelectMessages to not return an error")
		require.Len(t, messages, 2, "Expected the limited window")
		assert.Equal(t, "Second question", messages[0].Content, "Expected the window to hold the latest messages in order")
		assert.Equal(t, "Second answer", messages[1].Content, "Expected the latest message last")
	})

	t.Run("Get messages of missing conversation", func(t *testing.T) {
		_, err := conversationsDbHandler.SelectMessages(uuid.New(), 0)
		assert.Error(t, err, "Expected error for missing conversation")
		assert.ErrorIs(t, err, model.ErrNotFound, "Expected not found error")
	})

	t.Run("Get missing message", func(t *testing.T) {
		_, err := conversationsDbHandler.SelectMessage(uuid.New())
		assert.Error(t, err, "Expected error for missing message")
		assert.ErrorIs(t, err, model.ErrNotFound, "Expected not found error")
	})
}

func TestConversationsFeedback(t *testing.T) {
	database := initDB(t)

	categoriesDbHandler, err := NewCategoriesDBHandler(database, true)
	require.NoError(t, err)
	documentsDbHandler, err := NewDocumentsDBHandler(database, "english", true)
	require.NoError(t, err)
	conversationsDbHandler, err := NewConversationsDBHandler(database, true)
	require.NoError(t, err)

	doc := seedDocument(t, categoriesDbHandler, documentsDbHandler, "Feedback Grounding")
	conversation := seedConversation(t, conversationsDbHandler, "user_5")

	question := &model.Message{Role: model.MessageRoleUser, Content: "How long is parental leave?"}
	err = conversationsDbHandler.AppendMessage(conversation.RID, question)
	require.NoError(t, err)

	answer := &model.Message{
		Role:          model.MessageRoleAssistant,
		Content:       "Parental leave runs up to three years.",
		GroundingRIDs: []uuid.UUID{doc.RID},
	}
	err = conversationsDbHandler.AppendMessage(conversation.RID, answer)
	require.NoError(t, err)

	rating := 4

	t.Run("Insert rating feedback for a message", func(t *testing.T) {
		feedback := &model.Feedback{
			MessageRID: &answer.RID,
			Type:       model.FeedbackTypeRating,
			Rating:     &rating,
			Comment:    "Good answer, missing the part time case.",
		}
		err := conversationsDbHandler.InsertFeedback(feedback)
		assert.NoError(t, err, "Expected InsertFeedback to not return an error")
		assert.NotEmpty(t, feedback.RID, "Expected inserted feedback to have a RID")
		require.NotNil(t, feedback.MessageRID, "Expected the message rid to be kept")
		assert.Equal(t, answer.RID, *feedback.MessageRID, "Expected the message rid to match")
	})

	t.Run("Insert helpful feedback for a document", func(t *testing.T) {
		feedback := &model.Feedback{
			DocumentRID: &doc.RID,
			Type:        model.FeedbackTypeHelpful,
		}
		err := conversationsDbHandler.InsertFeedback(feedback)
		assert.NoError(t, err, "Expected InsertFeedback to not return an error")
		require.NotNil(t, feedback.DocumentRID, "Expected the document rid to be kept")
		assert.Equal(t, doc.RID, *feedback.DocumentRID, "Expected the document rid to match")
		assert.Nil(t, feedback.MessageRID, "Expected no message rid")
	})

	t.Run("Insert feedback without a target", func(t *testing.T) {
		feedback := &model.Feedback{Type: model.FeedbackTypeHelpful}
		err := conversationsDbHandler.InsertFeedback(feedback)
		assert.Error(t, err, "Expected error for feedback without a target")
		assert.ErrorIs(t, err, model.ErrInvalidFeedback, "Expected invalid feedback error")
	})

	t.Run("Insert feedback with invalid type", func(t *testing.T) {
		feedback := &model.Feedback{MessageRID: &answer.RID, Type: model.FeedbackType("praise")}
		err := conversationsDbHandler.InsertFeedback(feedback)
		assert.Error(t, err, "Expected error for invalid feedback type")
		assert.ErrorIs(t, err, model.ErrInvalidFeedback, "Expected invalid feedback error")
	})

	t.Run("Insert rating feedback without a rating", func(t *testing.T) {
		feedback := &model.Feedback{MessageRID: &answer.RID, Type: model.FeedbackTypeRating}
		err := conversationsDbHandler.InsertFeedback(feedback)
		assert.Error(t, err, "Expected error for a rating without a value")
		assert.ErrorIs(t, err, model.ErrInvalidFeedback, "Expected invalid feedback error")
	})

	t.Run("Insert rating feedback out of range", func(t *testing.T) {
		outOfRange := 9
		feedback := &model.Feedback{MessageRID: &answer.RID, Type: model.FeedbackTypeRating, Rating: &outOfRange}
		err := conversationsDbHandler.InsertFeedback(feedback)
		assert.Error(t, err, "Expected error for an out of range rating")
		assert.ErrorIs(t, err, model.ErrInvalidFeedback, "Expected invalid feedback error")
	})

	t.Run("Insert feedback for missing message", func(t *testing.T) {
		missing := uuid.New()
		feedback := &model.Feedback{MessageRID: &missing, Type: model.FeedbackTypeHelpful}
		err := conversationsDbHandler.InsertFeedback(feedback)
		assert.Error(t, err, "Expected error for missing message")
		assert.ErrorIs(t, err, model.ErrNotFound, "Expected not found error")
	})

	t.Run("Get feedback for message", func(t *testing.T) {
		feedbacks, err := conversationsDbHandler.SelectFeedbackForMessage(answer.RID)
		assert.NoError(t, err, "Expected SelectFeedbackForMessage to not return an error")
		require.Len(t, feedbacks, 1, "Expected the rating feedback")
		assert.Equal(t, model.FeedbackTypeRating, feedbacks[0].Type, "Expected the feedback type to match")
		require.NotNil(t, feedbacks[0].Rating, "Expected the rating value")
		assert.Equal(t, rating, *feedbacks[0].Rating, "Expected the rating value to match")
	})

	t.Run("Claim unprocessed feedback", func(t *testing.T) {
		claimed, err := conversationsDbHandler.ClaimUnprocessedFeedback(100)
		assert.NoError(t, err, "Expected ClaimUnprocessedFeedback to not return an error")

		var messageFeedback *model.ClaimedFeedback
		for _, cf := range claimed {
			if cf.MessageRID != nil && *cf.MessageRID == answer.RID {
				messageFeedback = cf
			}
		}
		require.NotNil(t, messageFeedback, "Expected the message feedback to be claimed")
		assert.Equal(t, []uuid.UUID{doc.RID}, messageFeedback.GroundingRIDs, "Expected the grounding documents of the rated message")

		// A second claim returns nothing new for these rows
		claimed, err = conversationsDbHandler.ClaimUnprocessedFeedback(100)
		assert.NoError(t, err, "Expected ClaimUnprocessedFeedback to not return an error")
		for _, cf := range claimed {
			if cf.MessageRID != nil {
				assert.NotEqual(t, answer.RID, *cf.MessageRID, "Expected processed feedback to be skipped")
			}
		}
	})

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
}
