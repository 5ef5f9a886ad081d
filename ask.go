package counsel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/siherrmann/counsel/core/assembler"
	"github.com/siherrmann/counsel/helper"
	"github.com/siherrmann/counsel/model"
)

const (
	// snippetLength bounds the source list previews.
	snippetLength = 200
	// titleLength bounds conversation titles derived from a question.
	titleLength = 80
)

// AskOptions adjusts a single ask turn. The zero value starts a fresh
// conversation with the configured retrieval defaults.
type AskOptions struct {
	// ConversationRID continues an existing conversation, zero starts a new one
	ConversationRID uuid.UUID
	// Owner of a newly started conversation, empty falls back to model.DefaultOwner
	Owner string
	// Filters narrow retrieval to matching documents
	Filters model.Filters
	// TopK overrides the configured result count when positive
	TopK int
	// Threshold overrides the configured fused score floor when set
	Threshold *float64
}

// Ask runs one full conversational turn: hybrid retrieval for the
// question, context assembly with relation expansion, grounded
// generation with citation validation, then persistence of the user and
// assistant messages. Nothing is persisted before the turn concludes, a
// cancelled context leaves no trace. Retrieval below the threshold
// yields the cannot answer marker, a failing generation service the
// ranked source list, both persisted as degraded assistant messages.
func (c *Counsel) Ask(ctx context.Context, question string, options *AskOptions) (*model.Answer, error) {
	if c.Orchestrator == nil {
		return nil, helper.NewError("ask", model.ErrProviderNotSet)
	}
	if strings.TrimSpace(question) == "" {
		return nil, helper.NewError("ask", fmt.Errorf("question is empty"))
	}

	var conversation *model.Conversation
	var history []*model.Message
	if options != nil && options.ConversationRID != uuid.Nil {
		var err error
		conversation, err = c.Conversations.SelectConversation(options.ConversationRID)
		if err != nil {
			return nil, helper.NewError("select conversation", err)
		}
		if conversation.Status == model.ConversationStatusArchived {
			return nil, helper.NewError("ask", model.ErrConversationArchived)
		}

		historyLimit := 0
		if c.config.Generation.MaxHistoryTurns > 0 {
			historyLimit = c.config.Generation.MaxHistoryTurns * 2
		}
		history, err = c.Conversations.SelectMessages(conversation.RID, historyLimit)
		if err != nil {
			return nil, helper.NewError("select history", err)
		}
	}

	config := c.retrievalConfig(options)
	if conversation != nil && len(conversation.ContextDocumentRIDs) > 0 && len(config.Filters.DocumentRIDs) == 0 {
		config.Filters.DocumentRIDs = conversation.ContextDocumentRIDs
	}

	embedding := c.embedQuery(ctx, question)
	results, err := c.Engine.Retrieve(ctx, embedding, question, config)
	if err != nil {
		return nil, helper.NewError("retrieve", err)
	}

	assembled, err := c.Assembler.Assemble(ctx, results, embedding, assembler.Options{
		Budget:           c.config.Generation.ContextBudget,
		ExpansionDepth:   c.config.Generation.ExpansionDepth,
		ExpansionBreadth: c.config.Generation.ExpansionBreadth,
	})
	if err != nil {
		return nil, helper.NewError("assemble context", err)
	}

	answer, err := c.Orchestrator.Answer(ctx, question, history, assembled)
	if err != nil {
		return nil, helper.NewError("generate answer", err)
	}

	// The turn concluded, only now is anything persisted.
	if conversation == nil {
		conversation = &model.Conversation{
			Title: conversationTitle(question),
			Owner: model.DefaultOwner,
		}
		if options != nil && options.Owner != "" {
			conversation.Owner = options.Owner
		}
		err = c.Conversations.InsertConversation(conversation)
		if err != nil {
			return nil, helper.NewError("create conversation", err)
		}
	}

	userMessage := &model.Message{
		Role:    model.MessageRoleUser,
		Content: question,
	}
	err = c.Conversations.AppendMessage(conversation.RID, userMessage)
	if err != nil {
		return nil, helper.NewError("append user message", err)
	}

	assistantMessage := &model.Message{
		Role:             model.MessageRoleAssistant,
		Content:          answer.Content,
		GroundingRIDs:    answer.UsedContext,
		Model:            answer.Model,
		PromptTokens:     answer.PromptTokens,
		CompletionTokens: answer.CompletionTokens,
		Confidence:       answer.Confidence,
	}
	err = c.Conversations.AppendMessage(conversation.RID, assistantMessage)
	if err != nil {
		return nil, helper.NewError("append assistant message", err)
	}

	answer.ConversationRID = conversation.RID
	answer.MessageRID = &assistantMessage.RID

	if len(answer.UsedContext) > 0 {
		_, err = c.Search.RecordDocumentAccess(answer.UsedContext)
		if err != nil {
			c.log.Warn("Recording document access failed", slog.String("error", err.Error()))
		}
	}

	c.log.Info("Answered question",
		slog.String("conversation_id", conversation.RID.String()),
		slog.Int("context_documents", len(answer.UsedContext)),
		slog.Bool("degraded", answer.Degraded))

	return answer, nil
}

// Retrieve runs hybrid retrieval for a question and returns the ranked
// chunk results. The query embedding comes from the configured
// pipeline, without one retrieval degrades to lexical only.
func (c *Counsel) Retrieve(ctx context.Context, question string, options *AskOptions) ([]*model.RetrievalResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, helper.NewError("retrieve", fmt.Errorf("question is empty"))
	}

	embedding := c.embedQuery(ctx, question)
	results, err := c.Engine.Retrieve(ctx, embedding, question, c.retrievalConfig(options))
	if err != nil {
		return nil, helper.NewError("retrieve", err)
	}
	return results, nil
}

// Sources returns the ranked source listing for a question, one entry
// per document. No generation request is made and nothing is persisted.
func (c *Counsel) Sources(ctx context.Context, question string, options *AskOptions) ([]model.Source, error) {
	results, err := c.Retrieve(ctx, question, options)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool, len(results))
	sources := make([]model.Source, 0, len(results))
	for _, result := range results {
		if result.Chunk == nil || seen[result.Chunk.DocumentRID] {
			continue
		}
		seen[result.Chunk.DocumentRID] = true
		sources = append(sources, model.Source{
			DocumentRID: result.Chunk.DocumentRID,
			Title:       result.DocumentTitle,
			Snippet:     contentSnippet(result.Chunk.Content),
			Score:       result.Score,
		})
	}
	return sources, nil
}

// retrievalConfig merges the per call options into the configured
// retrieval defaults.
func (c *Counsel) retrievalConfig(options *AskOptions) model.RetrievalConfig {
	config := c.config.Retrieval
	if options == nil {
		return config
	}
	if options.TopK > 0 {
		config.TopK = options.TopK
	}
	if options.Threshold != nil {
		config.Threshold = *options.Threshold
	}
	if !options.Filters.Empty() {
		config.Filters = options.Filters
	}
	return config
}

// embedQuery embeds the question through the pipeline embedder. Without
// a pipeline, and when embedding fails, it returns nil so retrieval
// falls back to the lexical access path instead of failing the turn.
func (c *Counsel) embedQuery(ctx context.Context, query string) []float32 {
	if c.Pipeline == nil || c.Pipeline.Embedder == nil {
		return nil
	}

	embeddings, err := c.Pipeline.Embedder(ctx, []string{query})
	if err != nil || len(embeddings) == 0 {
		c.log.Warn("Query embedding failed, retrieval degrades to lexical", slog.String("error", fmt.Sprintf("%v", err)))
		return nil
	}
	return embeddings[0]
}

// conversationTitle derives a short title from the first question of a
// new conversation.
func conversationTitle(question string) string {
	title := strings.TrimSpace(question)
	if index := strings.IndexByte(title, '\n'); index >= 0 {
		title = strings.TrimSpace(title[:index])
	}
	if len(title) <= titleLength {
		return title
	}
	cut := titleLength
	for cut > 0 && !utf8.RuneStart(title[cut]) {
		cut--
	}
	return strings.TrimSpace(title[:cut]) + "..."
}

// contentSnippet bounds a content preview, cutting at a rune boundary.
func contentSnippet(content string) string {
	if len(content) <= snippetLength {
		return content
	}
	cut := snippetLength
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}
