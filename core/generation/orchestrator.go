package generation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/siherrmann/counsel/model"
)

const (
	// strippedCitationPenalty is deducted per citation outside the
	// citation universe.
	strippedCitationPenalty = 0.15
	// uncitedAnswerPenalty is deducted when an answer cites nothing.
	uncitedAnswerPenalty = 0.3
	// retryBackoff precedes the single generation retry.
	retryBackoff = 500 * time.Millisecond
	// snippetLength bounds the source list previews.
	snippetLength = 200
)

const systemPrompt = `You are a legal research assistant. Answer questions based ONLY on the provided sources.
Rules:
1. Only state facts supported by the numbered sources.
2. Cite sources by their number in square brackets, like [1] or [2].
3. If the sources do not contain enough information to answer, say so explicitly.
4. Preserve exact statutory terminology and section references.
5. Be concise.`

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// Orchestrator turns a question and an assembled context into a
// grounded answer with validated citations. Generation failures degrade
// to the ranked source list, never to fabricated prose.
type Orchestrator struct {
	provider Provider
	config   model.GenerationConfig
}

// NewOrchestrator creates a new generation orchestrator.
func NewOrchestrator(provider Provider, config model.GenerationConfig) (*Orchestrator, error) {
	if provider == nil {
		return nil, model.ErrProviderNotSet
	}
	return &Orchestrator{provider: provider, config: config}, nil
}

// Answer runs one generation turn. An empty context renders the cannot
// answer marker without invoking the provider. Transport or timeout
// failures are retried exactly once, a second failure returns the
// degraded source list answer. Citations outside the context universe
// are stripped from the text and deducted from the confidence.
func (o *Orchestrator) Answer(ctx context.Context, question string, history []*model.Message, assembled *model.AssembledContext) (*model.Answer, error) {
	if assembled == nil || len(assembled.Passages) == 0 {
		return &model.Answer{
			Content:   model.CannotAnswerMarker,
			Degraded:  true,
			Citations: []uuid.UUID{},
		}, nil
	}

	messages := o.buildMessages(question, history, assembled)

	response, err := o.chatWithRetry(ctx, messages)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return o.sourceFallback(assembled), nil
	}

	content, citations, stripped := validateCitations(response.Content, assembled.Universe)

	confidence := 1.0
	confidence -= float64(stripped) * strippedCitationPenalty
	if len(citations) == 0 {
		confidence -= uncitedAnswerPenalty
	}
	if confidence < 0 {
		confidence = 0
	}

	return &model.Answer{
		Content:          content,
		Citations:        citations,
		UsedContext:      append([]uuid.UUID{}, assembled.Universe...),
		Sources:          sourceList(assembled),
		Model:            response.Model,
		PromptTokens:     response.PromptTokens,
		CompletionTokens: response.CompletionTokens,
		Confidence:       confidence,
	}, nil
}

// chatWithRetry runs the generation request with a per attempt timeout
// and exactly one retry after a short backoff.
func (o *Orchestrator) chatWithRetry(ctx context.Context, messages []ChatMessage) (*ChatResponse, error) {
	request := ChatRequest{
		Model:       o.config.Model,
		Messages:    messages,
		Temperature: o.config.Temperature,
		MaxTokens:   o.config.MaxTokens,
	}

	response, err := o.chatOnce(ctx, request)
	if err == nil {
		return response, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	select {
	case <-time.After(retryBackoff):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return o.chatOnce(ctx, request)
}

func (o *Orchestrator) chatOnce(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
	timeout := o.config.Timeout.Std()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return o.provider.Chat(ctx, request)
}

// buildMessages assembles the chat transcript: the grounding system
// prompt, the bounded recent history and the user turn carrying the
// numbered sources.
func (o *Orchestrator) buildMessages(question string, history []*model.Message, assembled *model.AssembledContext) []ChatMessage {
	messages := []ChatMessage{{Role: "system", Content: systemPrompt}}

	for _, message := range boundHistory(history, o.config.MaxHistoryTurns) {
		messages = append(messages, ChatMessage{Role: string(message.Role), Content: message.Content})
	}

	return append(messages, ChatMessage{Role: "user", Content: buildPrompt(question, assembled)})
}

// boundHistory keeps the most recent maxTurns user/assistant exchanges
// and drops stored system messages, the orchestrator provides its own.
func boundHistory(history []*model.Message, maxTurns int) []*model.Message {
	filtered := make([]*model.Message, 0, len(history))
	for _, message := range history {
		if message.Role == model.MessageRoleSystem {
			continue
		}
		filtered = append(filtered, message)
	}

	if maxTurns <= 0 {
		return filtered
	}
	keep := maxTurns * 2
	if len(filtered) > keep {
		filtered = filtered[len(filtered)-keep:]
	}
	return filtered
}

// buildPrompt renders the numbered source list and the question. The
// source numbers index into the citation universe, multiple passages of
// one document share its number.
func buildPrompt(question string, assembled *model.AssembledContext) string {
	numbers := make(map[uuid.UUID]int, len(assembled.Universe))
	for index, rid := range assembled.Universe {
		numbers[rid] = index + 1
	}

	var b strings.Builder
	b.WriteString("Sources:\n")
	for _, passage := range assembled.Passages {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", numbers[passage.DocumentRID], passage.DocumentTitle, passage.Chunk.Content)
	}
	fmt.Fprintf(&b, "Question: %s\n\nAnswer based only on the sources above and cite them by number, like [1].", question)
	return b.String()
}

// validateCitations maps [n] citations onto the universe. Citations
// outside it are stripped from the text and excluded from the returned
// set; the kept set preserves universe order without duplicates.
func validateCitations(content string, universe []uuid.UUID) (string, []uuid.UUID, int) {
	cited := map[int]bool{}
	stripped := 0

	cleaned := citationPattern.ReplaceAllStringFunc(content, func(match string) string {
		number, err := strconv.Atoi(citationPattern.FindStringSubmatch(match)[1])
		if err != nil || number < 1 || number > len(universe) {
			stripped++
			return ""
		}
		cited[number] = true
		return match
	})

	citations := make([]uuid.UUID, 0, len(cited))
	for index, rid := range universe {
		if cited[index+1] {
			citations = append(citations, rid)
		}
	}

	return strings.TrimSpace(cleaned), citations, stripped
}

// sourceFallback renders the ranked source list behind the unavailable
// marker.
func (o *Orchestrator) sourceFallback(assembled *model.AssembledContext) *model.Answer {
	sources := sourceList(assembled)

	var b strings.Builder
	b.WriteString(model.AnswerUnavailableMarker)
	for index, source := range sources {
		fmt.Fprintf(&b, "\n[%d] %s: %s", index+1, source.Title, source.Snippet)
	}

	return &model.Answer{
		Content:     b.String(),
		Degraded:    true,
		Citations:   []uuid.UUID{},
		UsedContext: append([]uuid.UUID{}, assembled.Universe...),
		Sources:     sources,
	}
}

// sourceList folds the passages into one entry per universe document,
// in rank order. The first passage of a document provides its snippet.
func sourceList(assembled *model.AssembledContext) []model.Source {
	seen := make(map[uuid.UUID]bool, len(assembled.Universe))
	sources := make([]model.Source, 0, len(assembled.Universe))
	for _, passage := range assembled.Passages {
		if seen[passage.DocumentRID] {
			continue
		}
		seen[passage.DocumentRID] = true
		sources = append(sources, model.Source{
			DocumentRID: passage.DocumentRID,
			Title:       passage.DocumentTitle,
			Snippet:     snippet(passage.Chunk.Content),
			Score:       passage.Score,
		})
	}
	return sources
}

// snippet bounds a content preview, cutting at a rune boundary.
func snippet(content string) string {
	if len(content) <= snippetLength {
		return content
	}
	cut := snippetLength
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}
