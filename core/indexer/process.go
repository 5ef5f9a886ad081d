package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/siherrmann/counsel/model"
)

// IndexDocument claims and indexes a single document synchronously,
// regardless of its current index state. When another worker already
// holds the document the call returns without doing anything.
func (i *Indexer) IndexDocument(ctx context.Context, rid uuid.UUID) error {
	document, err := i.documents.ClaimDocument(rid)
	if err != nil {
		return err
	}
	if document == nil {
		return nil
	}
	return i.indexDocument(ctx, document)
}

// drainStaleDocuments claims and indexes stale documents one at a time
// until the queue is empty or the context ends.
func (i *Indexer) drainStaleDocuments(ctx context.Context) {
	for ctx.Err() == nil {
		claimed, err := i.documents.ClaimStaleDocuments(1)
		if err != nil {
			i.logger.Error("Claiming stale documents failed", slog.String("error", err.Error()))
			return
		}
		if len(claimed) == 0 {
			return
		}

		for _, document := range claimed {
			err := i.indexDocument(ctx, document)
			if err != nil {
				i.logger.Error("Indexing document failed", slog.String("rid", document.RID.String()), slog.String("error", err.Error()))
			}
		}
	}
}

// indexDocument runs one pass over a claimed document: chunk, embed in
// rate limited batches, swap the chunk set atomically, then refresh the
// document level search metadata. Embedding failures leave pending
// chunks behind a degraded document instead of failing the pass, so a
// flaky embedding provider degrades retrieval to lexical search rather
// than blocking indexing.
func (i *Indexer) indexDocument(ctx context.Context, document *model.Document) error {
	chunks, err := i.pipeline.Chunk(document.Content)
	if err != nil {
		_, finishErr := i.documents.FinishDocumentIndex(document.RID, model.IndexStateDegraded)
		if finishErr != nil {
			i.logger.Error("Finishing failed index pass", slog.String("rid", document.RID.String()), slog.String("error", finishErr.Error()))
		}
		return fmt.Errorf("chunking document %v: %w", document.RID, err)
	}

	failures := i.embedChunks(ctx, chunks)

	state := model.IndexStateReady
	failed := 0
	var firstFailure error
	for _, failure := range failures {
		if failure != nil {
			failed++
			if firstFailure == nil {
				firstFailure = failure
			}
		}
	}
	if failed > 0 {
		state = model.IndexStateDegraded
	}

	err = i.chunks.ReplaceDocumentChunks(document, chunks, state)
	if err != nil {
		return fmt.Errorf("replacing chunks of document %v: %w", document.RID, err)
	}

	if failed > 0 {
		i.logger.Warn("Document indexed degraded",
			slog.String("rid", document.RID.String()),
			slog.Int("failed_chunks", failed),
			slog.String("error", firstFailure.Error()))
	}

	i.updateSearchMetadata(document)
	i.proposeReferenceRelations(document)

	return nil
}

// embedChunks embeds the chunk contents in rate limited batches and
// stores the vectors on the chunks. The returned slice holds one error
// per chunk, nil where embedding succeeded. A failed batch call falls
// back to embedding its chunks one by one so a single poisoned input
// cannot fail the whole batch.
func (i *Indexer) embedChunks(ctx context.Context, chunks []*model.Chunk) []error {
	failures := make([]error, len(chunks))

	batchSize := i.config.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	for start := 0; start < len(chunks); start += batchSize {
		if ctx.Err() != nil {
			for index := start; index < len(chunks); index++ {
				failures[index] = ctx.Err()
			}
			return failures
		}

		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for index, chunk := range batch {
			texts[index] = chunk.Content
		}

		embeddings, err := i.embedBatch(ctx, texts)
		if err == nil {
			for index, chunk := range batch {
				chunk.Embedding = embeddings[index]
			}
			continue
		}
		if len(batch) == 1 {
			failures[start] = err
			continue
		}

		for index, chunk := range batch {
			embeddings, err := i.embedBatch(ctx, texts[index:index+1])
			if err != nil {
				failures[start+index] = err
				continue
			}
			chunk.Embedding = embeddings[0]
		}
	}

	return failures
}

// embedBatch waits on the rate limiter and runs one embedding call.
func (i *Indexer) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if i.pipeline.Embedder == nil {
		return nil, fmt.Errorf("embedder not set")
	}

	err := i.limiter.Wait(ctx)
	if err != nil {
		return nil, err
	}

	embeddings, err := i.pipeline.Embedder(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d embeddings for %d texts", len(embeddings), len(texts))
	}
	for _, embedding := range embeddings {
		if i.pipeline.EmbeddingDim > 0 && len(embedding) != i.pipeline.EmbeddingDim {
			return nil, fmt.Errorf("%w: got %d, want %d", model.ErrEmbeddingDimension, len(embedding), i.pipeline.EmbeddingDim)
		}
	}
	return embeddings, nil
}

// retryPendingChunks re-embeds due pending chunks and promotes
// documents whose chunk set has become fully ready.
func (i *Indexer) retryPendingChunks(ctx context.Context) {
	batchSize := i.config.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	claimed, err := i.chunks.ClaimPendingChunks(batchSize, pendingLease)
	if err != nil {
		i.logger.Error("Claiming pending chunks failed", slog.String("error", err.Error()))
		return
	}
	if len(claimed) == 0 {
		return
	}

	failures := i.embedChunks(ctx, claimed)
	for index, chunk := range claimed {
		if failures[index] != nil {
			_, err := i.chunks.FailChunkEmbedding(chunk.RID, failures[index].Error(), i.config.RetryBackoff.Std(), i.config.MaxAttempts)
			if err != nil {
				i.logger.Error("Recording chunk failure failed", slog.String("rid", chunk.RID.String()), slog.String("error", err.Error()))
			}
			continue
		}

		err := i.chunks.UpdateChunkEmbedding(chunk)
		if err != nil {
			i.logger.Error("Storing chunk embedding failed", slog.String("rid", chunk.RID.String()), slog.String("error", err.Error()))
		}
	}

	promoted, err := i.chunks.PromoteReadyDocuments()
	if err != nil {
		i.logger.Error("Promoting ready documents failed", slog.String("error", err.Error()))
		return
	}
	if len(promoted) > 0 {
		i.logger.Info("Promoted documents to ready", slog.Int("count", len(promoted)))
	}
}

// updateSearchMetadata extracts the document level keywords into the
// search metadata.
func (i *Indexer) updateSearchMetadata(document *model.Document) {
	if i.metadata == nil || i.pipeline.Keywords == nil {
		return
	}

	keywords := i.pipeline.Keywords(document.Content, documentKeywords)
	_, err := i.metadata.UpsertSearchKeywords(document.RID, keywords)
	if err != nil {
		i.logger.Error("Upserting search keywords failed", slog.String("rid", document.RID.String()), slog.String("error", err.Error()))
	}
}

// proposeReferenceRelations resolves legal references detected in the
// document content to corpus documents and proposes weak reference
// relations for them. Self references and already existing relations
// are skipped.
func (i *Indexer) proposeReferenceRelations(document *model.Document) {
	if !i.config.DetectReferences || i.relations == nil || i.pipeline.References == nil {
		return
	}

	for _, reference := range i.pipeline.References(document.Content) {
		matches, err := i.documents.SelectDocumentsByReference(reference.Key, referenceMatchLimit)
		if err != nil {
			i.logger.Error("Resolving reference failed", slog.String("key", reference.Key), slog.String("error", err.Error()))
			continue
		}

		for _, match := range matches {
			if match.RID == document.RID {
				continue
			}

			attributes := model.Attributes{}
			attributes.SetSource("reference_detection")
			attributes["reference"] = reference.Text

			err := i.relations.InsertRelation(&model.Relation{
				SourceRID:  document.RID,
				TargetRID:  match.RID,
				Type:       model.RelationTypeReferences,
				Strength:   referenceStrength,
				Attributes: attributes,
			})
			if err != nil && !errors.Is(err, model.ErrRelationExists) {
				i.logger.Error("Proposing reference relation failed",
					slog.String("source", document.RID.String()),
					slog.String("target", match.RID.String()),
					slog.String("error", err.Error()))
			}
		}
	}
}

// aggregateFeedback claims a batch of unprocessed feedback, applies the
// relevance deltas to the targeted documents and refreshes the
// popularity scores. Popularity decays over time, so the refresh runs
// even when no feedback arrived.
func (i *Indexer) aggregateFeedback() {
	claimed, err := i.feedback.ClaimUnprocessedFeedback(feedbackBatch)
	if err != nil {
		i.logger.Error("Claiming feedback failed", slog.String("error", err.Error()))
		return
	}

	for _, feedback := range claimed {
		delta := feedback.RelevanceDelta()
		if delta == 0 {
			continue
		}

		targets := feedback.GroundingRIDs
		if feedback.DocumentRID != nil {
			targets = []uuid.UUID{*feedback.DocumentRID}
		}

		for _, target := range targets {
			_, err := i.metadata.RecordDocumentRelevance(target, delta)
			if err != nil {
				i.logger.Error("Recording document relevance failed", slog.String("rid", target.String()), slog.String("error", err.Error()))
			}
		}
	}

	_, err = i.metadata.RefreshPopularityScores()
	if err != nil {
		i.logger.Error("Refreshing popularity scores failed", slog.String("error", err.Error()))
	}
}
