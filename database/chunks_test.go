package database

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/counsel/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEmbedding returns a 384-dimension embedding with weight on one axis.
func testEmbedding(axis int) []float32 {
	embedding := make([]float32, 384)
	embedding[axis%384] = 1.0
	return embedding
}

func TestChunksNewChunksDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewChunksDBHandler", func(t *testing.T) {
		// Create categories and documents handlers first to ensure the
		// referenced tables exist (needed for foreign keys)
		_, err := NewCategoriesDBHandler(database, true)
		require.NoError(t, err, "Expected NewCategoriesDBHandler to not return an error")
		_, err = NewDocumentsDBHandler(database, "english", true)
		require.NoError(t, err, "Expected NewDocumentsDBHandler to not return an error")

		chunksDbHandler, err := NewChunksDBHandler(database, 384, "english", true)
		assert.NoError(t, err, "Expected NewChunksDBHandler to not return an error")
		require.NotNil(t, chunksDbHandler, "Expected NewChunksDBHandler to return a non-nil instance")
		require.NotNil(t, chunksDbHandler.db, "Expected NewChunksDBHandler to have a non-nil database instance")
		require.NotNil(t, chunksDbHandler.db.Instance, "Expected NewChunksDBHandler to have a non-nil database connection instance")
	})

	t.Run("Invalid call NewChunksDBHandler with nil database", func(t *testing.T) {
		_, err := NewChunksDBHandler(nil, 384, "english", false)
		assert.Error(t, err, "Expected error when creating ChunksDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestChunksInsert(t *testing.T) {
	database := initDB(t)

	categoriesDbHandler, err := NewCategoriesDBHandler(database, true)
	require.NoError(t, err)
	documentsDbHandler, err := NewDocumentsDBHandler(database, "english", true)
	require.NoError(t, err)
	chunksDbHandler, err := NewChunksDBHandler(database, 384, "english", true)
	require.NoError(t, err)

	doc := seedDocument(t, categoriesDbHandler, documentsDbHandler, "Chunked Document")

	t.Run("Insert chunk without embedding", func(t *testing.T) {
		chunk := &model.Chunk{
			DocumentID:      doc.ID,
			DocumentVersion: doc.Version,
			ChunkIndex:      0,
			StartPos:        0,
			EndPos:          20,
			Content:         "This is a test chunk",
		}

		err := chunksDbHandler.InsertChunk(chunk)
		assert.NoError(t, err, "Expected Insert to not return an error")
		assert.NotEmpty(t, chunk.RID, "Expected inserted chunk to have a RID")
		assert.Equal(t, doc.RID, chunk.DocumentRID, "Expected document RID to be resolved")
		assert.Equal(t, model.ChunkStatusPending, chunk.Status, "Expected chunk without embedding to be pending")
		assert.WithinDuration(t, chunk.CreatedAt, time.Now(), 2*time.Second, "Expected CreatedAt to be set")
	})

	t.Run("Insert chunk with embedding", func(t *testing.T) {
		chunk := &model.Chunk{
			DocumentID:      doc.ID,
			DocumentVersion: doc.Version,
			ChunkIndex:      1,
			StartPos:        21,
			EndPos:          47,
			Content:         "This is another test chunk",
			Embedding:       testEmbedding(0),
		}

		err := chunksDbHandler.InsertChunk(chunk)
		assert.NoError(t, err, "Expected Insert to not return an error")
		assert.Equal(t, model.ChunkStatusReady, chunk.Status, "Expected chunk with embedding to be ready")
		assert.Equal(t, 384, len(chunk.Embedding), "Expected embedding to be preserved")
	})

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestChunksGet(t *testing.T) {
	database := initDB(t)

	categoriesDbHandler, err := NewCategoriesDBHandler(database, true)
	require.NoError(t, err)
	documentsDbHandler, err := NewDocumentsDBHandler(database, "english", true)
	require.NoError(t, err)
	chunksDbHandler, err := NewChunksDBHandler(database, 384, "english", true)
	require.NoError(t, err)

	doc := seedDocument(t, categoriesDbHandler, documentsDbHandler, "Gettable Chunks")

	chunkCount := 3
	chunks := make([]*model.Chunk, chunkCount)
	for i := 0; i < chunkCount; i++ {
		chunks[i] = &model.Chunk{
			DocumentID:      doc.ID,
			DocumentVersion: doc.Version,
			ChunkIndex:      chunkCount - 1 - i,
			StartPos:        i * 10,
			EndPos:          i*10 + 10,
			Content:         "Chunk content",
		}
		err = chunksDbHandler.InsertChunk(chunks[i])
		require.NoError(t, err)
	}

	t.Run("Get chunk", func(t *testing.T) {
		retrievedChunk, err := chunksDbHandler.SelectChunk(chunks[0].RID)
		assert.NoError(t, err, "Expected Get to not return an error")
		require.NotNil(t, retrievedChunk, "Expected Get to return a non-nil chunk")
		assert.Equal(t, chunks[0].RID, retrievedChunk.RID, "Expected chunk RIDs to match")
		assert.Equal(t, chunks[0].Content, retrievedChunk.Content, "Expected chunk content to match")
	})

	t.Run("Get missing chunk", func(t *testing.T) {
		_, err := chunksDbHandler.SelectChunk(uuid.New())
		assert.Error(t, err, "Expected Get to return an error for missing chunk")
		assert.ErrorIs(t, err, model.ErrNotFound, "Expected not found error")
	})

	t.Run("Get chunks by document in chunk order", func(t *testing.T) {
		retrievedChunks, err := chunksDbHandler.SelectChunksByDocument(doc.RID)
		assert.NoError(t, err, "Expected SelectChunksByDocument to not return an error")
		require.Len(t, retrievedChunks, chunkCount, "Expected to retrieve all chunks")
		for i, retrieved := range retrievedChunks {
			assert.Equal(t, i, retrieved.ChunkIndex, "Expected chunks ordered by chunk index")
		}
	})

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestChunksSearchBySimilarity(t *testing.T) {
	database := initDB(t)

	categoriesDbHandler, err := NewCategoriesDBHandler(database, true)
	require.NoError(t, err)
	documentsDbHandler, err := NewDocumentsDBHandler(database, "english", true)
	require.NoError(t, err)
	chunksDbHandler, err := NewChunksDBHandler(database, 384, "english", true)
	require.NoError(t, err)
	// Search metadata feeds the popularity column of the result rows
	_, err = NewSearchDBHandler(database, true)
	require.NoError(t, err)

	doc := seedDocument(t, categoriesDbHandler, documentsDbHandler, "Similarity Document")

	chunks := make([]*model.Chunk, 3)
	for i := range chunks {
		chunks[i] = &model.Chunk{
			DocumentID:      doc.ID,
			DocumentVersion: doc.Version,
			ChunkIndex:      i,
			StartPos:        i * 10,
			EndPos:          i*10 + 10,
			Content:         "Similarity chunk content",
			Embedding:       testEmbedding(i),
		}
		err = chunksDbHandler.InsertChunk(chunks[i])
		require.NoError(t, err)
	}

	// A pending chunk is never eligible for retrieval
	pending := &model.Chunk{
		DocumentID:      doc.ID,
		DocumentVersion: doc.Version,
		ChunkIndex:      3,
		StartPos:        30,
		EndPos:          40,
		Content:         "Pending chunk content",
	}
	err = chunksDbHandler.InsertChunk(pending)
	require.NoError(t, err)

	t.Run("Search by similarity", func(t *testing.T) {
		query := testEmbedding(0)
		results, err := chunksDbHandler.SelectChunksBySimilarity(query, 2, model.Filters{DocumentRIDs: []uuid.UUID{doc.RID}})
		assert.NoError(t, err, "Expected SearchBySimilarity to not return an error")
		require.NotEmpty(t, results, "Expected to find similar chunks")
		assert.LessOrEqual(t, len(results), 2, "Expected at most 2 results")

		assert.Equal(t, chunks[0].RID, results[0].Chunk.RID, "Expected the aligned chunk first")
		assert.InDelta(t, 1.0, results[0].Similarity, 0.001, "Expected full similarity for an identical embedding")
		assert.Equal(t, doc.Title, results[0].DocumentTitle, "Expected the document title on the result")
		assert.Equal(t, model.RetrievalMethodVector, results[0].Method, "Expected the vector retrieval method")

		for _, result := range results {
			assert.NotEqual(t, pending.RID, result.Chunk.RID, "Expected pending chunks to be excluded")
		}
	})

	t.Run("Search with type filter", func(t *testing.T) {
		query := testEmbedding(0)
		results, err := chunksDbHandler.SelectChunksBySimilarity(query, 10, model.Filters{
			Types:        []model.DocumentType{model.DocumentTypeStatute},
			DocumentRIDs: []uuid.UUID{doc.RID},
		})
		assert.NoError(t, err, "Expected SearchBySimilarity to not return an error")
		assert.Empty(t, results, "Expected no results outside the type filter")
	})

	t.Run("Search with category filter", func(t *testing.T) {
		query := testEmbedding(0)
		results, err := chunksDbHandler.SelectChunksBySimilarity(query, 10, model.Filters{CategoryPath: doc.CategoryPath})
		assert.NoError(t, err, "Expected SearchBySimilarity to not return an error")
		assert.Len(t, results, 3, "Expected all ready chunks of the category")
	})

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestChunksSearchByText(t *testing.T) {
	database := initDB(t)

	categoriesDbHandler, err := NewCategoriesDBHandler(database, true)
	require.NoError(t, err)
	documentsDbHandler, err := NewDocumentsDBHandler(database, "english", true)
	require.NoError(t, err)
	chunksDbHandler, err := NewChunksDBHandler(database, 384, "english", true)
	require.NoError(t, err)
	_, err = NewSearchDBHandler(database, true)
	require.NoError(t, err)

	doc := seedDocument(t, categoriesDbHandler, documentsDbHandler, "Lexical Document")

	matching := &model.Chunk{
		DocumentID:      doc.ID,
		DocumentVersion: doc.Version,
		ChunkIndex:      0,
		StartPos:        0,
		EndPos:          50,
		Content:         "The probationary period can be renewed once in writing.",
		Embedding:       testEmbedding(0),
	}
	err = chunksDbHandler.InsertChunk(matching)
	require.NoError(t, err)

	other := &model.Chunk{
		DocumentID:      doc.ID,
		DocumentVersion: doc.Version,
		ChunkIndex:      1,
		StartPos:        51,
		EndPos:          100,
		Content:         "Severance depends on seniority and salary.",
		Embedding:       testEmbedding(1),
	}
	err = chunksDbHandler.InsertChunk(other)
	require.NoError(t, err)

	t.Run("Search by text", func(t *testing.T) {
		results, err := chunksDbHandler.SelectChunksByText("probationary period", 10, model.Filters{DocumentRIDs: []uuid.UUID{doc.RID}})
		assert.NoError(t, err, "Expected SearchByText to not return an error")
		require.Len(t, results, 1, "Expected only the matching chunk")
		assert.Equal(t, matching.RID, results[0].Chunk.RID, "Expected the probation chunk")
		assert.Greater(t, results[0].Lexical, 0.0, "Expected a positive lexical rank")
		assert.Less(t, results[0].Lexical, 1.0, "Expected the lexical rank normalized below 1")
		assert.Equal(t, model.RetrievalMethodLexical, results[0].Method, "Expected the lexical retrieval method")
	})

	t.Run("Search with no match", func(t *testing.T) {
		results, err := chunksDbHandler.SelectChunksByText("nonexistentterm", 10, model.Filters{DocumentRIDs: []uuid.UUID{doc.RID}})
		assert.NoError(t, err, "Expected SearchByText to not return an error")
		assert.Empty(t, results, "Expected no results for an unknown term")
	})

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestChunksClaimPending(t *testing.T) {
	database := initDB(t)

	categoriesDbHandler, err := NewCategoriesDBHandler(database, true)
	require.NoError(t, err)
	documentsDbHandler, err := NewDocumentsDBHandler(database, "english", true)
	require.NoError(t, err)
	chunksDbHandler, err := NewChunksDBHandler(database, 384, "english", true)
	require.NoError(t, err)

	doc := seedDocument(t, categoriesDbHandler, documentsDbHandler, "Claimable Chunks")

	chunk := &model.Chunk{
		DocumentID:      doc.ID,
		DocumentVersion: doc.Version,
		ChunkIndex:      0,
		StartPos:        0,
		EndPos:          10,
		Content:         "Pending chunk",
	}
	err = chunksDbHandler.InsertChunk(chunk)
	require.NoError(t, err)

	t.Run("Claim pending chunks", func(t *testing.T) {
		claimed, err := chunksDbHandler.ClaimPendingChunks(100, time.Minute)
		assert.NoError(t, err, "Expected ClaimPendingChunks to not return an error")

		var found *model.Chunk
		for _, c := range claimed {
			if c.RID == chunk.RID {
				found = c
			}
		}
		require.NotNil(t, found, "Expected the pending chunk to be claimed")
		require.NotNil(t, found.NextRetryAt, "Expected the lease to set next retry")
		assert.True(t, found.NextRetryAt.After(time.Now()), "Expected the lease to reach into the future")
	})

	t.Run("Leased chunks are not claimed twice", func(t *testing.T) {
		claimed, err := chunksDbHandler.ClaimPendingChunks(100, time.Minute)
		assert.NoError(t, err, "Expected ClaimPendingChunks to not return an error")
		for _, c := range claimed {
			assert.NotEqual(t, chunk.RID, c.RID, "Expected the leased chunk to be skipped")
		}
	})

	t.Run("Update embedding resolves the chunk", func(t *testing.T) {
		chunk.Embedding = testEmbedding(5)
		err := chunksDbHandler.UpdateChunkEmbedding(chunk)
		assert.NoError(t, err, "Expected UpdateChunkEmbedding to not return an error")
		assert.Equal(t, model.ChunkStatusReady, chunk.Status, "Expected chunk to be ready")
		assert.Nil(t, chunk.NextRetryAt, "Expected the retry schedule to be cleared")
	})

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestChunksFailEmbedding(t *testing.T) {
	database := initDB(t)

	categoriesDbHandler, err := NewCategoriesDBHandler(database, true)
	require.NoError(t, err)
	documentsDbHandler, err := NewDocumentsDBHandler(database, "english", true)
	require.NoError(t, err)
	chunksDbHandler, err := NewChunksDBHandler(database, 384, "english", true)
	require.NoError(t, err)

	doc := seedDocument(t, categoriesDbHandler, documentsDbHandler, "Failing Chunks")

	chunk := &model.Chunk{
		DocumentID:      doc.ID,
		DocumentVersion: doc.Version,
		ChunkIndex:      0,
		StartPos:        0,
		EndPos:          10,
		Content:         "Unembeddable chunk",
	}
	err = chunksDbHandler.InsertChunk(chunk)
	require.NoError(t, err)

	t.Run("Failure schedules a retry with backoff", func(t *testing.T) {
		failed, err := chunksDbHandler.FailChunkEmbedding(chunk.RID, "embedding service unavailable", 30*time.Second, 3)
		assert.NoError(t, err, "Expected FailChunkEmbedding to not return an error")
		require.NotNil(t, failed, "Expected the failed chunk")
		assert.Equal(t, 1, failed.Attempts, "Expected attempts to be counted")
		assert.Equal(t, model.ChunkStatusPending, failed.Status, "Expected chunk to stay pending below the attempt limit")
		require.NotNil(t, failed.NextRetryAt, "Expected a retry schedule")
		assert.True(t, failed.NextRetryAt.After(time.Now()), "Expected the retry in the future")
		assert.Equal(t, "embedding service unavailable", failed.LastError, "Expected the failure cause to be recorded")
	})

	t.Run("Reaching the attempt limit is terminal", func(t *testing.T) {
		var failed *model.Chunk
		for i := 0; i < 2; i++ {
			failed, err = chunksDbHandler.FailChunkEmbedding(chunk.RID, "still unavailable", 30*time.Second, 3)
			require.NoError(t, err)
		}
		assert.Equal(t, 3, failed.Attempts, "Expected all attempts to be counted")
		assert.Equal(t, model.ChunkStatusError, failed.Status, "Expected the terminal error status")
		assert.Nil(t, failed.NextRetryAt, "Expected no further retries")
	})

	t.Run("Fail missing chunk", func(t *testing.T) {
		_, err := chunksDbHandler.FailChunkEmbedding(uuid.New(), "gone", time.Second, 3)
		assert.Error(t, err, "Expected error for missing chunk")
		assert.ErrorIs(t, err, model.ErrNotFound, "Expected not found error")
	})

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestChunksReplaceDocumentChunks(t *testing.T) {
	database := initDB(t)

	categoriesDbHandler, err := NewCategoriesDBHandler(database, true)
	require.NoError(t, err)
	documentsDbHandler, err := NewDocumentsDBHandler(database, "english", true)
	require.NoError(t, err)
	chunksDbHandler, err := NewChunksDBHandler(database, 384, "english", true)
	require.NoError(t, err)

	doc := seedDocument(t, categoriesDbHandler, documentsDbHandler, "Replaceable Chunks")

	// Old chunk set from a previous version
	oldChunk := &model.Chunk{
		DocumentID:      doc.ID,
		DocumentVersion: doc.Version,
		ChunkIndex:      0,
		StartPos:        0,
		EndPos:          10,
		Content:         "Old chunk",
		Embedding:       testEmbedding(0),
	}
	err = chunksDbHandler.InsertChunk(oldChunk)
	require.NoError(t, err)

	// Claim the document so the swap can finish the indexing pass
	_, err = documentsDbHandler.ClaimStaleDocuments(100)
	require.NoError(t, err)

	newChunks := []*model.Chunk{
		{ChunkIndex: 0, StartPos: 0, EndPos: 12, Content: "New chunk one", Embedding: testEmbedding(1)},
		{ChunkIndex: 1, StartPos: 8, EndPos: 22, Content: "New chunk two", Embedding: testEmbedding(2)},
	}

	err = chunksDbHandler.ReplaceDocumentChunks(doc, newChunks, model.IndexStateReady)
	assert.NoError(t, err, "Expected ReplaceDocumentChunks to not return an error")

	// The old set is gone, the new set is in place
	retrievedChunks, err := chunksDbHandler.SelectChunksByDocument(doc.RID)
	require.NoError(t, err)
	require.Len(t, retrievedChunks, 2, "Expected exactly the new chunk set")
	assert.NotEqual(t, oldChunk.RID, retrievedChunks[0].RID, "Expected the old chunk to be replaced")
	assert.Equal(t, "New chunk one", retrievedChunks[0].Content, "Expected the new chunk content")
	assert.Equal(t, doc.ID, newChunks[0].DocumentID, "Expected the document id to be filled in")

	// The indexing pass is finished
	retrievedDoc, err := documentsDbHandler.SelectDocument(doc.RID)
	require.NoError(t, err)
	assert.Equal(t, model.IndexStateReady, retrievedDoc.IndexState, "Expected the document to be ready")

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestChunksPromoteReadyDocuments(t *testing.T) {
	database := initDB(t)

	categoriesDbHandler, err := NewCategoriesDBHandler(database, true)
	require.NoError(t, err)
	documentsDbHandler, err := NewDocumentsDBHandler(database, "english", true)
	require.NoError(t, err)
	chunksDbHandler, err := NewChunksDBHandler(database, 384, "english", true)
	require.NoError(t, err)

	doc := seedDocument(t, categoriesDbHandler, documentsDbHandler, "Degraded Document")

	// A degraded pass: one chunk embedded, one pending
	_, err = documentsDbHandler.ClaimStaleDocuments(100)
	require.NoError(t, err)

	chunks := []*model.Chunk{
		{ChunkIndex: 0, StartPos: 0, EndPos: 10, Content: "Embedded chunk", Embedding: testEmbedding(0)},
		{ChunkIndex: 1, StartPos: 10, EndPos: 20, Content: "Failed chunk"},
	}
	err = chunksDbHandler.ReplaceDocumentChunks(doc, chunks, model.IndexStateDegraded)
	require.NoError(t, err)

	t.Run("Degraded document is not promoted early", func(t *testing.T) {
		promoted, err := chunksDbHandler.PromoteReadyDocuments()
		assert.NoError(t, err, "Expected PromoteReadyDocuments to not return an error")
		assert.NotContains(t, promoted, doc.RID, "Expected the document to stay degraded while chunks are pending")
	})

	t.Run("Promotion after the last chunk becomes ready", func(t *testing.T) {
		chunks[1].Embedding = testEmbedding(1)
		err := chunksDbHandler.UpdateChunkEmbedding(chunks[1])
		require.NoError(t, err)

		promoted, err := chunksDbHandler.PromoteReadyDocuments()
		assert.NoError(t, err, "Expected PromoteReadyDocuments to not return an error")
		assert.Contains(t, promoted, doc.RID, "Expected the document to be promoted")

		retrievedDoc, err := documentsDbHandler.SelectDocument(doc.RID)
		require.NoError(t, err)
		assert.Equal(t, model.IndexStateReady, retrievedDoc.IndexState, "Expected the document to be ready")
	})

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestChunksDelete(t *testing.T) {
	database := initDB(t)

	categoriesDbHandler, err := NewCategoriesDBHandler(database, true)
	require.NoError(t, err)
	documentsDbHandler, err := NewDocumentsDBHandler(database, "english", true)
	require.NoError(t, err)
	chunksDbHandler, err := NewChunksDBHandler(database, 384, "english", true)
	require.NoError(t, err)

	doc := seedDocument(t, categoriesDbHandler, documentsDbHandler, "Deletable Chunks")

	chunks := make([]*model.Chunk, 2)
	for i := range chunks {
		chunks[i] = &model.Chunk{
			DocumentID:      doc.ID,
			DocumentVersion: doc.Version,
			ChunkIndex:      i,
			StartPos:        i * 10,
			EndPos:          i*10 + 10,
			Content:         "Deletable chunk",
		}
		err = chunksDbHandler.InsertChunk(chunks[i])
		require.NoError(t, err)
	}

	t.Run("Delete single chunk", func(t *testing.T) {
		err := chunksDbHandler.DeleteChunk(chunks[0].RID)
		assert.NoError(t, err, "Expected Delete to not return an error")

		_, err = chunksDbHandler.SelectChunk(chunks[0].RID)
		assert.Error(t, err, "Expected Get to return an error for deleted chunk")
		assert.ErrorIs(t, err, model.ErrNotFound, "Expected not found error")
	})

	t.Run("Delete all document chunks", func(t *testing.T) {
		count, err := chunksDbHandler.DeleteDocumentChunks(doc.ID)
		assert.NoError(t, err, "Expected DeleteDocumentChunks to not return an error")
		assert.Equal(t, 1, count, "Expected the remaining chunk to be deleted")

		retrievedChunks, err := chunksDbHandler.SelectChunksByDocument(doc.RID)
		require.NoError(t, err)
		assert.Empty(t, retrievedChunks, "Expected no chunks to remain")
	})

	t.Run("Delete missing chunk", func(t *testing.T) {
		err := chunksDbHandler.DeleteChunk(uuid.New())
		assert.Error(t, err, "Expected Delete to return an error for missing chunk")
		assert.ErrorIs(t, err, model.ErrNotFound, "Expected not found error")
	})

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
}
