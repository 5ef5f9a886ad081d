package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/counsel/helper"
	"github.com/siherrmann/counsel/model"
	loadSql "github.com/siherrmann/counsel/sql"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	InsertChunk(chunk *model.Chunk) error
	SelectChunk(rid uuid.UUID) (*model.Chunk, error)
	SelectChunksByDocument(documentRID uuid.UUID) ([]*model.Chunk, error)
	SelectChunksBySimilarity(embedding []float32, limit int, filters model.Filters) ([]*model.RetrievalResult, error)
	SelectChunksByText(query string, limit int, filters model.Filters) ([]*model.RetrievalResult, error)
	ClaimPendingChunks(limit int, lease time.Duration) ([]*model.Chunk, error)
	UpdateChunkEmbedding(chunk *model.Chunk) error
	FailChunkEmbedding(rid uuid.UUID, cause string, backoff time.Duration, maxAttempts int) (*model.Chunk, error)
	ReplaceDocumentChunks(doc *model.Document, chunks []*model.Chunk, state model.IndexState) error
	DeleteDocumentChunks(documentID int64) (int, error)
	DeleteChunk(rid uuid.UUID) error
	PromoteReadyDocuments() ([]uuid.UUID, error)
	ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error
}

// ChunksDBHandler handles chunk-related database operations
type ChunksDBHandler struct {
	db           *helper.Database
	searchConfig string
}

// NewChunksDBHandler creates a new chunks database handler.
// It initializes the database connection and loads chunk-related SQL functions.
// embeddingDim fixes the vector column dimension; searchConfig is the
// PostgreSQL text search configuration for the generated search vectors.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, embeddingDim int, searchConfig string, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	chunksDbHandler := &ChunksDBHandler{
		db:           db,
		searchConfig: searchConfig,
	}

	err := loadSql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes including the HNSW vector index.
func (h *ChunksDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1, $2);`, embeddingDim, h.searchConfig)
	if err != nil {
		log.Panicf("error initializing chunks table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

// InsertChunk inserts a new chunk. A chunk without an embedding starts
// pending, one with an embedding starts ready.
func (h *ChunksDBHandler) InsertChunk(chunk *model.Chunk) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_chunk($1, $2, $3, $4, $5, $6, $7)`,
		chunk.DocumentID,
		chunk.DocumentVersion,
		chunk.ChunkIndex,
		chunk.StartPos,
		chunk.EndPos,
		chunk.Content,
		vectorParam(chunk.Embedding),
	)

	err := h.scanChunk(row, chunk)
	if err != nil {
		return helper.NewError("scan", mapError(err))
	}

	return nil
}

// SelectChunk retrieves a chunk by RID
func (h *ChunksDBHandler) SelectChunk(rid uuid.UUID) (*model.Chunk, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_chunk($1)`,
		rid,
	)

	chunk := &model.Chunk{}
	err := h.scanChunk(row, chunk)
	if err != nil {
		return nil, helper.NewError("scan", mapError(err))
	}

	return chunk, nil
}

// SelectChunksByDocument retrieves all chunks of a document in chunk order
func (h *ChunksDBHandler) SelectChunksByDocument(documentRID uuid.UUID) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_document($1)`,
		documentRID,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	return h.scanChunkRows(rows)
}

// SelectChunksBySimilarity performs vector similarity search over ready
// chunks, closest first. Filters restrict the eligible document set.
func (h *ChunksDBHandler) SelectChunksBySimilarity(embedding []float32, limit int, filters model.Filters) ([]*model.RetrievalResult, error) {
	types, categoryPath, tags, documentRIDs := filterParams(filters)

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_similarity($1, $2, $3, $4, $5, $6)`,
		vectorParam(embedding),
		limit,
		types,
		categoryPath,
		tags,
		documentRIDs,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	var results []*model.RetrievalResult
	for rows.Next() {
		chunk := &model.Chunk{}
		result := &model.RetrievalResult{Chunk: chunk, Method: model.RetrievalMethodVector}
		err := rows.Scan(
			&chunk.ID,
			&chunk.RID,
			&chunk.DocumentID,
			&chunk.DocumentRID,
			&chunk.DocumentVersion,
			&chunk.ChunkIndex,
			&chunk.StartPos,
			&chunk.EndPos,
			&chunk.Content,
			&chunk.Status,
			&result.DocumentTitle,
			&result.Similarity,
			&result.Popularity,
		)
		if err != nil {
			return nil, helper.NewError("scan", mapError(err))
		}

		chunk.Similarity = result.Similarity
		chunk.Method = model.RetrievalMethodVector
		results = append(results, result)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", mapError(err))
	}

	return results, nil
}

// SelectChunksByText performs full text search over ready chunks, best
// rank first. Filters restrict the eligible document set.
func (h *ChunksDBHandler) SelectChunksByText(query string, limit int, filters model.Filters) ([]*model.RetrievalResult, error) {
	types, categoryPath, tags, documentRIDs := filterParams(filters)

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_text($1, $2, $3, $4, $5, $6, $7)`,
		query,
		h.searchConfig,
		limit,
		types,
		categoryPath,
		tags,
		documentRIDs,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	var results []*model.RetrievalResult
	for rows.Next() {
		chunk := &model.Chunk{}
		result := &model.RetrievalResult{Chunk: chunk, Method: model.RetrievalMethodLexical}
		err := rows.Scan(
			&chunk.ID,
			&chunk.RID,
			&chunk.DocumentID,
			&chunk.DocumentRID,
			&chunk.DocumentVersion,
			&chunk.ChunkIndex,
			&chunk.StartPos,
			&chunk.EndPos,
			&chunk.Content,
			&chunk.Status,
			&result.DocumentTitle,
			&result.Lexical,
			&result.Popularity,
		)
		if err != nil {
			return nil, helper.NewError("scan", mapError(err))
		}

		chunk.LexicalRank = result.Lexical
		chunk.Method = model.RetrievalMethodLexical
		results = append(results, result)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", mapError(err))
	}

	return results, nil
}

// ClaimPendingChunks claims up to limit pending chunks that are due for
// an embedding attempt, leasing them for the given duration so other
// claimers skip them.
func (h *ChunksDBHandler) ClaimPendingChunks(limit int, lease time.Duration) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM claim_pending_chunks($1, $2)`,
		limit,
		int(lease.Seconds()),
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	return h.scanChunkRows(rows)
}

// UpdateChunkEmbedding stores the embedding of a chunk and moves it to
// the ready status, clearing any retry state.
func (h *ChunksDBHandler) UpdateChunkEmbedding(chunk *model.Chunk) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM update_chunk_embedding($1, $2)`,
		chunk.RID,
		vectorParam(chunk.Embedding),
	)

	err := h.scanChunk(row, chunk)
	if err != nil {
		return helper.NewError("scan", mapError(err))
	}

	return nil
}

// FailChunkEmbedding records a failed embedding attempt. The retry delay
// doubles per attempt starting from backoff; after maxAttempts the chunk
// moves to the terminal error status.
func (h *ChunksDBHandler) FailChunkEmbedding(rid uuid.UUID, cause string, backoff time.Duration, maxAttempts int) (*model.Chunk, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM fail_chunk_embedding($1, $2, $3, $4)`,
		rid,
		cause,
		int(backoff.Seconds()),
		maxAttempts,
	)

	chunk := &model.Chunk{}
	err := h.scanChunk(row, chunk)
	if err != nil {
		return nil, helper.NewError("scan", mapError(err))
	}

	return chunk, nil
}

// ReplaceDocumentChunks swaps the chunk set of a document in a single
// transaction and completes the indexing pass with the given state.
// Readers never observe a mixed set: they see the previous complete
// version until the commit, the new one after.
func (h *ChunksDBHandler) ReplaceDocumentChunks(doc *model.Document, chunks []*model.Chunk, state model.IndexState) error {
	tx, err := h.db.Instance.Begin()
	if err != nil {
		return helper.NewError("begin transaction", mapError(err))
	}
	defer tx.Rollback()

	_, err = tx.Exec(`SELECT delete_document_chunks($1)`, doc.ID)
	if err != nil {
		return helper.NewError("delete document chunks", mapError(err))
	}

	for _, chunk := range chunks {
		chunk.DocumentID = doc.ID
		chunk.DocumentVersion = doc.Version
		row := tx.QueryRow(
			`SELECT * FROM insert_chunk($1, $2, $3, $4, $5, $6, $7)`,
			chunk.DocumentID,
			chunk.DocumentVersion,
			chunk.ChunkIndex,
			chunk.StartPos,
			chunk.EndPos,
			chunk.Content,
			vectorParam(chunk.Embedding),
		)
		err := h.scanChunk(row, chunk)
		if err != nil {
			return helper.NewError("scan", mapError(err))
		}
	}

	_, err = tx.Exec(`SELECT * FROM finish_document_index($1, $2)`, doc.RID, state)
	if err != nil {
		return helper.NewError("finish document index", mapError(err))
	}

	err = tx.Commit()
	if err != nil {
		return helper.NewError("commit transaction", mapError(err))
	}

	return nil
}

// DeleteDocumentChunks deletes all chunks of a document and returns the
// number of deleted chunks
func (h *ChunksDBHandler) DeleteDocumentChunks(documentID int64) (int, error) {
	var count int
	err := h.db.Instance.QueryRow(
		`SELECT delete_document_chunks($1)`,
		documentID,
	).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", mapError(err))
	}
	return count, nil
}

// DeleteChunk deletes a chunk by RID
func (h *ChunksDBHandler) DeleteChunk(rid uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_chunk($1)`,
		rid,
	)
	if err != nil {
		return helper.NewError("exec", mapError(err))
	}
	return nil
}

// PromoteReadyDocuments promotes degraded documents whose chunks have
// all become ready and returns the promoted document RIDs.
func (h *ChunksDBHandler) PromoteReadyDocuments() ([]uuid.UUID, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM promote_ready_documents()`,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	var rids []uuid.UUID
	for rows.Next() {
		var rid uuid.UUID
		err := rows.Scan(&rid)
		if err != nil {
			return nil, helper.NewError("scan", mapError(err))
		}
		rids = append(rids, rid)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", mapError(err))
	}

	return rids, nil
}

// rowScanner is satisfied by sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanChunk scans one full chunk row including the nullable embedding
// and retry state.
func (h *ChunksDBHandler) scanChunk(row rowScanner, chunk *model.Chunk) error {
	return row.Scan(
		&chunk.ID,
		&chunk.RID,
		&chunk.DocumentID,
		&chunk.DocumentRID,
		&chunk.DocumentVersion,
		&chunk.ChunkIndex,
		&chunk.StartPos,
		&chunk.EndPos,
		&chunk.Content,
		nullVector{&chunk.Embedding},
		&chunk.Status,
		&chunk.Attempts,
		&chunk.NextRetryAt,
		&chunk.LastError,
		&chunk.CreatedAt,
	)
}

// scanChunkRows scans a full chunk result set.
func (h *ChunksDBHandler) scanChunkRows(rows *sql.Rows) ([]*model.Chunk, error) {
	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		err := h.scanChunk(rows, chunk)
		if err != nil {
			return nil, helper.NewError("scan", mapError(err))
		}

		chunks = append(chunks, chunk)
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", mapError(err))
	}

	return chunks, nil
}
