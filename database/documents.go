package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/siherrmann/counsel/helper"
	"github.com/siherrmann/counsel/model"
	loadSql "github.com/siherrmann/counsel/sql"
)

// DocumentsDBHandlerFunctions defines the interface for Documents database operations.
type DocumentsDBHandlerFunctions interface {
	InsertDocument(doc *model.Document, categoryRID uuid.UUID) error
	SelectDocument(rid uuid.UUID) (*model.Document, error)
	SelectAllDocuments(lastCreatedAt *time.Time, limit int) ([]*model.Document, error)
	SelectDocumentsByCategory(path string, limit int, offset int) ([]*model.Document, error)
	SelectDocumentsByType(docType model.DocumentType, limit int, offset int) ([]*model.Document, error)
	SelectDocumentsByTags(tags []string, limit int, offset int) ([]*model.Document, error)
	SelectDocumentsBySearch(searchTerm string, limit int) ([]*model.Document, error)
	SelectDocumentsByReference(key string, limit int) ([]*model.Document, error)
	UpdateDocument(doc *model.Document, expectedVersion int) error
	ClaimStaleDocuments(limit int) ([]*model.Document, error)
	ClaimDocument(rid uuid.UUID) (*model.Document, error)
	FinishDocumentIndex(rid uuid.UUID, state model.IndexState) (*model.Document, error)
	MarkDocumentStale(rid uuid.UUID) error
	DeleteDocument(rid uuid.UUID) error
}

// DocumentsDBHandler handles document-related database operations
type DocumentsDBHandler struct {
	db           *helper.Database
	searchConfig string
}

// NewDocumentsDBHandler creates a new documents database handler.
// It initializes the database connection and loads document-related SQL functions.
// searchConfig is the PostgreSQL text search configuration used for the
// generated search vectors ("english", "french", "simple", ...).
// If force is true, it will reload the SQL functions even if they already exist.
func NewDocumentsDBHandler(db *helper.Database, searchConfig string, force bool) (*DocumentsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	documentsDbHandler := &DocumentsDBHandler{
		db:           db,
		searchConfig: searchConfig,
	}

	err := loadSql.LoadDocumentsSql(documentsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load documents sql", err)
	}

	err = documentsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized DocumentsDBHandler")

	return documentsDbHandler, nil
}

// CreateTable creates the 'documents' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes and the generated search vector.
func (h *DocumentsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_documents($1);`, h.searchConfig)
	if err != nil {
		log.Panicf("error initializing documents table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table documents")

	return nil
}

// InsertDocument inserts a new document into the given category.
// The document starts at version 1 in the stale index state.
func (h *DocumentsDBHandler) InsertDocument(doc *model.Document, categoryRID uuid.UUID) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_document($1, $2, $3, $4, $5, $6, $7)`,
		doc.Title,
		doc.Content,
		doc.Summary,
		doc.Type,
		categoryRID,
		pq.Array(doc.Tags),
		doc.Attributes,
	)

	err := row.Scan(
		&doc.ID,
		&doc.RID,
		&doc.Title,
		&doc.Content,
		&doc.Summary,
		&doc.Type,
		&doc.CategoryID,
		&doc.CategoryPath,
		pq.Array(&doc.Tags),
		&doc.Attributes,
		&doc.Version,
		&doc.IndexState,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return helper.NewError("scan", mapError(err))
	}

	return nil
}

// SelectDocument retrieves a document by RID including its content
func (h *DocumentsDBHandler) SelectDocument(rid uuid.UUID) (*model.Document, error) {
	doc := &model.Document{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_document($1)`,
		rid,
	)

	err := row.Scan(
		&doc.ID,
		&doc.RID,
		&doc.Title,
		&doc.Content,
		&doc.Summary,
		&doc.Type,
		&doc.CategoryID,
		&doc.CategoryPath,
		pq.Array(&doc.Tags),
		&doc.Attributes,
		&doc.Version,
		&doc.IndexState,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", mapError(err))
	}

	return doc, nil
}

// SelectAllDocuments retrieves documents with keyset pagination, newest
// first. Listing results carry no content.
func (h *DocumentsDBHandler) SelectAllDocuments(lastCreatedAt *time.Time, limit int) ([]*model.Document, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_all_documents($1, $2)`,
		lastCreatedAt,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	return h.scanDocumentRows(rows)
}

// SelectDocumentsByCategory retrieves documents in the category subtree
// rooted at the given ltree path
func (h *DocumentsDBHandler) SelectDocumentsByCategory(path string, limit int, offset int) ([]*model.Document, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_documents_by_category($1, $2, $3)`,
		path,
		limit,
		offset,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	return h.scanDocumentRows(rows)
}

// SelectDocumentsByType retrieves documents of one type
func (h *DocumentsDBHandler) SelectDocumentsByType(docType model.DocumentType, limit int, offset int) ([]*model.Document, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_documents_by_type($1, $2, $3)`,
		docType,
		limit,
		offset,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	return h.scanDocumentRows(rows)
}

// SelectDocumentsByTags retrieves documents carrying all of the given tags
func (h *DocumentsDBHandler) SelectDocumentsByTags(tags []string, limit int, offset int) ([]*model.Document, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_documents_by_tags($1, $2, $3)`,
		pq.Array(tags),
		limit,
		offset,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	return h.scanDocumentRows(rows)
}

// SelectDocumentsBySearch searches document title, summary and content
// with full text search, best matches first
func (h *DocumentsDBHandler) SelectDocumentsBySearch(searchTerm string, limit int) ([]*model.Document, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM search_documents($1, $2, $3)`,
		searchTerm,
		h.searchConfig,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	return h.scanDocumentRows(rows)
}

// SelectDocumentsByReference resolves a normalized legal reference key
// to documents whose legal_refs attribute entries match exactly or
// whose title contains the key. Used to propose reference relations.
func (h *DocumentsDBHandler) SelectDocumentsByReference(key string, limit int) ([]*model.Document, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_documents_by_reference($1, $2)`,
		key,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	return h.scanDocumentRows(rows)
}

// UpdateDocument updates a document guarded by optimistic versioning.
// If expectedVersion does not match the stored version the update fails
// with model.ErrVersionConflict. A content, title, summary or type change
// bumps the version and resets the index state to stale.
func (h *DocumentsDBHandler) UpdateDocument(doc *model.Document, expectedVersion int) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM update_document($1, $2, $3, $4, $5, $6, $7, $8)`,
		doc.RID,
		expectedVersion,
		doc.Title,
		doc.Content,
		doc.Summary,
		doc.Type,
		pq.Array(doc.Tags),
		doc.Attributes,
	)

	err := row.Scan(
		&doc.ID,
		&doc.RID,
		&doc.Title,
		&doc.Content,
		&doc.Summary,
		&doc.Type,
		&doc.CategoryID,
		&doc.CategoryPath,
		pq.Array(&doc.Tags),
		&doc.Attributes,
		&doc.Version,
		&doc.IndexState,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return helper.NewError("scan", mapError(err))
	}

	return nil
}

// ClaimStaleDocuments atomically moves up to limit stale documents into
// the indexing state and returns them with content. Concurrent claimers
// skip locked rows, so every stale document is claimed exactly once.
func (h *DocumentsDBHandler) ClaimStaleDocuments(limit int) ([]*model.Document, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM claim_stale_documents($1)`,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	return h.scanDocumentRows(rows)
}

// ClaimDocument claims a single document for a synchronous indexing
// pass regardless of its current state, returning it with content. It
// returns nil without error when another worker holds the claim, and
// model.ErrNotFound when the document does not exist.
func (h *DocumentsDBHandler) ClaimDocument(rid uuid.UUID) (*model.Document, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM claim_document($1)`,
		rid,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	documents, err := h.scanDocumentRows(rows)
	if err != nil {
		return nil, err
	}
	if len(documents) == 0 {
		return nil, nil
	}
	return documents[0], nil
}

// FinishDocumentIndex completes an indexing pass with the given state.
// It returns nil without error if the document is no longer in the
// indexing state, meaning a concurrent update won and the document will
// go through another pass.
func (h *DocumentsDBHandler) FinishDocumentIndex(rid uuid.UUID, state model.IndexState) (*model.Document, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM finish_document_index($1, $2)`,
		rid,
		state,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	documents, err := h.scanDocumentRows(rows)
	if err != nil {
		return nil, err
	}
	if len(documents) == 0 {
		return nil, nil
	}
	return documents[0], nil
}

// MarkDocumentStale queues a document for reindexing without changing
// its content or version
func (h *DocumentsDBHandler) MarkDocumentStale(rid uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT mark_document_stale($1)`,
		rid,
	)
	if err != nil {
		return helper.NewError("exec", mapError(err))
	}
	return nil
}

// DeleteDocument deletes a document by RID. Chunks, relations, search
// metadata and feedback cascade; conversation context references are
// detached, message grounding history stays untouched.
func (h *DocumentsDBHandler) DeleteDocument(rid uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_document($1)`,
		rid,
	)
	if err != nil {
		return helper.NewError("exec", mapError(err))
	}
	return nil
}

// scanDocumentRows scans a full document result set.
func (h *DocumentsDBHandler) scanDocumentRows(rows *sql.Rows) ([]*model.Document, error) {
	var documents []*model.Document
	for rows.Next() {
		doc := &model.Document{}
		err := rows.Scan(
			&doc.ID,
			&doc.RID,
			&doc.Title,
			&doc.Content,
			&doc.Summary,
			&doc.Type,
			&doc.CategoryID,
			&doc.CategoryPath,
			pq.Array(&doc.Tags),
			&doc.Attributes,
			&doc.Version,
			&doc.IndexState,
			&doc.CreatedAt,
			&doc.UpdatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", mapError(err))
		}

		documents = append(documents, doc)
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", mapError(err))
	}

	return documents, nil
}
