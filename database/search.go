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

// SearchDBHandlerFunctions defines the interface for SearchMetadata database operations.
type SearchDBHandlerFunctions interface {
	SelectSearchMetadata(documentRID uuid.UUID) (*model.SearchMetadata, error)
	UpsertSearchKeywords(documentRID uuid.UUID, keywords []string) (*model.SearchMetadata, error)
	RecordDocumentAccess(documentRIDs []uuid.UUID) (int, error)
	RecordDocumentRelevance(documentRID uuid.UUID, delta float64) (*model.SearchMetadata, error)
	RefreshPopularityScores() (int, error)
}

// SearchDBHandler handles search-metadata-related database operations
type SearchDBHandler struct {
	db *helper.Database
}

// NewSearchDBHandler creates a new search metadata database handler.
// It initializes the database connection and loads search-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewSearchDBHandler(db *helper.Database, force bool) (*SearchDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	searchDbHandler := &SearchDBHandler{
		db: db,
	}

	err := loadSql.LoadSearchSql(searchDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load search sql", err)
	}

	err = searchDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized SearchDBHandler")

	return searchDbHandler, nil
}

// CreateTable creates the 'search_metadata' table in the database.
// If the table already exists, it does not create it again.
func (h *SearchDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_search_metadata();`)
	if err != nil {
		log.Panicf("error initializing search_metadata table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table search_metadata")

	return nil
}

// SelectSearchMetadata retrieves the search metadata of a document.
// Metadata rows are created lazily on first write, so a document without
// one gets the implicit defaults back instead of an error.
func (h *SearchDBHandler) SelectSearchMetadata(documentRID uuid.UUID) (*model.SearchMetadata, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_search_metadata($1)`,
		documentRID,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, helper.NewError("rows error", mapError(err))
		}
		return &model.SearchMetadata{
			DocumentRID:    documentRID,
			RelevanceScore: 0.5,
		}, nil
	}

	metadata := &model.SearchMetadata{}
	err = h.scanSearchMetadata(rows, metadata)
	if err != nil {
		return nil, helper.NewError("scan", mapError(err))
	}

	return metadata, nil
}

// UpsertSearchKeywords replaces the keyword list of a document, creating
// the metadata row if it does not exist yet
func (h *SearchDBHandler) UpsertSearchKeywords(documentRID uuid.UUID, keywords []string) (*model.SearchMetadata, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM upsert_search_keywords($1, $2)`,
		documentRID,
		pq.Array(keywords),
	)

	metadata := &model.SearchMetadata{}
	err := h.scanSearchMetadata(row, metadata)
	if err != nil {
		return nil, helper.NewError("scan", mapError(err))
	}

	return metadata, nil
}

// RecordDocumentAccess bumps the click count for every document that
// contributed to an answer and returns the number of touched rows.
// Unknown RIDs are skipped.
func (h *SearchDBHandler) RecordDocumentAccess(documentRIDs []uuid.UUID) (int, error) {
	var count int
	err := h.db.Instance.QueryRow(
		`SELECT record_document_access($1)`,
		pq.Array(documentRIDs),
	).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", mapError(err))
	}
	return count, nil
}

// RecordDocumentRelevance shifts the relevance score of a document by
// delta, clamped to [0, 1]
func (h *SearchDBHandler) RecordDocumentRelevance(documentRID uuid.UUID, delta float64) (*model.SearchMetadata, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM record_document_relevance($1, $2)`,
		documentRID,
		delta,
	)

	metadata := &model.SearchMetadata{}
	err := h.scanSearchMetadata(row, metadata)
	if err != nil {
		return nil, helper.NewError("scan", mapError(err))
	}

	return metadata, nil
}

// RefreshPopularityScores recomputes the popularity scores from click
// volume and recency and returns the number of updated rows
func (h *SearchDBHandler) RefreshPopularityScores() (int, error) {
	var count int
	err := h.db.Instance.QueryRow(
		`SELECT refresh_popularity_scores()`,
	).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", mapError(err))
	}
	return count, nil
}

// scanSearchMetadata scans one full search metadata row.
func (h *SearchDBHandler) scanSearchMetadata(row rowScanner, metadata *model.SearchMetadata) error {
	return row.Scan(
		&metadata.DocumentID,
		&metadata.DocumentRID,
		pq.Array(&metadata.Keywords),
		&metadata.ClickCount,
		&metadata.LastAccessedAt,
		&metadata.RelevanceScore,
		&metadata.PopularityScore,
		&metadata.UpdatedAt,
	)
}
