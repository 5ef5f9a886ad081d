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

// RelatedDocument is a document reached by traversing the relation
// graph, with the minimal hop distance from the source document.
type RelatedDocument struct {
	DocumentID  int64     `json:"document_id"`
	DocumentRID uuid.UUID `json:"document_rid"`
	Title       string    `json:"title"`
	Distance    int       `json:"distance"`
}

// RelationsDBHandlerFunctions defines the interface for Relations database operations.
type RelationsDBHandlerFunctions interface {
	InsertRelation(relation *model.Relation) error
	SelectRelation(rid uuid.UUID) (*model.Relation, error)
	SelectRelationsFromDocument(documentRID uuid.UUID, types []model.RelationType, limit int) ([]*model.Relation, error)
	SelectRelationsToDocument(documentRID uuid.UUID, types []model.RelationType, limit int) ([]*model.Relation, error)
	SelectRelationsConnectedToDocument(documentRID uuid.UUID, types []model.RelationType) ([]*model.Relation, error)
	UpdateRelationStrength(rid uuid.UUID, strength float64) (*model.Relation, error)
	DeleteRelation(rid uuid.UUID) error
	TraverseRelations(sourceRID uuid.UUID, maxHops int, types []model.RelationType, followReverse bool) ([]*RelatedDocument, error)
}

// RelationsDBHandler handles relation-related database operations
type RelationsDBHandler struct {
	db *helper.Database
}

// NewRelationsDBHandler creates a new relations database handler.
// It initializes the database connection and loads relation-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewRelationsDBHandler(db *helper.Database, force bool) (*RelationsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	relationsDbHandler := &RelationsDBHandler{
		db: db,
	}

	err := loadSql.LoadRelationsSql(relationsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load relations sql", err)
	}

	err = relationsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized RelationsDBHandler")

	return relationsDbHandler, nil
}

// CreateTable creates the 'relations' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *RelationsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_relations();`)
	if err != nil {
		log.Panicf("error initializing relations table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table relations")

	return nil
}

// InsertRelation inserts a new directed relation between two documents.
// (SourceRID, TargetRID, Type) must be unique; self relations are rejected.
func (h *RelationsDBHandler) InsertRelation(relation *model.Relation) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_relation($1, $2, $3, $4, $5)`,
		relation.SourceRID,
		relation.TargetRID,
		relation.Type,
		relation.Strength,
		relation.Attributes,
	)

	err := h.scanRelation(row, relation)
	if err != nil {
		return helper.NewError("scan", mapError(err))
	}

	return nil
}

// SelectRelation retrieves a relation by RID
func (h *RelationsDBHandler) SelectRelation(rid uuid.UUID) (*model.Relation, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_relation($1)`,
		rid,
	)

	relation := &model.Relation{}
	err := h.scanRelation(row, relation)
	if err != nil {
		return nil, helper.NewError("scan", mapError(err))
	}

	return relation, nil
}

// SelectRelationsFromDocument retrieves outgoing relations of a document,
// strongest first. Nil types match all relation types, a limit <= 0
// returns all relations.
func (h *RelationsDBHandler) SelectRelationsFromDocument(documentRID uuid.UUID, types []model.RelationType, limit int) ([]*model.Relation, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_relations_from_document($1, $2, $3)`,
		documentRID,
		typesParam(types),
		limitParam(limit),
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	return h.scanRelationRows(rows)
}

// SelectRelationsToDocument retrieves incoming relations of a document,
// strongest first. Nil types match all relation types, a limit <= 0
// returns all relations.
func (h *RelationsDBHandler) SelectRelationsToDocument(documentRID uuid.UUID, types []model.RelationType, limit int) ([]*model.Relation, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_relations_to_document($1, $2, $3)`,
		documentRID,
		typesParam(types),
		limitParam(limit),
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	return h.scanRelationRows(rows)
}

// SelectRelationsConnectedToDocument retrieves all relations touching a
// document in either direction, strongest first.
func (h *RelationsDBHandler) SelectRelationsConnectedToDocument(documentRID uuid.UUID, types []model.RelationType) ([]*model.Relation, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_relations_connected_to_document($1, $2)`,
		documentRID,
		typesParam(types),
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	return h.scanRelationRows(rows)
}

// UpdateRelationStrength updates the strength of a relation
func (h *RelationsDBHandler) UpdateRelationStrength(rid uuid.UUID, strength float64) (*model.Relation, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM update_relation_strength($1, $2)`,
		rid,
		strength,
	)

	relation := &model.Relation{}
	err := h.scanRelation(row, relation)
	if err != nil {
		return nil, helper.NewError("scan", mapError(err))
	}

	return relation, nil
}

// DeleteRelation deletes a relation by RID
func (h *RelationsDBHandler) DeleteRelation(rid uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_relation($1)`,
		rid,
	)
	if err != nil {
		return helper.NewError("exec", mapError(err))
	}
	return nil
}

// TraverseRelations walks the relation graph breadth-first from a source
// document up to maxHops and returns the reached documents with their
// minimal distance. Reverse edges are followed when followReverse is true.
func (h *RelationsDBHandler) TraverseRelations(sourceRID uuid.UUID, maxHops int, types []model.RelationType, followReverse bool) ([]*RelatedDocument, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM traverse_relations($1, $2, $3, $4)`,
		sourceRID,
		maxHops,
		typesParam(types),
		followReverse,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	var related []*RelatedDocument
	for rows.Next() {
		document := &RelatedDocument{}
		err := rows.Scan(
			&document.DocumentID,
			&document.DocumentRID,
			&document.Title,
			&document.Distance,
		)
		if err != nil {
			return nil, helper.NewError("scan", mapError(err))
		}

		related = append(related, document)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", mapError(err))
	}

	return related, nil
}

// typesParam converts a relation type list into a nullable array
// parameter; nil matches all types.
func typesParam(types []model.RelationType) interface{} {
	if len(types) == 0 {
		return nil
	}
	return pq.Array(types)
}

// limitParam converts a non-positive limit into a NULL parameter,
// which lifts the LIMIT clause entirely.
func limitParam(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}

// scanRelation scans one full relation row.
func (h *RelationsDBHandler) scanRelation(row rowScanner, relation *model.Relation) error {
	return row.Scan(
		&relation.ID,
		&relation.RID,
		&relation.SourceID,
		&relation.SourceRID,
		&relation.TargetID,
		&relation.TargetRID,
		&relation.Type,
		&relation.Strength,
		&relation.Attributes,
		&relation.CreatedAt,
	)
}

// scanRelationRows scans a full relation result set.
func (h *RelationsDBHandler) scanRelationRows(rows *sql.Rows) ([]*model.Relation, error) {
	var relations []*model.Relation
	for rows.Next() {
		relation := &model.Relation{}
		err := h.scanRelation(rows, relation)
		if err != nil {
			return nil, helper.NewError("scan", mapError(err))
		}

		relations = append(relations, relation)
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", mapError(err))
	}

	return relations, nil
}
