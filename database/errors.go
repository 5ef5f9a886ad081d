package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/counsel/model"
)

// raisedErrors maps RAISE EXCEPTION message fragments from the SQL
// functions onto the model sentinel errors. Ordered most specific
// first; "not found" must stay last.
var raisedErrors = []struct {
	fragment string
	sentinel error
}{
	{"version conflict", model.ErrVersionConflict},
	{"creates cycle", model.ErrCategoryCycle},
	{"slug already exists", model.ErrSlugExists},
	{"category not empty", model.ErrCategoryNotEmpty},
	{"self relation", model.ErrSelfRelation},
	{"relation already exists", model.ErrRelationExists},
	{"invalid role sequence", model.ErrRoleSequence},
	{"conversation archived", model.ErrConversationArchived},
	{"owner required", model.ErrOwnerRequired},
	{"invalid document type", model.ErrInvalidDocumentType},
	{"invalid relation type", model.ErrInvalidRelationType},
	{"invalid message role", model.ErrInvalidRole},
	{"invalid feedback", model.ErrInvalidFeedback},
	{"not found", model.ErrNotFound},
}

// mapError translates low-level database errors into model sentinels so
// callers can test with errors.Is. Unknown errors pass through unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: no rows", model.ErrNotFound)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		for _, m := range raisedErrors {
			if strings.Contains(pqErr.Message, m.fragment) {
				return fmt.Errorf("%w: %v", m.sentinel, err)
			}
		}
		// Constraint backstops for writes that bypass the pre-checks,
		// e.g. two concurrent inserts racing past the same EXISTS check.
		if pqErr.Code == "23505" {
			switch {
			case strings.Contains(pqErr.Constraint, "slug"):
				return fmt.Errorf("%w: %v", model.ErrSlugExists, err)
			case pqErr.Table == "relations":
				return fmt.Errorf("%w: %v", model.ErrRelationExists, err)
			}
		}
		if pqErr.Code == "23503" && pqErr.Table == "documents" && strings.Contains(pqErr.Constraint, "category") {
			return fmt.Errorf("%w: %v", model.ErrCategoryNotEmpty, err)
		}
	}

	return err
}

// nullVector scans a nullable vector column into a float32 slice,
// leaving the slice nil for SQL NULL. pgvector.Vector itself rejects
// NULL sources.
type nullVector struct {
	target *[]float32
}

func (n nullVector) Scan(src interface{}) error {
	if src == nil {
		*n.target = nil
		return nil
	}
	vec := pgvector.Vector{}
	if err := vec.Scan(src); err != nil {
		return err
	}
	*n.target = vec.Slice()
	return nil
}

// vectorParam converts an embedding into a query parameter, passing SQL
// NULL for an empty slice.
func vectorParam(embedding []float32) interface{} {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

// filterParams converts retrieval filters into the four nullable
// parameters shared by the chunk search functions. Unset dimensions
// become SQL NULL and match everything.
func filterParams(f model.Filters) (types, categoryPath, tags, documentRIDs interface{}) {
	if len(f.Types) > 0 {
		types = pq.Array(f.Types)
	}
	if f.CategoryPath != "" {
		categoryPath = f.CategoryPath
	}
	if len(f.Tags) > 0 {
		tags = pq.Array(f.Tags)
	}
	if len(f.DocumentRIDs) > 0 {
		documentRIDs = pq.Array(f.DocumentRIDs)
	}
	return types, categoryPath, tags, documentRIDs
}
