package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/counsel/helper"
	"github.com/siherrmann/counsel/model"
	"github.com/siherrmann/counsel/sql"
)

// CategoriesDBHandlerFunctions defines the interface for Categories database operations.
type CategoriesDBHandlerFunctions interface {
	InsertCategory(category *model.Category, parentRID *uuid.UUID) error
	SelectCategory(rid uuid.UUID) (*model.Category, error)
	SelectCategoryBySlug(slug string) (*model.Category, error)
	SelectCategoriesByParent(parentRID *uuid.UUID) ([]*model.Category, error)
	SelectAllCategories() ([]*model.Category, error)
	UpdateCategory(category *model.Category) error
	MoveCategory(rid uuid.UUID, newParentRID *uuid.UUID) (*model.Category, error)
	DeleteCategory(rid uuid.UUID) error
}

// CategoriesDBHandler handles category-related database operations
type CategoriesDBHandler struct {
	db *helper.Database
}

// NewCategoriesDBHandler creates a new categories database handler.
// It initializes the database connection and loads category-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewCategoriesDBHandler(db *helper.Database, force bool) (*CategoriesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	categoriesDbHandler := &CategoriesDBHandler{
		db: db,
	}

	err := sql.LoadCategoriesSql(categoriesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load categories sql", err)
	}

	err = categoriesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized CategoriesDBHandler")

	return categoriesDbHandler, nil
}

// CreateTable creates the 'categories' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *CategoriesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_categories();`)
	if err != nil {
		log.Panicf("error initializing categories table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table categories")

	return nil
}

// InsertCategory inserts a new category under the given parent.
// A nil parentRID creates a root category.
func (h *CategoriesDBHandler) InsertCategory(category *model.Category, parentRID *uuid.UUID) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_category($1, $2, $3, $4, $5)`,
		category.Name,
		category.Slug,
		parentRID,
		category.SortOrder,
		category.Attributes,
	)

	err := row.Scan(
		&category.ID,
		&category.RID,
		&category.Name,
		&category.Slug,
		&category.ParentID,
		&category.SortOrder,
		&category.Path,
		&category.Attributes,
		&category.CreatedAt,
		&category.UpdatedAt,
	)
	if err != nil {
		return helper.NewError("scan", mapError(err))
	}

	return nil
}

// SelectCategory retrieves a category by RID
func (h *CategoriesDBHandler) SelectCategory(rid uuid.UUID) (*model.Category, error) {
	category := &model.Category{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_category($1)`,
		rid,
	)

	err := row.Scan(
		&category.ID,
		&category.RID,
		&category.Name,
		&category.Slug,
		&category.ParentID,
		&category.SortOrder,
		&category.Path,
		&category.Attributes,
		&category.CreatedAt,
		&category.UpdatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", mapError(err))
	}

	return category, nil
}

// SelectCategoryBySlug retrieves a category by its globally unique slug
func (h *CategoriesDBHandler) SelectCategoryBySlug(slug string) (*model.Category, error) {
	category := &model.Category{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_category_by_slug($1)`,
		slug,
	)

	err := row.Scan(
		&category.ID,
		&category.RID,
		&category.Name,
		&category.Slug,
		&category.ParentID,
		&category.SortOrder,
		&category.Path,
		&category.Attributes,
		&category.CreatedAt,
		&category.UpdatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", mapError(err))
	}

	return category, nil
}

// SelectCategoriesByParent retrieves the direct children of a category.
// A nil parentRID retrieves the root categories.
func (h *CategoriesDBHandler) SelectCategoriesByParent(parentRID *uuid.UUID) ([]*model.Category, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_categories_by_parent($1)`,
		parentRID,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	var categories []*model.Category
	for rows.Next() {
		category := &model.Category{}
		err := rows.Scan(
			&category.ID,
			&category.RID,
			&category.Name,
			&category.Slug,
			&category.ParentID,
			&category.SortOrder,
			&category.Path,
			&category.Attributes,
			&category.CreatedAt,
			&category.UpdatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", mapError(err))
		}

		categories = append(categories, category)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", mapError(err))
	}

	return categories, nil
}

// SelectAllCategories retrieves the whole category tree in path order
func (h *CategoriesDBHandler) SelectAllCategories() ([]*model.Category, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_all_categories()`,
	)
	if err != nil {
		return nil, helper.NewError("query", mapError(err))
	}
	defer rows.Close()

	var categories []*model.Category
	for rows.Next() {
		category := &model.Category{}
		err := rows.Scan(
			&category.ID,
			&category.RID,
			&category.Name,
			&category.Slug,
			&category.ParentID,
			&category.SortOrder,
			&category.Path,
			&category.Attributes,
			&category.CreatedAt,
			&category.UpdatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", mapError(err))
		}

		categories = append(categories, category)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", mapError(err))
	}

	return categories, nil
}

// UpdateCategory updates name, sort order and attributes of a category.
// Slug and position in the tree are not touched; use MoveCategory to
// reparent.
func (h *CategoriesDBHandler) UpdateCategory(category *model.Category) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM update_category($1, $2, $3, $4)`,
		category.RID,
		category.Name,
		category.SortOrder,
		category.Attributes,
	)

	err := row.Scan(
		&category.ID,
		&category.RID,
		&category.Name,
		&category.Slug,
		&category.ParentID,
		&category.SortOrder,
		&category.Path,
		&category.Attributes,
		&category.CreatedAt,
		&category.UpdatedAt,
	)
	if err != nil {
		return helper.NewError("scan", mapError(err))
	}

	return nil
}

// MoveCategory moves a category under a new parent, rewriting the paths
// of the whole subtree and of all documents assigned to it. A nil
// newParentRID moves the category to the root.
func (h *CategoriesDBHandler) MoveCategory(rid uuid.UUID, newParentRID *uuid.UUID) (*model.Category, error) {
	category := &model.Category{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM move_category($1, $2)`,
		rid,
		newParentRID,
	)

	err := row.Scan(
		&category.ID,
		&category.RID,
		&category.Name,
		&category.Slug,
		&category.ParentID,
		&category.SortOrder,
		&category.Path,
		&category.Attributes,
		&category.CreatedAt,
		&category.UpdatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", mapError(err))
	}

	return category, nil
}

// DeleteCategory deletes an empty category by RID.
// Categories with child categories or assigned documents are rejected.
func (h *CategoriesDBHandler) DeleteCategory(rid uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_category($1)`,
		rid,
	)
	if err != nil {
		return helper.NewError("exec", mapError(err))
	}
	return nil
}
