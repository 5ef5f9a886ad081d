package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentType is the closed enumeration of corpus document types.
type DocumentType string

const (
	DocumentTypeStatute   DocumentType = "statute"
	DocumentTypeCaseLaw   DocumentType = "case_law"
	DocumentTypeSynthesis DocumentType = "synthesis"
	DocumentTypeTemplate  DocumentType = "template"
	DocumentTypeArticle   DocumentType = "article"
	DocumentTypeGuide     DocumentType = "guide"
)

// DocumentTypes lists all valid document types.
var DocumentTypes = []DocumentType{
	DocumentTypeStatute,
	DocumentTypeCaseLaw,
	DocumentTypeSynthesis,
	DocumentTypeTemplate,
	DocumentTypeArticle,
	DocumentTypeGuide,
}

// Valid reports whether t is a member of the closed type enumeration.
func (t DocumentType) Valid() bool {
	for _, dt := range DocumentTypes {
		if t == dt {
			return true
		}
	}
	return false
}

// IndexState tracks where a document stands in the embedding lifecycle.
type IndexState string

const (
	IndexStateStale    IndexState = "stale"
	IndexStateIndexing IndexState = "indexing"
	IndexStateReady    IndexState = "ready"
	IndexStateDegraded IndexState = "degraded"
)

// Document represents a versioned legal document.
// CategoryID is immutable after creation; CategoryPath is the denormalized
// ltree path of the assigned category, rewritten when the category moves.
type Document struct {
	ID           int64        `json:"id"`
	RID          uuid.UUID    `json:"rid"`
	Title        string       `json:"title"`
	Content      string       `json:"content,omitempty"`
	Summary      string       `json:"summary,omitempty"`
	Type         DocumentType `json:"type"`
	CategoryID   int64        `json:"category_id"`
	CategoryPath string       `json:"category_path"`
	Tags         []string     `json:"tags,omitempty"`
	Attributes   Attributes   `json:"attributes,omitempty"`
	Version      int          `json:"version"`
	IndexState   IndexState   `json:"index_state"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Validate checks the fields callers control before any database write.
func (d *Document) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("document title is empty")
	}
	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("document content is empty")
	}
	if !d.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDocumentType, d.Type)
	}
	if d.CategoryID == 0 {
		return fmt.Errorf("document category is not set")
	}
	return nil
}

// PathSlugs returns the ordered ancestor slugs of the category path.
func (d *Document) PathSlugs() []string {
	if d.CategoryPath == "" {
		return nil
	}
	return strings.Split(d.CategoryPath, ".")
}

// NewDocumentFromFile reads a file and creates a Document with the file content.
// The title defaults to the filename without extension; callers can override.
func NewDocumentFromFile(filePath string, docType DocumentType, attributes Attributes) (*Document, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(filePath)
	title := filename[:len(filename)-len(filepath.Ext(filename))]
	if title == "" {
		title = filename
	}

	if attributes == nil {
		attributes = Attributes{}
	}
	if attributes.Source() == "" {
		attributes.SetSource(filePath)
	}

	return &Document{
		Title:      title,
		Content:    string(content),
		Type:       docType,
		Attributes: attributes,
	}, nil
}
