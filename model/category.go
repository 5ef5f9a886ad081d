package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// Category represents a node in the category tree.
// Path is the ltree materialized path of ancestor slugs including the
// node's own slug (e.g. "labor_law.leave.paid_leave").
type Category struct {
	ID         int64      `json:"id"`
	RID        uuid.UUID  `json:"rid"`
	Name       string     `json:"name"`
	Slug       string     `json:"slug"`
	ParentID   *int64     `json:"parent_id,omitempty"`
	SortOrder  int        `json:"sort_order"`
	Path       string     `json:"path"`
	Attributes Attributes `json:"attributes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Validate checks name and slug before any database write.
func (c *Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("category name is empty")
	}
	if !slugPattern.MatchString(c.Slug) {
		return fmt.Errorf("category slug %q must match %s", c.Slug, slugPattern.String())
	}
	return nil
}

// PathSlugs returns the ordered ancestor slugs of the materialized path.
func (c *Category) PathSlugs() []string {
	if c.Path == "" {
		return nil
	}
	return strings.Split(c.Path, ".")
}

// Slugify lowercases a name into a valid slug, replacing runs of
// non-slug characters with single underscores.
func Slugify(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastUnderscore := true
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
