package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/siherrmann/counsel/helper"
)

// Recognized attribute keys. Anything outside this set is carried through
// untouched as an escape hatch for collaborator-specific metadata.
const (
	AttrSource      = "source"
	AttrPublishedAt = "published_at"
	AttrLegalRefs   = "legal_refs"
	AttrAuthority   = "authority"
	AttrDifficulty  = "difficulty"
)

// Attributes represents a JSONB attribute bag stored in PostgreSQL.
// Recognized keys have typed accessors; unrecognized keys are preserved.
type Attributes map[string]interface{}

// Value implements the driver.Valuer interface for database storage
func (a Attributes) Value() (driver.Value, error) {
	return a.Marshal()
}

// Scan implements the sql.Scanner interface for database retrieval
func (a *Attributes) Scan(value interface{}) error {
	return a.Unmarshal(value)
}

// Marshal converts Attributes to JSON bytes
func (a Attributes) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

// Unmarshal converts JSON bytes or Attributes to Attributes
func (a *Attributes) Unmarshal(value interface{}) error {
	if value == nil {
		*a = Attributes{}
		return nil
	}

	if s, ok := value.(Attributes); ok {
		*a = Attributes(s)
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}

	return json.Unmarshal(b, a)
}

// Source returns the recognized source key, empty when unset.
func (a Attributes) Source() string {
	return a.stringKey(AttrSource)
}

// SetSource sets the recognized source key.
func (a Attributes) SetSource(source string) {
	a[AttrSource] = source
}

// PublishedAt returns the publication date when set and parseable.
func (a Attributes) PublishedAt() (time.Time, bool) {
	s := a.stringKey(AttrPublishedAt)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetPublishedAt stores the publication date as RFC3339.
func (a Attributes) SetPublishedAt(t time.Time) {
	a[AttrPublishedAt] = t.Format(time.RFC3339)
}

// LegalRefs returns the list of legal citations attached to the entity.
// Values survive a JSON round trip as []interface{}, so both forms are accepted.
func (a Attributes) LegalRefs() []string {
	switch v := a[AttrLegalRefs].(type) {
	case []string:
		return v
	case []interface{}:
		refs := make([]string, 0, len(v))
		for _, r := range v {
			if s, ok := r.(string); ok {
				refs = append(refs, s)
			}
		}
		return refs
	}
	return nil
}

// SetLegalRefs sets the list of legal citations.
func (a Attributes) SetLegalRefs(refs []string) {
	a[AttrLegalRefs] = refs
}

// Authority returns the authoring entity, empty when unset.
func (a Attributes) Authority() string {
	return a.stringKey(AttrAuthority)
}

// SetAuthority sets the authoring entity.
func (a Attributes) SetAuthority(authority string) {
	a[AttrAuthority] = authority
}

// Difficulty returns the difficulty level, 0 when unset.
// JSON numbers decode as float64, so both int and float64 are accepted.
func (a Attributes) Difficulty() int {
	switch v := a[AttrDifficulty].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// SetDifficulty sets the difficulty level.
func (a Attributes) SetDifficulty(level int) {
	a[AttrDifficulty] = level
}

func (a Attributes) stringKey(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}
