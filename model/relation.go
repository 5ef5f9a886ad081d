package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RelationType is the closed enumeration of directed document relations.
type RelationType string

const (
	RelationTypeReferences  RelationType = "references"
	RelationTypeImplements  RelationType = "implements"
	RelationTypeClarifies   RelationType = "clarifies"
	RelationTypeContradicts RelationType = "contradicts"
	RelationTypeExtends     RelationType = "extends"
	RelationTypeSupersedes  RelationType = "supersedes"
)

// RelationTypes lists all valid relation types.
var RelationTypes = []RelationType{
	RelationTypeReferences,
	RelationTypeImplements,
	RelationTypeClarifies,
	RelationTypeContradicts,
	RelationTypeExtends,
	RelationTypeSupersedes,
}

// Valid reports whether t is a member of the closed type enumeration.
func (t RelationType) Valid() bool {
	for _, rt := range RelationTypes {
		if t == rt {
			return true
		}
	}
	return false
}

// Relation represents a directed typed edge between two documents.
// (SourceRID, TargetRID, Type) is unique; self-relations are rejected.
type Relation struct {
	ID         int64        `json:"id"`
	RID        uuid.UUID    `json:"rid"`
	SourceID   int64        `json:"source_id"`
	SourceRID  uuid.UUID    `json:"source_rid"`
	TargetID   int64        `json:"target_id"`
	TargetRID  uuid.UUID    `json:"target_rid"`
	Type       RelationType `json:"type"`
	Strength   float64      `json:"strength"`
	Attributes Attributes   `json:"attributes,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Validate checks the relation before any database write.
func (r *Relation) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRelationType, r.Type)
	}
	if r.SourceRID == r.TargetRID {
		return ErrSelfRelation
	}
	if r.Strength < 0 || r.Strength > 1 {
		return fmt.Errorf("relation strength %f outside [0,1]", r.Strength)
	}
	return nil
}
