package graph

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/siherrmann/counsel/model"
)

// RelationSource supplies the relations of a document. It is satisfied
// by database.RelationsDBHandler.
type RelationSource interface {
	SelectRelationsFromDocument(documentRID uuid.UUID, types []model.RelationType, limit int) ([]*model.Relation, error)
	SelectRelationsConnectedToDocument(documentRID uuid.UUID, types []model.RelationType) ([]*model.Relation, error)
}

// Expansion is one document reached by walking the relation graph.
type Expansion struct {
	DocumentRID uuid.UUID
	Distance    int
	Path        []uuid.UUID     // RIDs from the seed to this document
	Via         *model.Relation // relation over which this document was reached
}

// ExpandOptions bounds a relation graph walk.
type ExpandOptions struct {
	Depth         int                  // maximum hops from a seed
	Breadth       int                  // new documents followed per document, <= 0 follows all
	Types         []model.RelationType // nil matches all relation types
	FollowReverse bool                 // also walk relations pointing at the current document
}

// Expand performs a breadth-first walk of the relation graph from the
// seed documents. Every reached document appears once at its minimal
// distance, strongest relations followed first per hop. The seeds
// themselves are not part of the result.
func Expand(ctx context.Context, source RelationSource, seeds []uuid.UUID, options ExpandOptions) ([]*Expansion, error) {
	visited := make(map[uuid.UUID]bool)
	var queue []*Expansion

	for _, seed := range seeds {
		if visited[seed] {
			continue
		}
		visited[seed] = true
		queue = append(queue, &Expansion{
			DocumentRID: seed,
			Distance:    0,
			Path:        []uuid.UUID{seed},
		})
	}

	var results []*Expansion
	for len(queue) > 0 {
		err := ctx.Err()
		if err != nil {
			return nil, err
		}

		current := queue[0]
		queue = queue[1:]

		if current.Distance > 0 {
			results = append(results, current)
		}

		// Stop if we've reached the maximum depth
		if current.Distance >= options.Depth {
			continue
		}

		relations, err := neighborRelations(source, current.DocumentRID, options)
		if err != nil {
			return nil, err
		}

		// Process each relation, strongest first. Relations to already
		// visited documents do not consume the breadth budget.
		followed := 0
		for _, relation := range relations {
			if options.Breadth > 0 && followed >= options.Breadth {
				break
			}

			targetRID, ok := neighborRID(relation, current.DocumentRID, options.FollowReverse)
			if !ok {
				continue
			}

			// Skip if already visited
			if visited[targetRID] {
				continue
			}
			visited[targetRID] = true
			followed++

			// Create new path
			newPath := make([]uuid.UUID, len(current.Path))
			copy(newPath, current.Path)
			newPath = append(newPath, targetRID)

			queue = append(queue, &Expansion{
				DocumentRID: targetRID,
				Distance:    current.Distance + 1,
				Path:        newPath,
				Via:         relation,
			})
		}
	}

	return results, nil
}

// neighborRelations fetches the relations leaving a document, sorted
// strongest first. With FollowReverse incoming relations are included.
func neighborRelations(source RelationSource, documentRID uuid.UUID, options ExpandOptions) ([]*model.Relation, error) {
	var relations []*model.Relation
	var err error
	if options.FollowReverse {
		relations, err = source.SelectRelationsConnectedToDocument(documentRID, options.Types)
	} else {
		relations, err = source.SelectRelationsFromDocument(documentRID, options.Types, 0)
	}
	if err != nil {
		return nil, err
	}

	sort.SliceStable(relations, func(i, j int) bool {
		return relations[i].Strength > relations[j].Strength
	})

	return relations, nil
}

// neighborRID resolves the document on the far side of a relation.
// Incoming relations only resolve when reverse traversal is requested.
func neighborRID(relation *model.Relation, currentRID uuid.UUID, followReverse bool) (uuid.UUID, bool) {
	if relation.SourceRID == currentRID {
		return relation.TargetRID, true
	}
	if followReverse && relation.TargetRID == currentRID {
		return relation.SourceRID, true
	}
	return uuid.Nil, false
}
