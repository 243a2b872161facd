package pipeline

import (
	"sort"
	"strings"

	"github.com/speechgraph/core/internal/graph"
)

const (
	maxContextEntities  = 8
	maxContextRelations = 5
)

// selectRelevantContext picks the entities and relations from g worth
// including in an extraction prompt, per spec.md §4.6's relevance-
// selection rule: label-substring matches against text first, then the
// most recently updated entities fill the remaining slots (up to 8);
// relations are kept only if at least one endpoint was selected (up to 5).
func selectRelevantContext(g *graph.SessionGraph, text string) ([]*graph.Entity, []*graph.Relation) {
	lowerText := strings.ToLower(text)

	var matched, rest []*graph.Entity
	for _, e := range g.Entities {
		if strings.Contains(lowerText, strings.ToLower(e.Label)) {
			matched = append(matched, e)
		} else {
			rest = append(rest, e)
		}
	}

	sort.Slice(rest, func(i, j int) bool { return rest[i].UpdatedAt.After(rest[j].UpdatedAt) })

	selected := matched
	for _, e := range rest {
		if len(selected) >= maxContextEntities {
			break
		}
		selected = append(selected, e)
	}
	if len(selected) > maxContextEntities {
		selected = selected[:maxContextEntities]
	}

	selectedIDs := make(map[string]struct{}, len(selected))
	for _, e := range selected {
		selectedIDs[e.ID] = struct{}{}
	}

	var relations []*graph.Relation
	for _, r := range g.Relations {
		if len(relations) >= maxContextRelations {
			break
		}
		_, srcOK := selectedIDs[r.SourceID]
		_, dstOK := selectedIDs[r.TargetID]
		if srcOK || dstOK {
			relations = append(relations, r)
		}
	}

	return selected, relations
}
