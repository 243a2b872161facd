// Package graph owns the per-session knowledge graph: its data model,
// reconciliation against newly extracted entities and relations, and the
// similarity search used to deduplicate across extraction passes.
package graph

import "time"

// EntityType is one of the closed set of entity categories the extraction
// worker can produce. Unrecognized LLM output collapses to [EntityUnknown].
type EntityType string

const (
	EntityPerson       EntityType = "PERSON"
	EntityOrganization EntityType = "ORGANIZATION"
	EntityLocation     EntityType = "LOCATION"
	EntityConcept      EntityType = "CONCEPT"
	EntityEvent        EntityType = "EVENT"
	EntityProduct      EntityType = "PRODUCT"
	EntityTechnology   EntityType = "TECHNOLOGY"
	EntityDate         EntityType = "DATE"
	EntityMetric       EntityType = "METRIC"
	EntityAction       EntityType = "ACTION"
	EntityUnknown      EntityType = "UNKNOWN"
)

// knownEntityTypes lists every type recognized by [NormalizeEntityType].
var knownEntityTypes = map[EntityType]struct{}{
	EntityPerson: {}, EntityOrganization: {}, EntityLocation: {},
	EntityConcept: {}, EntityEvent: {}, EntityProduct: {},
	EntityTechnology: {}, EntityDate: {}, EntityMetric: {}, EntityAction: {},
	EntityUnknown: {},
}

// NormalizeEntityType maps raw LLM output to a known [EntityType], collapsing
// anything unrecognized to [EntityUnknown].
func NormalizeEntityType(raw string) EntityType {
	t := EntityType(raw)
	if _, ok := knownEntityTypes[t]; ok {
		return t
	}
	return EntityUnknown
}

// Entity is a node in a session's knowledge graph. Its id never changes once
// assigned, and its Type never changes after creation; Label may only be
// replaced by a strictly longer or more specific label (see [Entity.Supersedes]).
type Entity struct {
	ID        string
	Label     string
	Type      EntityType
	CreatedAt time.Time
	UpdatedAt time.Time
	Metadata  map[string]string
}

// Supersedes reports whether candidate is an acceptable replacement label for
// e — strictly longer, since a shorter or equal-length relabel loses
// specificity.
func (e Entity) Supersedes(candidate string) bool {
	return len(candidate) > len(e.Label)
}

// Relation is a directed, labeled edge between two entities in the same
// session graph.
type Relation struct {
	ID         string
	SourceID   string
	TargetID   string
	Phrase     string
	CreatedAt  time.Time
}

// SessionGraph is the per-session knowledge graph: a monotonically
// versioned set of entities and relations.
type SessionGraph struct {
	SessionID   string
	Version     int
	Entities    map[string]*Entity
	Relations   map[string]*Relation
	LastUpdated time.Time
}

// NewSessionGraph returns an empty graph at version 0.
func NewSessionGraph(sessionID string) *SessionGraph {
	return &SessionGraph{
		SessionID: sessionID,
		Entities:  make(map[string]*Entity),
		Relations: make(map[string]*Relation),
	}
}

// Delta describes the transition from FromVersion to ToVersion. The current
// reconciliation design only ever produces additions and updates; the
// removal fields exist for forward compatibility with a future pruning pass.
type Delta struct {
	SessionID        string
	FromVersion      int
	ToVersion        int
	AddedEntities    []*Entity
	AddedRelations   []*Relation
	UpdatedEntities  []*Entity
	RemovedEntityIDs []string
	RemovedRelationIDs []string
}

// Empty reports whether the delta carries no changes at all.
func (d Delta) Empty() bool {
	return len(d.AddedEntities) == 0 && len(d.AddedRelations) == 0 &&
		len(d.UpdatedEntities) == 0 && len(d.RemovedEntityIDs) == 0 &&
		len(d.RemovedRelationIDs) == 0
}

// ExtractedEntity is the pre-reconciliation shape emitted by the streaming
// JSON parser. ID is an LLM-local temporary identifier (e.g. "e1"), not a
// persistent entity id.
type ExtractedEntity struct {
	TempID string
	Label  string
	Type   EntityType
}

// ExtractedRelation is the pre-reconciliation shape emitted by the streaming
// JSON parser. Source and Target reference either a temporary entity id or,
// failing that, a label — the LLM is inconsistent about which it emits.
type ExtractedRelation struct {
	Source string
	Target string
	Phrase string
}

// ExtractionResult bundles everything parsed from one LLM extraction call.
type ExtractionResult struct {
	Entities  []ExtractedEntity
	Relations []ExtractedRelation
}
