package llmparse

import "testing"

func TestParser_FeedCompleteEntitiesInOneChunk(t *testing.T) {
	p := New()
	entities, relations := p.Feed(`{"entities": [{"id": "e1", "label": "Paris", "type": "LOCATION"}], "relations": []}`)

	if len(relations) != 0 {
		t.Fatalf("expected no relations, got %d", len(relations))
	}
	if len(entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(entities))
	}
	if entities[0].TempID != "e1" || entities[0].Label != "Paris" || entities[0].Type != "LOCATION" {
		t.Errorf("entity = %+v", entities[0])
	}
}

func TestParser_FieldOrderIndependent(t *testing.T) {
	p := New()
	entities, _ := p.Feed(`{"entities": [{"type": "PERSON", "label": "Ada", "id": "e1"}]}`)
	if len(entities) != 1 || entities[0].Label != "Ada" {
		t.Fatalf("entities = %+v", entities)
	}
}

func TestParser_IncrementalChunksAcrossObjectBoundary(t *testing.T) {
	p := New()

	ents1, _ := p.Feed(`{"entities": [{"id": "e1", "label": "Ada`)
	if len(ents1) != 0 {
		t.Fatalf("expected no entities from an incomplete object, got %d", len(ents1))
	}

	ents2, _ := p.Feed(` Lovelace", "type": "PERSON"}, {"id": "e2", "la`)
	if len(ents2) != 1 || ents2[0].TempID != "e1" {
		t.Fatalf("expected e1 to complete, got %+v", ents2)
	}

	ents3, _ := p.Feed(`bel": "Babbage", "type": "PERSON"}]}`)
	if len(ents3) != 1 || ents3[0].TempID != "e2" {
		t.Fatalf("expected e2 to complete, got %+v", ents3)
	}
}

func TestParser_RelationsDeliveredAfterEntitiesArray(t *testing.T) {
	p := New()

	first, _ := p.Feed(`{"entities": [{"id": "e1", "label": "Ada", "type": "PERSON"}, {"id": "e2", "label": "Babbage", "type": "PERSON"}], "relations": [`)
	if len(first) != 2 {
		t.Fatalf("expected both entities to parse, got %d", len(first))
	}

	_, relations := p.Feed(`{"source": "e1", "target": "e2", "relation": "collaborated with"}]}`)
	if len(relations) != 1 {
		t.Fatalf("expected 1 relation, got %d", len(relations))
	}
	if relations[0].Source != "e1" || relations[0].Target != "e2" || relations[0].Phrase != "collaborated with" {
		t.Errorf("relation = %+v", relations[0])
	}
}

func TestParser_StripsFencedCodeBlock(t *testing.T) {
	p := New()
	entities, _ := p.Feed("```json\n{\"entities\": [{\"id\": \"e1\", \"label\": \"Tokyo\", \"type\": \"LOCATION\"}]}\n```")
	if len(entities) != 1 || entities[0].Label != "Tokyo" {
		t.Fatalf("entities = %+v", entities)
	}
}

func TestParser_DeduplicatesRepeatedFeedOfSameBuffer(t *testing.T) {
	p := New()
	chunk := `{"entities": [{"id": "e1", "label": "Ada", "type": "PERSON"}]}`

	first, _ := p.Feed(chunk)
	if len(first) != 1 {
		t.Fatalf("expected 1 entity on first feed, got %d", len(first))
	}

	second, _ := p.Feed("")
	if len(second) != 0 {
		t.Fatalf("expected no new entities on re-scan, got %d", len(second))
	}
}

func TestParser_DeduplicatesRelationTriple(t *testing.T) {
	p := New()
	p.Feed(`{"relations": [{"source": "e1", "target": "e2", "relation": "knows"}`)
	_, rel := p.Feed(`, {"source": "e1", "target": "e2", "relation": "knows"}]}`)
	if len(rel) != 0 {
		t.Fatalf("expected duplicate triple to be suppressed, got %d", len(rel))
	}
}

func TestParser_MissingRequiredFieldSkipped(t *testing.T) {
	p := New()
	entities, _ := p.Feed(`{"entities": [{"id": "e1", "type": "PERSON"}, {"id": "e2", "label": "Grace", "type": "PERSON"}]}`)
	if len(entities) != 1 || entities[0].TempID != "e2" {
		t.Fatalf("expected only the well-formed entity, got %+v", entities)
	}
}

func TestParser_UnknownTypePassedThrough(t *testing.T) {
	p := New()
	entities, _ := p.Feed(`{"entities": [{"id": "e1", "label": "Widget", "type": "GIZMO"}]}`)
	if len(entities) != 1 || entities[0].Type != "GIZMO" {
		t.Fatalf("expected raw unrecognized type to pass through for the caller to normalize, got %+v", entities)
	}
}

func TestParser_PrematureArrayCloseStopsCleanly(t *testing.T) {
	p := New()
	entities, _ := p.Feed(`{"entities": []}`)
	if len(entities) != 0 {
		t.Fatalf("expected no entities from an empty array, got %d", len(entities))
	}
}
