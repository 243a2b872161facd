package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/speechgraph/core/internal/config"
	"github.com/speechgraph/core/internal/graph"
	"github.com/speechgraph/core/internal/llmparse"
	"github.com/speechgraph/core/internal/observe"
	"github.com/speechgraph/core/internal/session"
	"github.com/speechgraph/core/internal/transport"
	"github.com/speechgraph/core/pkg/provider/llm"
)

const extractionPollInterval = 250 * time.Millisecond

// runExtractionWorker batches sentences from the sentence queue and, on
// trigger, runs one streaming LLM extraction pass against the session
// graph, per spec.md §4.6. The error return always carries nil; it exists
// only so the session router can run every worker under a single
// golang.org/x/sync/errgroup.Group.
func runExtractionWorker(
	ctx context.Context,
	q *Queues,
	st *session.State,
	graphMgr *graph.Manager,
	llmProvider llm.Provider,
	cfg config.ExtractionConfig,
	metrics *observe.Metrics,
) error {
	var batch []SentenceItem
	lastExtraction := time.Now()
	ticker := time.NewTicker(extractionPollInterval)
	defer ticker.Stop()

	runIfTriggered := func() {
		if len(batch) == 0 {
			return
		}
		triggered := len(batch) >= cfg.BatchSize || time.Since(lastExtraction) >= cfg.BatchMaxWait
		if !triggered {
			return
		}
		toExtract := batch
		batch = nil
		lastExtraction = time.Now()
		extractBatch(ctx, toExtract, q, st, graphMgr, llmProvider, metrics)
	}

	for {
		if !st.IsActive() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case item, ok := <-q.Sentence:
			if !ok {
				return nil
			}
			batch = append(batch, item)
			runIfTriggered()
		case <-ticker.C:
			runIfTriggered()
		}
	}
}

// extractBatch runs one extraction pass: builds a prompt from the batched
// sentences and relevant graph context, streams the LLM's response through
// the streaming JSON parser, reconciles entities as they complete, and
// reconciles all accumulated relations once the stream ends.
func extractBatch(
	ctx context.Context,
	batch []SentenceItem,
	q *Queues,
	st *session.State,
	graphMgr *graph.Manager,
	llmProvider llm.Provider,
	metrics *observe.Metrics,
) {
	sessionID := st.ID()
	start := time.Now()
	defer func() {
		if metrics != nil {
			metrics.ExtractionDuration.Record(ctx, time.Since(start).Seconds())
		}
	}()

	text := joinSentences(batch)
	snapshot := graphMgr.State(ctx, sessionID)
	entities, relations := selectRelevantContext(snapshot, text)
	prompt := buildExtractionPrompt(snapshot, entities, relations, text)

	chunks, err := llmProvider.StreamCompletion(ctx, prompt)
	if metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
			metrics.RecordProviderError(ctx, "llm", "extract")
		}
		metrics.RecordProviderRequest(ctx, "llm", "extract", status)
	}
	if err != nil {
		pushError(ctx, q, transport.ErrExtractionFailed, "extraction failed to start")
		return
	}

	parser := llmparse.New()
	idMap := make(map[string]string)
	var accumulatedRelations []llmparse.Relation

	for chunk := range chunks {
		if chunk.Text == "" && chunk.FinishReason == "" {
			continue
		}
		newEntities, newRelations := parser.Feed(chunk.Text)
		accumulatedRelations = append(accumulatedRelations, newRelations...)

		if len(newEntities) > 0 {
			result := graph.ExtractionResult{Entities: toExtractedEntities(newEntities)}
			delta, nextIDMap := graphMgr.ApplyExtraction(ctx, sessionID, result, idMap)
			idMap = nextIDMap
			sendGraphDeltaIfChanged(ctx, q, delta, metrics)
		}
		if chunk.FinishReason == "error" {
			pushError(ctx, q, transport.ErrExtractionFailed, "extraction stream ended with an error")
			return
		}
	}

	if len(accumulatedRelations) == 0 {
		return
	}
	result := graph.ExtractionResult{Relations: toExtractedRelations(accumulatedRelations)}
	delta, _ := graphMgr.ApplyExtraction(ctx, sessionID, result, idMap)
	sendGraphDeltaIfChanged(ctx, q, delta, metrics)
}

func pushError(ctx context.Context, q *Queues, code, message string) {
	q.PushOutbound(ctx, OutboundItem{Kind: string(transport.KindError), Payload: transport.ErrorPayload{
		Code:        code,
		Message:     message,
		Recoverable: true,
	}})
}

func sendGraphDeltaIfChanged(ctx context.Context, q *Queues, delta graph.Delta, metrics *observe.Metrics) {
	if delta.Empty() {
		return
	}
	if metrics != nil {
		metrics.GraphEntitiesCreated.Add(ctx, int64(len(delta.AddedEntities)))
		metrics.GraphRelationsCreated.Add(ctx, int64(len(delta.AddedRelations)))
	}
	if !q.PushOutbound(ctx, OutboundItem{Kind: string(transport.KindGraphDelta), Payload: graphDeltaPayload(delta)}) {
		if metrics != nil {
			metrics.RecordMessageDropped(ctx, "outbound")
		}
	}
}

func graphDeltaPayload(delta graph.Delta) map[string]any {
	return map[string]any{
		"addedEntities":   delta.AddedEntities,
		"addedRelations":  delta.AddedRelations,
		"updatedEntities": delta.UpdatedEntities,
		"fromVersion":     delta.FromVersion,
		"toVersion":       delta.ToVersion,
	}
}

func toExtractedEntities(in []llmparse.Entity) []graph.ExtractedEntity {
	out := make([]graph.ExtractedEntity, len(in))
	for i, e := range in {
		out[i] = graph.ExtractedEntity{TempID: e.TempID, Label: e.Label, Type: graph.NormalizeEntityType(e.Type)}
	}
	return out
}

func toExtractedRelations(in []llmparse.Relation) []graph.ExtractedRelation {
	out := make([]graph.ExtractedRelation, len(in))
	for i, r := range in {
		out[i] = graph.ExtractedRelation{Source: r.Source, Target: r.Target, Phrase: r.Phrase}
	}
	return out
}

func joinSentences(batch []SentenceItem) string {
	texts := make([]string, len(batch))
	for i, s := range batch {
		texts[i] = s.Text
	}
	return strings.Join(texts, " ")
}

// buildExtractionPrompt assembles the prompt described in spec.md §4.6:
// known entity types, up to 8 relevant entities and 5 relations, the
// batched text, and a few-shot example block.
func buildExtractionPrompt(g *graph.SessionGraph, entities []*graph.Entity, relations []*graph.Relation, text string) llm.CompletionRequest {
	var b strings.Builder
	b.WriteString("Known entity types: PERSON, ORGANIZATION, LOCATION, CONCEPT, EVENT, PRODUCT, TECHNOLOGY, DATE, METRIC, ACTION.\n")

	if len(entities) > 0 {
		b.WriteString("Known entities:\n")
		for _, e := range entities {
			fmt.Fprintf(&b, "- %s (%s, id=%s)\n", e.Label, e.Type, e.ID)
		}
	}
	if len(relations) > 0 {
		b.WriteString("Known relations:\n")
		for _, r := range relations {
			fmt.Fprintf(&b, "- %s -[%s]-> %s\n", r.SourceID, r.Phrase, r.TargetID)
		}
	}

	b.WriteString("\nExample output:\n")
	b.WriteString(`{"entities":[{"id":"e1","label":"Ada Lovelace","type":"PERSON"}],"relations":[{"source":"e1","target":"e2","relation":"collaborated with"}]}`)
	b.WriteString("\n\nExtract entities and relations mentioned in the following text. Respond only with JSON matching the example shape.\n")
	b.WriteString("Text: ")
	b.WriteString(text)

	return llm.CompletionRequest{
		SystemPrompt: "You extract a knowledge graph (entities and relations) from spoken-language transcripts.",
		Messages:     []llm.Message{{Role: "user", Content: b.String()}},
	}
}
