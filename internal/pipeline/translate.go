package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/speechgraph/core/internal/graph"
	"github.com/speechgraph/core/pkg/provider/llm"
)

// translationResponse is the expected shape of a translate-graph
// completion: entity id -> translated label, relation id -> translated
// phrase.
type translationResponse struct {
	Labels  map[string]string `json:"labels"`
	Phrases map[string]string `json:"phrases"`
}

// buildTranslationPrompt asks the model to translate every entity label and
// relation phrase in g into targetLanguage, keyed by id so the router can
// report a translation without mutating the stored graph.
func buildTranslationPrompt(g *graph.SessionGraph, targetLanguage string) llm.CompletionRequest {
	var b strings.Builder
	fmt.Fprintf(&b, "Translate the following knowledge graph labels and relation phrases into %s.\n", targetLanguage)
	b.WriteString("Entities:\n")
	for id, e := range g.Entities {
		fmt.Fprintf(&b, "- %s: %s\n", id, e.Label)
	}
	b.WriteString("Relations:\n")
	for id, r := range g.Relations {
		fmt.Fprintf(&b, "- %s: %s\n", id, r.Phrase)
	}
	b.WriteString(`Respond only with JSON of the shape {"labels":{"<entityId>":"<translated>"},"phrases":{"<relationId>":"<translated>"}}.`)

	return llm.CompletionRequest{
		SystemPrompt: "You translate knowledge graph labels and relation phrases without altering their meaning.",
		Messages:     []llm.Message{{Role: "user", Content: b.String()}},
	}
}

// parseTranslationResponse parses a translation completion's content. A
// malformed response yields empty maps rather than an error: a failed
// translation degrades to "nothing translated", not a dropped connection.
func parseTranslationResponse(content string) (labels, phrases map[string]string) {
	var resp translationResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return map[string]string{}, map[string]string{}
	}
	if resp.Labels == nil {
		resp.Labels = map[string]string{}
	}
	if resp.Phrases == nil {
		resp.Phrases = map[string]string{}
	}
	return resp.Labels, resp.Phrases
}
