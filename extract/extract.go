// Package extract turns unstructured document text into a knowledge graph
// using a single LLM chat-completion call. When no completion provider is
// configured it falls back to a fixed synthetic graph so the pipeline stays
// exercisable without external dependencies.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mcasell/docgraph/llm"
	"github.com/mcasell/docgraph/schema"
)

// maxPromptChars bounds the document excerpt embedded in the prompt to
// respect model context limits. Truncation is lossy and deliberate; text
// beyond the cap is simply not analyzed.
const maxPromptChars = 4000

// ErrParse is returned when the model output is not the expected two-key
// graph JSON. Malformed output is never retried or silently defaulted.
var ErrParse = errors.New("extract: model output is not valid graph JSON")

const systemPrompt = "You are a helpful assistant that extracts knowledge graphs from text."

const extractionPrompt = `Extract entities (nodes) and relationships (edges) from the following text to build a knowledge graph.
Return ONLY a JSON object with exactly two keys:
  "nodes" : array of {"label": string, "name": string, "properties": object}
  "edges" : array of {"source": string, "target": string, "relationship": string, "properties": object}
"source" and "target" must be "name" values from "nodes".
Do NOT include any text outside the JSON object.

TEXT:
%s`

// Extractor converts document text into a schema.Graph.
type Extractor struct {
	provider llm.Provider
}

// New creates an extractor. A nil provider selects the deterministic
// fallback path, used when no model credential is configured.
func New(p llm.Provider) *Extractor {
	return &Extractor{provider: p}
}

// Extract produces a graph for the given text. With a provider configured
// it makes exactly one completion attempt; transport and upstream failures
// surface as errors wrapping llm.ErrTransport / llm.ErrUpstream, and
// unparseable output as an error wrapping ErrParse. Without a provider it
// returns the fixed fallback graph and never fails.
func (e *Extractor) Extract(ctx context.Context, text string) (*schema.Graph, error) {
	if e.provider == nil {
		return FallbackGraph(), nil
	}

	excerpt := truncate(text, maxPromptChars)
	start := time.Now()

	resp, err := e.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(extractionPrompt, excerpt)},
		},
		Temperature:    0.0,
		ResponseFormat: "json_object",
	})
	if err != nil {
		return nil, fmt.Errorf("extraction completion: %w", err)
	}

	raw := stripFences(resp.Content)

	var g schema.Graph
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	slog.Debug("extract: graph parsed",
		"nodes", len(g.Nodes), "edges", len(g.Edges),
		"input_chars", len(text), "excerpt_chars", len(excerpt),
		"elapsed", time.Since(start).Round(time.Millisecond))

	return &g, nil
}

// FallbackGraph returns the fixed synthetic graph used when no model
// credential is configured. It is independent of the input text.
func FallbackGraph() *schema.Graph {
	return &schema.Graph{
		Nodes: []schema.Node{
			{Label: "Person", Name: "John Doe", Properties: map[string]any{"role": "Engineer"}},
			{Label: "Company", Name: "Acme Corp", Properties: map[string]any{"industry": "Tech"}},
		},
		Edges: []schema.Edge{
			{Source: "John Doe", Target: "Acme Corp", Relationship: "WORKS_FOR", Properties: map[string]any{}},
		},
	}
}

// truncate cuts text to at most n runes.
func truncate(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

// stripFences removes one leading markdown code fence (optionally
// language-tagged, e.g. ```json) and one trailing fence from the model
// output. Well-formed JSON without fences passes through unchanged.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = s[3:]
		// Drop a language tag up to the first newline.
		if i := strings.IndexByte(s, '\n'); i >= 0 && isFenceTag(s[:i]) {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "json")
		}
	}
	if strings.HasSuffix(strings.TrimSpace(s), "```") {
		s = strings.TrimSpace(s)
		s = s[:len(s)-3]
	}
	return strings.TrimSpace(s)
}

// isFenceTag reports whether s looks like a fence language tag ("json",
// "JSON", or empty) rather than the start of the payload.
func isFenceTag(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
