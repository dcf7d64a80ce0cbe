// Command e2e_test runs the full pipeline against a live completion
// endpoint: register a document, analyze it, and print the stored graph.
// It needs OPENAI_API_KEY set and spends real tokens, so it is a manual
// smoke check rather than a go test.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mcasell/docgraph"
)

const sampleText = `Marie Curie was a physicist and chemist who conducted
pioneering research on radioactivity. She worked at the University of Paris
and was married to Pierre Curie, with whom she shared the 1903 Nobel Prize
in Physics.`

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "OPENAI_API_KEY not set")
		os.Exit(1)
	}

	tmpDir, _ := os.MkdirTemp("", "docgraph-e2e-*")
	defer os.RemoveAll(tmpDir)

	cfg := docgraph.DefaultConfig()
	cfg.DBPath = tmpDir + "/test.db"
	cfg.LLM.APIKey = apiKey
	if v := os.Getenv("DOCGRAPH_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("DOCGRAPH_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	svc, err := docgraph.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating service: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Fprintln(os.Stderr, "\n=== REGISTERING DOCUMENT ===")
	docID, err := svc.AddDocument(ctx, docgraph.NewDocument{
		Filename: "curie.txt",
		Content:  sampleText,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "add document error: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Registered document_id=%s\n", docID)

	fmt.Fprintln(os.Stderr, "\n=== ANALYZING ===")
	g, err := svc.Analyze(ctx, docID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze error: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Extracted %d nodes, %d edges\n", len(g.Nodes), len(g.Edges))

	// Read the graph back from storage to confirm the round trip.
	stored, err := svc.Graph(ctx, docID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "graph read error: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(stored, "", "  ")
	fmt.Println(string(out))
}
