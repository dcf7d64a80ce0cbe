// Package docgraph extracts knowledge graphs from document text with a
// single LLM completion call and persists them transactionally, fully
// replacing any prior graph for the same document.
package docgraph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mcasell/docgraph/content"
	"github.com/mcasell/docgraph/extract"
	"github.com/mcasell/docgraph/llm"
	"github.com/mcasell/docgraph/schema"
	"github.com/mcasell/docgraph/store"
)

// Service is the main entry point for document graph analysis.
type Service interface {
	// Analyze loads a document's text, extracts its knowledge graph, and
	// atomically replaces the stored graph for that document. The returned
	// graph is exactly the extracted one; a graph that failed to persist is
	// never returned.
	Analyze(ctx context.Context, documentID uuid.UUID) (*schema.Graph, error)

	// AddDocument registers a document with the given text payloads and
	// returns its generated ID.
	AddDocument(ctx context.Context, doc NewDocument) (uuid.UUID, error)

	// IngestFile extracts plain text from a file on disk and registers it
	// as a document.
	IngestFile(ctx context.Context, path string) (uuid.UUID, error)

	// Graph returns the currently stored graph for a document.
	Graph(ctx context.Context, documentID uuid.UUID) (*schema.Graph, error)

	// SetOCRText records OCR-derived text for a document; it takes
	// precedence over raw content during analysis.
	SetOCRText(ctx context.Context, documentID uuid.UUID, text string) error

	// ListDocuments returns all registered documents.
	ListDocuments(ctx context.Context) ([]store.Document, error)

	// Delete removes a document and its graph.
	Delete(ctx context.Context, documentID uuid.UUID) error

	// Store returns the underlying store for diagnostic access.
	Store() *store.Store

	// Close cleanly shuts down the service.
	Close() error
}

// NewDocument describes a document to register. Either Content or OCRText
// (or both) may be set.
type NewDocument struct {
	Filename string `json:"filename"`
	Content  string `json:"content,omitempty"`
	OCRText  string `json:"ocr_text,omitempty"`
}

// extractor is the strategy that turns text into a graph. Credential
// presence decides the concrete implementation at construction time, so
// tests can inject their own without touching the environment.
type extractor interface {
	Extract(ctx context.Context, text string) (*schema.Graph, error)
}

// service is the concrete implementation of Service.
type service struct {
	cfg       Config
	store     *store.Store
	extractor extractor
}

// New creates a docgraph service. If cfg.LLM.APIKey is empty the service
// uses the deterministic fallback extractor instead of a live model.
func New(cfg Config) (Service, error) {
	switch cfg.StorageDir {
	case "", "home", "local", "cwd":
	default:
		return nil, fmt.Errorf("%w: unknown storage_dir %q", ErrInvalidConfig, cfg.StorageDir)
	}

	s, err := store.New(cfg.resolveDBPath())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	var provider llm.Provider
	if cfg.LLM.APIKey != "" {
		provider = llm.NewClient(llm.Config{
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
		})
	} else {
		slog.Info("no model credential configured, using fallback extraction")
	}

	return &service{
		cfg:       cfg,
		store:     s,
		extractor: extract.New(provider),
	}, nil
}

// Analyze runs the extraction-and-ingestion pipeline for one document.
// Control flow is strictly sequential; no state is retained across calls
// beyond the store's connection pool.
func (s *service) Analyze(ctx context.Context, documentID uuid.UUID) (*schema.Graph, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
		}
		return nil, fmt.Errorf("loading document %s: %w", documentID, err)
	}

	// Prefer OCR-derived text over raw stored content.
	text := doc.OCRText
	if text == "" {
		text = doc.Content
	}
	if text == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, documentID)
	}

	start := time.Now()
	g, err := s.extractor.Extract(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("analysis extraction: %w", err)
	}

	// Catch dangling references before touching storage. The store
	// re-checks defensively inside the transaction.
	if err := schema.Validate(g); err != nil {
		return nil, fmt.Errorf("analysis extraction produced invalid graph: %w", err)
	}

	if err := s.store.ReplaceGraph(ctx, documentID, g); err != nil {
		return nil, fmt.Errorf("analysis storage: %w", err)
	}

	slog.Info("analyze: graph replaced",
		"document_id", documentID,
		"nodes", len(g.Nodes), "edges", len(g.Edges),
		"elapsed", time.Since(start).Round(time.Millisecond))

	return g, nil
}

// AddDocument registers a document.
func (s *service) AddDocument(ctx context.Context, doc NewDocument) (uuid.UUID, error) {
	id, err := s.store.InsertDocument(ctx, store.Document{
		Filename: doc.Filename,
		Content:  doc.Content,
		OCRText:  doc.OCRText,
	})
	if err != nil {
		return uuid.Nil, err
	}
	slog.Info("document registered", "document_id", id, "filename", doc.Filename)
	return id, nil
}

// IngestFile extracts text from a local file and registers it.
func (s *service) IngestFile(ctx context.Context, path string) (uuid.UUID, error) {
	text, err := content.ExtractText(path)
	if err != nil {
		return uuid.Nil, fmt.Errorf("extracting text from %s: %w", path, err)
	}
	return s.AddDocument(ctx, NewDocument{
		Filename: filepath.Base(path),
		Content:  text,
	})
}

// Graph returns the stored graph for a document.
func (s *service) Graph(ctx context.Context, documentID uuid.UUID) (*schema.Graph, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
		}
		return nil, err
	}
	return s.store.GraphForDocument(ctx, documentID)
}

// SetOCRText records OCR text for a document.
func (s *service) SetOCRText(ctx context.Context, documentID uuid.UUID, text string) error {
	if err := s.store.SetOCRText(ctx, documentID, text); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
		}
		return err
	}
	return nil
}

// ListDocuments returns all registered documents.
func (s *service) ListDocuments(ctx context.Context) ([]store.Document, error) {
	return s.store.ListDocuments(ctx)
}

// Delete removes a document and its graph rows.
func (s *service) Delete(ctx context.Context, documentID uuid.UUID) error {
	return s.store.DeleteDocument(ctx, documentID)
}

// Store returns the underlying store.
func (s *service) Store() *store.Store {
	return s.store
}

// Close shuts down the service.
func (s *service) Close() error {
	return s.store.Close()
}
