//go:build cgo

package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/mcasell/docgraph/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestDocument(t *testing.T, s *Store, content string) uuid.UUID {
	t.Helper()
	id, err := s.InsertDocument(context.Background(), Document{
		Filename: "test.txt",
		Content:  content,
	})
	if err != nil {
		t.Fatalf("inserting document: %v", err)
	}
	return id
}

func janeAcmeGraph() *schema.Graph {
	return &schema.Graph{
		Nodes: []schema.Node{
			{Label: "Person", Name: "Jane", Properties: map[string]any{"role": "Engineer"}},
			{Label: "Company", Name: "Acme", Properties: map[string]any{}},
		},
		Edges: []schema.Edge{
			{Source: "Jane", Target: "Acme", Relationship: "WORKS_FOR", Properties: map[string]any{}},
		},
	}
}

// ---------------------------------------------------------------------------
// Document CRUD
// ---------------------------------------------------------------------------

func TestInsertAndGetDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertDocument(ctx, Document{Filename: "report.pdf", Content: "Jane works at Acme."})
	if err != nil {
		t.Fatalf("inserting document: %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("expected non-nil document id")
	}

	got, err := s.GetDocument(ctx, id)
	if err != nil {
		t.Fatalf("getting document: %v", err)
	}
	if got.Filename != "report.pdf" {
		t.Errorf("filename: got %q", got.Filename)
	}
	if got.Content != "Jane works at Acme." {
		t.Errorf("content: got %q", got.Content)
	}
	if got.OCRText != "" {
		t.Errorf("ocr_text: got %q, want empty", got.OCRText)
	}
}

func TestGetDocumentMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetDocument(context.Background(), uuid.New())
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("got %v, want sql.ErrNoRows", err)
	}
}

func TestSetOCRText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := insertTestDocument(t, s, "raw content")
	if err := s.SetOCRText(ctx, id, "ocr content"); err != nil {
		t.Fatalf("setting ocr text: %v", err)
	}

	got, err := s.GetDocument(ctx, id)
	if err != nil {
		t.Fatalf("getting document: %v", err)
	}
	if got.OCRText != "ocr content" {
		t.Errorf("ocr_text: got %q", got.OCRText)
	}

	if err := s.SetOCRText(ctx, uuid.New(), "x"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("missing document: got %v, want sql.ErrNoRows", err)
	}
}

func TestListDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestDocument(t, s, "one")
	insertTestDocument(t, s, "two")

	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("listing documents: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
}

// ---------------------------------------------------------------------------
// ReplaceGraph
// ---------------------------------------------------------------------------

// Replace followed by read-back returns a graph isomorphic to the input.
func TestReplaceGraphRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID := insertTestDocument(t, s, "Jane works at Acme.")
	g := janeAcmeGraph()

	if err := s.ReplaceGraph(ctx, docID, g); err != nil {
		t.Fatalf("replacing graph: %v", err)
	}

	got, err := s.GraphForDocument(ctx, docID)
	if err != nil {
		t.Fatalf("reading graph: %v", err)
	}
	if !reflect.DeepEqual(got, g) {
		t.Errorf("stored graph differs from input:\ngot  %+v\nwant %+v", got, g)
	}
}

// Edge endpoints must resolve to the identifiers generated for this call's
// node rows.
func TestReplaceGraphResolvesEndpoints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID := insertTestDocument(t, s, "Jane works at Acme.")
	if err := s.ReplaceGraph(ctx, docID, janeAcmeGraph()); err != nil {
		t.Fatalf("replacing graph: %v", err)
	}

	nodes, err := s.NodeRows(ctx, docID)
	if err != nil {
		t.Fatalf("reading node rows: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d node rows, want 2", len(nodes))
	}

	byName := make(map[string]uuid.UUID, len(nodes))
	for _, n := range nodes {
		byName[n.Name] = n.ID
	}

	edges, err := s.EdgeRows(ctx, docID)
	if err != nil {
		t.Fatalf("reading edge rows: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("got %d edge rows, want 1", len(edges))
	}
	if edges[0].SourceNodeID != byName["Jane"] {
		t.Errorf("source id: got %s, want %s", edges[0].SourceNodeID, byName["Jane"])
	}
	if edges[0].TargetNodeID != byName["Acme"] {
		t.Errorf("target id: got %s, want %s", edges[0].TargetNodeID, byName["Acme"])
	}
	if edges[0].Relationship != "WORKS_FOR" {
		t.Errorf("relationship: got %q", edges[0].Relationship)
	}
}

// Replacing twice leaves exactly the rows implied by the second call.
func TestReplaceGraphIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID := insertTestDocument(t, s, "text")

	if err := s.ReplaceGraph(ctx, docID, janeAcmeGraph()); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	firstNodes, err := s.NodeRows(ctx, docID)
	if err != nil {
		t.Fatalf("reading node rows: %v", err)
	}

	second := &schema.Graph{
		Nodes: []schema.Node{{Label: "City", Name: "Antwerp", Properties: map[string]any{}}},
	}
	if err := s.ReplaceGraph(ctx, docID, second); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	nodes, err := s.NodeRows(ctx, docID)
	if err != nil {
		t.Fatalf("reading node rows: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Name != "Antwerp" {
		t.Fatalf("node rows after second replace: %+v", nodes)
	}
	for _, old := range firstNodes {
		if nodes[0].ID == old.ID {
			t.Error("node id from first replace survived the second")
		}
	}

	edges, err := s.EdgeRows(ctx, docID)
	if err != nil {
		t.Fatalf("reading edge rows: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("got %d edge rows, want 0", len(edges))
	}
}

// A dangling edge aborts the whole transaction: no rows from the failed
// call are visible, and the prior graph is preserved.
func TestReplaceGraphAtomicOnDanglingEdge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID := insertTestDocument(t, s, "text")
	if err := s.ReplaceGraph(ctx, docID, janeAcmeGraph()); err != nil {
		t.Fatalf("seeding prior graph: %v", err)
	}

	bad := &schema.Graph{
		Nodes: []schema.Node{{Label: "Person", Name: "Y", Properties: map[string]any{}}},
		Edges: []schema.Edge{{Source: "X", Target: "Y", Relationship: "KNOWS"}},
	}

	err := s.ReplaceGraph(ctx, docID, bad)
	var derr *DanglingError
	if !errors.As(err, &derr) {
		t.Fatalf("got %v, want *DanglingError", err)
	}
	if derr.Endpoint != "source" || derr.Name != "X" {
		t.Errorf("dangling detail: got %s %q", derr.Endpoint, derr.Name)
	}

	// Prior state must be intact.
	got, err := s.GraphForDocument(ctx, docID)
	if err != nil {
		t.Fatalf("reading graph: %v", err)
	}
	if !reflect.DeepEqual(got, janeAcmeGraph()) {
		t.Errorf("prior graph not preserved after failed replace: %+v", got)
	}
}

// A dangling edge against an empty prior state leaves no rows at all.
func TestReplaceGraphDanglingLeavesNoRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID := insertTestDocument(t, s, "text")
	bad := &schema.Graph{
		Nodes: []schema.Node{{Label: "Person", Name: "X", Properties: map[string]any{}}},
		Edges: []schema.Edge{{Source: "X", Target: "Y", Relationship: "KNOWS"}},
	}

	err := s.ReplaceGraph(ctx, docID, bad)
	var derr *DanglingError
	if !errors.As(err, &derr) {
		t.Fatalf("got %v, want *DanglingError", err)
	}
	if derr.Endpoint != "target" || derr.Name != "Y" {
		t.Errorf("dangling detail: got %s %q", derr.Endpoint, derr.Name)
	}

	nodes, err := s.NodeRows(ctx, docID)
	if err != nil {
		t.Fatalf("reading node rows: %v", err)
	}
	if len(nodes) != 0 {
		t.Errorf("got %d node rows after failed replace, want 0", len(nodes))
	}
}

// Duplicate node names collapse last-write-wins: edges referencing the name
// resolve to the identifier of the last inserted node. This pins the chosen
// behaviour for duplicate names.
func TestReplaceGraphDuplicateNamesLastWriteWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID := insertTestDocument(t, s, "text")
	g := &schema.Graph{
		Nodes: []schema.Node{
			{Label: "Person", Name: "Jane", Properties: map[string]any{"v": "first"}},
			{Label: "Person", Name: "Jane", Properties: map[string]any{"v": "second"}},
			{Label: "Company", Name: "Acme", Properties: map[string]any{}},
		},
		Edges: []schema.Edge{
			{Source: "Jane", Target: "Acme", Relationship: "WORKS_FOR", Properties: map[string]any{}},
		},
	}

	if err := s.ReplaceGraph(ctx, docID, g); err != nil {
		t.Fatalf("replacing graph: %v", err)
	}

	nodes, err := s.NodeRows(ctx, docID)
	if err != nil {
		t.Fatalf("reading node rows: %v", err)
	}
	var lastJane uuid.UUID
	for _, n := range nodes {
		if n.Name == "Jane" {
			lastJane = n.ID // insertion order, so this ends on the second Jane
		}
	}

	edges, err := s.EdgeRows(ctx, docID)
	if err != nil {
		t.Fatalf("reading edge rows: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("got %d edge rows, want 1", len(edges))
	}
	if edges[0].SourceNodeID != lastJane {
		t.Errorf("edge source resolved to %s, want last-inserted Jane %s", edges[0].SourceNodeID, lastJane)
	}
}

// Replacing one document's graph never touches another document's rows.
func TestReplaceGraphScopedToDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docA := insertTestDocument(t, s, "a")
	docB := insertTestDocument(t, s, "b")

	if err := s.ReplaceGraph(ctx, docA, janeAcmeGraph()); err != nil {
		t.Fatalf("replacing graph A: %v", err)
	}
	if err := s.ReplaceGraph(ctx, docB, &schema.Graph{
		Nodes: []schema.Node{{Label: "City", Name: "Antwerp", Properties: map[string]any{}}},
	}); err != nil {
		t.Fatalf("replacing graph B: %v", err)
	}
	if err := s.ReplaceGraph(ctx, docA, &schema.Graph{}); err != nil {
		t.Fatalf("clearing graph A: %v", err)
	}

	gotB, err := s.GraphForDocument(ctx, docB)
	if err != nil {
		t.Fatalf("reading graph B: %v", err)
	}
	if len(gotB.Nodes) != 1 || gotB.Nodes[0].Name != "Antwerp" {
		t.Errorf("document B graph affected by document A replace: %+v", gotB)
	}
}

func TestReplaceGraphEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID := insertTestDocument(t, s, "text")
	if err := s.ReplaceGraph(ctx, docID, &schema.Graph{}); err != nil {
		t.Fatalf("replacing with empty graph: %v", err)
	}

	got, err := s.GraphForDocument(ctx, docID)
	if err != nil {
		t.Fatalf("reading graph: %v", err)
	}
	if len(got.Nodes) != 0 || len(got.Edges) != 0 {
		t.Errorf("got %d nodes, %d edges, want empty", len(got.Nodes), len(got.Edges))
	}
}

// Deleting a document cascades to its graph rows.
func TestDeleteDocumentCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID := insertTestDocument(t, s, "text")
	if err := s.ReplaceGraph(ctx, docID, janeAcmeGraph()); err != nil {
		t.Fatalf("replacing graph: %v", err)
	}

	if err := s.DeleteDocument(ctx, docID); err != nil {
		t.Fatalf("deleting document: %v", err)
	}

	var count int
	if err := s.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM document_nodes WHERE document_id = ?", docID.String()).Scan(&count); err != nil {
		t.Fatalf("counting nodes: %v", err)
	}
	if count != 0 {
		t.Errorf("got %d node rows after document delete, want 0", count)
	}
	if err := s.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM document_edges WHERE document_id = ?", docID.String()).Scan(&count); err != nil {
		t.Fatalf("counting edges: %v", err)
	}
	if count != 0 {
		t.Errorf("got %d edge rows after document delete, want 0", count)
	}
}
