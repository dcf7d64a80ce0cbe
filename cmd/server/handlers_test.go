//go:build cgo

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/mcasell/docgraph"
	"github.com/mcasell/docgraph/schema"
)

func newTestHandler(t *testing.T) *handler {
	t.Helper()
	cfg := docgraph.DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	svc, err := docgraph.New(cfg)
	if err != nil {
		t.Fatalf("creating service: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return newHandler(svc)
}

func createDocument(t *testing.T, h *handler, body string) uuid.UUID {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.handleCreateDocument(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create document: status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		DocumentID uuid.UUID `json:"document_id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}
	return resp.DocumentID
}

func TestCreateDocumentRequiresFilename(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	h.handleCreateDocument(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// With no credential configured the service analyzes with the deterministic
// fallback extractor, so the whole pipeline is exercisable offline.
func TestAnalyzeAndGraphRoundTrip(t *testing.T) {
	h := newTestHandler(t)
	id := createDocument(t, h, `{"filename":"doc.txt","content":"John Doe works at Acme Corp."}`)

	req := httptest.NewRequest(http.MethodPost, "/documents/"+id.String()+"/analyze", nil)
	req.SetPathValue("id", id.String())
	rec := httptest.NewRecorder()
	h.handleAnalyze(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze: status %d, body %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/documents/"+id.String()+"/graph", nil)
	req.SetPathValue("id", id.String())
	rec = httptest.NewRecorder()
	h.handleGraph(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("graph: status %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Graph schema.Graph `json:"graph"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding graph response: %v", err)
	}
	if len(resp.Graph.Nodes) == 0 || len(resp.Graph.Edges) == 0 {
		t.Errorf("stored graph is empty: %+v", resp.Graph)
	}
}

func TestAnalyzeUnknownDocument(t *testing.T) {
	h := newTestHandler(t)
	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/documents/"+id+"/analyze", nil)
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	h.handleAnalyze(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAnalyzeEmptyDocument(t *testing.T) {
	h := newTestHandler(t)
	id := createDocument(t, h, `{"filename":"empty.txt"}`)

	req := httptest.NewRequest(http.MethodPost, "/documents/"+id.String()+"/analyze", nil)
	req.SetPathValue("id", id.String())
	rec := httptest.NewRecorder()
	h.handleAnalyze(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestInvalidDocumentID(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/documents/not-a-uuid/analyze", nil)
	req.SetPathValue("id", "not-a-uuid")
	rec := httptest.NewRecorder()
	h.handleAnalyze(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDeleteDocument(t *testing.T) {
	h := newTestHandler(t)
	id := createDocument(t, h, `{"filename":"doc.txt","content":"text"}`)

	req := httptest.NewRequest(http.MethodDelete, "/documents/"+id.String(), nil)
	req.SetPathValue("id", id.String())
	rec := httptest.NewRecorder()
	h.handleDeleteDocument(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/documents/"+id.String()+"/graph", nil)
	req.SetPathValue("id", id.String())
	rec = httptest.NewRecorder()
	h.handleGraph(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("graph after delete: status %d, want 404", rec.Code)
	}
}
