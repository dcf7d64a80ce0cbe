package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mcasell/docgraph"
	"github.com/mcasell/docgraph/extract"
	"github.com/mcasell/docgraph/llm"
	"github.com/mcasell/docgraph/schema"
)

type handler struct {
	svc docgraph.Service
}

func newHandler(svc docgraph.Service) *handler {
	return &handler{svc: svc}
}

// POST /documents
// Accepts a multipart file upload, or JSON with inline text.
func (h *handler) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	// Try multipart upload first.
	if err := r.ParseMultipartForm(100 << 20); err == nil { // 100MB max
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()

			// Sanitise filename to prevent path traversal.
			safeName := filepath.Base(header.Filename)

			tmpPath := filepath.Join(os.TempDir(), safeName)
			dst, err := os.Create(tmpPath)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to process file")
				slog.Error("creating temp file", "error", err)
				return
			}
			if _, err := io.Copy(dst, file); err != nil {
				dst.Close()
				writeError(w, http.StatusInternalServerError, "failed to save file")
				slog.Error("saving uploaded file", "error", err)
				return
			}
			dst.Close()
			defer os.Remove(tmpPath)

			docID, err := h.svc.IngestFile(ctx, tmpPath)
			if err != nil {
				writeServiceError(w, err, "ingest error")
				return
			}

			writeJSON(w, http.StatusCreated, map[string]any{
				"document_id": docID,
				"filename":    safeName,
			})
			return
		}
	}

	// JSON body with inline text.
	var req docgraph.NewDocument
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected multipart file or JSON document")
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}

	docID, err := h.svc.AddDocument(ctx, req)
	if err != nil {
		writeServiceError(w, err, "add document error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"document_id": docID,
		"filename":    req.Filename,
	})
}

// POST /documents/{id}/analyze
func (h *handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	id, ok := documentID(w, r)
	if !ok {
		return
	}

	g, err := h.svc.Analyze(ctx, id)
	if err != nil {
		writeServiceError(w, err, "analyze error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": id,
		"graph":       g,
	})
}

// GET /documents/{id}/graph
func (h *handler) handleGraph(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}

	g, err := h.svc.Graph(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "graph read error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": id,
		"graph":       g,
	})
}

// PUT /documents/{id}/ocr
func (h *handler) handleSetOCRText(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.svc.SetOCRText(r.Context(), id, req.Text); err != nil {
		writeServiceError(w, err, "set ocr text error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// DELETE /documents/{id}
func (h *handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err, "delete error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /documents
func (h *handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		slog.Error("list documents error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
	})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// documentID parses the {id} path segment, writing a 400 on failure.
func documentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps pipeline errors to HTTP statuses: unknown
// documents are 404, documents that cannot be analyzed or model output
// that does not form a valid graph are 422, upstream model failures are
// 502, anything else is 500.
func writeServiceError(w http.ResponseWriter, err error, logMsg string) {
	var verr *schema.ValidationError
	switch {
	case errors.Is(err, docgraph.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, docgraph.ErrNoContent):
		writeError(w, http.StatusUnprocessableEntity, "document has no content to analyze")
	case errors.As(err, &verr), errors.Is(err, extract.ErrParse):
		writeError(w, http.StatusUnprocessableEntity, "model output did not form a valid graph")
		slog.Error(logMsg, "error", err)
	case errors.Is(err, llm.ErrUpstream), errors.Is(err, llm.ErrTransport):
		writeError(w, http.StatusBadGateway, "model request failed")
		slog.Error(logMsg, "error", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
		slog.Error(logMsg, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
