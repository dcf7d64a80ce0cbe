// Package store provides SQLite-backed persistence for documents and their
// extracted knowledge graphs. It exclusively owns the write transaction
// boundary for the node and edge tables.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Document represents a row in the documents table. Content holds the raw
// stored text and OCRText the OCR-derived text; either may be empty.
type Document struct {
	ID        uuid.UUID `json:"id"`
	Filename  string    `json:"filename"`
	Content   string    `json:"content,omitempty"`
	OCRText   string    `json:"ocr_text,omitempty"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

// Store wraps the SQLite database for all docgraph persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema.
func New(dbPath string) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}

	// The whole schema is applied through the migration history.
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Document operations ---

// InsertDocument stores a new document and returns its generated ID.
func (s *Store) InsertDocument(ctx context.Context, doc Document) (uuid.UUID, error) {
	id := doc.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, filename, content, ocr_text)
		VALUES (?, ?, ?, ?)
	`, id.String(), doc.Filename, nullable(doc.Content), nullable(doc.OCRText))
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting document: %w", err)
	}
	return id, nil
}

// GetDocument retrieves a document by ID. Returns sql.ErrNoRows when no
// document matches.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	doc := &Document{ID: id}
	var content, ocrText sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT filename, content, ocr_text, created_at, updated_at
		FROM documents WHERE id = ?
	`, id.String()).Scan(&doc.Filename, &content, &ocrText, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.Content = content.String
	doc.OCRText = ocrText.String
	return doc, nil
}

// ListDocuments returns all documents ordered by creation time, without
// their text payloads.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, created_at, updated_at
		FROM documents ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var rawID string
		if err := rows.Scan(&rawID, &d.Filename, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.ID, err = uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("parsing document id %q: %w", rawID, err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// SetOCRText records OCR-derived text for a document. OCR text takes
// precedence over raw content during analysis.
func (s *Store) SetOCRText(ctx context.Context, id uuid.UUID, text string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE documents SET ocr_text = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		nullable(text), id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteDocument removes a document; its graph rows cascade.
func (s *Store) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id.String())
	return err
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// nullable maps the empty string to NULL so absence is distinguishable
// from empty text.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
