package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// A migration moves the schema from version-1 to version. The full history
// is replayed on fresh databases, so entries are append-only: fixing an old
// migration would desync databases that already ran it.
type migration struct {
	version     int
	description string
	statements  []string
}

var migrations = []migration{
	{
		version:     1,
		description: "documents, nodes, and edges tables",
		statements:  []string{schemaSQL},
	},
	{
		version:     2,
		description: "index edges by source and target for graph reads",
		statements: []string{
			"CREATE INDEX IF NOT EXISTS idx_edges_source ON document_edges(source_node_id)",
			"CREATE INDEX IF NOT EXISTS idx_edges_target ON document_edges(target_node_id)",
		},
	},
}

// Migrate brings the database up to the latest schema version. Each pending
// migration runs in its own transaction together with its version record.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		slog.Info("applying migration", "version", m.version, "description", m.description)

		err := s.inTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d: %w", m.version, err)
				}
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_version (version, description) VALUES (?, ?)",
				m.version, m.description)
			if err != nil {
				return fmt.Errorf("recording migration %d: %w", m.version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}
