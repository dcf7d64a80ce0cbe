package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mcasell/docgraph/schema"
)

// DanglingError reports an edge endpoint that named a node not inserted in
// the same replace call. Graph validation should prevent this upstream; the
// store re-checks defensively and aborts the whole transaction.
type DanglingError struct {
	Endpoint string // "source" or "target"
	Name     string // the unresolved node name
}

func (e *DanglingError) Error() string {
	return fmt.Sprintf("store: edge %s %q does not resolve to a node inserted in this replace", e.Endpoint, e.Name)
}

// ReplaceGraph atomically replaces the persisted graph for a document:
// all prior node and edge rows for documentID are deleted, the new nodes
// are inserted with generated identifiers, edge endpoints are resolved by
// node name against those identifiers, and the new edges are inserted.
// Any failure rolls the whole operation back, so the tables always reflect
// either the complete prior state or the complete new state.
//
// Duplicate node names collapse last-write-wins: the final node inserted
// under a name owns every edge referencing it. Earlier rows remain but are
// unreferenced.
func (s *Store) ReplaceGraph(ctx context.Context, documentID uuid.UUID, g *schema.Graph) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		docID := documentID.String()

		// Clear the prior graph. Edges are removed explicitly before nodes
		// rather than relying on FK cascade ordering.
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM document_edges WHERE document_id = ?", docID); err != nil {
			return fmt.Errorf("clearing edges for document %s: %w", docID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM document_nodes WHERE document_id = ?", docID); err != nil {
			return fmt.Errorf("clearing nodes for document %s: %w", docID, err)
		}

		// Insert nodes, building the transient name->id map used to resolve
		// edge endpoints. The map lives only for this transaction.
		nodeStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO document_nodes (id, document_id, label, name, properties)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer nodeStmt.Close()

		nodeIDs := make(map[string]string, len(g.Nodes))
		for _, n := range g.Nodes {
			props, err := marshalProperties(n.Properties)
			if err != nil {
				return fmt.Errorf("encoding properties for node %q: %w", n.Name, err)
			}
			id := uuid.NewString()
			if _, err := nodeStmt.ExecContext(ctx, id, docID, n.Label, n.Name, props); err != nil {
				return fmt.Errorf("inserting node %q: %w", n.Name, err)
			}
			// Later duplicates overwrite earlier entries (last write wins).
			nodeIDs[n.Name] = id
		}

		edgeStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO document_edges (id, document_id, source_node_id, target_node_id, relationship, properties)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer edgeStmt.Close()

		for _, e := range g.Edges {
			srcID, ok := nodeIDs[e.Source]
			if !ok {
				return &DanglingError{Endpoint: "source", Name: e.Source}
			}
			tgtID, ok := nodeIDs[e.Target]
			if !ok {
				return &DanglingError{Endpoint: "target", Name: e.Target}
			}
			props, err := marshalProperties(e.Properties)
			if err != nil {
				return fmt.Errorf("encoding properties for edge %q -> %q: %w", e.Source, e.Target, err)
			}
			if _, err := edgeStmt.ExecContext(ctx,
				uuid.NewString(), docID, srcID, tgtID, e.Relationship, props); err != nil {
				return fmt.Errorf("inserting edge %q -> %q: %w", e.Source, e.Target, err)
			}
		}

		return nil
	})
}

// GraphForDocument reads back the stored graph for a document, with edge
// endpoints resolved to node names. Rows are returned in insertion order.
// A document with no stored graph yields an empty graph, not an error.
func (s *Store) GraphForDocument(ctx context.Context, documentID uuid.UUID) (*schema.Graph, error) {
	docID := documentID.String()
	g := &schema.Graph{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT label, name, properties FROM document_nodes
		WHERE document_id = ? ORDER BY rowid
	`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var n schema.Node
		var props sql.NullString
		if err := rows.Scan(&n.Label, &n.Name, &props); err != nil {
			return nil, err
		}
		if n.Properties, err = unmarshalProperties(props); err != nil {
			return nil, fmt.Errorf("decoding properties for node %q: %w", n.Name, err)
		}
		g.Nodes = append(g.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edgeRows, err := s.db.QueryContext(ctx, `
		SELECT sn.name, tn.name, e.relationship, e.properties
		FROM document_edges e
		JOIN document_nodes sn ON sn.id = e.source_node_id
		JOIN document_nodes tn ON tn.id = e.target_node_id
		WHERE e.document_id = ? ORDER BY e.rowid
	`, docID)
	if err != nil {
		return nil, err
	}
	defer edgeRows.Close()

	for edgeRows.Next() {
		var e schema.Edge
		var props sql.NullString
		if err := edgeRows.Scan(&e.Source, &e.Target, &e.Relationship, &props); err != nil {
			return nil, err
		}
		if e.Properties, err = unmarshalProperties(props); err != nil {
			return nil, fmt.Errorf("decoding properties for edge %q -> %q: %w", e.Source, e.Target, err)
		}
		g.Edges = append(g.Edges, e)
	}
	return g, edgeRows.Err()
}

// NodeRow is a persisted node with its generated identifier, for callers
// that need to inspect resolved ids.
type NodeRow struct {
	ID         uuid.UUID `json:"id"`
	Label      string    `json:"label"`
	Name       string    `json:"name"`
	Properties string    `json:"properties"`
}

// EdgeRow is a persisted edge with resolved endpoint identifiers.
type EdgeRow struct {
	ID           uuid.UUID `json:"id"`
	SourceNodeID uuid.UUID `json:"source_node_id"`
	TargetNodeID uuid.UUID `json:"target_node_id"`
	Relationship string    `json:"relationship"`
	Properties   string    `json:"properties"`
}

// NodeRows returns the raw node rows for a document in insertion order.
func (s *Store) NodeRows(ctx context.Context, documentID uuid.UUID) ([]NodeRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, name, COALESCE(properties, '{}') FROM document_nodes
		WHERE document_id = ? ORDER BY rowid
	`, documentID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NodeRow
	for rows.Next() {
		var n NodeRow
		var rawID string
		if err := rows.Scan(&rawID, &n.Label, &n.Name, &n.Properties); err != nil {
			return nil, err
		}
		if n.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("parsing node id %q: %w", rawID, err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// EdgeRows returns the raw edge rows for a document in insertion order.
func (s *Store) EdgeRows(ctx context.Context, documentID uuid.UUID) ([]EdgeRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_node_id, target_node_id, relationship, COALESCE(properties, '{}')
		FROM document_edges WHERE document_id = ? ORDER BY rowid
	`, documentID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EdgeRow
	for rows.Next() {
		var e EdgeRow
		var rawID, rawSrc, rawTgt string
		if err := rows.Scan(&rawID, &rawSrc, &rawTgt, &e.Relationship, &e.Properties); err != nil {
			return nil, err
		}
		if e.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("parsing edge id %q: %w", rawID, err)
		}
		if e.SourceNodeID, err = uuid.Parse(rawSrc); err != nil {
			return nil, fmt.Errorf("parsing source node id %q: %w", rawSrc, err)
		}
		if e.TargetNodeID, err = uuid.Parse(rawTgt); err != nil {
			return nil, fmt.Errorf("parsing target node id %q: %w", rawTgt, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func marshalProperties(props map[string]any) (string, error) {
	if props == nil {
		return "{}", nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalProperties(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return map[string]any{}, nil
	}
	var props map[string]any
	if err := json.Unmarshal([]byte(raw.String), &props); err != nil {
		return nil, err
	}
	return props, nil
}
