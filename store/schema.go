package store

// schemaSQL is the DDL for all tables. Graph rows are scoped by document
// and fully replaced on every successful analysis; they are never updated
// in place.
const schemaSQL = `
-- Documents: the text source consumed by analysis
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    filename TEXT NOT NULL,
    content TEXT,
    ocr_text TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Knowledge graph: nodes, keyed by generated identifier
CREATE TABLE IF NOT EXISTS document_nodes (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    label TEXT NOT NULL,
    name TEXT NOT NULL,
    properties JSON
);

-- Knowledge graph: edges, endpoints resolved to node identifiers
CREATE TABLE IF NOT EXISTS document_edges (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    source_node_id TEXT NOT NULL REFERENCES document_nodes(id) ON DELETE CASCADE,
    target_node_id TEXT NOT NULL REFERENCES document_nodes(id) ON DELETE CASCADE,
    relationship TEXT NOT NULL,
    properties JSON
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_nodes_document ON document_nodes(document_id);
CREATE INDEX IF NOT EXISTS idx_nodes_name ON document_nodes(document_id, name);
CREATE INDEX IF NOT EXISTS idx_edges_document ON document_edges(document_id);
`
