// Package schema defines the knowledge-graph data contract shared by
// extraction and storage: nodes, edges, and the structural validation
// rule tying them together. It has no behaviour beyond (de)serialization
// and validation and never touches storage.
package schema

import "fmt"

// Node is a labeled, named entity extracted from document text.
// Name is the human-readable identifier used for edge resolution and is
// expected to be unique within a single Graph; duplicates collapse to one
// logical node at storage time.
type Node struct {
	Label      string         `json:"label"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
}

// Edge is a directed, named relationship between two nodes. Source and
// Target are node names, not persisted identifiers; they are resolved to
// identifiers only when the graph is stored.
type Edge struct {
	Source       string         `json:"source"`
	Target       string         `json:"target"`
	Relationship string         `json:"relationship"`
	Properties   map[string]any `json:"properties"`
}

// Graph is the extracted set of nodes and edges for one document.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// ValidationError reports an edge endpoint that names a node absent from
// the graph's node set.
type ValidationError struct {
	EdgeIndex int    // position of the offending edge in Graph.Edges
	Endpoint  string // "source" or "target"
	Name      string // the unresolved node name
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema: edge %d %s %q does not name a node in the graph",
		e.EdgeIndex, e.Endpoint, e.Name)
}

// Validate checks the referential invariant: every edge's source and target
// must name a node present in g.Nodes. It returns a *ValidationError for the
// first violation found, or nil for valid graphs (including empty ones).
func Validate(g *Graph) error {
	names := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		names[n.Name] = struct{}{}
	}

	for i, e := range g.Edges {
		if _, ok := names[e.Source]; !ok {
			return &ValidationError{EdgeIndex: i, Endpoint: "source", Name: e.Source}
		}
		if _, ok := names[e.Target]; !ok {
			return &ValidationError{EdgeIndex: i, Endpoint: "target", Name: e.Target}
		}
	}
	return nil
}
