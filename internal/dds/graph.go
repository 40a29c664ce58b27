package dds

import "context"

// GraphNode identifies a node in the provenance graph by the same
// (type, id) pair as its relational counterpart.
type GraphNode struct {
	Type string
	ID   string
}

// GraphEdge is a typed provenance edge between two nodes.
type GraphEdge struct {
	Kind string // Relation kind, e.g. "was_attributed_to"
	From GraphNode
	To   GraphNode
}

// GraphStore is the secondary provenance store. It is a derived index over
// the relational relation rows: writes are best-effort, duplicates are
// absorbed, and divergence is repaired by the reconciliation pass.
type GraphStore interface {
	// EnsureNode creates the node if it does not exist. Idempotent.
	EnsureNode(ctx context.Context, node GraphNode) error

	// CreateEdge creates the edge, creating endpoints as needed. Creating
	// an edge that already exists is a no-op.
	CreateEdge(ctx context.Context, edge GraphEdge) error

	// DeleteEdge removes the edge; removing a missing edge is a no-op.
	DeleteEdge(ctx context.Context, edge GraphEdge) error

	// HasEdge reports whether the edge exists.
	HasEdge(ctx context.Context, edge GraphEdge) (bool, error)

	// ListEdges returns every edge in the store.
	ListEdges(ctx context.Context) ([]GraphEdge, error)

	// Close releases the underlying connection.
	Close() error
}
